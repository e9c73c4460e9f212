package localstore

import (
	"context"
	"fmt"

	"github.com/aristath/cryptovault/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache on the portfolioCache slot.
type SnapshotCache struct {
	repo *Repository
}

// NewSnapshotCache creates a snapshot cache backed by repo.
func NewSnapshotCache(repo *Repository) *SnapshotCache {
	return &SnapshotCache{repo: repo}
}

// Load returns domain.ErrCacheMiss when the slot is empty or cannot be decoded.
func (c *SnapshotCache) Load(ctx context.Context) (*domain.PortfolioSnapshot, error) {
	data, err := c.repo.Get(ctx, SlotPortfolioCache)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, domain.ErrCacheMiss
	}

	var snapshot domain.PortfolioSnapshot
	if err := Decode(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheMiss, err)
	}
	if snapshot.Positions == nil {
		snapshot.Positions = []domain.EnrichedPosition{}
	}

	return &snapshot, nil
}

// Store overwrites the slot with snapshot.
func (c *SnapshotCache) Store(ctx context.Context, snapshot *domain.PortfolioSnapshot) error {
	if snapshot == nil {
		return c.Clear(ctx)
	}
	return c.repo.StoreValue(ctx, SlotPortfolioCache, snapshot, 0)
}

// Clear removes the slot so the next load is forced to re-derive from a refresh.
func (c *SnapshotCache) Clear(ctx context.Context) error {
	return c.repo.Delete(ctx, SlotPortfolioCache)
}
