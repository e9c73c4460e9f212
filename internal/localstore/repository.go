// Package localstore provides the session-scoped key-value slots the client keeps locally.
// Every slot is a single row holding an opaque blob, overwritten wholesale on write.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Well-known slot keys
const (
	SlotPortfolioCache = "portfolioCache" // Serialized PortfolioSnapshot
	SlotToken          = "token"          // Bearer token; removal means logout
	SlotMarkets        = "markets"        // Cached top-coins listing
)

// Repository provides slot operations for one session scope.
type Repository struct {
	db    *sql.DB
	scope string
	now   func() time.Time
}

// NewRepository creates a slot repository bound to scope.
func NewRepository(db *sql.DB, scope string) *Repository {
	return &Repository{db: db, scope: scope, now: time.Now}
}

// Scope returns the session namespace this repository reads and writes.
func (r *Repository) Scope() string {
	return r.scope
}

// Store overwrites a slot. A ttl of zero means the slot never expires.
// INSERT OR REPLACE keeps the write atomic, readers never observe a partial slot.
func (r *Repository) Store(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := r.now()

	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(ttl).Unix(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO slots (scope, key, data, updated_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		r.scope, key, data, now.Unix(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store slot %s: %w", key, err)
	}

	return nil
}

// GetIfFresh returns data only if the slot has not expired.
// Returns nil, nil if the key doesn't exist or data is expired.
// Use Get() to retrieve stale data as a fallback when API calls fail.
func (r *Repository) GetIfFresh(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT data FROM slots WHERE scope = ? AND key = ? AND (expires_at IS NULL OR expires_at > ?)",
		r.scope, key, r.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot %s: %w", key, err)
	}

	return data, nil
}

// Get returns data regardless of expiration status.
// Returns nil, nil if the key doesn't exist.
func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT data FROM slots WHERE scope = ? AND key = ?",
		r.scope, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot %s: %w", key, err)
	}

	return data, nil
}

// Delete removes a slot. Deleting a missing slot is not an error.
func (r *Repository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM slots WHERE scope = ? AND key = ?", r.scope, key)
	if err != nil {
		return fmt.Errorf("failed to delete slot %s: %w", key, err)
	}

	return nil
}

// DeleteExpired removes expired slots across all scopes.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM slots WHERE expires_at IS NOT NULL AND expires_at < ?",
		r.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired slots: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// StoreValue encodes v and overwrites the slot.
func (r *Repository) StoreValue(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode slot %s: %w", key, err)
	}
	return r.Store(ctx, key, data, ttl)
}
