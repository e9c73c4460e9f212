package localstore

import "context"

// TokenStore implements domain.TokenStore on the token slot.
type TokenStore struct {
	repo *Repository
}

// NewTokenStore creates a token store backed by repo.
func NewTokenStore(repo *Repository) *TokenStore {
	return &TokenStore{repo: repo}
}

// LoadToken returns "" when no token is stored.
func (s *TokenStore) LoadToken(ctx context.Context) (string, error) {
	data, err := s.repo.Get(ctx, SlotToken)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveToken overwrites the token slot.
func (s *TokenStore) SaveToken(ctx context.Context, token string) error {
	return s.repo.Store(ctx, SlotToken, []byte(token), 0)
}

// ClearToken removes the token slot. The portfolio cache is left alone.
func (s *TokenStore) ClearToken(ctx context.Context) error {
	return s.repo.Delete(ctx, SlotToken)
}
