package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/notifications"
)

// MockAssetStore is an in-memory implementation of domain.AssetStore for testing
type MockAssetStore struct {
	mu        sync.Mutex
	positions []domain.Position
	err       error
	nextID    int

	ListCalls   int
	CreateCalls int
	DeleteCalls int

	// ListHook, when set, replaces ListAssets entirely
	ListHook func(ctx context.Context, token string) ([]domain.Position, error)
}

// NewMockAssetStore creates a new mock asset store holding positions
func NewMockAssetStore(positions ...domain.Position) *MockAssetStore {
	return &MockAssetStore{positions: append([]domain.Position(nil), positions...)}
}

// SetPositions replaces the stored positions
func (m *MockAssetStore) SetPositions(positions []domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append([]domain.Position(nil), positions...)
}

// SetError sets the error every operation returns
func (m *MockAssetStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ListAssets returns the stored positions
func (m *MockAssetStore) ListAssets(ctx context.Context, token string) ([]domain.Position, error) {
	m.mu.Lock()
	m.ListCalls++
	hook := m.ListHook
	m.mu.Unlock()

	if hook != nil {
		return hook(ctx, token)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		return nil, &domain.AuthError{Op: "assets list", Err: domain.ErrNoToken}
	}
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.Position(nil), m.positions...), nil
}

// CreateAsset stores a position with a generated id
func (m *MockAssetStore) CreateAsset(ctx context.Context, token string, p domain.NewPosition) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if token == "" {
		return nil, &domain.AuthError{Op: "assets create", Err: domain.ErrNoToken}
	}
	if m.err != nil {
		return nil, m.err
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	m.nextID++
	created := domain.Position{
		ID:       fmt.Sprintf("new-%d", m.nextID),
		CoinKey:  p.CoinKey,
		Symbol:   p.Symbol,
		Quantity: p.Quantity,
		BuyPrice: p.BuyPrice,
	}
	m.positions = append(m.positions, created)
	return &created, nil
}

// DeleteAsset removes a position, failing with a 404 UpstreamError when absent
func (m *MockAssetStore) DeleteAsset(ctx context.Context, token, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if token == "" {
		return &domain.AuthError{Op: "assets delete", Err: domain.ErrNoToken}
	}
	if m.err != nil {
		return m.err
	}
	for i, p := range m.positions {
		if p.ID == id {
			m.positions = append(m.positions[:i], m.positions[i+1:]...)
			return nil
		}
	}
	return &domain.UpstreamError{Service: "assets", Op: "delete", StatusCode: 404}
}

// MockMarketData is an in-memory implementation of domain.MarketDataProvider for testing
type MockMarketData struct {
	mu      sync.Mutex
	quote   domain.PriceQuote
	markets []domain.MarketCoin
	err     error

	PriceCalls   int
	MarketsCalls int
	LastKeys     []string

	// PricesHook, when set, replaces SimplePrices entirely
	PricesHook func(ctx context.Context, coinKeys []string) (domain.PriceQuote, error)
}

// NewMockMarketData creates a mock provider quoting prices
func NewMockMarketData(quote domain.PriceQuote) *MockMarketData {
	return &MockMarketData{quote: quote}
}

// SetQuote replaces the quoted prices
func (m *MockMarketData) SetQuote(quote domain.PriceQuote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quote = quote
}

// SetMarkets sets the listing TopMarkets returns
func (m *MockMarketData) SetMarkets(markets []domain.MarketCoin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets = markets
}

// SetError sets the error every operation returns
func (m *MockMarketData) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SimplePrices returns the subset of the configured quote matching coinKeys
func (m *MockMarketData) SimplePrices(ctx context.Context, coinKeys []string) (domain.PriceQuote, error) {
	m.mu.Lock()
	m.PriceCalls++
	m.LastKeys = append([]string(nil), coinKeys...)
	hook := m.PricesHook
	m.mu.Unlock()

	if hook != nil {
		return hook(ctx, coinKeys)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(domain.PriceQuote, len(coinKeys))
	for _, k := range coinKeys {
		if price, ok := m.quote[k]; ok {
			out[k] = price
		}
	}
	return out, nil
}

// TopMarkets returns the configured listing
func (m *MockMarketData) TopMarkets(ctx context.Context) ([]domain.MarketCoin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarketsCalls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.MarketCoin(nil), m.markets...), nil
}

// Calls returns the number of SimplePrices calls so far
func (m *MockMarketData) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PriceCalls
}

// MemorySnapshotCache is an in-memory domain.SnapshotCache
type MemorySnapshotCache struct {
	mu       sync.Mutex
	snapshot *domain.PortfolioSnapshot
	Stores   int
	Clears   int
}

// NewMemorySnapshotCache creates a cache optionally seeded with snapshot
func NewMemorySnapshotCache(snapshot *domain.PortfolioSnapshot) *MemorySnapshotCache {
	return &MemorySnapshotCache{snapshot: snapshot.Clone()}
}

// Load returns the stored snapshot or domain.ErrCacheMiss
func (c *MemorySnapshotCache) Load(ctx context.Context) (*domain.PortfolioSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil, domain.ErrCacheMiss
	}
	return c.snapshot.Clone(), nil
}

// Store overwrites the stored snapshot. Like the SQLite slot it refuses a
// cancelled context.
func (c *MemorySnapshotCache) Store(ctx context.Context, snapshot *domain.PortfolioSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Stores++
	c.snapshot = snapshot.Clone()
	return nil
}

// Clear empties the cache, refusing a cancelled context
func (c *MemorySnapshotCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Clears++
	c.snapshot = nil
	return nil
}

// Peek returns the stored snapshot without counting as a load
func (c *MemorySnapshotCache) Peek() *domain.PortfolioSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// MemoryTokenStore is an in-memory domain.TokenStore
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// LoadToken returns the stored token or ""
func (s *MemoryTokenStore) LoadToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// SaveToken stores token
func (s *MemoryTokenStore) SaveToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// ClearToken forgets the token
func (s *MemoryTokenStore) ClearToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// MockAuthService is a testify mock of domain.AuthService
type MockAuthService struct {
	mock.Mock
}

// Login records the call and returns the configured token
func (m *MockAuthService) Login(ctx context.Context, creds domain.Credentials) (string, error) {
	args := m.Called(ctx, creds)
	return args.String(0), args.Error(1)
}

// Signup records the call and returns the configured token
func (m *MockAuthService) Signup(ctx context.Context, creds domain.Credentials) (string, error) {
	args := m.Called(ctx, creds)
	return args.String(0), args.Error(1)
}

// Profile records the call and returns the configured profile
func (m *MockAuthService) Profile(ctx context.Context, token string) (*domain.Profile, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

// RecordedNotification is one call captured by RecordingNotifier
type RecordedNotification struct {
	ID      notifications.ID
	Kind    notifications.Kind
	Message string
}

// RecordingNotifier captures pushed notifications without suppressing duplicates
type RecordingNotifier struct {
	mu      sync.Mutex
	entries []RecordedNotification
}

// Push records the notification and always accepts it
func (n *RecordingNotifier) Push(id notifications.ID, kind notifications.Kind, message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, RecordedNotification{ID: id, Kind: kind, Message: message})
	return true
}

// Entries returns the captured notifications in push order
func (n *RecordingNotifier) Entries() []RecordedNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]RecordedNotification(nil), n.entries...)
}

// Has reports whether a notification with id and kind was pushed
func (n *RecordingNotifier) Has(id notifications.ID, kind notifications.Kind) bool {
	for _, e := range n.Entries() {
		if e.ID == id && e.Kind == kind {
			return true
		}
	}
	return false
}
