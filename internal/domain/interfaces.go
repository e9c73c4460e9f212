package domain

import "context"

// AssetStore is the external CRUD service that owns a user's positions.
// It assigns position ids and holds the canonical quantity and buy price.
type AssetStore interface {
	ListAssets(ctx context.Context, token string) ([]Position, error)
	CreateAsset(ctx context.Context, token string, p NewPosition) (*Position, error)
	DeleteAsset(ctx context.Context, token, id string) error
}

// MarketDataProvider quotes spot prices and lists coins for discovery
type MarketDataProvider interface {
	// SimplePrices issues a single batched request for all keys.
	// Keys the provider does not know are absent from the result.
	SimplePrices(ctx context.Context, coinKeys []string) (PriceQuote, error)

	// TopMarkets lists the top coins by market capitalization
	TopMarkets(ctx context.Context) ([]MarketCoin, error)
}

// AuthService issues opaque bearer tokens
type AuthService interface {
	Login(ctx context.Context, creds Credentials) (string, error)
	Signup(ctx context.Context, creds Credentials) (string, error)
	Profile(ctx context.Context, token string) (*Profile, error)
}

// SnapshotCache is the single local slot holding the last computed valuation.
// Load returns ErrCacheMiss when the slot is empty or undecodable.
type SnapshotCache interface {
	Load(ctx context.Context) (*PortfolioSnapshot, error)
	Store(ctx context.Context, snapshot *PortfolioSnapshot) error
	Clear(ctx context.Context) error
}

// TokenStore persists the bearer token between runs.
// LoadToken returns "" and no error when no token is stored.
type TokenStore interface {
	LoadToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}
