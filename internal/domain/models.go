// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ReferenceCurrency is the fiat currency every price and value is expressed in
const ReferenceCurrency = "usd"

// Position represents a user's owned quantity of one coin, as stored by the asset store
type Position struct {
	ID       string  `json:"id"`
	CoinKey  string  `json:"coinKey"` // Lowercase market-provider identifier (e.g. "bitcoin")
	Symbol   string  `json:"symbol"`  // Uppercase display ticker
	Quantity float64 `json:"quantity"`
	BuyPrice float64 `json:"buyPrice"` // Average acquisition price per unit
}

// Normalize returns the position with canonical key and symbol casing
func (p Position) Normalize() Position {
	p.CoinKey = strings.ToLower(strings.TrimSpace(p.CoinKey))
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	return p
}

// NewPosition is the payload for creating a position in the asset store
type NewPosition struct {
	CoinKey  string  `json:"name"`
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	BuyPrice float64 `json:"buyPrice"`
}

// Validate checks the invariants the asset store expects
func (n NewPosition) Validate() error {
	if strings.TrimSpace(n.CoinKey) == "" {
		return fmt.Errorf("coin key is required")
	}
	if strings.TrimSpace(n.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	if !(n.Quantity > 0) {
		return fmt.Errorf("quantity must be positive, got %v", n.Quantity)
	}
	if !(n.BuyPrice >= 0) {
		return fmt.Errorf("buy price must not be negative, got %v", n.BuyPrice)
	}
	return nil
}

// Normalize returns the payload with canonical key and symbol casing
func (n NewPosition) Normalize() NewPosition {
	n.CoinKey = strings.ToLower(strings.TrimSpace(n.CoinKey))
	n.Symbol = strings.ToUpper(strings.TrimSpace(n.Symbol))
	return n
}

// PriceQuote maps coin keys to spot prices in the reference currency.
// A key missing from the map means the price is unavailable, not zero.
type PriceQuote map[string]float64

// Lookup returns the price for a coin key and whether one was quoted
func (q PriceQuote) Lookup(coinKey string) (float64, bool) {
	if q == nil {
		return 0, false
	}
	price, ok := q[coinKey]
	return price, ok
}

// EnrichedPosition is a position valued against current market prices
type EnrichedPosition struct {
	Position
	CurrentPrice      float64 `json:"currentPrice"`
	CurrentValue      float64 `json:"currentValue"`
	BuyValue          float64 `json:"buyValue"`
	ProfitLoss        float64 `json:"profitLoss"`
	ProfitLossPercent float64 `json:"profitLossPercent"`
	PriceAvailable    bool    `json:"priceAvailable"` // False when a fallback price was used
}

// PortfolioSnapshot is the last fully computed valuation of all positions
type PortfolioSnapshot struct {
	Positions  []EnrichedPosition `json:"positions"`
	TotalValue float64            `json:"totalValue"`
	ComputedAt time.Time          `json:"computedAt"`
}

// EmptySnapshot returns a snapshot with no positions
func EmptySnapshot(at time.Time) *PortfolioSnapshot {
	return &PortfolioSnapshot{
		Positions:  []EnrichedPosition{},
		TotalValue: 0,
		ComputedAt: at,
	}
}

// Clone returns a deep copy so callers cannot mutate shared state
func (s *PortfolioSnapshot) Clone() *PortfolioSnapshot {
	if s == nil {
		return nil
	}
	positions := make([]EnrichedPosition, len(s.Positions))
	copy(positions, s.Positions)
	return &PortfolioSnapshot{
		Positions:  positions,
		TotalValue: s.TotalValue,
		ComputedAt: s.ComputedAt,
	}
}

// Find returns the enriched position with the given id
func (s *PortfolioSnapshot) Find(id string) (EnrichedPosition, bool) {
	if s == nil {
		return EnrichedPosition{}, false
	}
	for _, p := range s.Positions {
		if p.ID == id {
			return p, true
		}
	}
	return EnrichedPosition{}, false
}

// FindByCoin returns the first position holding the given coin key
func (s *PortfolioSnapshot) FindByCoin(coinKey string) (EnrichedPosition, bool) {
	if s == nil {
		return EnrichedPosition{}, false
	}
	coinKey = strings.ToLower(coinKey)
	for _, p := range s.Positions {
		if p.CoinKey == coinKey {
			return p, true
		}
	}
	return EnrichedPosition{}, false
}

// CoinKeys returns the deduplicated, sorted coin keys of a position set
func CoinKeys(positions []Position) []string {
	keys := make([]string, len(positions))
	for i, p := range positions {
		keys[i] = p.CoinKey
	}
	return NormalizeKeys(keys)
}

// NormalizeKeys lowercases, deduplicates and sorts coin keys, dropping blanks
func NormalizeKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarketCoin is one row of the market listing (top coins by market cap)
type MarketCoin struct {
	ID                       string  `json:"id"`
	Symbol                   string  `json:"symbol"`
	Name                     string  `json:"name"`
	Image                    string  `json:"image"`
	CurrentPrice             float64 `json:"current_price"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
	MarketCap                float64 `json:"market_cap"`
}

// Session is the explicit authentication context passed to every portfolio operation
type Session struct {
	Token string `json:"-"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Authenticated reports whether the session carries a bearer token
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Credentials are submitted to the auth service on login and signup
type Credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Profile is the user record returned by the auth service
type Profile struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}
