// Package valuation values a user's positions against live market prices and
// keeps the last computed portfolio snapshot.
package valuation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/cryptovault/internal/domain"
)

// FallbackPolicy decides the price used when a coin has no quote
type FallbackPolicy string

const (
	// FallbackBuyPrice values the position at its buy price: zero P/L signals staleness
	FallbackBuyPrice FallbackPolicy = "buy_price"
	// FallbackZero values the position at zero
	FallbackZero FallbackPolicy = "zero"
	// FallbackPrevious uses the last quoted price, then the buy price
	FallbackPrevious FallbackPolicy = "previous"
)

// ParseFallbackPolicy validates a configured policy name. Empty means FallbackBuyPrice.
func ParseFallbackPolicy(name string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return FallbackBuyPrice, nil
	case FallbackBuyPrice, FallbackZero, FallbackPrevious:
		return p, nil
	default:
		return "", fmt.Errorf("unknown price fallback policy %q", name)
	}
}

// PriceFallback returns the price to use for a position without a quote
type PriceFallback func(p domain.Position) float64

// BuyPriceFallback substitutes the position's buy price
func BuyPriceFallback(p domain.Position) float64 { return p.BuyPrice }

// ZeroFallback substitutes zero
func ZeroFallback(domain.Position) float64 { return 0 }

// PreviousFallback substitutes the last known price for the coin, deferring to next
// when none is known.
func PreviousFallback(previous domain.PriceQuote, next PriceFallback) PriceFallback {
	return func(p domain.Position) float64 {
		if price, ok := previous.Lookup(p.CoinKey); ok && validPrice(price) {
			return price
		}
		return next(p)
	}
}

// Resolve turns a policy into a fallback function. previous is only consulted
// by FallbackPrevious.
func (p FallbackPolicy) Resolve(previous domain.PriceQuote) PriceFallback {
	switch p {
	case FallbackZero:
		return ZeroFallback
	case FallbackPrevious:
		return PreviousFallback(previous, BuyPriceFallback)
	default:
		return BuyPriceFallback
	}
}

// ComputeValuation values positions against quotes. It performs no I/O.
// The total is the sum of current values accumulated in input order.
func ComputeValuation(positions []domain.Position, quotes domain.PriceQuote, fallback PriceFallback) ([]domain.EnrichedPosition, float64) {
	if fallback == nil {
		fallback = BuyPriceFallback
	}

	enriched := make([]domain.EnrichedPosition, 0, len(positions))
	total := 0.0
	for _, p := range positions {
		price, ok := quotes.Lookup(p.CoinKey)
		available := ok && validPrice(price)
		if !available {
			price = fallback(p)
		}

		ep := enrich(p, price, available)
		total += ep.CurrentValue
		enriched = append(enriched, ep)
	}

	return enriched, total
}

// enrich derives the valuation fields of one position
func enrich(p domain.Position, price float64, available bool) domain.EnrichedPosition {
	if !validPrice(price) {
		price = 0
	}

	currentValue := price * p.Quantity
	buyValue := p.BuyPrice * p.Quantity
	profitLoss := currentValue - buyValue

	profitLossPercent := 0.0
	if buyValue > 0 {
		profitLossPercent = profitLoss / buyValue * 100
	}

	return domain.EnrichedPosition{
		Position:          p,
		CurrentPrice:      price,
		CurrentValue:      finite(currentValue),
		BuyValue:          finite(buyValue),
		ProfitLoss:        finite(profitLoss),
		ProfitLossPercent: finite(profitLossPercent),
		PriceAvailable:    available,
	}
}

// MutationKind is the kind of position-set change applied to a snapshot
type MutationKind int

const (
	MutationAdd MutationKind = iota
	MutationRemove
)

func (k MutationKind) String() string {
	switch k {
	case MutationAdd:
		return "add"
	case MutationRemove:
		return "remove"
	default:
		return fmt.Sprintf("mutation(%d)", int(k))
	}
}

// applyMutation returns a new snapshot with position added or removed.
// Added positions are valued at their buy price until the next refresh. Adding
// an id already present, or removing an absent one, leaves the snapshot as is.
// The input snapshot is never modified.
func applyMutation(kind MutationKind, snapshot *domain.PortfolioSnapshot, position domain.Position, at time.Time) *domain.PortfolioSnapshot {
	next := snapshot.Clone()
	if next == nil {
		next = domain.EmptySnapshot(at)
	}

	switch kind {
	case MutationAdd:
		if _, exists := next.Find(position.ID); exists {
			return next
		}
		position = position.Normalize()
		next.Positions = append(next.Positions, enrich(position, position.BuyPrice, false))

	case MutationRemove:
		idx := -1
		for i, p := range next.Positions {
			if p.ID == position.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return next
		}
		next.Positions = append(next.Positions[:idx], next.Positions[idx+1:]...)

	default:
		return next
	}

	next.TotalValue = sumValues(next.Positions)
	next.ComputedAt = at
	return next
}

// sumValues keeps TotalValue equal to the sum of current values in list order
func sumValues(positions []domain.EnrichedPosition) float64 {
	total := 0.0
	for _, p := range positions {
		total += p.CurrentValue
	}
	return total
}

// quotesFromSnapshot recovers the prices a snapshot was computed with
func quotesFromSnapshot(snapshot *domain.PortfolioSnapshot) domain.PriceQuote {
	quotes := domain.PriceQuote{}
	if snapshot == nil {
		return quotes
	}
	for _, p := range snapshot.Positions {
		if p.PriceAvailable {
			quotes[p.CoinKey] = p.CurrentPrice
		}
	}
	return quotes
}

func validPrice(price float64) bool {
	return price >= 0 && !math.IsInf(price, 0) && !math.IsNaN(price)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
