// Package coins lists the market and lets users add or drop a coin in one step.
package coins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/notifications"
)

var (
	// ErrCoinNotFound is returned when a coin key is not in the market listing
	ErrCoinNotFound = errors.New("coin not found")
	// ErrAlreadyHeld is returned by QuickAdd for a coin the portfolio already holds
	ErrAlreadyHeld = errors.New("coin already in portfolio")
)

// QuickAddQuantity is the quantity a one-click add records
const QuickAddQuantity = 1.0

// Portfolio is the part of valuation.Engine the coins page uses
type Portfolio interface {
	Current() *domain.PortfolioSnapshot
	FetchPositions(ctx context.Context, s domain.Session) ([]domain.Position, error)
	AddPosition(ctx context.Context, s domain.Session, p domain.NewPosition) (*domain.PortfolioSnapshot, error)
	RemoveByCoin(ctx context.Context, s domain.Session, coinKey string) (*domain.PortfolioSnapshot, error)
}

// Listing is a market row annotated with whether the user holds it
type Listing struct {
	domain.MarketCoin
	InPortfolio bool `json:"inPortfolio"`
}

// Service provides coin discovery
type Service struct {
	market    domain.MarketDataProvider
	portfolio Portfolio
	notifier  notifications.Notifier
	log       zerolog.Logger
}

// NewService creates a coins service. notifier may be nil.
func NewService(market domain.MarketDataProvider, portfolio Portfolio, notifier notifications.Notifier, log zerolog.Logger) *Service {
	return &Service{
		market:    market,
		portfolio: portfolio,
		notifier:  notifier,
		log:       log.With().Str("service", "coins").Logger(),
	}
}

// List returns the top markets matching query, flagged against the session's
// holdings. Without a session nothing is flagged.
func (s *Service) List(ctx context.Context, sess domain.Session, query string) ([]Listing, error) {
	markets, err := s.market.TopMarkets(ctx)
	if err != nil {
		if s.notifier != nil {
			s.notifier.Push(notifications.IDMarkets, notifications.KindError, "Failed to load coins")
		}
		return nil, err
	}

	held := s.holdings(ctx, sess)
	filtered := Filter(markets, query)

	listings := make([]Listing, 0, len(filtered))
	for _, coin := range filtered {
		listings = append(listings, Listing{
			MarketCoin:  coin,
			InPortfolio: held[strings.ToLower(coin.ID)],
		})
	}
	return listings, nil
}

// QuickAdd records one unit of coinKey at its current market price.
func (s *Service) QuickAdd(ctx context.Context, sess domain.Session, coinKey string) (*domain.PortfolioSnapshot, error) {
	if !sess.Authenticated() {
		return nil, &domain.AuthError{Op: "quick add", Err: domain.ErrNoToken}
	}

	key := strings.ToLower(strings.TrimSpace(coinKey))
	if s.holdings(ctx, sess)[key] {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyHeld, key)
	}

	markets, err := s.market.TopMarkets(ctx)
	if err != nil {
		return nil, err
	}
	coin, ok := findCoin(markets, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCoinNotFound, key)
	}

	s.log.Debug().Str("coin", coin.ID).Float64("price", coin.CurrentPrice).Msg("Quick add")
	return s.portfolio.AddPosition(ctx, sess, domain.NewPosition{
		CoinKey:  coin.ID,
		Symbol:   strings.ToUpper(coin.Symbol),
		Quantity: QuickAddQuantity,
		BuyPrice: coin.CurrentPrice,
	})
}

// Remove drops the position holding coinKey
func (s *Service) Remove(ctx context.Context, sess domain.Session, coinKey string) (*domain.PortfolioSnapshot, error) {
	return s.portfolio.RemoveByCoin(ctx, sess, coinKey)
}

// holdings returns the held coin keys, from the applied snapshot when there is
// one and from the asset store otherwise.
func (s *Service) holdings(ctx context.Context, sess domain.Session) map[string]bool {
	held := make(map[string]bool)
	if !sess.Authenticated() {
		return held
	}

	if snapshot := s.portfolio.Current(); snapshot != nil {
		for _, p := range snapshot.Positions {
			held[p.CoinKey] = true
		}
		return held
	}

	positions, err := s.portfolio.FetchPositions(ctx, sess)
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not load holdings, listing without them")
		return held
	}
	for _, p := range positions {
		held[p.CoinKey] = true
	}
	return held
}

// Filter keeps coins whose name or symbol contains query, ignoring case.
// An empty query keeps everything.
func Filter(markets []domain.MarketCoin, query string) []domain.MarketCoin {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return markets
	}

	out := make([]domain.MarketCoin, 0, len(markets))
	for _, coin := range markets {
		if strings.Contains(strings.ToLower(coin.Name), q) || strings.Contains(strings.ToLower(coin.Symbol), q) {
			out = append(out, coin)
		}
	}
	return out
}

func findCoin(markets []domain.MarketCoin, key string) (domain.MarketCoin, bool) {
	for _, coin := range markets {
		if strings.EqualFold(coin.ID, key) {
			return coin, true
		}
	}
	return domain.MarketCoin{}, false
}
