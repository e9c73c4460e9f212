// Package coingecko provides a client for the CoinGecko public market data API.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/localstore"
	"github.com/aristath/cryptovault/internal/metrics"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	serviceName    = "market"
	// The public API returns at most 250 rows per page; the discovery page shows 100
	marketsPerPage = 100
)

// Config tunes throttling and failure isolation
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerMin int
	Burst          int
	BreakerTimeout time.Duration
}

// DefaultConfig matches the free public tier (~30 calls/minute)
func DefaultConfig() Config {
	return Config{
		BaseURL:        defaultBaseURL,
		Timeout:        10 * time.Second,
		RequestsPerMin: 30,
		Burst:          5,
		BreakerTimeout: 60 * time.Second,
	}
}

// Client is the CoinGecko API client.
// Every request waits on a client-side rate limiter and runs through a circuit
// breaker so a rate-limited or failing provider is not hammered on every refresh.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
	cacheRepo  *localstore.Repository
}

// NewClient creates a new CoinGecko client.
// cacheRepo is optional - if nil, the market listing is not cached.
func NewClient(cfg Config, cacheRepo *localstore.Repository, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = DefaultConfig().RequestsPerMin
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMin)), cfg.Burst),
		log:        log.With().Str("client", "coingecko").Logger(),
		cacheRepo:  cacheRepo,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "coingecko",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.MarketBreakerState.Set(float64(to))
			c.log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Market data circuit breaker changed state")
		},
	})

	return c
}

// simplePriceResponse maps coin key -> currency -> price
type simplePriceResponse map[string]map[string]float64

// SimplePrices fetches spot prices for all keys in one batched request.
// Keys the provider does not return are absent from the quote.
func (c *Client) SimplePrices(ctx context.Context, coinKeys []string) (domain.PriceQuote, error) {
	keys := domain.NormalizeKeys(coinKeys)
	if len(keys) == 0 {
		return domain.PriceQuote{}, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(keys, ","))
	query.Set("vs_currencies", domain.ReferenceCurrency)

	var resp simplePriceResponse
	if err := c.getJSON(ctx, "simple price", "/simple/price?"+query.Encode(), &resp); err != nil {
		return nil, err
	}

	quote := make(domain.PriceQuote, len(resp))
	for key, prices := range resp {
		price, ok := prices[domain.ReferenceCurrency]
		if !ok || price < 0 {
			continue
		}
		quote[strings.ToLower(key)] = price
	}

	c.log.Debug().
		Int("requested", len(keys)).
		Int("quoted", len(quote)).
		Msg("Fetched prices")

	return quote, nil
}

// TopMarkets lists the top coins by market cap, cache first.
// If the API fails, returns the stale cached listing if available (stale data > no data).
func (c *Client) TopMarkets(ctx context.Context) ([]domain.MarketCoin, error) {
	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh(ctx, localstore.SlotMarkets)
		if err == nil && data != nil {
			var cached []domain.MarketCoin
			if err := localstore.Decode(data, &cached); err == nil {
				c.log.Debug().Int("coins", len(cached)).Msg("Cache hit")
				return cached, nil
			}
		}
	}

	query := url.Values{}
	query.Set("vs_currency", domain.ReferenceCurrency)
	query.Set("order", "market_cap_desc")
	query.Set("per_page", fmt.Sprint(marketsPerPage))
	query.Set("page", "1")

	var coins []domain.MarketCoin
	err := c.getJSON(ctx, "markets", "/coins/markets?"+query.Encode(), &coins)
	if err == nil && len(coins) == 0 {
		err = &domain.UpstreamError{Service: serviceName, Op: "markets", Err: errors.New("empty data received")}
	}
	if err != nil {
		if stale, ok := c.getStaleMarkets(ctx); ok {
			c.log.Warn().Err(err).Int("coins", len(stale)).Msg("API failed, using stale cached market listing")
			return stale, nil
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.StoreValue(ctx, localstore.SlotMarkets, coins, localstore.TTLMarkets); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache market listing")
		}
	}

	c.log.Info().Int("coins", len(coins)).Msg("Fetched market listing")

	return coins, nil
}

// getStaleMarkets retrieves the cached listing even if expired.
func (c *Client) getStaleMarkets(ctx context.Context) ([]domain.MarketCoin, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	data, err := c.cacheRepo.Get(ctx, localstore.SlotMarkets)
	if err != nil || data == nil {
		return nil, false
	}

	var cached []domain.MarketCoin
	if err := localstore.Decode(data, &cached); err != nil {
		return nil, false
	}

	return cached, true
}

// getJSON performs a throttled, breaker-guarded GET and decodes the body into out.
// Every failure is reported as *domain.UpstreamError.
func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, &domain.UpstreamError{Service: serviceName, Op: op, StatusCode: resp.StatusCode}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return nil, nil
	})
	metrics.ObserveUpstream(serviceName, op, time.Since(start).Seconds(), err)

	if err == nil {
		return nil
	}

	var upErr *domain.UpstreamError
	if errors.As(err, &upErr) {
		return upErr
	}
	return &domain.UpstreamError{Service: serviceName, Op: op, Err: err}
}
