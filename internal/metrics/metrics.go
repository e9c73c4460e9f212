// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptovault_upstream_requests_total",
			Help: "Total number of requests to external collaborators",
		},
		[]string{"service", "operation", "outcome"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cryptovault_upstream_request_duration_seconds",
			Help:    "Duration of requests to external collaborators",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	MarketBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cryptovault_market_breaker_state",
			Help: "Market data circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	// Valuation metrics
	RefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptovault_refreshes_total",
			Help: "Portfolio refreshes by outcome (applied, joined, discarded, degraded, auth_error)",
		},
		[]string{"outcome"},
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cryptovault_refresh_duration_seconds",
			Help:    "Duration of portfolio refreshes that issued network calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	PortfolioValue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cryptovault_portfolio_value_usd",
			Help: "Total value of the last applied portfolio snapshot",
		},
	)

	PortfolioPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cryptovault_portfolio_positions",
			Help: "Number of positions in the last applied portfolio snapshot",
		},
	)

	CacheInvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cryptovault_cache_invalidations_total",
			Help: "Times the snapshot cache slot was cleared after a mutation",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptovault_notifications_total",
			Help: "Notifications pushed by kind and whether they were suppressed as duplicates",
		},
		[]string{"kind", "suppressed"},
	)
)

// ObserveUpstream records the outcome of one collaborator call.
func ObserveUpstream(service, operation string, seconds float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequestsTotal.WithLabelValues(service, operation, outcome).Inc()
	UpstreamRequestDuration.WithLabelValues(service, operation).Observe(seconds)
}
