package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/domain"
)

// Refresher recomputes the portfolio for a session
type Refresher interface {
	Refresh(ctx context.Context, s domain.Session) (*domain.PortfolioSnapshot, error)
}

// SessionSource provides the current session and ends rejected ones
type SessionSource interface {
	Current() domain.Session
	Expire(ctx context.Context)
}

// RefreshJob periodically recomputes the signed-in user's portfolio.
// Ticks without a session are skipped.
type RefreshJob struct {
	engine   Refresher
	sessions SessionSource
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRefreshJob creates a new refresh job. A zero timeout means 30s.
func NewRefreshJob(engine Refresher, sessions SessionSource, timeout time.Duration, log zerolog.Logger) *RefreshJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RefreshJob{
		engine:   engine,
		sessions: sessions,
		timeout:  timeout,
		log:      log.With().Str("job", "portfolio_refresh").Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "portfolio_refresh"
}

// Run refreshes the portfolio once
func (j *RefreshJob) Run() error {
	s := j.sessions.Current()
	if !s.Authenticated() {
		j.log.Debug().Msg("No session, skipping refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	snapshot, err := j.engine.Refresh(ctx, s)
	if err != nil {
		if domain.IsAuthError(err) {
			j.log.Warn().Err(err).Msg("Token rejected during scheduled refresh")
			j.sessions.Expire(ctx)
			return nil
		}
		return err
	}

	j.log.Debug().
		Int("positions", len(snapshot.Positions)).
		Float64("total_value", snapshot.TotalValue).
		Msg("Scheduled refresh completed")
	return nil
}
