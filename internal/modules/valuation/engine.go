package valuation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/events"
	"github.com/aristath/cryptovault/internal/metrics"
	"github.com/aristath/cryptovault/internal/notifications"
)

const moduleName = "valuation"

// ErrPositionNotFound is returned when a coin has no position to remove
var ErrPositionNotFound = errors.New("position not found")

// refreshCall is one issued refresh. Joiners wait on done.
type refreshCall struct {
	seq      uint64
	token    string
	done     chan struct{}
	snapshot *domain.PortfolioSnapshot
	err      error
}

// Engine owns the applied portfolio snapshot.
//
// Every refresh and every mutation claims a sequence number when it is issued.
// A finished refresh is applied only if no later-issued refresh or mutation has
// been applied first, so completion order can never roll the snapshot back.
//
// All state belongs to one session token. When a different token shows up the
// snapshot, quotes, in-flight calls and cache slot are dropped first.
type Engine struct {
	assets   domain.AssetStore
	market   domain.MarketDataProvider
	cache    domain.SnapshotCache
	notifier notifications.Notifier
	events   *events.Manager
	policy   FallbackPolicy
	now      func() time.Time
	log      zerolog.Logger

	mu         sync.Mutex
	owner      string
	current    *domain.PortfolioSnapshot
	lastQuotes domain.PriceQuote
	issuedSeq  uint64
	appliedSeq uint64
	inflight   map[string]*refreshCall
}

// NewEngine creates a valuation engine. notifier and eventManager may be nil.
func NewEngine(
	assets domain.AssetStore,
	market domain.MarketDataProvider,
	cache domain.SnapshotCache,
	notifier notifications.Notifier,
	eventManager *events.Manager,
	policy FallbackPolicy,
	log zerolog.Logger,
) *Engine {
	if policy == "" {
		policy = FallbackBuyPrice
	}
	return &Engine{
		assets:     assets,
		market:     market,
		cache:      cache,
		notifier:   notifier,
		events:     eventManager,
		policy:     policy,
		now:        time.Now,
		log:        log.With().Str("component", "valuation_engine").Logger(),
		lastQuotes: domain.PriceQuote{},
		inflight:   make(map[string]*refreshCall),
	}
}

// Policy returns the configured fallback policy
func (e *Engine) Policy() FallbackPolicy {
	return e.policy
}

// Current returns a copy of the last applied snapshot, or nil before the first one.
func (e *Engine) Current() *domain.PortfolioSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// SessionChanged is subscribed to the session controller. Logging out or
// switching accounts discards the previous session's state. Restoring a token
// at startup keeps the cached snapshot.
func (e *Engine) SessionChanged(s domain.Session) {
	e.mu.Lock()
	reset := e.claimLocked(s.Token)
	e.mu.Unlock()

	if reset {
		e.resetDone()
	}
}

// LoadCachedSnapshot reads the local cache slot. A missing or undecodable slot is a miss.
func (e *Engine) LoadCachedSnapshot(ctx context.Context) (*domain.PortfolioSnapshot, bool) {
	snapshot, err := e.cache.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			e.log.Debug().Err(err).Msg("Snapshot cache miss")
		} else {
			e.log.Warn().Err(err).Msg("Failed to read snapshot cache")
		}
		return nil, false
	}

	// Seed previous prices so a failed first refresh can still use them
	e.mu.Lock()
	if len(e.lastQuotes) == 0 {
		e.lastQuotes = quotesFromSnapshot(snapshot)
	}
	e.mu.Unlock()

	return snapshot, true
}

// FetchPositions lists the session's positions. On any failure other than an
// AuthError it returns an empty list together with a *domain.UpstreamError and
// raises a notification.
func (e *Engine) FetchPositions(ctx context.Context, s domain.Session) ([]domain.Position, error) {
	if !s.Authenticated() {
		return nil, &domain.AuthError{Op: "fetch positions", Err: domain.ErrNoToken}
	}

	positions, err := e.assets.ListAssets(ctx, s.Token)
	if err != nil {
		if domain.IsAuthError(err) {
			return nil, err
		}
		e.notify(notifications.IDFetchAssets, notifications.KindError, "Failed to load your assets")
		e.events.EmitError(moduleName, err, map[string]interface{}{"operation": "fetch_positions"})
		return []domain.Position{}, asUpstream(err, "assets", "list")
	}

	normalized := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		normalized = append(normalized, p.Normalize())
	}
	return normalized, nil
}

// FetchPrices quotes all keys in a single batched request.
// Callers keep their previous prices when it fails.
func (e *Engine) FetchPrices(ctx context.Context, coinKeys []string) (domain.PriceQuote, error) {
	keys := domain.NormalizeKeys(coinKeys)
	if len(keys) == 0 {
		return domain.PriceQuote{}, nil
	}

	quotes, err := e.market.SimplePrices(ctx, keys)
	if err != nil {
		e.notify(notifications.IDFetchPrices, notifications.KindError, "Failed to fetch live prices, showing last known values")
		e.events.EmitError(moduleName, err, map[string]interface{}{"operation": "fetch_prices", "coins": len(keys)})
		return nil, asUpstream(err, "market", "simple price")
	}

	if missing := len(keys) - len(quotes); missing > 0 {
		e.log.Warn().Int("missing", missing).Msg("Some coins have no price quote")
	}
	e.events.Emit(moduleName, &events.PricesUpdatedData{Requested: len(keys), Quoted: len(quotes)})

	return quotes, nil
}

// Refresh recomputes the portfolio. A refresh already in flight for the same
// token is joined instead of issuing duplicate network calls.
func (e *Engine) Refresh(ctx context.Context, s domain.Session) (*domain.PortfolioSnapshot, error) {
	if !s.Authenticated() {
		return nil, &domain.AuthError{Op: "refresh", Err: domain.ErrNoToken}
	}

	e.mu.Lock()
	if call, ok := e.inflight[s.Token]; ok {
		e.mu.Unlock()
		metrics.RefreshesTotal.WithLabelValues("joined").Inc()
		return e.wait(ctx, call)
	}
	call, reset := e.issueLocked(s.Token)
	e.mu.Unlock()
	if reset {
		e.resetDone()
	}

	e.run(ctx, s, call)
	return call.snapshot.Clone(), call.err
}

// ForceRefresh always issues a new refresh, superseding any in flight.
func (e *Engine) ForceRefresh(ctx context.Context, s domain.Session) (*domain.PortfolioSnapshot, error) {
	if !s.Authenticated() {
		return nil, &domain.AuthError{Op: "refresh", Err: domain.ErrNoToken}
	}

	e.mu.Lock()
	call, reset := e.issueLocked(s.Token)
	e.mu.Unlock()
	if reset {
		e.resetDone()
	}

	e.run(ctx, s, call)
	return call.snapshot.Clone(), call.err
}

// ApplyMutation applies an add or remove to snapshot, makes the result the
// current snapshot and clears the cache slot so the next load re-derives it.
func (e *Engine) ApplyMutation(ctx context.Context, kind MutationKind, snapshot *domain.PortfolioSnapshot, position domain.Position) *domain.PortfolioSnapshot {
	next, _ := e.commit(ctx, kind, position, "", func(*domain.PortfolioSnapshot) *domain.PortfolioSnapshot {
		return applyMutation(kind, snapshot, position, e.now())
	})
	return next
}

// AddPosition creates a position in the asset store, then applies it to the
// current snapshot. On failure the snapshot is unchanged.
func (e *Engine) AddPosition(ctx context.Context, s domain.Session, p domain.NewPosition) (*domain.PortfolioSnapshot, error) {
	if !s.Authenticated() {
		return nil, &domain.AuthError{Op: "add position", Err: domain.ErrNoToken}
	}

	created, err := e.assets.CreateAsset(ctx, s.Token, p)
	if err != nil {
		if !domain.IsAuthError(err) {
			e.notify(notifications.IDAddAsset, notifications.KindError, "Failed to add asset")
		}
		return e.Current(), err
	}

	snapshot, err := e.mutateCurrent(ctx, s, MutationAdd, *created)
	if err != nil {
		return snapshot, err
	}

	e.notify(notifications.IDAddAsset, notifications.KindSuccess, fmt.Sprintf("%s added to portfolio", created.Symbol))
	e.events.Emit(moduleName, &events.PositionChangedData{
		Type:     events.PositionAdded,
		ID:       created.ID,
		CoinKey:  created.CoinKey,
		Symbol:   created.Symbol,
		Quantity: created.Quantity,
	})
	return snapshot, nil
}

// RemovePosition deletes a position from the asset store, then removes it from
// the current snapshot. On failure the snapshot is unchanged.
func (e *Engine) RemovePosition(ctx context.Context, s domain.Session, id string) (*domain.PortfolioSnapshot, error) {
	if !s.Authenticated() {
		return nil, &domain.AuthError{Op: "remove position", Err: domain.ErrNoToken}
	}

	if err := e.assets.DeleteAsset(ctx, s.Token, id); err != nil {
		if !domain.IsAuthError(err) {
			e.notify(notifications.IDRemoveAsset, notifications.KindError, "Failed to remove asset")
		}
		return e.Current(), err
	}

	removed, _ := e.Current().Find(id)
	snapshot, err := e.mutateCurrent(ctx, s, MutationRemove, domain.Position{ID: id})
	if err != nil {
		return snapshot, err
	}

	e.notify(notifications.IDRemoveAsset, notifications.KindSuccess, "Asset removed")
	e.events.Emit(moduleName, &events.PositionChangedData{
		Type:     events.PositionRemoved,
		ID:       id,
		CoinKey:  removed.CoinKey,
		Symbol:   removed.Symbol,
		Quantity: removed.Quantity,
	})
	return snapshot, nil
}

// RemoveByCoin removes the position holding coinKey.
func (e *Engine) RemoveByCoin(ctx context.Context, s domain.Session, coinKey string) (*domain.PortfolioSnapshot, error) {
	if !s.Authenticated() {
		return nil, &domain.AuthError{Op: "remove position", Err: domain.ErrNoToken}
	}

	key := strings.ToLower(strings.TrimSpace(coinKey))
	if key == "" {
		return e.Current(), fmt.Errorf("%w: empty coin key", ErrPositionNotFound)
	}

	id := ""
	if found, ok := e.Current().FindByCoin(key); ok {
		id = found.ID
	} else {
		// Not in the applied snapshot, ask the store directly
		positions, err := e.FetchPositions(ctx, s)
		if err != nil {
			return e.Current(), err
		}
		for _, p := range positions {
			if p.CoinKey == key {
				id = p.ID
				break
			}
		}
	}
	if id == "" {
		return e.Current(), fmt.Errorf("%w: %s", ErrPositionNotFound, key)
	}

	return e.RemovePosition(ctx, s, id)
}

// issueLocked claims the next sequence number and registers the call as the
// one later Refresh calls join. It reports whether token took over the engine
// from another session. e.mu must be held.
func (e *Engine) issueLocked(token string) (*refreshCall, bool) {
	reset := e.claimLocked(token)
	e.issuedSeq++
	call := &refreshCall{seq: e.issuedSeq, token: token, done: make(chan struct{})}
	e.inflight[token] = call
	return call, reset
}

// claimLocked makes token the owner, resetting when it replaces another
// session or when the session ends. e.mu must be held.
func (e *Engine) claimLocked(token string) bool {
	reset := token == "" || (e.owner != "" && e.owner != token)
	if reset {
		e.resetLocked()
	}
	e.owner = token
	return reset
}

// resetLocked drops all session state. Claiming a sequence number makes every
// refresh still in flight land as discarded. e.mu must be held.
func (e *Engine) resetLocked() {
	e.current = nil
	e.lastQuotes = domain.PriceQuote{}
	e.inflight = make(map[string]*refreshCall)
	e.issuedSeq++
	e.appliedSeq = e.issuedSeq
	if err := e.cache.Clear(context.Background()); err != nil {
		e.log.Warn().Err(err).Msg("Failed to clear snapshot cache")
	}
}

func (e *Engine) resetDone() {
	metrics.CacheInvalidationsTotal.Inc()
	e.log.Info().Msg("Session changed, portfolio state cleared")
	e.events.Emit(moduleName, &events.CacheInvalidatedData{Reason: "session_changed"})
}

func (e *Engine) wait(ctx context.Context, call *refreshCall) (*domain.PortfolioSnapshot, error) {
	select {
	case <-call.done:
		return call.snapshot.Clone(), call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run performs one issued refresh and records its outcome on call.
func (e *Engine) run(ctx context.Context, s domain.Session, call *refreshCall) {
	start := time.Now()
	defer func() {
		e.mu.Lock()
		if e.inflight[s.Token] == call {
			delete(e.inflight, s.Token)
		}
		e.mu.Unlock()
		close(call.done)
		metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	}()

	log := e.log.With().Uint64("seq", call.seq).Logger()

	positions, err := e.FetchPositions(ctx, s)
	if err != nil {
		if domain.IsAuthError(err) {
			metrics.RefreshesTotal.WithLabelValues("auth_error").Inc()
			call.err = err
			return
		}
		// Degrade to the best snapshot we already have
		metrics.RefreshesTotal.WithLabelValues("degraded").Inc()
		log.Warn().Err(err).Msg("Position fetch failed, keeping last known portfolio")
		call.snapshot = e.bestKnown(ctx, s.Token)
		return
	}

	var snapshot *domain.PortfolioSnapshot
	var fresh domain.PriceQuote
	if len(positions) == 0 {
		snapshot = domain.EmptySnapshot(e.now())
	} else {
		// apply writes into lastQuotes, so work on a copy
		e.mu.Lock()
		previous := maps.Clone(e.lastQuotes)
		e.mu.Unlock()

		quotes, err := e.FetchPrices(ctx, domain.CoinKeys(positions))
		fallback := e.policy.Resolve(previous)
		if err != nil {
			log.Warn().Err(err).Msg("Price fetch failed, using previous prices")
			quotes = domain.PriceQuote{}
			fallback = PreviousFallback(previous, fallback)
		} else {
			fresh = quotes
		}

		enriched, total := ComputeValuation(positions, quotes, fallback)
		snapshot = &domain.PortfolioSnapshot{
			Positions:  enriched,
			TotalValue: total,
			ComputedAt: e.now(),
		}
	}

	call.snapshot = e.apply(ctx, call, snapshot, fresh)
}

// apply installs snapshot if the call is newer than the last applied change,
// and otherwise returns the snapshot that superseded it. A call from a session
// that no longer owns the engine gets an empty snapshot.
func (e *Engine) apply(ctx context.Context, call *refreshCall, snapshot *domain.PortfolioSnapshot, fresh domain.PriceQuote) *domain.PortfolioSnapshot {
	seq := call.seq
	e.mu.Lock()
	if seq <= e.appliedSeq {
		lastApplied := e.appliedSeq
		current := e.current.Clone()
		if current == nil || e.owner != call.token {
			current = domain.EmptySnapshot(e.now())
		}
		e.mu.Unlock()

		metrics.RefreshesTotal.WithLabelValues("discarded").Inc()
		e.log.Debug().
			Uint64("seq", seq).
			Uint64("last_applied", lastApplied).
			Msg("Discarding superseded refresh result")
		e.events.Emit(moduleName, &events.RefreshDiscardedData{Sequence: seq, LastApplied: lastApplied})
		return current
	}

	e.appliedSeq = seq
	e.current = snapshot.Clone()
	for k, v := range fresh {
		e.lastQuotes[k] = v
	}
	// Written under the lock so the slot always matches the applied snapshot.
	// The write outlives a cancelled request.
	if err := e.cache.Store(context.WithoutCancel(ctx), snapshot); err != nil {
		e.log.Warn().Err(err).Msg("Failed to persist snapshot cache")
	}
	e.mu.Unlock()

	metrics.RefreshesTotal.WithLabelValues("applied").Inc()
	metrics.PortfolioValue.Set(snapshot.TotalValue)
	metrics.PortfolioPositions.Set(float64(len(snapshot.Positions)))
	e.events.Emit(moduleName, &events.PortfolioUpdatedData{
		TotalValue: snapshot.TotalValue,
		Positions:  len(snapshot.Positions),
		Source:     "refresh",
		ComputedAt: snapshot.ComputedAt,
	})

	e.log.Info().
		Uint64("seq", seq).
		Int("positions", len(snapshot.Positions)).
		Float64("total_value", snapshot.TotalValue).
		Msg("Portfolio snapshot applied")

	return snapshot.Clone()
}

// commit claims a sequence number for a mutation, installs the snapshot built
// by mutate from the current one and clears the cache slot. A non-empty token
// requires an applied snapshot owned by that session, otherwise nothing changes
// and commit reports false.
func (e *Engine) commit(ctx context.Context, kind MutationKind, position domain.Position, token string, mutate func(current *domain.PortfolioSnapshot) *domain.PortfolioSnapshot) (*domain.PortfolioSnapshot, bool) {
	e.mu.Lock()
	if token != "" && (e.current == nil || e.owner != token) {
		e.mu.Unlock()
		return nil, false
	}
	next := mutate(e.current)
	e.issuedSeq++
	e.appliedSeq = e.issuedSeq
	e.current = next.Clone()
	if err := e.cache.Clear(context.WithoutCancel(ctx)); err != nil {
		e.log.Warn().Err(err).Msg("Failed to clear snapshot cache")
	}
	e.mu.Unlock()

	metrics.CacheInvalidationsTotal.Inc()
	metrics.PortfolioValue.Set(next.TotalValue)
	metrics.PortfolioPositions.Set(float64(len(next.Positions)))
	e.events.Emit(moduleName, &events.CacheInvalidatedData{Reason: kind.String()})
	e.events.Emit(moduleName, &events.PortfolioUpdatedData{
		TotalValue: next.TotalValue,
		Positions:  len(next.Positions),
		Source:     "mutation",
		ComputedAt: next.ComputedAt,
	})

	e.log.Debug().
		Str("kind", kind.String()).
		Str("id", position.ID).
		Float64("total_value", next.TotalValue).
		Msg("Mutation applied")

	return next, true
}

// mutateCurrent applies a confirmed store change to the current snapshot. With
// no snapshot of this session applied yet there is nothing to patch, so it
// clears the cache and runs a full refresh instead.
func (e *Engine) mutateCurrent(ctx context.Context, s domain.Session, kind MutationKind, position domain.Position) (*domain.PortfolioSnapshot, error) {
	next, ok := e.commit(ctx, kind, position, s.Token, func(current *domain.PortfolioSnapshot) *domain.PortfolioSnapshot {
		return applyMutation(kind, current, position, e.now())
	})
	if ok {
		return next, nil
	}

	if err := e.cache.Clear(context.WithoutCancel(ctx)); err != nil {
		e.log.Warn().Err(err).Msg("Failed to clear snapshot cache")
	}
	metrics.CacheInvalidationsTotal.Inc()
	return e.ForceRefresh(ctx, s)
}

// bestKnown returns the applied snapshot, else the cached one, else an empty
// one. Nothing is returned from a session other than token's.
func (e *Engine) bestKnown(ctx context.Context, token string) *domain.PortfolioSnapshot {
	e.mu.Lock()
	owned := e.owner == token
	current := e.current.Clone()
	e.mu.Unlock()

	if !owned {
		return domain.EmptySnapshot(e.now())
	}
	if current != nil {
		return current
	}
	if cached, ok := e.LoadCachedSnapshot(ctx); ok {
		return cached
	}
	return domain.EmptySnapshot(e.now())
}

func (e *Engine) notify(id notifications.ID, kind notifications.Kind, msg string) {
	if e.notifier != nil {
		e.notifier.Push(id, kind, msg)
	}
}

// asUpstream guarantees err carries a *domain.UpstreamError
func asUpstream(err error, service, op string) error {
	if domain.IsUpstreamError(err) {
		return err
	}
	return &domain.UpstreamError{Service: service, Op: op, Err: err}
}
