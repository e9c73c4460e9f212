// Package notifications provides the owned, duplicate-suppressing queue of
// user-facing notices raised by the valuation engine and session controller.
package notifications

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/metrics"
)

// DefaultTTL is how long a notification stays active unless dismissed
const DefaultTTL = 4 * time.Second

// ID identifies a notification source. At most one entry per ID is active.
type ID string

const (
	IDFetchAssets  ID = "fetch-assets-error"
	IDFetchPrices  ID = "fetch-prices-error"
	IDPricesLoaded ID = "prices-loaded"
	IDAddAsset     ID = "add-asset"
	IDRemoveAsset  ID = "remove-asset"
	IDLogin        ID = "login"
	IDSignup       ID = "signup"
	IDLogout       ID = "logout"
	IDSession      ID = "session-expired"
	IDMarkets      ID = "fetch-coins-error"
)

// Kind is the notification severity
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindLoading Kind = "loading"
)

// Notification is one queued notice
type Notification struct {
	InstanceID string    `json:"instanceId"`
	ID         ID        `json:"id"`
	Kind       Kind      `json:"kind"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Notifier is the narrow interface components raise notices through
type Notifier interface {
	Push(id ID, kind Kind, message string) bool
}

// Queue holds active notifications. It is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	entries  []Notification
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
	listener func(Notification)
}

// NewQueue creates a queue whose entries expire after ttl (DefaultTTL if <= 0).
func NewQueue(ttl time.Duration, log zerolog.Logger) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{
		ttl: ttl,
		now: time.Now,
		log: log.With().Str("component", "notifications").Logger(),
	}
}

// OnPush registers fn to receive every accepted notification.
// fn is called outside the queue lock.
func (q *Queue) OnPush(fn func(Notification)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listener = fn
}

// Push queues a notification. It returns false, and does nothing, when an
// entry with the same ID is still active.
func (q *Queue) Push(id ID, kind Kind, message string) bool {
	q.mu.Lock()
	now := q.now()
	q.evictLocked(now)

	for _, e := range q.entries {
		if e.ID == id {
			q.mu.Unlock()
			metrics.NotificationsTotal.WithLabelValues(string(kind), "true").Inc()
			q.log.Debug().Str("id", string(id)).Msg("Duplicate notification suppressed")
			return false
		}
	}

	n := Notification{
		InstanceID: uuid.New().String(),
		ID:         id,
		Kind:       kind,
		Message:    message,
		CreatedAt:  now,
		ExpiresAt:  now.Add(q.ttl),
	}
	q.entries = append(q.entries, n)
	listener := q.listener
	q.mu.Unlock()

	metrics.NotificationsTotal.WithLabelValues(string(kind), "false").Inc()

	event := q.log.Info()
	if kind == KindError {
		event = q.log.Warn()
	}
	event.Str("id", string(id)).Str("kind", string(kind)).Msg(message)

	if listener != nil {
		listener(n)
	}
	return true
}

// Success queues a success notice
func (q *Queue) Success(id ID, message string) bool { return q.Push(id, KindSuccess, message) }

// Error queues an error notice
func (q *Queue) Error(id ID, message string) bool { return q.Push(id, KindError, message) }

// Loading queues a progress notice
func (q *Queue) Loading(id ID, message string) bool { return q.Push(id, KindLoading, message) }

// Active returns unexpired notifications, oldest first.
func (q *Queue) Active() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.evictLocked(q.now())
	out := make([]Notification, len(q.entries))
	copy(out, q.entries)
	return out
}

// Dismiss removes the active entry with id, allowing it to be raised again.
func (q *Queue) Dismiss(id ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every entry.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

func (q *Queue) evictLocked(now time.Time) {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if now.Before(e.ExpiresAt) {
			kept = append(kept, e)
		}
	}
	// Zero the tail so evicted entries can be collected
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = Notification{}
	}
	q.entries = kept
}
