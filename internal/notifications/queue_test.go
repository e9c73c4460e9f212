package notifications

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestQueue() (*Queue, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueue(DefaultTTL, zerolog.Nop())
	q.now = clock.Now
	return q, clock
}

func TestNewQueue_DefaultTTL(t *testing.T) {
	q := NewQueue(0, zerolog.Nop())
	assert.Equal(t, DefaultTTL, q.ttl)
}

func TestPush_SetsExpiry(t *testing.T) {
	q, clock := newTestQueue()

	require.True(t, q.Error(IDFetchPrices, "Failed to fetch prices"))

	active := q.Active()
	require.Len(t, active, 1)
	assert.Equal(t, IDFetchPrices, active[0].ID)
	assert.Equal(t, KindError, active[0].Kind)
	assert.Equal(t, clock.Now().Add(DefaultTTL), active[0].ExpiresAt)
	assert.NotEmpty(t, active[0].InstanceID)
}

func TestPush_SuppressesDuplicateWhileActive(t *testing.T) {
	q, _ := newTestQueue()

	assert.True(t, q.Error(IDFetchAssets, "first"))
	assert.False(t, q.Error(IDFetchAssets, "second"))

	active := q.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "first", active[0].Message)
}

func TestPush_AllowedAgainAfterExpiry(t *testing.T) {
	q, clock := newTestQueue()

	require.True(t, q.Error(IDFetchAssets, "first"))
	clock.Advance(DefaultTTL)

	assert.Empty(t, q.Active())
	assert.True(t, q.Error(IDFetchAssets, "second"))
}

func TestPush_DifferentIDsCoexist(t *testing.T) {
	q, _ := newTestQueue()

	q.Success(IDAddAsset, "added")
	q.Loading(IDLogin, "Logging in...")
	q.Error(IDFetchPrices, "failed")

	active := q.Active()
	require.Len(t, active, 3)
	assert.Equal(t, IDAddAsset, active[0].ID)
	assert.Equal(t, KindLoading, active[1].Kind)
}

func TestDismiss(t *testing.T) {
	q, _ := newTestQueue()

	q.Loading(IDLogin, "Logging in...")
	assert.True(t, q.Dismiss(IDLogin))
	assert.False(t, q.Dismiss(IDLogin))
	assert.Empty(t, q.Active())

	assert.True(t, q.Success(IDLogin, "Login successful!"))
}

func TestClear(t *testing.T) {
	q, _ := newTestQueue()

	q.Success(IDAddAsset, "a")
	q.Success(IDRemoveAsset, "b")
	q.Clear()

	assert.Empty(t, q.Active())
	assert.True(t, q.Success(IDAddAsset, "a"))
}

func TestOnPush_ReceivesAcceptedOnly(t *testing.T) {
	q, _ := newTestQueue()

	var got []Notification
	q.OnPush(func(n Notification) { got = append(got, n) })

	q.Error(IDFetchPrices, "x")
	q.Error(IDFetchPrices, "x")

	require.Len(t, got, 1)
	assert.Equal(t, IDFetchPrices, got[0].ID)
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q, _ := newTestQueue()

	var wg sync.WaitGroup
	accepted := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted <- q.Error(IDFetchAssets, "boom")
		}()
	}
	wg.Wait()
	close(accepted)

	count := 0
	for ok := range accepted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, q.Active(), 1)
}
