package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/aristath/cryptovault/internal/events"
)

func newStreamServer(t *testing.T) (*httptest.Server, *events.Manager) {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())

	handler := NewEventsStreamHandler(bus, zerolog.Nop())
	router := chi.NewRouter()
	router.Get("/stream", handler.ServeHTTP)
	router.Get("/ws", handler.ServeWebSocket)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, manager
}

func readSSE(t *testing.T, reader *bufio.Reader) map[string]interface{} {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &msg))
		return msg
	}
}

func TestParseTypes(t *testing.T) {
	assert.Equal(t, events.AllTypes, parseTypes(""))
	assert.Equal(t,
		[]events.EventType{events.PortfolioUpdated, events.SessionChanged},
		parseTypes("PORTFOLIO_UPDATED, SESSION_CHANGED,,PORTFOLIO_UPDATED"))
}

func TestEventsStream_SSE(t *testing.T) {
	srv, manager := newStreamServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream?types=PORTFOLIO_UPDATED", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, "connected", readSSE(t, reader)["type"])

	// Filtered out
	manager.Emit("session", &events.SessionChangedData{Authenticated: true})
	manager.Emit("valuation", &events.PortfolioUpdatedData{TotalValue: 43500, Positions: 3, Source: "refresh"})

	msg := readSSE(t, reader)
	assert.Equal(t, string(events.PortfolioUpdated), msg["type"])
	assert.Equal(t, "valuation", msg["module"])
	data := msg["data"].(map[string]interface{})
	assert.InDelta(t, 43500, data["total_value"], 0.001)

	cancel()
	bus := manager.Bus()
	assert.Eventually(t, func() bool {
		return bus.SubscriberCount(events.PortfolioUpdated) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestEventsStream_WebSocket(t *testing.T) {
	srv, manager := newStreamServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)

	read := func() map[string]interface{} {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	assert.Equal(t, "connected", read()["type"])

	manager.Emit("valuation", &events.CacheInvalidatedData{Reason: "add"})
	msg := read()
	assert.Equal(t, string(events.CacheInvalidated), msg["type"])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	bus := manager.Bus()
	assert.Eventually(t, func() bool {
		return bus.SubscriberCount(events.CacheInvalidated) == 0
	}, time.Second, 10*time.Millisecond)
}
