package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/modules/valuation"
	testingpkg "github.com/aristath/cryptovault/internal/testing"
)

type fakeSessions struct {
	session domain.Session
	expired int
}

func (f *fakeSessions) Current() domain.Session { return f.session }

func (f *fakeSessions) Expire(ctx context.Context) {
	f.expired++
	f.session = domain.Session{}
}

type fixture struct {
	assets   *testingpkg.MockAssetStore
	market   *testingpkg.MockMarketData
	cache    *testingpkg.MemorySnapshotCache
	engine   *valuation.Engine
	sessions *fakeSessions
	router   chi.Router
}

func newFixture(token string) *fixture {
	f := &fixture{
		assets:   testingpkg.NewMockAssetStore(testingpkg.NewPositionFixtures()...),
		market:   testingpkg.NewMockMarketData(testingpkg.NewQuoteFixtures()),
		cache:    testingpkg.NewMemorySnapshotCache(nil),
		sessions: &fakeSessions{session: domain.Session{Token: token}},
	}
	f.engine = valuation.NewEngine(f.assets, f.market, f.cache, nil, nil, valuation.FallbackBuyPrice, zerolog.Nop())
	f.router = chi.NewRouter()
	NewHandler(f.engine, f.sessions, zerolog.Nop()).RegisterRoutes(f.router)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodePortfolio(t *testing.T, rec *httptest.ResponseRecorder) portfolioResponse {
	t.Helper()
	var resp portfolioResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegisterRoutes(t *testing.T) {
	f := newFixture("tok")

	testCases := []struct {
		method string
		path   string
		name   string
	}{
		{"GET", "/portfolio/", "GetPortfolio"},
		{"POST", "/portfolio/refresh", "Refresh"},
		{"POST", "/portfolio/positions", "AddPosition"},
		{"DELETE", "/portfolio/positions/pos-btc", "RemovePosition"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(tc.method, tc.path, "")
			assert.NotEqual(t, http.StatusNotFound, rec.Code, "Route %s %s should be registered", tc.method, tc.path)
		})
	}
}

func TestGetPortfolio_RefreshesWhenNothingKnown(t *testing.T) {
	f := newFixture("tok")

	rec := f.do("GET", "/portfolio/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodePortfolio(t, rec)
	assert.Equal(t, "refresh", resp.Source)
	assert.Equal(t, 43500.0, resp.TotalValue)
	assert.Equal(t, "$43,500.00", resp.TotalDisplay)
	require.Len(t, resp.Positions, 3)
	assert.Equal(t, "BTC", resp.Positions[0].Symbol)
	assert.Equal(t, "$30,000.00", resp.Positions[0].Display.CurrentValue)
}

func TestGetPortfolio_ServesCacheThenCurrent(t *testing.T) {
	f := newFixture("tok")
	require.NoError(t, f.cache.Store(context.Background(), &domain.PortfolioSnapshot{
		Positions:  []domain.EnrichedPosition{},
		TotalValue: 7,
	}))

	resp := decodePortfolio(t, f.do("GET", "/portfolio/", ""))
	assert.Equal(t, "cache", resp.Source)
	assert.Equal(t, 7.0, resp.TotalValue)
	assert.Equal(t, 0, f.market.Calls())

	_, err := f.engine.Refresh(context.Background(), f.sessions.Current())
	require.NoError(t, err)

	resp = decodePortfolio(t, f.do("GET", "/portfolio/", ""))
	assert.Equal(t, "current", resp.Source)
	assert.Equal(t, 43500.0, resp.TotalValue)
}

func TestGetPortfolio_WithoutSessionRedirects(t *testing.T) {
	f := newFixture("")

	rec := f.do("GET", "/portfolio/", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/login", body["redirect"])
	assert.Equal(t, 0, f.assets.ListCalls)
}

func TestRefresh_RejectedTokenExpiresSession(t *testing.T) {
	f := newFixture("tok")
	f.assets.SetError(&domain.AuthError{Op: "assets list"})

	rec := f.do("POST", "/portfolio/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, f.sessions.expired)
	assert.False(t, f.sessions.Current().Authenticated())
}

func TestAddPosition(t *testing.T) {
	f := newFixture("tok")
	_, err := f.engine.Refresh(context.Background(), f.sessions.Current())
	require.NoError(t, err)

	rec := f.do("POST", "/portfolio/positions", `{"name":"Cardano","symbol":"ada","quantity":100,"buyPrice":0.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodePortfolio(t, rec)
	assert.Equal(t, "mutation", resp.Source)
	require.Len(t, resp.Positions, 4)
	assert.Equal(t, "cardano", resp.Positions[3].CoinKey)
	assert.Equal(t, "ADA", resp.Positions[3].Symbol)
	assert.Equal(t, 43550.0, resp.TotalValue)
}

func TestAddPosition_InvalidBody(t *testing.T) {
	f := newFixture("tok")

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing coin", `{"symbol":"BTC","quantity":1,"buyPrice":1}`},
		{"zero quantity", `{"name":"bitcoin","symbol":"BTC","quantity":0,"buyPrice":1}`},
		{"negative price", `{"name":"bitcoin","symbol":"BTC","quantity":1,"buyPrice":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do("POST", "/portfolio/positions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Equal(t, 0, f.assets.CreateCalls)
}

func TestAddPosition_StoreFailure(t *testing.T) {
	f := newFixture("tok")
	f.assets.SetError(&domain.UpstreamError{Service: "assets", Op: "create", StatusCode: 500})

	rec := f.do("POST", "/portfolio/positions", `{"name":"bitcoin","symbol":"BTC","quantity":1,"buyPrice":1}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRemovePosition(t *testing.T) {
	f := newFixture("tok")
	_, err := f.engine.Refresh(context.Background(), f.sessions.Current())
	require.NoError(t, err)

	rec := f.do("DELETE", "/portfolio/positions/pos-btc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodePortfolio(t, rec)
	assert.Len(t, resp.Positions, 2)
	assert.Equal(t, 13500.0, resp.TotalValue)
}

func TestRemovePosition_Unknown(t *testing.T) {
	f := newFixture("tok")

	rec := f.do("DELETE", "/portfolio/positions/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
