package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/events"
	"github.com/aristath/cryptovault/internal/modules/coins"
	"github.com/aristath/cryptovault/internal/modules/valuation"
	"github.com/aristath/cryptovault/internal/notifications"
	"github.com/aristath/cryptovault/internal/scheduler"
	"github.com/aristath/cryptovault/internal/session"
	testingpkg "github.com/aristath/cryptovault/internal/testing"
)

type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run() error {
	j.runs++
	return j.err
}

type testEnv struct {
	server   *Server
	auth     *testingpkg.MockAuthService
	tokens   *testingpkg.MemoryTokenStore
	assets   *testingpkg.MockAssetStore
	engine   *valuation.Engine
	sessions *session.Controller
	queue    *notifications.Queue
	manager  *events.Manager
}

func newTestEnv(t *testing.T, jobs ...scheduler.Job) *testEnv {
	t.Helper()
	log := zerolog.Nop()

	env := &testEnv{
		auth:   &testingpkg.MockAuthService{},
		tokens: &testingpkg.MemoryTokenStore{},
		assets: testingpkg.NewMockAssetStore(testingpkg.NewPositionFixtures()...),
		queue:  notifications.NewQueue(time.Minute, log),
	}
	env.manager = events.NewManager(events.NewBus(log), log)

	market := testingpkg.NewMockMarketData(testingpkg.NewQuoteFixtures())
	market.SetMarkets(testingpkg.NewMarketFixtures())

	env.sessions = session.NewController(env.auth, env.tokens, env.queue, env.manager, log)
	env.engine = valuation.NewEngine(env.assets, market, testingpkg.NewMemorySnapshotCache(nil), env.queue, env.manager, valuation.FallbackBuyPrice, log)

	env.server = New(Config{
		Log:           log,
		DB:            testingpkg.NewTestDB(t, "local"),
		Sessions:      env.sessions,
		Engine:        env.engine,
		Coins:         coins.NewService(market, env.engine, env.queue, log),
		Notifications: env.queue,
		EventManager:  env.manager,
		Jobs:          jobs,
		Port:          0,
		DevMode:       true,
	})
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	require.NoError(t, e.tokens.SaveToken(context.Background(), "tok"))
	_, err := e.sessions.Restore(context.Background())
	require.NoError(t, err)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do("GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do("GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestLogin_StartsRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.auth.On("Login", mock.Anything, domain.Credentials{Email: "a@b.c", Password: "pw"}).Return("tok", nil)

	rec := env.do("POST", "/api/auth/login", `{"email":" a@b.c ","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "a@b.c", body["email"])
	assert.NotContains(t, rec.Body.String(), "tok\"")

	assert.Eventually(t, func() bool {
		return env.engine.Current() != nil
	}, time.Second, 10*time.Millisecond)
	assert.InDelta(t, 43500, env.engine.Current().TotalValue, 0.001)

	token, err := env.tokens.LoadToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestLogin_Rejected(t *testing.T) {
	env := newTestEnv(t)
	rejected := &domain.AuthError{Op: "login", Err: &domain.UpstreamError{
		Service: "auth", Op: "login", StatusCode: 401, Err: errors.New("Invalid credentials"),
	}}
	env.auth.On("Login", mock.Anything, mock.Anything).Return("", rejected)

	rec := env.do("POST", "/api/auth/login", `{"email":"a@b.c","password":"bad"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decode(t, rec)["error"])
	assert.False(t, env.sessions.Current().Authenticated())
}

func TestLogin_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do("POST", "/api/auth/login", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do("POST", "/api/auth/login", `{"email":"a@b.c"}`).Code)
	env.auth.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestSignup_DoesNotLogIn(t *testing.T) {
	env := newTestEnv(t)
	creds := domain.Credentials{Name: "Ann", Email: "a@b.c", Password: "pw"}
	env.auth.On("Signup", mock.Anything, creds).Return("new-token", nil)

	rec := env.do("POST", "/api/auth/signup", `{"name":"Ann","email":"a@b.c","password":"pw"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, decode(t, rec)["created"])
	assert.False(t, env.sessions.Current().Authenticated())
}

func TestSignup_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.auth.On("Signup", mock.Anything, mock.Anything).Return("", &domain.UpstreamError{
		Service: "auth", Op: "signup", StatusCode: 400, Err: errors.New("User already exists"),
	})

	assert.Equal(t, http.StatusBadRequest, env.do("POST", "/api/auth/signup", `{"email":"a@b.c","password":"pw"}`).Code)

	rec := env.do("POST", "/api/auth/signup", `{"name":"Ann","email":"a@b.c","password":"pw"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", decode(t, rec)["error"])
}

func TestLogoutAndSession(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.do("GET", "/api/auth/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["authenticated"])
	assert.NotContains(t, rec.Body.String(), "tok")

	rec = env.do("POST", "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])

	token, err := env.tokens.LoadToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do("GET", "/api/user/profile", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", decode(t, rec)["redirect"])

	env.login(t)
	env.auth.On("Profile", mock.Anything, "tok").Return(&domain.Profile{Name: "Ann", Email: "a@b.c"}, nil)

	rec = env.do("GET", "/api/user/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ann", decode(t, rec)["name"])
	assert.Equal(t, "Ann", env.sessions.Current().Name)
}

func TestPortfolioRoutesMounted(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.do("GET", "/api/portfolio/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 43500, decode(t, rec)["totalValue"], 0.001)

	rec = env.do("GET", "/api/coins/?q=sol", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t)
	env.queue.Error(notifications.IDFetchPrices, "Failed to fetch prices")
	env.queue.Success(notifications.IDLogin, "Login successful!")

	rec := env.do("GET", "/api/notifications/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	assert.Equal(t, http.StatusNoContent, env.do("DELETE", "/api/notifications/"+string(notifications.IDLogin), "").Code)
	assert.Equal(t, http.StatusNotFound, env.do("DELETE", "/api/notifications/"+string(notifications.IDLogin), "").Code)
	assert.Len(t, env.queue.Active(), 1)

	assert.Equal(t, http.StatusNoContent, env.do("DELETE", "/api/notifications/", "").Code)
	assert.Empty(t, env.queue.Active())
}

func TestSystemStatus(t *testing.T) {
	env := newTestEnv(t, &stubJob{name: "portfolio_refresh"})
	env.login(t)
	_, err := env.engine.Refresh(context.Background(), env.sessions.Current())
	require.NoError(t, err)

	rec := env.do("GET", "/api/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.True(t, status.Authenticated)
	assert.Equal(t, "buy_price", status.FallbackPolicy)
	assert.Equal(t, []string{"portfolio_refresh"}, status.Jobs)
	require.NotNil(t, status.Portfolio)
	assert.Equal(t, 3, status.Portfolio.Positions)
	require.NotNil(t, status.Database)
	assert.True(t, status.Database.Reachable)
}

func TestTriggerJob(t *testing.T) {
	ok := &stubJob{name: "local_store_cleanup"}
	failing := &stubJob{name: "portfolio_refresh", err: errors.New("boom")}
	env := newTestEnv(t, ok, failing)

	rec := env.do("POST", "/api/system/jobs/local_store_cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ok.runs)

	rec = env.do("POST", "/api/system/jobs/portfolio_refresh", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "boom", decode(t, rec)["message"])

	assert.Equal(t, http.StatusNotFound, env.do("POST", "/api/system/jobs/unknown", "").Code)
}
