package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptovault/internal/domain"
)

func newTestClient(url string) *Client {
	return NewClient(url, 5*time.Second, zerolog.Nop())
}

func TestLogin_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body["email"])
		assert.Equal(t, "secret", body["password"])
		_, hasName := body["name"]
		assert.False(t, hasName)

		w.Write([]byte(`{"token":"tok-123"}`))
	}))
	defer server.Close()

	token, err := newTestClient(server.URL).Login(context.Background(), domain.Credentials{
		Name:     "ignored",
		Email:    "a@b.c",
		Password: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid credentials"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "bad"})
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
	assert.Contains(t, err.Error(), "Invalid credentials")
}

func TestLogin_ServerErrorIsUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "x"})
	assert.False(t, domain.IsAuthError(err))
	assert.True(t, domain.IsUpstreamError(err))
}

func TestLogin_MissingFields(t *testing.T) {
	_, err := newTestClient("http://unused").Login(context.Background(), domain.Credentials{Email: "a@b.c"})
	assert.Error(t, err)
}

func TestLogin_SuccessWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "x"})
	assert.True(t, domain.IsUpstreamError(err))
}

func TestSignup_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/signup", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ada", body["name"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"token":"tok-new"}`))
	}))
	defer server.Close()

	token, err := newTestClient(server.URL).Signup(context.Background(), domain.Credentials{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-new", token)
}

func TestSignup_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"User already exists"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Signup(context.Background(), domain.Credentials{Email: "a@b.c", Password: "x"})

	var upErr *domain.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusBadRequest, upErr.StatusCode)
	assert.Contains(t, err.Error(), "User already exists")
}

func TestProfile_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user/profile", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"_id":"u1","name":"Ada","email":"ada@example.com"}`))
	}))
	defer server.Close()

	profile, err := newTestClient(server.URL).Profile(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, &domain.Profile{ID: "u1", Name: "Ada", Email: "ada@example.com"}, profile)
}

func TestProfile_RejectedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Profile(context.Background(), "expired")
	assert.True(t, domain.IsAuthError(err))
}

func TestProfile_NoToken(t *testing.T) {
	_, err := newTestClient("http://unused").Profile(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrNoToken)
}
