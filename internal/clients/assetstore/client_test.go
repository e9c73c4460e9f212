package assetstore

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

func TestListAssets_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/assets", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"_id":"a1","name":"Bitcoin","symbol":"btc","quantity":0.5,"buyPrice":20000},
			{"id":"a2","name":"ethereum","symbol":"ETH","quantity":2,"buyPrice":1500}
		]`))
	}))
	defer server.Close()

	positions, err := newTestClient(server.URL).ListAssets(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, domain.Position{ID: "a1", CoinKey: "bitcoin", Symbol: "BTC", Quantity: 0.5, BuyPrice: 20000}, positions[0])
	assert.Equal(t, "a2", positions[1].ID)
	assert.Equal(t, "ethereum", positions[1].CoinKey)
}

func TestListAssets_EmptyList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	positions, err := newTestClient(server.URL).ListAssets(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestListAssets_NoTokenIsAuthError(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ListAssets(context.Background(), "")
	assert.True(t, domain.IsAuthError(err))
	assert.ErrorIs(t, err, domain.ErrNoToken)
	assert.False(t, called)
}

func TestListAssets_RejectedToken(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		_, err := newTestClient(server.URL).ListAssets(context.Background(), "expired")
		assert.True(t, domain.IsAuthError(err), "status %d", status)

		server.Close()
	}
}

func TestListAssets_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"db down"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ListAssets(context.Background(), "tok")

	var upErr *domain.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "assets", upErr.Service)
	assert.Equal(t, http.StatusInternalServerError, upErr.StatusCode)
	assert.Contains(t, err.Error(), "db down")
}

func TestListAssets_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>`},
		{"object instead of list", `{"message":"ok"}`},
		{"missing id", `[{"name":"bitcoin","symbol":"BTC","quantity":1,"buyPrice":1}]`},
		{"missing name", `[{"_id":"a1","symbol":"BTC","quantity":1,"buyPrice":1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).ListAssets(context.Background(), "tok")
			assert.True(t, domain.IsUpstreamError(err))
		})
	}
}

func TestListAssets_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).ListAssets(context.Background(), "tok")
	assert.True(t, domain.IsUpstreamError(err))
}

func TestCreateAsset_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/assets", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bitcoin", body["name"])
		assert.Equal(t, "BTC", body["symbol"])
		assert.Equal(t, 1.0, body["quantity"])
		assert.Equal(t, 30000.0, body["buyPrice"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"_id":"new1","name":"bitcoin","symbol":"BTC","quantity":1,"buyPrice":30000}`))
	}))
	defer server.Close()

	created, err := newTestClient(server.URL).CreateAsset(context.Background(), "tok", domain.NewPosition{
		CoinKey:  "Bitcoin",
		Symbol:   "btc",
		Quantity: 1,
		BuyPrice: 30000,
	})
	require.NoError(t, err)
	assert.Equal(t, "new1", created.ID)
	assert.Equal(t, "bitcoin", created.CoinKey)
}

func TestCreateAsset_InvalidPayloadNotSent(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateAsset(context.Background(), "tok", domain.NewPosition{
		CoinKey:  "bitcoin",
		Symbol:   "BTC",
		Quantity: 0,
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestDeleteAsset_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/assets/a1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"message":"Asset deleted"}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).DeleteAsset(context.Background(), "tok", "a1")
	assert.NoError(t, err)
}

func TestDeleteAsset_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := newTestClient(server.URL).DeleteAsset(context.Background(), "tok", "missing")

	var upErr *domain.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusNotFound, upErr.StatusCode)
}

func TestDeleteAsset_EmptyID(t *testing.T) {
	err := newTestClient("http://unused").DeleteAsset(context.Background(), "tok", " ")
	assert.Error(t, err)
	assert.False(t, domain.IsUpstreamError(err))
}
