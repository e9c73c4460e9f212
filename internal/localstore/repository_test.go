package localstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSchema mirrors internal/database/schemas/local_schema.sql
const testSchema = `
CREATE TABLE slots (
    scope      TEXT    NOT NULL,
    key        TEXT    NOT NULL,
    data       BLOB    NOT NULL,
    updated_at INTEGER NOT NULL,
    expires_at INTEGER,
    PRIMARY KEY (scope, key)
);
CREATE INDEX idx_slots_expires ON slots(expires_at);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every new connection to :memory: is a fresh database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewRepository(t *testing.T) {
	repo := NewRepository(setupTestDB(t), "default")
	assert.NotNil(t, repo)
	assert.Equal(t, "default", repo.Scope())
}

func TestStore_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, "default")
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, "k", []byte("v1"), 0))
	require.NoError(t, repo.Store(ctx, "k", []byte("v2"), 0))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM slots WHERE key = 'k'").Scan(&count))
	assert.Equal(t, 1, count)

	data, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestStore_ZeroTTLNeverExpires(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, "default")

	require.NoError(t, repo.Store(context.Background(), "k", []byte("v"), 0))

	var expiresAt sql.NullInt64
	require.NoError(t, db.QueryRow("SELECT expires_at FROM slots WHERE key = 'k'").Scan(&expiresAt))
	assert.False(t, expiresAt.Valid)
}

func TestScopesAreIsolated(t *testing.T) {
	db := setupTestDB(t)
	alice := NewRepository(db, "alice")
	bob := NewRepository(db, "bob")
	ctx := context.Background()

	require.NoError(t, alice.Store(ctx, SlotToken, []byte("alice-token"), 0))

	data, err := bob.Get(ctx, SlotToken)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, bob.Delete(ctx, SlotToken))
	data, err = alice.Get(ctx, SlotToken)
	require.NoError(t, err)
	assert.Equal(t, "alice-token", string(data))
}

func TestGetIfFresh_Expired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, "default")
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, SlotMarkets, []byte("listing"), time.Minute))

	data, err := repo.GetIfFresh(ctx, SlotMarkets)
	require.NoError(t, err)
	assert.Equal(t, "listing", string(data))

	repo.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	data, err = repo.GetIfFresh(ctx, SlotMarkets)
	require.NoError(t, err)
	assert.Nil(t, data, "Expected nil for expired data")

	// Get still returns stale data (useful when the API fails)
	data, err = repo.Get(ctx, SlotMarkets)
	require.NoError(t, err)
	assert.Equal(t, "listing", string(data))
}

func TestGet_NotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t), "default")

	data, err := repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = repo.GetIfFresh(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, "default")
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, repo.Store(ctx, "long", []byte("x"), time.Hour))
	require.NoError(t, repo.Store(ctx, "forever", []byte("x"), 0))

	repo.now = func() time.Time { return time.Now().Add(time.Minute) }

	deleted, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM slots").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestCodec_RoundTripUsesJSONNames(t *testing.T) {
	type payload struct {
		CoinKey string  `json:"coinKey"`
		Price   float64 `json:"price"`
	}

	data, err := Encode(payload{CoinKey: "bitcoin", Price: 1.5})
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, Decode(data, &generic))
	assert.Equal(t, "bitcoin", generic["coinKey"])

	var out payload
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, payload{CoinKey: "bitcoin", Price: 1.5}, out)
}
