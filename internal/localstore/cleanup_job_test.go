package localstore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	job := NewCleanupJob(NewRepository(setupTestDB(t), "default"), zerolog.Nop())
	assert.Equal(t, "local_store_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, "default")
	ctx := context.Background()

	_, err := db.Exec(
		"INSERT INTO slots (scope, key, data, updated_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		"default", SlotMarkets, []byte("old"), time.Now().Unix(), time.Now().Add(-time.Hour).Unix(),
	)
	require.NoError(t, err)
	require.NoError(t, repo.Store(ctx, SlotToken, []byte("keep"), 0))

	job := NewCleanupJob(repo, zerolog.Nop())
	require.NoError(t, job.Run())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM slots").Scan(&count))
	assert.Equal(t, 1, count)
}
