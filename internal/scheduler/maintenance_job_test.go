package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/cryptovault/internal/testing"
)

func TestMaintenanceJob_Name(t *testing.T) {
	assert.Equal(t, "local_store_maintenance", NewMaintenanceJob(nil, zerolog.Nop()).Name())
}

func TestMaintenanceJob_Run_NilDatabase(t *testing.T) {
	assert.NoError(t, NewMaintenanceJob(nil, zerolog.Nop()).Run())
}

func TestMaintenanceJob_Run_ReclaimsFreePages(t *testing.T) {
	// Incremental auto_vacuum leaves dropped pages on the freelist
	db := testingpkg.NewTestDB(t, "local")
	conn := db.Conn()

	_, err := conn.Exec("CREATE TABLE filler (id INTEGER PRIMARY KEY, body TEXT)")
	require.NoError(t, err)
	body := strings.Repeat("x", 4096)
	for i := 0; i < 200; i++ {
		_, err := conn.Exec("INSERT INTO filler (body) VALUES (?)", fmt.Sprintf("%s%d", body, i))
		require.NoError(t, err)
	}
	_, err = conn.Exec("DROP TABLE filler")
	require.NoError(t, err)

	before, err := db.GetStats(context.Background())
	require.NoError(t, err)
	require.Positive(t, before.FreelistCount)

	job := NewMaintenanceJob(db, zerolog.Nop())
	job.diskFree = func(string) (uint64, error) { return 10 << 30, nil }
	require.NoError(t, job.Run())

	after, err := db.GetStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, after.FreelistCount)
	assert.Less(t, after.PageCount, before.PageCount)
}

func TestMaintenanceJob_Run_LowDisk(t *testing.T) {
	db := testingpkg.NewTestDB(t, "local")

	job := NewMaintenanceJob(db, zerolog.Nop())
	job.diskFree = func(string) (uint64, error) { return 10 << 20, nil }
	assert.Error(t, job.Run())

	// An unreadable volume is logged, not fatal
	job.diskFree = func(string) (uint64, error) { return 0, errors.New("statfs failed") }
	assert.NoError(t, job.Run())
}
