// Package testing provides testing utilities and helpers for the cryptovault project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/cryptovault/internal/database"
	"github.com/aristath/cryptovault/internal/localstore"
)

// NewTestDB creates a file-backed SQLite database in a temp file with the
// named schema applied. Cleanup is registered on t.
//
// Supported schema names:
//   - "local" - applies local_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	// Temporary files keep each test isolated
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path: tmpPath,
		Name: name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		// WAL side files share the prefix
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(tmpPath + suffix)
		}
	})

	return db
}

// NewTestRepository returns a slot repository on a fresh local database.
func NewTestRepository(t *testing.T, scope string) *localstore.Repository {
	t.Helper()
	db := NewTestDB(t, "local")
	return localstore.NewRepository(db.Conn(), scope)
}
