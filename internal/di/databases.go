package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/config"
	"github.com/aristath/cryptovault/internal/database"
	"github.com/aristath/cryptovault/internal/localstore"
)

// InitializeDatabases opens the local store database, applies its schema and
// builds the slot accessors on top of it.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	localDB, err := database.New(database.Config{
		Path: cfg.DatabasePath(),
		Name: "local",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local database: %w", err)
	}

	if err := localDB.Migrate(); err != nil {
		localDB.Close()
		return nil, fmt.Errorf("failed to migrate local database: %w", err)
	}
	container.LocalDB = localDB

	container.LocalStore = localstore.NewRepository(localDB.Conn(), cfg.SessionScope)
	container.SnapshotCache = localstore.NewSnapshotCache(container.LocalStore)
	container.TokenStore = localstore.NewTokenStore(container.LocalStore)

	log.Info().
		Str("path", localDB.Path()).
		Str("scope", cfg.SessionScope).
		Msg("Local store initialized")

	return container, nil
}
