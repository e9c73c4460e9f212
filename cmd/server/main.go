// Package main is the entry point for the CryptoVault portfolio server.
//
// The server keeps the signed-in user's crypto portfolio valued against live
// market prices, persists the last snapshot locally and exposes it over a
// JSON API with SSE and websocket event streams.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/cryptovault/internal/config"
	"github.com/aristath/cryptovault/internal/di"
	"github.com/aristath/cryptovault/internal/server"
	"github.com/aristath/cryptovault/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting CryptoVault")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Restore the persisted session and show the cached snapshot before the
	// first network round trip
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	sess, err := container.Sessions.Restore(startupCtx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to restore session")
	}
	if sess.Authenticated() {
		if _, ok := container.Engine.LoadCachedSnapshot(startupCtx); ok {
			log.Info().Msg("Cached portfolio snapshot loaded")
		}
	}
	startupCancel()

	srv := server.New(server.Config{
		Log:           log,
		Config:        cfg,
		DB:            container.LocalDB,
		Sessions:      container.Sessions,
		Engine:        container.Engine,
		Coins:         container.Coins,
		Notifications: container.Notifications,
		EventManager:  container.EventManager,
		Jobs:          jobs.All(),
		Port:          cfg.Port,
		DevMode:       cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	jobs.Scheduler.Start()

	// First refresh runs right away rather than on the first tick
	if sess.Authenticated() {
		go func() {
			if err := jobs.PortfolioRefresh.Run(); err != nil {
				log.Warn().Err(err).Msg("Initial refresh failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	jobs.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
