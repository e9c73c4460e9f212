// Package main is the cryptovault command line client. It shares the local
// store with the server, so a login here is seen by both.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"github.com/aristath/cryptovault/internal/cli"
	"github.com/aristath/cryptovault/internal/config"
	"github.com/aristath/cryptovault/internal/di"
	"github.com/aristath/cryptovault/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cli.Register(commander)

	verbose := flag.Bool("v", false, "log at the configured level instead of warnings only")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return int(subcommands.ExitFailure)
	}

	level := "warn"
	if *verbose {
		level = cfg.LogLevel
	}
	log := logger.New(logger.Config{
		Level:  level,
		Pretty: true,
		Output: os.Stderr,
	})
	logger.SetGlobalLogger(log)

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return int(subcommands.ExitFailure)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := container.Sessions.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to restore session")
	}

	app := &cli.App{
		Sessions:      container.Sessions,
		Engine:        container.Engine,
		Coins:         container.Coins,
		Notifications: container.Notifications,
		Theme:         cli.DefaultTheme,
		Out:           os.Stdout,
		Err:           os.Stderr,
	}
	return int(commander.Execute(ctx, app))
}
