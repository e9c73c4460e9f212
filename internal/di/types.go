// Package di provides dependency injection type definitions.
//
// The Container holds every long-lived component of the process. The HTTP
// server and the CLI both build one through Wire.
package di

import (
	"github.com/aristath/cryptovault/internal/clients/assetstore"
	"github.com/aristath/cryptovault/internal/clients/auth"
	"github.com/aristath/cryptovault/internal/clients/coingecko"
	"github.com/aristath/cryptovault/internal/database"
	"github.com/aristath/cryptovault/internal/events"
	"github.com/aristath/cryptovault/internal/localstore"
	"github.com/aristath/cryptovault/internal/modules/coins"
	"github.com/aristath/cryptovault/internal/modules/valuation"
	"github.com/aristath/cryptovault/internal/notifications"
	"github.com/aristath/cryptovault/internal/scheduler"
	"github.com/aristath/cryptovault/internal/session"
)

// Container holds all dependencies for the application
type Container struct {
	// Local store
	LocalDB       *database.DB
	LocalStore    *localstore.Repository
	SnapshotCache *localstore.SnapshotCache
	TokenStore    *localstore.TokenStore

	// Collaborator clients
	AuthClient   *auth.Client
	AssetsClient *assetstore.Client
	MarketClient *coingecko.Client

	// Messaging
	EventBus      *events.Bus
	EventManager  *events.Manager
	Notifications *notifications.Queue

	// Services
	Sessions *session.Controller
	Engine   *valuation.Engine
	Coins    *coins.Service
}

// JobInstances holds the background jobs, for scheduling and manual triggering
type JobInstances struct {
	Scheduler        *scheduler.Scheduler
	PortfolioRefresh scheduler.Job
	LocalCleanup     scheduler.Job
	WALCheckpoints   scheduler.Job
	Maintenance      scheduler.Job
}

// All returns every job instance
func (j *JobInstances) All() []scheduler.Job {
	return []scheduler.Job{j.PortfolioRefresh, j.LocalCleanup, j.WALCheckpoints, j.Maintenance}
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c.LocalDB == nil {
		return nil
	}
	return c.LocalDB.Close()
}
