package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/config"
	"github.com/aristath/cryptovault/internal/localstore"
	"github.com/aristath/cryptovault/internal/scheduler"
)

// RegisterJobs creates the background jobs and registers them on a new
// scheduler. The scheduler is returned unstarted.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	walJob := scheduler.NewCheckWALCheckpointsJob(container.LocalDB)
	walJob.SetLogger(log)

	instances := &JobInstances{
		Scheduler:        scheduler.New(log),
		PortfolioRefresh: scheduler.NewRefreshJob(container.Engine, container.Sessions, cfg.Market.Timeout*3, log),
		LocalCleanup:     localstore.NewCleanupJob(container.LocalStore, log),
		WALCheckpoints:   walJob,
		Maintenance:      scheduler.NewMaintenanceJob(container.LocalDB, log),
	}

	schedules := []struct {
		spec string
		job  scheduler.Job
	}{
		{cfg.Refresh.Schedule, instances.PortfolioRefresh},
		{cfg.Refresh.CleanupSchedule, instances.LocalCleanup},
		{cfg.Refresh.CleanupSchedule, instances.WALCheckpoints},
		{cfg.Refresh.MaintenanceSchedule, instances.Maintenance},
	}

	for _, s := range schedules {
		if err := instances.Scheduler.AddJob(s.spec, s.job); err != nil {
			return nil, fmt.Errorf("failed to register job %s: %w", s.job.Name(), err)
		}
	}

	return instances, nil
}
