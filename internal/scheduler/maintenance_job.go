package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/cryptovault/internal/database"
)

const (
	// criticalFreeBytes halts maintenance; the snapshot slot can no longer be written safely
	criticalFreeBytes = 100 << 20
	lowFreeBytes      = 1 << 30
)

// MaintenanceJob keeps the local store compact and healthy: integrity check,
// WAL truncation, a free space check and a VACUUM when pages are free.
type MaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger

	// diskFree returns the free bytes on the volume holding path
	diskFree func(path string) (uint64, error)
}

// NewMaintenanceJob creates a maintenance job for db
func NewMaintenanceJob(db *database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:       db,
		log:      log.With().Str("job", "local_store_maintenance").Logger(),
		diskFree: freeBytes,
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "local_store_maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	if j.db == nil {
		return nil
	}
	j.log.Info().Msg("Starting local store maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("local store unhealthy: %w", err)
	}

	if err := j.db.Checkpoint(ctx); err != nil {
		// Not critical, the next checkpoint catches up
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if err := j.vacuum(ctx); err != nil {
		j.log.Error().Err(err).Msg("VACUUM failed")
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Local store maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	dir := filepath.Dir(j.db.Path())
	free, err := j.diskFree(dir)
	if err != nil {
		j.log.Warn().Err(err).Str("dir", dir).Msg("Failed to read free disk space")
		return nil
	}

	freeMB := float64(free) / 1024 / 1024
	switch {
	case free < criticalFreeBytes:
		j.log.Error().Float64("free_mb", freeMB).Msg("Insufficient disk space for the local store")
		return fmt.Errorf("only %.1f MB free in %s", freeMB, dir)
	case free < lowFreeBytes:
		j.log.Warn().Float64("free_mb", freeMB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("free_mb", freeMB).Msg("Disk space check")
	}
	return nil
}

// vacuum reclaims free pages. A store without free pages is left alone.
func (j *MaintenanceJob) vacuum(ctx context.Context) error {
	before, err := j.db.GetStats(ctx)
	if err != nil {
		return err
	}
	if before.FreelistCount == 0 {
		j.log.Debug().Msg("No free pages, skipping VACUUM")
		return nil
	}

	if err := j.db.Vacuum(ctx); err != nil {
		return err
	}

	after, err := j.db.GetStats(ctx)
	if err != nil {
		return err
	}

	sizeBefore := float64(before.PageCount*before.PageSize) / 1024 / 1024
	sizeAfter := float64(after.PageCount*after.PageSize) / 1024 / 1024
	j.log.Info().
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")
	return nil
}

func freeBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
