package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/cryptovault/internal/database"
	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/modules/valuation"
	"github.com/aristath/cryptovault/internal/scheduler"
)

// statusSessions is the part of the session controller the status page reads
type statusSessions interface {
	Current() domain.Session
}

// statusPortfolio is the part of the valuation engine the status page reads
type statusPortfolio interface {
	Current() *domain.PortfolioSnapshot
	Policy() valuation.FallbackPolicy
}

// SystemHandlers serves process status and manual job triggers
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	sessions  statusSessions
	portfolio statusPortfolio
	jobs      map[string]scheduler.Job
	startedAt time.Time
}

// NewSystemHandlers creates system handlers. db may be nil.
func NewSystemHandlers(
	log zerolog.Logger,
	db *database.DB,
	sessions statusSessions,
	portfolio statusPortfolio,
	jobs []scheduler.Job,
) *SystemHandlers {
	byName := make(map[string]scheduler.Job, len(jobs))
	for _, job := range jobs {
		if job != nil {
			byName[job.Name()] = job
		}
	}

	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		db:        db,
		sessions:  sessions,
		portfolio: portfolio,
		jobs:      byName,
		startedAt: time.Now(),
	}
}

// SystemStatusResponse represents the system status
type SystemStatusResponse struct {
	Status         string         `json:"status"` // "healthy" or "degraded"
	UptimeSeconds  int64          `json:"uptime_seconds"`
	Goroutines     int            `json:"goroutines"`
	CPUPercent     float64        `json:"cpu_percent"`
	MemoryPercent  float64        `json:"memory_percent"`
	Authenticated  bool           `json:"authenticated"`
	FallbackPolicy string         `json:"fallback_policy"`
	Portfolio      *PortfolioInfo `json:"portfolio,omitempty"`
	Database       *DBInfo        `json:"database,omitempty"`
	Jobs           []string       `json:"jobs"`
	CheckedAt      string         `json:"checked_at"`
}

// PortfolioInfo summarises the current snapshot
type PortfolioInfo struct {
	Positions  int     `json:"positions"`
	TotalValue float64 `json:"total_value"`
	ComputedAt string  `json:"computed_at"`
}

// DBInfo represents the local store database
type DBInfo struct {
	Name      string  `json:"name"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
	FreePages int64   `json:"free_pages"`
	Reachable bool    `json:"reachable"`
}

// GetSystemStatusSnapshot collects the current status
func (h *SystemHandlers) GetSystemStatusSnapshot(r *http.Request) SystemStatusResponse {
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Jobs:          make([]string, 0, len(h.jobs)),
		CheckedAt:     time.Now().Format(time.RFC3339),
	}

	for name := range h.jobs {
		response.Jobs = append(response.Jobs, name)
	}

	if h.sessions != nil {
		response.Authenticated = h.sessions.Current().Authenticated()
	}

	if h.portfolio != nil {
		response.FallbackPolicy = string(h.portfolio.Policy())
		if snapshot := h.portfolio.Current(); snapshot != nil {
			response.Portfolio = &PortfolioInfo{
				Positions:  len(snapshot.Positions),
				TotalValue: snapshot.TotalValue,
				ComputedAt: snapshot.ComputedAt.Format(time.RFC3339),
			}
		}
	}

	if h.db != nil {
		info := &DBInfo{Name: h.db.Name()}
		info.Reachable = h.db.QuickCheck(r.Context()) == nil
		if stats, err := h.db.GetStats(r.Context()); err == nil {
			info.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			info.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
			info.PageCount = stats.PageCount
			info.FreePages = stats.FreelistCount
		} else {
			h.log.Warn().Err(err).Msg("Failed to read database stats")
		}
		if !info.Reachable {
			response.Status = "degraded"
		}
		response.Database = info
	}

	return response
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")
	writeJSON(w, http.StatusOK, h.GetSystemStatusSnapshot(r))
}

// HandleTriggerJob handles POST /api/system/jobs/{name}. The job runs
// synchronously and its error, if any, is reported.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": "Job not registered: " + name,
		})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job triggered")
	if err := job.Run(); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": name + " completed",
	})
}

// getSystemStats calculates CPU and RAM usage percentages over a short
// sampling window
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
