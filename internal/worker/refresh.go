package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/epinpollenflug/pollenflug/internal/pollen"
)

// RefreshRecorder receives the outcome of every refresh.
// *telemetry.ProviderMetrics implements it.
type RefreshRecorder interface {
	RecordRefresh(readings int, stale bool, err error)
}

// RefreshJob refreshes the pollen snapshot on a schedule.
type RefreshJob struct {
	config   RefreshConfig
	logger   zerolog.Logger
	service  *pollen.Service
	recorder RefreshRecorder
	metrics  *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	TotalRefreshes      int64
	SuccessfulRefreshes int64
	FailedRefreshes     int64
	StaleRefreshes      int64

	LastRefreshAt       time.Time
	LastSuccessAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
	LastError           string
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config        RefreshConfig
	Logger        zerolog.Logger
	PollenService *pollen.Service

	// Recorder exports refresh outcomes (optional).
	Recorder RefreshRecorder
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:   cfg.Config.withDefaults(),
		logger:   cfg.Logger,
		service:  cfg.PollenService,
		recorder: cfg.Recorder,
		metrics:  &RefreshMetrics{},
	}
}

// RefreshResult contains the result of one refresh.
type RefreshResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Readings  int
	Stale     bool
	Err       error
}

// Run performs one refresh bounded by the configured timeout.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	result := &RefreshResult{StartTime: time.Now()}

	runCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	snapshot, err := j.service.Refresh(runCtx)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Err = err
	if snapshot != nil {
		result.Readings = len(snapshot.Readings)
		result.Stale = snapshot.Stale
	}

	j.updateMetrics(result)
	if j.recorder != nil {
		j.recorder.RecordRefresh(result.Readings, result.Stale, result.Err)
	}

	if err != nil {
		j.logger.Error().
			Err(err).
			Dur("duration", result.Duration).
			Msg("pollen refresh failed")
		return result
	}

	j.logger.Info().
		Int("readings", result.Readings).
		Bool("stale", result.Stale).
		Dur("duration", result.Duration).
		Msg("pollen refresh completed")

	return result
}

// Start runs the refresh every configured interval until ctx is done.
func (j *RefreshJob) Start(ctx context.Context) {
	j.logger.Info().
		Dur("interval", j.config.Interval).
		Msg("starting pollen refresh loop")

	if j.config.RunOnStart {
		j.Run(ctx)
	}

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("pollen refresh loop stopped")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

// CheckCatalog verifies ePIN connectivity by loading the catalog.
func (j *RefreshJob) CheckCatalog(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	_, err := j.service.Catalog(runCtx)
	return err
}

// InvalidateCatalog forces the next refresh to reload the catalog.
func (j *RefreshJob) InvalidateCatalog() {
	j.service.InvalidateCatalog()
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRefreshes++
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration

	if result.Err != nil {
		j.metrics.FailedRefreshes++
		j.metrics.LastError = result.Err.Error()
		return
	}

	j.metrics.SuccessfulRefreshes++
	j.metrics.LastSuccessAt = result.EndTime
	j.metrics.LastError = ""
	if result.Stale {
		j.metrics.StaleRefreshes++
	}
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRefreshes:      j.metrics.TotalRefreshes,
		SuccessfulRefreshes: j.metrics.SuccessfulRefreshes,
		FailedRefreshes:     j.metrics.FailedRefreshes,
		StaleRefreshes:      j.metrics.StaleRefreshes,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastSuccessAt:       j.metrics.LastSuccessAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		TotalDuration:       j.metrics.TotalDuration,
		LastError:           j.metrics.LastError,
	}
}

// MetricsSnapshot returns the current metrics as a map for health output.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_refreshes":       m.TotalRefreshes,
		"successful_refreshes":  m.SuccessfulRefreshes,
		"failed_refreshes":      m.FailedRefreshes,
		"stale_refreshes":       m.StaleRefreshes,
		"last_refresh_at":       m.LastRefreshAt,
		"last_success_at":       m.LastSuccessAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
		"last_error":            m.LastError,
	}
}
