// Package handler provides HTTP handlers for the pollen API.
package handler

import (
	"net/http"
	"time"

	"github.com/epinpollenflug/pollenflug/internal/api/models"
	"github.com/epinpollenflug/pollenflug/internal/api/response"
	"github.com/epinpollenflug/pollenflug/internal/pollen"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version      string
	buildTime    string
	service      *pollen.Service
	breakerState func() string
}

// NewOpsHandler creates a new OpsHandler. breakerState reports the upstream
// circuit breaker state and may be nil.
func NewOpsHandler(version, buildTime string, service *pollen.Service, breakerState func() string) *OpsHandler {
	return &OpsHandler{
		version:      version,
		buildTime:    buildTime,
		service:      service,
		breakerState: breakerState,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once the
// first pollen snapshot exists.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	snapshot := h.service.Snapshot()
	if snapshot == nil {
		response.ServiceUnavailable(w, r, "no pollen data loaded yet")
		return
	}

	status := models.HealthStatusOK
	if snapshot.Stale {
		status = models.HealthStatusDegraded
	}
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"fetchedAt": models.Timestamp(snapshot.FetchedAt),
			"readings":  len(snapshot.Readings),
		},
	})
}

// SystemStatus handles GET /v1/ops/status - upstream provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	provider := models.ProviderStatus{
		Provider: "epin",
		Status:   models.HealthStatusFail,
	}
	if h.breakerState != nil {
		provider.CircuitState = h.breakerState()
	}

	if snapshot := h.service.Snapshot(); snapshot != nil {
		fetchedAt := models.Timestamp(snapshot.FetchedAt)
		provider.LastSuccessAt = &fetchedAt
		provider.Readings = len(snapshot.Readings)
		provider.Stale = snapshot.Stale
		provider.Provider = snapshot.Provider
		provider.Status = models.HealthStatusOK
		if snapshot.Stale || provider.CircuitState == "open" || provider.CircuitState == "half-open" {
			provider.Status = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:   provider.Status,
		Time:     models.Timestamp(time.Now()),
		Provider: provider,
	})
}
