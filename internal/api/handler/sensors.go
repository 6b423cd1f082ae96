package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/epinpollenflug/pollenflug/internal/api/models"
	"github.com/epinpollenflug/pollenflug/internal/api/response"
	"github.com/epinpollenflug/pollenflug/internal/pollen"
)

// SensorsHandler serves the current pollen snapshot as sensors.
type SensorsHandler struct {
	service *pollen.Service
	logger  zerolog.Logger
}

// NewSensorsHandler creates a new SensorsHandler.
func NewSensorsHandler(service *pollen.Service, logger zerolog.Logger) *SensorsHandler {
	return &SensorsHandler{service: service, logger: logger}
}

// ListSensors handles GET /v1/sensors.
func (h *SensorsHandler) ListSensors(w http.ResponseWriter, r *http.Request) {
	snapshot := h.service.Snapshot()
	if snapshot == nil {
		response.ServiceUnavailable(w, r, "no pollen data loaded yet")
		return
	}
	sensors := snapshot.Sensors()

	list := models.SensorList{
		Items:     make([]models.Sensor, 0, len(sensors)),
		FetchedAt: models.Timestamp(snapshot.FetchedAt),
		Stale:     snapshot.Stale,
	}
	for _, s := range sensors {
		list.Items = append(list.Items, models.NewSensor(s))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// GetSensor handles GET /v1/sensors/{sensorId}.
func (h *SensorsHandler) GetSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sensorId")

	sensor, err := h.service.Sensor(id)
	switch {
	case errors.Is(err, pollen.ErrUnknownSensor):
		response.NotFound(w, r, fmt.Sprintf("sensor %q not found", id))
		return
	case err != nil:
		response.ServiceUnavailable(w, r, "no pollen data loaded yet")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewSensor(*sensor))
}

// Refresh handles POST /v1/sensors:refresh - forces a refresh from ePIN.
func (h *SensorsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Refresh(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("forced pollen refresh failed")
		response.ServiceUnavailable(w, r, "pollen data could not be refreshed")
		return
	}

	response.JSON(w, r, http.StatusOK, models.RefreshResult{
		Readings:  len(snapshot.Readings),
		FetchedAt: models.Timestamp(snapshot.FetchedAt),
		Stale:     snapshot.Stale,
	})
}
