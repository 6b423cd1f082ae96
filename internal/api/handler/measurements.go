package handler

import (
	"net/http"
	"strings"

	"github.com/epinpollenflug/pollenflug/internal/api/models"
	"github.com/epinpollenflug/pollenflug/internal/api/response"
	"github.com/epinpollenflug/pollenflug/internal/pollen"
)

// MeasurementsHandler serves raw measurement windows straight from ePIN.
type MeasurementsHandler struct {
	service *pollen.Service
}

// NewMeasurementsHandler creates a new MeasurementsHandler.
func NewMeasurementsHandler(service *pollen.Service) *MeasurementsHandler {
	return &MeasurementsHandler{service: service}
}

// GetMeasurements handles GET /v1/measurements?locations=A,B&pollen=X,Y.
// Without pollen every type of the catalog is queried.
func (h *MeasurementsHandler) GetMeasurements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	locations := listParam(query["locations"])
	if len(locations) == 0 {
		response.BadRequest(w, r, "at least one location is required", []models.FieldError{
			{Field: "locations", Message: "must list one or more location IDs", Code: "REQUIRED"},
		})
		return
	}

	pollenTypes := listParam(query["pollen"])
	if len(pollenTypes) == 0 {
		catalog, err := h.service.Catalog(r.Context())
		if err != nil {
			response.ServiceUnavailable(w, r, "pollen catalog is not available")
			return
		}
		pollenTypes = catalog.PollenTypes
	}

	report := h.service.Measurements(r.Context(), locations, pollenTypes)
	response.JSON(w, r, http.StatusOK, models.NewMeasurements(report))
}

// listParam flattens repeated and comma separated query values.
func listParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
