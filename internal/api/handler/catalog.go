package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/epinpollenflug/pollenflug/internal/api/models"
	"github.com/epinpollenflug/pollenflug/internal/api/response"
	"github.com/epinpollenflug/pollenflug/internal/pollen"
)

// CatalogHandler serves the ePIN locations, pollen types and seasons.
type CatalogHandler struct {
	service *pollen.Service
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(service *pollen.Service) *CatalogHandler {
	return &CatalogHandler{service: service}
}

func (h *CatalogHandler) catalog(w http.ResponseWriter, r *http.Request) (*pollen.Catalog, bool) {
	catalog, err := h.service.Catalog(r.Context())
	switch {
	case errors.Is(err, pollen.ErrNoData):
		response.ServiceUnavailable(w, r, "pollen catalog is not available")
		return nil, false
	case err != nil:
		response.InternalError(w, r, "failed to load pollen catalog")
		return nil, false
	}
	return catalog, true
}

// ListLocations handles GET /v1/locations.
func (h *CatalogHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	catalog, ok := h.catalog(w, r)
	if !ok {
		return
	}

	list := models.LocationList{Items: make([]models.Location, 0, len(catalog.Locations))}
	for _, loc := range catalog.Locations {
		list.Items = append(list.Items, models.NewLocation(loc))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// ListPollenTypes handles GET /v1/pollen.
func (h *CatalogHandler) ListPollenTypes(w http.ResponseWriter, r *http.Request) {
	catalog, ok := h.catalog(w, r)
	if !ok {
		return
	}

	items := append([]string{}, catalog.PollenTypes...)
	response.JSON(w, r, http.StatusOK, models.PollenTypeList{Items: items})
}

// ListSeasons handles GET /v1/seasons.
func (h *CatalogHandler) ListSeasons(w http.ResponseWriter, r *http.Request) {
	catalog, ok := h.catalog(w, r)
	if !ok {
		return
	}

	list := models.SeasonList{
		Items:    make([]models.Season, 0, len(catalog.Seasons)),
		InSeason: catalog.InSeason(time.Now()),
	}
	for _, s := range catalog.Seasons {
		list.Items = append(list.Items, models.NewSeason(s))
	}
	response.JSON(w, r, http.StatusOK, list)
}
