// Package api provides the HTTP API of the pollen service.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/epinpollenflug/pollenflug/internal/api/handler"
	"github.com/epinpollenflug/pollenflug/internal/api/middleware"
	"github.com/epinpollenflug/pollenflug/internal/pollen"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version       string
	BuildTime     string
	Logger        zerolog.Logger
	ServiceName   string
	Metrics       *middleware.Metrics
	PollenService *pollen.Service

	// BreakerState reports the upstream circuit breaker state (optional).
	BreakerState func() string
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pollenflug-api"
	}

	// Order matters: the request ID must exist before tracing and logging.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.PollenService, cfg.BreakerState)
	catalogHandler := handler.NewCatalogHandler(cfg.PollenService)
	measurementsHandler := handler.NewMeasurementsHandler(cfg.PollenService)
	sensorsHandler := handler.NewSensorsHandler(cfg.PollenService, cfg.Logger)

	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/locations", catalogHandler.ListLocations)
			r.Get("/pollen", catalogHandler.ListPollenTypes)
			r.Get("/seasons", catalogHandler.ListSeasons)
			r.Get("/sensors", sensorsHandler.ListSensors)
			r.Get("/sensors/{sensorId}", sensorsHandler.GetSensor)
		})

		// These call ePIN synchronously.
		r.Group(func(r chi.Router) {
			r.Use(expensiveRateLimit)
			r.Get("/measurements", measurementsHandler.GetMeasurements)
			r.Post("/sensors:refresh", sensorsHandler.Refresh)
		})
	})

	return r
}
