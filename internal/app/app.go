// Package app wires configuration, logging, the HTTP session and the pollen
// service for the binaries.
package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/epinpollenflug/pollenflug/internal/config"
	"github.com/epinpollenflug/pollenflug/internal/pollen"
	"github.com/epinpollenflug/pollenflug/internal/pollen/epin"
	"github.com/epinpollenflug/pollenflug/internal/session"
	"github.com/epinpollenflug/pollenflug/internal/telemetry"
)

// NewLogger builds the JSON service logger. Unknown levels fall back to info.
func NewLogger(w io.Writer, service, version, level string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// Pollen bundles the session, the ePIN client and the pollen service.
type Pollen struct {
	Session *session.Session
	Client  *epin.Client
	Service *pollen.Service
	Metrics *telemetry.ProviderMetrics
}

// NewPollen creates the pollen stack from cfg. The caller owns the returned
// session and must Close it.
func NewPollen(cfg *config.Config, log zerolog.Logger, meter metric.Meter) (*Pollen, error) {
	metrics, err := telemetry.NewProviderMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("creating provider metrics: %w", err)
	}

	sessCfg := session.DefaultConfig(epin.ProviderName)
	sessCfg.Timeout = cfg.EPINTimeout
	sessCfg.Logger = log.With().Str("component", "session").Logger()
	sess := session.New(sessCfg)

	client := epin.NewClient(epin.ClientConfig{
		Session: sess,
		BaseURL: cfg.EPINBaseURL,
		Logger:  log.With().Str("component", "epin").Logger(),
		Metrics: metrics,
	})

	service := pollen.NewService(pollen.ServiceConfig{
		Provider:    client,
		Locations:   cfg.EPINLocations,
		PollenTypes: cfg.EPINPollen,
		Logger:      log.With().Str("component", "pollen").Logger(),
		StaleTTL:    cfg.StaleTTL,
	})

	return &Pollen{
		Session: sess,
		Client:  client,
		Service: service,
		Metrics: metrics,
	}, nil
}

// BreakerState reports the session circuit breaker state.
func (p *Pollen) BreakerState() string {
	return p.Session.BreakerState().String()
}

// Close closes the HTTP session.
func (p *Pollen) Close() error {
	return p.Session.Close()
}
