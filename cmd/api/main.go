// Package main provides the entrypoint for the pollen API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/epinpollenflug/pollenflug/internal/api"
	"github.com/epinpollenflug/pollenflug/internal/api/middleware"
	"github.com/epinpollenflug/pollenflug/internal/app"
	"github.com/epinpollenflug/pollenflug/internal/config"
	"github.com/epinpollenflug/pollenflug/internal/telemetry"
	"github.com/epinpollenflug/pollenflug/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pollenflug-api"

	cfg, err := config.Load()
	if err != nil {
		bootLog := app.NewLogger(os.Stderr, serviceName, Version, "info")
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := app.NewLogger(os.Stdout, serviceName, Version, cfg.LogLevel)
	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting pollen API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	pollenStack, err := app.NewPollen(cfg, log, tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pollen service")
	}
	defer pollenStack.Close()

	log.Info().
		Str("base_url", cfg.EPINBaseURL).
		Strs("locations", cfg.EPINLocations).
		Strs("pollen", cfg.EPINPollen).
		Msg("pollen service initialized")

	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Interval:   cfg.RefreshInterval,
			Timeout:    cfg.EPINTimeout * 4,
			RunOnStart: true,
		},
		Logger:        log,
		PollenService: pollenStack.Service,
		Recorder:      pollenStack.Metrics,
	})
	go refreshJob.Start(ctx)

	router := api.NewRouter(api.RouterConfig{
		Version:       Version,
		BuildTime:     BuildTime,
		Logger:        log,
		ServiceName:   serviceName,
		Metrics:       metrics,
		PollenService: pollenStack.Service,
		BreakerState:  pollenStack.BreakerState,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
