// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/epinpollenflug/pollenflug/internal/pollen/epin"
)

// Config holds the application configuration loaded from .env files and
// environment variables.
type Config struct {
	Port     string `mapstructure:"app_port"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	EPINBaseURL        string        `mapstructure:"epin_base_url"`
	EPINLocationsRaw   string        `mapstructure:"epin_locations"`
	EPINPollenRaw      string        `mapstructure:"epin_pollen"`
	EPINTimeoutSeconds int64         `mapstructure:"epin_timeout_seconds"`
	EPINLocations      []string      `mapstructure:"-"`
	EPINPollen         []string      `mapstructure:"-"`
	EPINTimeout        time.Duration `mapstructure:"-"`

	RefreshIntervalSeconds int64         `mapstructure:"refresh_interval_seconds"`
	StaleTTLSeconds        int64         `mapstructure:"stale_ttl_seconds"`
	RefreshInterval        time.Duration `mapstructure:"-"`
	StaleTTL               time.Duration `mapstructure:"-"`

	OTelEnabled  bool   `mapstructure:"otel_enabled"`
	OTelEndpoint string `mapstructure:"otel_exporter_otlp_endpoint"`

	PubSubProjectID    string `mapstructure:"pubsub_project_id"`
	PubSubSubscription string `mapstructure:"pubsub_subscription"`
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PubSubEnabled reports whether a Pub/Sub subscription is configured.
func (c *Config) PubSubEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubSubscription != ""
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("app_port", "8080")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("epin_base_url", epin.DefaultBaseURL)
	v.SetDefault("epin_locations", "")
	v.SetDefault("epin_pollen", "")
	v.SetDefault("epin_timeout_seconds", 10)
	v.SetDefault("refresh_interval_seconds", 1800)
	v.SetDefault("stale_ttl_seconds", int64((6*time.Hour)/time.Second))
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("pubsub_project_id", "")
	v.SetDefault("pubsub_subscription", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.EPINBaseURL == "" {
		return nil, fmt.Errorf("invalid epin_base_url (must not be empty)")
	}
	if cfg.EPINTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid epin_timeout_seconds (must be positive seconds)")
	}
	if cfg.RefreshIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid refresh_interval_seconds (must be positive seconds)")
	}
	if cfg.StaleTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid stale_ttl_seconds (must be positive seconds)")
	}

	cfg.EPINLocations = splitList(cfg.EPINLocationsRaw)
	cfg.EPINPollen = splitList(cfg.EPINPollenRaw)
	cfg.EPINTimeout = time.Duration(cfg.EPINTimeoutSeconds) * time.Second
	cfg.RefreshInterval = time.Duration(cfg.RefreshIntervalSeconds) * time.Second
	cfg.StaleTTL = time.Duration(cfg.StaleTTLSeconds) * time.Second

	return &cfg, nil
}

// splitList splits a comma separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
