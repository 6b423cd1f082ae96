// Package worker runs the background pollen refresh.
package worker

import "time"

// RefreshConfig holds configuration for the pollen refresh job.
type RefreshConfig struct {
	// Interval between scheduled refreshes.
	// Default: 30 minutes
	Interval time.Duration

	// Timeout bounds a single refresh.
	// Default: 30 seconds
	Timeout time.Duration

	// RunOnStart triggers a refresh as soon as Start is called.
	// The zero value skips it; DefaultRefreshConfig enables it.
	RunOnStart bool
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:   30 * time.Minute,
		Timeout:    30 * time.Second,
		RunOnStart: true,
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	def := DefaultRefreshConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
