package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ProviderMetrics records upstream API calls and pollen refreshes.
// It satisfies epin.MetricsRecorder.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	refreshTotal    metric.Int64Counter
	readings        metric.Int64Gauge
}

// NewProviderMetrics creates the provider instruments on meter.
func NewProviderMetrics(meter metric.Meter) (*ProviderMetrics, error) {
	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	refreshTotal, err := meter.Int64Counter(
		"pollen.refresh.total",
		metric.WithDescription("Total number of pollen refreshes"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, err
	}

	readings, err := meter.Int64Gauge(
		"pollen.readings",
		metric.WithDescription("Readings in the current pollen snapshot"),
		metric.WithUnit("{reading}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		refreshTotal:    refreshTotal,
		readings:        readings,
	}, nil
}

// RecordRequest records metrics for a provider request.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Requests may finish after their context is cancelled.
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRefresh records the outcome of a pollen refresh.
func (m *ProviderMetrics) RecordRefresh(readings int, stale bool, err error) {
	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.Bool("stale", stale),
		attribute.Bool("error", err != nil),
	}
	m.refreshTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err == nil {
		m.readings.Record(ctx, int64(readings))
	}
}
