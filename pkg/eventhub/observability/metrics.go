package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Hit outcomes recorded by RecordHit.
const (
	HitSent    = "sent"
	HitDropped = "dropped"
	HitRetry   = "retry"
)

// MetricsRecorder records event hub metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDispatch records an admitted event.
	RecordDispatch(ctx context.Context, eventType string)

	// RecordDelivery records one listener invocation on an extension lane.
	RecordDelivery(ctx context.Context, extension string, duration time.Duration, panicked bool)

	// RecordResponseTimeout records a response listener that timed out.
	RecordResponseTimeout(ctx context.Context, extension string)

	// RecordStateChange records a shared state write.
	RecordStateChange(ctx context.Context, extension, status string)

	// RecordHit records a hit processing outcome.
	RecordHit(ctx context.Context, outcome string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	dispatched       metric.Int64Counter
	listenerLatency  metric.Float64Histogram
	listenerPanics   metric.Int64Counter
	responseTimeouts metric.Int64Counter
	stateChanges     metric.Int64Counter
	hits             metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventhub")

	dispatched, err := meter.Int64Counter("eventhub.events.dispatched",
		metric.WithDescription("Number of events admitted to the hub"),
	)
	if err != nil {
		return nil, err
	}

	listenerLatency, err := meter.Float64Histogram("eventhub.listener.latency_ms",
		metric.WithDescription("Listener invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	listenerPanics, err := meter.Int64Counter("eventhub.listener.panics",
		metric.WithDescription("Number of recovered listener panics"),
	)
	if err != nil {
		return nil, err
	}

	responseTimeouts, err := meter.Int64Counter("eventhub.response.timeouts",
		metric.WithDescription("Number of response listeners that timed out"),
	)
	if err != nil {
		return nil, err
	}

	stateChanges, err := meter.Int64Counter("eventhub.state.changes",
		metric.WithDescription("Number of shared state writes"),
	)
	if err != nil {
		return nil, err
	}

	hits, err := meter.Int64Counter("eventhub.hits.processed",
		metric.WithDescription("Number of hit processing attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		dispatched:       dispatched,
		listenerLatency:  listenerLatency,
		listenerPanics:   listenerPanics,
		responseTimeouts: responseTimeouts,
		stateChanges:     stateChanges,
		hits:             hits,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordDispatch records an admitted event.
func (m *otelMetrics) RecordDispatch(ctx context.Context, eventType string) {
	m.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

// RecordDelivery records a listener invocation.
func (m *otelMetrics) RecordDelivery(ctx context.Context, extension string, duration time.Duration, panicked bool) {
	attrs := metric.WithAttributes(attribute.String("extension", extension))
	m.listenerLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if panicked {
		m.listenerPanics.Add(ctx, 1, attrs)
	}
}

// RecordResponseTimeout records a response timeout.
func (m *otelMetrics) RecordResponseTimeout(ctx context.Context, extension string) {
	m.responseTimeouts.Add(ctx, 1, metric.WithAttributes(attribute.String("extension", extension)))
}

// RecordStateChange records a shared state write.
func (m *otelMetrics) RecordStateChange(ctx context.Context, extension, status string) {
	m.stateChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("extension", extension),
		attribute.String("state.status", status),
	))
}

// RecordHit records a hit outcome.
func (m *otelMetrics) RecordHit(ctx context.Context, outcome string) {
	m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
