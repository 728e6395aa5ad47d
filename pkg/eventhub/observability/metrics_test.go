package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a test meter provider and returns a function to collect metrics.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	originalProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}

	return reader, cleanup
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value for datapoints carrying key=value.
func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")

	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordDispatch(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDispatch(ctx, "com.example.type")
	m.RecordDispatch(ctx, "com.example.type")

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "eventhub.events.dispatched")
	require.NotNil(t, metric)
	assert.Equal(t, int64(2), sumFor(t, metric, "event.type", "com.example.type"))
}

func TestRecordDelivery(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDelivery(ctx, "ext", 5*time.Millisecond, false)
	m.RecordDelivery(ctx, "ext", time.Millisecond, true)

	rm := collectMetrics(t, reader)

	latency := findMetric(rm, "eventhub.listener.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "Expected Histogram type")
	require.NotEmpty(t, hist.DataPoints)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)

	panics := findMetric(rm, "eventhub.listener.panics")
	require.NotNil(t, panics)
	assert.Equal(t, int64(1), sumFor(t, panics, "extension", "ext"))
}

func TestRecordStateChangeAndTimeouts(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordStateChange(ctx, "ext", "pending")
	m.RecordResponseTimeout(ctx, "ext")
	m.RecordHit(ctx, HitRetry)
	m.RecordHit(ctx, HitSent)

	rm := collectMetrics(t, reader)

	changes := findMetric(rm, "eventhub.state.changes")
	require.NotNil(t, changes)
	assert.Equal(t, int64(1), sumFor(t, changes, "state.status", "pending"))

	timeouts := findMetric(rm, "eventhub.response.timeouts")
	require.NotNil(t, timeouts)
	assert.Equal(t, int64(1), sumFor(t, timeouts, "extension", "ext"))

	hits := findMetric(rm, "eventhub.hits.processed")
	require.NotNil(t, hits)
	assert.Equal(t, int64(1), sumFor(t, hits, "outcome", HitRetry))
	assert.Equal(t, int64(1), sumFor(t, hits, "outcome", HitSent))
}
