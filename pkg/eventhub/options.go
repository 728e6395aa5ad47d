package eventhub

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
	"github.com/randalmurphal/eventhub/pkg/eventhub/state"
)

// DefaultResponseTimeout applies to response listeners registered without a
// positive timeout.
const DefaultResponseTimeout = 5 * time.Second

// hubConfig holds hub construction settings.
type hubConfig struct {
	logger          *slog.Logger
	stateRetention  int
	responseTimeout time.Duration
	metricsEnabled  bool
	tracingEnabled  bool
}

func defaultHubConfig() hubConfig {
	return hubConfig{
		logger:          slog.Default(),
		stateRetention:  state.DefaultRetention,
		responseTimeout: DefaultResponseTimeout,
	}
}

// Option configures a Hub.
type Option func(*hubConfig)

// WithLogger sets the logger for the hub and every extension lane.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *hubConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStateRetention bounds the snapshots kept per shared state.
// Default: state.DefaultRetention. Zero keeps every snapshot.
func WithStateRetention(n int) Option {
	return func(c *hubConfig) {
		if n >= 0 {
			c.stateRetention = n
		}
	}
}

// WithResponseTimeout sets the timeout used when a response listener is
// registered with a non-positive timeout.
// Default: DefaultResponseTimeout
func WithResponseTimeout(d time.Duration) Option {
	return func(c *hubConfig) {
		if d > 0 {
			c.responseTimeout = d
		}
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter provider.
//
// Example:
//
//	otel.SetMeterProvider(provider)
//	hub := eventhub.New(eventhub.WithMetrics(true))
func WithMetrics(enabled bool) Option {
	return func(c *hubConfig) {
		c.metricsEnabled = enabled
	}
}

// WithTracing enables OpenTelemetry spans for every listener delivery using
// the global tracer provider.
func WithTracing(enabled bool) Option {
	return func(c *hubConfig) {
		c.tracingEnabled = enabled
	}
}

// OptionsFromConfig maps configuration keys to hub options:
//
//	response_timeout: 5s
//	state_retention: 64
//	metrics: true
//	tracing: false
//
// Missing keys keep their defaults.
func OptionsFromConfig(cfg config.Config) []Option {
	d := defaultHubConfig()
	return []Option{
		WithResponseTimeout(cfg.Duration("response_timeout", d.responseTimeout)),
		WithStateRetention(cfg.Int("state_retention", d.stateRetention)),
		WithMetrics(cfg.Bool("metrics", false)),
		WithTracing(cfg.Bool("tracing", false)),
	}
}
