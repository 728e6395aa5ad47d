// Package observability provides structured logging, metrics, and tracing
// for the event hub.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every log helper accepts a nil logger and does nothing in that case.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds extension context to a logger.
// Returns a new logger with extension and lane fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "com.example.lifecycle", "lifecycle-lane")
//	enriched.Info("session started") // includes extension, lane
func EnrichLogger(logger *slog.Logger, extension, lane string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("extension", extension),
		slog.String("lane", lane),
	)
}

// LogHubStarted logs hub startup.
func LogHubStarted(logger *slog.Logger, extensions int) {
	if logger == nil {
		return
	}
	logger.Info("event hub started",
		slog.Int("extensions", extensions),
	)
}

// LogHubShutdown logs hub shutdown completion.
func LogHubShutdown(logger *slog.Logger, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("event hub shut down",
		slog.Float64("duration_ms", durationMs),
	)
}

// LogExtensionRegistered logs a successful registration.
func LogExtensionRegistered(logger *slog.Logger, name, version string) {
	if logger == nil {
		return
	}
	logger.Info("extension registered",
		slog.String("extension", name),
		slog.String("version", version),
	)
}

// LogExtensionRejected logs a failed registration.
func LogExtensionRejected(logger *slog.Logger, name string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("extension registration rejected",
		slog.String("extension", name),
		slog.String("error", err.Error()),
	)
}

// LogExtensionUnregistered logs extension removal.
func LogExtensionUnregistered(logger *slog.Logger, name string) {
	if logger == nil {
		return
	}
	logger.Info("extension unregistered",
		slog.String("extension", name),
	)
}

// LogUnknownExtension logs an operation requested on behalf of an extension
// that is not registered. The operation is dropped.
func LogUnknownExtension(logger *slog.Logger, op, name string) {
	if logger == nil {
		return
	}
	logger.Warn("operation from unregistered extension ignored",
		slog.String("operation", op),
		slog.String("extension", name),
	)
}

// LogEventDispatched logs event admission.
func LogEventDispatched(logger *slog.Logger, eventID, eventType, source string, number int64) {
	if logger == nil {
		return
	}
	logger.Debug("event dispatched",
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("event_source", source),
		slog.Int64("event_number", number),
	)
}

// LogListenerPanic logs a recovered listener panic.
func LogListenerPanic(logger *slog.Logger, extension, eventID string, recovered any, stack []byte) {
	if logger == nil {
		return
	}
	logger.Error("listener panicked",
		slog.String("extension", extension),
		slog.String("event_id", eventID),
		slog.Any("panic", recovered),
		slog.String("stack", string(stack)),
	)
}

// LogResponseTimeout logs a response listener that timed out.
func LogResponseTimeout(logger *slog.Logger, extension, triggerID string, timeout time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("response listener timed out",
		slog.String("extension", extension),
		slog.String("trigger_id", triggerID),
		slog.Duration("timeout", timeout),
	)
}

// LogStateChanged logs a shared state write.
func LogStateChanged(logger *slog.Logger, owner, kind string, version int64, status string) {
	if logger == nil {
		return
	}
	logger.Debug("shared state changed",
		slog.String("extension", owner),
		slog.String("kind", kind),
		slog.Int64("version", version),
		slog.String("status", status),
	)
}

// LogStateRejected logs a shared state write dropped for violating version
// ordering.
func LogStateRejected(logger *slog.Logger, owner string, version int64, err error) {
	if logger == nil {
		return
	}
	logger.Warn("shared state write rejected",
		slog.String("extension", owner),
		slog.Int64("version", version),
		slog.String("error", err.Error()),
	)
}

// LogStateEvicted logs a snapshot removed by the retention bound.
func LogStateEvicted(logger *slog.Logger, owner string, version int64) {
	if logger == nil {
		return
	}
	logger.Debug("shared state snapshot evicted",
		slog.String("extension", owner),
		slog.Int64("version", version),
	)
}

// LogHitSent logs a successfully submitted hit.
func LogHitSent(logger *slog.Logger, hitID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("hit sent",
		slog.String("hit_id", hitID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogHitRetry logs a recoverable hit failure. The queue pauses for delay.
func LogHitRetry(logger *slog.Logger, hitID string, attempt int, delay time.Duration, err error) {
	if logger == nil {
		return
	}
	logger.Warn("hit submission failed, retrying",
		slog.String("hit_id", hitID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

// LogHitDropped logs a hit discarded after an unrecoverable failure.
func LogHitDropped(logger *slog.Logger, hitID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("hit dropped",
		slog.String("hit_id", hitID),
		slog.String("error", err.Error()),
	)
}

// LogStorageError logs a storage failure (non-fatal).
func LogStorageError(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("storage operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
