package hitqueue

import (
	"time"

	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
)

// Config controls retry pacing and transport protection.
type Config struct {
	// RetryInitial is the delay before the first retry of a failed hit.
	RetryInitial time.Duration
	// RetryMax caps the delay between retries.
	RetryMax time.Duration
	// RetryGiveUp drops a hit once it has been retried for this long.
	// Zero retries forever.
	RetryGiveUp time.Duration

	// RatePerSecond limits submissions. Zero disables the limiter.
	RatePerSecond float64
	Burst         int

	// BreakerFailures consecutive transient failures open the circuit
	// breaker for BreakerTimeout. Zero disables the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// SubmitTimeout bounds one transport call.
	SubmitTimeout time.Duration
}

// DefaultConfig returns the defaults used by Open.
func DefaultConfig() Config {
	return Config{
		RetryInitial:    5 * time.Second,
		RetryMax:        5 * time.Minute,
		Burst:           1,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		SubmitTimeout:   10 * time.Second,
	}
}

// ConfigFromMap reads the "hits" section of cfg:
//
//	hits:
//	  retry_initial: 5s
//	  retry_max: 5m
//	  retry_give_up: 24h
//	  rate_per_second: 10
//	  burst: 5
//	  breaker_failures: 5
//	  breaker_timeout: 30s
//	  submit_timeout: 10s
//
// Missing keys keep their defaults.
func ConfigFromMap(cfg config.Config) Config {
	d := DefaultConfig()
	hits := cfg.Sub("hits")
	return Config{
		RetryInitial:    hits.Duration("retry_initial", d.RetryInitial),
		RetryMax:        hits.Duration("retry_max", d.RetryMax),
		RetryGiveUp:     hits.Duration("retry_give_up", d.RetryGiveUp),
		RatePerSecond:   hits.Float("rate_per_second", d.RatePerSecond),
		Burst:           hits.Int("burst", d.Burst),
		BreakerFailures: uint32(max(hits.Int("breaker_failures", int(d.BreakerFailures)), 0)),
		BreakerTimeout:  hits.Duration("breaker_timeout", d.BreakerTimeout),
		SubmitTimeout:   hits.Duration("submit_timeout", d.SubmitTimeout),
	}
}
