/*
Package config provides type-safe configuration extraction for the hub and
its collaborators.

# Overview

Config wraps a map[string]any and provides typed accessors that return the
caller's default when a key is missing or has the wrong type. Keys may be
dot-separated paths into nested sections:

	cfg, err := config.FromFile("eventhub.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	timeout := cfg.Duration("response_timeout", 5*time.Second)
	burst := cfg.Int("hits.burst", 1)

	hits := cfg.Sub("hits")
	initial := hits.Duration("retry_initial", time.Second)

# Environment Overlay

WithEnv layers environment variables over a loaded file:

	cfg = cfg.WithEnv("EVENTHUB", os.Environ())
	// EVENTHUB_STATE_RETENTION=128      -> "state_retention"
	// EVENTHUB_HITS__RATE_PER_SECOND=5  -> "hits.rate_per_second"

# Type Coercion

Duration accepts time.ParseDuration strings, numbers of seconds, and
time.Duration values. Int, Float and Bool also parse strings, which keeps
environment overrides usable.

# Thread Safety

Config is safe for concurrent read access. With and WithEnv return copies.
*/
package config
