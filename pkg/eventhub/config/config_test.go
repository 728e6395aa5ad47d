package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventhub/pkg/eventhub/config"
)

func TestNew(t *testing.T) {
	cfg := config.New(nil)
	assert.NotNil(t, cfg.Raw())
	assert.False(t, cfg.Has("anything"))
}

func TestAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":     "hub",
		"timeout":  "250ms",
		"seconds":  3,
		"fraction": 1.5,
		"enabled":  true,
		"flag":     "false",
		"count":    float64(42),
		"numeric":  "17",
		"rate":     "2.5",
		"tags":     []any{"a", "b"},
		"mixed":    []any{"a", 1},
	})

	assert.Equal(t, "hub", cfg.String("name", "x"))
	assert.Equal(t, "x", cfg.String("count", "x"))

	assert.Equal(t, 250*time.Millisecond, cfg.Duration("timeout", 0))
	assert.Equal(t, 3*time.Second, cfg.Duration("seconds", 0))
	assert.Equal(t, 1500*time.Millisecond, cfg.Duration("fraction", 0))
	assert.Equal(t, time.Minute, cfg.Duration("name", time.Minute))

	assert.True(t, cfg.Bool("enabled", false))
	assert.False(t, cfg.Bool("flag", true))
	assert.True(t, cfg.Bool("name", true))

	assert.Equal(t, 42, cfg.Int("count", 0))
	assert.Equal(t, 17, cfg.Int("numeric", 0))
	assert.Equal(t, 9, cfg.Int("fraction", 9))

	assert.Equal(t, 2.5, cfg.Float("rate", 0))
	assert.Equal(t, 3.0, cfg.Float("seconds", 0))

	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("tags", nil))
	assert.Equal(t, []string{"d"}, cfg.StringSlice("mixed", []string{"d"}))
}

func TestDottedPathsAndSub(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
response_timeout: 2s
hits:
  retry_initial: 100ms
  burst: 4
  breaker:
    failures: 3
`))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Int("hits.burst", 0))
	assert.Equal(t, 3, cfg.Int("hits.breaker.failures", 0))
	assert.True(t, cfg.Has("hits.retry_initial"))
	assert.False(t, cfg.Has("hits.missing"))
	assert.False(t, cfg.Has("response_timeout.nested"))

	hits := cfg.Sub("hits")
	assert.Equal(t, 100*time.Millisecond, hits.Duration("retry_initial", 0))
	assert.Equal(t, 3, hits.Sub("breaker").Int("failures", 0))

	assert.False(t, cfg.Sub("response_timeout").Has("x"), "non-map section is empty")
	assert.False(t, cfg.Sub("absent").Has("x"))
}

func TestLiteralDottedKeyWins(t *testing.T) {
	cfg := config.New(map[string]any{
		"a.b": "literal",
		"a":   map[string]any{"b": "nested"},
	})
	assert.Equal(t, "literal", cfg.String("a.b", ""))
}

func TestWith(t *testing.T) {
	base := config.New(map[string]any{"a": 1})
	next := base.With("b", 2)

	assert.Equal(t, 2, next.Int("b", 0))
	assert.False(t, base.Has("b"), "With must not modify the receiver")
}

func TestWithEnv(t *testing.T) {
	base := config.New(map[string]any{
		"state_retention": 64,
		"hits":            map[string]any{"burst": 1, "retry_max": "30s"},
	})

	cfg := base.WithEnv("eventhub", []string{
		"EVENTHUB_STATE_RETENTION=128",
		"EVENTHUB_HITS__BURST=4",
		"EVENTHUB_METRICS=true",
		"OTHER_VALUE=1",
		"malformed",
	})

	assert.Equal(t, 128, cfg.Int("state_retention", 0))
	assert.Equal(t, 4, cfg.Int("hits.burst", 0))
	assert.Equal(t, 30*time.Second, cfg.Duration("hits.retry_max", 0))
	assert.True(t, cfg.Bool("metrics", false))
	assert.False(t, cfg.Has("other_value"))

	assert.Equal(t, 1, base.Int("hits.burst", 0), "overlay must not modify the base")
}

func TestFromYAML_Invalid(t *testing.T) {
	_, err := config.FromYAML([]byte(`invalid: yaml: content:`))
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"hits": {"rate_per_second": 5}}`))
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Float("hits.rate_per_second", 0))

	_, err = config.FromJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "hub.YML")
	require.NoError(t, os.WriteFile(yamlPath, []byte("state_retention: 10\n"), 0o644))

	jsonPath := filepath.Join(dir, "hub.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"state_retention": 20}`), 0o644))

	txtPath := filepath.Join(dir, "hub.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o644))

	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Int("state_retention", 0))

	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Int("state_retention", 0))

	_, err = config.FromFile(txtPath)
	assert.ErrorContains(t, err, "unsupported config file extension")

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
