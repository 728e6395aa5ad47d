package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// WithEnv overlays environment variables carrying prefix onto c.
// PREFIX_HITS__BURST=4 sets "hits.burst"; a double underscore separates
// sections and names are lower-cased. Values stay strings; the typed
// accessors convert them.
func (c Config) WithEnv(prefix string, environ []string) Config {
	out := deepCopy(c.data)
	p := strings.ToUpper(prefix) + "_"

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, p) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(name, p)), "__")
		set(out, path, value)
	}
	return Config{data: out}
}

func set(m map[string]any, path []string, value any) {
	for _, part := range path[:len(path)-1] {
		next := asMap(m[part])
		if next == nil {
			next = make(map[string]any)
		}
		m[part] = next
		m = next
	}
	m[path[len(path)-1]] = value
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub := asMap(v); sub != nil {
			out[k] = deepCopy(sub)
			continue
		}
		out[k] = v
	}
	return out
}
