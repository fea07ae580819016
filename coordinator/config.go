package coordinator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// fileConfig mirrors Config for YAML decoding. Durations are loaded as
// parseable strings since yaml.v2 has no native time.Duration support
// (SPEC_FULL.md §4.8). Only the retry bound, failure threshold and sync
// interval are read; worker pool sizes are not part of the file.
type fileConfig struct {
	RetryMaxElapsed  string `yaml:"retry_max_elapsed"`
	FailureThreshold int    `yaml:"failure_threshold"`
	SyncInterval     string `yaml:"sync_interval"`
}

// LoadConfig reads a Config from a YAML file at path. Any field omitted
// from the file keeps DefaultConfig's value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("coordinator: read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("coordinator: parse config %s: %w", path, err)
	}

	if fc.RetryMaxElapsed != "" {
		d, err := time.ParseDuration(fc.RetryMaxElapsed)
		if err != nil {
			return Config{}, fmt.Errorf("coordinator: retry_max_elapsed: %w", err)
		}
		cfg.RetryMaxElapsed = d
	}
	if fc.FailureThreshold > 0 {
		cfg.FailureThreshold = fc.FailureThreshold
	}
	if fc.SyncInterval != "" {
		d, err := time.ParseDuration(fc.SyncInterval)
		if err != nil {
			return Config{}, fmt.Errorf("coordinator: sync_interval: %w", err)
		}
		cfg.SyncInterval = d
	}

	return cfg, nil
}
