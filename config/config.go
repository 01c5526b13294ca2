// Package config holds the swarm's top-level configuration (spec.md §6.1):
// the knobs that get threaded down into the provider chain, queue,
// worker pool, and orchestrator at construction time.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// WorkerTier describes one worker-pool slot tier: how many slots it has and
// which model backs it (spec.md §4.D's "cheap small model for research, a
// stronger model for implementation" example).
type WorkerTier struct {
	Tier  string `json:"tier"`
	Count int    `json:"count"`
	Model string `json:"model,omitempty"`
}

// SwarmConfig is the full configuration surface spec.md §6.1 names.
type SwarmConfig struct {
	OrchestratorModel          string       `json:"orchestrator_model,omitempty"`
	Workers                    []WorkerTier `json:"workers,omitempty"`
	MaxRetries                 int          `json:"max_retries,omitempty"`
	PartialDependencyThreshold float64      `json:"partial_dependency_threshold,omitempty"`
	FileConflictStrategy       string       `json:"file_conflict_strategy,omitempty"`
	RetryBackoffMs             int64        `json:"retry_backoff_ms,omitempty"`
	StaleAfterMs               int64        `json:"stale_after_ms,omitempty"`
	CheckpointIntervalMs       int64        `json:"checkpoint_interval_ms,omitempty"`
}

// DefaultConfig returns spec.md's stated defaults (queue.DefaultConfig and
// the orchestrator's withDefaults mirror these numerically; this is the
// single source the CLI layer reads from before constructing either).
func DefaultConfig() SwarmConfig {
	return SwarmConfig{
		OrchestratorModel: "default",
		Workers: []WorkerTier{
			{Tier: "default", Count: 3},
		},
		MaxRetries:                 0,
		PartialDependencyThreshold: 1.0,
		FileConflictStrategy:       "merge_warn",
		RetryBackoffMs:             1000,
		StaleAfterMs:               300_000,
		CheckpointIntervalMs:       60_000,
	}
}

// Merge applies every non-zero field of source onto c in place.
func (c *SwarmConfig) Merge(source *SwarmConfig) {
	if source.OrchestratorModel != "" {
		c.OrchestratorModel = source.OrchestratorModel
	}
	if len(source.Workers) > 0 {
		c.Workers = source.Workers
	}
	if source.MaxRetries > 0 {
		c.MaxRetries = source.MaxRetries
	}
	if source.PartialDependencyThreshold > 0 {
		c.PartialDependencyThreshold = source.PartialDependencyThreshold
	}
	if source.FileConflictStrategy != "" {
		c.FileConflictStrategy = source.FileConflictStrategy
	}
	if source.RetryBackoffMs > 0 {
		c.RetryBackoffMs = source.RetryBackoffMs
	}
	if source.StaleAfterMs > 0 {
		c.StaleAfterMs = source.StaleAfterMs
	}
	if source.CheckpointIntervalMs > 0 {
		c.CheckpointIntervalMs = source.CheckpointIntervalMs
	}
}

// Load reads a JSON config file, merges it over DefaultConfig, and returns
// the result.
func Load(filename string) (*SwarmConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", filename, err)
	}

	var loaded SwarmConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", filename, err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
