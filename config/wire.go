package config

import (
	"time"

	"github.com/tailored-agentic-units/swarmcore/orchestrator"
	"github.com/tailored-agentic-units/swarmcore/queue"
	"github.com/tailored-agentic-units/swarmcore/workerpool"
)

// QueueConfig projects the scheduling-policy fields of c onto a queue.Config.
func (c SwarmConfig) QueueConfig() queue.Config {
	cfg := queue.Config{
		MaxRetries:                 c.MaxRetries,
		PartialDependencyThreshold: c.PartialDependencyThreshold,
		RetryBackoffMs:             c.RetryBackoffMs,
	}
	switch c.FileConflictStrategy {
	case "serialize":
		cfg.FileConflictStrategy = queue.ConflictStrategySerialize
	default:
		cfg.FileConflictStrategy = queue.ConflictStrategyMergeWarn
	}
	if cfg.PartialDependencyThreshold <= 0 {
		cfg.PartialDependencyThreshold = 1.0
	}
	return cfg
}

// WorkerPoolConfig projects c's worker tiers onto a workerpool.Config.
func (c SwarmConfig) WorkerPoolConfig() workerpool.Config {
	tiers := make([]workerpool.TierConfig, 0, len(c.Workers))
	total := 0
	for _, w := range c.Workers {
		tiers = append(tiers, workerpool.TierConfig{Tier: w.Tier, Count: w.Count})
		total += w.Count
	}
	return workerpool.Config{Tiers: tiers, MaxConcurrent: total}
}

// OrchestratorConfig projects c's timing fields onto an orchestrator.Config.
// PreferredTier, Persist, and Observer are left for the caller to fill in,
// since they depend on runtime collaborators SwarmConfig knows nothing about.
func (c SwarmConfig) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		StaleAfter:         time.Duration(c.StaleAfterMs) * time.Millisecond,
		CheckpointInterval: time.Duration(c.CheckpointIntervalMs) * time.Millisecond,
	}
}

// ModelForTier returns the model configured for tier, or "" if unknown.
func (c SwarmConfig) ModelForTier(tier string) string {
	for _, w := range c.Workers {
		if w.Tier == tier {
			return w.Model
		}
	}
	return ""
}
