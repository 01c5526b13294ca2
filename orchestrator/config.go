package orchestrator

import (
	"time"

	"github.com/tailored-agentic-units/swarmcore/observability"
	"github.com/tailored-agentic-units/swarmcore/queue"
)

// Config configures the orchestrator loop itself (spec.md §4.E, §6.1's
// staleAfterMs/checkpointIntervalMs). Retry policy (maxRetries,
// retryBackoffMs, partialDependencyThreshold) lives on the queue it drives,
// not here — see Queue.Config.
type Config struct {
	// StaleAfter is the lease window past which a dispatched task with no
	// active worker is reconciled back to ready.
	StaleAfter time.Duration

	// CheckpointInterval is how often GetCheckpointState is persisted via
	// Persist. 0 defaults to one minute; a nil Persist disables checkpointing.
	CheckpointInterval time.Duration

	// StaleCheckInterval is how often ReconcileStaleDispatched runs. 0
	// defaults to StaleAfter.
	StaleCheckInterval time.Duration

	// RetryPollInterval is how often the loop re-checks GetAllReadyTasks
	// even with no worker completion pending, so a task reinstated by
	// MarkFailed's retry cooldown is dispatched again once the cooldown
	// elapses rather than waiting on an event that will never arrive.
	// 0 defaults to 200ms.
	RetryPollInterval time.Duration

	// PreferredTier maps a task's type to the worker-pool tier that should
	// run it. Nil means "any tier" for every task type.
	PreferredTier func(taskType string) string

	// Persist receives each checkpoint snapshot. Nil disables persistence.
	Persist func(queue.Checkpoint) error

	Observer observability.Observer
	Now      func() time.Time
}

func withDefaults(cfg Config) Config {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.StaleCheckInterval <= 0 {
		cfg.StaleCheckInterval = cfg.StaleAfter
	}
	if cfg.RetryPollInterval <= 0 {
		cfg.RetryPollInterval = 200 * time.Millisecond
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = time.Minute
	}
	if cfg.Observer == nil {
		cfg.Observer = observability.NoOpObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}
