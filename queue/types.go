// Package queue implements the wave scheduler: the state machine that takes
// a Decomposition and a SwarmConfig and drives each task from pending to a
// terminal state, honoring wave ordering, partial-dependency tolerance,
// cascade-skip, retry cooldown, and checkpoint/restore (spec.md §4.C).
package queue

import "time"

// Status is a task's runtime dispatch state, owned entirely by the queue
// (distinct from taskmanager.Status, which tracks persistent ownership).
type Status string

const (
	StatusPending    Status = "pending"
	StatusReady      Status = "ready"
	StatusDispatched Status = "dispatched"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// ConflictType classifies a resource conflict between two tasks.
type ConflictType string

const (
	ConflictWriteWrite ConflictType = "write-write"
	ConflictReadWrite  ConflictType = "read-write"
	ConflictWriteRead  ConflictType = "write-read"
)

// Strategy is the decomposer-declared execution shape.
type Strategy string

const (
	StrategyParallel   Strategy = "parallel"
	StrategySequential Strategy = "sequential"
	StrategyHybrid     Strategy = "hybrid"
)

// ConflictStrategy governs how the queue resolves declared Conflicts.
type ConflictStrategy string

const (
	ConflictStrategySerialize ConflictStrategy = "serialize"
	ConflictStrategyMergeWarn ConflictStrategy = "merge_warn"
)

// TaskInput is the decomposer-supplied, load-time description of a subtask.
// It is distinct from the queue's own runtime Task record: these fields
// never change once loaded.
type TaskInput struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Type         string   `json:"type,omitempty"`
	Complexity   int      `json:"complexity,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Modifies     []string `json:"modifies,omitempty"`
	Reads        []string `json:"reads,omitempty"`
}

// DependencyGraph carries the decomposer's execution plan.
type DependencyGraph struct {
	ExecutionOrder []string   `json:"executionOrder,omitempty"`
	ParallelGroups [][]string `json:"parallelGroups,omitempty"`
	Cycles         [][]string `json:"cycles,omitempty"`
}

// Conflict is a decomposer-declared resource contention between tasks.
type Conflict struct {
	Resource   string       `json:"resource"`
	TaskIDs    []string     `json:"taskIds"`
	Type       ConflictType `json:"type"`
	Severity   string       `json:"severity,omitempty"`
	Suggestion string       `json:"suggestion,omitempty"`
}

// Decomposition is the full load-time input to the queue.
type Decomposition struct {
	OriginalTask    string          `json:"originalTask,omitempty"`
	Subtasks        []TaskInput     `json:"subtasks"`
	DependencyGraph DependencyGraph `json:"dependencyGraph"`
	Conflicts       []Conflict      `json:"conflicts,omitempty"`
	Strategy        Strategy        `json:"strategy,omitempty"`
}

// Config carries the scheduling policy knobs of spec.md §4.C.1 / §6.1.
type Config struct {
	MaxRetries                 int
	PartialDependencyThreshold float64 // default 1.0
	FileConflictStrategy       ConflictStrategy
	RetryBackoffMs             int64
	DependencyContextTruncate  int // max bytes per dependency output snippet; 0 = no truncation
}

// DefaultConfig returns spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:                 0,
		PartialDependencyThreshold: 1.0,
		FileConflictStrategy:       ConflictStrategyMergeWarn,
		RetryBackoffMs:             1000,
		DependencyContextTruncate:  2000,
	}
}

// PartialContext is attached to a task that became ready despite some
// dependencies failing.
type PartialContext struct {
	Ratio     float64  `json:"ratio"`
	Succeeded []string `json:"succeeded,omitempty"`
	Failed    []string `json:"failed,omitempty"`
}

// TaskResult is the outcome a worker reports for a dispatched task.
type TaskResult struct {
	Success    bool
	Output     string
	TokensUsed int
	CostUsed   float64
	DurationMs int64
	Model      string

	// DispatchID correlates this result back to the dispatch that produced
	// it (the Task's DispatchID at the time the worker was handed the
	// task), so a trace survives a crash/resume boundary.
	DispatchID string
}

// Task is the queue's own runtime record for a single subtask.
type Task struct {
	ID           string
	Description  string
	Type         string
	Complexity   int
	Dependencies []string
	Modifies     []string
	Reads        []string

	Status     Status
	Wave       int
	Attempts   int
	OwnerTier  string
	RetryAfter time.Time

	DispatchedAt time.Time

	// DispatchID is a fresh UUIDv7 minted by MarkDispatched, threaded
	// through observability events and into the worker's eventual
	// TaskResult so a single dispatch can be correlated end-to-end.
	DispatchID string

	Output         string
	PartialContext *PartialContext

	// FixInstructions carries a fixup task's remediation directive (spec.md
	// §4.C.8) into DependencyContext so it reaches the worker prompt. Empty
	// for ordinary tasks.
	FixInstructions string

	SkipReason string
	Warnings   []string
}

// Checkpoint is a fully serializable snapshot sufficient to reconstruct
// queue state (spec.md §3.1 "Checkpoint").
type Checkpoint struct {
	Version      int              `json:"version"`
	CurrentWave  int              `json:"currentWave"`
	Tasks        []CheckpointTask `json:"tasks"`
	ActiveOwners []string         `json:"activeOwners,omitempty"`
}

// CheckpointTask is one task's serialized runtime state.
type CheckpointTask struct {
	ID             string          `json:"id"`
	Status         Status          `json:"status"`
	Wave           int             `json:"wave"`
	Attempts       int             `json:"attempts"`
	DispatchedAt   time.Time       `json:"dispatchedAt,omitempty"`
	RetryAfter     time.Time       `json:"retryAfter,omitempty"`
	OwnerTier      string          `json:"ownerTier,omitempty"`
	Output         string          `json:"output,omitempty"`
	PartialContext *PartialContext `json:"partialContext,omitempty"`
}

// Stats is the getStats() projection: counts per status plus how many are
// currently ready.
type Stats struct {
	Pending    int
	Ready      int
	Dispatched int
	Completed  int
	Failed     int
	Skipped    int

	// ByType breaks the same total down by Task.Type, e.g. {"implement":
	// 4, "test": 2}, mirroring the richer end-of-run summaries other
	// orchestration implementations in the pack produce.
	ByType map[string]int
}

// FixupTask inserts remedial work into the current wave (spec.md §4.C.8).
type FixupTask struct {
	ID              string
	FixesTaskID     string
	FixInstructions string
	Description     string
	Type            string
	Complexity      int
}

