package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrCyclicDecomposition is returned by Load when the decomposition's
	// DependencyGraph.Cycles is non-empty. Per spec.md §4.C.1 this is a hard
	// reject: no partial state is committed.
	ErrCyclicDecomposition = errors.New("queue: decomposition contains a dependency cycle")

	// ErrNotFound is returned when an operation references an unknown task id.
	ErrNotFound = errors.New("queue: task not found")

	// ErrCheckpointCorrupt is returned by RestoreFromCheckpoint on a
	// malformed snapshot. Per spec.md §7, this is fatal and must not mutate
	// in-memory state.
	ErrCheckpointCorrupt = errors.New("queue: checkpoint is not well-formed")
)

// TransitionError reports an illegal state-machine transition attempt.
type TransitionError struct {
	TaskID string
	From   Status
	Want   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("queue: task %s: invalid transition from %s (expected precondition %s)", e.TaskID, e.From, e.Want)
}
