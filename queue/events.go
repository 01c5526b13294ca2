package queue

import "github.com/tailored-agentic-units/swarmcore/observability"

// Event types emitted by the queue, per spec.md §6.2.
const (
	EventTaskCreated    observability.EventType = "task.created"
	EventTaskUpdated    observability.EventType = "task.updated"
	EventTaskDispatched observability.EventType = "task.dispatched"
	EventTaskCompleted  observability.EventType = "task.completed"
	EventTaskFailed     observability.EventType = "task.failed"
	EventTaskSkipped    observability.EventType = "task.skipped"
	EventWaveAdvanced   observability.EventType = "wave.advanced"
)

// SkipListener is invoked once, synchronously, for every task the queue
// cascade-skips. Per spec.md §9, a panicking listener must not corrupt queue
// state or prevent the skip itself from being recorded; the queue recovers a
// listener's panic at delivery, so listeners need no wrapping of their own.
type SkipListener func(taskID, reason string)
