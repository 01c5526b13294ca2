package orchestrator

import "github.com/tailored-agentic-units/swarmcore/observability"

// Event types emitted by the orchestrator loop itself, per spec.md §6.2 and
// §4.E's stale/checkpoint timer handling.
const (
	EventStaleRecovered      observability.EventType = "orchestrator.stale.recovered"
	EventCheckpointPersisted observability.EventType = "orchestrator.checkpoint.persisted"
	EventCheckpointFailed    observability.EventType = "orchestrator.checkpoint.failed"
	EventWorkerPanic         observability.EventType = "orchestrator.worker.panic"
)
