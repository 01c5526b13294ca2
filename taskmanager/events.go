package taskmanager

import "github.com/tailored-agentic-units/swarmcore/observability"

// Event types emitted by the Manager, per spec.md §6.2.
const (
	EventTaskCreated observability.EventType = "task.created"
	EventTaskUpdated observability.EventType = "task.updated"
)
