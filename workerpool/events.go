package workerpool

import "github.com/tailored-agentic-units/swarmcore/observability"

// Event types emitted by the pool, per spec.md §6.2.
const (
	EventSlotAcquired  observability.EventType = "pool.slot.acquired"
	EventSlotReleased  observability.EventType = "pool.slot.released"
	EventSlotExhausted observability.EventType = "pool.slot.exhausted"
)
