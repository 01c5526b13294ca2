package blackboard

import "github.com/tailored-agentic-units/swarmcore/observability"

// Event types emitted by the blackboard, per spec.md §6.2's blackboard.finding.
const (
	EventFindingPosted    observability.EventType = "blackboard.finding"
	EventFindingMerged    observability.EventType = "blackboard.finding.merged"
	EventResourceClaimed  observability.EventType = "blackboard.claim"
	EventResourceReleased observability.EventType = "blackboard.release"
	EventSubscriberPanic  observability.EventType = "blackboard.subscriber.panic"
)
