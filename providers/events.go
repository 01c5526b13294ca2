package providers

import "github.com/tailored-agentic-units/swarmcore/observability"

// Event types emitted by the Chain, per spec.md §4.A.
const (
	EventProviderSuccess  observability.EventType = "provider.success"
	EventProviderFailure  observability.EventType = "provider.failure"
	EventProviderFallback observability.EventType = "provider.fallback"
	EventCooldownStart    observability.EventType = "provider.cooldown.start"
	EventCooldownEnd      observability.EventType = "provider.cooldown.end"
	EventChainExhausted   observability.EventType = "chain.exhausted"
)
