package providers

import (
	"sync"
	"time"
)

// breakerState models the circuit breaker distinctly from "healthy", per
// spec.md §9's design note ("a cleaner reimplementation should track
// [half-open and healthy] distinctly").
type breakerState int

const (
	stateHealthy breakerState = iota
	stateTripped
	stateHalfOpen
)

// Health is a per-provider running record driving the chain's circuit
// breaker. Zero value is a healthy, never-called provider.
type Health struct {
	mu sync.Mutex

	consecutiveFailures int
	lastFailureAt       time.Time
	cooldownUntil       time.Time
	totalRequests       int64
	totalFailures       int64

	state        breakerState
	indefinite   bool // set by authentication failures; cleared only by an explicit operator action
	failureAfter int  // failureThreshold, copied from chain config at construction
	cooldown     time.Duration
}

func newHealth(failureThreshold int, cooldown time.Duration) *Health {
	return &Health{failureAfter: failureThreshold, cooldown: cooldown}
}

// Snapshot is the read-only view exposed to callers and observability
// events (see spec.md §3.1 "Provider Health").
type Snapshot struct {
	ConsecutiveFailures int
	LastFailureAt       time.Time
	CooldownUntil       time.Time
	TotalRequests       int64
	TotalFailures       int64
	SuccessRate         float64
	Healthy             bool
}

// Snapshot returns a consistent point-in-time copy of the health record.
func (h *Health) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *Health) snapshotLocked() Snapshot {
	rate := 1.0
	if h.totalRequests > 0 {
		rate = float64(h.totalRequests-h.totalFailures) / float64(h.totalRequests)
	}
	return Snapshot{
		ConsecutiveFailures: h.consecutiveFailures,
		LastFailureAt:       h.lastFailureAt,
		CooldownUntil:       h.cooldownUntil,
		TotalRequests:       h.totalRequests,
		TotalFailures:       h.totalFailures,
		SuccessRate:         rate,
		Healthy:             h.state == stateHealthy,
	}
}

// Available reports whether the provider may currently be attempted. It
// clears an expired cooldown as a side effect (moving tripped -> half-open),
// matching spec.md §4.A: "On entering the candidate loop, any expired
// cooldown is cleared."
func (h *Health) Available(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.indefinite {
		return false
	}

	if h.state == stateTripped {
		if !h.cooldownUntil.IsZero() && !now.Before(h.cooldownUntil) {
			h.state = stateHalfOpen
			h.cooldownUntil = time.Time{}
		} else {
			return false
		}
	}
	return true
}

// recordSuccess resets failure bookkeeping. Returns true if this closed a
// previously tripped/half-open circuit (for the provider.cooldown.end event).
func (h *Health) recordSuccess() (wasUnhealthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	wasUnhealthy = h.state != stateHealthy
	h.consecutiveFailures = 0
	h.state = stateHealthy
	h.indefinite = false
	return wasUnhealthy
}

// recordFailure increments failure counters and trips the breaker once
// consecutiveFailures reaches the configured threshold. fatal marks an
// authentication failure, which cools down indefinitely until explicitly
// cleared. Returns true if this call tripped the breaker (for the
// provider.cooldown.start event).
func (h *Health) recordFailure(now time.Time, fatal bool) (trippedNow bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalRequests++
	h.totalFailures++
	h.consecutiveFailures++
	h.lastFailureAt = now

	if fatal {
		h.indefinite = true
		wasTripped := h.state == stateTripped
		h.state = stateTripped
		return !wasTripped
	}

	if h.consecutiveFailures >= h.failureAfter && h.state != stateTripped {
		h.state = stateTripped
		h.cooldownUntil = now.Add(h.cooldown)
		return true
	}
	if h.state == stateHalfOpen {
		// A probe failed during half-open: re-trip immediately.
		h.state = stateTripped
		h.cooldownUntil = now.Add(h.cooldown)
		return true
	}
	return false
}

// MarkHealthy force-clears any cooldown/indefinite state. Used by operator
// tooling per spec.md §4.A ("Clients may manually mark a provider healthy").
func (h *Health) MarkHealthy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = stateHealthy
	h.consecutiveFailures = 0
	h.cooldownUntil = time.Time{}
	h.indefinite = false
}

// MarkUnhealthy force-trips the breaker for the given duration (zero means
// indefinite, mirroring an authentication failure's cooldown).
func (h *Health) MarkUnhealthy(now time.Time, duration time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = stateTripped
	if duration <= 0 {
		h.indefinite = true
		h.cooldownUntil = time.Time{}
	} else {
		h.indefinite = false
		h.cooldownUntil = now.Add(duration)
	}
}
