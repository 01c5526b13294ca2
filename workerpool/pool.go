// Package workerpool implements the fixed-size, tier-aware slot pool workers
// dispatch onto (spec.md §4.D). It is adapted from the teacher's one-shot
// fan-out-fan-in helper into a long-lived pool: slots persist across waves,
// each remembers the task it is running, and acquisition never blocks.
package workerpool

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tailored-agentic-units/swarmcore/observability"
)

// Config provisions the pool's slots and an optional global concurrency cap.
type Config struct {
	Tiers []TierConfig

	// MaxConcurrent bounds total simultaneously-busy slots across every
	// tier. 0 defaults to the sum of all tier counts (no extra cap beyond
	// the slots themselves).
	MaxConcurrent int
}

// Pool is a fixed-size set of tiered slots, backed by a weighted semaphore
// that enforces the overall concurrency cap independently of per-tier slot
// counts (the same "limit concurrent operations" role a semaphore plays
// elsewhere in the ecosystem, just generalized from a fixed resource count
// to a configurable one).
type Pool struct {
	mu       sync.Mutex
	slots    []*Slot
	sem      *semaphore.Weighted
	observer observability.Observer
	now      func() time.Time
}

// New builds a Pool from Config. observer may be nil (defaults to a no-op).
func New(cfg Config, observer observability.Observer) *Pool {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	var slots []*Slot
	id := 0
	total := 0
	for _, tc := range cfg.Tiers {
		for i := 0; i < tc.Count; i++ {
			slots = append(slots, &Slot{ID: id, Tier: tc.Tier, status: StatusIdle})
			id++
		}
		total += tc.Count
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = total
	}

	return &Pool{
		slots:    slots,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		observer: observer,
		now:      time.Now,
	}
}

// Acquire is non-blocking per spec.md §4.D: it returns an idle slot matching
// requiredTier (any idle slot if requiredTier is empty) and assigns taskID to
// it, or returns (nil, false) immediately if no slot is available or the
// concurrency cap is already saturated.
func (p *Pool) Acquire(requiredTier, taskID string) (*Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidate *Slot
	for _, s := range p.slots {
		if s.status != StatusIdle {
			continue
		}
		if requiredTier != "" && s.Tier != requiredTier {
			continue
		}
		candidate = s
		break
	}
	if candidate == nil {
		p.emit(EventSlotExhausted, "", map[string]any{"tier": requiredTier, "reason": "no_idle_slot"})
		return nil, false
	}

	if !p.sem.TryAcquire(1) {
		p.emit(EventSlotExhausted, "", map[string]any{"tier": requiredTier, "reason": "concurrency_limit"})
		return nil, false
	}

	candidate.status = StatusBusy
	candidate.taskID = taskID
	p.emit(EventSlotAcquired, taskID, map[string]any{"slot_id": candidate.ID, "tier": candidate.Tier})
	return candidate, true
}

// Release returns a slot to idle, whether the task it ran succeeded, failed,
// or crashed — spec.md §4.D requires a crashed/timed-out worker to free its
// slot the same as a clean completion; the caller is responsible for
// reporting the outcome back to the queue via markCompleted/markFailed.
func (p *Pool) Release(slotID int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.slots {
		if s.ID != slotID {
			continue
		}
		if s.status != StatusBusy {
			return
		}
		taskID := s.taskID
		s.status = StatusIdle
		s.taskID = ""
		p.sem.Release(1)
		p.emit(EventSlotReleased, taskID, map[string]any{"slot_id": slotID})
		return
	}
}

// ActiveTaskIDs lists every task currently occupying a busy slot, sorted for
// determinism. This feeds directly into queue.ReconcileOptions.ActiveTaskIDs
// (spec.md §4.C.10) so a task actually in flight is never mistaken for stale.
func (p *Pool) ActiveTaskIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for _, s := range p.slots {
		if s.status == StatusBusy && s.taskID != "" {
			out = append(out, s.taskID)
		}
	}
	sort.Strings(out)
	return out
}

// TierStats summarizes occupancy for one tier.
type TierStats struct {
	Total int
	Idle  int
	Busy  int
}

// Stats summarizes pool occupancy overall and per tier.
type Stats struct {
	Total  int
	Idle   int
	Busy   int
	ByTier map[string]TierStats
}

// Stats reports current slot occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{ByTier: make(map[string]TierStats)}
	for _, slot := range p.slots {
		s.Total++
		ts := s.ByTier[slot.Tier]
		ts.Total++
		if slot.status == StatusBusy {
			s.Busy++
			ts.Busy++
		} else {
			s.Idle++
			ts.Idle++
		}
		s.ByTier[slot.Tier] = ts
	}
	return s
}

func (p *Pool) emit(eventType observability.EventType, taskID string, extra map[string]any) {
	data := map[string]any{}
	if taskID != "" {
		data["task_id"] = taskID
	}
	for k, v := range extra {
		data[k] = v
	}
	p.observer.OnEvent(context.Background(), observability.Event{
		Type:      eventType,
		Level:     observability.LevelInfo,
		Timestamp: p.now(),
		Source:    "workerpool.Pool",
		Data:      data,
	})
}
