// Package blackboard implements the shared, append-only findings store
// workers use to publish and discover cross-task context (spec.md §4.F),
// plus the advisory resource-claim primitive that is the runtime's only live
// mutual-exclusion mechanism (spec.md §5).
package blackboard

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/swarmcore/observability"
)

// Subscription is a registered (topicPattern, callback) pair. topicPattern
// follows path.Match syntax (e.g. "task.*"), matched against each finding's
// Topic at post time.
type Subscription struct {
	ID      string
	Pattern string
	Handler func(Finding)
}

// Board is the in-process blackboard: one append-only findings log plus the
// advisory claim table. It is write-mostly from workers and read-on-demand;
// per spec.md §4.F it sits outside the critical path of task readiness, so
// nothing in queue or orchestrator ever blocks on it.
type Board struct {
	mu       sync.RWMutex
	findings []Finding
	byKey    map[string]int // "topic\x00content" -> index into findings, for post-time dedup

	subs map[string]*Subscription

	claims map[string]*claim // resource -> claim

	observer observability.Observer
	newID    func() string
	now      func() time.Time
}

// Option configures a Board at construction time.
type Option func(*Board)

// WithObserver overrides the board's event sink. Defaults to a no-op.
func WithObserver(o observability.Observer) Option {
	return func(b *Board) { b.observer = o }
}

// WithIDFunc overrides finding-ID generation, primarily for deterministic
// tests. Defaults to uuid.NewString.
func WithIDFunc(f func() string) Option {
	return func(b *Board) { b.newID = f }
}

// WithClock overrides the time source used to stamp CreatedAt. Defaults to
// time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

// New constructs an empty Board.
func New(opts ...Option) *Board {
	b := &Board{
		findings: make([]Finding, 0),
		byKey:    make(map[string]int),
		subs:     make(map[string]*Subscription),
		claims:   make(map[string]*claim),
		observer: observability.NoOpObserver{},
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func dedupeKey(topic, content string) string {
	return topic + "\x00" + content
}

// Post appends a finding, deduplicating against any existing finding with
// the same (topic, content): the surviving variant is whichever has the
// higher Confidence (ties keep the original, since it already fanned out to
// subscribers). Post assigns ID and CreatedAt if unset. The returned Finding
// reflects what the board actually holds after dedup — which may be the
// caller's own finding, or the one it merged into.
func (b *Board) Post(agentID string, f Finding) Finding {
	if f.ID == "" {
		f.ID = b.newID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = b.now()
	}
	f.AgentID = agentID

	b.mu.Lock()
	key := dedupeKey(f.Topic, f.Content)
	if idx, exists := b.byKey[key]; exists {
		existing := b.findings[idx]
		if f.Confidence <= existing.Confidence {
			b.mu.Unlock()
			b.emit(EventFindingMerged, f.ID, map[string]any{"topic": f.Topic, "merged_into": existing.ID})
			return existing
		}
		f.ID = existing.ID
		f.CreatedAt = existing.CreatedAt
		b.findings[idx] = f
		b.mu.Unlock()
		b.emit(EventFindingMerged, f.ID, map[string]any{"topic": f.Topic, "confidence": f.Confidence})
		b.fanOut(f)
		return f
	}

	b.byKey[key] = len(b.findings)
	b.findings = append(b.findings, f)
	subs := b.matchingSubs(f.Topic)
	b.mu.Unlock()

	b.emit(EventFindingPosted, f.ID, map[string]any{"topic": f.Topic, "agent_id": agentID})
	b.dispatch(subs, f)
	return f
}

// Query returns every finding matching q, in post order.
func (b *Board) Query(q Query) []Finding {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Finding, 0)
	for _, f := range b.findings {
		if q.matches(f) {
			out = append(out, f)
		}
	}
	return out
}

// Subscribe registers handler to be invoked synchronously for every future
// post whose topic matches pattern. It returns a subscription ID usable with
// Unsubscribe. The handler runs on the goroutine that called Post; a
// panicking handler is recovered so it cannot corrupt the board or block
// delivery to other subscribers.
func (b *Board) Subscribe(pattern string, handler func(Finding)) string {
	id := b.newID()
	b.mu.Lock()
	b.subs[id] = &Subscription{ID: id, Pattern: pattern, Handler: handler}
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription registered via Subscribe.
func (b *Board) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *Board) matchingSubs(topic string) []*Subscription {
	out := make([]*Subscription, 0)
	for _, s := range b.subs {
		if ok, _ := path.Match(s.Pattern, topic); ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Board) fanOut(f Finding) {
	b.mu.RLock()
	subs := b.matchingSubs(f.Topic)
	b.mu.RUnlock()
	b.dispatch(subs, f)
}

func (b *Board) dispatch(subs []*Subscription, f Finding) {
	for _, s := range subs {
		b.invoke(s, f)
	}
}

func (b *Board) invoke(s *Subscription, f Finding) {
	defer func() {
		if r := recover(); r != nil {
			b.emit(EventSubscriberPanic, "", map[string]any{
				"subscription": s.ID, "pattern": s.Pattern, "recovered": r,
			})
		}
	}()
	s.Handler(f)
}

// Claim registers an advisory lock on resource for agentID at the requested
// mode. It returns ErrAlreadyClaimed if an exclusive claim conflicts with an
// existing holder, per spec.md §4.F: "double-claiming a resource in
// exclusive mode fails." Non-exclusive claims by different agents coexist
// freely unless one of them is exclusive.
func (b *Board) Claim(resource, agentID string, mode ClaimMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.claims[resource]
	if !ok {
		c = &claim{resource: resource, holders: make(map[string]ClaimMode)}
		b.claims[resource] = c
	}

	if holder, heldMode, conflict := c.conflicts(agentID, mode); conflict {
		return &ErrAlreadyClaimed{Resource: resource, HeldBy: holder, HeldMode: heldMode, Requested: mode, RequestBy: agentID}
	}

	c.holders[agentID] = mode
	b.emitLocked(EventResourceClaimed, "", map[string]any{"resource": resource, "agent_id": agentID, "mode": string(mode)})
	return nil
}

// Release drops agentID's claim on resource, if any. Releasing a claim that
// was never held is a no-op.
func (b *Board) Release(resource, agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.claims[resource]
	if !ok {
		return
	}
	delete(c.holders, agentID)
	if len(c.holders) == 0 {
		delete(b.claims, resource)
	}
	b.emitLocked(EventResourceReleased, "", map[string]any{"resource": resource, "agent_id": agentID})
}

func (b *Board) emit(eventType observability.EventType, findingID string, data map[string]any) {
	if findingID != "" {
		data["id"] = findingID
	}
	b.observer.OnEvent(context.Background(), observability.Event{
		Type:      eventType,
		Level:     observability.LevelInfo,
		Timestamp: b.now(),
		Source:    "blackboard.Board",
		Data:      data,
	})
}

// emitLocked is emit's variant for call sites already holding b.mu; OnEvent
// must not re-enter the board, so this is safe to call under the lock.
func (b *Board) emitLocked(eventType observability.EventType, findingID string, data map[string]any) {
	b.emit(eventType, findingID, data)
}
