package taskmanager

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/swarmcore/observability"
)

// Config configures a Manager.
type Config struct {
	Observer observability.Observer
	Now      func() time.Time // overridable for deterministic tests
}

// Manager is the in-memory, synchronous task store. All methods are safe for
// concurrent use; persistence beyond markdown round-trip is an external
// concern (spec.md §4.B).
type Manager struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	nextID   int
	observer observability.Observer
	now      func() time.Time
}

// New creates an empty Manager.
func New(cfg Config) *Manager {
	observer := cfg.Observer
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		tasks:    make(map[string]*Task),
		observer: observer,
		now:      now,
	}
}

// Patch describes a mutation for Update. Nil pointer/slice fields are left
// untouched; AddBlockedBy/AddBlocks are additive and idempotent;
// MetadataSet assigning a nil value deletes that metadata key.
type Patch struct {
	Subject     *string
	Description *string
	ActiveForm  *string
	Status      *Status
	Owner       *string

	AddBlockedBy []string
	AddBlocks    []string

	MetadataSet map[string]any
}

// Create allocates a monotonically-numbered task and emits task.created.
func (m *Manager) Create(subject, description, activeForm string, metadata map[string]any) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := newTaskID(m.nextID)
	if activeForm == "" {
		activeForm = defaultActiveForm(subject)
	}
	if metadata == nil {
		metadata = make(map[string]any)
	}

	now := m.now()
	t := &Task{
		ID:          id,
		Subject:     subject,
		Description: description,
		ActiveForm:  activeForm,
		Type:        TypeImplement,
		Complexity:  1,
		Metadata:    metadata,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.tasks[id] = t

	m.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventTaskCreated,
		Level:     observability.LevelInfo,
		Timestamp: now,
		Source:    "taskmanager.Manager",
		Data:      map[string]any{"id": id, "subject": subject},
	})

	return cloneTask(t)
}

// Update applies patch to the task identified by id (shorthand-normalized).
// Setting Status to StatusDeleted removes the task and scrubs its id from
// every other task's BlockedBy/Blocks.
func (m *Manager) Update(id string, patch Patch) (*Task, error) {
	id = NormalizeID(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}

	if patch.Status != nil && *patch.Status == StatusDeleted {
		delete(m.tasks, id)
		for _, other := range m.tasks {
			other.BlockedBy = removeString(other.BlockedBy, id)
			other.Blocks = removeString(other.Blocks, id)
		}
		m.emitUpdated(t.ID)
		return cloneTask(t), nil
	}

	if patch.Subject != nil {
		t.Subject = *patch.Subject
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.ActiveForm != nil {
		t.ActiveForm = *patch.ActiveForm
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Owner != nil {
		t.Owner = *patch.Owner
	}
	for _, blockerID := range patch.AddBlockedBy {
		m.linkBlockedBy(t, NormalizeID(blockerID))
	}
	for _, blockedID := range patch.AddBlocks {
		m.linkBlocks(t, NormalizeID(blockedID))
	}
	for key, val := range patch.MetadataSet {
		if val == nil {
			delete(t.Metadata, key)
		} else {
			if t.Metadata == nil {
				t.Metadata = make(map[string]any)
			}
			t.Metadata[key] = val
		}
	}

	t.UpdatedAt = m.now()
	m.emitUpdated(t.ID)
	return cloneTask(t), nil
}

// linkBlockedBy records that t is blocked by blockerID, keeping the mutual
// adjacency invariant (blockerID.Blocks must also contain t.ID). Idempotent.
func (m *Manager) linkBlockedBy(t *Task, blockerID string) {
	if !containsString(t.BlockedBy, blockerID) {
		t.BlockedBy = append(t.BlockedBy, blockerID)
	}
	if blocker, ok := m.tasks[blockerID]; ok && !containsString(blocker.Blocks, t.ID) {
		blocker.Blocks = append(blocker.Blocks, t.ID)
	}
}

// linkBlocks records that t blocks blockedID, keeping the mutual adjacency
// invariant symmetric to linkBlockedBy.
func (m *Manager) linkBlocks(t *Task, blockedID string) {
	if !containsString(t.Blocks, blockedID) {
		t.Blocks = append(t.Blocks, blockedID)
	}
	if blocked, ok := m.tasks[blockedID]; ok && !containsString(blocked.BlockedBy, t.ID) {
		blocked.BlockedBy = append(blocked.BlockedBy, t.ID)
	}
}

func (m *Manager) emitUpdated(id string) {
	m.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventTaskUpdated,
		Level:     observability.LevelInfo,
		Timestamp: m.now(),
		Source:    "taskmanager.Manager",
		Data:      map[string]any{"id": id},
	})
}

// Claim atomically assigns owner to id and marks it in_progress.
func (m *Manager) Claim(id, owner string) (*Task, error) {
	status := StatusInProgress
	return m.Update(id, Patch{Status: &status, Owner: &owner})
}

// Complete is shorthand for Update(id, {Status: completed}).
func (m *Manager) Complete(id string) (*Task, error) {
	status := StatusCompleted
	return m.Update(id, Patch{Status: &status})
}

// Get returns a copy of the task, or ErrNotFound.
func (m *Manager) Get(id string) (*Task, error) {
	id = NormalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(t), nil
}

// IsBlocked reports whether any entry in blockedBy is not completed.
func (m *Manager) IsBlocked(id string) (bool, error) {
	id = NormalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	return m.isBlockedLocked(t), nil
}

func (m *Manager) isBlockedLocked(t *Task) bool {
	for _, blockerID := range t.BlockedBy {
		blocker, ok := m.tasks[blockerID]
		if !ok {
			continue // scrubbed/deleted blockers no longer constrain anything
		}
		if blocker.Status != StatusCompleted {
			return true
		}
	}
	return false
}

// GetAvailableTasks returns pending, unowned, unblocked tasks.
func (m *Manager) GetAvailableTasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Task
	for _, t := range m.tasks {
		if t.Status != StatusPending || t.Owner != "" {
			continue
		}
		if m.isBlockedLocked(t) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListSummaries returns every task's summary, sorted by status
// (in_progress, pending, completed, deleted) then by numeric id.
func (m *Manager) ListSummaries() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Summary, 0, len(m.tasks))
	for _, t := range m.tasks {
		var blockers []string
		for _, blockerID := range t.BlockedBy {
			if blocker, ok := m.tasks[blockerID]; ok && blocker.Status != StatusCompleted {
				blockers = append(blockers, blockerID)
			}
		}
		sort.Strings(blockers)
		out = append(out, Summary{
			ID:           t.ID,
			Subject:      t.Subject,
			Status:       t.Status,
			Owner:        t.Owner,
			OpenBlockers: blockers,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		si, sj := statusSortOrder[out[i].Status], statusSortOrder[out[j].Status]
		if si != sj {
			return si < sj
		}
		return numericSuffix(out[i].ID) < numericSuffix(out[j].ID)
	})
	return out
}

// ReconcileOptions configures ReconcileStaleInProgress.
type ReconcileOptions struct {
	StaleAfter   time.Duration
	Now          time.Time // zero means use the Manager's clock
	ActiveOwners []string
	Reason       string
}

// ReconcileStaleInProgress resets in_progress tasks whose owner is no longer
// active and whose lease has expired back to pending, per spec.md §4.B.
func (m *Manager) ReconcileStaleInProgress(opts ReconcileOptions) (reconciled int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := opts.Now
	if now.IsZero() {
		now = m.now()
	}
	active := make(map[string]bool, len(opts.ActiveOwners))
	for _, owner := range opts.ActiveOwners {
		active[owner] = true
	}
	reason := opts.Reason
	if reason == "" {
		reason = "stale lease: owner not active past staleAfterMs"
	}

	for _, t := range m.tasks {
		if t.Status != StatusInProgress {
			continue
		}
		if active[t.Owner] {
			continue
		}
		if !t.UpdatedAt.Add(opts.StaleAfter).Before(now) {
			continue
		}

		t.Status = StatusPending
		t.Owner = ""
		if t.Metadata == nil {
			t.Metadata = make(map[string]any)
		}
		t.Metadata["recoveryReason"] = reason
		t.UpdatedAt = now
		reconciled++
	}
	return reconciled
}

func cloneTask(t *Task) *Task {
	cp := *t
	cp.BlockedBy = append([]string(nil), t.BlockedBy...)
	cp.Blocks = append([]string(nil), t.Blocks...)
	cp.Modifies = append([]string(nil), t.Modifies...)
	cp.Reads = append([]string(nil), t.Reads...)
	cp.Metadata = make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// numericSuffix extracts the trailing integer of an id like "task-12" for
// stable numeric sort; ids without a numeric suffix sort last among equals.
func numericSuffix(id string) int {
	idx := strings.LastIndex(id, "-")
	n, err := strconv.Atoi(id[idx+1:])
	if err != nil {
		return 1<<31 - 1
	}
	return n
}
