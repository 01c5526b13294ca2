package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/swarmcore/observability"
)

// Queue is the wave scheduler: a single-threaded-semantics aggregate over a
// task table and a wave index, synchronized by one mutex per spec.md §5
// ("all queue and task-manager mutations are expected to be effectively
// atomic from the orchestrator's perspective").
type Queue struct {
	mu sync.Mutex

	cfg      Config
	observer observability.Observer
	now      func() time.Time

	tasks       map[string]*Task
	dependents  map[string][]string // taskID -> ids that list it as a dependency
	currentWave int
	totalWaves  int

	listeners []SkipListener
}

// New creates an empty Queue. Call Load before using it.
func New(cfg Config, observer observability.Observer, now func() time.Time) *Queue {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	if now == nil {
		now = time.Now
	}
	return &Queue{
		cfg:        cfg,
		observer:   observer,
		now:        now,
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// Subscribe registers a SkipListener, invoked once per cascade-skipped task.
// Per spec.md §9, a panicking listener must not corrupt queue state or block
// other listeners; each listener call is wrapped in a recover at delivery
// (notifySkip) so one bad listener can never break cascade-skip delivery or
// the caller's dispatch loop.
func (q *Queue) Subscribe(l SkipListener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

func (q *Queue) notifySkip(taskID, reason string) {
	for _, l := range q.listeners {
		func() {
			defer func() { recover() }()
			l(taskID, reason)
		}()
	}
}

// Load commits a Decomposition into the queue. Per spec.md §4.C.1, a
// non-empty Cycles list is a hard reject with no partial state committed.
func (q *Queue) Load(d Decomposition) error {
	if len(d.DependencyGraph.Cycles) > 0 {
		return ErrCyclicDecomposition
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make(map[string]*Task, len(d.Subtasks))
	dependents := make(map[string][]string)

	waveOf := make(map[string]int, len(d.Subtasks))
	for waveIdx, group := range d.DependencyGraph.ParallelGroups {
		for _, id := range group {
			waveOf[id] = waveIdx
		}
	}

	for _, st := range d.Subtasks {
		wave, ok := waveOf[st.ID]
		if !ok {
			wave = maxDepWave(st.Dependencies, waveOf) + 1
		}
		tasks[st.ID] = &Task{
			ID:           st.ID,
			Description:  st.Description,
			Type:         st.Type,
			Complexity:   st.Complexity,
			Dependencies: append([]string(nil), st.Dependencies...),
			Modifies:     append([]string(nil), st.Modifies...),
			Reads:        append([]string(nil), st.Reads...),
			Status:       StatusPending,
			Wave:         wave,
		}
		for _, dep := range st.Dependencies {
			dependents[dep] = append(dependents[dep], st.ID)
		}
	}

	q.tasks = tasks
	q.dependents = dependents
	q.currentWave = 0

	// applyConflictStrategy may bump individual tasks' waves (serialize
	// strategy); totalWaves is (re)computed from the final wave assignment
	// so AdvanceWave's upper bound accounts for any such bump.
	applyConflictStrategy(q.tasks, d.Conflicts, q.cfg.FileConflictStrategy)
	q.totalWaves = maxWave(q.tasks) + 1

	q.evaluateWave(q.currentWave)

	return nil
}

func maxDepWave(deps []string, waveOf map[string]int) int {
	max := -1
	for _, d := range deps {
		if w, ok := waveOf[d]; ok && w > max {
			max = w
		}
	}
	return max
}

func maxWave(tasks map[string]*Task) int {
	max := 0
	for _, t := range tasks {
		if t.Wave > max {
			max = t.Wave
		}
	}
	return max
}

// evaluateWave runs the Promote-to-ready / partial-dependency-tolerance
// decision (spec.md §4.C.2, §4.C.5) over every pending task assigned to
// wave, in deterministic id order.
func (q *Queue) evaluateWave(wave int) {
	ids := make([]string, 0)
	for id, t := range q.tasks {
		if t.Wave == wave && t.Status == StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		q.tryPromote(q.tasks[id])
	}
}

// tryPromote evaluates one pending task's dependency completion ratio and
// either promotes it to ready (attaching PartialContext if some deps
// failed), leaves it pending (deps not all finished yet), or cascade-skips
// it (ratio below threshold).
func (q *Queue) tryPromote(t *Task) {
	if t.Status != StatusPending {
		return
	}

	total := len(t.Dependencies)
	if total == 0 {
		t.Status = StatusReady
		q.emitUpdated(t.ID)
		return
	}

	var succeeded, failed []string
	for _, dep := range t.Dependencies {
		depTask, ok := q.tasks[dep]
		if !ok || !isTerminal(depTask.Status) {
			return // at least one dependency hasn't finished yet
		}
		if depTask.Status == StatusCompleted {
			succeeded = append(succeeded, dep)
		} else {
			failed = append(failed, dep)
		}
	}

	ratio := float64(len(succeeded)) / float64(total)
	if ratio >= q.cfg.PartialDependencyThreshold {
		t.Status = StatusReady
		if len(failed) > 0 {
			sort.Strings(succeeded)
			sort.Strings(failed)
			t.PartialContext = &PartialContext{Ratio: ratio, Succeeded: succeeded, Failed: failed}
		}
		q.emitUpdated(t.ID)
		return
	}

	sort.Strings(failed)
	q.markSkippedAndPropagate(t.ID, fmt.Sprintf("insufficient dependency success ratio (failed: %s)", strings.Join(failed, ", ")))
}

func isTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// GetReadyTasks returns ready tasks in the current wave (cooldown-filtered),
// sorted by (complexity DESC, id ASC).
func (q *Queue) GetReadyTasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []*Task
	for _, t := range q.tasks {
		if t.Status == StatusReady && t.Wave == q.currentWave && !onCooldown(t, now) {
			out = append(out, cloneTask(t))
		}
	}
	sortByComplexityThenID(out)
	return out
}

// GetAllReadyTasks returns every ready task across all waves
// (cooldown-filtered), sorted by (wave ASC, complexity DESC, id ASC).
func (q *Queue) GetAllReadyTasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []*Task
	for _, t := range q.tasks {
		if t.Status == StatusReady && !onCooldown(t, now) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wave != out[j].Wave {
			return out[i].Wave < out[j].Wave
		}
		if out[i].Complexity != out[j].Complexity {
			return out[i].Complexity > out[j].Complexity
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortByComplexityThenID(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Complexity != tasks[j].Complexity {
			return tasks[i].Complexity > tasks[j].Complexity
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func onCooldown(t *Task, now time.Time) bool {
	return !t.RetryAfter.IsZero() && t.RetryAfter.After(now)
}

// MarkDispatched transitions a ready task to dispatched.
func (q *Queue) MarkDispatched(id, tier string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != StatusReady {
		return &TransitionError{TaskID: id, From: t.Status, Want: StatusReady}
	}

	t.Status = StatusDispatched
	t.DispatchedAt = q.now()
	t.OwnerTier = tier
	t.DispatchID = uuid.Must(uuid.NewV7()).String()
	q.emit(EventTaskDispatched, t.ID, map[string]any{"dispatchId": t.DispatchID})
	return nil
}

// MarkCompleted records a successful result. Per spec.md §4.C.2, a call
// against a task already skipped or failed is a silent no-op: a late worker
// must not resurrect cancelled work.
func (q *Queue) MarkCompleted(id string, result TaskResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status == StatusSkipped || t.Status == StatusFailed || t.Status == StatusCompleted {
		return nil
	}
	if t.Status != StatusDispatched {
		return &TransitionError{TaskID: id, From: t.Status, Want: StatusDispatched}
	}

	t.Status = StatusCompleted
	t.Output = result.Output
	q.emit(EventTaskCompleted, id, map[string]any{"dispatchId": result.DispatchID})
	return nil
}

// MarkFailed records a failed attempt. attemptsRemaining is supplied by the
// caller (the orchestrator, which owns the retry budget view); a positive
// value reinstates the task as ready with a backoff cooldown and returns
// true, a non-positive value fails the task permanently, triggers
// cascade-skip for its transitive dependents, and returns false. A call
// against an already-terminal task is a silent no-op returning false.
func (q *Queue) MarkFailed(id string, attemptsRemaining int) (retried bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if isTerminal(t.Status) {
		return false, nil
	}
	if t.Status != StatusDispatched {
		return false, &TransitionError{TaskID: id, From: t.Status, Want: StatusDispatched}
	}

	t.Attempts++

	if attemptsRemaining > 0 {
		t.Status = StatusReady
		backoff := time.Duration(q.cfg.RetryBackoffMs) * time.Millisecond * time.Duration(pow2(t.Attempts))
		t.RetryAfter = q.now().Add(backoff)
		q.emit(EventTaskUpdated, id, map[string]any{"retry": true, "attempts": t.Attempts})
		return true, nil
	}

	t.Status = StatusFailed
	q.emit(EventTaskFailed, id, map[string]any{"dispatchId": t.DispatchID})
	q.propagate(id)
	return false, nil
}

func pow2(n int) int64 {
	if n < 0 {
		return 1
	}
	if n > 32 {
		n = 32
	}
	return int64(1) << uint(n)
}

// propagate re-evaluates every direct dependent of id now that id has just
// become terminal-with-failure (failed, skipped, or cancelled). Each pending
// dependent is re-run through tryPromote, which applies the same
// partial-dependency-tolerance ratio check used at wave-evaluation time: a
// dependent with enough surviving dependencies is promoted to ready (not
// cascaded), and only a dependent that itself falls below threshold is
// skipped and, in turn, propagated to its own dependents. This keeps
// cascade-skip and partial-dependency tolerance from fighting each other
// (spec.md §4.C.4, §4.C.5).
func (q *Queue) propagate(id string) {
	ids := append([]string(nil), q.dependents[id]...)
	sort.Strings(ids)
	for _, depID := range ids {
		dep, ok := q.tasks[depID]
		if !ok || dep.Status != StatusPending {
			continue
		}
		q.tryPromote(dep)
	}
}

// markSkippedAndPropagate marks a single task skipped (unless already
// terminal), notifies listeners, and propagates the skip to its own
// dependents, per spec.md §4.C.4.
func (q *Queue) markSkippedAndPropagate(id, reason string) {
	t, ok := q.tasks[id]
	if !ok || isTerminal(t.Status) {
		return
	}
	t.Status = StatusSkipped
	t.SkipReason = reason
	q.emit(EventTaskSkipped, id, map[string]any{"reason": reason})
	q.notifySkip(id, reason)
	q.propagate(id)
}

// Cancel transitions any non-terminal task to skipped and propagates the
// skip to its dependents.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.tasks[id]; !ok {
		return ErrNotFound
	}
	q.markSkippedAndPropagate(id, "cancelled")
	return nil
}

// SetRetryAfter marks id temporarily ineligible for dispatch without
// changing its status (spec.md §4.C.7).
func (q *Queue) SetRetryAfter(id string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.RetryAfter = q.now().Add(delay)
	return nil
}

// IsCurrentWaveComplete reports whether every task in the current wave is terminal.
func (q *Queue) IsCurrentWaveComplete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isCurrentWaveCompleteLocked()
}

func (q *Queue) isCurrentWaveCompleteLocked() bool {
	for _, t := range q.tasks {
		if t.Wave == q.currentWave && !isTerminal(t.Status) {
			return false
		}
	}
	return true
}

// AdvanceWave increments currentWave and re-evaluates the new wave's tasks.
// It is a no-op once every wave has been reached.
func (q *Queue) AdvanceWave() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.currentWave+1 >= q.totalWaves {
		return
	}
	q.currentWave++
	q.evaluateWave(q.currentWave)
	q.emit(EventWaveAdvanced, "", map[string]any{"wave": q.currentWave})
}

// AddFixupTasks inserts remedial tasks into the current wave (spec.md §4.C.8).
func (q *Queue) AddFixupTasks(fixups []FixupTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, f := range fixups {
		t := &Task{
			ID:              f.ID,
			Description:     f.Description,
			Type:            f.Type,
			Complexity:      f.Complexity,
			Dependencies:    []string{f.FixesTaskID},
			Status:          StatusPending,
			Wave:            q.currentWave,
			FixInstructions: f.FixInstructions,
		}
		q.tasks[f.ID] = t
		q.dependents[f.FixesTaskID] = append(q.dependents[f.FixesTaskID], f.ID)
		q.tryPromote(t)
	}
}

// DependencyContext synthesizes the prompt context string for a ready task
// from the outputs of its completed dependencies (spec.md §4.C.9).
func (q *Queue) DependencyContext(id string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return "", ErrNotFound
	}

	var b strings.Builder
	if t.FixInstructions != "" {
		fmt.Fprintf(&b, "FIX INSTRUCTIONS:\n%s\n\n", t.FixInstructions)
	}
	if t.PartialContext != nil {
		fmt.Fprintf(&b, "WARNING: %d/%d dependencies succeeded\n\n", len(t.PartialContext.Succeeded), len(t.Dependencies))
	}

	for _, depID := range t.Dependencies {
		dep, ok := q.tasks[depID]
		if !ok || dep.Status != StatusCompleted {
			continue
		}
		output := dep.Output
		if q.cfg.DependencyContextTruncate > 0 && len(output) > q.cfg.DependencyContextTruncate {
			output = output[:q.cfg.DependencyContextTruncate]
		}
		fmt.Fprintf(&b, "%s task %q:\n%s\n\n", dep.Type, dep.Description, output)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

// ReconcileOptions configures ReconcileStaleDispatched.
type ReconcileOptions struct {
	StaleAfter    time.Duration
	Now           time.Time
	ActiveTaskIDs []string
}

// ReconcileStaleDispatched reverts dispatched tasks whose lease has expired
// and whose worker is no longer active back to ready (spec.md §4.C.10).
func (q *Queue) ReconcileStaleDispatched(opts ReconcileOptions) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := opts.Now
	if now.IsZero() {
		now = q.now()
	}
	active := make(map[string]bool, len(opts.ActiveTaskIDs))
	for _, id := range opts.ActiveTaskIDs {
		active[id] = true
	}

	var recovered []string
	for id, t := range q.tasks {
		if t.Status != StatusDispatched {
			continue
		}
		if active[id] {
			continue
		}
		if !t.DispatchedAt.Add(opts.StaleAfter).Before(now) {
			continue
		}
		t.Status = StatusReady
		t.DispatchedAt = time.Time{}
		recovered = append(recovered, id)
	}
	sort.Strings(recovered)
	return recovered
}

// GetCheckpointState returns a serializable snapshot of the entire queue.
func (q *Queue) GetCheckpointState() Checkpoint {
	q.mu.Lock()
	defer q.mu.Unlock()

	cp := Checkpoint{Version: 1, CurrentWave: q.currentWave}
	owners := make(map[string]bool)
	for _, t := range q.tasks {
		cp.Tasks = append(cp.Tasks, CheckpointTask{
			ID:             t.ID,
			Status:         t.Status,
			Wave:           t.Wave,
			Attempts:       t.Attempts,
			DispatchedAt:   t.DispatchedAt,
			RetryAfter:     t.RetryAfter,
			OwnerTier:      t.OwnerTier,
			Output:         t.Output,
			PartialContext: t.PartialContext,
		})
		if t.Status == StatusDispatched && t.OwnerTier != "" {
			owners[t.OwnerTier] = true
		}
	}
	sort.Slice(cp.Tasks, func(i, j int) bool { return cp.Tasks[i].ID < cp.Tasks[j].ID })
	for owner := range owners {
		cp.ActiveOwners = append(cp.ActiveOwners, owner)
	}
	sort.Strings(cp.ActiveOwners)
	return cp
}

// RestoreFromCheckpoint overwrites the runtime state of every task named in
// cp; those tasks must already be loaded. Tasks absent from cp keep their
// state, and currentWave is raised to cp.CurrentWave but never lowered. A
// checkpoint naming an unknown task is rejected before any state changes.
// Dispatched status is preserved as-is: the caller is responsible for
// calling ReconcileStaleDispatched afterward (spec.md §4.C.11).
func (q *Queue) RestoreFromCheckpoint(cp Checkpoint) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, ct := range cp.Tasks {
		if _, ok := q.tasks[ct.ID]; !ok {
			return fmt.Errorf("%w: unknown task %s", ErrCheckpointCorrupt, ct.ID)
		}
	}

	for _, ct := range cp.Tasks {
		t := q.tasks[ct.ID]
		t.Status = ct.Status
		t.Wave = ct.Wave
		t.Attempts = ct.Attempts
		t.DispatchedAt = ct.DispatchedAt
		t.RetryAfter = ct.RetryAfter
		t.OwnerTier = ct.OwnerTier
		t.Output = ct.Output
		t.PartialContext = ct.PartialContext
	}

	if cp.CurrentWave > q.currentWave {
		q.currentWave = cp.CurrentWave
	}
	return nil
}

// IsComplete reports whether every task is terminal.
func (q *Queue) IsComplete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if !isTerminal(t.Status) {
			return false
		}
	}
	return true
}

// GetStats returns counts per status, plus the same total broken down by
// task type.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{ByType: make(map[string]int)}
	for _, t := range q.tasks {
		switch t.Status {
		case StatusPending:
			s.Pending++
		case StatusReady:
			s.Ready++
		case StatusDispatched:
			s.Dispatched++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
		s.ByType[t.Type]++
	}
	return s
}

// Config returns the policy this queue was constructed with, so a caller
// computing MarkFailed's attemptsRemaining (the orchestrator, which owns the
// retry-budget view per spec.md §4.E) does not need to duplicate it.
func (q *Queue) Config() Config {
	return q.cfg
}

// Get returns a copy of the task, or ErrNotFound.
func (q *Queue) Get(id string) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(t), nil
}

func (q *Queue) emit(eventType observability.EventType, taskID string, extra map[string]any) {
	data := map[string]any{}
	if taskID != "" {
		data["id"] = taskID
	}
	for k, v := range extra {
		data[k] = v
	}
	q.observer.OnEvent(context.Background(), observability.Event{
		Type:      eventType,
		Level:     observability.LevelInfo,
		Timestamp: q.now(),
		Source:    "queue.Queue",
		Data:      data,
	})
}

func (q *Queue) emitUpdated(taskID string) {
	q.emit(EventTaskUpdated, taskID, nil)
}

func cloneTask(t *Task) *Task {
	cp := *t
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	cp.Modifies = append([]string(nil), t.Modifies...)
	cp.Reads = append([]string(nil), t.Reads...)
	cp.Warnings = append([]string(nil), t.Warnings...)
	if t.PartialContext != nil {
		pc := *t.PartialContext
		pc.Succeeded = append([]string(nil), t.PartialContext.Succeeded...)
		pc.Failed = append([]string(nil), t.PartialContext.Failed...)
		cp.PartialContext = &pc
	}
	return &cp
}
