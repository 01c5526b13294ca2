// Package orchestrator implements the loop that binds the Task Queue and
// Worker Pool together (spec.md §4.E): it dispatches ready tasks onto idle
// slots, waits for the first of a worker completion, a stale-lease sweep, or
// a checkpoint tick, and folds each back into the queue.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/swarmcore/observability"
	"github.com/tailored-agentic-units/swarmcore/queue"
	"github.com/tailored-agentic-units/swarmcore/workerpool"
)

// Worker executes one dispatched task and reports its outcome. depContext is
// the dependency-context prompt string synthesized by the queue (spec.md
// §4.C.9). Implementations are expected to invoke a language-model provider
// chain and tools; that is outside this package's scope.
type Worker func(ctx context.Context, task *queue.Task, depContext string) queue.TaskResult

type completion struct {
	taskID string
	slotID int
	result queue.TaskResult
}

// Orchestrator drives one Queue/Pool pair to completion.
type Orchestrator struct {
	q      *queue.Queue
	pool   *workerpool.Pool
	worker Worker
	cfg    Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds an Orchestrator. Call Run or Resume to drive it.
func New(q *queue.Queue, pool *workerpool.Pool, worker Worker, cfg Config) *Orchestrator {
	o := &Orchestrator{
		q:       q,
		pool:    pool,
		worker:  worker,
		cfg:     withDefaults(cfg),
		cancels: make(map[string]context.CancelFunc),
	}
	q.Subscribe(o.onSkip)
	return o
}

// onSkip cancels the in-flight worker for a task the queue just
// cascade-skipped, per spec.md §5's cancellation model.
func (o *Orchestrator) onSkip(taskID, reason string) {
	o.mu.Lock()
	cancel, ok := o.cancels[taskID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

// Run loads d into the queue and drives it to completion.
func (o *Orchestrator) Run(ctx context.Context, d queue.Decomposition) error {
	if err := o.q.Load(d); err != nil {
		return err
	}
	return o.loop(ctx)
}

// Resume restores a prior checkpoint, re-readies everything mid-flight (no
// worker survives a process restart), and drives the queue to completion.
// Per spec.md §4.E's Resume note, the reconciliation sweep uses
// activeTaskIds = ∅ and staleAfterMs = 0 so every dispatched task reverts.
func (o *Orchestrator) Resume(ctx context.Context, cp queue.Checkpoint) error {
	if err := o.q.RestoreFromCheckpoint(cp); err != nil {
		return err
	}
	o.q.ReconcileStaleDispatched(queue.ReconcileOptions{
		StaleAfter:    0,
		Now:           o.cfg.Now(),
		ActiveTaskIDs: nil,
	})
	return o.loop(ctx)
}

func (o *Orchestrator) loop(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	completions := make(chan completion, 64)

	staleTicker := time.NewTicker(o.cfg.StaleCheckInterval)
	defer staleTicker.Stop()
	checkpointTicker := time.NewTicker(o.cfg.CheckpointInterval)
	defer checkpointTicker.Stop()
	retryTicker := time.NewTicker(o.cfg.RetryPollInterval)
	defer retryTicker.Stop()

	for !o.q.IsComplete() {
		o.dispatchReady(gctx, g, completions)

		select {
		case c := <-completions:
			o.handleCompletion(c)
		case <-staleTicker.C:
			o.reconcileStale()
		case <-checkpointTicker.C:
			o.persistCheckpoint()
		case <-retryTicker.C:
			// wake the loop so a task whose retry cooldown just elapsed
			// gets picked up by the next dispatchReady call
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		}

		if o.q.IsCurrentWaveComplete() {
			o.q.AdvanceWave()
		}
	}

	return g.Wait()
}

// dispatchReady hands ready tasks to idle slots in (wave ASC, complexity
// DESC, id ASC) order (spec.md §5), stopping at the first task for which no
// slot is available — exactly the pseudocode's "if slot is None: break".
func (o *Orchestrator) dispatchReady(ctx context.Context, g *errgroup.Group, completions chan<- completion) {
	for _, t := range o.q.GetAllReadyTasks() {
		tier := ""
		if o.cfg.PreferredTier != nil {
			tier = o.cfg.PreferredTier(t.Type)
		}

		slot, ok := o.pool.Acquire(tier, t.ID)
		if !ok {
			break
		}

		if err := o.q.MarkDispatched(t.ID, slot.Tier); err != nil {
			o.pool.Release(slot.ID)
			continue
		}

		task := t
		slotID := slot.ID
		taskCtx, cancel := context.WithCancel(ctx)
		o.mu.Lock()
		o.cancels[task.ID] = cancel
		o.mu.Unlock()

		g.Go(func() error {
			defer func() {
				o.mu.Lock()
				delete(o.cancels, task.ID)
				o.mu.Unlock()
				cancel()
			}()

			depContext, _ := o.q.DependencyContext(task.ID)
			result := o.runWorker(taskCtx, task, depContext)

			select {
			case completions <- completion{taskID: task.ID, slotID: slotID, result: result}:
			case <-ctx.Done():
			}
			return nil // a worker's own failure is reported via TaskResult, never propagated as a fatal group error
		})
	}
}

// runWorker insulates the loop from a worker implementation that panics,
// turning it into a failed TaskResult instead of taking down the group.
func (o *Orchestrator) runWorker(ctx context.Context, t *queue.Task, depContext string) (result queue.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			o.emit(EventWorkerPanic, observability.LevelError, t.ID, map[string]any{"recovered": r})
			result = queue.TaskResult{Success: false}
		}
	}()
	return o.worker(ctx, t, depContext)
}

func (o *Orchestrator) handleCompletion(c completion) {
	o.pool.Release(c.slotID)

	if c.result.Success {
		_ = o.q.MarkCompleted(c.taskID, c.result)
		return
	}

	task, err := o.q.Get(c.taskID)
	if err != nil {
		return
	}

	remaining := o.q.Config().MaxRetries - task.Attempts
	if remaining < 0 {
		remaining = 0
	}
	_, _ = o.q.MarkFailed(c.taskID, remaining)
}

func (o *Orchestrator) reconcileStale() {
	recovered := o.q.ReconcileStaleDispatched(queue.ReconcileOptions{
		StaleAfter:    o.cfg.StaleAfter,
		Now:           o.cfg.Now(),
		ActiveTaskIDs: o.pool.ActiveTaskIDs(),
	})
	for _, id := range recovered {
		o.emit(EventStaleRecovered, observability.LevelWarning, id, nil)
	}
}

func (o *Orchestrator) persistCheckpoint() {
	if o.cfg.Persist == nil {
		return
	}
	cp := o.q.GetCheckpointState()
	if err := o.cfg.Persist(cp); err != nil {
		o.emit(EventCheckpointFailed, observability.LevelError, "", map[string]any{"error": err.Error()})
		return
	}
	o.emit(EventCheckpointPersisted, observability.LevelInfo, "", map[string]any{"wave": cp.CurrentWave, "tasks": len(cp.Tasks)})
}

func (o *Orchestrator) emit(eventType observability.EventType, level observability.Level, taskID string, extra map[string]any) {
	data := map[string]any{}
	if taskID != "" {
		data["id"] = taskID
	}
	for k, v := range extra {
		data[k] = v
	}
	o.cfg.Observer.OnEvent(context.Background(), observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: o.cfg.Now(),
		Source:    "orchestrator.Orchestrator",
		Data:      data,
	})
}
