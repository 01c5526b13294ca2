package orchestrator_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tailored-agentic-units/swarmcore/orchestrator"
	"github.com/tailored-agentic-units/swarmcore/queue"
	"github.com/tailored-agentic-units/swarmcore/workerpool"
)

func linearDecomposition() queue.Decomposition {
	return queue.Decomposition{
		Subtasks: []queue.TaskInput{
			{ID: "a", Description: "do a", Complexity: 1},
			{ID: "b", Description: "do b", Complexity: 1, Dependencies: []string{"a"}},
			{ID: "c", Description: "do c", Complexity: 1, Dependencies: []string{"b"}},
		},
		DependencyGraph: queue.DependencyGraph{
			ParallelGroups: [][]string{{"a"}, {"b"}, {"c"}},
		},
	}
}

func succeedingWorker() orchestrator.Worker {
	return func(ctx context.Context, task *queue.Task, depContext string) queue.TaskResult {
		return queue.TaskResult{Success: true, Output: "ok:" + task.ID}
	}
}

func TestRun_LinearChainCompletesAndReleasesSlots(t *testing.T) {
	q := queue.New(queue.DefaultConfig(), nil, nil)
	pool := workerpool.New(workerpool.Config{
		Tiers: []workerpool.TierConfig{{Tier: "default", Count: 2}},
	}, nil)

	var ran []string
	var mu sync.Mutex
	worker := func(ctx context.Context, task *queue.Task, depContext string) queue.TaskResult {
		mu.Lock()
		ran = append(ran, task.ID)
		mu.Unlock()
		return queue.TaskResult{Success: true, Output: "ok"}
	}

	o := orchestrator.New(q, pool, worker, orchestrator.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.Run(ctx, linearDecomposition()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := q.GetStats()
	if stats.Completed != 3 {
		t.Fatalf("stats.Completed = %d, want 3", stats.Completed)
	}
	if !q.IsComplete() {
		t.Fatalf("expected queue complete")
	}

	mu.Lock()
	gotRan := append([]string(nil), ran...)
	mu.Unlock()
	if len(gotRan) != 3 {
		t.Fatalf("ran = %v, want 3 tasks", gotRan)
	}

	poolStats := pool.Stats()
	if poolStats.Busy != 0 {
		t.Fatalf("expected all slots released at completion, got %+v", poolStats)
	}
}

func TestRun_FailedTaskCascadesAndStillCompletesLoop(t *testing.T) {
	cfg := queue.DefaultConfig()
	cfg.MaxRetries = 0
	q := queue.New(cfg, nil, nil)
	pool := workerpool.New(workerpool.Config{
		Tiers: []workerpool.TierConfig{{Tier: "default", Count: 2}},
	}, nil)

	worker := func(ctx context.Context, task *queue.Task, depContext string) queue.TaskResult {
		if task.ID == "a" {
			return queue.TaskResult{Success: false}
		}
		return queue.TaskResult{Success: true}
	}

	o := orchestrator.New(q, pool, worker, orchestrator.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.Run(ctx, linearDecomposition()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := q.GetStats()
	if stats.Failed != 1 || stats.Skipped != 2 {
		t.Fatalf("stats = %+v, want failed=1 skipped=2", stats)
	}
}

func TestRun_WorkerPanicIsRecoveredAsFailure(t *testing.T) {
	cfg := queue.DefaultConfig()
	cfg.MaxRetries = 0
	q := queue.New(cfg, nil, nil)
	pool := workerpool.New(workerpool.Config{
		Tiers: []workerpool.TierConfig{{Tier: "default", Count: 1}},
	}, nil)

	worker := func(ctx context.Context, task *queue.Task, depContext string) queue.TaskResult {
		panic("worker blew up")
	}

	o := orchestrator.New(q, pool, worker, orchestrator.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := queue.Decomposition{
		Subtasks: []queue.TaskInput{{ID: "only", Complexity: 1}},
		DependencyGraph: queue.DependencyGraph{
			ParallelGroups: [][]string{{"only"}},
		},
	}

	if err := o.Run(ctx, d); err != nil {
		t.Fatalf("Run: %v", err)
	}

	task, err := q.Get("only")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Status != queue.StatusFailed {
		t.Fatalf("task.Status = %q, want failed", task.Status)
	}
}

func TestRun_RetriesBeforeFailingPermanently(t *testing.T) {
	cfg := queue.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoffMs = 1
	q := queue.New(cfg, nil, nil)
	pool := workerpool.New(workerpool.Config{
		Tiers: []workerpool.TierConfig{{Tier: "default", Count: 1}},
	}, nil)

	var attempts atomic.Int32
	worker := func(ctx context.Context, task *queue.Task, depContext string) queue.TaskResult {
		attempts.Add(1)
		return queue.TaskResult{Success: false}
	}

	o := orchestrator.New(q, pool, worker, orchestrator.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := queue.Decomposition{
		Subtasks: []queue.TaskInput{{ID: "only", Complexity: 1}},
		DependencyGraph: queue.DependencyGraph{
			ParallelGroups: [][]string{{"only"}},
		},
	}

	if err := o.Run(ctx, d); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3 (initial + 2 retries)", got)
	}

	task, err := q.Get("only")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Status != queue.StatusFailed {
		t.Fatalf("task.Status = %q, want failed after exhausting retries", task.Status)
	}
}

func TestResume_ReReadiesDispatchedTasksFromCheckpoint(t *testing.T) {
	cfg := queue.DefaultConfig()
	q := queue.New(cfg, nil, nil)
	if err := q.Load(linearDecomposition()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := q.MarkDispatched("a", "default"); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	cp := q.GetCheckpointState()

	q2 := queue.New(cfg, nil, nil)
	if err := q2.Load(linearDecomposition()); err != nil {
		t.Fatalf("Load (resume target): %v", err)
	}

	pool := workerpool.New(workerpool.Config{
		Tiers: []workerpool.TierConfig{{Tier: "default", Count: 2}},
	}, nil)

	o := orchestrator.New(q2, pool, succeedingWorker(), orchestrator.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.Resume(ctx, cp); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if !q2.IsComplete() {
		t.Fatalf("expected resumed queue to complete")
	}
}
