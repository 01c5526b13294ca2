package queue_test

import (
	"strings"
	"testing"
	"time"

	"github.com/tailored-agentic-units/swarmcore/queue"
)

func linearDecomposition() queue.Decomposition {
	return queue.Decomposition{
		Subtasks: []queue.TaskInput{
			{ID: "a", Description: "do a", Type: "implement", Complexity: 1},
			{ID: "b", Description: "do b", Type: "implement", Complexity: 1, Dependencies: []string{"a"}},
			{ID: "c", Description: "do c", Type: "implement", Complexity: 1, Dependencies: []string{"b"}},
		},
		DependencyGraph: queue.DependencyGraph{
			ParallelGroups: [][]string{{"a"}, {"b"}, {"c"}},
		},
	}
}

func TestScenario1_LinearChainHappyPath(t *testing.T) {
	q := queue.New(queue.DefaultConfig(), nil, nil)
	if err := q.Load(linearDecomposition()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		ready := q.GetReadyTasks()
		if len(ready) != 1 || ready[0].ID != id {
			t.Fatalf("expected only %s ready, got %+v", id, ready)
		}
		if err := q.MarkDispatched(id, "default"); err != nil {
			t.Fatalf("MarkDispatched(%s): %v", id, err)
		}
		if err := q.MarkCompleted(id, queue.TaskResult{Success: true, Output: "done " + id}); err != nil {
			t.Fatalf("MarkCompleted(%s): %v", id, err)
		}
		if q.IsCurrentWaveComplete() {
			q.AdvanceWave()
		}
	}

	stats := q.GetStats()
	if stats.Completed != 3 {
		t.Errorf("stats.Completed = %d, want 3", stats.Completed)
	}
	if !q.IsComplete() {
		t.Errorf("expected queue complete")
	}
}

func TestScenario2_CascadeSkip(t *testing.T) {
	cfg := queue.DefaultConfig()
	cfg.MaxRetries = 0
	q := queue.New(cfg, nil, nil)
	if err := q.Load(linearDecomposition()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := q.MarkDispatched("a", "default"); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	retried, err := q.MarkFailed("a", 0)
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if retried {
		t.Fatalf("expected no retry with attemptsRemaining=0")
	}

	stats := q.GetStats()
	if stats.Failed != 1 || stats.Skipped != 2 {
		t.Fatalf("stats = %+v, want failed=1 skipped=2", stats)
	}

	for _, id := range []string{"b", "c"} {
		task, err := q.Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if task.Status != queue.StatusSkipped {
			t.Errorf("%s.Status = %q, want skipped", id, task.Status)
		}
		if !strings.Contains(task.SkipReason, "insufficient dependency success ratio") {
			t.Errorf("%s.SkipReason = %q, want mention of the ratio check", id, task.SkipReason)
		}
	}
}

func partialDepsDecomposition(threshold float64) (queue.Decomposition, queue.Config) {
	d := queue.Decomposition{
		Subtasks: []queue.TaskInput{
			{ID: "a", Description: "a", Type: "implement", Complexity: 1},
			{ID: "b", Description: "b", Type: "implement", Complexity: 1},
			{ID: "c", Description: "c", Type: "implement", Complexity: 1},
			{ID: "d", Description: "d", Type: "implement", Complexity: 1},
			{ID: "merge", Description: "merge", Type: "merge", Complexity: 1, Dependencies: []string{"a", "b", "c", "d"}},
		},
		DependencyGraph: queue.DependencyGraph{
			ParallelGroups: [][]string{{"a", "b", "c", "d"}, {"merge"}},
		},
	}
	cfg := queue.DefaultConfig()
	cfg.PartialDependencyThreshold = threshold
	cfg.MaxRetries = 0
	return d, cfg
}

func TestScenario3_PartialDepsPermissive(t *testing.T) {
	d, cfg := partialDepsDecomposition(0.5)
	q := queue.New(cfg, nil, nil)
	if err := q.Load(d); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := q.MarkDispatched(id, "default"); err != nil {
			t.Fatalf("MarkDispatched(%s): %v", id, err)
		}
		if err := q.MarkCompleted(id, queue.TaskResult{Success: true, Output: "ok " + id}); err != nil {
			t.Fatalf("MarkCompleted(%s): %v", id, err)
		}
	}
	if err := q.MarkDispatched("d", "default"); err != nil {
		t.Fatalf("MarkDispatched(d): %v", err)
	}
	if _, err := q.MarkFailed("d", 0); err != nil {
		t.Fatalf("MarkFailed(d): %v", err)
	}

	q.AdvanceWave()

	merge, err := q.Get("merge")
	if err != nil {
		t.Fatalf("Get(merge): %v", err)
	}
	if merge.Status != queue.StatusReady {
		t.Fatalf("merge.Status = %q, want ready", merge.Status)
	}
	if merge.PartialContext == nil {
		t.Fatalf("expected merge.PartialContext to be set")
	}
	if merge.PartialContext.Ratio != 0.75 {
		t.Errorf("merge.PartialContext.Ratio = %v, want 0.75", merge.PartialContext.Ratio)
	}
	if len(merge.PartialContext.Succeeded) != 3 || len(merge.PartialContext.Failed) != 1 {
		t.Errorf("merge.PartialContext = %+v", merge.PartialContext)
	}

	depCtx, err := q.DependencyContext("merge")
	if err != nil {
		t.Fatalf("DependencyContext: %v", err)
	}
	if !strings.Contains(depCtx, "WARNING") || !strings.Contains(depCtx, "3/4") {
		t.Errorf("DependencyContext = %q, want WARNING and 3/4", depCtx)
	}
}

func TestScenario4_PartialDepsStrict(t *testing.T) {
	d, cfg := partialDepsDecomposition(1.0)
	q := queue.New(cfg, nil, nil)
	if err := q.Load(d); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, id := range []string{"a", "b", "c"} {
		q.MarkDispatched(id, "default")
		q.MarkCompleted(id, queue.TaskResult{Success: true})
	}
	q.MarkDispatched("d", "default")
	q.MarkFailed("d", 0)

	q.AdvanceWave()

	merge, err := q.Get("merge")
	if err != nil {
		t.Fatalf("Get(merge): %v", err)
	}
	if merge.Status != queue.StatusSkipped {
		t.Fatalf("merge.Status = %q, want skipped", merge.Status)
	}
}

func TestScenario5_RetryWithCooldown(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := now
	nowFn := func() time.Time { return clock }

	cfg := queue.DefaultConfig()
	cfg.MaxRetries = 1
	cfg.RetryBackoffMs = 1000

	q := queue.New(cfg, nil, nowFn)
	err := q.Load(queue.Decomposition{
		Subtasks: []queue.TaskInput{{ID: "a", Description: "a", Complexity: 1}},
		DependencyGraph: queue.DependencyGraph{
			ParallelGroups: [][]string{{"a"}},
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := q.MarkDispatched("a", "default"); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	retried, err := q.MarkFailed("a", 1)
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if !retried {
		t.Fatalf("expected retry with attemptsRemaining=1")
	}

	task, err := q.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Status != queue.StatusReady {
		t.Fatalf("task.Status = %q, want ready", task.Status)
	}
	if !task.RetryAfter.After(now) {
		t.Fatalf("expected RetryAfter > now")
	}

	if ready := q.GetReadyTasks(); len(ready) != 0 {
		t.Fatalf("expected task excluded from ready list during cooldown, got %+v", ready)
	}

	clock = task.RetryAfter.Add(time.Second)
	if ready := q.GetReadyTasks(); len(ready) != 1 {
		t.Fatalf("expected task ready again once cooldown elapses, got %+v", ready)
	}
}

func TestReconcileStaleDispatched(t *testing.T) {
	now := time.Unix(2000, 0)
	q := queue.New(queue.DefaultConfig(), nil, func() time.Time { return now })
	err := q.Load(queue.Decomposition{
		Subtasks: []queue.TaskInput{{ID: "a", Description: "a", Complexity: 1}},
		DependencyGraph: queue.DependencyGraph{
			ParallelGroups: [][]string{{"a"}},
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := q.MarkDispatched("a", "default"); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}

	recovered := q.ReconcileStaleDispatched(queue.ReconcileOptions{
		StaleAfter:    5 * time.Minute,
		Now:           now.Add(10 * time.Minute),
		ActiveTaskIDs: nil,
	})
	if len(recovered) != 1 || recovered[0] != "a" {
		t.Fatalf("recovered = %v, want [a]", recovered)
	}

	task, _ := q.Get("a")
	if task.Status != queue.StatusReady {
		t.Errorf("task.Status = %q, want ready", task.Status)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	q := queue.New(queue.DefaultConfig(), nil, nil)
	if err := q.Load(linearDecomposition()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	q.MarkDispatched("a", "default")
	q.MarkCompleted("a", queue.TaskResult{Success: true, Output: "out-a"})
	q.AdvanceWave()
	q.MarkDispatched("b", "default")

	cp := q.GetCheckpointState()

	if len(cp.ActiveOwners) != 1 || cp.ActiveOwners[0] != "default" {
		t.Errorf("ActiveOwners = %v, want [default] (b is still dispatched)", cp.ActiveOwners)
	}

	restored := queue.New(queue.DefaultConfig(), nil, nil)
	if err := restored.Load(linearDecomposition()); err != nil {
		t.Fatalf("Load (restore target): %v", err)
	}
	if err := restored.RestoreFromCheckpoint(cp); err != nil {
		t.Fatalf("RestoreFromCheckpoint: %v", err)
	}

	got, err := restored.Get("b")
	if err != nil {
		t.Fatalf("Get(b): %v", err)
	}
	if got.Status != queue.StatusDispatched {
		t.Errorf("b.Status = %q, want dispatched (preserved as-is)", got.Status)
	}

	gotA, _ := restored.Get("a")
	if gotA.Output != "out-a" {
		t.Errorf("a.Output = %q, want out-a", gotA.Output)
	}
}

func TestCycleRejected(t *testing.T) {
	q := queue.New(queue.DefaultConfig(), nil, nil)
	err := q.Load(queue.Decomposition{
		Subtasks: []queue.TaskInput{{ID: "a", Complexity: 1}},
		DependencyGraph: queue.DependencyGraph{
			Cycles: [][]string{{"a", "a"}},
		},
	})
	if err != queue.ErrCyclicDecomposition {
		t.Fatalf("err = %v, want ErrCyclicDecomposition", err)
	}
}

func TestSkipListenerNotifiedOnCascade(t *testing.T) {
	cfg := queue.DefaultConfig()
	cfg.MaxRetries = 0
	q := queue.New(cfg, nil, nil)
	q.Load(linearDecomposition())

	var skipped []string
	q.Subscribe(func(taskID, reason string) {
		skipped = append(skipped, taskID)
	})
	// A panicking listener must not prevent the skip or break other listeners.
	q.Subscribe(func(taskID, reason string) {
		panic("boom")
	})

	q.MarkDispatched("a", "default")
	q.MarkFailed("a", 0)

	if len(skipped) != 2 {
		t.Fatalf("skipped = %v, want 2 entries", skipped)
	}
}

func TestGetAllReadyTasks_SortOrder(t *testing.T) {
	q := queue.New(queue.DefaultConfig(), nil, nil)
	err := q.Load(queue.Decomposition{
		Subtasks: []queue.TaskInput{
			{ID: "low", Complexity: 1},
			{ID: "high", Complexity: 5},
		},
		DependencyGraph: queue.DependencyGraph{
			ParallelGroups: [][]string{{"low", "high"}},
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ready := q.GetAllReadyTasks()
	if len(ready) != 2 || ready[0].ID != "high" || ready[1].ID != "low" {
		t.Fatalf("ready = %+v, want [high, low] (complexity desc)", ready)
	}
}

func TestMarkDispatched_MintsDispatchID(t *testing.T) {
	q := queue.New(queue.DefaultConfig(), nil, nil)
	if err := q.Load(linearDecomposition()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := q.MarkDispatched("a", "default"); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}

	task, err := q.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.DispatchID == "" {
		t.Fatalf("expected a non-empty DispatchID after MarkDispatched")
	}

	first := task.DispatchID
	if err := q.MarkCompleted("a", queue.TaskResult{Success: true}); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := q.MarkDispatched("b", "default"); err != nil {
		t.Fatalf("MarkDispatched(b): %v", err)
	}
	taskB, err := q.Get("b")
	if err != nil {
		t.Fatalf("Get(b): %v", err)
	}
	if taskB.DispatchID == "" || taskB.DispatchID == first {
		t.Fatalf("expected b to get its own distinct DispatchID, got %q (a's was %q)", taskB.DispatchID, first)
	}
}

func TestGetStats_BreaksDownByType(t *testing.T) {
	q := queue.New(queue.DefaultConfig(), nil, nil)
	if err := q.Load(queue.Decomposition{
		Subtasks: []queue.TaskInput{
			{ID: "a", Type: "implement"},
			{ID: "b", Type: "implement"},
			{ID: "c", Type: "test"},
		},
		DependencyGraph: queue.DependencyGraph{
			ParallelGroups: [][]string{{"a", "b", "c"}},
		},
	}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	stats := q.GetStats()
	if stats.ByType["implement"] != 2 || stats.ByType["test"] != 1 {
		t.Fatalf("ByType = %+v, want implement=2 test=1", stats.ByType)
	}
}

func TestAddFixupTasks_InstructionsReachDependencyContext(t *testing.T) {
	q := queue.New(queue.DefaultConfig(), nil, nil)
	if err := q.Load(queue.Decomposition{
		Subtasks: []queue.TaskInput{{ID: "a", Description: "do a", Complexity: 1}},
		DependencyGraph: queue.DependencyGraph{
			ParallelGroups: [][]string{{"a"}},
		},
	}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	q.MarkDispatched("a", "default")
	q.MarkFailed("a", 0)

	q.AddFixupTasks([]queue.FixupTask{{
		ID:              "a-fix",
		FixesTaskID:     "a",
		FixInstructions: "re-run step a with strict validation",
		Description:     "fix a",
		Type:            "fixup",
		Complexity:      1,
	}})

	depCtx, err := q.DependencyContext("a-fix")
	if err != nil {
		t.Fatalf("DependencyContext: %v", err)
	}
	if !strings.Contains(depCtx, "FIX INSTRUCTIONS:\nre-run step a with strict validation") {
		t.Errorf("DependencyContext = %q, want it to contain the fix instructions", depCtx)
	}
}
