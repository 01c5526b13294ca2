package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tailored-agentic-units/swarmcore/blackboard"
	"github.com/tailored-agentic-units/swarmcore/config"
	"github.com/tailored-agentic-units/swarmcore/observability"
	"github.com/tailored-agentic-units/swarmcore/orchestrator"
	"github.com/tailored-agentic-units/swarmcore/protocol"
	"github.com/tailored-agentic-units/swarmcore/providers"
	"github.com/tailored-agentic-units/swarmcore/queue"
	"github.com/tailored-agentic-units/swarmcore/taskmanager"
	"github.com/tailored-agentic-units/swarmcore/workerpool"
)

func loadConfig(path string) (*config.SwarmConfig, error) {
	if path == "" {
		cfg := config.DefaultConfig()
		return &cfg, nil
	}
	return config.Load(path)
}

func loadDecomposition(path string) (queue.Decomposition, error) {
	var d queue.Decomposition
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("read decomposition: %w", err)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parse decomposition: %w", err)
	}
	return d, nil
}

func loadCheckpoint(path string) (queue.Checkpoint, error) {
	var cp queue.Checkpoint
	data, err := os.ReadFile(path)
	if err != nil {
		return cp, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// newObserver fans every event out to the logger and, if metricsAddr is
// set, to a Prometheus registry served over HTTP on a background listener.
func newObserver(logger *slog.Logger, metricsAddr string) observability.Observer {
	obs := []observability.Observer{observability.NewSlogObserver(logger)}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		obs = append(obs, observability.NewPrometheusObserver(reg))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited", "error", err)
			}
		}()
	}

	return observability.NewMultiObserver(obs...)
}

// demoProvider is a deterministic stand-in for an actual language-model
// back-end. swarmcore itself never ships one (spec.md scopes real
// provider integrations to callers) — this lets `run` exercise the full
// queue/pool/orchestrator/provider-chain wiring end to end without any
// external service or credentials.
type demoProvider struct {
	name     string
	priority int
	model    string
}

func (p *demoProvider) Name() string       { return p.name }
func (p *demoProvider) Priority() int      { return p.priority }
func (p *demoProvider) IsConfigured() bool { return true }

func (p *demoProvider) Chat(ctx context.Context, messages []protocol.Message, opts providers.ChatOptions) (*providers.ChatResponse, error) {
	var last string
	if len(messages) > 0 {
		if s, ok := messages[len(messages)-1].Content.(string); ok {
			last = s
		}
	}
	return &providers.ChatResponse{
		Content: fmt.Sprintf("[%s demo] acknowledged: %s", p.name, last),
		Model:   p.model,
		Tokens:  len(last) / 4,
	}, nil
}

// buildChain assembles a Chain of one demo provider per configured worker
// tier, ordered by the tier's position in cfg.Workers.
func buildChain(cfg *config.SwarmConfig, observer observability.Observer) *providers.Chain {
	chainCfg := providers.DefaultConfig()
	chainCfg.Observer = observer

	candidates := make([]providers.Provider, 0, len(cfg.Workers))
	for i, w := range cfg.Workers {
		model := w.Model
		if model == "" {
			model = cfg.OrchestratorModel
		}
		candidates = append(candidates, &demoProvider{name: w.Tier, priority: i, model: model})
	}
	if len(candidates) == 0 {
		candidates = append(candidates, &demoProvider{name: "default", priority: 0, model: cfg.OrchestratorModel})
	}

	return providers.NewChain(chainCfg, candidates...)
}

// buildWorker adapts a provider Chain into an orchestrator.Worker: the
// task description plus its dependency context become the prompt, the
// chain's response becomes the task's output, and a successful result is
// also posted to the blackboard so downstream tasks (and a human watching
// `board.Query`) can see what each worker produced without re-reading the
// queue.
func buildWorker(chain *providers.Chain, board *blackboard.Board) orchestrator.Worker {
	return func(ctx context.Context, task *queue.Task, depContext string) queue.TaskResult {
		content := task.Description
		if depContext != "" {
			content = content + "\n\n" + depContext
		}

		start := time.Now()
		resp, err := chain.Chat(ctx, []protocol.Message{protocol.NewMessage(protocol.RoleUser, content)}, nil)
		if err != nil {
			return queue.TaskResult{Success: false, DurationMs: time.Since(start).Milliseconds(), DispatchID: task.DispatchID}
		}

		board.Post(task.ID, blackboard.Finding{
			Topic:      "task." + task.ID,
			Type:       blackboard.FindingAnswer,
			Content:    resp.Content,
			Confidence: 1.0,
		})

		return queue.TaskResult{
			Success:    true,
			Output:     resp.Content,
			TokensUsed: resp.Tokens,
			Model:      resp.Model,
			DurationMs: time.Since(start).Milliseconds(),
			DispatchID: task.DispatchID,
		}
	}
}

// components bundles everything a run/resume subcommand needs to drive the
// swarm to completion.
type components struct {
	queue        *queue.Queue
	pool         *workerpool.Pool
	board        *blackboard.Board
	orchestrator *orchestrator.Orchestrator
}

func buildComponents(cfg *config.SwarmConfig, observer observability.Observer, checkpointPath string) *components {
	q := queue.New(cfg.QueueConfig(), observer, time.Now)
	pool := workerpool.New(cfg.WorkerPoolConfig(), observer)
	board := blackboard.New(blackboard.WithObserver(observer))
	chain := buildChain(cfg, observer)
	worker := buildWorker(chain, board)

	orchCfg := cfg.OrchestratorConfig()
	orchCfg.Observer = observer
	orchCfg.PreferredTier = func(taskType string) string { return "" }
	if checkpointPath != "" {
		orchCfg.Persist = func(cp queue.Checkpoint) error { return writeJSON(checkpointPath, cp) }
	}

	orch := orchestrator.New(q, pool, worker, orchCfg)

	return &components{queue: q, pool: pool, board: board, orchestrator: orch}
}

// mirrorIntoTaskManager gives the decomposition's subtasks a task-manager
// record each, purely for the human-facing markdown snapshot `run` writes
// on completion — the orchestrator itself drives off the queue, not this
// manager.
func mirrorIntoTaskManager(mgr *taskmanager.Manager, d queue.Decomposition) {
	for _, t := range d.Subtasks {
		mgr.Create(t.ID, t.Description, "", map[string]any{"type": t.Type, "complexity": t.Complexity})
	}
}

func writeSession(path string, mgr *taskmanager.Manager) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(mgr.ToMarkdown()), 0o644)
}

func printStats(stats queue.Stats) {
	fmt.Printf("pending=%d ready=%d dispatched=%d completed=%d failed=%d skipped=%d\n",
		stats.Pending, stats.Ready, stats.Dispatched, stats.Completed, stats.Failed, stats.Skipped)
}
