// Command swarmctl drives the task-orchestration core from the command
// line: it loads a decomposition and a SwarmConfig, wires the queue, worker
// pool, provider chain, task manager, and orchestrator together, and runs
// (or resumes) the swarm to completion.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var rootFlags struct {
	configPath string
	verbose    bool
	metricsAddr string
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swarmctl",
		Short: "Drive the swarm task-orchestration core",
	}

	cmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", "", "path to SwarmConfig JSON (optional; defaults used otherwise)")
	cmd.PersistentFlags().BoolVar(&rootFlags.verbose, "verbose", false, "enable debug-level logging")
	cmd.PersistentFlags().StringVar(&rootFlags.metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newInspectCmd())

	return cmd
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if rootFlags.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
