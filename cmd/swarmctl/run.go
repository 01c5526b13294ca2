package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/swarmcore/taskmanager"
)

func newRunCmd() *cobra.Command {
	var decompositionPath, checkpointPath, sessionPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a decomposition through the swarm to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := loadConfig(rootFlags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			d, err := loadDecomposition(decompositionPath)
			if err != nil {
				return err
			}

			observer := newObserver(logger, rootFlags.metricsAddr)
			comps := buildComponents(cfg, observer, checkpointPath)

			mgr := taskmanager.New(taskmanager.Config{Observer: observer})
			mirrorIntoTaskManager(mgr, d)

			ctx, cancel := signalContext()
			defer cancel()

			if err := comps.orchestrator.Run(ctx, d); err != nil {
				return fmt.Errorf("run: %w", err)
			}

			printStats(comps.queue.GetStats())

			if checkpointPath != "" {
				if err := writeJSON(checkpointPath, comps.queue.GetCheckpointState()); err != nil {
					logger.Error("final checkpoint write failed", "error", err)
				}
			}
			if err := writeSession(sessionPath, mgr); err != nil {
				logger.Error("session markdown write failed", "error", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&decompositionPath, "decomposition", "", "path to a decomposition JSON file (required)")
	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "path to periodically write checkpoint JSON")
	cmd.Flags().StringVar(&sessionPath, "session", "", "path to write a task-manager markdown snapshot on completion")
	cmd.MarkFlagRequired("decomposition")

	return cmd
}
