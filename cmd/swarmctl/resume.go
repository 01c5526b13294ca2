package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	var checkpointPath, decompositionPath string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a swarm run from a persisted checkpoint",
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

			cp, err := loadCheckpoint(checkpointPath)
			if err != nil {
				return err
			}

			observer := newObserver(logger, rootFlags.metricsAddr)
			comps := buildComponents(cfg, observer, checkpointPath)

			// RestoreFromCheckpoint only overwrites runtime fields (status,
			// wave, attempts, ...) on tasks that already exist in the queue;
			// it never reconstructs a task from scratch. The queue has to be
			// loaded with the original decomposition first so those tasks
			// exist for the checkpoint to restore onto.
			if err := comps.queue.Load(d); err != nil {
				return fmt.Errorf("load decomposition: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			if err := comps.orchestrator.Resume(ctx, cp); err != nil {
				return fmt.Errorf("resume: %w", err)
			}

			printStats(comps.queue.GetStats())

			if err := writeJSON(checkpointPath, comps.queue.GetCheckpointState()); err != nil {
				logger.Error("final checkpoint write failed", "error", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "path to the checkpoint JSON file to resume from (required)")
	cmd.Flags().StringVar(&decompositionPath, "decomposition", "", "path to the original decomposition JSON file (required)")
	cmd.MarkFlagRequired("checkpoint")
	cmd.MarkFlagRequired("decomposition")

	return cmd
}
