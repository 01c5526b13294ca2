package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/swarmcore/taskmanager"
)

func newInspectCmd() *cobra.Command {
	var checkpointPath, sessionPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print task-manager markdown and queue stats from a checkpoint without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := loadCheckpoint(checkpointPath)
			if err != nil {
				return err
			}

			fmt.Printf("version=%d currentWave=%d tasks=%d\n", cp.Version, cp.CurrentWave, len(cp.Tasks))

			sorted := cp.Tasks
			sort.Slice(sorted, func(i, j int) bool {
				if sorted[i].Wave != sorted[j].Wave {
					return sorted[i].Wave < sorted[j].Wave
				}
				return sorted[i].ID < sorted[j].ID
			})

			for _, t := range sorted {
				fmt.Printf("  wave=%d id=%-24s status=%-12s attempts=%d\n", t.Wave, t.ID, t.Status, t.Attempts)
			}

			if len(cp.ActiveOwners) > 0 {
				fmt.Printf("active owners: %v\n", cp.ActiveOwners)
			}

			if sessionPath != "" {
				md, err := os.ReadFile(sessionPath)
				if err != nil {
					return fmt.Errorf("read session: %w", err)
				}
				mgr := taskmanager.New(taskmanager.Config{})
				if err := mgr.FromMarkdown(string(md)); err != nil {
					return fmt.Errorf("parse session: %w", err)
				}
				fmt.Println()
				fmt.Println(mgr.ToMarkdown())
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "path to the checkpoint JSON file to inspect (required)")
	cmd.Flags().StringVar(&sessionPath, "session", "", "path to a task-manager markdown snapshot to print alongside the checkpoint")
	cmd.MarkFlagRequired("checkpoint")

	return cmd
}
