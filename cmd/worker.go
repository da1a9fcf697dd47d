package cmd

import (
	"time"

	"madangbot/internal/worker"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	var (
		interval      time.Duration
		draftInterval time.Duration
	)

	var command = &cobra.Command{
		Use:   "worker",
		Short: "Run a cycle on a timer until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return worker.Run(worker.Config{
				Interval:      interval,
				DraftInterval: draftInterval,
			})
		},
	}

	command.Flags().DurationVar(&interval, "interval", 0, "Cycle interval (default WORKER_INTERVAL)")
	command.Flags().DurationVar(&draftInterval, "draft-interval", 0, "Draft planning interval, 0 uses WORKER_DRAFT_INTERVAL")

	return command
}
