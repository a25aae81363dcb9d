package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/cutoff-ingest/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker for scan and process workflows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		orch, err := e.Orchestrator()
		if err != nil {
			return err
		}

		c, err := worker.Dial(cfg.Temporal)
		if err != nil {
			return err
		}
		defer c.Close()

		return worker.Run(ctx, c, cfg.Temporal.TaskQueue, &worker.Activities{
			Scanner:   e.Scanner(),
			Processor: orch,
		})
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
