package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/worker"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Ingest approved and dirty artifacts",
	Long:  "Runs every APPROVED artifact and every INGESTED artifact flagged for reprocessing. Each artifact is ingested in its own transaction; a failure marks that artifact FAILED and the pass continues.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}
		exam, _ := cmd.Flags().GetString("exam")
		enqueue, _ := cmd.Flags().GetBool("enqueue")

		if enqueue {
			c, err := worker.Dial(cfg.Temporal)
			if err != nil {
				return err
			}
			defer c.Close()
			id, runID, err := worker.EnqueueProcess(ctx, c, cfg.Temporal.TaskQueue, worker.ProcessInput{ExamCode: exam})
			if err != nil {
				return err
			}
			zap.L().Info("process workflow started", zap.String("workflow_id", id), zap.String("run_id", runID))
			return nil
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
		sum, err := orch.ProcessApprovedAndDirty(ctx, exam)
		formatSummary(os.Stdout, sum)
		return err
	},
}

func init() {
	processCmd.Flags().String("exam", "", "restrict the pass to one exam code")
	processCmd.Flags().Bool("enqueue", false, "start a process workflow on the worker instead of running inline")
	rootCmd.AddCommand(processCmd)
}
