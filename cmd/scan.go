package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/worker"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover cutoff documents on the authorities' seed pages",
	Long:  "Scans the seed page of every selected exam and year, probes each candidate link, and registers new or revised documents as PENDING artifacts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		exams, _ := cmd.Flags().GetStringSlice("exam")
		years, _ := cmd.Flags().GetIntSlice("year")
		enqueue, _ := cmd.Flags().GetBool("enqueue")

		if len(exams) == 0 {
			exams = cfg.ActiveExams()
		}
		for i := range exams {
			exams[i] = strings.ToUpper(exams[i])
		}
		if len(years) == 0 {
			years = cfg.Scan.Years
		}
		if len(exams) == 0 || len(years) == 0 {
			return eris.New("scan: no exams or years selected (use --exam/--year or configure exams and scan.years)")
		}

		if enqueue {
			c, err := worker.Dial(cfg.Temporal)
			if err != nil {
				return err
			}
			defer c.Close()
			id, runID, err := worker.EnqueueScan(ctx, c, cfg.Temporal.TaskQueue, worker.ScanInput{Exams: exams, Years: years})
			if err != nil {
				return err
			}
			zap.L().Info("scan workflow started", zap.String("workflow_id", id), zap.String("run_id", runID))
			return nil
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		results, err := e.Scanner().ScanAll(ctx, exams, years)
		formatScanResults(os.Stdout, results)
		return err
	},
}

func init() {
	scanCmd.Flags().StringSlice("exam", nil, "exam codes to scan (default: active exams)")
	scanCmd.Flags().IntSlice("year", nil, "admission years to scan (default: scan.years)")
	scanCmd.Flags().Bool("enqueue", false, "start a scan workflow on the worker instead of scanning inline")
	rootCmd.AddCommand(scanCmd)
}
