package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/governance"
	"github.com/sells-group/cutoff-ingest/internal/ingest"
	"github.com/sells-group/cutoff-ingest/internal/model"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect discovered artifacts and their ingestion runs",
}

// -- artifacts list --

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered artifacts, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		exam, _ := cmd.Flags().GetString("exam")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		arts, err := governance.NewController(st.Pool()).List(ctx, governance.ListOpts{
			ExamCode: strings.ToUpper(exam),
			Status:   model.ArtifactStatus(strings.ToUpper(status)),
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "artifacts list")
		}
		if len(arts) == 0 {
			fmt.Fprintln(os.Stderr, "No artifacts found.")
			return nil
		}
		formatArtifacts(os.Stdout, arts)
		return nil
	},
}

// -- artifacts runs --

var artifactsRunsCmd = &cobra.Command{
	Use:   "runs [artifact-id]",
	Short: "List ingestion runs, optionally for one artifact",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var id uuid.UUID
		if len(args) == 1 {
			parsed, err := uuid.Parse(args[0])
			if err != nil {
				return eris.Wrapf(err, "invalid artifact id %q", args[0])
			}
			id = parsed
		}
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := ingest.NewRunLog(st.Pool()).List(ctx, id, limit)
		if err != nil {
			return eris.Wrap(err, "artifacts runs")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRuns(os.Stdout, runs)
		return nil
	},
}

// -- approve --

var approveCmd = &cobra.Command{
	Use:   "approve <artifact-id>",
	Short: "Approve a PENDING or FAILED artifact for ingestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrapf(err, "invalid artifact id %q", args[0])
		}
		reviewer, _ := cmd.Flags().GetString("reviewer")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := governance.NewController(st.Pool()).Approve(ctx, id, reviewer); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Artifact %s approved by %s.\n", id, reviewer)
		return nil
	},
}

// -- wipe --

var wipeCmd = &cobra.Command{
	Use:   "wipe <artifact-id>",
	Short: "Delete every outcome, candidate and quarantine row produced from one artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrapf(err, "invalid artifact id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var stats ingest.WipeStats
		err = db.InTx(ctx, st.Pool(), func(tx pgx.Tx) error {
			var werr error
			stats, werr = ingest.NewJanitor(tx).WipeArtifact(ctx, id)
			return werr
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Wiped artifact %s: %d outcomes, %d candidates, %d quarantine rows.\n",
			id, stats.Outcomes, stats.Candidates, stats.Quarantine)
		return nil
	},
}

func init() {
	artifactsListCmd.Flags().String("exam", "", "filter by exam code")
	artifactsListCmd.Flags().String("status", "", "filter by status (PENDING, APPROVED, INGESTED, FAILED)")
	artifactsListCmd.Flags().Int("limit", 100, "maximum artifacts to show")
	artifactsRunsCmd.Flags().Int("limit", 50, "maximum runs to show")

	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsRunsCmd)

	approveCmd.Flags().String("reviewer", "cli", "reviewer recorded on the artifact")

	rootCmd.AddCommand(artifactsCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(wipeCmd)
}
