package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/cutoff-ingest/internal/ingest"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage exam configuration",
}

var configSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Validate exam modes and write them to exam_configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := ingest.NewExamModes(st.Pool()).Sync(ctx, cfg.Exams)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Synced %d exam modes.\n", n)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSyncCmd)
	rootCmd.AddCommand(configCmd)
}
