package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cutoff-ingest/internal/triage"
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Resolve quarantined seat policies and unknown institutions",
}

var triagePolicyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Seat policy violations",
}

var triageIdentityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Unresolved institution names",
}

// -- triage policy list --

var triagePolicyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending violations grouped by seat bucket",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		vs, err := triage.NewPolicy(st.Pool()).List(ctx, limit, offset)
		if err != nil {
			return err
		}
		if len(vs) == 0 {
			fmt.Fprintln(os.Stderr, "No pending violations.")
			return nil
		}
		formatViolations(os.Stdout, vs)
		return nil
	},
}

// -- triage policy promote --

var triagePolicyPromoteCmd = &cobra.Command{
	Use:   "promote <seat-bucket-code>",
	Short: "Add a seat bucket to the taxonomy and flag its source documents for reprocessing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reviewer, _ := cmd.Flags().GetString("reviewer")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := triage.NewPolicy(st.Pool()).Promote(ctx, args[0], reviewer)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Promoted %s (%s): %d violations resolved, %d artifacts flagged.\n",
			res.Slug, res.ExamCode, res.Resolved, res.Flagged)
		return nil
	},
}

// -- triage policy ignore --

var triagePolicyIgnoreCmd = &cobra.Command{
	Use:   "ignore <seat-bucket-code>",
	Short: "Dismiss every pending violation of a seat bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reviewer, _ := cmd.Flags().GetString("reviewer")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := triage.NewPolicy(st.Pool()).Ignore(ctx, args[0], reviewer)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Ignored %d violations of %s.\n", n, args[0])
		return nil
	},
}

// -- triage identity list --

var triageIdentityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending identity candidates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cs, err := triage.NewIdentity(st.Pool()).List(ctx, limit)
		if err != nil {
			return err
		}
		if len(cs) == 0 {
			fmt.Fprintln(os.Stderr, "No pending candidates.")
			return nil
		}
		formatCandidates(os.Stdout, cs)
		return nil
	},
}

// -- triage identity link --

var triageIdentityLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link candidates to an existing institution as aliases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		ids, _ := cmd.Flags().GetInt64Slice("candidates")
		instFlag, _ := cmd.Flags().GetString("institution")
		reviewer, _ := cmd.Flags().GetString("reviewer")

		inst, err := uuid.Parse(instFlag)
		if err != nil {
			return eris.Wrapf(err, "invalid institution id %q", instFlag)
		}
		if len(ids) == 0 {
			return eris.New("triage identity link: --candidates is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := triage.NewIdentity(st.Pool()).Link(ctx, ids, inst, reviewer)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Linked %d candidates to %s, %d artifacts flagged.\n", res.Resolved, res.InstitutionID, res.Flagged)
		return nil
	},
}

// -- triage identity promote --

var triageIdentityPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Create a new institution from candidates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		ids, _ := cmd.Flags().GetInt64Slice("candidates")
		name, _ := cmd.Flags().GetString("name")
		reviewer, _ := cmd.Flags().GetString("reviewer")

		if len(ids) == 0 || name == "" {
			return eris.New("triage identity promote: --candidates and --name are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := triage.NewIdentity(st.Pool()).Promote(ctx, ids, name, reviewer)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Created institution %s from %d candidates, %d artifacts flagged.\n", res.InstitutionID, res.Resolved, res.Flagged)
		return nil
	},
}

func init() {
	triagePolicyListCmd.Flags().Int("limit", 100, "maximum buckets to show")
	triagePolicyListCmd.Flags().Int("offset", 0, "buckets to skip")
	for _, c := range []*cobra.Command{triagePolicyPromoteCmd, triagePolicyIgnoreCmd, triageIdentityLinkCmd, triageIdentityPromoteCmd} {
		c.Flags().String("reviewer", "cli", "reviewer recorded on the resolution")
	}
	triageIdentityListCmd.Flags().Int("limit", 200, "maximum candidates to show")
	triageIdentityLinkCmd.Flags().Int64Slice("candidates", nil, "candidate ids")
	triageIdentityLinkCmd.Flags().String("institution", "", "existing institution id")
	triageIdentityPromoteCmd.Flags().Int64Slice("candidates", nil, "candidate ids")
	triageIdentityPromoteCmd.Flags().String("name", "", "official name of the new institution")

	triagePolicyCmd.AddCommand(triagePolicyListCmd, triagePolicyPromoteCmd, triagePolicyIgnoreCmd)
	triageIdentityCmd.AddCommand(triageIdentityListCmd, triageIdentityLinkCmd, triageIdentityPromoteCmd)
	triageCmd.AddCommand(triagePolicyCmd, triageIdentityCmd)
	rootCmd.AddCommand(triageCmd)
}
