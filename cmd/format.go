package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sells-group/cutoff-ingest/internal/discovery"
	"github.com/sells-group/cutoff-ingest/internal/ingest"
	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/triage"
)

const timeLayout = "2006-01-02 15:04"

func formatArtifacts(w io.Writer, arts []model.Artifact) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEXAM\tYEAR\tROUND\tSTATUS\tDIRTY\tNAME\tUPDATED")
	for _, a := range arts {
		round := "-"
		if r := a.Round(); r > 0 {
			round = fmt.Sprintf("%d", r)
		}
		dirty := ""
		if a.RequiresReprocessing {
			dirty = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.ExamCode, a.Year, round, a.Status, dirty, a.RoundName, a.UpdatedAt.Format(timeLayout))
	}
	_ = tw.Flush()
}

func formatRuns(w io.Writer, runs []model.IngestionRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tARTIFACT\tEXAM\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID.String()), shortID(r.ArtifactID.String()), r.ExamCode, r.Status, r.StartedAt.Format(timeLayout), dur)
	}
	_ = tw.Flush()
}

func formatScanResults(w io.Writer, results []discovery.ScanResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EXAM\tYEAR\tFOUND\tNEW\tUPDATED\tREVISED\tDEAD\tFAILED\tNOTE")
	for _, r := range results {
		note := ""
		switch {
		case r.Locked:
			note = "locked by another worker"
		case r.NoSeed:
			note = "no seed url"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ExamCode, r.Year, r.Found, r.New, r.Updated, r.Revised, r.SkippedDead, r.Failed, note)
	}
	_ = tw.Flush()
}

func formatSummary(w io.Writer, sum ingest.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARTIFACT\tEXAM\tOUTCOME\tACCEPTED\tQ_IDENTITY\tQ_POLICY\tERROR")
	for _, r := range sum.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			shortID(r.ArtifactID.String()), r.ExamCode, r.Outcome,
			r.Stats.Accepted, r.Stats.QuarantinedIdentity, r.Stats.QuarantinedPolicy, r.Error)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\ncompleted=%d failed=%d skipped=%d\n", sum.Completed, sum.Failed, sum.Skipped)
}

func formatViolations(w io.Writer, vs []triage.Violation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEAT BUCKET\tEXAM\tYEAR\tCOUNT")
	for _, v := range vs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", v.Slug, v.ExamCode, v.NewestYear, v.Count)
	}
	_ = tw.Flush()
}

func formatCandidates(w io.Writer, cs []triage.Candidate) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRAW NAME\tREASON\tSOURCE\tCREATED")
	for _, c := range cs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.RawName, c.Reason, shortID(c.SourceDocument), c.CreatedAt.Format(timeLayout))
	}
	_ = tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
