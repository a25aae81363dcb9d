package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/discovery"
	"github.com/sells-group/cutoff-ingest/internal/ingest"
)

// Scanner runs discovery for a set of exams and years.
type Scanner interface {
	ScanAll(ctx context.Context, exams []string, years []int) ([]discovery.ScanResult, error)
}

// Processor runs one ingestion pass.
type Processor interface {
	ProcessApprovedAndDirty(ctx context.Context, exam string) (ingest.Summary, error)
}

// ScanInput selects the seeds a scan visits.
type ScanInput struct {
	Exams []string `json:"exams"`
	Years []int    `json:"years"`
}

// ScanOutput summarizes a scan. Locked counts exam/year pairs skipped
// because another worker held them.
type ScanOutput struct {
	Results []discovery.ScanResult `json:"results"`
	New     int                    `json:"new"`
	Revised int                    `json:"revised"`
	Locked  int                    `json:"locked"`
}

// ProcessInput selects the exam an ingestion pass covers; empty means all.
type ProcessInput struct {
	ExamCode string `json:"exam_code"`
}

// ProcessOutput summarizes an ingestion pass without per-row detail.
type ProcessOutput struct {
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// Activities are the units of work the workflows schedule.
type Activities struct {
	Scanner   Scanner
	Processor Processor
}

// Scan runs discovery. Lock contention is reported in the output, not as an error.
func (a *Activities) Scan(ctx context.Context, in ScanInput) (ScanOutput, error) {
	results, err := a.Scanner.ScanAll(ctx, in.Exams, in.Years)
	out := ScanOutput{Results: results}
	for _, r := range results {
		out.New += r.New
		out.Revised += r.Revised
		if r.Locked {
			out.Locked++
		}
	}
	if err != nil {
		return out, err
	}
	zap.L().Info("worker: scan activity complete",
		zap.Strings("exams", in.Exams),
		zap.Int("new", out.New),
		zap.Int("revised", out.Revised),
		zap.Int("locked", out.Locked),
	)
	return out, nil
}

// Process runs one ingestion pass over approved and dirty artifacts.
func (a *Activities) Process(ctx context.Context, in ProcessInput) (ProcessOutput, error) {
	sum, err := a.Processor.ProcessApprovedAndDirty(ctx, in.ExamCode)
	out := ProcessOutput{Completed: sum.Completed, Failed: sum.Failed, Skipped: sum.Skipped}
	for _, r := range sum.Results {
		if r.Outcome == ingest.OutcomeFailed {
			out.FailedIDs = append(out.FailedIDs, r.ArtifactID.String())
		}
	}
	return out, err
}
