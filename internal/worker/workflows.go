// Package worker runs discovery scans and ingestion passes as Temporal
// workflows so the scheduler can retry a whole failed run.
package worker

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Activity retry: 3 attempts, exponential backoff capped at one minute.
const (
	retryInitial     = 5 * time.Second
	retryCoefficient = 2.0
	retryMax         = time.Minute
	retryAttempts    = 3

	scanTimeout    = 30 * time.Minute
	processTimeout = 2 * time.Hour
)

// RetryPolicy is applied to every activity the workflows schedule.
func RetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    retryInitial,
		BackoffCoefficient: retryCoefficient,
		MaximumInterval:    retryMax,
		MaximumAttempts:    retryAttempts,
	}
}

func activityOptions(timeout time.Duration) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         RetryPolicy(),
	}
}

// ScanWorkflow discovers artifacts for the given exams and years.
func ScanWorkflow(ctx workflow.Context, in ScanInput) (ScanOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(scanTimeout))
	log := workflow.GetLogger(ctx)

	var a *Activities
	var out ScanOutput
	if err := workflow.ExecuteActivity(ctx, a.Scan, in).Get(ctx, &out); err != nil {
		log.Error("scan failed", "exams", in.Exams, "error", err)
		return out, err
	}
	log.Info("scan complete", "new", out.New, "revised", out.Revised, "locked", out.Locked)
	return out, nil
}

// ProcessWorkflow runs one ingestion pass. Artifacts locked by another
// worker come back as skipped and are picked up by the next pass.
func ProcessWorkflow(ctx workflow.Context, in ProcessInput) (ProcessOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(processTimeout))
	log := workflow.GetLogger(ctx)

	var a *Activities
	var out ProcessOutput
	if err := workflow.ExecuteActivity(ctx, a.Process, in).Get(ctx, &out); err != nil {
		log.Error("process failed", "exam", in.ExamCode, "error", err)
		return out, err
	}
	log.Info("process complete", "completed", out.Completed, "failed", out.Failed, "skipped", out.Skipped)
	return out, nil
}
