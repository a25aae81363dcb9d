package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/cutoff-ingest/internal/discovery"
	"github.com/sells-group/cutoff-ingest/internal/engine"
	"github.com/sells-group/cutoff-ingest/internal/ingest"
	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/triage"
)

func TestFormatArtifacts(t *testing.T) {
	now := time.Date(2025, 7, 1, 9, 15, 0, 0, time.UTC)
	round := 2
	arts := []model.Artifact{
		{
			ID:                   uuid.MustParse("abc12345-6789-4000-8000-000000000000"),
			ExamCode:             "KCET",
			Year:                 2025,
			RoundNumber:          &round,
			RoundName:            "KCET_ENGINEERING_R2",
			Status:               model.StatusIngested,
			RequiresReprocessing: true,
			UpdatedAt:            now,
		},
		{
			ID:        uuid.MustParse("def12345-6789-4000-8000-000000000000"),
			ExamCode:  "NEET_KA",
			Year:      2025,
			Status:    model.StatusPending,
			UpdatedAt: now,
		},
	}

	var buf bytes.Buffer
	formatArtifacts(&buf, arts)

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "KCET_ENGINEERING_R2")
	assert.Contains(t, out, "INGESTED")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "PENDING")
	assert.Contains(t, out, "2025-07-01 09:15")
}

func TestFormatRuns(t *testing.T) {
	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	done := start.Add(95 * time.Second)
	runs := []model.IngestionRun{
		{ID: uuid.New(), ArtifactID: uuid.New(), ExamCode: "KCET", Status: model.RunCompleted, StartedAt: start, CompletedAt: &done},
		{ID: uuid.New(), ArtifactID: uuid.New(), ExamCode: "KCET", Status: model.RunRunning, StartedAt: start},
	}

	var buf bytes.Buffer
	formatRuns(&buf, runs)

	out := buf.String()
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "RUNNING")
}

func TestFormatScanResults(t *testing.T) {
	var buf bytes.Buffer
	formatScanResults(&buf, []discovery.ScanResult{
		{ExamCode: "KCET", Year: 2025, Found: 6, New: 2, Revised: 1},
		{ExamCode: "NEET_KA", Year: 2025, Locked: true},
		{ExamCode: "MHTCET_BE", Year: 2019, NoSeed: true},
	})

	out := buf.String()
	assert.Contains(t, out, "REVISED")
	assert.Contains(t, out, "locked by another worker")
	assert.Contains(t, out, "no seed url")
}

func TestFormatSummary(t *testing.T) {
	sum := ingest.Summary{
		Completed: 1,
		Failed:    1,
		Results: []ingest.Result{
			{ArtifactID: uuid.New(), ExamCode: "KCET", Outcome: ingest.OutcomeCompleted, Stats: engine.Stats{Accepted: 120, QuarantinedIdentity: 3}},
			{ArtifactID: uuid.New(), ExamCode: "KCET", Outcome: ingest.OutcomeFailed, Error: "exam KCET has no ingestion mode"},
		},
	}

	var buf bytes.Buffer
	formatSummary(&buf, sum)

	out := buf.String()
	assert.Contains(t, out, "120")
	assert.Contains(t, out, "no ingestion mode")
	assert.Contains(t, out, "completed=1 failed=1 skipped=0")
}

func TestFormatTriage(t *testing.T) {
	var buf bytes.Buffer
	formatViolations(&buf, []triage.Violation{{Slug: "KCET_ENGINEERING_GEN_XYZ", ExamCode: "KCET", NewestYear: 2025, Count: 14}})
	assert.Contains(t, buf.String(), "KCET_ENGINEERING_GEN_XYZ")
	assert.Contains(t, buf.String(), "14")

	buf.Reset()
	formatCandidates(&buf, []triage.Candidate{{ID: 42, RawName: "Govt Medical College Miraj", Reason: "no alias match", SourceDocument: "abc12345-6789"}})
	assert.Contains(t, buf.String(), "Govt Medical College Miraj")
	assert.Contains(t, buf.String(), "abc12345")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc12345", shortID("abc12345-6789"))
	assert.Equal(t, "abc", shortID("abc"))
}
