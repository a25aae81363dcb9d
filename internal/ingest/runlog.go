package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/model"
)

// RunLog is the ingestion_runs flight recorder. A run is opened RUNNING and
// sealed exactly once as COMPLETED or FAILED.
type RunLog struct {
	q db.Querier
}

// NewRunLog creates a RunLog writing through q.
func NewRunLog(q db.Querier) *RunLog {
	return &RunLog{q: q}
}

// Start records the beginning of a run against an artifact.
func (l *RunLog) Start(ctx context.Context, art *model.Artifact) (uuid.UUID, error) {
	id := uuid.New()
	_, err := l.q.Exec(ctx,
		`INSERT INTO ingestion_runs (run_id, artifact_id, exam_code, status, started_at)
		 VALUES ($1, $2, $3, 'RUNNING', now())`,
		id, art.ID, art.ExamCode,
	)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "runlog: start run for %s", art.ID)
	}
	return id, nil
}

// Complete seals a run as COMPLETED with its stats.
func (l *RunLog) Complete(ctx context.Context, runID uuid.UUID, stats map[string]any) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "runlog: marshal stats")
	}
	_, err = l.q.Exec(ctx,
		`UPDATE ingestion_runs
		 SET status = 'COMPLETED', completed_at = now(), stats = $2
		 WHERE run_id = $1 AND status = 'RUNNING'`,
		runID, statsJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", runID)
	}
	return nil
}

// Fail seals a run as FAILED with the error captured in its stats.
func (l *RunLog) Fail(ctx context.Context, runID uuid.UUID, errMsg string) error {
	statsJSON, err := json.Marshal(map[string]any{"error": errMsg})
	if err != nil {
		return eris.Wrap(err, "runlog: marshal error")
	}
	_, err = l.q.Exec(ctx,
		`UPDATE ingestion_runs
		 SET status = 'FAILED', completed_at = now(), stats = $2
		 WHERE run_id = $1 AND status = 'RUNNING'`,
		runID, statsJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", runID)
	}
	return nil
}

// List returns runs newest first, optionally for one artifact.
func (l *RunLog) List(ctx context.Context, artifactID uuid.UUID, limit int) ([]model.IngestionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.q.Query(ctx,
		`SELECT run_id, artifact_id, exam_code, status, stats, started_at, completed_at
		 FROM ingestion_runs
		 WHERE ($1::uuid IS NULL OR artifact_id = $1)
		 ORDER BY started_at DESC
		 LIMIT $2`,
		nullableID(artifactID), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var out []model.IngestionRun
	for rows.Next() {
		var (
			r           model.IngestionRun
			status      string
			statsJSON   []byte
			completedAt *time.Time
		)
		if err := rows.Scan(&r.ID, &r.ArtifactID, &r.ExamCode, &status, &statsJSON, &r.StartedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		r.Status = model.RunStatus(status)
		r.CompletedAt = completedAt
		if len(statsJSON) > 0 {
			_ = json.Unmarshal(statsJSON, &r.Stats)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
