package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/model"
)

// WipeStats counts rows removed by a wipe.
type WipeStats struct {
	Outcomes   int64 `json:"outcomes"`
	Candidates int64 `json:"candidates"`
	Quarantine int64 `json:"quarantine"`
}

// Janitor deletes ingestion output. Artifacts themselves are never deleted.
type Janitor struct {
	q   db.Querier
	log *zap.Logger
}

// NewJanitor creates a Janitor issuing statements on q.
func NewJanitor(q db.Querier) *Janitor {
	return &Janitor{q: q, log: zap.L().With(zap.String("component", "ingest.janitor"))}
}

// WipeArtifact deletes every outcome, pending identity candidate and policy
// quarantine row produced from one artifact. Facts of other documents are
// never touched.
func (j *Janitor) WipeArtifact(ctx context.Context, artifactID uuid.UUID) (WipeStats, error) {
	id := artifactID.String()
	var s WipeStats

	tag, err := j.q.Exec(ctx, `DELETE FROM cutoff_outcomes WHERE source_document = $1`, id)
	if err != nil {
		return s, eris.Wrapf(err, "janitor: wipe outcomes of %s", id)
	}
	s.Outcomes = tag.RowsAffected()

	if err := j.clearQueues(ctx, id, &s); err != nil {
		return s, err
	}

	j.log.Info("artifact wiped",
		zap.String("artifact_id", id),
		zap.Int64("outcomes", s.Outcomes),
		zap.Int64("candidates", s.Candidates),
		zap.Int64("quarantine", s.Quarantine),
	)
	return s, nil
}

// clearQueues deletes the artifact's pending identity candidates and policy
// quarantine rows. The next run recreates whatever is still unresolved.
func (j *Janitor) clearQueues(ctx context.Context, id string, s *WipeStats) error {
	tag, err := j.q.Exec(ctx,
		`DELETE FROM college_candidates WHERE source_document = $1 AND status = 'pending'`, id)
	if err != nil {
		return eris.Wrapf(err, "janitor: wipe candidates of %s", id)
	}
	s.Candidates = tag.RowsAffected()

	tag, err = j.q.Exec(ctx, `DELETE FROM seat_policy_quarantine WHERE source_file = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "janitor: wipe quarantine of %s", id)
	}
	s.Quarantine = tag.RowsAffected()
	return nil
}

// PreClean applies the mode's pre-run discipline, always scoped to the
// artifact. BOOTSTRAP hard-deletes the artifact's previous output since its
// values are replaced wholesale. CONTINUOUS keeps the artifact's outcomes so
// the engine can reaffirm unchanged facts and retire changed ones, and only
// clears its triage queues.
func (j *Janitor) PreClean(ctx context.Context, mode model.Mode, art *model.Artifact) (WipeStats, error) {
	if mode == model.ModeBootstrap {
		return j.WipeArtifact(ctx, art.ID)
	}
	var s WipeStats
	err := j.clearQueues(ctx, art.ID.String(), &s)
	return s, err
}
