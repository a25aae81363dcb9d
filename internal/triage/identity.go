package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/registry"
)

// Alias provenance and audit vocabulary.
const (
	SourceManualTriage    = "manual_triage"
	SourceManualPromotion = "manual_promotion"
)

// Candidate is an unresolved institution name awaiting review.
type Candidate struct {
	ID             int64     `json:"candidate_id"`
	RawName        string    `json:"raw_name"`
	SourceDocument string    `json:"source_document"`
	Reason         string    `json:"reason_flagged"`
	Status         string    `json:"status"`
	RunID          uuid.UUID `json:"ingestion_run_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// IdentityResult summarizes a link or promotion.
type IdentityResult struct {
	InstitutionID uuid.UUID `json:"institution_id"`
	Resolved      int       `json:"resolved"`
	Flagged       int64     `json:"flagged_artifacts"`
}

// Identity resolves identity quarantine. It is the only path that creates
// institutions or aliases.
type Identity struct {
	pool db.Pool
	log  *zap.Logger
}

// NewIdentity creates an Identity triage over pool.
func NewIdentity(pool db.Pool) *Identity {
	return &Identity{pool: pool, log: zap.L().With(zap.String("component", "triage.identity"))}
}

// List returns pending candidates, newest first.
func (t *Identity) List(ctx context.Context, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := t.pool.Query(ctx,
		`SELECT candidate_id, raw_name, source_document, COALESCE(reason_flagged, ''), status,
		        ingestion_run_id, created_at
		 FROM college_candidates
		 WHERE status = 'pending'
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "triage: list candidates")
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.RawName, &c.SourceDocument, &c.Reason, &c.Status, &c.RunID, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "triage: scan candidate")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Link adds each candidate's name as an approved alias of an existing
// institution.
func (t *Identity) Link(ctx context.Context, candidateIDs []int64, institutionID uuid.UUID, reviewer string) (IdentityResult, error) {
	res := IdentityResult{InstitutionID: institutionID}
	err := db.InTx(ctx, t.pool, func(tx pgx.Tx) error {
		ok, err := registry.Exists(ctx, tx, institutionID)
		if err != nil {
			return err
		}
		if !ok {
			return eris.Wrapf(ErrUnknownInstitution, "institution %s", institutionID)
		}
		cands, err := loadCandidates(ctx, tx, candidateIDs)
		if err != nil {
			return err
		}
		for _, c := range cands {
			if err := registry.LinkAlias(ctx, tx, institutionID, c.RawName, SourceManualTriage); err != nil {
				return err
			}
			err := registry.Audit(ctx, tx, registry.AuditEntry{
				EntityType:  "ALIAS",
				EntityID:    institutionID,
				Action:      "LINKED",
				PerformedBy: reviewer,
				Reason:      fmt.Sprintf("Linked candidate %s", c.RawName),
			})
			if err != nil {
				return err
			}
		}
		res.Resolved = len(cands)
		res.Flagged, err = closeCandidates(ctx, tx, cands)
		return err
	})
	if err != nil {
		return res, err
	}
	t.log.Info("candidates linked",
		zap.String("institution_id", institutionID.String()),
		zap.Int("resolved", res.Resolved),
		zap.Int64("flagged", res.Flagged),
	)
	return res, nil
}

// Promote creates a canonical institution named canonicalName and links
// every candidate spelling that differs from it.
func (t *Identity) Promote(ctx context.Context, candidateIDs []int64, canonicalName, reviewer string) (IdentityResult, error) {
	var res IdentityResult
	err := db.InTx(ctx, t.pool, func(tx pgx.Tx) error {
		cands, err := loadCandidates(ctx, tx, candidateIDs)
		if err != nil {
			return err
		}
		id, err := registry.Promote(ctx, tx, canonicalName, SourceManualPromotion)
		if err != nil {
			return err
		}
		res.InstitutionID = id
		err = registry.Audit(ctx, tx, registry.AuditEntry{
			EntityType:  "REGISTRY",
			EntityID:    id,
			Action:      "CREATED",
			PerformedBy: reviewer,
			Reason:      "Promoted: " + canonicalName,
		})
		if err != nil {
			return err
		}

		canonical := registry.Normalize(canonicalName)
		for _, c := range cands {
			if registry.Normalize(c.RawName) == canonical {
				continue
			}
			if err := registry.LinkAlias(ctx, tx, id, c.RawName, SourceManualTriage); err != nil {
				return err
			}
		}
		res.Resolved = len(cands)
		res.Flagged, err = closeCandidates(ctx, tx, cands)
		return err
	})
	if err != nil {
		return res, err
	}
	t.log.Info("institution promoted from candidates",
		zap.String("institution_id", res.InstitutionID.String()),
		zap.String("name", canonicalName),
		zap.Int("resolved", res.Resolved),
	)
	return res, nil
}

func loadCandidates(ctx context.Context, tx pgx.Tx, ids []int64) ([]Candidate, error) {
	if len(ids) == 0 {
		return nil, ErrNoCandidates
	}
	rows, err := tx.Query(ctx,
		`SELECT candidate_id, raw_name, source_document
		 FROM college_candidates
		 WHERE candidate_id = ANY($1) AND status = 'pending'
		 ORDER BY candidate_id
		 FOR UPDATE`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "triage: load candidates")
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.RawName, &c.SourceDocument); err != nil {
			return nil, eris.Wrap(err, "triage: scan candidate")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoCandidates
	}
	return out, nil
}

// closeCandidates deletes resolved candidates and flags their documents.
func closeCandidates(ctx context.Context, tx pgx.Tx, cands []Candidate) (int64, error) {
	ids := make([]int64, len(cands))
	sources := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
		sources[i] = c.SourceDocument
	}
	if _, err := tx.Exec(ctx, `DELETE FROM college_candidates WHERE candidate_id = ANY($1)`, ids); err != nil {
		return 0, eris.Wrap(err, "triage: delete resolved candidates")
	}
	return flagSources(ctx, tx, sources)
}
