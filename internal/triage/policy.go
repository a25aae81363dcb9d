package triage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/policy"
)

// Violation is one unknown seat bucket with its open quarantine rows.
type Violation struct {
	Slug       string `json:"seat_bucket_code"`
	ExamCode   string `json:"exam_code"`
	NewestYear int    `json:"source_year"`
	Count      int    `json:"count"`
}

// PromoteResult summarizes a bucket promotion.
type PromoteResult struct {
	Slug     string `json:"seat_bucket_code"`
	ExamCode string `json:"exam_code"`
	Resolved int    `json:"resolved"`
	Flagged  int64  `json:"flagged_artifacts"`
}

// Policy resolves seat-policy quarantine.
type Policy struct {
	pool db.Pool
	log  *zap.Logger
}

// NewPolicy creates a Policy triage over pool.
func NewPolicy(pool db.Pool) *Policy {
	return &Policy{pool: pool, log: zap.L().With(zap.String("component", "triage.policy"))}
}

// List returns open violations grouped by bucket and exam, largest first.
func (p *Policy) List(ctx context.Context, limit, offset int) ([]Violation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT seat_bucket_code, exam_code, MAX(source_year), COUNT(*)
		 FROM seat_policy_quarantine
		 WHERE status = 'OPEN'
		 GROUP BY seat_bucket_code, exam_code
		 ORDER BY COUNT(*) DESC, seat_bucket_code
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "triage: list violations")
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var v Violation
		if err := rows.Scan(&v.Slug, &v.ExamCode, &v.NewestYear, &v.Count); err != nil {
			return nil, eris.Wrap(err, "triage: scan violation")
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Promote registers slug in the taxonomy from the attributes captured at
// quarantine time, resolves every open row sharing it and flags their
// source artifacts for reprocessing.
func (p *Policy) Promote(ctx context.Context, slug, reviewer string) (PromoteResult, error) {
	res := PromoteResult{Slug: slug}
	err := db.InTx(ctx, p.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx,
			`SELECT exam_code, raw_row FROM seat_policy_quarantine
			 WHERE seat_bucket_code = $1 AND status = 'OPEN'
			 ORDER BY created_at DESC
			 LIMIT 1`,
			slug,
		).Scan(&res.ExamCode, &raw)
		if err != nil {
			if db.IsNoRows(err) {
				return eris.Wrapf(ErrNoViolation, "bucket %s", slug)
			}
			return eris.Wrapf(err, "triage: load violation %s", slug)
		}

		var attrs model.PolicyAttributes
		if err := json.Unmarshal(raw, &attrs); err != nil {
			return eris.Wrapf(err, "triage: decode attributes of %s", slug)
		}
		if err := policy.InsertTaxonomy(ctx, tx, res.ExamCode, slug, attrs); err != nil {
			return err
		}

		sources, err := resolveOpen(ctx, tx, slug, "RESOLVED", reviewer)
		if err != nil {
			return err
		}
		res.Resolved = len(sources)

		res.Flagged, err = flagSources(ctx, tx, sources)
		return err
	})
	if err != nil {
		return res, err
	}
	p.log.Info("bucket promoted",
		zap.String("slug", slug),
		zap.String("exam", res.ExamCode),
		zap.Int("resolved", res.Resolved),
		zap.Int64("flagged", res.Flagged),
	)
	return res, nil
}

// Ignore closes every open violation of slug without touching the taxonomy.
func (p *Policy) Ignore(ctx context.Context, slug, reviewer string) (int, error) {
	var n int
	err := db.InTx(ctx, p.pool, func(tx pgx.Tx) error {
		sources, err := resolveOpen(ctx, tx, slug, "IGNORED", reviewer)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			return eris.Wrapf(ErrNoViolation, "bucket %s", slug)
		}
		n = len(sources)
		return nil
	})
	if err != nil {
		return 0, err
	}
	p.log.Info("bucket ignored", zap.String("slug", slug), zap.Int("rows", n))
	return n, nil
}

// resolveOpen closes the open rows of slug and returns their source files,
// one entry per row.
func resolveOpen(ctx context.Context, tx pgx.Tx, slug, status, reviewer string) ([]string, error) {
	rows, err := tx.Query(ctx,
		`UPDATE seat_policy_quarantine
		 SET status = $2, resolved_at = now(), resolved_by = $3
		 WHERE seat_bucket_code = $1 AND status = 'OPEN'
		 RETURNING COALESCE(source_file, '')`,
		slug, status, reviewer,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "triage: close violations of %s", slug)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, eris.Wrap(err, "triage: scan source file")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
