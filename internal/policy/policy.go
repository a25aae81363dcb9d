// Package policy derives seat-bucket identity for parsed rows and enforces the
// taxonomy according to the exam's ingestion mode.
package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/model"
)

// Adapter maps one exam's raw rows onto seat-bucket identity. Errors returned
// by ResolveRound, GenerateSlug and Attributes are policy violations, not
// system failures.
type Adapter interface {
	ExamCode() string
	StateCode(row model.RawRow) string
	ResolveRound(row model.RawRow) (int, error)
	GenerateSlug(row model.RawRow) (string, error)
	Attributes(row model.RawRow) (model.PolicyAttributes, error)
	Descriptive(row model.RawRow) model.Descriptive
}

// Verdict is the gatekeeper's decision for one row.
type Verdict int

// Verdicts.
const (
	Accepted Verdict = iota
	Violation
)

func (v Verdict) String() string {
	if v == Accepted {
		return "ACCEPTED"
	}
	return "POLICY_VIOLATION"
}

// Result carries the derived identity of a row. On a Violation, whatever was
// derived before the failure is kept so triage can promote without re-parsing.
type Result struct {
	Verdict     Verdict
	Reason      string
	Round       int
	Slug        string
	StateCode   string
	Attributes  model.PolicyAttributes
	Descriptive model.Descriptive
}

// ResolveRound validates an adapter round. Rounds are never defaulted.
func ResolveRound(a Adapter, row model.RawRow) (int, error) {
	r, err := a.ResolveRound(row)
	if err != nil {
		return 0, err
	}
	if r < 1 {
		return 0, eris.Errorf("invalid round %d", r)
	}
	return r, nil
}

// Gatekeeper evaluates rows against the seat-bucket taxonomy. It caches known
// slugs and is meant to live for one ingestion run.
type Gatekeeper struct {
	q     db.Querier
	known map[string]bool
	log   *zap.Logger
}

// NewGatekeeper creates a Gatekeeper issuing statements on q.
func NewGatekeeper(q db.Querier) *Gatekeeper {
	return &Gatekeeper{
		q:     q,
		known: make(map[string]bool),
		log:   zap.L().With(zap.String("component", "policy.gatekeeper")),
	}
}

// Evaluate derives round, slug and attributes for row and checks the slug
// against the taxonomy. BOOTSTRAP registers unknown slugs; CONTINUOUS turns
// them into violations. The error return is reserved for store failures.
func (g *Gatekeeper) Evaluate(ctx context.Context, a Adapter, row model.RawRow, mode model.Mode) (Result, error) {
	res := Result{
		StateCode:   a.StateCode(row),
		Descriptive: a.Descriptive(row),
	}

	round, err := ResolveRound(a, row)
	if err != nil {
		return violation(res, err.Error()), nil
	}
	res.Round = round

	slug, err := a.GenerateSlug(row)
	if err != nil {
		return violation(res, err.Error()), nil
	}
	res.Slug = slug

	attrs, err := a.Attributes(row)
	if err != nil {
		return violation(res, err.Error()), nil
	}
	res.Attributes = attrs

	if g.known[slug] {
		return res, nil
	}

	exists, err := g.exists(ctx, slug)
	if err != nil {
		return res, err
	}
	if exists {
		g.known[slug] = true
		return res, nil
	}

	if mode != model.ModeBootstrap {
		return violation(res, fmt.Sprintf("Bucket '%s' unknown in Continuous Mode.", slug)), nil
	}

	if err := InsertTaxonomy(ctx, g.q, a.ExamCode(), slug, attrs); err != nil {
		return res, err
	}
	g.known[slug] = true
	g.log.Info("taxonomy bucket registered",
		zap.String("exam", a.ExamCode()),
		zap.String("slug", slug),
	)
	return res, nil
}

func violation(res Result, reason string) Result {
	res.Verdict = Violation
	res.Reason = reason
	return res
}

func (g *Gatekeeper) exists(ctx context.Context, slug string) (bool, error) {
	var ok bool
	err := g.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM seat_bucket_taxonomy WHERE seat_bucket_code = $1)`, slug,
	).Scan(&ok)
	if err != nil {
		return false, eris.Wrapf(err, "policy: lookup bucket %s", slug)
	}
	return ok, nil
}

// InsertTaxonomy adds a bucket to the taxonomy. Existing buckets are left untouched.
func InsertTaxonomy(ctx context.Context, q db.Querier, exam, slug string, attrs model.PolicyAttributes) error {
	extra := attrs.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return eris.Wrap(err, "policy: marshal bucket attributes")
	}

	categoryName := attrs.CategoryGroup
	if categoryName == "" {
		categoryName = "Unknown"
	}

	_, err = q.Exec(ctx,
		`INSERT INTO seat_bucket_taxonomy (
			seat_bucket_code, exam_code, category_name, is_reserved,
			course_type, location_type, reservation_type, attributes
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
		ON CONFLICT (seat_bucket_code) DO NOTHING`,
		slug, exam, categoryName, attrs.IsReserved,
		attrs.CourseType, attrs.LocationType, attrs.ReservationType, extraJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "policy: insert bucket %s", slug)
	}
	return nil
}
