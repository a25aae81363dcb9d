// Package registry is the institution identity authority. Ingestion only ever
// reads approved aliases; institutions and aliases are created by humans
// through triage.
package registry

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/db"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// Normalize lowercases name, drops everything after the first comma or
// parenthesis, removes non-alphanumerics and collapses whitespace.
func Normalize(name string) string {
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, ",("); i >= 0 {
		name = name[:i]
	}
	name = nonAlnum.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

// Resolution is the outcome of an identity lookup.
type Resolution struct {
	Matched       bool
	InstitutionID uuid.UUID
	Confidence    float64
	Reason        string
}

// Resolver resolves raw institution names against approved aliases. Results
// are cached for the lifetime of the Resolver, typically one ingestion run.
type Resolver struct {
	q     db.Querier
	cache map[string]Resolution
	log   *zap.Logger
}

// NewResolver creates a Resolver issuing lookups on q.
func NewResolver(q db.Querier) *Resolver {
	return &Resolver{
		q:     q,
		cache: make(map[string]Resolution),
		log:   zap.L().With(zap.String("component", "registry.resolver")),
	}
}

// Resolve matches raw exactly (after normalization) against approved aliases.
// There is no fuzzy matching and nothing is ever created here.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	norm := Normalize(raw)
	if norm == "" {
		return Resolution{Reason: "Empty/Invalid Name"}, nil
	}
	if res, ok := r.cache[norm]; ok {
		return res, nil
	}

	var (
		id         uuid.UUID
		confidence float64
	)
	err := r.q.QueryRow(ctx,
		`SELECT college_id, COALESCE(confidence_score, 1.0)
		 FROM college_aliases
		 WHERE alias_name = $1 AND is_approved`,
		norm,
	).Scan(&id, &confidence)
	switch {
	case err == nil:
		res := Resolution{Matched: true, InstitutionID: id, Confidence: confidence, Reason: "Alias Match: " + norm}
		r.cache[norm] = res
		return res, nil
	case db.IsNoRows(err):
		r.log.Debug("identity quarantined", zap.String("raw_name", raw), zap.String("normalized", norm))
		res := Resolution{Reason: "Unknown identity: " + raw}
		r.cache[norm] = res
		return res, nil
	default:
		return Resolution{}, eris.Wrapf(err, "registry: resolve %q", norm)
	}
}

// Promote creates a canonical institution, idempotent on its normalized name,
// together with an approved alias for that name. It returns the institution id.
func Promote(ctx context.Context, q db.Querier, canonicalName, sourceType string) (uuid.UUID, error) {
	norm := Normalize(canonicalName)
	if norm == "" {
		return uuid.Nil, eris.Errorf("registry: cannot promote empty name %q", canonicalName)
	}

	var id uuid.UUID
	err := q.QueryRow(ctx,
		`INSERT INTO college_registry (canonical_name, normalized_name, country_code, status)
		 VALUES ($1, $2, 'IN', 'active')
		 ON CONFLICT (normalized_name) DO UPDATE SET normalized_name = EXCLUDED.normalized_name
		 RETURNING college_id`,
		canonicalName, norm,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "registry: promote %q", canonicalName)
	}

	if err := LinkAlias(ctx, q, id, norm, sourceType); err != nil {
		return uuid.Nil, err
	}
	zap.L().Info("institution promoted", zap.String("college_id", id.String()), zap.String("name", canonicalName))
	return id, nil
}

// LinkAlias records an approved alias for an existing institution. alias is
// normalized before storage; an alias already linked is left as is.
func LinkAlias(ctx context.Context, q db.Querier, institutionID uuid.UUID, alias, sourceType string) error {
	norm := Normalize(alias)
	if norm == "" {
		return eris.Errorf("registry: cannot link empty alias %q", alias)
	}
	_, err := q.Exec(ctx,
		`INSERT INTO college_aliases (college_id, alias_name, source_type, is_approved, confidence_score)
		 VALUES ($1, $2, $3, true, 1.0)
		 ON CONFLICT (alias_name) DO NOTHING`,
		institutionID, norm, sourceType,
	)
	if err != nil {
		return eris.Wrapf(err, "registry: link alias %q", norm)
	}
	return nil
}

// Exists reports whether an institution id is registered.
func Exists(ctx context.Context, q db.Querier, institutionID uuid.UUID) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM college_registry WHERE college_id = $1)`, institutionID,
	).Scan(&ok)
	if err != nil {
		return false, eris.Wrapf(err, "registry: lookup %s", institutionID)
	}
	return ok, nil
}

// AuditEntry is one compliance log record for a registry change.
type AuditEntry struct {
	EntityType  string
	EntityID    uuid.UUID
	Action      string
	PerformedBy string
	Reason      string
}

// Audit appends an entry to the registry audit log.
func Audit(ctx context.Context, q db.Querier, e AuditEntry) error {
	_, err := q.Exec(ctx,
		`INSERT INTO registry_audit_log (entity_type, entity_id, action, performed_by, reason)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.EntityType, e.EntityID, e.Action, e.PerformedBy, e.Reason,
	)
	if err != nil {
		return eris.Wrapf(err, "registry: audit %s %s", e.Action, e.EntityID)
	}
	return nil
}
