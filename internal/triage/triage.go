// Package triage holds the human resolution actions for quarantined rows:
// promoting or ignoring unknown seat buckets, and linking or promoting
// unresolved institution names. Every resolution flags the source artifacts
// for reprocessing.
package triage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/governance"
)

// Triage errors.
var (
	ErrNoViolation        = errors.New("triage: no open violations for bucket")
	ErrNoCandidates       = errors.New("triage: no pending candidates found")
	ErrUnknownInstitution = errors.New("triage: institution not registered")
)

// flagSources marks every artifact named in sources for reprocessing.
// Sources that are not artifact ids are skipped.
func flagSources(ctx context.Context, tx pgx.Tx, sources []string) (int64, error) {
	seen := make(map[uuid.UUID]bool, len(sources))
	var ids []uuid.UUID
	for _, s := range sources {
		id, err := uuid.Parse(s)
		if err != nil {
			zap.L().Warn("skipping non-artifact source", zap.String("source", s))
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return governance.NewController(tx).FlagForReprocessing(ctx, ids)
}
