// Package governance owns the discovered-artifact lifecycle:
// PENDING → APPROVED → INGESTED | FAILED, with revisions resetting to PENDING.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/model"
)

// Lifecycle errors.
var (
	ErrNotFound   = errors.New("governance: artifact not found")
	ErrTransition = errors.New("governance: invalid status transition")
	ErrIncomplete = errors.New("governance: artifact is missing year or round name")
)

// Discovery is one scanner sighting of a document.
type Discovery struct {
	PDFPath         string
	NotificationURL string
	ExamCode        string
	Year            int
	Round           int
	RoundName       string
	OriginalName    string
	Standardized    bool
	SeatType        string
	DetectionMethod string
	ContextHeader   string
	Reason          string
	Source          string
	ContentHash     string
	Extra           map[string]any
}

// Classification is KNOWN_PATTERN when the year and round name were recovered.
func (d Discovery) Classification() model.Classification {
	if d.Year == 0 || d.RoundName == "" {
		return model.UnknownPattern
	}
	return model.KnownPattern
}

// Metadata is the raw discovery blob stored with the artifact.
func (d Discovery) Metadata() map[string]any {
	m := map[string]any{
		"year":             d.Year,
		"round_name":       d.RoundName,
		"original_name":    d.OriginalName,
		"is_standardized":  d.Standardized,
		"round":            d.Round,
		"exam_slug":        d.ExamCode,
		"detection_method": d.DetectionMethod,
		"context_header":   d.ContextHeader,
	}
	if d.SeatType != "" {
		m["seat_type"] = d.SeatType
	}
	for k, v := range d.Extra {
		m[k] = v
	}
	return m
}

// Revision is the outcome of applying a fresh fingerprint to a known artifact.
type Revision int

// Revision outcomes.
const (
	Unchanged Revision = iota
	Fingerprinted
	Revised
)

// Controller reads and transitions artifacts.
type Controller struct {
	q   db.Querier
	log *zap.Logger
}

// NewController creates a Controller over q.
func NewController(q db.Querier) *Controller {
	return &Controller{q: q, log: zap.L().With(zap.String("component", "governance"))}
}

// With returns a Controller issuing statements on q, typically an open transaction.
func (c *Controller) With(q db.Querier) *Controller {
	return &Controller{q: q, log: c.log}
}

// RegisterDiscovery upserts an artifact keyed on (exam, year, path). Existing
// rows only get their heartbeat and raw metadata refreshed; identity fields
// recorded on first sight are never overwritten.
func (c *Controller) RegisterDiscovery(ctx context.Context, d Discovery) (uuid.UUID, error) {
	meta, err := json.Marshal(d.Metadata())
	if err != nil {
		return uuid.Nil, eris.Wrap(err, "governance: marshal metadata")
	}

	var round *int
	if d.Round > 0 {
		round = &d.Round
	}

	var id uuid.UUID
	err = c.q.QueryRow(ctx,
		`INSERT INTO discovered_artifacts (
			exam_code, year, pdf_path, notification_url, original_name, round_number,
			round_name, seat_type, detection_reason, pattern_classification,
			detected_source, raw_metadata, content_hash, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, NULLIF($13, ''), now())
		ON CONFLICT (exam_code, year, pdf_path) DO UPDATE SET
			updated_at = now(),
			last_seen_at = now(),
			raw_metadata = EXCLUDED.raw_metadata
		RETURNING id`,
		d.ExamCode, d.Year, d.PDFPath, d.NotificationURL, d.OriginalName, round,
		d.RoundName, d.SeatType, d.Reason, string(d.Classification()),
		d.Source, meta, d.ContentHash,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "governance: register %s", d.PDFPath)
	}
	return id, nil
}

// Approve moves a PENDING or FAILED artifact to APPROVED. Approval requires a
// year and a round name.
func (c *Controller) Approve(ctx context.Context, id uuid.UUID, reviewer string) error {
	tag, err := c.q.Exec(ctx,
		`UPDATE discovered_artifacts
		 SET status = 'APPROVED', reviewed_by = $2, reviewed_at = now(), updated_at = now()
		 WHERE id = $1
		   AND status IN ('PENDING', 'FAILED')
		   AND year IS NOT NULL
		   AND COALESCE(round_name, '') <> ''`,
		id, reviewer,
	)
	if err != nil {
		return eris.Wrapf(err, "governance: approve %s", id)
	}
	if tag.RowsAffected() == 1 {
		c.log.Info("artifact approved", zap.String("artifact_id", id.String()), zap.String("reviewer", reviewer))
		return nil
	}

	art, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if art.Status != model.StatusPending && art.Status != model.StatusFailed {
		return eris.Wrapf(ErrTransition, "artifact %s is already %s", id, art.Status)
	}
	return eris.Wrapf(ErrIncomplete, "artifact %s", id)
}

// ApplyFingerprint records a fresh probe result against a known artifact. A
// changed fingerprint stores the previous one and resets the artifact to
// PENDING so it is not re-ingested without review.
func (c *Controller) ApplyFingerprint(ctx context.Context, art *model.Artifact, hash string, size int64) (Revision, error) {
	switch {
	case art.ContentHash == "":
		_, err := c.q.Exec(ctx,
			`UPDATE discovered_artifacts SET content_hash = $2, last_seen_at = now() WHERE id = $1`,
			art.ID, hash,
		)
		if err != nil {
			return Unchanged, eris.Wrapf(err, "governance: set fingerprint %s", art.ID)
		}
		return Fingerprinted, nil

	case art.ContentHash != hash:
		_, err := c.q.Exec(ctx,
			`UPDATE discovered_artifacts SET
				previous_content_hash = content_hash,
				content_hash = $2,
				review_notes = CASE WHEN status <> 'PENDING' THEN $3 ELSE review_notes END,
				status = 'PENDING',
				last_seen_at = now(),
				updated_at = now()
			 WHERE id = $1`,
			art.ID, hash, autoResetNote(size),
		)
		if err != nil {
			return Unchanged, eris.Wrapf(err, "governance: reset revised %s", art.ID)
		}
		c.log.Warn("silent revision detected",
			zap.String("artifact_id", art.ID.String()),
			zap.String("previous_status", string(art.Status)),
			zap.String("url", art.PDFPath),
		)
		return Revised, nil

	default:
		_, err := c.q.Exec(ctx,
			`UPDATE discovered_artifacts SET last_seen_at = now() WHERE id = $1`, art.ID)
		if err != nil {
			return Unchanged, eris.Wrapf(err, "governance: heartbeat %s", art.ID)
		}
		return Unchanged, nil
	}
}

func autoResetNote(size int64) string {
	return fmt.Sprintf("Auto-Reset. Size: %db", size)
}

// MarkIngested seals a successful run.
func (c *Controller) MarkIngested(ctx context.Context, id uuid.UUID, note string) error {
	_, err := c.q.Exec(ctx,
		`UPDATE discovered_artifacts
		 SET status = 'INGESTED', requires_reprocessing = false, review_notes = $2, updated_at = now()
		 WHERE id = $1`,
		id, note,
	)
	if err != nil {
		return eris.Wrapf(err, "governance: mark ingested %s", id)
	}
	return nil
}

// MarkFailed records a failed run with its (already truncated) error.
func (c *Controller) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := c.q.Exec(ctx,
		`UPDATE discovered_artifacts
		 SET status = 'FAILED', review_notes = $2, updated_at = now()
		 WHERE id = $1`,
		id, "System Error: "+msg,
	)
	if err != nil {
		return eris.Wrapf(err, "governance: mark failed %s", id)
	}
	return nil
}

// FlagForReprocessing marks artifacts dirty and re-queues them as APPROVED.
// PENDING artifacts keep waiting for review.
func (c *Controller) FlagForReprocessing(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := c.q.Exec(ctx,
		`UPDATE discovered_artifacts
		 SET requires_reprocessing = true,
		     status = CASE WHEN status = 'PENDING' THEN status ELSE 'APPROVED' END,
		     updated_at = now()
		 WHERE id = ANY($1::uuid[])`,
		db.UUIDStrings(ids),
	)
	if err != nil {
		return 0, eris.Wrap(err, "governance: flag for reprocessing")
	}
	return tag.RowsAffected(), nil
}

const artifactColumns = `id, exam_code, COALESCE(year, 0), pdf_path, COALESCE(notification_url, ''),
	COALESCE(original_name, ''), round_number, COALESCE(round_name, ''), COALESCE(seat_type, ''),
	detection_reason, pattern_classification, detected_source, status,
	COALESCE(reviewed_by, ''), reviewed_at, COALESCE(review_notes, ''), raw_metadata,
	requires_reprocessing, COALESCE(content_hash, ''), COALESCE(previous_content_hash, ''),
	created_at, updated_at`

func scanArtifact(row pgx.Row) (*model.Artifact, error) {
	var (
		a        model.Artifact
		class    string
		status   string
		metaJSON []byte
	)
	err := row.Scan(
		&a.ID, &a.ExamCode, &a.Year, &a.PDFPath, &a.NotificationURL,
		&a.OriginalName, &a.RoundNumber, &a.RoundName, &a.SeatType,
		&a.DetectionReason, &class, &a.DetectedSource, &status,
		&a.ReviewedBy, &a.ReviewedAt, &a.ReviewNotes, &metaJSON,
		&a.RequiresReprocessing, &a.ContentHash, &a.PreviousContentHash,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Classification = model.Classification(class)
	a.Status = model.ArtifactStatus(status)
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &a.RawMetadata)
	}
	return &a, nil
}

// Get loads one artifact.
func (c *Controller) Get(ctx context.Context, id uuid.UUID) (*model.Artifact, error) {
	a, err := scanArtifact(c.q.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM discovered_artifacts WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, eris.Wrapf(ErrNotFound, "id %s", id)
		}
		return nil, eris.Wrapf(err, "governance: get %s", id)
	}
	return a, nil
}

// FindByPath returns the artifact for (exam, year, path), or nil if none exists.
func (c *Controller) FindByPath(ctx context.Context, exam string, year int, path string) (*model.Artifact, error) {
	a, err := scanArtifact(c.q.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM discovered_artifacts
		 WHERE exam_code = $1 AND year = $2 AND pdf_path = $3`,
		exam, year, path,
	))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "governance: find %s", path)
	}
	return a, nil
}

// ListOpts filters List.
type ListOpts struct {
	ExamCode string
	Status   model.ArtifactStatus
	Limit    int
}

// List returns artifacts newest first.
func (c *Controller) List(ctx context.Context, opts ListOpts) ([]model.Artifact, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := c.q.Query(ctx,
		`SELECT `+artifactColumns+` FROM discovered_artifacts
		 WHERE ($1 = '' OR exam_code = $1) AND ($2 = '' OR status = $2)
		 ORDER BY updated_at DESC
		 LIMIT $3`,
		opts.ExamCode, string(opts.Status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "governance: list artifacts")
	}
	return collect(rows)
}

// Processable returns APPROVED artifacts plus INGESTED artifacts flagged for
// reprocessing, oldest first. An empty exam means every exam.
func (c *Controller) Processable(ctx context.Context, exam string) ([]model.Artifact, error) {
	rows, err := c.q.Query(ctx,
		`SELECT `+artifactColumns+` FROM discovered_artifacts
		 WHERE (status = 'APPROVED' OR (requires_reprocessing AND status = 'INGESTED'))
		   AND ($1 = '' OR exam_code = $1)
		 ORDER BY created_at ASC`,
		exam,
	)
	if err != nil {
		return nil, eris.Wrap(err, "governance: list processable")
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]model.Artifact, error) {
	defer rows.Close()
	var out []model.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "governance: scan artifact")
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
