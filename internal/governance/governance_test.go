package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var artifactCols = []string{
	"id", "exam_code", "year", "pdf_path", "notification_url",
	"original_name", "round_number", "round_name", "seat_type",
	"detection_reason", "pattern_classification", "detected_source", "status",
	"reviewed_by", "reviewed_at", "review_notes", "raw_metadata",
	"requires_reprocessing", "content_hash", "previous_content_hash",
	"created_at", "updated_at",
}

func artifactRow(rows *pgxmock.Rows, id uuid.UUID, status string, roundName string) *pgxmock.Rows {
	r := 2
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, "KCET", 2025, "https://kea.example/r2.pdf", "https://kea.example/ugcet2025",
		"Engineering Second Round", &r, roundName, "",
		"Scanner:ContextMatch", "KNOWN_PATTERN", "PDF_LINK", status,
		"", (*time.Time)(nil), "", []byte(`{"round":2,"exam_slug":"KCET"}`),
		false, "abc", "",
		now, now,
	)
}

func TestDiscovery_Classification(t *testing.T) {
	assert.Equal(t, model.KnownPattern, Discovery{Year: 2025, RoundName: "Engineering"}.Classification())
	assert.Equal(t, model.UnknownPattern, Discovery{Year: 2025}.Classification())
	assert.Equal(t, model.UnknownPattern, Discovery{RoundName: "Engineering"}.Classification())
}

func TestDiscovery_Metadata(t *testing.T) {
	d := Discovery{
		ExamCode: "MHTCET_BE", Year: 2025, Round: 2, RoundName: "MHTCET_BE_R2_AI",
		DetectionMethod: "ASP_NET_Viewer_Extractor",
		Extra:           map[string]any{"quota": "AI"},
	}
	m := d.Metadata()
	assert.Equal(t, "MHTCET_BE", m["exam_slug"])
	assert.Equal(t, 2, m["round"])
	assert.Equal(t, "AI", m["quota"])
	assert.NotContains(t, m, "seat_type")
}

func TestRegisterDiscovery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`INSERT INTO discovered_artifacts`).
		WithArgs("KCET", 2025, "https://kea.example/r2.pdf", "https://kea.example/seed",
			"Second Round Engineering", pgxmock.AnyArg(), "Engineering", "",
			"Scanner:ContextMatch", "KNOWN_PATTERN", "PDF_LINK", pgxmock.AnyArg(), "hash-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))

	got, err := NewController(mock).RegisterDiscovery(context.Background(), Discovery{
		PDFPath: "https://kea.example/r2.pdf", NotificationURL: "https://kea.example/seed",
		ExamCode: "KCET", Year: 2025, Round: 2, RoundName: "Engineering",
		OriginalName: "Second Round Engineering", Reason: "Scanner:ContextMatch",
		Source: "PDF_LINK", ContentHash: "hash-1",
	})
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterDiscovery_ConflictKeepsIdentity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// The conflict branch only refreshes heartbeat and metadata.
	mock.ExpectQuery(`ON CONFLICT \(exam_code, year, pdf_path\) DO UPDATE SET\s+updated_at = now\(\),\s+last_seen_at = now\(\),\s+raw_metadata = EXCLUDED.raw_metadata\s+RETURNING id`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))

	_, err = NewController(mock).RegisterDiscovery(context.Background(), Discovery{ExamCode: "KCET", Year: 2025, PDFPath: "x.pdf"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprove_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`UPDATE discovered_artifacts\s+SET status = 'APPROVED'`).
		WithArgs(id, "reviewer@example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, NewController(mock).Approve(context.Background(), id, "reviewer@example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprove_MissingRoundName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`UPDATE discovered_artifacts`).
		WithArgs(id, "ops").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT .+ FROM discovered_artifacts WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(artifactRow(pgxmock.NewRows(artifactCols), id, "PENDING", ""))

	err = NewController(mock).Approve(context.Background(), id, "ops")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncomplete))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApprove_AlreadyIngested(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`UPDATE discovered_artifacts`).
		WithArgs(id, "ops").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT .+ FROM discovered_artifacts WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(artifactRow(pgxmock.NewRows(artifactCols), id, "INGESTED", "Engineering"))

	err = NewController(mock).Approve(context.Background(), id, "ops")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransition))
	assert.Contains(t, err.Error(), "INGESTED")
}

func TestApprove_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`UPDATE discovered_artifacts`).
		WithArgs(id, "ops").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT .+ FROM discovered_artifacts`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(artifactCols))

	err = NewController(mock).Approve(context.Background(), id, "ops")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestApplyFingerprint(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("first fingerprint", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE discovered_artifacts SET content_hash = \$2`).
			WithArgs(id, "h1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		rev, err := NewController(mock).ApplyFingerprint(ctx, &model.Artifact{ID: id}, "h1", 10)
		require.NoError(t, err)
		assert.Equal(t, Fingerprinted, rev)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("revision resets to pending", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`previous_content_hash = content_hash,\s+content_hash = \$2`).
			WithArgs(id, "h2", "Auto-Reset. Size: 2048b").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		art := &model.Artifact{ID: id, ContentHash: "h1", Status: model.StatusIngested}
		rev, err := NewController(mock).ApplyFingerprint(ctx, art, "h2", 2048)
		require.NoError(t, err)
		assert.Equal(t, Revised, rev)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unchanged heartbeat", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE discovered_artifacts SET last_seen_at = now\(\)`).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		rev, err := NewController(mock).ApplyFingerprint(ctx, &model.Artifact{ID: id, ContentHash: "h1"}, "h1", 0)
		require.NoError(t, err)
		assert.Equal(t, Unchanged, rev)
	})
}

func TestMarkIngestedAndFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`SET status = 'INGESTED', requires_reprocessing = false`).
		WithArgs(id, "run r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET status = 'FAILED'`).
		WithArgs(id, "System Error: boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	c := NewController(mock)
	require.NoError(t, c.MarkIngested(context.Background(), id, "run r1"))
	require.NoError(t, c.MarkFailed(context.Background(), id, "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlagForReprocessing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a, b := uuid.New(), uuid.New()
	mock.ExpectExec(`SET requires_reprocessing = true`).
		WithArgs([]string{a.String(), b.String()}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := NewController(mock).FlagForReprocessing(context.Background(), []uuid.UUID{a, b})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = NewController(mock).FlagForReprocessing(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`status = 'APPROVED' OR \(requires_reprocessing AND status = 'INGESTED'\)`).
		WithArgs("KCET").
		WillReturnRows(artifactRow(pgxmock.NewRows(artifactCols), id, "APPROVED", "Engineering"))

	arts, err := NewController(mock).Processable(context.Background(), "KCET")
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, id, arts[0].ID)
	assert.Equal(t, 2, arts[0].Round())
	assert.Equal(t, model.StatusApproved, arts[0].Status)
	assert.Equal(t, "KCET", arts[0].MetaString("exam_slug"))
}

func TestFindByPath_Missing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WHERE exam_code = \$1 AND year = \$2 AND pdf_path = \$3`).
		WithArgs("KCET", 2025, "x.pdf").
		WillReturnRows(pgxmock.NewRows(artifactCols))

	art, err := NewController(mock).FindByPath(context.Background(), "KCET", 2025, "x.pdf")
	require.NoError(t, err)
	assert.Nil(t, art)
}
