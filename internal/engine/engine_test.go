package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubAdapter struct {
	panicOn string
}

func (stubAdapter) ExamCode() string { return "KCET" }

func (s stubAdapter) StateCode(row model.RawRow) string {
	if s.panicOn != "" && row.Category == s.panicOn {
		panic("unexpected layout")
	}
	return "KA"
}

func (stubAdapter) ResolveRound(row model.RawRow) (int, error) { return row.Round, nil }

func (stubAdapter) GenerateSlug(row model.RawRow) (string, error) {
	return "KCET_ENGINEERING_GEN_" + row.Category, nil
}

func (stubAdapter) Attributes(row model.RawRow) (model.PolicyAttributes, error) {
	return model.PolicyAttributes{
		CategoryGroup: row.Category,
		IsReserved:    !strings.HasPrefix(row.Category, "GM"),
		CourseType:    "ENGINEERING",
		LocationType:  "GEN",
	}, nil
}

func (stubAdapter) Descriptive(row model.RawRow) model.Descriptive {
	return model.Descriptive{
		InstituteCode: row.InstituteCode, InstituteName: row.InstitutionName,
		ProgramCode: row.ProgramCode, ProgramName: row.ProgramName,
	}
}

func testArtifact() *model.Artifact {
	r := 2
	return &model.Artifact{ID: uuid.New(), ExamCode: "KCET", Year: 2025, RoundNumber: &r}
}

func dataRow(cat string, rank int) model.RawRow {
	return model.RawRow{
		InstitutionName: "RV College of Engineering", InstituteCode: "E005",
		ProgramCode: "CS", ProgramName: "Computer Science",
		Category: cat, ClosingRank: rank, Round: 2,
	}
}

func expectAlias(mock pgxmock.PgxPoolIface, norm string, id uuid.UUID) {
	mock.ExpectQuery(`FROM college_aliases`).
		WithArgs(norm).
		WillReturnRows(pgxmock.NewRows([]string{"college_id", "confidence_score"}).AddRow(id, 1.0))
}

func expectBucket(mock pgxmock.PgxPoolIface, slug string, exists bool) {
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(slug).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(exists))
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func expectRetire(mock pgxmock.PgxPoolIface, art *model.Artifact, n int64) {
	args := anyArgs(11)
	args[10] = art.ID.String()
	mock.ExpectExec(`UPDATE cutoff_outcomes o\s+SET is_latest = false, valid_to = now\(\)`).
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("UPDATE", n))
}

func expectReaffirm(mock pgxmock.PgxPoolIface, art *model.Artifact, runID uuid.UUID, positions ...int64) {
	args := anyArgs(9)
	args[7], args[8] = runID, art.ID.String()
	rows := pgxmock.NewRows([]string{"pos"})
	for _, p := range positions {
		rows.AddRow(p)
	}
	mock.ExpectQuery(`SET ingestion_run_id = \$8`).
		WithArgs(args...).
		WillReturnRows(rows)
}

func TestProcessRow_AcceptedAndFlushed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	college := uuid.New()
	art, runID := testArtifact(), uuid.New()
	expectAlias(mock, "rv college of engineering", college)
	expectBucket(mock, "KCET_ENGINEERING_GEN_GM", true)
	expectRetire(mock, art, 1)
	expectReaffirm(mock, art, runID)
	mock.ExpectCopyFrom(pgx.Identifier{"cutoff_outcomes"}, OutcomeColumns).
		WillReturnResult(1)

	e := New(mock, stubAdapter{}, Options{Mode: model.ModeContinuous, RunID: runID, Artifact: art})
	out, err := e.ProcessRow(context.Background(), dataRow("GM", 1200))
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)

	require.NoError(t, e.Flush(context.Background()))
	st := e.Stats()
	assert.Equal(t, 1, st.Accepted)
	assert.Equal(t, 1, st.Written)
	assert.Equal(t, 1, st.Retired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRow_DuplicateKeysCollapseInBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	art, runID := testArtifact(), uuid.New()
	expectAlias(mock, "rv college of engineering", uuid.New())
	expectBucket(mock, "KCET_ENGINEERING_GEN_GM", true)
	expectRetire(mock, art, 0)
	expectReaffirm(mock, art, runID)
	mock.ExpectCopyFrom(pgx.Identifier{"cutoff_outcomes"}, OutcomeColumns).
		WillReturnResult(1)

	e := New(mock, stubAdapter{}, Options{Mode: model.ModeContinuous, RunID: runID, Artifact: art})
	for _, rank := range []int{1200, 1350} {
		out, err := e.ProcessRow(context.Background(), dataRow("GM", rank))
		require.NoError(t, err)
		assert.Equal(t, Accepted, out)
	}
	require.Len(t, e.facts, 1)
	assert.Equal(t, 1350, e.facts[0].ClosingRank)

	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, 2, e.Stats().Accepted)
	assert.Equal(t, 1, e.Stats().Written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRow_BatchSizeTriggersFlush(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	art, runID := testArtifact(), uuid.New()
	expectAlias(mock, "rv college of engineering", uuid.New())
	expectBucket(mock, "KCET_ENGINEERING_GEN_GM", true)
	expectRetire(mock, art, 0)
	expectReaffirm(mock, art, runID)
	mock.ExpectCopyFrom(pgx.Identifier{"cutoff_outcomes"}, OutcomeColumns).
		WillReturnResult(1)

	e := New(mock, stubAdapter{}, Options{Mode: model.ModeContinuous, RunID: runID, Artifact: art, BatchSize: 1})
	_, err = e.ProcessRow(context.Background(), dataRow("GM", 10))
	require.NoError(t, err)
	assert.Empty(t, e.facts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlush_ReingestIsIdempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx := context.Background()
	art, college := testArtifact(), uuid.New()

	// First ingestion writes both facts.
	first := uuid.New()
	expectAlias(mock, "rv college of engineering", college)
	expectBucket(mock, "KCET_ENGINEERING_GEN_GM", true)
	expectBucket(mock, "KCET_ENGINEERING_GEN_SCG", true)
	expectRetire(mock, art, 0)
	expectReaffirm(mock, art, first)
	mock.ExpectCopyFrom(pgx.Identifier{"cutoff_outcomes"}, OutcomeColumns).
		WillReturnResult(2)

	e := New(mock, stubAdapter{}, Options{Mode: model.ModeContinuous, RunID: first, Artifact: art})
	for _, r := range []model.RawRow{dataRow("GM", 1200), dataRow("SCG", 9000)} {
		_, err := e.ProcessRow(ctx, r)
		require.NoError(t, err)
	}
	require.NoError(t, e.Flush(ctx))
	assert.Equal(t, 2, e.Stats().Written)

	// The same document again: nothing is retired, both facts are
	// reaffirmed and no COPY is issued.
	second := uuid.New()
	expectAlias(mock, "rv college of engineering", college)
	expectBucket(mock, "KCET_ENGINEERING_GEN_GM", true)
	expectBucket(mock, "KCET_ENGINEERING_GEN_SCG", true)
	expectRetire(mock, art, 0)
	expectReaffirm(mock, art, second, 1, 2)

	e = New(mock, stubAdapter{}, Options{Mode: model.ModeContinuous, RunID: second, Artifact: art})
	for _, r := range []model.RawRow{dataRow("GM", 1200), dataRow("SCG", 9000)} {
		_, err := e.ProcessRow(ctx, r)
		require.NoError(t, err)
	}
	require.NoError(t, e.Flush(ctx))
	assert.Zero(t, e.Stats().Written)
	assert.Zero(t, e.Stats().Retired)
	assert.Equal(t, 2, e.Stats().Unchanged)

	// A revised closing rank retires the old latest row and inserts one new
	// row; the unchanged fact is reaffirmed.
	third := uuid.New()
	expectAlias(mock, "rv college of engineering", college)
	expectBucket(mock, "KCET_ENGINEERING_GEN_GM", true)
	expectBucket(mock, "KCET_ENGINEERING_GEN_SCG", true)
	expectRetire(mock, art, 1)
	expectReaffirm(mock, art, third, 2)
	mock.ExpectCopyFrom(pgx.Identifier{"cutoff_outcomes"}, OutcomeColumns).
		WillReturnResult(1)
	mock.ExpectExec(`WHERE is_latest AND source_document = \$1 AND ingestion_run_id <> \$2`).
		WithArgs(art.ID.String(), third).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	e = New(mock, stubAdapter{}, Options{Mode: model.ModeContinuous, RunID: third, Artifact: art})
	for _, r := range []model.RawRow{dataRow("GM", 1350), dataRow("SCG", 9000)} {
		_, err := e.ProcessRow(ctx, r)
		require.NoError(t, err)
	}
	require.Len(t, e.facts, 2)
	require.NoError(t, e.Flush(ctx))
	_, err = e.RetireMissing(ctx)
	require.NoError(t, err)

	st := e.Stats()
	assert.Equal(t, 1, st.Written)
	assert.Equal(t, 1, st.Retired)
	assert.Equal(t, 1, st.Unchanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetireMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	art, runID := testArtifact(), uuid.New()
	mock.ExpectExec(`WHERE is_latest AND source_document = \$1 AND ingestion_run_id <> \$2`).
		WithArgs(art.ID.String(), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	e := New(mock, stubAdapter{}, Options{Mode: model.ModeContinuous, RunID: runID, Artifact: art})
	n, err := e.RetireMissing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 3, e.Stats().Retired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRow_UnknownInstitution(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM college_aliases`).
		WithArgs("rv college of engineering").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCopyFrom(pgx.Identifier{"college_candidates"}, CandidateColumns).
		WillReturnResult(1)

	art := testArtifact()
	e := New(mock, stubAdapter{}, Options{Mode: model.ModeBootstrap, RunID: uuid.New(), Artifact: art})
	out, err := e.ProcessRow(context.Background(), dataRow("GM", 10))
	require.NoError(t, err)
	assert.Equal(t, QuarantinedIdentity, out)
	require.Len(t, e.candidates, 1)
	assert.Equal(t, "RV College of Engineering", e.candidates[0][0])
	assert.Equal(t, art.ID.String(), e.candidates[0][1])
	assert.Equal(t, "Identity Resolution Failed", e.candidates[0][2])

	require.NoError(t, e.Flush(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRow_ContinuousUnknownBucketIsQuarantined(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectAlias(mock, "rv college of engineering", uuid.New())
	expectBucket(mock, "KCET_ENGINEERING_GEN_XYZ", false)
	mock.ExpectCopyFrom(pgx.Identifier{"seat_policy_quarantine"}, QuarantineColumns).
		WillReturnResult(1)

	e := New(mock, stubAdapter{}, Options{Mode: model.ModeContinuous, RunID: uuid.New(), Artifact: testArtifact()})
	out, err := e.ProcessRow(context.Background(), dataRow("XYZ", 10))
	require.NoError(t, err)
	assert.Equal(t, QuarantinedPolicy, out)
	assert.Empty(t, e.facts)

	require.Len(t, e.quarantine, 1)
	q := e.quarantine[0]
	assert.Equal(t, "KCET_ENGINEERING_GEN_XYZ", q[1])
	assert.Equal(t, ViolationPolicy, q[2])
	assert.Equal(t, "OPEN", q[8])
	raw := string(q[7].([]byte))
	assert.Contains(t, raw, `"category_group":"XYZ"`)
	assert.Contains(t, raw, `"is_reserved":true`)
	assert.Contains(t, raw, `"course_type":"ENGINEERING"`)

	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, 1, e.Stats().QuarantinedPolicy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRow_BootstrapRegistersUnknownBucket(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectAlias(mock, "rv college of engineering", uuid.New())
	expectBucket(mock, "KCET_ENGINEERING_GEN_XYZ", false)
	mock.ExpectExec(`INSERT INTO seat_bucket_taxonomy`).
		WithArgs("KCET_ENGINEERING_GEN_XYZ", "KCET", "XYZ", true, "ENGINEERING", "GEN", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e := New(mock, stubAdapter{}, Options{Mode: model.ModeBootstrap, RunID: uuid.New(), Artifact: testArtifact()})
	out, err := e.ProcessRow(context.Background(), dataRow("XYZ", 10))
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)
	assert.Len(t, e.facts, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRow_InvalidRowIsSystemError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	e := New(mock, stubAdapter{}, Options{Mode: model.ModeContinuous, RunID: uuid.New(), Artifact: testArtifact()})
	out, err := e.ProcessRow(context.Background(), model.RawRow{Category: "GM", ClosingRank: 5})
	require.NoError(t, err)
	assert.Equal(t, Failed, out)
	require.Len(t, e.quarantine, 1)
	assert.Equal(t, unknownBucket, e.quarantine[0][1])
	assert.Equal(t, ViolationSystem, e.quarantine[0][2])
	assert.Equal(t, 1, e.Stats().Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRow_PanicIsContained(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectAlias(mock, "rv college of engineering", uuid.New())

	e := New(mock, stubAdapter{panicOn: "BAD"}, Options{Mode: model.ModeContinuous, RunID: uuid.New(), Artifact: testArtifact()})
	out, err := e.ProcessRow(context.Background(), dataRow("BAD", 10))
	require.NoError(t, err)
	assert.Equal(t, Failed, out)
	require.Len(t, e.quarantine, 1)
	assert.Equal(t, ViolationSystem, e.quarantine[0][2])
	assert.Contains(t, e.quarantine[0][10], "unexpected layout")
}

func TestProcessRow_StoreErrorIsFatal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM college_aliases`).
		WithArgs("rv college of engineering").
		WillReturnError(errors.New("current transaction is aborted"))

	e := New(mock, stubAdapter{}, Options{Mode: model.ModeContinuous, RunID: uuid.New(), Artifact: testArtifact()})
	_, err = e.ProcessRow(context.Background(), dataRow("GM", 10))
	require.Error(t, err)
	assert.Zero(t, e.Stats().Total())
}

func TestStats(t *testing.T) {
	s := Stats{Accepted: 3, QuarantinedIdentity: 1, QuarantinedPolicy: 2, Failed: 1}
	assert.Equal(t, 7, s.Total())
	assert.Equal(t, "accepted=3 identity=1 policy=2 failed=1", s.String())
	assert.Equal(t, "QUARANTINED_IDENTITY", fmt.Sprint(QuarantinedIdentity))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "ಕಟ", truncate("ಕಟ್", 2))
}
