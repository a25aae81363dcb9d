package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"R.V. College of Engineering, Bangalore", "rv college of engineering"},
		{"B.M.S. College (Autonomous)", "bms college"},
		{"  Govt.   Medical   College  ", "govt medical college"},
		{"KLE's Institute-of Technology", "kles instituteof technology"},
		{"(Hubli) Something", ""},
		{"", ""},
		{"ಸರ್ಕಾರಿ ಕಾಲೇಜು", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestResolve_ApprovedAlias(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`FROM college_aliases`).
		WithArgs("rv college of engineering").
		WillReturnRows(pgxmock.NewRows([]string{"college_id", "confidence_score"}).AddRow(id, 1.0))

	r := NewResolver(mock)
	res, err := r.Resolve(context.Background(), "R.V. College of Engineering, Bangalore")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, id, res.InstitutionID)
	assert.Equal(t, 1.0, res.Confidence)

	// Same normalized name is served from cache.
	res, err = r.Resolve(context.Background(), "RV COLLEGE OF ENGINEERING (Autonomous)")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_UnknownNameIsQuarantined(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM college_aliases`).
		WithArgs("some new college").
		WillReturnError(pgx.ErrNoRows)

	res, err := NewResolver(mock).Resolve(context.Background(), "Some New College, Nowhere")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, uuid.Nil, res.InstitutionID)
	assert.Equal(t, "Unknown identity: Some New College, Nowhere", res.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_EmptyNameSkipsLookup(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	res, err := NewResolver(mock).Resolve(context.Background(), "(---)")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, "Empty/Invalid Name", res.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_StoreError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM college_aliases`).
		WithArgs("x college").
		WillReturnError(errors.New("conn closed"))

	_, err = NewResolver(mock).Resolve(context.Background(), "X College")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry: resolve")
}

func TestPromote(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`INSERT INTO college_registry`).
		WithArgs("Sri Siddhartha Medical College, Tumkur", "sri siddhartha medical college").
		WillReturnRows(pgxmock.NewRows([]string{"college_id"}).AddRow(id))
	mock.ExpectExec(`INSERT INTO college_aliases`).
		WithArgs(id, "sri siddhartha medical college", "manual_promotion").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	got, err := Promote(context.Background(), mock, "Sri Siddhartha Medical College, Tumkur", "manual_promotion")
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromote_EmptyName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = Promote(context.Background(), mock, "  ", "manual_promotion")
	assert.Error(t, err)
}

func TestLinkAliasAndAudit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`ON CONFLICT \(alias_name\) DO NOTHING`).
		WithArgs(id, "govt medical college", "manual_triage").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`INSERT INTO registry_audit_log`).
		WithArgs("ALIAS", id, "LINKED", "ops@example.com", "Linked candidate Govt. Medical College").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, LinkAlias(context.Background(), mock, id, "Govt. Medical College", "manual_triage"))
	require.NoError(t, Audit(context.Background(), mock, AuditEntry{
		EntityType: "ALIAS", EntityID: id, Action: "LINKED",
		PerformedBy: "ops@example.com", Reason: "Linked candidate Govt. Medical College",
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`FROM college_registry WHERE college_id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := Exists(context.Background(), mock, id)
	require.NoError(t, err)
	assert.False(t, ok)
}
