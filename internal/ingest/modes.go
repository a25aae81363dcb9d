package ingest

import (
	"context"
	"errors"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cutoff-ingest/internal/config"
	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/model"
)

// ErrNoMode is returned for an exam without an exam_configuration row. There
// is no fallback mode.
var ErrNoMode = errors.New("ingest: exam has no ingestion mode configured")

// ExamModes reads and maintains exam_configuration.
type ExamModes struct {
	q db.Querier
}

// NewExamModes creates an ExamModes issuing statements on q.
func NewExamModes(q db.Querier) *ExamModes {
	return &ExamModes{q: q}
}

// Mode returns the configured ingestion mode of exam.
func (m *ExamModes) Mode(ctx context.Context, exam string) (model.Mode, error) {
	var raw string
	err := m.q.QueryRow(ctx,
		`SELECT ingestion_mode FROM exam_configuration WHERE exam_code = $1`, exam,
	).Scan(&raw)
	if err != nil {
		if db.IsNoRows(err) {
			return "", eris.Wrapf(ErrNoMode, "exam %s", exam)
		}
		return "", eris.Wrapf(err, "ingest: read mode of %s", exam)
	}
	return model.ParseMode(raw)
}

// Sync upserts the configured mode and active flag of every exam that has a
// valid mode. Call Config.Validate first; exams without a mode are skipped.
func (m *ExamModes) Sync(ctx context.Context, exams map[string]config.ExamConfig) (int, error) {
	codes := make([]string, 0, len(exams))
	for code := range exams {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	n := 0
	for _, code := range codes {
		ec := exams[code]
		mode, err := model.ParseMode(ec.Mode)
		if err != nil {
			continue
		}
		_, err = m.q.Exec(ctx,
			`INSERT INTO exam_configuration (exam_code, ingestion_mode, is_active)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (exam_code) DO UPDATE SET
				ingestion_mode = EXCLUDED.ingestion_mode,
				is_active = EXCLUDED.is_active,
				updated_at = now()`,
			code, string(mode), ec.Active,
		)
		if err != nil {
			return n, eris.Wrapf(err, "ingest: sync mode of %s", code)
		}
		n++
	}
	return n, nil
}

// RecordRun updates the health counters of exam after a run.
func (m *ExamModes) RecordRun(ctx context.Context, exam string, ok bool) error {
	_, err := m.q.Exec(ctx,
		`UPDATE exam_configuration SET
			total_runs = total_runs + 1,
			failed_runs = failed_runs + CASE WHEN $2 THEN 0 ELSE 1 END,
			consecutive_failures = CASE WHEN $2 THEN 0 ELSE consecutive_failures + 1 END,
			last_run_at = now(),
			last_success_at = CASE WHEN $2 THEN now() ELSE last_success_at END,
			updated_at = now()
		 WHERE exam_code = $1`,
		exam, ok,
	)
	if err != nil {
		return eris.Wrapf(err, "ingest: record run health of %s", exam)
	}
	return nil
}
