// Package ingest drives approved artifacts through download, extraction,
// parsing and the ingestion engine, one run per artifact.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/config"
	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/doctable"
	"github.com/sells-group/cutoff-ingest/internal/engine"
	"github.com/sells-group/cutoff-ingest/internal/fetcher"
	"github.com/sells-group/cutoff-ingest/internal/governance"
	"github.com/sells-group/cutoff-ingest/internal/lock"
	"github.com/sells-group/cutoff-ingest/internal/metrics"
	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
)

// RunOutcome is the result of one artifact attempt.
type RunOutcome string

// Run outcomes. Skipped means another worker holds the artifact.
const (
	OutcomeCompleted RunOutcome = "COMPLETED"
	OutcomeFailed    RunOutcome = "FAILED"
	OutcomeSkipped   RunOutcome = "SKIPPED"
)

const defaultErrorTruncate = 500

// Result reports one artifact attempt.
type Result struct {
	ArtifactID uuid.UUID     `json:"artifact_id"`
	ExamCode   string        `json:"exam_code"`
	RunID      uuid.UUID     `json:"run_id"`
	Outcome    RunOutcome    `json:"outcome"`
	Stats      engine.Stats  `json:"stats"`
	Wiped      WipeStats     `json:"wiped"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Summary aggregates one orchestration pass.
type Summary struct {
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Results   []Result `json:"results"`
}

func (s *Summary) add(r Result) {
	switch r.Outcome {
	case OutcomeCompleted:
		s.Completed++
	case OutcomeFailed:
		s.Failed++
	default:
		s.Skipped++
	}
	s.Results = append(s.Results, r)
}

// Orchestrator processes approved and dirty artifacts.
type Orchestrator struct {
	pool    db.Pool
	plugins *plugin.Registry
	fetch   fetcher.Fetcher
	extract doctable.Extractor
	metrics *metrics.Metrics
	cfg     config.IngestConfig
	log     *zap.Logger
}

// New creates an Orchestrator.
func New(pool db.Pool, plugins *plugin.Registry, f fetcher.Fetcher, ex doctable.Extractor, m *metrics.Metrics, cfg config.IngestConfig) *Orchestrator {
	if cfg.ErrorTruncate <= 0 {
		cfg.ErrorTruncate = defaultErrorTruncate
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Orchestrator{
		pool:    pool,
		plugins: plugins,
		fetch:   f,
		extract: ex,
		metrics: m,
		cfg:     cfg,
		log:     zap.L().With(zap.String("component", "ingest.orchestrator")),
	}
}

// ProcessApprovedAndDirty runs every APPROVED artifact and every INGESTED
// artifact flagged for reprocessing, oldest first. An empty exam means all
// exams. A failed artifact never stops the pass; only listing errors and
// cancellation are returned.
func (o *Orchestrator) ProcessApprovedAndDirty(ctx context.Context, exam string) (Summary, error) {
	var sum Summary
	arts, err := governance.NewController(o.pool).Processable(ctx, strings.ToUpper(exam))
	if err != nil {
		return sum, err
	}
	o.log.Info("processing artifacts", zap.String("exam", exam), zap.Int("count", len(arts)))

	for i := range arts {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.add(o.ProcessArtifact(ctx, &arts[i]))
	}

	o.log.Info("processing pass complete",
		zap.Int("completed", sum.Completed),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

// ProcessArtifact runs one artifact inside one transaction guarded by a
// transaction-scoped lock. On failure the transaction is rolled back, and the
// artifact and run are marked FAILED outside it.
func (o *Orchestrator) ProcessArtifact(ctx context.Context, art *model.Artifact) Result {
	start := time.Now()
	res := Result{ArtifactID: art.ID, ExamCode: art.ExamCode}
	log := o.log.With(zap.String("artifact_id", art.ID.String()), zap.String("exam", art.ExamCode))

	var localPath string
	defer func() {
		if localPath != "" {
			if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
				log.Warn("temp file cleanup failed", zap.String("path", localPath), zap.Error(err))
			}
		}
	}()

	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return o.fail(ctx, log, res, uuid.Nil, eris.Wrap(err, "ingest: begin run transaction"), start)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	held, err := lock.TryXact(ctx, tx, lock.IngestKey(art.ID))
	if err != nil {
		return o.fail(ctx, log, res, uuid.Nil, err, start)
	}
	if !held {
		log.Info("artifact locked by another worker, skipping")
		o.metrics.IncLockSkip("ingest")
		res.Outcome = OutcomeSkipped
		return res
	}

	runID, err := NewRunLog(o.pool).Start(ctx, art)
	if err != nil {
		return o.fail(ctx, log, res, uuid.Nil, err, start)
	}
	res.RunID = runID
	log = log.With(zap.String("run_id", runID.String()))
	log.Info("run started")

	stats, wiped, err := o.run(ctx, tx, art, runID, &localPath)
	res.Stats, res.Wiped = stats, wiped
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return o.fail(ctx, log, res, runID, err, start)
	}

	res.Outcome = OutcomeCompleted
	res.Duration = time.Since(start)
	o.metrics.ObserveRun(art.ExamCode, string(OutcomeCompleted), res.Duration)
	if err := NewExamModes(o.pool).RecordRun(ctx, art.ExamCode, true); err != nil {
		log.Warn("exam health update failed", zap.Error(err))
	}
	log.Info("run completed", zap.Stringer("stats", stats), zap.Duration("duration", res.Duration))
	return res
}

// run does the transactional work of one attempt.
func (o *Orchestrator) run(ctx context.Context, tx pgx.Tx, art *model.Artifact, runID uuid.UUID, localPath *string) (engine.Stats, WipeStats, error) {
	var stats engine.Stats

	p, err := o.plugins.Get(art.ExamCode)
	if err != nil {
		return stats, WipeStats{}, err
	}
	mode, err := NewExamModes(tx).Mode(ctx, p.ExamCode)
	if err != nil {
		return stats, WipeStats{}, err
	}

	wiped, err := NewJanitor(tx).PreClean(ctx, mode, art)
	if err != nil {
		return stats, wiped, err
	}

	*localPath, err = o.download(ctx, art)
	if err != nil {
		return stats, wiped, err
	}
	doc, err := o.extract.Extract(ctx, *localPath)
	if err != nil {
		return stats, wiped, eris.Wrapf(err, "ingest: extract %s", art.PDFPath)
	}
	parser, err := p.NewParser(art)
	if err != nil {
		return stats, wiped, eris.Wrapf(err, "ingest: build parser for %s", art.ExamCode)
	}

	eng := engine.New(tx, p.Adapter, engine.Options{
		Mode:      mode,
		RunID:     runID,
		Artifact:  art,
		BatchSize: o.cfg.BatchSize,
		Metrics:   o.metrics,
	})
	err = parser.Parse(doc, func(row model.RawRow) error {
		_, err := eng.ProcessRow(ctx, row)
		return err
	})
	if err != nil {
		return eng.Stats(), wiped, eris.Wrap(err, "ingest: parse")
	}
	if err := eng.Flush(ctx); err != nil {
		return eng.Stats(), wiped, err
	}
	if mode == model.ModeContinuous {
		if _, err := eng.RetireMissing(ctx); err != nil {
			return eng.Stats(), wiped, err
		}
	}
	stats = eng.Stats()

	note := fmt.Sprintf("Run %s: %s", runID, stats)
	if err := governance.NewController(tx).MarkIngested(ctx, art.ID, note); err != nil {
		return stats, wiped, err
	}
	if err := NewRunLog(tx).Complete(ctx, runID, runStats(mode, stats, wiped)); err != nil {
		return stats, wiped, err
	}
	return stats, wiped, nil
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, res Result, runID uuid.UUID, cause error, start time.Time) Result {
	msg := truncate(cause.Error(), o.cfg.ErrorTruncate)
	res.Outcome = OutcomeFailed
	res.Error = msg
	res.Duration = time.Since(start)
	log.Error("run failed", zap.Error(cause))

	// The run transaction is gone; record the failure on a fresh statement.
	if err := governance.NewController(o.pool).MarkFailed(ctx, res.ArtifactID, msg); err != nil {
		log.Error("marking artifact failed", zap.Error(err))
	}
	if runID != uuid.Nil {
		if err := NewRunLog(o.pool).Fail(ctx, runID, msg); err != nil {
			log.Error("sealing failed run", zap.Error(err))
		}
	}
	if err := NewExamModes(o.pool).RecordRun(ctx, res.ExamCode, false); err != nil {
		log.Warn("exam health update failed", zap.Error(err))
	}
	o.metrics.ObserveRun(res.ExamCode, string(OutcomeFailed), res.Duration)
	return res
}

// download stores the artifact under the temp dir. Paths that are not
// http(s) URLs are copied from the local filesystem.
func (o *Orchestrator) download(ctx context.Context, art *model.Artifact) (string, error) {
	if err := os.MkdirAll(o.cfg.TempDir, 0o755); err != nil {
		return "", eris.Wrap(err, "ingest: create temp dir")
	}
	dst := filepath.Join(o.cfg.TempDir, art.ID.String()+documentExt(art.PDFPath))

	if isRemote(art.PDFPath) {
		if _, err := o.fetch.DownloadToFile(ctx, art.PDFPath, dst); err != nil {
			return dst, eris.Wrapf(err, "ingest: download %s", art.PDFPath)
		}
		return dst, nil
	}
	if err := copyFile(art.PDFPath, dst); err != nil {
		return dst, eris.Wrapf(err, "ingest: copy %s", art.PDFPath)
	}
	return dst, nil
}

func isRemote(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// documentExt keeps spreadsheet extensions so extraction can route on them.
func documentExt(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if ext := strings.ToLower(path.Ext(p)); ext == ".xlsx" {
		return ext
	}
	return ".pdf"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func runStats(mode model.Mode, s engine.Stats, w WipeStats) map[string]any {
	return map[string]any{
		"mode":                 string(mode),
		"accepted":             s.Accepted,
		"quarantined_identity": s.QuarantinedIdentity,
		"quarantined_policy":   s.QuarantinedPolicy,
		"failed":               s.Failed,
		"written":              s.Written,
		"retired":              s.Retired,
		"wiped_outcomes":       w.Outcomes,
		"wiped_candidates":     w.Candidates,
		"wiped_quarantine":     w.Quarantine,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
