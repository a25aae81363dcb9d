// Package discovery scans exam seed pages for cutoff documents, fingerprints
// every candidate and registers or revises artifacts through governance.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/fetcher"
	"github.com/sells-group/cutoff-ingest/internal/governance"
	"github.com/sells-group/cutoff-ingest/internal/lock"
	"github.com/sells-group/cutoff-ingest/internal/metrics"
	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
	"github.com/sells-group/cutoff-ingest/internal/prober"
)

// Artifact provenance recorded on registration.
const (
	SourcePDFLink   = "PDF_LINK"
	reasonPrefix    = "Scanner:"
	metaSeatType    = "seat_type"
	defaultParallel = 4
)

// ScanResult counts what one exam-year scan did.
type ScanResult struct {
	ExamCode    string        `json:"exam_code"`
	Year        int           `json:"year"`
	Found       int           `json:"found"`
	New         int           `json:"new"`
	Updated     int           `json:"updated"`
	Revised     int           `json:"revised"`
	SkippedDead int           `json:"skipped_dead"`
	Failed      int           `json:"failed"`
	Locked      bool          `json:"locked"`
	NoSeed      bool          `json:"no_seed"`
	Duration    time.Duration `json:"duration"`
}

// Scanner drives discovery for registered exams.
type Scanner struct {
	pool        db.Pool
	plugins     *plugin.Registry
	fetch       fetcher.Fetcher
	prober      *prober.Prober
	locker      lock.Locker
	metrics     *metrics.Metrics
	concurrency int
	log         *zap.Logger
}

// New creates a Scanner. concurrency bounds parallel probes within a scan and
// parallel scans within ScanAll.
func New(pool db.Pool, plugins *plugin.Registry, f fetcher.Fetcher, pr *prober.Prober, l lock.Locker, m *metrics.Metrics, concurrency int) *Scanner {
	if concurrency <= 0 {
		concurrency = defaultParallel
	}
	return &Scanner{
		pool:        pool,
		plugins:     plugins,
		fetch:       f,
		prober:      pr,
		locker:      l,
		metrics:     m,
		concurrency: concurrency,
		log:         zap.L().With(zap.String("component", "discovery")),
	}
}

// Scan discovers documents for one exam year under the scan:{exam}:{year}
// lock. A busy lock is not an error; the result is marked Locked.
func (s *Scanner) Scan(ctx context.Context, exam string, year int) (ScanResult, error) {
	start := time.Now()
	p, err := s.plugins.Get(exam)
	if err != nil {
		return ScanResult{ExamCode: exam, Year: year}, err
	}
	res := ScanResult{ExamCode: p.ExamCode, Year: year}
	log := s.log.With(zap.String("exam", p.ExamCode), zap.Int("year", year))

	seed, ok := p.Seeds[year]
	if !ok || seed == "" {
		log.Info("no seed url for year")
		res.NoSeed = true
		return res, nil
	}

	lease, held, err := s.locker.TryLock(ctx, lock.ScanKey(p.ExamCode, year))
	if err != nil {
		return res, err
	}
	if !held {
		log.Info("scan already running elsewhere, skipping")
		s.metrics.IncLockSkip("scan")
		res.Locked = true
		return res, nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("releasing scan lock", zap.Error(err))
		}
	}()

	log.Info("scanning seed page", zap.String("seed", seed))
	page, err := s.fetch.GetPage(ctx, seed)
	if err != nil {
		return res, eris.Wrapf(err, "discovery: fetch seed %s", seed)
	}
	cands, err := p.Scanner.Extract(page, seed)
	if err != nil {
		return res, eris.Wrapf(err, "discovery: extract candidates from %s", seed)
	}
	cands = withRound(cands)
	res.Found = len(cands)

	probes, err := s.probeAll(ctx, cands)
	if err != nil {
		return res, err
	}

	gov := governance.NewController(s.pool)
	for i, c := range cands {
		pr := probes[i]
		if !pr.Live {
			res.SkippedDead++
			continue
		}
		if err := s.record(ctx, gov, p, seed, year, c, pr, &res); err != nil {
			res.Failed++
			log.Error("recording candidate failed", zap.String("url", c.URL), zap.Error(err))
		}
	}

	res.Duration = time.Since(start)
	log.Info("scan complete",
		zap.Int("found", res.Found),
		zap.Int("new", res.New),
		zap.Int("updated", res.Updated),
		zap.Int("revised", res.Revised),
		zap.Int("skipped_dead", res.SkippedDead),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// withRound drops candidates without a detected round.
func withRound(cands []model.Candidate) []model.Candidate {
	out := cands[:0]
	for _, c := range cands {
		if c.Round >= 1 {
			out = append(out, c)
		}
	}
	return out
}

func (s *Scanner) probeAll(ctx context.Context, cands []model.Candidate) ([]prober.Result, error) {
	out := make([]prober.Result, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range cands {
		g.Go(func() error {
			out[i] = s.prober.Probe(gctx, c.URL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

func (s *Scanner) record(ctx context.Context, gov *governance.Controller, p *plugin.Plugin, seed string, year int, c model.Candidate, pr prober.Result, res *ScanResult) error {
	existing, err := gov.FindByPath(ctx, p.ExamCode, year, c.URL)
	if err != nil {
		return err
	}

	if existing != nil {
		rev, err := gov.ApplyFingerprint(ctx, existing, pr.Hash, pr.Size)
		if err != nil {
			return err
		}
		switch rev {
		case governance.Fingerprinted:
			res.Updated++
		case governance.Revised:
			res.Updated++
			res.Revised++
			s.metrics.IncRevision(p.ExamCode)
		}
		return nil
	}

	naming := p.Namer.NameArtifact(c)
	seatType, _ := c.Metadata[metaSeatType].(string)
	id, err := gov.RegisterDiscovery(ctx, governance.Discovery{
		PDFPath:         c.URL,
		NotificationURL: seed,
		ExamCode:        p.ExamCode,
		Year:            year,
		Round:           c.Round,
		RoundName:       naming.Clean,
		OriginalName:    naming.Original,
		Standardized:    naming.Standardized,
		SeatType:        seatType,
		DetectionMethod: c.DetectionMethod,
		ContextHeader:   c.ContextText,
		Reason:          reasonPrefix + c.DetectionMethod,
		Source:          SourcePDFLink,
		ContentHash:     pr.Hash,
		Extra:           c.Metadata,
	})
	if err != nil {
		return err
	}
	res.New++
	s.metrics.IncDiscovered(p.ExamCode)
	s.log.Info("artifact discovered",
		zap.String("artifact_id", id.String()),
		zap.String("exam", p.ExamCode),
		zap.String("round_name", naming.Clean),
		zap.Int("round", c.Round),
	)
	return nil
}

// ScanAll scans every exam and year pair concurrently. One failed scan does
// not stop the others; the first error is returned after all finish.
func (s *Scanner) ScanAll(ctx context.Context, exams []string, years []int) ([]ScanResult, error) {
	var (
		mu       sync.Mutex
		results  []ScanResult
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, exam := range exams {
		for _, year := range years {
			g.Go(func() error {
				r, err := s.Scan(gctx, exam, year)
				mu.Lock()
				defer mu.Unlock()
				results = append(results, r)
				if err != nil {
					s.log.Error("scan failed", zap.String("exam", exam), zap.Int("year", year), zap.Error(err))
					if firstErr == nil {
						firstErr = err
					}
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool {
		if results[i].ExamCode != results[j].ExamCode {
			return results[i].ExamCode < results[j].ExamCode
		}
		return results[i].Year < results[j].Year
	})
	return results, firstErr
}
