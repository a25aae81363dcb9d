// Package engine runs parsed rows through identity resolution and the policy
// gatekeeper, and writes accepted facts as slowly changing dimension rows.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/db"
	"github.com/sells-group/cutoff-ingest/internal/metrics"
	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/policy"
	"github.com/sells-group/cutoff-ingest/internal/registry"
)

// Outcome is the fate of one row.
type Outcome int

// Row outcomes.
const (
	Accepted Outcome = iota
	QuarantinedIdentity
	QuarantinedPolicy
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "ACCEPTED"
	case QuarantinedIdentity:
		return "QUARANTINED_IDENTITY"
	case QuarantinedPolicy:
		return "QUARANTINED_POLICY"
	default:
		return "FAILED"
	}
}

// Quarantine violation types.
const (
	ViolationPolicy = "POLICY_VIOLATION"
	ViolationSystem = "SYSTEM_ERROR"
)

const (
	defaultBatchSize = 1000
	createdBy        = "universal_engine"
	unknownBucket    = "UNKNOWN"
)

// Stats counts row outcomes for one run.
type Stats struct {
	Accepted            int `json:"accepted"`
	QuarantinedIdentity int `json:"quarantined_identity"`
	QuarantinedPolicy   int `json:"quarantined_policy"`
	Failed              int `json:"failed"`
	Written             int `json:"written"`
	Retired             int `json:"retired"`
	Unchanged           int `json:"unchanged"`
}

// Total is the number of rows seen.
func (s Stats) Total() int {
	return s.Accepted + s.QuarantinedIdentity + s.QuarantinedPolicy + s.Failed
}

func (s Stats) String() string {
	return fmt.Sprintf("accepted=%d identity=%d policy=%d failed=%d",
		s.Accepted, s.QuarantinedIdentity, s.QuarantinedPolicy, s.Failed)
}

func (s *Stats) add(o Outcome) {
	switch o {
	case Accepted:
		s.Accepted++
	case QuarantinedIdentity:
		s.QuarantinedIdentity++
	case QuarantinedPolicy:
		s.QuarantinedPolicy++
	default:
		s.Failed++
	}
}

// Options configures an Engine for one run.
type Options struct {
	Mode      model.Mode
	RunID     uuid.UUID
	Artifact  *model.Artifact
	BatchSize int
	Metrics   *metrics.Metrics
}

// Engine processes the rows of one artifact inside one run. It is not safe
// for concurrent use.
type Engine struct {
	q        db.Querier
	adapter  policy.Adapter
	resolver *registry.Resolver
	gate     *policy.Gatekeeper
	opts     Options
	log      *zap.Logger

	facts      []model.ResolvedContext
	factIndex  map[model.NaturalKey]int
	candidates [][]any
	quarantine [][]any
	stats      Stats
}

// New creates an Engine writing through q, normally the run transaction.
func New(q db.Querier, adapter policy.Adapter, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Engine{
		q:         q,
		adapter:   adapter,
		resolver:  registry.NewResolver(q),
		gate:      policy.NewGatekeeper(q),
		opts:      opts,
		factIndex: make(map[model.NaturalKey]int),
		log: zap.L().With(
			zap.String("component", "engine"),
			zap.String("exam", adapter.ExamCode()),
			zap.String("run_id", opts.RunID.String()),
		),
	}
}

// Stats returns the outcome counts so far.
func (e *Engine) Stats() Stats { return e.stats }

// ProcessRow resolves and buffers one row. Row-level problems become
// quarantine records and never return an error; the error return is reserved
// for store failures, which abort the run.
func (e *Engine) ProcessRow(ctx context.Context, row model.RawRow) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("row processing panicked", zap.Any("panic", r), zap.String("institution", row.InstitutionName))
			e.bufferQuarantine(row, policy.Result{}, ViolationSystem, fmt.Sprintf("panic: %v", r))
			out, err = Failed, nil
		}
		if err == nil {
			e.stats.add(out)
			e.opts.Metrics.IncRow(e.adapter.ExamCode(), out.String())
		}
	}()

	if verr := row.Validate(); verr != nil {
		e.bufferQuarantine(row, policy.Result{}, ViolationSystem, verr.Error())
		return Failed, nil
	}

	id, err := e.resolver.Resolve(ctx, row.Identity())
	if err != nil {
		return Failed, err
	}
	if !id.Matched {
		e.bufferCandidate(row)
		return QuarantinedIdentity, nil
	}

	res, err := e.gate.Evaluate(ctx, e.adapter, row, e.opts.Mode)
	if err != nil {
		return Failed, err
	}
	if res.Verdict == policy.Violation {
		e.bufferQuarantine(row, res, ViolationPolicy, res.Reason)
		return QuarantinedPolicy, nil
	}

	e.bufferFact(model.ResolvedContext{
		InstitutionID:  id.InstitutionID,
		Confidence:     id.Confidence,
		ExamCode:       e.adapter.ExamCode(),
		StateCode:      res.StateCode,
		Year:           e.opts.Artifact.Year,
		Round:          res.Round,
		Descriptive:    res.Descriptive,
		SeatBucketCode: res.Slug,
		Attributes:     res.Attributes,
		OpeningRank:    row.OpeningRank,
		ClosingRank:    row.ClosingRank,
		SourceDocument: e.opts.Artifact.ID,
		RunID:          e.opts.RunID,
	})

	if len(e.facts) >= e.opts.BatchSize {
		if err := e.Flush(ctx); err != nil {
			return Failed, err
		}
	}
	return Accepted, nil
}

// bufferFact keeps the last reading per natural key within the batch.
func (e *Engine) bufferFact(c model.ResolvedContext) {
	k := c.Key()
	if i, ok := e.factIndex[k]; ok {
		e.facts[i] = c
		return
	}
	e.factIndex[k] = len(e.facts)
	e.facts = append(e.facts, c)
}

func (e *Engine) bufferCandidate(row model.RawRow) {
	e.candidates = append(e.candidates, []any{
		row.Identity(), e.opts.Artifact.ID.String(), "Identity Resolution Failed", "pending", e.opts.RunID,
	})
}

func (e *Engine) bufferQuarantine(row model.RawRow, res policy.Result, violation, reason string) {
	slug := res.Slug
	if slug == "" {
		slug = unknownBucket
	}
	round := res.Round
	if round == 0 {
		round = row.Round
	}
	var sourceRound *int
	if round > 0 {
		sourceRound = &round
	}

	raw, err := quarantinePayload(row, res, e.opts.Artifact.Year)
	if err != nil {
		raw = []byte(`{}`)
	}
	e.quarantine = append(e.quarantine, []any{
		e.adapter.ExamCode(), slug, violation, e.adapter.ExamCode(), e.opts.Artifact.Year,
		sourceRound, e.opts.Artifact.ID.String(), raw, "OPEN", e.opts.RunID, truncate(reason, 1000),
	})
}

// quarantinePayload stores the raw row together with every derived attribute,
// so a later promotion can register the bucket without the source document.
func quarantinePayload(row model.RawRow, res policy.Result, year int) ([]byte, error) {
	payload := map[string]any{}
	b, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, err
	}
	payload["year"] = year
	payload["seat_bucket_code"] = res.Slug
	payload["state_code"] = res.StateCode
	payload["category_group"] = res.Attributes.CategoryGroup
	payload["is_reserved"] = res.Attributes.IsReserved
	payload["course_type"] = res.Attributes.CourseType
	payload["location_type"] = res.Attributes.LocationType
	payload["reservation_type"] = res.Attributes.ReservationType
	if res.Attributes.Extra != nil {
		payload["extra_attributes"] = res.Attributes.Extra
	}
	if res.Round > 0 {
		payload["round"] = res.Round
	}
	return json.Marshal(payload)
}

// Bulk-insert column lists for the fact, identity candidate and policy
// quarantine tables.
var (
	OutcomeColumns = []string{
		"college_id", "exam_code", "state_code", "year", "round_number",
		"institute_code", "institute_name", "program_code", "program_name", "seat_bucket_code",
		"opening_rank", "closing_rank", "is_latest", "valid_from",
		"source_authority", "source_document", "ingestion_run_id", "confidence_score", "created_by",
	}
	CandidateColumns = []string{
		"raw_name", "source_document", "reason_flagged", "status", "ingestion_run_id",
	}
	QuarantineColumns = []string{
		"exam_code", "seat_bucket_code", "violation_type", "source_exam", "source_year",
		"source_round", "source_file", "raw_row", "status", "ingestion_run_id", "review_notes",
	}
)

// Flush writes buffered facts, identity candidates and quarantine rows.
// Each fact is compared with the latest row of its natural key: a row from
// this artifact with the same values is reaffirmed in place, anything else
// is retired and the fact is inserted as the new latest row. Re-ingesting an
// unchanged document therefore adds no history.
func (e *Engine) Flush(ctx context.Context) error {
	if len(e.facts) > 0 {
		keys := e.keyArrays()
		retired, err := e.retire(ctx, keys)
		if err != nil {
			return err
		}
		unchanged, err := e.reaffirm(ctx, keys)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		rows := make([][]any, 0, len(e.facts))
		for i, f := range e.facts {
			if unchanged[i] {
				continue
			}
			var opening *int
			if f.OpeningRank > 0 {
				v := f.OpeningRank
				opening = &v
			}
			rows = append(rows, []any{
				f.InstitutionID, f.ExamCode, f.StateCode, f.Year, f.Round,
				f.Descriptive.InstituteCode, f.Descriptive.InstituteName,
				f.Descriptive.ProgramCode, f.Descriptive.ProgramName, f.SeatBucketCode,
				opening, f.ClosingRank, true, now,
				f.ExamCode, f.SourceDocument.String(), f.RunID, f.Confidence, createdBy,
			})
		}
		n, err := db.CopyFrom(ctx, e.q, "cutoff_outcomes", OutcomeColumns, rows)
		if err != nil {
			return eris.Wrap(err, "engine: write outcomes")
		}
		e.stats.Written += int(n)
		e.stats.Retired += int(retired)
		e.stats.Unchanged += len(unchanged)
		e.facts = e.facts[:0]
		e.factIndex = make(map[model.NaturalKey]int)
	}

	if _, err := db.CopyFrom(ctx, e.q, "college_candidates", CandidateColumns, e.candidates); err != nil {
		return eris.Wrap(err, "engine: write identity candidates")
	}
	e.candidates = e.candidates[:0]

	if _, err := db.CopyFrom(ctx, e.q, "seat_policy_quarantine", QuarantineColumns, e.quarantine); err != nil {
		return eris.Wrap(err, "engine: write quarantine")
	}
	e.quarantine = e.quarantine[:0]

	e.log.Debug("batch flushed",
		zap.Int("written", e.stats.Written),
		zap.Int("retired", e.stats.Retired),
		zap.Int("unchanged", e.stats.Unchanged),
	)
	return nil
}

// keyArrays holds the buffered facts column-wise for unnest.
type keyArrays struct {
	exams, states, institutes, programs, buckets, colleges []string
	years, rounds, openings, closings                      []int32
}

func (e *Engine) keyArrays() keyArrays {
	n := len(e.facts)
	k := keyArrays{
		exams: make([]string, n), states: make([]string, n), institutes: make([]string, n),
		programs: make([]string, n), buckets: make([]string, n), colleges: make([]string, n),
		years: make([]int32, n), rounds: make([]int32, n), openings: make([]int32, n), closings: make([]int32, n),
	}
	for i, f := range e.facts {
		k.exams[i] = f.ExamCode
		k.states[i] = f.StateCode
		k.years[i] = int32(f.Year)
		k.rounds[i] = int32(f.Round)
		k.institutes[i] = f.Descriptive.InstituteCode
		k.programs[i] = f.Descriptive.ProgramCode
		k.buckets[i] = f.SeatBucketCode
		k.colleges[i] = f.InstitutionID.String()
		k.openings[i] = int32(f.OpeningRank)
		k.closings[i] = int32(f.ClosingRank)
	}
	return k
}

// retire closes the latest rows the batch supersedes: rows of other
// documents, and rows of this document whose values differ.
func (e *Engine) retire(ctx context.Context, k keyArrays) (int64, error) {
	tag, err := e.q.Exec(ctx,
		`UPDATE cutoff_outcomes o
		 SET is_latest = false, valid_to = now()
		 FROM unnest($1::text[], $2::text[], $3::int[], $4::int[], $5::text[], $6::text[], $7::text[],
		             $8::uuid[], $9::int[], $10::int[])
		   AS k(exam_code, state_code, year, round_number, institute_code, program_code, seat_bucket_code,
		        college_id, opening_rank, closing_rank)
		 WHERE o.is_latest
		   AND o.exam_code = k.exam_code
		   AND o.state_code = k.state_code
		   AND o.year = k.year
		   AND o.round_number = k.round_number
		   AND o.institute_code = k.institute_code
		   AND o.program_code = k.program_code
		   AND o.seat_bucket_code = k.seat_bucket_code
		   AND (o.source_document IS DISTINCT FROM $11
		        OR o.college_id IS DISTINCT FROM k.college_id
		        OR o.closing_rank <> k.closing_rank
		        OR o.opening_rank IS DISTINCT FROM NULLIF(k.opening_rank, 0))`,
		k.exams, k.states, k.years, k.rounds, k.institutes, k.programs, k.buckets,
		k.colleges, k.openings, k.closings, e.opts.Artifact.ID.String(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "engine: retire latest outcomes")
	}
	return tag.RowsAffected(), nil
}

// reaffirm stamps the current run on latest rows that survived retire and
// returns the batch positions they cover.
func (e *Engine) reaffirm(ctx context.Context, k keyArrays) (map[int]bool, error) {
	rows, err := e.q.Query(ctx,
		`UPDATE cutoff_outcomes o
		 SET ingestion_run_id = $8
		 FROM unnest($1::text[], $2::text[], $3::int[], $4::int[], $5::text[], $6::text[], $7::text[])
		   WITH ORDINALITY
		   AS k(exam_code, state_code, year, round_number, institute_code, program_code, seat_bucket_code, pos)
		 WHERE o.is_latest
		   AND o.source_document = $9
		   AND o.exam_code = k.exam_code
		   AND o.state_code = k.state_code
		   AND o.year = k.year
		   AND o.round_number = k.round_number
		   AND o.institute_code = k.institute_code
		   AND o.program_code = k.program_code
		   AND o.seat_bucket_code = k.seat_bucket_code
		 RETURNING k.pos`,
		k.exams, k.states, k.years, k.rounds, k.institutes, k.programs, k.buckets,
		e.opts.RunID, e.opts.Artifact.ID.String(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "engine: reaffirm unchanged outcomes")
	}
	defer rows.Close()

	unchanged := map[int]bool{}
	for rows.Next() {
		var pos int64
		if err := rows.Scan(&pos); err != nil {
			return nil, eris.Wrap(err, "engine: scan reaffirmed position")
		}
		unchanged[int(pos)-1] = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "engine: reaffirm unchanged outcomes")
	}
	return unchanged, nil
}

// RetireMissing closes latest rows of this artifact that the current run
// neither wrote nor reaffirmed, i.e. facts a revised document dropped. Call
// it after the final Flush.
func (e *Engine) RetireMissing(ctx context.Context) (int64, error) {
	tag, err := e.q.Exec(ctx,
		`UPDATE cutoff_outcomes
		 SET is_latest = false, valid_to = now()
		 WHERE is_latest AND source_document = $1 AND ingestion_run_id <> $2`,
		e.opts.Artifact.ID.String(), e.opts.RunID,
	)
	if err != nil {
		return 0, eris.Wrap(err, "engine: retire dropped outcomes")
	}
	n := tag.RowsAffected()
	e.stats.Retired += int(n)
	return n, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
