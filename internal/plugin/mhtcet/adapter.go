package mhtcet

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/model"
)

var (
	allottedTo  = regexp.MustCompile(`(?i)(.+?)\s+ALLOTTED\s+TO\s+(.+)`)
	dteCode     = regexp.MustCompile(`^(\d{4,5})`)
	nonSlugRune = regexp.MustCompile(`[^A-Z0-9]+`)
	underscores = regexp.MustCompile(`_+`)
)

// Adapter maps CET cell rows onto buckets of the form
// {EXAM}_{QUOTA}_{VECTOR}_{CATEGORY}_{F|G}[_{STAGE}]. All India seats carry
// no reservation and share one bucket per exam.
type Adapter struct {
	Exam string
	log  *zap.Logger
}

// NewAdapter creates an Adapter for exam.
func NewAdapter(exam string) Adapter {
	return Adapter{Exam: strings.ToUpper(exam), log: zap.L().With(zap.String("component", "mhtcet.adapter"))}
}

// ExamCode implements policy.Adapter.
func (a Adapter) ExamCode() string { return a.Exam }

// StateCode implements policy.Adapter.
func (Adapter) StateCode(model.RawRow) string { return "MH" }

// ResolveRound implements policy.Adapter.
func (a Adapter) ResolveRound(row model.RawRow) (int, error) {
	if row.Round < 1 {
		return 0, eris.Errorf("invalid or missing round number for %s: %d", a.Exam, row.Round)
	}
	return row.Round, nil
}

// NormalizeQuota resolves the admission channel of a row: DIPLOMA, AI or MH.
// The row's own seat type wins over the artifact quota.
func NormalizeQuota(row model.RawRow) string {
	seat := strings.ToUpper(row.SeatType)
	quota := strings.ToUpper(row.Quota)
	switch {
	case seat == SeatDiploma || strings.Contains(quota, QuotaDiploma):
		return QuotaDiploma
	case seat == QuotaAI || quota == QuotaAI || strings.Contains(quota, "ALL INDIA"):
		return QuotaAI
	}
	return QuotaMH
}

// AllocationVector reads "X ALLOTTED TO Y" quota text as a source-to-target
// code such as HU2OHU. Other quota text is shortened directly; without quota
// text the category's seat bucket is used.
func (a Adapter) AllocationVector(row model.RawRow, bucket, quota string) string {
	text := strings.ToUpper(strings.TrimSpace(spaces.ReplaceAllString(row.QuotaText, " ")))
	if quota == QuotaAI && !strings.Contains(text, "ALLOTTED TO") {
		return "NAT"
	}
	if text != "" && text != "N/A" {
		m := allottedTo.FindStringSubmatch(text)
		if m == nil {
			return LocationCode(text)
		}
		src, tgt := LocationCode(m[1]), LocationCode(m[2])
		if src == "UNK" && tgt == "UNK" {
			a.logger().Error("unresolved allocation vector", zap.String("quota_text", text))
		}
		return src + "2" + tgt
	}
	if quota == QuotaMH {
		a.logger().Warn("no quota text bound to table, using seat bucket", zap.String("bucket", bucket))
	}
	return LocationCode(bucket)
}

// GenerateSlug implements policy.Adapter. Stage I is the baseline seat and
// adds no suffix.
func (a Adapter) GenerateSlug(row model.RawRow) (string, error) {
	quota := NormalizeQuota(row)
	if quota == QuotaAI {
		return a.Exam + "_AI_OPEN_G", nil
	}
	c := DecodeCategory(row.Category)
	gender := "G"
	if c.Gender == "Female" {
		gender = "F"
	}
	slug := strings.Join([]string{a.Exam, quota, a.AllocationVector(row, c.SeatBucket, quota), c.Category, gender}, "_")

	switch stage := strings.ToUpper(strings.TrimSpace(row.Stage)); stage {
	case "", "I", "1", "NONE", "NULL":
	default:
		slug += "_" + strings.Trim(nonSlugRune.ReplaceAllString(stage, "_"), "_")
	}
	return strings.Trim(underscores.ReplaceAllString(slug, "_"), "_"), nil
}

// Attributes implements policy.Adapter.
func (a Adapter) Attributes(row model.RawRow) (model.PolicyAttributes, error) {
	c := DecodeCategory(row.Category)
	quota := NormalizeQuota(row)
	reservation := "Regular"
	if c.Supernumerary {
		reservation = "Supernumerary"
	}
	quotaText := row.QuotaText
	if quotaText == "" {
		quotaText = "N/A"
	}
	return model.PolicyAttributes{
		CategoryGroup:   c.Category,
		IsReserved:      c.Category != "OPEN",
		CourseType:      a.courseType(),
		LocationType:    a.AllocationVector(row, c.SeatBucket, quota),
		ReservationType: reservation,
		Extra: map[string]any{
			"gender":               c.Gender,
			"quota_type":           quota,
			"original_seat_bucket": c.SeatBucket,
			"raw_category_token":   orDefault(row.Category, "OPEN"),
			"dynamic_quota_text":   quotaText,
		},
	}, nil
}

// Descriptive implements policy.Adapter. Tabular lists key programs by
// choice code so courses of one institute stay distinct.
func (a Adapter) Descriptive(row model.RawRow) model.Descriptive {
	code := "UNKNOWN"
	if m := dteCode.FindStringSubmatch(row.InstituteCode); m != nil {
		code = m[1]
	}
	program := orDefault(row.ProgramCode, "UNKNOWN")
	if len(program) > 60 {
		program = program[:60]
	}
	return model.Descriptive{
		InstituteCode: code,
		InstituteName: orDefault(row.InstitutionName, "Unknown Institute"),
		ProgramCode:   program,
		ProgramName:   orDefault(row.ProgramName, "Unknown Program"),
	}
}

func (a Adapter) courseType() string {
	if strings.Contains(a.Exam, "BE") {
		return "BE"
	}
	return "PHARMA"
}

func (a Adapter) logger() *zap.Logger {
	if a.log == nil {
		return zap.L()
	}
	return a.log
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
