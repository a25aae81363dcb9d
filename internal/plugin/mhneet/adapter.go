package mhneet

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cutoff-ingest/internal/model"
)

// Adapter maps Maharashtra medical rows onto {EXAM}_{QUOTA}_{CATEGORY}_{F|G}
// buckets. Rows in the all India quota belong to state AI.
type Adapter struct {
	Exam string
}

// ExamCode implements policy.Adapter.
func (a Adapter) ExamCode() string { return a.Exam }

// StateCode implements policy.Adapter.
func (Adapter) StateCode(row model.RawRow) string {
	if row.Quota == "AIQ" {
		return "AI"
	}
	return "MH"
}

// ResolveRound implements policy.Adapter.
func (a Adapter) ResolveRound(row model.RawRow) (int, error) {
	if row.Round < 1 {
		return 0, eris.Errorf("invalid or missing round for %s: %d", a.Exam, row.Round)
	}
	return row.Round, nil
}

// GenerateSlug implements policy.Adapter.
func (a Adapter) GenerateSlug(row model.RawRow) (string, error) {
	return SeatBucket(a.Exam, dimensions(row)), nil
}

// Attributes implements policy.Adapter.
func (a Adapter) Attributes(row model.RawRow) (model.PolicyAttributes, error) {
	d := dimensions(row)
	return model.PolicyAttributes{
		CategoryGroup:   d.Category,
		IsReserved:      IsReserved(d.Category),
		CourseType:      a.Exam,
		LocationType:    d.Quota,
		ReservationType: d.Gender,
		Extra:           map[string]any{"normalized_quota": d.Quota},
	}, nil
}

// Descriptive implements policy.Adapter. Rows without a program group fall
// back to the exam code.
func (a Adapter) Descriptive(row model.RawRow) model.Descriptive {
	program := row.ProgramCode
	if program == "" {
		program = a.Exam
	}
	return model.Descriptive{
		InstituteCode: orUnknown(row.InstituteCode),
		InstituteName: orUnknown(row.InstitutionName),
		ProgramCode:   program,
		ProgramName:   strings.ReplaceAll(program, "_", " "),
	}
}

func dimensions(row model.RawRow) Dimensions {
	d := Dimensions{Quota: row.Quota, Category: row.Category, Gender: row.Gender}
	if d.Quota == "" {
		d.Quota = "STATE"
	}
	if d.Category == "" {
		d.Category = "OPEN"
	}
	if d.Gender == "" {
		d.Gender = GenderGeneral
	}
	return d
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}
