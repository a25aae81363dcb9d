package kcet

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cutoff-ingest/internal/model"
)

// ExamCode identifies KCET across the system.
const ExamCode = "KCET"

// Adapter maps KCET rows onto seat buckets of the form
// KCET_{STREAM}_{GEN|HK|PVT}_{CATEGORY}.
type Adapter struct{}

// ExamCode implements policy.Adapter.
func (Adapter) ExamCode() string { return ExamCode }

// StateCode implements policy.Adapter.
func (Adapter) StateCode(model.RawRow) string { return "KA" }

// ResolveRound implements policy.Adapter.
func (Adapter) ResolveRound(row model.RawRow) (int, error) {
	if row.Round < 1 {
		return 0, eris.Errorf("invalid or missing round number for KCET: %d", row.Round)
	}
	return row.Round, nil
}

// GenerateSlug implements policy.Adapter.
func (Adapter) GenerateSlug(row model.RawRow) (string, error) {
	if row.Category == "" {
		return "", eris.New("kcet: row has no category")
	}
	return strings.Join([]string{ExamCode, stream(row), LocationType(row.SeatType), row.Category}, "_"), nil
}

// Attributes implements policy.Adapter. Every category outside the GM family
// is reserved.
func (Adapter) Attributes(row model.RawRow) (model.PolicyAttributes, error) {
	return model.PolicyAttributes{
		CategoryGroup: CategoryGroup(row.Category),
		IsReserved:    !strings.HasPrefix(row.Category, "GM"),
		CourseType:    stream(row),
		LocationType:  LocationType(row.SeatType),
		Extra:         map[string]any{"raw_category_code": row.Category},
	}, nil
}

// Descriptive implements policy.Adapter.
func (Adapter) Descriptive(row model.RawRow) model.Descriptive {
	return model.Descriptive{
		InstituteCode: orUnknown(row.InstituteCode),
		InstituteName: orUnknown(row.InstitutionName),
		ProgramCode:   ProgramCode(row.ProgramCode, row.ProgramName),
		ProgramName:   orUnknown(row.ProgramName),
	}
}

func stream(row model.RawRow) string {
	if row.CourseType == "" {
		return "UNKNOWN"
	}
	return row.CourseType
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}
