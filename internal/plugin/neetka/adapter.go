package neetka

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/cutoff-ingest/internal/model"
)

// ExamCode identifies Karnataka NEET counselling.
const ExamCode = "NEET_KA"

// Adapter maps KEA NEET rows onto NEETKA_{COURSE}_{SEAT}_{LOC}_{CATEGORY}
// buckets. The course string "MBBS-GOVT." carries both course and seat type.
type Adapter struct{}

// ExamCode implements policy.Adapter.
func (Adapter) ExamCode() string { return ExamCode }

// StateCode implements policy.Adapter.
func (Adapter) StateCode(model.RawRow) string { return "KA" }

// ResolveRound implements policy.Adapter.
func (Adapter) ResolveRound(row model.RawRow) (int, error) {
	if row.Round < 1 {
		return 0, eris.Errorf("invalid or missing round for NEET_KA: %d", row.Round)
	}
	return row.Round, nil
}

// GenerateSlug implements policy.Adapter.
func (Adapter) GenerateSlug(row model.RawRow) (string, error) {
	if row.Category == "" {
		return "", eris.New("neetka: row has no category")
	}
	course, seat := ParseCourse(row.ProgramName)
	return "NEETKA_" + course + "_" + seat + "_" + LocationType(row.Category) + "_" + row.Category, nil
}

// Attributes implements policy.Adapter. Unknown category tokens are
// rejected so the row is quarantined instead of inventing a location.
func (Adapter) Attributes(row model.RawRow) (model.PolicyAttributes, error) {
	loc := LocationType(row.Category)
	if loc == LocUnknown {
		return model.PolicyAttributes{}, eris.Errorf("unrecognized category token: %s", row.Category)
	}
	course, seat := ParseCourse(row.ProgramName)
	return model.PolicyAttributes{
		CategoryGroup:   row.Category,
		IsReserved:      IsReserved(row.Category),
		CourseType:      course,
		LocationType:    loc,
		ReservationType: seat,
		Extra: map[string]any{
			"raw_category_code": row.Category,
			"raw_course_string": row.ProgramName,
		},
	}, nil
}

// Descriptive implements policy.Adapter.
func (Adapter) Descriptive(row model.RawRow) model.Descriptive {
	course, seat := ParseCourse(row.ProgramName)
	code := ExtractCode(row.InstituteCode)
	if code == "" {
		code = row.InstituteCode
	}
	return model.Descriptive{
		InstituteCode: orUnknown(code),
		InstituteName: orUnknown(row.InstitutionName),
		ProgramCode:   course + "_" + seat,
		ProgramName:   orUnknown(row.ProgramName),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}
