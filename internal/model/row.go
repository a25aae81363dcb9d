package model

import (
	"math"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Candidate is a document reference found on a seed page.
type Candidate struct {
	URL             string         `json:"url"`
	LinkText        string         `json:"link_text"`
	ContextText     string         `json:"context_header"`
	Round           int            `json:"detected_round"`
	DetectionMethod string         `json:"detection_method"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// RawRow is one record at the parser boundary. Parsers fill the fields their
// layout carries; adapters read them.
type RawRow struct {
	InstitutionName string            `json:"institution_name"`
	InstituteCode   string            `json:"institute_code,omitempty"`
	ProgramCode     string            `json:"program_code,omitempty"`
	ProgramName     string            `json:"program_name,omitempty"`
	Category        string            `json:"category"`
	Quota           string            `json:"quota,omitempty"`
	QuotaText       string            `json:"quota_text,omitempty"`
	Gender          string            `json:"gender,omitempty"`
	Stage           string            `json:"stage,omitempty"`
	SeatType        string            `json:"seat_type,omitempty"`
	CourseType      string            `json:"course_type,omitempty"`
	OpeningRank     int               `json:"opening_rank,omitempty"`
	ClosingRank     int               `json:"closing_rank"`
	Percentile      float64           `json:"percentile,omitempty"`
	Round           int               `json:"round,omitempty"`
	Page            int               `json:"page,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// Validate checks the fields every source must provide.
func (r RawRow) Validate() error {
	if r.InstitutionName == "" && r.InstituteCode == "" {
		return eris.New("row: no institution context")
	}
	if r.ClosingRank <= 0 {
		return eris.Errorf("row: non-positive closing rank %d", r.ClosingRank)
	}
	if r.Category == "" {
		return eris.New("row: empty category")
	}
	return nil
}

// Identity is the text the registry resolves: the printed name, or the
// institute code when the source prints no name.
func (r RawRow) Identity() string {
	if r.InstitutionName != "" {
		return r.InstitutionName
	}
	return r.InstituteCode
}

// ParseRank turns a cell into a positive integer rank. Non-finite and
// non-positive values are rejected.
func ParseRank(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
		return 0, false
	}
	return int(f), true
}

// PolicyAttributes are the descriptive properties derived for a seat bucket.
type PolicyAttributes struct {
	CategoryGroup   string         `json:"category_group"`
	IsReserved      bool           `json:"is_reserved"`
	CourseType      string         `json:"course_type"`
	LocationType    string         `json:"location_type"`
	ReservationType string         `json:"reservation_type"`
	Extra           map[string]any `json:"extra_attributes,omitempty"`
}

// Descriptive holds the institute and program identity of a row.
type Descriptive struct {
	InstituteCode string `json:"institute_code"`
	InstituteName string `json:"institute_name"`
	ProgramCode   string `json:"program_code"`
	ProgramName   string `json:"program_name"`
}

// NaturalKey identifies one fact across versions.
type NaturalKey struct {
	ExamCode       string
	StateCode      string
	Year           int
	Round          int
	InstituteCode  string
	ProgramCode    string
	SeatBucketCode string
}

// ResolvedContext is a fully qualified, validated row ready for the fact table.
type ResolvedContext struct {
	InstitutionID  uuid.UUID
	Confidence     float64
	ExamCode       string
	StateCode      string
	Year           int
	Round          int
	Descriptive    Descriptive
	SeatBucketCode string
	Attributes     PolicyAttributes
	OpeningRank    int
	ClosingRank    int
	SourceDocument uuid.UUID
	RunID          uuid.UUID
}

// Key returns the natural key of the fact.
func (c ResolvedContext) Key() NaturalKey {
	return NaturalKey{
		ExamCode:       c.ExamCode,
		StateCode:      c.StateCode,
		Year:           c.Year,
		Round:          c.Round,
		InstituteCode:  c.Descriptive.InstituteCode,
		ProgramCode:    c.Descriptive.ProgramCode,
		SeatBucketCode: c.SeatBucketCode,
	}
}
