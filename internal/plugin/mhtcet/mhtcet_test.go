package mhtcet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/doctable"
	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const homePage = `<html><body><table>
<tr><td><a href="ViewPublicDocument.aspx?MenuId=1">CAP Round I Cut Off List (MH)</a></td></tr>
<tr><td><a href="/ViewPublicDocument.aspx?MenuId=2"><span>NEW</span> Cut-Off Round-II All India</a></td></tr>
<tr><td><a href="ViewPublicDocument.aspx?MenuId=3">Diploma Holders CAP Round III Cutoff</a></td></tr>
<tr><td><a href="ViewPublicDocument.aspx?MenuId=4">Round I Cutoff Seat Matrix MH</a></td></tr>
<tr><td><a href="ViewPublicDocument.aspx?MenuId=5">Round I Cutoff Institute Level</a></td></tr>
<tr><td><a href="/docs/cutoff_round1.pdf">Cutoff Round I MH</a></td></tr>
<tr><td><a href="ViewPublicDocument.aspx?MenuId=1">CAP Round I Cut Off List (MH)</a></td></tr>
<tr><td><a href="ViewPublicDocument.aspx?MenuId=6">Provisional Merit List</a></td></tr>
</table></body></html>`

func TestViewerScanner_Extract(t *testing.T) {
	p, err := NewBE()
	require.NoError(t, err)

	got, err := p.Scanner.Extract([]byte(homePage), "https://fe2025.mahacet.org/StaticPages/HomePage")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "https://fe2025.mahacet.org/StaticPages/ViewPublicDocument.aspx?MenuId=1", got[0].URL)
	assert.Equal(t, 1, got[0].Round)
	assert.Equal(t, DetectionMethod, got[0].DetectionMethod)
	assert.Equal(t, "CAP ROUND I CUTOFF LIST (MH)", got[0].ContextText)
	assert.Equal(t, map[string]any{metaQuota: QuotaMH, metaSeatType: SeatRegular, metaRoundName: "R1"}, got[0].Metadata)

	assert.Equal(t, "https://fe2025.mahacet.org/ViewPublicDocument.aspx?MenuId=2", got[1].URL)
	assert.Equal(t, 2, got[1].Round)
	assert.Equal(t, QuotaAI, got[1].Metadata[metaQuota])

	assert.Equal(t, 3, got[2].Round)
	assert.Equal(t, SeatDiploma, got[2].Metadata[metaSeatType])
	assert.NotContains(t, got[2].Metadata, metaQuota)
}

func TestNormalizeLinkText(t *testing.T) {
	assert.Equal(t, "CUTOFF ROUND II ALL INDIA", normalizeLinkText(" NEW Cut–Off  Round_II All India"))
	assert.Equal(t, "CAP ROUND I CUTOFF", normalizeLinkText("CAP Round-I Cut Off"))
}

func TestNamer(t *testing.T) {
	s, err := loadStrategy("pharma.yaml")
	require.NoError(t, err)
	n := namer{course: "PHARMA", pat: compilePatterns(s)}

	tests := []struct {
		in   string
		want string
	}{
		{"CAP Round I Cut Off List (MH)", "MHTCET_PHARMA_R1_MH"},
		{"Cut-Off Round-II All India", "MHTCET_PHARMA_R2_AI"},
		{"Diploma Holders CAP Round III Cutoff", "MHTCET_PHARMA_R3_DIPLOMA"},
		{"Round IV Cutoff Maharashtra", "MHTCET_PHARMA_R4_MH"},
		{"Round VI Cutoff MH", "MHTCET_PHARMA_R6_MH"},
		{"Cutoff list", "MHTCET_PHARMA_R0_UNK"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := n.NameArtifact(model.Candidate{LinkText: tt.in + " "})
			assert.Equal(t, tt.want, got.Clean)
			assert.Equal(t, tt.in, got.Original)
			assert.True(t, got.Standardized)
		})
	}
}

func TestDecodeCategory(t *testing.T) {
	tests := []struct {
		token string
		want  Category
	}{
		{"GOPENS", Category{"General", "OPEN", BucketState, false}},
		{"LSCH", Category{"Female", "SC", BucketHome, false}},
		{"GOBCO", Category{"General", "OBC", BucketOtherHome, false}},
		{"TFWS", Category{"General", "TFWS", BucketState, true}},
		{"EWS", Category{"General", "EWS", BucketState, true}},
		{"PWDOPENS", Category{"General", "PWDOPEN", BucketState, true}},
		{"DEFROBCS", Category{"General", "DEFROBC", BucketState, true}},
		{"MI", Category{"General", "MI", BucketState, false}},
		{"LEWS", Category{"Female", "EWS", BucketState, true}},
		{"GEWS", Category{"General", "EWS", BucketState, true}},
		{"GTFWS", Category{"General", "TFWS", BucketState, true}},
		{"LORPHANS", Category{"Female", "ORPHAN", BucketState, true}},
		{"GSTH", Category{"General", "ST", BucketHome, false}},
		{"GXYZS", Category{"General", "GXYZS", BucketState, false}},
		{"", Category{"General", "OPEN", BucketState, false}},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeCategory(tt.token))
		})
	}
}

func TestLocationCode(t *testing.T) {
	assert.Equal(t, "OHU", LocationCode("Other Than Home University Seats"))
	assert.Equal(t, "HU", LocationCode("home university"))
	assert.Equal(t, "SL", LocationCode("State Level"))
	assert.Equal(t, "AI", LocationCode("All India Seats"))
	assert.Equal(t, "MIN", LocationCode("Minority Seats"))
	assert.Equal(t, "MH", LocationCode("Maharashtra State"))
	assert.Equal(t, "UNK", LocationCode("Institute Level"))
}

func spatialDoc() *doctable.Document {
	return &doctable.Document{Pages: []doctable.Page{
		{
			Number: 1,
			Lines: []doctable.Line{
				{Y: 1, Text: "Government of Maharashtra"},
				{Y: 2, Text: "01002 - Government College of Engineering, Amravati"},
				{Y: 3, Text: "0100219110 - Civil Engineering"},
				{Y: 4, Text: "Status: Government Autonomous"},
				{Y: 5, Text: "Home University Seats Allotted to Home University Candidates"},
				{Y: 10, Text: "Other Than Home University Seats Allotted to Other Than Home University Candidates"},
			},
			Tables: []doctable.Table{
				{Top: 6, Bottom: 9, Rows: [][]string{
					{"Stage", "GOPENH", "GSCH", "LOPENH"},
					{"I", "12345 (95.12)", "45678 (80.01)", "13000 (94.50)"},
					{"II", "20000 (90.00)", "-", "21000"},
					{"22000 (89.5)", "23000 (88.1)"},
				}},
				{Top: 11, Bottom: 13, Rows: [][]string{
					{"Stage", "GOPENO", "LOPENO"},
					{"I", "30000", "31000"},
					{"(85.00)", "(84.00)"},
				}},
			},
		},
		{
			Number: 2,
			Lines: []doctable.Line{
				{Y: 1, Text: "Legends: Starting character G-General, L-Ladies"},
				{Y: 2, Text: "0100224510 - Computer Engineering"},
				{Y: 3, Text: "State Level"},
			},
			Tables: []doctable.Table{
				{Top: 4, Bottom: 5, Rows: [][]string{
					{"Stage", "TFWS"},
					{"I", "500 (99.9)"},
				}},
			},
		},
	}}
}

func collect(t *testing.T, p plugin.Parser, doc *doctable.Document) []model.RawRow {
	t.Helper()
	var rows []model.RawRow
	require.NoError(t, p.Parse(doc, func(r model.RawRow) error {
		rows = append(rows, r)
		return nil
	}))
	return rows
}

func TestSpatialParser(t *testing.T) {
	cfg := ParserConfig{Exam: ExamBE, Quota: QuotaMH, SeatType: SeatRegular, Round: 1}
	rows := collect(t, NewSpatialParser(cfg), spatialDoc())
	require.Len(t, rows, 9)

	assert.Equal(t, model.RawRow{
		InstitutionName: "Government College of Engineering, Amravati",
		InstituteCode:   "01002",
		ProgramCode:     "0100219110",
		ProgramName:     "Civil Engineering",
		Category:        "GOPENH",
		Quota:           QuotaMH,
		QuotaText:       "Home University Seats Allotted to Home University Candidates",
		Stage:           "I",
		SeatType:        SeatRegular,
		CourseType:      ExamBE,
		ClosingRank:     12345,
		Percentile:      95.12,
		Round:           1,
		Page:            1,
	}, rows[0])

	assert.Equal(t, "GOPENH", rows[3].Category)
	assert.Equal(t, "II", rows[3].Stage)
	assert.Equal(t, 20000, rows[3].ClosingRank)

	// Stage carried forward, cells right-aligned.
	assert.Equal(t, "GSCH", rows[4].Category)
	assert.Equal(t, "II", rows[4].Stage)
	assert.Equal(t, 22000, rows[4].ClosingRank)
	assert.Equal(t, "LOPENH", rows[5].Category)

	// Percentiles on their own line are merged into the rank row.
	assert.Equal(t, "GOPENO", rows[6].Category)
	assert.Equal(t, 30000, rows[6].ClosingRank)
	assert.InDelta(t, 85.0, rows[6].Percentile, 1e-9)
	assert.Equal(t, "Other Than Home University Seats Allotted to Other Than Home University Candidates", rows[6].QuotaText)

	// College context carries over the page break.
	assert.Equal(t, "01002", rows[8].InstituteCode)
	assert.Equal(t, "0100224510", rows[8].ProgramCode)
	assert.Equal(t, "Computer Engineering", rows[8].ProgramName)
	assert.Equal(t, "State Level", rows[8].QuotaText)
	assert.Equal(t, "TFWS", rows[8].Category)
	assert.Equal(t, 2, rows[8].Page)

	a := NewAdapter(ExamBE)
	for i, want := range map[int]string{
		0: "MHTCET_BE_MH_HU2HU_OPEN_G",
		2: "MHTCET_BE_MH_HU2HU_OPEN_F",
		3: "MHTCET_BE_MH_HU2HU_OPEN_G_II",
		4: "MHTCET_BE_MH_HU2HU_SC_G_II",
		6: "MHTCET_BE_MH_OHU2OHU_OPEN_G",
		8: "MHTCET_BE_MH_SL_TFWS_G",
	} {
		slug, err := a.GenerateSlug(rows[i])
		require.NoError(t, err)
		assert.Equal(t, want, slug, "row %d", i)
	}
}

func TestSpatialParser_NoContext(t *testing.T) {
	doc := &doctable.Document{Pages: []doctable.Page{{
		Number: 1,
		Lines:  []doctable.Line{{Y: 1, Text: "0100219110 - Civil Engineering"}},
		Tables: []doctable.Table{{Top: 2, Bottom: 3, Rows: [][]string{
			{"Stage", "GOPENS"},
			{"I", "100 (99.0)"},
		}}},
	}}}
	rows := collect(t, NewSpatialParser(ParserConfig{Exam: ExamBE, Round: 1}), doc)
	assert.Empty(t, rows)
}

func TestTabularParser(t *testing.T) {
	doc := &doctable.Document{Pages: []doctable.Page{
		{Number: 1, Tables: []doctable.Table{{Top: 1, Bottom: 4, Rows: [][]string{
			{"Sr. No.", "Choice Code", "Institute Name", "Course Name", "Exam (JEE/CET)", "All India Merit"},
			{"1", "0100219110", "01002 - Government College of Engineering, Amravati", "Civil Engineering", "JEE", "45000 (92.5)"},
			{"2", "0100224510", "01002 - Government College of Engineering, Amravati", "Computer Engineering", "JEE", "12000"},
			{"3", "0100229310", "01002 - Government College of Engineering, Amravati", "Mechanical Engineering", "JEE", "-"},
		}}}},
		{Number: 2, Tables: []doctable.Table{{Top: 1, Bottom: 2, Rows: [][]string{
			{"4", "0201019110", "02010 - Sant Gadge Baba College", "Civil Engineering", "CET", "50000 (90.1)"},
			{"5", "0201024510", "02010 - Sant Gadge Baba College", "", "CET", "51000"},
		}}}},
	}}

	p := NewParser(ExamBE, &model.Artifact{
		RoundNumber: ptr(2),
		RawMetadata: map[string]any{metaQuota: QuotaAI, metaSeatType: SeatRegular},
	})
	require.IsType(t, &TabularParser{}, p)

	rows := collect(t, p, doc)
	require.Len(t, rows, 3)

	assert.Equal(t, model.RawRow{
		InstitutionName: "Government College of Engineering, Amravati",
		InstituteCode:   "0100219110",
		ProgramCode:     "0100219110",
		ProgramName:     "Civil Engineering",
		Category:        "OPEN",
		Quota:           QuotaAI,
		SeatType:        QuotaAI,
		CourseType:      ExamBE,
		ClosingRank:     45000,
		Percentile:      92.5,
		Round:           2,
		Page:            1,
		Extra:           map[string]string{colExamType: "JEE"},
	}, rows[0])
	assert.Equal(t, 12000, rows[1].ClosingRank)
	assert.Zero(t, rows[1].Percentile)
	assert.Equal(t, "0201019110", rows[2].ProgramCode)
	assert.Equal(t, "Sant Gadge Baba College", rows[2].InstitutionName)
	assert.Equal(t, 2, rows[2].Page)

	a := NewAdapter(ExamBE)
	slug, err := a.GenerateSlug(rows[0])
	require.NoError(t, err)
	assert.Equal(t, "MHTCET_BE_AI_OPEN_G", slug)
	assert.Equal(t, "01002", a.Descriptive(rows[0]).InstituteCode)
}

func TestArtifactConfig(t *testing.T) {
	tests := []struct {
		name    string
		art     *model.Artifact
		want    ParserConfig
		tabular bool
	}{
		{
			"metadata state quota",
			&model.Artifact{RoundNumber: ptr(1), RawMetadata: map[string]any{metaQuota: QuotaMH, metaSeatType: SeatRegular}},
			ParserConfig{Exam: ExamBE, Quota: QuotaMH, SeatType: SeatRegular, Round: 1},
			false,
		},
		{
			"metadata diploma",
			&model.Artifact{RoundNumber: ptr(3), RawMetadata: map[string]any{metaSeatType: SeatDiploma}},
			ParserConfig{Exam: ExamBE, Quota: QuotaDiploma, SeatType: SeatDiploma, Round: 3},
			true,
		},
		{
			"round name all india",
			&model.Artifact{RoundNumber: ptr(2), RoundName: "MHTCET_BE_R2_AI"},
			ParserConfig{Exam: ExamBE, Quota: QuotaAI, SeatType: SeatRegular, Round: 2},
			true,
		},
		{
			"round name state",
			&model.Artifact{RoundNumber: ptr(1), RoundName: "MHTCET_BE_R1_MH"},
			ParserConfig{Exam: ExamBE, Quota: QuotaMH, SeatType: SeatRegular, Round: 1},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ArtifactConfig(ExamBE, tt.art))
			_, tabular := NewParser(ExamBE, tt.art).(*TabularParser)
			assert.Equal(t, tt.tabular, tabular)
		})
	}
}

func TestAdapter(t *testing.T) {
	a := NewAdapter("mhtcet_be")
	assert.Equal(t, ExamBE, a.ExamCode())
	assert.Equal(t, "MH", a.StateCode(model.RawRow{}))

	_, err := a.ResolveRound(model.RawRow{})
	assert.ErrorContains(t, err, "invalid or missing round number for MHTCET_BE: 0")

	assert.Equal(t, QuotaDiploma, NormalizeQuota(model.RawRow{SeatType: SeatDiploma}))
	assert.Equal(t, QuotaAI, NormalizeQuota(model.RawRow{SeatType: "ai"}))
	assert.Equal(t, QuotaAI, NormalizeQuota(model.RawRow{Quota: "All India"}))
	assert.Equal(t, QuotaMH, NormalizeQuota(model.RawRow{Quota: QuotaMH}))

	diploma := model.RawRow{Quota: QuotaDiploma, SeatType: SeatDiploma, Category: "OPEN", Round: 1}
	slug, err := a.GenerateSlug(diploma)
	require.NoError(t, err)
	assert.Equal(t, "MHTCET_BE_DIPLOMA_SL_OPEN_G", slug)

	staged := model.RawRow{Quota: QuotaMH, Category: "LOBCS", QuotaText: "State Level", Stage: "I-Non PWD"}
	slug, err = a.GenerateSlug(staged)
	require.NoError(t, err)
	assert.Equal(t, "MHTCET_BE_MH_SL_OBC_F_I_NON_PWD", slug)

	assert.Equal(t, "NAT", a.AllocationVector(model.RawRow{QuotaText: "All India Seats"}, BucketState, QuotaAI))
	assert.Equal(t, "HU", a.AllocationVector(model.RawRow{}, BucketHome, QuotaMH))
	assert.Equal(t, "UNK2UNK", a.AllocationVector(model.RawRow{QuotaText: "Seats allotted to others"}, BucketState, QuotaMH))

	attrs, err := a.Attributes(model.RawRow{Quota: QuotaMH, Category: "PWDOPENS", QuotaText: "State Level"})
	require.NoError(t, err)
	assert.Equal(t, model.PolicyAttributes{
		CategoryGroup:   "PWDOPEN",
		IsReserved:      true,
		CourseType:      "BE",
		LocationType:    "SL",
		ReservationType: "Supernumerary",
		Extra: map[string]any{
			"gender":               "General",
			"quota_type":           QuotaMH,
			"original_seat_bucket": BucketState,
			"raw_category_token":   "PWDOPENS",
			"dynamic_quota_text":   "State Level",
		},
	}, attrs)

	attrs, err = NewAdapter(ExamPharma).Attributes(model.RawRow{Category: "GOPENS"})
	require.NoError(t, err)
	assert.False(t, attrs.IsReserved)
	assert.Equal(t, "PHARMA", attrs.CourseType)
	assert.Equal(t, "Regular", attrs.ReservationType)
	assert.Equal(t, "N/A", attrs.Extra["dynamic_quota_text"])

	assert.Equal(t, model.Descriptive{
		InstituteCode: "UNKNOWN",
		InstituteName: "Unknown Institute",
		ProgramCode:   strings.Repeat("9", 60),
		ProgramName:   "Unknown Program",
	}, a.Descriptive(model.RawRow{ProgramCode: strings.Repeat("9", 70)}))
}

func TestNew(t *testing.T) {
	be, err := NewBE()
	require.NoError(t, err)
	require.NoError(t, be.Validate())
	assert.Equal(t, ExamBE, be.ExamCode)
	assert.Equal(t, []int{2026, 2025, 2024, 2023}, be.Years())

	pharma, err := NewPharma()
	require.NoError(t, err)
	require.NoError(t, pharma.Validate())
	assert.Equal(t, ExamPharma, pharma.ExamCode)
	seed, err := pharma.Seed(2023)
	require.NoError(t, err)
	assert.Equal(t, "https://ph2023.maha-ara.org/StaticPages/HomePage", seed)
}

func ptr[T any](v T) *T { return &v }
