package mhtcet

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/doctable"
	"github.com/sells-group/cutoff-ingest/internal/model"
)

// ParserConfig is the artifact context a parser stamps on its rows.
type ParserConfig struct {
	Exam     string
	Quota    string
	SeatType string
	Round    int
}

var (
	collegeLine = regexp.MustCompile(`^(\d{4,5})\s*-\s*(.+)`)
	courseLine  = regexp.MustCompile(`^(\d{9,10})\s*-\s*(.+)`)
	footerLine  = regexp.MustCompile(`(?i)^(Legends|Cut[\s-]*Off Indicates|Figures in bracket)`)
	rankPct     = regexp.MustCompile(`(\d+)\s*\(([\d.]+)\)`)
	bareRank    = regexp.MustCompile(`^(\d+)$`)
	pctOnly     = regexp.MustCompile(`^\([\d.]+\)$`)
	rankLead    = regexp.MustCompile(`^\d+`)
	dtePrefix   = regexp.MustCompile(`^\d{4,5}\s*-\s*`)
)

const (
	defaultQuota  = "Unknown Quota"
	defaultStage  = "I"
	headerMaxScan = 10
)

// SpatialParser reads state-quota cutoff lists. Each table is one course at
// one college: the college ("01002 - name") and course ("0100219110 - name")
// are text lines above it, and the nearest other line above it names the
// seat bucket. The header row lists category tokens; each following row
// starts with a stage and holds "rank (percentile)" cells.
type SpatialParser struct {
	cfg ParserConfig

	college, collegeName string
	course, courseName   string
	log                  *zap.Logger
}

// NewSpatialParser creates a SpatialParser.
func NewSpatialParser(cfg ParserConfig) *SpatialParser {
	return &SpatialParser{
		cfg:         cfg,
		collegeName: "Unknown",
		courseName:  "Unknown",
		log:         zap.L().With(zap.String("component", "mhtcet.spatial"), zap.String("exam", cfg.Exam)),
	}
}

// Parse implements plugin.Parser. College and course context carries across
// page breaks.
func (p *SpatialParser) Parse(doc *doctable.Document, emit func(model.RawRow) error) error {
	for _, page := range doc.Pages {
		li := 0
		for _, t := range page.Tables {
			for ; li < len(page.Lines) && page.Lines[li].Y < t.Top; li++ {
				p.context(strings.TrimSpace(page.Lines[li].Text))
			}
			if len(t.Rows) < 2 {
				continue
			}
			if p.college == "" || p.course == "" {
				p.log.Debug("table without college or course context", zap.Int("page", page.Number), zap.Int("top", t.Top))
				continue
			}
			quota := nearestQuota(page.Lines, t.Top)
			if err := p.table(t.Rows, quota, page.Number, emit); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *SpatialParser) context(text string) {
	if footerLine.MatchString(text) {
		return
	}
	if m := collegeLine.FindStringSubmatch(text); m != nil {
		p.college, p.collegeName = m[1], strings.TrimSpace(m[2])
		return
	}
	if m := courseLine.FindStringSubmatch(text); m != nil {
		p.course, p.courseName = m[1], strings.TrimSpace(m[2])
	}
}

// nearestQuota returns the closest line above top that is not college,
// course, status or stage text.
func nearestQuota(lines []doctable.Line, top int) string {
	for i := len(lines) - 1; i >= 0; i-- {
		l := lines[i]
		if l.Y >= top {
			continue
		}
		t := strings.TrimSpace(l.Text)
		if t == "" || strings.HasPrefix(t, "Status:") || strings.HasPrefix(t, "Stage") {
			continue
		}
		if collegeLine.MatchString(t) || courseLine.MatchString(t) {
			continue
		}
		return t
	}
	return defaultQuota
}

func (p *SpatialParser) table(rows [][]string, quota string, page int, emit func(model.RawRow) error) error {
	categories := rows[0]
	stage := defaultStage
	for _, row := range mergePercentiles(rows[1:]) {
		// Layout text drops an empty stage cell; rank cells stay right-aligned
		// under their categories.
		cells := row
		if len(row) > 0 && !rankLead.MatchString(strings.TrimSpace(row[0])) {
			if s := strings.TrimSpace(row[0]); s != "" && s != "None" && s != "NULL" {
				stage = s
			}
			cells = row[1:]
		}
		offset := len(categories) - len(cells)
		if offset < 1 {
			offset = 1
		}
		for i, c := range cells {
			col := offset + i
			if col >= len(categories) {
				break
			}
			rank, pct, ok := splitCell(c, true)
			if !ok {
				continue
			}
			r := model.RawRow{
				InstitutionName: p.collegeName,
				InstituteCode:   p.college,
				ProgramCode:     p.course,
				ProgramName:     p.courseName,
				Category:        strings.TrimSpace(strings.ReplaceAll(categories[col], "\n", "")),
				Quota:           p.cfg.Quota,
				QuotaText:       quota,
				Stage:           stage,
				SeatType:        p.cfg.SeatType,
				CourseType:      p.cfg.Exam,
				ClosingRank:     rank,
				Percentile:      pct,
				Round:           p.cfg.Round,
				Page:            page,
			}
			if err := emit(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergePercentiles folds rows holding only "(percentile)" cells into the
// rank row above them.
func mergePercentiles(rows [][]string) [][]string {
	var out [][]string
	for _, row := range rows {
		if len(out) == 0 || !percentileRow(row) {
			out = append(out, append([]string(nil), row...))
			continue
		}
		prev := out[len(out)-1]
		j := 0
		for i, c := range prev {
			if j >= len(row) {
				break
			}
			if bareRank.MatchString(strings.TrimSpace(c)) {
				prev[i] = strings.TrimSpace(c) + " " + strings.TrimSpace(row[j])
				j++
			}
		}
	}
	return out
}

func percentileRow(row []string) bool {
	n := 0
	for _, c := range row {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !pctOnly.MatchString(c) {
			return false
		}
		n++
	}
	return n > 0
}

// splitCell reads "rank (percentile)". A bare rank is accepted only when
// needPct is false.
func splitCell(s string, needPct bool) (int, float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if s == "" || s == "-" {
		return 0, 0, false
	}
	if m := rankPct.FindStringSubmatch(s); m != nil {
		rank, err := strconv.Atoi(m[1])
		if err != nil || rank <= 0 {
			return 0, 0, false
		}
		pct, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0, 0, false
		}
		return rank, pct, true
	}
	if needPct {
		return 0, 0, false
	}
	if m := bareRank.FindStringSubmatch(s); m != nil {
		rank, err := strconv.Atoi(m[1])
		if err == nil && rank > 0 {
			return rank, 0, true
		}
	}
	return 0, 0, false
}

// Tabular column keys.
const (
	colExamType  = "exam_type"
	colRank      = "closing_rank"
	colChoice    = "choice_code"
	colInstitute = "institute_name"
	colCourse    = "course_name"
	colSeatType  = "seat_type"
)

type alias struct {
	key     string
	pattern *regexp.Regexp
}

// tabularAliases are tried in order; a header cell takes the first key it matches.
var tabularAliases = []alias{
	{colExamType, regexp.MustCompile(`(?i)(exam|qualfing|jee|cet)`)},
	{colRank, regexp.MustCompile(`(?i)(merit|rank)`)},
	{colChoice, regexp.MustCompile(`(?i)choice\s*code`)},
	{colInstitute, regexp.MustCompile(`(?i)institute`)},
	{colCourse, regexp.MustCompile(`(?i)course`)},
	{colSeatType, regexp.MustCompile(`(?i)(seat\s*type|quota)`)},
}

// TabularParser reads All India and Diploma lists: one row per choice code
// with the institute, course and closing merit number.
type TabularParser struct {
	cfg ParserConfig
	log *zap.Logger
}

// NewTabularParser creates a TabularParser.
func NewTabularParser(cfg ParserConfig) *TabularParser {
	return &TabularParser{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "mhtcet.tabular"), zap.String("exam", cfg.Exam)),
	}
}

// Parse implements plugin.Parser. A table without its own header continues
// the last header seen when the column counts agree.
func (p *TabularParser) Parse(doc *doctable.Document, emit func(model.RawRow) error) error {
	var headers []string
	for _, page := range doc.Pages {
		for _, t := range page.Tables {
			start := 0
			if idx := headerRow(t.Rows); idx >= 0 {
				headers = mapTabularHeaders(t.Rows[idx])
				start = idx + 1
			} else if headers == nil || t.Columns() != len(headers) {
				continue
			}
			for _, row := range t.Rows[start:] {
				r, ok := p.row(headers, row, page.Number)
				if !ok {
					continue
				}
				if err := emit(r); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func headerRow(rows [][]string) int {
	for i, row := range rows {
		if i >= headerMaxScan {
			break
		}
		text := strings.ToLower(strings.Join(row, " "))
		if strings.Contains(text, "choice code") || strings.Contains(text, "institute") {
			return i
		}
	}
	return -1
}

func mapTabularHeaders(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		h = strings.ReplaceAll(strings.TrimSpace(h), "\n", " ")
		for _, a := range tabularAliases {
			if h != "" && a.pattern.MatchString(h) {
				out[i] = a.key
				break
			}
		}
	}
	return out
}

func (p *TabularParser) row(headers, row []string, page int) (model.RawRow, bool) {
	vals := map[string]string{}
	for i, h := range headers {
		if h == "" || i >= len(row) {
			continue
		}
		if _, ok := vals[h]; !ok {
			vals[h] = strings.TrimSpace(row[i])
		}
	}

	choice := vals[colChoice]
	if choice == "" || choice == "None" {
		return model.RawRow{}, false
	}
	rankCell, ok := vals[colRank]
	if !ok {
		return model.RawRow{}, false
	}
	seat := vals[colSeatType]
	if seat == "" {
		switch {
		case p.cfg.SeatType == SeatDiploma:
			seat = SeatDiploma
		case p.cfg.Quota != "":
			seat = p.cfg.Quota
		default:
			seat = QuotaAI
		}
	}
	rank, pct, ok := splitCell(rankCell, false)
	if !ok {
		return model.RawRow{}, false
	}
	if vals[colCourse] == "" {
		p.log.Warn("dropping row with empty course name", zap.String("choice_code", choice), zap.Int("page", page))
		return model.RawRow{}, false
	}

	r := model.RawRow{
		InstitutionName: strings.TrimSpace(dtePrefix.ReplaceAllString(vals[colInstitute], "")),
		InstituteCode:   choice,
		ProgramCode:     choice,
		ProgramName:     vals[colCourse],
		Category:        "OPEN",
		Quota:           p.cfg.Quota,
		SeatType:        seat,
		CourseType:      p.cfg.Exam,
		ClosingRank:     rank,
		Percentile:      pct,
		Round:           p.cfg.Round,
		Page:            page,
	}
	if e := vals[colExamType]; e != "" {
		r.Extra = map[string]string{colExamType: e}
	}
	return r, true
}
