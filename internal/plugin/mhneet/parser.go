package mhneet

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/doctable"
	"github.com/sells-group/cutoff-ingest/internal/model"
)

// Column keys of a selection list.
const (
	colSrNo     = "sr_no"
	colRank     = "rank"
	colGender   = "gender"
	colCategory = "category"
	colQuota    = "quota"
	colCollege  = "college"
)

type alias struct {
	key      string
	patterns []*regexp.Regexp
}

// headerAliases are tried in order; each key binds to its first matching column.
var headerAliases = []alias{
	{colSrNo, []*regexp.Regexp{regexp.MustCompile(`(?i)sr[.\s]*no`)}},
	{colRank, []*regexp.Regexp{regexp.MustCompile(`(?i)(air|sml|merit.*no|rank)`)}},
	{colGender, []*regexp.Regexp{regexp.MustCompile(`(?i)^g$`)}},
	{colCategory, []*regexp.Regexp{regexp.MustCompile(`(?i)\bcat\.?`)}},
	{colQuota, []*regexp.Regexp{regexp.MustCompile(`(?i)quota`)}},
	{colCollege, []*regexp.Regexp{regexp.MustCompile(`(?i)code\s*college`), regexp.MustCompile(`(?i)college`)}},
}

const headerScanRows = 5

var (
	collegeCell   = regexp.MustCompile(`^(\d{4,6})[:\-\s]+(.*)$`)
	dashRun       = regexp.MustCompile(`-{2,}`)
	floatingNoise = regexp.MustCompile(`(?i)(Legends|Printed On|GOVERNMENT|MAHARASHTRA|Admissions|Note:|Sr\.|Roll No|CET Form|Quota|Code College|State Common|Choice|Not|Available|Retained)`)
	floatingName  = regexp.MustCompile(`^[A-Za-z0-9().\s\-&,]+$`)
	hasLetter     = regexp.MustCompile(`[A-Za-z]`)
	studentLine   = regexp.MustCompile(`^\d+[.\s]+(\d+)\s+.*?([MF])\s+([A-Z0-9\-()/\s]+?)\s+(\d{4,6})[:\-\s]+(.+)$`)
)

var categoryModifiers = map[string]bool{"D1": true, "D2": true, "D3": true, "PWD": true, "HA": true, "MKB": true, "MINO": true}

type seatKey struct {
	code string
	dims Dimensions
}

// ParserConfig configures a Parser.
type ParserConfig struct {
	Exam string
	// BaseQuota applies to rows without a quota of their own. Defaults to STATE.
	BaseQuota string
	// ForceQuota, when set, replaces every row's quota before aggregation.
	ForceQuota string
	// Program is the program code stamped on every row.
	Program string
	Round   int
}

// Parser reads Maharashtra medical selection lists: one allotted candidate
// per row, aggregated to the highest rank per (college, quota, category,
// gender). College names that wrap onto following lines are re-joined.
type Parser struct {
	cfg ParserConfig

	keys  []seatKey
	ranks map[seatKey]int
	pages map[seatKey]int
	names map[string]string
	last  string
	log   *zap.Logger
}

// NewParser creates a parser for one document.
func NewParser(cfg ParserConfig) *Parser {
	if cfg.BaseQuota == "" {
		cfg.BaseQuota = "STATE"
	}
	return &Parser{
		cfg:   cfg,
		ranks: map[seatKey]int{},
		pages: map[seatKey]int{},
		names: map[string]string{},
		log:   zap.L().With(zap.String("component", "mhneet.parser"), zap.String("exam", cfg.Exam)),
	}
}

// Parse implements plugin.Parser. Pages whose header maps every column are
// read as tables; other pages fall back to a line pattern.
func (p *Parser) Parse(doc *doctable.Document, emit func(model.RawRow) error) error {
	for _, page := range doc.Pages {
		p.last = ""
		rows := page.Rows()
		cols := mapHeaders(rows)
		if len(rows) < 3 || len(cols) < len(headerAliases) {
			p.log.Debug("line fallback", zap.Int("page", page.Number), zap.Int("columns", len(cols)))
			for _, r := range rows {
				p.line(strings.Join(r, " "), page.Number)
			}
			continue
		}
		for _, r := range rows {
			p.tableRow(r, cols, page.Number)
		}
	}

	for _, k := range p.keys {
		name, ok := p.names[k.code]
		if !ok {
			name = "Unknown"
		}
		err := emit(model.RawRow{
			InstitutionName: cleanName(name),
			InstituteCode:   k.code,
			ProgramCode:     p.cfg.Program,
			Category:        k.dims.Category,
			Quota:           k.dims.Quota,
			Gender:          k.dims.Gender,
			CourseType:      p.cfg.Exam,
			ClosingRank:     p.ranks[k],
			Round:           p.cfg.Round,
			Page:            p.pages[k],
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func mapHeaders(rows [][]string) map[string]int {
	cols := map[string]int{}
	for i, row := range rows {
		if i >= headerScanRows {
			break
		}
		for idx, cell := range row {
			v := strings.ToLower(strings.TrimSpace(cell))
			if v == "" {
				continue
			}
			for _, a := range headerAliases {
				if _, ok := cols[a.key]; ok {
					continue
				}
				for _, re := range a.patterns {
					if re.MatchString(v) {
						cols[a.key] = idx
						break
					}
				}
			}
		}
	}
	return cols
}

func (p *Parser) tableRow(row []string, cols map[string]int, page int) {
	if _, err := strconv.Atoi(cell(row, cols[colSrNo])); err != nil {
		p.floating(strings.Join(row, " "))
		return
	}
	// A new student row ends any pending name continuation.
	p.last = ""
	maxIdx := 0
	for _, i := range cols {
		maxIdx = max(maxIdx, i)
	}
	if len(row) <= maxIdx {
		return
	}

	rank, err := strconv.Atoi(cell(row, cols[colRank]))
	if err != nil || rank <= 0 {
		return
	}
	college := cell(row, cols[colCollege])
	if skipCollege(college) {
		return
	}
	m := collegeCell.FindStringSubmatch(college)
	if m == nil {
		return
	}
	dims := NormalizeDimensions(cell(row, cols[colQuota]), cell(row, cols[colCategory]), cell(row, cols[colGender]), p.cfg.BaseQuota)
	p.record(m[1], cleanName(m[2]), dims, rank, page)
}

// line handles one text line on pages without a usable header.
func (p *Parser) line(text string, page int) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		p.floating(text)
		return
	}
	p.last = ""

	m := studentLine.FindStringSubmatch(text)
	if m == nil {
		return
	}
	rank, err := strconv.Atoi(m[1])
	if err != nil || rank <= 0 {
		return
	}
	name := cleanName(m[5])
	if skipCollege(name) {
		return
	}

	var tokens []string
	for _, t := range strings.Fields(m[3]) {
		if !strings.Contains(t, "EMD") && !strings.Contains(t, "EMR") {
			tokens = append(tokens, t)
		}
	}
	cat, quota := "OPEN", "STATE"
	switch {
	case len(tokens) >= 2 && categoryModifiers[strings.ToUpper(tokens[1])]:
		cat = tokens[0] + " " + tokens[1]
		if len(tokens) > 2 {
			quota = strings.Join(tokens[2:], " ")
		}
	case len(tokens) >= 2:
		cat, quota = tokens[0], strings.Join(tokens[1:], " ")
	case len(tokens) == 1:
		cat = tokens[0]
	}

	dims := NormalizeDimensions(quota, cat, m[2], p.cfg.BaseQuota)
	p.record(strings.TrimSpace(m[4]), name, dims, rank, page)
}

// floating appends a wrapped college-name fragment to the last college.
func (p *Parser) floating(text string) {
	if p.last == "" {
		return
	}
	t := strings.Trim(strings.TrimSpace(dashRun.ReplaceAllString(text, "")), " -_,")
	if t == "" || floatingNoise.MatchString(t) || !hasLetter.MatchString(t) || !floatingName.MatchString(t) {
		return
	}
	if !strings.Contains(p.names[p.last], t) {
		p.names[p.last] += " " + t
	}
}

func (p *Parser) record(code, name string, dims Dimensions, rank, page int) {
	if p.cfg.ForceQuota != "" {
		dims.Quota = p.cfg.ForceQuota
	}
	k := seatKey{code: code, dims: dims}
	if _, ok := p.ranks[k]; !ok {
		p.keys = append(p.keys, k)
		p.pages[k] = page
	}
	if rank > p.ranks[k] {
		p.ranks[k] = rank
	}
	if _, ok := p.names[code]; !ok {
		p.names[code] = name
	}
	p.last = code
}

func skipCollege(s string) bool {
	return s == "" || strings.Contains(s, "Choice Not Available") ||
		strings.Contains(s, "Retained") || strings.Contains(s, "Not Allotted")
}

func cleanName(s string) string {
	return strings.Trim(strings.TrimSpace(dashRun.ReplaceAllString(s, "")), " -_,")
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
