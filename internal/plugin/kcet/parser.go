package kcet

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/doctable"
	"github.com/sells-group/cutoff-ingest/internal/model"
)

// Block seat types, read off a table's category header.
const (
	SeatGeneral = "GENERAL"
	SeatPrivate = "PRIVATE"
	SeatHK      = "HK"
)

var (
	collegeHeader  = regexp.MustCompile(`(?i)(?:College\s*[:\-]?)?\s*([A-Z][0-9]{3,4})\s+([A-Za-z].+)`)
	categoryAnchor = regexp.MustCompile(`(?i)^(\d+[A-Z]+|GM|SC|ST|C1|NRI|OPN|COMED)`)
	hkCategory     = regexp.MustCompile(`^[0-9A-Z]+H$`)
	privateCats    = map[string]bool{"GMP": true, "GMPH": true, "NRI": true, "OPN": true, "COMED": true}
)

type column struct {
	category string
	idx      int
}

// header is the active category layout. It carries across tables and pages
// until another category header row replaces it.
type header struct {
	columns  []column
	seatType string
	first    int
}

// Parser reads KCET cutoff documents: one matrix per college with course
// rows and one rank column per reservation category. The college is named
// once in a "E001 College Name" line, either between tables or as a
// rank-less row inside one.
type Parser struct {
	stream string
	round  int

	code string
	name string
	hdr  *header
	log  *zap.Logger
}

// NewParser creates a parser whose rows carry the given course stream and round.
func NewParser(stream string, round int) *Parser {
	return &Parser{stream: stream, round: round, log: zap.L().With(zap.String("component", "kcet.parser"))}
}

// Parse implements plugin.Parser.
func (p *Parser) Parse(doc *doctable.Document, emit func(model.RawRow) error) error {
	for _, page := range doc.Pages {
		prevBottom := -1
		for _, t := range page.Tables {
			p.scanLines(page.Gap(prevBottom, t.Top), page.Number, "gap")
			for _, row := range t.Rows {
				if err := p.row(row, page.Number, emit); err != nil {
					return err
				}
			}
			prevBottom = t.Bottom
		}
		// Trailing lines name the college of the next page's first table.
		p.scanLines(page.Gap(prevBottom, math.MaxInt), page.Number, "trailer")
	}
	return nil
}

func (p *Parser) row(row []string, page int, emit func(model.RawRow) error) error {
	if h := readHeader(row); h != nil {
		p.hdr = h
		return nil
	}
	if p.hdr == nil || len(row) <= p.hdr.first || !hasRanks(row[p.hdr.first:]) {
		p.scanText(joinCells(row), page, "embedded")
		return nil
	}
	if p.code == "" {
		return nil
	}

	var code, name string
	switch first := p.hdr.first; {
	case first == 0:
		return nil
	case first == 1:
		code, name = MergeCourseColumns(row[0], "")
	default:
		code, name = MergeCourseColumns(row[first-2], row[first-1])
	}
	if isDigits(name) {
		return nil
	}

	for _, col := range p.hdr.columns {
		if col.idx >= len(row) {
			continue
		}
		rank, ok := parseRank(row[col.idx])
		if !ok {
			continue
		}
		err := emit(model.RawRow{
			InstitutionName: p.name,
			InstituteCode:   p.code,
			ProgramCode:     code,
			ProgramName:     name,
			Category:        col.category,
			SeatType:        p.hdr.seatType,
			CourseType:      p.stream,
			ClosingRank:     rank,
			Round:           p.round,
			Page:            page,
			Extra:           map[string]string{"course_name_normalized": StandardizeCourse(code, name)},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// readHeader recognises a category header row: at least two category
// columns and no rank values. Columns start at the first category cell.
func readHeader(row []string) *header {
	if hasRanks(row) {
		return nil
	}
	h := &header{first: -1}
	for i, cell := range row {
		v := strings.ToUpper(strings.TrimSpace(cell))
		if v == "" || !categoryAnchor.MatchString(v) {
			continue
		}
		if h.first < 0 {
			h.first = i
		}
		replaced := false
		for j := range h.columns {
			if h.columns[j].category == v {
				h.columns[j].idx = i
				replaced = true
			}
		}
		if !replaced {
			h.columns = append(h.columns, column{category: v, idx: i})
		}
	}
	if len(h.columns) < 2 {
		return nil
	}
	h.seatType = seatType(h.columns)
	return h
}

func seatType(cols []column) string {
	for _, c := range cols {
		if privateCats[c.category] {
			return SeatPrivate
		}
	}
	for _, c := range cols {
		if hkCategory.MatchString(c.category) {
			return SeatHK
		}
	}
	return SeatGeneral
}

func (p *Parser) scanLines(lines []doctable.Line, page int, source string) {
	for _, l := range lines {
		if p.scanText(l.Text, page, source) {
			return
		}
	}
}

// scanText updates the college context from a header-like text. It reports
// whether a college header was found.
func (p *Parser) scanText(text string, page int, source string) bool {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) < 5 {
		return false
	}
	upper := strings.ToUpper(t)
	if strings.Contains(upper, "DATE") || strings.Contains(upper, "PAGE") {
		return false
	}
	m := collegeHeader.FindStringSubmatch(t)
	if m == nil {
		return false
	}
	code := strings.ToUpper(m[1])
	if code != p.code {
		p.log.Debug("college context switch",
			zap.String("source", source), zap.Int("page", page),
			zap.String("from", p.code), zap.String("to", code))
		p.code = code
		p.name = strings.TrimSpace(m[2])
	}
	return true
}

func hasRanks(cells []string) bool {
	for _, c := range cells {
		if _, ok := parseRank(c); ok {
			return true
		}
	}
	return false
}

// parseRank accepts positive finite numbers, with thousands separators.
func parseRank(cell string) (int, bool) {
	v := strings.TrimSpace(strings.ReplaceAll(cell, ",", ""))
	if v == "" || v == "-" || v == "--" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return model.ParseRank(f)
}

func joinCells(row []string) string {
	parts := make([]string, 0, len(row))
	for _, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
