package neetka

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/doctable"
	"github.com/sells-group/cutoff-ingest/internal/model"
)

// Engine names the two KEA document layouts.
type Engine string

const (
	// Transactional documents list one allotted candidate per row.
	Transactional Engine = "TRANSACTIONAL"
	// Matrix documents carry one rank column per category under a college header.
	Matrix Engine = "MATRIX"
)

const routePages = 2

var collegeHeader = regexp.MustCompile(`(?i)(?:College\s*[:\-]?)?\s*([A-Z]\d{3})\s+([A-Za-z].+)`)

var inactiveStatus = []string{"CANCEL", "SURRENDER", "NOT JOINED", "REJECT"}

// Parser reads KEA NEET documents. The layout is chosen per document by
// scoring the header rows of the first pages.
type Parser struct {
	round int
	log   *zap.Logger
}

// NewParser creates a parser for an artifact of the given round.
func NewParser(round int) *Parser {
	return &Parser{round: round, log: zap.L().With(zap.String("component", "neetka.parser"))}
}

// Parse implements plugin.Parser.
func (p *Parser) Parse(doc *doctable.Document, emit func(model.RawRow) error) error {
	engine := Route(doc)
	p.log.Info("structural routing", zap.String("engine", string(engine)), zap.Int("round", p.round))
	if engine == Transactional {
		return p.transactional(doc, emit)
	}
	return p.matrix(doc, emit)
}

// Route scores every table header on the first pages and returns the
// engine of the best one. Documents with no scorable table are matrices.
func Route(doc *doctable.Document) Engine {
	best, engine := -1, Matrix
	for i, page := range doc.Pages {
		if i >= routePages {
			break
		}
		for _, t := range page.Tables {
			if len(t.Rows) < 2 {
				continue
			}
			header := upperCells(t.Rows[0])
			score, transactional := 0, false
			if anyContains(header, "RANK") {
				score += 3
			}
			if anyContains(header, "COURSE CODE", "COLLEGE TYPE") {
				score += 3
			}
			if len(header) <= 10 {
				score += 2
				transactional = true
			}
			if countCategories(header) >= 3 {
				score += 5
				transactional = false
			}
			if len(header) > 12 {
				score += 2
			}
			if score > best {
				best = score
				engine = Matrix
				if transactional {
					engine = Transactional
				}
			}
		}
	}
	return engine
}

type txHeader struct {
	rank, code, course, category, status, round, name int
}

func readTxHeader(cells []string) *txHeader {
	h := &txHeader{
		rank:     indexOf(cells, "RANK"),
		code:     indexOf(cells, "CODE", "TYPE"),
		course:   indexOf(cells, "COURSE NAME"),
		category: indexOf(cells, "CATEGORY"),
		status:   indexOf(cells, "STATUS"),
		round:    indexOf(cells, "ROUND"),
		name:     indexOf(cells, "NAME OF THE", "COLLEGE ALLOTTED"),
	}
	if h.rank < 0 || h.category < 0 || h.course < 0 {
		return nil
	}
	return h
}

type txKey struct {
	code, course, category string
}

// transactional keeps the highest allotted rank per (college, course,
// category) among the candidates of this round who did not cancel, surrender
// or fail to join. A table without its own header continues the previous one.
func (p *Parser) transactional(doc *doctable.Document, emit func(model.RawRow) error) error {
	var (
		hdr     *txHeader
		keys    []txKey
		ranks   = map[txKey]int{}
		pages   = map[txKey]int{}
		names   = map[string]string{}
		courses = map[string]map[string]bool{}
		want    = strconv.Itoa(p.round)
		byName  = map[string]bool{}
		orphans int
	)

	for _, page := range doc.Pages {
		for _, t := range page.Tables {
			rows := t.Rows
			if len(rows) == 0 {
				continue
			}
			if h := readTxHeader(upperRow(rows[0])); h != nil {
				hdr, rows = h, rows[1:]
			}
			if hdr == nil {
				continue
			}
			for _, row := range rows {
				if len(row) <= max(hdr.rank, hdr.category, hdr.course) {
					continue
				}
				if r := cell(row, hdr.round); r != "" && !strings.Contains(r, want) {
					continue
				}
				status := strings.ToUpper(cell(row, hdr.status))
				if anyContains([]string{status}, inactiveStatus...) {
					continue
				}
				rank, ok := parseRank(row[hdr.rank])
				if !ok {
					continue
				}
				code := cell(row, hdr.code)
				name := cell(row, hdr.name)
				if code == "" && name == "" {
					orphans++
					continue
				}
				course := strings.TrimSpace(row[hdr.course])
				category := strings.TrimSpace(row[hdr.category])
				if course == "" || category == "" {
					continue
				}
				// Rows without a code are keyed by the printed name.
				if code == "" {
					code, byName[name] = name, true
				}
				if name != "" {
					names[code] = name
				}

				k := txKey{code, course, category}
				if _, ok := ranks[k]; !ok {
					keys = append(keys, k)
					pages[k] = page.Number
				}
				if rank > ranks[k] {
					ranks[k] = rank
				}

				base := ExtractCode(code)
				if base == "" {
					base = code
				}
				if courses[base] == nil {
					courses[base] = map[string]bool{}
				}
				courses[base][course] = true
			}
		}
	}

	if orphans > 0 {
		p.log.Warn("rows without institution dropped", zap.Int("rows", orphans))
	}

	for code, cs := range courses {
		if len(cs) > 1 {
			list := make([]string, 0, len(cs))
			for c := range cs {
				list = append(list, c)
			}
			sort.Strings(list)
			p.log.Warn("multiple courses for one college", zap.String("code", code), zap.Strings("courses", list))
		}
	}

	for _, k := range keys {
		name := names[k.code]
		code := k.code
		if byName[code] {
			code = ""
		}
		err := emit(model.RawRow{
			InstitutionName: name,
			InstituteCode:   code,
			ProgramName:     k.course,
			Category:        k.category,
			ClosingRank:     ranks[k],
			Round:           p.round,
			Page:            pages[k],
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type catColumn struct {
	category string
	idx      int
}

// matrix walks college blocks. The college comes from "M001 College Name"
// lines between tables or rank-less rows inside them; category columns come
// from the nearest header row and reset whenever the column count changes.
func (p *Parser) matrix(doc *doctable.Document, emit func(model.RawRow) error) error {
	var (
		code, name string
		lastCols   = -1
		cats       []catColumn
	)
	scan := func(text string) {
		if m := collegeHeader.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
			code, name = strings.ToUpper(m[1]), strings.TrimSpace(m[2])
		}
	}

	for _, page := range doc.Pages {
		prevBottom := -1
		for _, t := range page.Tables {
			for _, l := range page.Gap(prevBottom, t.Top) {
				scan(l.Text)
			}
			prevBottom = t.Bottom
			if len(t.Rows) == 0 {
				continue
			}

			header := upperRow(t.Rows[0])
			rows := t.Rows
			if len(header) != lastCols {
				cats = nil
				lastCols = len(header)
			}
			if countCategories(header) > 0 {
				cats = cats[:0]
				for i, v := range header {
					if IsCategory(v) {
						cats = append(cats, catColumn{category: v, idx: i})
					}
				}
				rows = rows[1:]
			}
			if len(cats) == 0 {
				continue
			}
			first := cats[0].idx
			if first < 1 {
				continue
			}

			for _, row := range rows {
				if len(row) <= first || !hasRanks(row[first:]) {
					scan(strings.Join(row, " "))
					continue
				}
				if code == "" {
					continue
				}
				course := strings.TrimSpace(row[first-1])
				if course == "" {
					continue
				}
				for _, c := range cats {
					if c.idx >= len(row) {
						continue
					}
					rank, ok := parseRank(row[c.idx])
					if !ok {
						continue
					}
					err := emit(model.RawRow{
						InstitutionName: name,
						InstituteCode:   code,
						ProgramName:     course,
						Category:        c.category,
						ClosingRank:     rank,
						Round:           p.round,
						Page:            page.Number,
					})
					if err != nil {
						return err
					}
				}
			}
		}
		for _, l := range page.Gap(prevBottom, math.MaxInt) {
			scan(l.Text)
		}
	}
	return nil
}

func upperCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// upperRow keeps cell positions, blanks included.
func upperRow(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	return out
}

func countCategories(header []string) int {
	n := 0
	for _, h := range header {
		if IsCategory(h) {
			n++
		}
	}
	return n
}

func anyContains(cells []string, needles ...string) bool {
	for _, c := range cells {
		for _, n := range needles {
			if strings.Contains(c, n) {
				return true
			}
		}
	}
	return false
}

func indexOf(cells []string, needles ...string) int {
	for i, c := range cells {
		for _, n := range needles {
			if strings.Contains(c, n) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func hasRanks(cells []string) bool {
	for _, c := range cells {
		if _, ok := parseRank(c); ok {
			return true
		}
	}
	return false
}

func parseRank(s string) (int, bool) {
	v := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return model.ParseRank(f)
}
