// Package doctable exposes the page, line and table structure of cutoff
// documents. Tables are runs of multi-cell lines; everything else on a page
// is a text line that parsers scan for positional context.
package doctable

import (
	"context"
	"regexp"
	"strings"
)

// DefaultMinCells is the cell count from which a line belongs to a table.
const DefaultMinCells = 3

// Document is an extracted source document.
type Document struct {
	Pages []Page
}

// Page is one page (or sheet) of a document.
type Page struct {
	Number int
	// Lines holds the text lines that are not part of any table.
	Lines  []Line
	Tables []Table
}

// Line is a text line at vertical position Y.
type Line struct {
	Y     int
	Text  string
	Cells []string
}

// Table is a run of rows spanning [Top, Bottom] on its page.
type Table struct {
	Top    int
	Bottom int
	Rows   [][]string
}

// Extractor turns a document on disk into a Document.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Document, error)
}

// Columns returns the widest row length.
func (t Table) Columns() int {
	n := 0
	for _, r := range t.Rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}

// Gap returns the text lines strictly between two vertical positions.
func (p Page) Gap(after, before int) []Line {
	var out []Line
	for _, l := range p.Lines {
		if l.Y > after && l.Y < before {
			out = append(out, l)
		}
	}
	return out
}

// Rows returns every line of the page as cells in reading order, with text
// lines and table rows interleaved by position.
func (p Page) Rows() [][]string {
	var out [][]string
	li := 0
	for _, t := range p.Tables {
		for ; li < len(p.Lines) && p.Lines[li].Y < t.Top; li++ {
			out = append(out, p.Lines[li].Cells)
		}
		out = append(out, t.Rows...)
	}
	for ; li < len(p.Lines); li++ {
		out = append(out, p.Lines[li].Cells)
	}
	return out
}

// Sample returns the tables on the first n pages.
func (d *Document) Sample(n int) []Table {
	var out []Table
	for i, p := range d.Pages {
		if i >= n {
			break
		}
		out = append(out, p.Tables...)
	}
	return out
}

// TableCount is the number of tables across all pages.
func (d *Document) TableCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Tables)
	}
	return n
}

var cellSep = regexp.MustCompile(`\t+|\s{2,}`)

// SplitCells splits a layout-preserved text line on tabs and runs of two or
// more spaces.
func SplitCells(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	return cellSep.Split(line, -1)
}

func nonEmpty(cells []string) int {
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

// Segment groups a page's lines into tables and text lines. A line with at
// least minCells non-empty cells extends the current table; any other line
// closes it.
func Segment(number int, lines []Line, minCells int) Page {
	if minCells <= 0 {
		minCells = DefaultMinCells
	}
	p := Page{Number: number}
	var cur *Table
	closeTable := func() {
		if cur != nil {
			p.Tables = append(p.Tables, *cur)
			cur = nil
		}
	}
	for _, l := range lines {
		if nonEmpty(l.Cells) >= minCells {
			if cur == nil {
				cur = &Table{Top: l.Y}
			}
			cur.Rows = append(cur.Rows, l.Cells)
			cur.Bottom = l.Y
			continue
		}
		closeTable()
		p.Lines = append(p.Lines, l)
	}
	closeTable()
	return p
}
