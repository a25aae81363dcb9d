package doctable

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSX reads spreadsheet cutoff lists. Each sheet becomes a page and each
// row a line; empty cells are kept so columns stay aligned.
type XLSX struct {
	minCells int
}

// NewXLSX creates an XLSX extractor.
func NewXLSX(minCells int) *XLSX {
	return &XLSX{minCells: minCells}
}

// Extract implements Extractor.
func (x *XLSX) Extract(ctx context.Context, path string) (*Document, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "doctable: open xlsx")
	}

	doc := &Document{}
	for i, sheet := range f.Sheets {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "doctable: context cancelled")
		}
		var lines []Line
		for y, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := rowToStrings(row)
			if nonEmpty(cells) == 0 {
				continue
			}
			lines = append(lines, Line{Y: y, Text: joinNonEmpty(cells), Cells: cells})
		}
		doc.Pages = append(doc.Pages, Segment(i+1, lines, x.minCells))
	}
	return doc, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	end := len(cells)
	for end > 0 && cells[end-1] == "" {
		end--
	}
	return cells[:end]
}

func joinNonEmpty(cells []string) string {
	var parts []string
	for _, c := range cells {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}
