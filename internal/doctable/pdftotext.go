package doctable

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts layout-preserved text with the poppler pdftotext CLI.
type PdfToText struct {
	binPath  string
	minCells int
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string, minCells int) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath, minCells: minCells}
}

// Extract runs pdftotext -layout on the given PDF and segments its pages.
func (p *PdfToText) Extract(ctx context.Context, pdfPath string) (*Document, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "doctable: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return ParseLayout(stdout.String(), p.minCells), nil
}

// ParseLayout segments pdftotext -layout output. Pages are separated by form
// feeds; a line's Y is its index on the page.
func ParseLayout(text string, minCells int) *Document {
	doc := &Document{}
	pages := strings.Split(text, "\f")
	for i, raw := range pages {
		if strings.TrimSpace(raw) == "" && i == len(pages)-1 {
			break
		}
		var lines []Line
		for y, l := range strings.Split(raw, "\n") {
			l = strings.TrimRight(l, " \r")
			if strings.TrimSpace(l) == "" {
				continue
			}
			lines = append(lines, Line{Y: y, Text: strings.TrimSpace(l), Cells: SplitCells(l)})
		}
		doc.Pages = append(doc.Pages, Segment(i+1, lines, minCells))
	}
	return doc
}
