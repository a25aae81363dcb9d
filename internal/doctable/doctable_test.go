package doctable

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/cutoff-ingest/internal/config"
)

const layoutSample = `            KEA UGCET 2025 SECOND ROUND CUTOFF
E001 University Visvesvaraya College of Engineering K R Circle Bangalore

  Course Name                    1G       1K      GM      SCG
  AI Artificial Intelligence     12345    --      4567    23456

  CS Computer Science            8000     9100    2100    15000
E002 S K S J T Institute of Engineering
  CE Civil Engineering           70000    --      45000   90000
` + "\f" + `Page 2
  ME Mechanical                  60000    61000   40000   88000
` + "\f"

func TestSplitCells(t *testing.T) {
	assert.Equal(t, []string{"AI Artificial Intelligence", "12345", "--", "4567"},
		SplitCells("  AI Artificial Intelligence     12345    --   4567  "))
	assert.Equal(t, []string{"a", "b"}, SplitCells("a\tb"))
	assert.Nil(t, SplitCells("   "))
}

func TestParseLayout(t *testing.T) {
	doc := ParseLayout(layoutSample, 3)
	require.Len(t, doc.Pages, 2)

	p1 := doc.Pages[0]
	assert.Equal(t, 1, p1.Number)
	require.Len(t, p1.Tables, 2)

	first := p1.Tables[0]
	require.Len(t, first.Rows, 3)
	assert.Equal(t, []string{"Course Name", "1G", "1K", "GM", "SCG"}, first.Rows[0])
	assert.Equal(t, 5, first.Columns())
	assert.Equal(t, 3, first.Top)
	assert.Equal(t, 6, first.Bottom)

	gap := p1.Gap(first.Bottom, p1.Tables[1].Top)
	require.Len(t, gap, 1)
	assert.Equal(t, "E002 S K S J T Institute of Engineering", gap[0].Text)

	before := p1.Gap(-1, first.Top)
	require.Len(t, before, 2)
	assert.Contains(t, before[1].Text, "E001 University Visvesvaraya")

	p2 := doc.Pages[1]
	require.Len(t, p2.Tables, 1)
	assert.Equal(t, "Page 2", p2.Lines[0].Text)
	assert.Equal(t, 3, doc.TableCount())
	assert.Len(t, doc.Sample(1), 2)
}

func TestPage_Rows(t *testing.T) {
	p1 := ParseLayout(layoutSample, 3).Pages[0]
	rows := p1.Rows()
	require.Len(t, rows, 7)
	assert.Equal(t, []string{"KEA UGCET 2025 SECOND ROUND CUTOFF"}, rows[0])
	assert.Equal(t, "Course Name", rows[2][0])
	assert.Equal(t, []string{"E002 S K S J T Institute of Engineering"}, rows[5])
	assert.Equal(t, "CE Civil Engineering", rows[6][0])
}

func TestSegment_DefaultMinCells(t *testing.T) {
	p := Segment(1, []Line{
		{Y: 0, Text: "a b", Cells: []string{"a", "b"}},
		{Y: 1, Text: "a b c", Cells: []string{"a", "b", "c"}},
	}, 0)
	require.Len(t, p.Tables, 1)
	require.Len(t, p.Lines, 1)
}

func writeXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Cutoff")
	require.NoError(t, err)
	for _, data := range rows {
		row := sheet.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "cutoff.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestXLSX_Extract(t *testing.T) {
	path := writeXLSX(t, [][]string{
		{"1002 - Government College of Engineering, Amravati"},
		{"Stage", "GOPENS", "GSCS", ""},
		{"I", "12345 (95.1)", "", "40000 (80.2)"},
	})

	doc, err := NewXLSX(3).Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)
	p := doc.Pages[0]
	require.Len(t, p.Lines, 1)
	assert.Equal(t, "1002 - Government College of Engineering, Amravati", p.Lines[0].Text)
	require.Len(t, p.Tables, 1)
	assert.Equal(t, []string{"Stage", "GOPENS", "GSCS"}, p.Tables[0].Rows[0])
	assert.Equal(t, []string{"I", "12345 (95.1)", "", "40000 (80.2)"}, p.Tables[0].Rows[1])
}

func TestNewExtractor(t *testing.T) {
	ext, err := NewExtractor(config.ExtractConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext"})
	require.NoError(t, err)
	assert.IsType(t, &Router{}, ext)

	_, err = NewExtractor(config.ExtractConfig{Provider: "cloud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "cloud"`)
}

func TestRouter_XLSXByExtension(t *testing.T) {
	path := writeXLSX(t, [][]string{{"a", "b", "c"}})
	ext, err := NewExtractor(config.ExtractConfig{Provider: "local", PdfToTextPath: "/nonexistent/pdftotext"})
	require.NoError(t, err)

	doc, err := ext.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.TableCount())
}

func TestPdfToText_MissingBinary(t *testing.T) {
	_, err := NewPdfToText("/nonexistent/pdftotext", 3).Extract(context.Background(), "x.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}
