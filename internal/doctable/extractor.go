package doctable

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cutoff-ingest/internal/config"
)

// Router dispatches on file extension: spreadsheets go to the XLSX reader,
// everything else to the PDF extractor.
type Router struct {
	pdf  Extractor
	xlsx Extractor
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.ExtractConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return &Router{
			pdf:  NewPdfToText(cfg.PdfToTextPath, cfg.MinCells),
			xlsx: NewXLSX(cfg.MinCells),
		}, nil
	default:
		return nil, eris.Errorf("doctable: unknown provider %q", cfg.Provider)
	}
}

// Extract implements Extractor.
func (r *Router) Extract(ctx context.Context, path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return r.xlsx.Extract(ctx, path)
	default:
		return r.pdf.Extract(ctx, path)
	}
}
