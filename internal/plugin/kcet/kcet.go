// Package kcet is the Karnataka Common Entrance Test source: accordion
// notification pages on the KEA portal and per-college category matrices.
package kcet

import (
	_ "embed"

	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

//go:embed strategy.yaml
var strategyYAML []byte

// New returns the KCET plugin.
func New() (*plugin.Plugin, error) {
	s, err := plugin.LoadStrategy(strategyYAML)
	if err != nil {
		return nil, err
	}
	sc, err := s.Accordion()
	if err != nil {
		return nil, err
	}
	return &plugin.Plugin{
		ExamCode:  ExamCode,
		StateCode: s.State,
		Seeds:     s.Seeds,
		Scanner:   sc,
		Namer:     scanner.NamerFunc(NameArtifact),
		NewParser: func(art *model.Artifact) (plugin.Parser, error) {
			return NewParser(SanitizeStream(art.RoundName), art.Round()), nil
		},
		Adapter: Adapter{},
	}, nil
}
