// Package neetka is the Karnataka NEET counselling source on the KEA portal.
// Documents are either candidate allotment lists or category cutoff matrices.
package neetka

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

//go:embed strategy.yaml
var strategyYAML []byte

// New returns the NEET_KA plugin.
func New() (*plugin.Plugin, error) {
	s, err := plugin.LoadStrategy(strategyYAML)
	if err != nil {
		return nil, err
	}
	sc, err := NewLinkScanner(s)
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
			return NewParser(art.Round()), nil
		},
		Adapter: Adapter{},
	}, nil
}

// NameArtifact names a candidate NEETKA_{STREAM}_R{n} when the scanner
// recognised its stream; otherwise the link text is kept.
func NameArtifact(c model.Candidate) scanner.Naming {
	raw := strings.TrimSpace(c.LinkText)
	stream, _ := c.Metadata["stream"].(string)
	if stream == "" || c.Round < 1 {
		return scanner.Naming{Clean: raw, Original: raw}
	}
	return scanner.Naming{
		Clean:        fmt.Sprintf("NEETKA_%s_R%d", stream, c.Round),
		Original:     raw,
		Standardized: true,
	}
}
