// Package mhneet covers the Maharashtra medical course portals run by the
// state CET cell: NEET UG, nursing and the all India quota AYUSH rounds.
// All three publish per-candidate selection lists in the same layout, so they
// share one scanner, namer and parser and differ only in seeds and quota.
package mhneet

import (
	"embed"

	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
)

//go:embed *.yaml
var strategies embed.FS

// Exam codes.
const (
	ExamUG       = "MH_NEET_UG"
	ExamNursing  = "MH_NURSING"
	ExamAyushAIQ = "MH_AYUSH_AIQ"
)

type variant struct {
	file string
	// program returns the program code for an artifact.
	program func(pat *patterns, art *model.Artifact) string
	// forceQuota pins every row to one quota.
	forceQuota string
}

// NewUG returns the MH_NEET_UG plugin.
func NewUG() (*plugin.Plugin, error) {
	return build(variant{
		file:    "ug.yaml",
		program: func(pat *patterns, art *model.Artifact) string { return pat.programCode(art) },
	})
}

// NewNursing returns the MH_NURSING plugin.
func NewNursing() (*plugin.Plugin, error) {
	return build(variant{
		file:    "nursing.yaml",
		program: func(*patterns, *model.Artifact) string { return "NURSING" },
	})
}

// NewAyushAIQ returns the MH_AYUSH_AIQ plugin. Every seat on this portal is
// an all India quota seat whatever the list prints.
func NewAyushAIQ() (*plugin.Plugin, error) {
	return build(variant{
		file:       "ayush_aiq.yaml",
		program:    func(*patterns, *model.Artifact) string { return "AYUSH" },
		forceQuota: "AIQ",
	})
}

func loadStrategy(file string) (*plugin.Strategy, error) {
	own, err := strategies.ReadFile(file)
	if err != nil {
		return nil, err
	}
	shared, err := strategies.ReadFile("patterns.yaml")
	if err != nil {
		return nil, err
	}
	doc := make([]byte, 0, len(own)+len(shared)+1)
	doc = append(doc, own...)
	doc = append(doc, '\n')
	doc = append(doc, shared...)
	return plugin.LoadStrategy(doc)
}

func build(v variant) (*plugin.Plugin, error) {
	s, err := loadStrategy(v.file)
	if err != nil {
		return nil, err
	}
	pat := compilePatterns(s)
	exam := s.Exam
	return &plugin.Plugin{
		ExamCode:  exam,
		StateCode: s.State,
		Seeds:     s.Seeds,
		Scanner: &SelectionScanner{
			pat: pat,
			log: zap.L().With(zap.String("component", "mhneet.scanner"), zap.String("exam", exam)),
		},
		Namer: namer{exam: exam, pat: pat},
		NewParser: func(art *model.Artifact) (plugin.Parser, error) {
			cfg := ParserConfig{
				Exam:       exam,
				BaseQuota:  art.MetaString("quota"),
				ForceQuota: v.forceQuota,
				Program:    v.program(pat, art),
				Round:      art.Round(),
			}
			if v.forceQuota != "" {
				cfg.BaseQuota = v.forceQuota
			}
			return NewParser(cfg), nil
		},
		Adapter: Adapter{Exam: exam},
	}, nil
}
