// Package mhtcet is the Maharashtra CET cell source for engineering and
// pharmacy admissions. Cutoff lists are served through an ASP.NET document
// viewer; state lists are per-course category matrices and All India and
// Diploma lists are flat tables.
package mhtcet

import (
	"embed"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
)

//go:embed *.yaml
var strategies embed.FS

// Exam codes.
const (
	ExamBE     = "MHTCET_BE"
	ExamPharma = "MHTCET_PHARMA"
)

// NewBE returns the MHTCET_BE plugin.
func NewBE() (*plugin.Plugin, error) { return build("be.yaml") }

// NewPharma returns the MHTCET_PHARMA plugin.
func NewPharma() (*plugin.Plugin, error) { return build("pharma.yaml") }

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

func build(file string) (*plugin.Plugin, error) {
	s, err := loadStrategy(file)
	if err != nil {
		return nil, err
	}
	pat := compilePatterns(s)
	exam := strings.ToUpper(s.Exam)
	return &plugin.Plugin{
		ExamCode:  exam,
		StateCode: s.State,
		Seeds:     s.Seeds,
		Scanner: &ViewerScanner{
			pat: pat,
			log: zap.L().With(zap.String("component", "mhtcet.scanner"), zap.String("exam", exam)),
		},
		Namer: namer{course: strings.TrimPrefix(exam, "MHTCET_"), pat: pat},
		NewParser: func(art *model.Artifact) (plugin.Parser, error) {
			return NewParser(exam, art), nil
		},
		Adapter: NewAdapter(exam),
	}, nil
}

// ArtifactConfig resolves the quota and seat type of an artifact. Discovery
// metadata wins; without it the round name decides.
func ArtifactConfig(exam string, art *model.Artifact) ParserConfig {
	name := strings.ToUpper(art.RoundName)
	cfg := ParserConfig{
		Exam:     exam,
		Quota:    art.MetaString(metaQuota),
		SeatType: art.MetaString(metaSeatType),
		Round:    art.Round(),
	}
	if cfg.Quota == "" {
		switch {
		case strings.Contains(name, "_AI"):
			cfg.Quota = QuotaAI
		case strings.Contains(name, QuotaDiploma) || cfg.SeatType == SeatDiploma:
			cfg.Quota = QuotaDiploma
		default:
			cfg.Quota = QuotaMH
		}
	}
	if cfg.SeatType == "" {
		cfg.SeatType = SeatRegular
	}
	return cfg
}

// NewParser routes an artifact: All India and Diploma lists are flat tables,
// everything else is a state category matrix.
func NewParser(exam string, art *model.Artifact) plugin.Parser {
	cfg := ArtifactConfig(exam, art)
	if cfg.Quota == QuotaAI || cfg.Quota == QuotaDiploma {
		return NewTabularParser(cfg)
	}
	return NewSpatialParser(cfg)
}
