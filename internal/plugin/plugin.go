// Package plugin binds each exam to its document scanner, table parser and
// policy adapter. The binding is an explicit registration table built once
// per process; see plugin/all.
package plugin

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cutoff-ingest/internal/doctable"
	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/policy"
	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

// Parser streams rows out of an extracted document. Parse stops at the first
// error returned by emit.
type Parser interface {
	Parse(doc *doctable.Document, emit func(model.RawRow) error) error
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(doc *doctable.Document, emit func(model.RawRow) error) error

// Parse calls f(doc, emit).
func (f ParserFunc) Parse(doc *doctable.Document, emit func(model.RawRow) error) error {
	return f(doc, emit)
}

// Plugin is one exam's source binding.
type Plugin struct {
	ExamCode  string
	StateCode string
	// Seeds maps an admission year to the authority page listing its notices.
	Seeds   map[int]string
	Scanner scanner.Scanner
	Namer   scanner.Namer
	// NewParser builds a parser for one approved artifact. Parsers are
	// stateful and must not be shared between documents.
	NewParser func(art *model.Artifact) (Parser, error)
	Adapter   policy.Adapter
}

// Seed returns the seed page for year.
func (p *Plugin) Seed(year int) (string, error) {
	u, ok := p.Seeds[year]
	if !ok {
		return "", eris.Errorf("plugin: %s has no seed url for %d", p.ExamCode, year)
	}
	return u, nil
}

// Years returns the seeded years, newest first.
func (p *Plugin) Years() []int {
	out := make([]int, 0, len(p.Seeds))
	for y := range p.Seeds {
		out = append(out, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// Validate checks that every part of the binding is present.
func (p *Plugin) Validate() error {
	switch {
	case p.ExamCode == "":
		return eris.New("plugin: empty exam code")
	case len(p.Seeds) == 0:
		return eris.Errorf("plugin: %s has no seeds", p.ExamCode)
	case p.Scanner == nil:
		return eris.Errorf("plugin: %s has no scanner", p.ExamCode)
	case p.Namer == nil:
		return eris.Errorf("plugin: %s has no namer", p.ExamCode)
	case p.NewParser == nil:
		return eris.Errorf("plugin: %s has no parser factory", p.ExamCode)
	case p.Adapter == nil:
		return eris.Errorf("plugin: %s has no policy adapter", p.ExamCode)
	case p.Adapter.ExamCode() != p.ExamCode:
		return eris.Errorf("plugin: %s adapter reports exam %q", p.ExamCode, p.Adapter.ExamCode())
	}
	return nil
}
