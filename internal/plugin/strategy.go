package plugin

import (
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

// Strategy is the declarative part of a plugin: seed pages, keyword gates
// and round rules. Plugins embed it as strategy.yaml.
type Strategy struct {
	Exam  string         `yaml:"exam"`
	State string         `yaml:"state"`
	Seeds map[int]string `yaml:"seeds"`

	// Accordion-style gates.
	Positive      []string `yaml:"positive"`
	Negative      []string `yaml:"negative"`
	ChildNegative []string `yaml:"child_negative"`

	Rounds RoundSpec `yaml:"rounds"`

	// Patterns holds named regular expression lists for link-centric
	// scanners. Every pattern is compiled case-insensitively.
	Patterns map[string][]string `yaml:"patterns"`
}

// RoundSpec lists ordered round rules. The first matching rule wins.
type RoundSpec struct {
	MaxDigit int             `yaml:"max_digit"`
	Rules    []RoundRuleSpec `yaml:"rules"`
}

// RoundRuleSpec maps a pattern to a round number.
type RoundRuleSpec struct {
	Pattern string `yaml:"pattern"`
	Round   int    `yaml:"round"`
}

// LoadStrategy decodes and validates a strategy document.
func LoadStrategy(data []byte) (*Strategy, error) {
	var s Strategy
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "plugin: decode strategy")
	}
	if s.Exam == "" {
		return nil, eris.New("plugin: strategy has no exam")
	}
	if len(s.Seeds) == 0 {
		return nil, eris.Errorf("plugin: strategy %s has no seeds", s.Exam)
	}
	if _, err := s.RoundMatcher(); err != nil {
		return nil, err
	}
	for name := range s.Patterns {
		if _, err := s.Compile(name); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// MustStrategy is LoadStrategy for embedded documents.
func MustStrategy(data []byte) *Strategy {
	s, err := LoadStrategy(data)
	if err != nil {
		panic(err)
	}
	return s
}

// RoundMatcher compiles the round rules.
func (s *Strategy) RoundMatcher() (scanner.RoundMatcher, error) {
	m := scanner.RoundMatcher{MaxDigit: s.Rounds.MaxDigit}
	for _, r := range s.Rounds.Rules {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return scanner.RoundMatcher{}, eris.Wrapf(err, "plugin: %s round pattern %q", s.Exam, r.Pattern)
		}
		m.Rules = append(m.Rules, scanner.RoundRule{Pattern: re, Round: r.Round})
	}
	return m, nil
}

// Compile returns the named pattern list. An unknown name yields nil.
func (s *Strategy) Compile(name string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, p := range s.Patterns[name] {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, eris.Wrapf(err, "plugin: %s pattern %s %q", s.Exam, name, p)
		}
		out = append(out, re)
	}
	return out, nil
}

// MustCompile is Compile for strategies already validated by LoadStrategy.
func (s *Strategy) MustCompile(name string) []*regexp.Regexp {
	out, err := s.Compile(name)
	if err != nil {
		panic(err)
	}
	return out
}

// Accordion builds an accordion scanner from the keyword gates. Child links
// are rejected by the header negatives as well as the child-only list.
func (s *Strategy) Accordion() (*scanner.Accordion, error) {
	rounds, err := s.RoundMatcher()
	if err != nil {
		return nil, err
	}
	child := make([]string, 0, len(s.Negative)+len(s.ChildNegative))
	child = append(child, s.Negative...)
	child = append(child, s.ChildNegative...)
	return scanner.NewAccordion(scanner.AccordionConfig{
		Positive:      s.Positive,
		Negative:      s.Negative,
		ChildNegative: child,
		Rounds:        rounds,
	}), nil
}

// MatchAny reports whether any pattern matches text.
func MatchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
