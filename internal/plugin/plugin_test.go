package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cutoff-ingest/internal/doctable"
	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

type nopScanner struct{}

func (nopScanner) Extract([]byte, string) ([]model.Candidate, error) { return nil, nil }

type nopAdapter struct{ exam string }

func (a nopAdapter) ExamCode() string { return a.exam }
func (nopAdapter) StateCode(model.RawRow) string { return "KA" }
func (nopAdapter) ResolveRound(model.RawRow) (int, error) { return 1, nil }
func (nopAdapter) GenerateSlug(model.RawRow) (string, error) { return "X", nil }
func (nopAdapter) Attributes(model.RawRow) (model.PolicyAttributes, error) {
	return model.PolicyAttributes{}, nil
}
func (nopAdapter) Descriptive(model.RawRow) model.Descriptive { return model.Descriptive{} }

func testPlugin(exam string) *Plugin {
	return &Plugin{
		ExamCode: exam,
		Seeds:    map[int]string{2024: "https://a.example/24", 2025: "https://a.example/25"},
		Scanner:  nopScanner{},
		Namer:    scanner.NamerFunc(func(c model.Candidate) scanner.Naming { return scanner.Naming{Clean: c.LinkText} }),
		NewParser: func(*model.Artifact) (Parser, error) {
			return ParserFunc(func(*doctable.Document, func(model.RawRow) error) error { return nil }), nil
		},
		Adapter: nopAdapter{exam: exam},
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(testPlugin("KCET"), testPlugin("NEET_KA"))
	require.NoError(t, err)

	p, err := r.Get("kcet")
	require.NoError(t, err)
	assert.Equal(t, "KCET", p.ExamCode)
	assert.Equal(t, []string{"KCET", "NEET_KA"}, r.Exams())
	assert.Len(t, r.All(), 2)

	_, err = r.Get("JEE")
	assert.True(t, errors.Is(err, ErrUnknownExam))
}

func TestRegistry_Duplicate(t *testing.T) {
	_, err := NewRegistry(testPlugin("KCET"), testPlugin("KCET"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestPlugin_Validate(t *testing.T) {
	p := testPlugin("KCET")
	p.Adapter = nopAdapter{exam: "NEET_KA"}
	assert.Error(t, p.Validate())

	p = testPlugin("KCET")
	p.NewParser = nil
	assert.Error(t, p.Validate())

	p = testPlugin("KCET")
	p.Seeds = nil
	assert.Error(t, p.Validate())
}

func TestPlugin_SeedAndYears(t *testing.T) {
	p := testPlugin("KCET")
	assert.Equal(t, []int{2025, 2024}, p.Years())

	u, err := p.Seed(2024)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/24", u)

	_, err = p.Seed(2019)
	assert.Error(t, err)
}

const testStrategy = `
exam: KCET
state: KA
seeds:
  2025: https://cet.example/ugcet2025
positive: [CUTOFF]
negative: [FEE]
child_negative: [LINK]
rounds:
  max_digit: 4
  rules:
    - pattern: 'second\s+extended'
      round: 3
    - pattern: 'first'
      round: 1
patterns:
  trash: ['\bFEE\b', 'ಶುಲ್ಕ']
`

func TestLoadStrategy(t *testing.T) {
	s, err := LoadStrategy([]byte(testStrategy))
	require.NoError(t, err)
	assert.Equal(t, "KCET", s.Exam)
	assert.Equal(t, "https://cet.example/ugcet2025", s.Seeds[2025])

	m, err := s.RoundMatcher()
	require.NoError(t, err)
	assert.Equal(t, 3, m.Match("SECOND EXTENDED ROUND"))
	assert.Equal(t, 1, m.Match("First Round"))
	assert.Equal(t, 2, m.Match("ROUND 2"))

	trash := s.MustCompile("trash")
	assert.True(t, MatchAny(trash, "fee notice"))
	assert.False(t, MatchAny(trash, "feedback"))
	assert.Nil(t, s.MustCompile("missing"))
}

func TestLoadStrategy_Invalid(t *testing.T) {
	_, err := LoadStrategy([]byte("state: KA\n"))
	assert.Error(t, err)

	_, err = LoadStrategy([]byte("exam: X\n"))
	assert.Error(t, err)

	_, err = LoadStrategy([]byte("exam: X\nseeds: {2025: u}\nrounds: {rules: [{pattern: '(', round: 1}]}\n"))
	assert.Error(t, err)

	assert.Panics(t, func() { MustStrategy([]byte("::")) })
}

func TestStrategy_Accordion(t *testing.T) {
	s := MustStrategy([]byte(testStrategy))
	a, err := s.Accordion()
	require.NoError(t, err)

	page := `<div><h5>First Round Cutoff</h5>
		<a href="/a.pdf">Engineering</a>
		<a href="/b.pdf">Fee link</a>
		<a href="/c.pdf">Option link</a></div>`
	got, err := a.Extract([]byte(page), "https://cet.example/")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://cet.example/a.pdf", got[0].URL)
	assert.Equal(t, 1, got[0].Round)
}
