package mhneet

import (
	"regexp"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

const (
	// DetectionMethod tags candidates found by the selection-list classifier.
	DetectionMethod = "SemanticClassifier"
	contextHeader   = "MH_NEET_SELECTION_LIST"
	minLinkText     = 10
)

var roundTokens = map[string]int{
	"I": 1, "II": 2, "III": 3, "IV": 4, "V": 5, "VI": 6,
	"FIRST": 1, "SECOND": 2, "THIRD": 3, "FOURTH": 4, "FIFTH": 5,
}

// patterns is the compiled keyword taxonomy shared by the scanner and the
// artifact namer.
type patterns struct {
	target, blocked, roundSeqRe               []*regexp.Regexp
	specialStray, stray, institutional, cap   []*regexp.Regexp
	groupMBBS, groupAyush, groupAllied        []*regexp.Regexp
	revRevised, revCorrigendum, revSupplement []*regexp.Regexp
}

func compilePatterns(s *plugin.Strategy) *patterns {
	return &patterns{
		target:         s.MustCompile("target"),
		blocked:        s.MustCompile("blocked"),
		roundSeqRe:     s.MustCompile("round_seq"),
		specialStray:   s.MustCompile("special_stray"),
		stray:          s.MustCompile("stray"),
		institutional:  s.MustCompile("institutional"),
		cap:            s.MustCompile("cap"),
		groupMBBS:      s.MustCompile("group_mbbs_bds"),
		groupAyush:     s.MustCompile("group_ayush"),
		groupAllied:    s.MustCompile("group_allied"),
		revRevised:     s.MustCompile("rev_revised"),
		revCorrigendum: s.MustCompile("rev_corrigendum"),
		revSupplement:  s.MustCompile("rev_supplementary"),
	}
}

// roundSeq returns the round sequence named in text, or 0.
func (p *patterns) roundSeq(text string) int {
	for _, re := range p.roundSeqRe {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 || m[1] == "" {
			continue
		}
		if n, ok := roundTokens[m[1]]; ok {
			return n
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// courseGroup classifies text into MBBS_BDS, AYUSH or ALLIED.
func (p *patterns) courseGroup(text string) string {
	switch {
	case plugin.MatchAny(p.groupMBBS, text):
		return "MBBS_BDS"
	case plugin.MatchAny(p.groupAyush, text):
		return "AYUSH"
	case plugin.MatchAny(p.groupAllied, text):
		return "ALLIED"
	}
	return ""
}

// SelectionScanner accepts PDF links whose text names a selection list and
// carries a round sequence.
type SelectionScanner struct {
	pat *patterns
	log *zap.Logger
}

// Extract implements scanner.Scanner.
func (s *SelectionScanner) Extract(page []byte, baseURL string) ([]model.Candidate, error) {
	doc, err := scanner.ParseHTML(page)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []model.Candidate
	for _, link := range scanner.Links(doc) {
		href := scanner.Attr(link, "href")
		if !scanner.IsPDF(href) {
			continue
		}
		full, ok := scanner.ResolveURL(baseURL, href)
		if !ok || seen[full] {
			continue
		}
		seen[full] = true

		raw := scanner.Text(link, " ")
		if utf8.RuneCountInString(raw) < minLinkText && link.Parent != nil {
			raw = scanner.Text(link.Parent, " ")
		}
		text := scanner.NormalizeText(raw)

		if !plugin.MatchAny(s.pat.target, text) || plugin.MatchAny(s.pat.blocked, text) {
			continue
		}
		round := s.pat.roundSeq(text)
		if round < 1 {
			s.log.Warn("selection list without round sequence", zap.String("text", text), zap.String("url", full))
			continue
		}
		out = append(out, model.Candidate{
			URL:             full,
			LinkText:        raw,
			ContextText:     contextHeader,
			Round:           round,
			DetectionMethod: DetectionMethod,
		})
	}
	return out, nil
}
