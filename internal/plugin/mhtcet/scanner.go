package mhtcet

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

const (
	// DetectionMethod tags candidates found through the document viewer.
	DetectionMethod = "ASP_NET_Viewer_Extractor"
	viewerPath      = "ViewPublicDocument.aspx"
)

// Quotas and seat types carried in candidate metadata.
const (
	QuotaAI       = "AI"
	QuotaMH       = "MH"
	QuotaDiploma  = "DIPLOMA"
	SeatRegular   = "REGULAR"
	SeatDiploma   = "DIPLOMA"
	quotaUnknown  = "UNK"
	metaQuota     = "quota"
	metaSeatType  = "seat_type"
	metaRoundName = "normalized_round_label"
)

var (
	romanRounds = map[string]int{"I": 1, "II": 2, "III": 3, "IV": 4, "V": 5, "VI": 6}
	dashes      = regexp.MustCompile(`[\-_\x{2010}-\x{2015}]+`)
	spaces      = regexp.MustCompile(`\s+`)
)

// normalizeLinkText upper-cases link text, drops NEW badges, turns hyphen
// runs into spaces and spells CUT OFF as one word.
func normalizeLinkText(s string) string {
	t := strings.ReplaceAll(strings.ToUpper(s), "NEW", "")
	t = dashes.ReplaceAllString(t, " ")
	t = strings.TrimSpace(spaces.ReplaceAllString(t, " "))
	return strings.ReplaceAll(t, "CUT OFF", "CUTOFF")
}

type patterns struct {
	round, cutoff, blocked         []*regexp.Regexp
	diploma, allIndia, maharashtra []*regexp.Regexp
}

func compilePatterns(s *plugin.Strategy) *patterns {
	return &patterns{
		round:       s.MustCompile("round"),
		cutoff:      s.MustCompile("cutoff"),
		blocked:     s.MustCompile("blocked"),
		diploma:     s.MustCompile("diploma"),
		allIndia:    s.MustCompile("all_india"),
		maharashtra: s.MustCompile("maharashtra"),
	}
}

// roundNumber returns the round named in normalized text, or 0.
func (p *patterns) roundNumber(text string) int {
	for _, re := range p.round {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if n, ok := romanRounds[m[1]]; ok {
			return n
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

// quota classifies normalized text as DIPLOMA, AI, MH or UNK. All India is
// checked before Maharashtra since AI lists also name the state.
func (p *patterns) quota(text string) string {
	switch {
	case plugin.MatchAny(p.diploma, text):
		return QuotaDiploma
	case plugin.MatchAny(p.allIndia, text):
		return QuotaAI
	case plugin.MatchAny(p.maharashtra, text):
		return QuotaMH
	}
	return quotaUnknown
}

// ViewerScanner finds cutoff lists served through the portal's ASP.NET
// document viewer. Every accepted candidate carries its quota and seat type
// in metadata for parser routing.
type ViewerScanner struct {
	pat *patterns
	log *zap.Logger
}

// Extract implements scanner.Scanner.
func (s *ViewerScanner) Extract(page []byte, baseURL string) ([]model.Candidate, error) {
	doc, err := scanner.ParseHTML(page)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []model.Candidate
	for _, link := range scanner.Links(doc) {
		href := scanner.Attr(link, "href")
		if !strings.Contains(href, viewerPath) {
			continue
		}
		full, ok := scanner.ResolveURL(baseURL, href)
		if !ok || seen[full] {
			continue
		}

		raw := scanner.Text(link, " ")
		text := normalizeLinkText(raw)
		if !plugin.MatchAny(s.pat.round, text) || !plugin.MatchAny(s.pat.cutoff, text) {
			continue
		}
		if plugin.MatchAny(s.pat.blocked, text) {
			continue
		}
		round := s.pat.roundNumber(text)
		if round < 1 {
			continue
		}

		meta := map[string]any{metaRoundName: "R" + strconv.Itoa(round)}
		switch q := s.pat.quota(text); q {
		case QuotaDiploma:
			meta[metaSeatType] = SeatDiploma
		case QuotaAI, QuotaMH:
			meta[metaQuota] = q
			meta[metaSeatType] = SeatRegular
		default:
			s.log.Warn("dropping cutoff list with unknown quota", zap.String("text", raw), zap.String("url", full))
			continue
		}

		seen[full] = true
		out = append(out, model.Candidate{
			URL:             full,
			LinkText:        raw,
			ContextText:     text,
			Round:           round,
			DetectionMethod: DetectionMethod,
			Metadata:        meta,
		})
	}
	return out, nil
}
