package neetka

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

// DetectionMethod tags candidates found by the link-centric scanner.
const DetectionMethod = "KEA_Link_Centric_Deep"

const (
	headerDepth   = 5
	maxContextLen = 150
)

var headerSiblingTags = []string{"h4", "h5", "h6", "strong", "thead", "b"}

// Streams named by the context anchors.
const (
	StreamMedical = "MEDICAL"
	StreamDental  = "DENTAL"
	StreamAyush   = "AYUSH"
)

// LinkScanner inspects every PDF link on the page regardless of where it
// sits in the DOM, judging it by the combined text of its nearest header,
// its parent and the link itself.
type LinkScanner struct {
	hardTrash []*regexp.Regexp
	softTrash []*regexp.Regexp
	semantic  []*regexp.Regexp
	strong    []*regexp.Regexp
	medical   []*regexp.Regexp
	dental    []*regexp.Regexp
	ayush     []*regexp.Regexp
	rounds    scanner.RoundMatcher
}

// NewLinkScanner builds the scanner from a validated strategy.
func NewLinkScanner(s *plugin.Strategy) (*LinkScanner, error) {
	rounds, err := s.RoundMatcher()
	if err != nil {
		return nil, err
	}
	return &LinkScanner{
		hardTrash: s.MustCompile("hard_trash"),
		softTrash: s.MustCompile("soft_trash"),
		semantic:  s.MustCompile("semantic"),
		strong:    s.MustCompile("context_strong"),
		medical:   s.MustCompile("medical"),
		dental:    s.MustCompile("dental"),
		ayush:     s.MustCompile("ayush"),
		rounds:    rounds,
	}, nil
}

// Extract implements scanner.Scanner.
func (s *LinkScanner) Extract(page []byte, baseURL string) ([]model.Candidate, error) {
	doc, err := scanner.ParseHTML(page)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []model.Candidate
	for _, link := range scanner.Links(doc) {
		full, ok := scanner.ResolveURL(baseURL, scanner.Attr(link, "href"))
		if !ok || seen[full] || !scanner.IsPDF(full) {
			continue
		}

		linkText := scanner.NormalizeText(scanner.Text(link, " "))
		parentText := ""
		if link.Parent != nil {
			parentText = scanner.NormalizeText(scanner.Text(link.Parent, " "))
		}
		header := nearestHeader(link)
		combined := header + " | " + parentText + " | " + linkText

		if plugin.MatchAny(s.hardTrash, combined) {
			continue
		}
		if !plugin.MatchAny(s.semantic, combined) {
			continue
		}
		if plugin.MatchAny(s.softTrash, combined) {
			continue
		}
		round := s.rounds.Match(combined)
		if round < 1 {
			continue
		}
		stream := s.stream(combined)
		if stream == "" && !plugin.MatchAny(s.strong, combined) {
			continue
		}

		seen[full] = true
		c := model.Candidate{
			URL:             full,
			LinkText:        linkText,
			ContextText:     truncate(header, maxContextLen),
			Round:           round,
			DetectionMethod: DetectionMethod,
		}
		if stream != "" {
			c.Metadata = map[string]any{"stream": stream}
		}
		out = append(out, c)
	}
	return out, nil
}

// stream names the discipline the text mentions, or "".
func (s *LinkScanner) stream(text string) string {
	switch {
	case plugin.MatchAny(s.medical, text):
		return StreamMedical
	case plugin.MatchAny(s.dental, text):
		return StreamDental
	case plugin.MatchAny(s.ayush, text):
		return StreamAyush
	}
	return ""
}

// nearestHeader walks up to five levels from the link. At each level it
// looks for a preceding heading-like sibling, then a preceding sibling with
// a header class, then a parent with a header class.
func nearestHeader(link *html.Node) string {
	cur := link
	for i := 0; i < headerDepth && cur != nil; i++ {
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if scanner.IsTag(sib, headerSiblingTags...) {
				return scanner.NormalizeText(scanner.Text(sib, " "))
			}
		}
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if hasHeaderClass(sib) {
				return scanner.NormalizeText(scanner.Text(sib, " "))
			}
		}
		if p := cur.Parent; p != nil && hasHeaderClass(p) {
			return scanner.NormalizeText(scanner.Text(p, " "))
		}
		cur = cur.Parent
	}
	return ""
}

func hasHeaderClass(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(scanner.Attr(n, "class")) {
		if strings.Contains(strings.ToLower(c), "header") {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
