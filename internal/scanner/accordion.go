package scanner

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/sells-group/cutoff-ingest/internal/model"
)

// Default header and boundary tags for accordion-style notification pages.
var (
	DefaultHeaderTags = []string{"button", "h5", "strong", "span", "p", "div"}
	DefaultStopTags   = []string{"h5", "button", "h4", "h3"}
)

// AccordionConfig configures an Accordion scanner.
type AccordionConfig struct {
	// Positive and Negative gate block headers: a header qualifies when its
	// fingerprint contains a positive keyword and no negative one.
	Positive []string
	Negative []string
	// ChildNegative rejects individual links inside a qualified block.
	// Links are never re-checked against Positive.
	ChildNegative []string
	HeaderTags    []string
	StopTags      []string
	MinHeaderLen  int
	Rounds        RoundMatcher
	Method        string
}

// Accordion finds notification blocks by their header text, then collects
// the PDF links in each block's scope. Scope is the collapsible container the
// header points at, or failing that the header's following siblings up to the
// next header-like element.
type Accordion struct {
	cfg      AccordionConfig
	posFP    []string
	negFP    []string
	childNeg []string
}

// NewAccordion precomputes keyword fingerprints.
func NewAccordion(cfg AccordionConfig) *Accordion {
	if len(cfg.HeaderTags) == 0 {
		cfg.HeaderTags = DefaultHeaderTags
	}
	if len(cfg.StopTags) == 0 {
		cfg.StopTags = DefaultStopTags
	}
	if cfg.MinHeaderLen == 0 {
		cfg.MinHeaderLen = 5
	}
	if cfg.Method == "" {
		cfg.Method = "ContextMatch"
	}
	a := &Accordion{cfg: cfg}
	for _, k := range cfg.Positive {
		a.posFP = append(a.posFP, Fingerprint(k))
	}
	for _, k := range cfg.Negative {
		a.negFP = append(a.negFP, Fingerprint(k))
	}
	for _, k := range cfg.ChildNegative {
		a.childNeg = append(a.childNeg, NormalizeText(k))
	}
	return a
}

// Extract implements Scanner.
func (a *Accordion) Extract(page []byte, baseURL string) ([]model.Candidate, error) {
	doc, err := ParseHTML(page)
	if err != nil {
		return nil, err
	}

	seen := dedupe{}
	var out []model.Candidate

	headers := FindAll(doc, func(n *html.Node) bool { return IsTag(n, a.cfg.HeaderTags...) })
	for _, h := range headers {
		if len(Links(h)) > 0 {
			continue
		}
		raw := Text(h, " ")
		if utf8.RuneCountInString(raw) < a.cfg.MinHeaderLen {
			continue
		}

		fp := Fingerprint(raw)
		if !ContainsAny(fp, a.posFP) || ContainsAny(fp, a.negFP) {
			continue
		}

		round := a.cfg.Rounds.Match(NormalizeText(raw))
		if round < 1 {
			continue
		}

		for _, link := range a.scope(doc, h) {
			full, ok := ResolveURL(baseURL, Attr(link, "href"))
			if !ok || !IsPDF(full) {
				continue
			}
			text := Text(link, " ")
			if ContainsAny(NormalizeText(text), a.childNeg) {
				continue
			}
			if !seen.add(full) {
				continue
			}
			out = append(out, model.Candidate{
				URL:             full,
				LinkText:        text,
				ContextText:     raw,
				Round:           round,
				DetectionMethod: a.cfg.Method,
			})
		}
	}
	return out, nil
}

func (a *Accordion) scope(doc, header *html.Node) []*html.Node {
	target := Attr(header, "data-target")
	if target == "" {
		target = Attr(header, "aria-controls")
	}
	if target != "" {
		if el := ElementByID(doc, strings.ReplaceAll(target, "#", "")); el != nil {
			if links := Links(el); len(links) > 0 {
				return links
			}
		}
	}

	var links []*html.Node
	for sib := header.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode {
			continue
		}
		if IsTag(sib, a.cfg.StopTags...) {
			break
		}
		if IsLink(sib) {
			links = append(links, sib)
		}
		links = append(links, Links(sib)...)
	}
	return links
}
