package scanner

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// ParseHTML parses a seed page.
func ParseHTML(page []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, eris.Wrap(err, "scanner: parse html")
	}
	return doc, nil
}

// IsTag reports whether n is an element with one of the given tag names.
func IsTag(n *html.Node, tags ...string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, t := range tags {
		if n.Data == t {
			return true
		}
	}
	return false
}

// Attr returns the value of an attribute, or "".
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// IsLink reports whether n is an anchor carrying an href.
func IsLink(n *html.Node) bool {
	return IsTag(n, "a") && HasAttr(n, "href")
}

// FindAll returns the descendants of n that satisfy match, in document order.
func FindAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// Links returns every anchor with an href below n.
func Links(n *html.Node) []*html.Node {
	return FindAll(n, IsLink)
}

// ElementByID finds the first element below root with the given id.
func ElementByID(root *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	found := FindAll(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && Attr(n, "id") == id
	})
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// Text joins the trimmed text fragments below n with sep, skipping empty ones.
func Text(n *html.Node, sep string) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		if p.Type == html.TextNode {
			if s := strings.TrimSpace(p.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return strings.Join(parts, sep)
}

// ResolveURL resolves href against the page URL.
func ResolveURL(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return b.ResolveReference(ref).String(), true
}

// IsPDF reports whether the URL path names a PDF, ignoring any query string.
func IsPDF(rawURL string) bool {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.HasSuffix(strings.ToLower(p), ".pdf")
}
