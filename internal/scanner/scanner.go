// Package scanner turns exam authority seed pages into candidate document
// references. Scanners are pure: they never fetch or persist.
package scanner

import (
	"github.com/sells-group/cutoff-ingest/internal/model"
)

// Scanner extracts candidate documents from a seed page. Every returned
// candidate carries a detected round of at least 1.
type Scanner interface {
	Extract(page []byte, baseURL string) ([]model.Candidate, error)
}

// Naming is the display identity a plugin derives for a discovered document.
type Naming struct {
	Clean        string
	Original     string
	Standardized bool
}

// Namer derives the artifact round name from a candidate.
type Namer interface {
	NameArtifact(c model.Candidate) Naming
}

// NamerFunc adapts a function to Namer.
type NamerFunc func(c model.Candidate) Naming

// NameArtifact calls f(c).
func (f NamerFunc) NameArtifact(c model.Candidate) Naming { return f(c) }

// dedupe tracks URLs already emitted by one Extract call.
type dedupe map[string]struct{}

func (d dedupe) add(u string) bool {
	if _, ok := d[u]; ok {
		return false
	}
	d[u] = struct{}{}
	return true
}
