// Package prober determines whether a document URL is live and computes a
// content fingerprint without downloading the whole document.
package prober

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/fetcher"
)

// Fingerprint sources, recorded for diagnostics.
const (
	SourceETag     = "etag"
	SourceHeaders  = "headers"
	SourceRange    = "range"
	SourceURL      = "url"
	defaultProbeSz = 4096
)

// Result is the outcome of a probe.
type Result struct {
	Live   bool
	Hash   string
	Size   int64
	Source string
}

// Prober fingerprints remote documents.
type Prober struct {
	fetch      fetcher.Fetcher
	probeBytes int64
}

// New creates a Prober that reads at most probeBytes when headers carry no
// usable fingerprint.
func New(f fetcher.Fetcher, probeBytes int) *Prober {
	if probeBytes <= 0 {
		probeBytes = defaultProbeSz
	}
	return &Prober{fetch: f, probeBytes: int64(probeBytes)}
}

// Probe checks liveness and fingerprints rawURL. Attempts, in order: HEAD
// (falling back to a header-only GET when HEAD is rejected), a strong entity tag,
// a hash of Last-Modified and Content-Length, a hash of the first few KB,
// and finally a hash of the URL itself. Network failures yield a dead result.
func (p *Prober) Probe(ctx context.Context, rawURL string) Result {
	log := zap.L().With(zap.String("component", "prober"), zap.String("url", rawURL))

	resp, err := p.fetch.Head(ctx, rawURL)
	if err != nil || resp.StatusCode >= 400 {
		resp, err = p.fetch.OpenGet(ctx, rawURL)
	}
	if err != nil {
		log.Warn("liveness check failed", zap.Error(err))
		return Result{}
	}
	if resp.StatusCode >= 400 {
		return Result{}
	}

	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	res := Result{Live: true, Size: size}

	if etag := strongETag(resp.Header.Get("ETag")); etag != "" {
		res.Hash, res.Source = etag, SourceETag
		return res
	}

	lm, cl := resp.Header.Get("Last-Modified"), resp.Header.Get("Content-Length")
	if lm != "" || cl != "" {
		res.Hash, res.Source = md5Hex(lm+cl), SourceHeaders
		return res
	}

	partial, err := p.fetch.GetRange(ctx, rawURL, 0, p.probeBytes)
	if err == nil && (partial.StatusCode == http.StatusOK || partial.StatusCode == http.StatusPartialContent) {
		res.Hash, res.Source = md5Hex(string(partial.Body)), SourceRange
		return res
	}
	if err != nil {
		log.Debug("range probe failed, hashing url", zap.Error(err))
	}

	res.Hash, res.Source = md5Hex(rawURL), SourceURL
	return res
}

// strongETag returns the unquoted tag, or "" for weak or missing tags.
func strongETag(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "W/") {
		return ""
	}
	return strings.Trim(v, `"`)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
