// Package fetcher performs the outbound HTTP calls of discovery and ingestion:
// seed pages, liveness probes and document downloads.
package fetcher

import (
	"context"
	"net/http"
)

// Fetcher defines the outbound HTTP operations. Every call has a bounded
// timeout and retries transient failures a small, bounded number of times.
type Fetcher interface {
	// GetPage fetches a seed HTML page.
	GetPage(ctx context.Context, url string) ([]byte, error)

	// DownloadToFile streams the URL into path and returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// Head performs a HEAD request. Non-2xx statuses are returned, not errors.
	Head(ctx context.Context, url string) (*Response, error)

	// OpenGet performs a GET and returns only the status line and headers.
	OpenGet(ctx context.Context, url string) (*Response, error)

	// GetRange fetches the byte range [start, end] of the URL.
	GetRange(ctx context.Context, url string, start, end int64) (*Response, error)
}

// Response is a bounded view of an HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
