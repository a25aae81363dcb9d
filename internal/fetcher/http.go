package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/cutoff-ingest/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RatePerSec is the initial per-host request rate.
	RatePerSec float64
	// MaxPageBytes bounds seed page reads.
	MaxPageBytes int64
	// Retry overrides the backoff schedule; MaxAttempts comes from MaxRetries.
	Retry *resilience.RetryConfig
}

// AdaptiveLimiter wraps a rate.Limiter that halves on 429 and recovers by 20%
// per success, between initial/4 and 2x initial.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate, down to initial/4.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with per-host rate limiting
// and bounded retry.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "cutoff-ingest/1.0"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 2
	}
	if opts.MaxPageBytes <= 0 {
		opts.MaxPageBytes = 8 << 20
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *AdaptiveLimiter {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(rate.Limit(f.opts.RatePerSec), 2)
		f.limiters[host] = lim
	}
	return lim
}

func (f *HTTPFetcher) retryConfig(operation, rawURL string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if f.opts.Retry != nil {
		cfg = *f.opts.Retry
	}
	cfg.MaxAttempts = f.opts.MaxRetries
	cfg.OnRetry = resilience.RetryLogger(operation, rawURL)
	return cfg
}

// do sends one request through the host limiter. 429 and 5xx responses are
// closed and returned as transient FetchErrors so the caller's retry loop
// handles them; every other status is returned to the caller.
func (f *HTTPFetcher) do(ctx context.Context, method, rawURL string, header http.Header) (*http.Response, error) {
	lim := f.limiterFor(rawURL)
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NetworkError(rawURL, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_ = resp.Body.Close()
		return nil, resilience.StatusError(rawURL, resp.StatusCode)
	}

	lim.OnSuccess()
	return resp, nil
}

// GetPage fetches a seed page body. Any non-200 status is an error.
func (f *HTTPFetcher) GetPage(ctx context.Context, rawURL string) ([]byte, error) {
	return resilience.DoVal(ctx, f.retryConfig("get_page", rawURL), func(ctx context.Context) ([]byte, error) {
		resp, err := f.do(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return nil, resilience.StatusError(rawURL, resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxPageBytes))
		if err != nil {
			return nil, resilience.NetworkError(rawURL, err)
		}
		return body, nil
	})
}

// DownloadToFile streams the URL into path. A partially written file is
// truncated on each retry.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	return resilience.DoVal(ctx, f.retryConfig("download", rawURL), func(ctx context.Context) (int64, error) {
		resp, err := f.do(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return 0, resilience.StatusError(rawURL, resp.StatusCode)
		}

		file, err := os.Create(path)
		if err != nil {
			return 0, eris.Wrap(err, "fetcher: create file")
		}
		defer file.Close() //nolint:errcheck

		n, err := io.Copy(file, resp.Body)
		if err != nil {
			return n, resilience.NetworkError(rawURL, err)
		}
		return n, nil
	})
}

// Head performs a HEAD request.
func (f *HTTPFetcher) Head(ctx context.Context, rawURL string) (*Response, error) {
	return f.headersOnly(ctx, http.MethodHead, rawURL, "head")
}

// OpenGet performs a GET but reads no body.
func (f *HTTPFetcher) OpenGet(ctx context.Context, rawURL string) (*Response, error) {
	return f.headersOnly(ctx, http.MethodGet, rawURL, "open_get")
}

func (f *HTTPFetcher) headersOnly(ctx context.Context, method, rawURL, op string) (*Response, error) {
	return resilience.DoVal(ctx, f.retryConfig(op, rawURL), func(ctx context.Context) (*Response, error) {
		resp, err := f.do(ctx, method, rawURL, nil)
		if err != nil {
			return nil, err
		}
		_ = resp.Body.Close()
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header}, nil
	})
}

// GetRange fetches bytes [start, end]. Servers that ignore Range return 200;
// the body is still capped at end-start+1 bytes.
func (f *HTTPFetcher) GetRange(ctx context.Context, rawURL string, start, end int64) (*Response, error) {
	if end < start {
		return nil, eris.Errorf("fetcher: invalid range %d-%d", start, end)
	}
	header := http.Header{"Range": []string{fmt.Sprintf("bytes=%d-%d", start, end)}}
	return resilience.DoVal(ctx, f.retryConfig("get_range", rawURL), func(ctx context.Context) (*Response, error) {
		resp, err := f.do(ctx, http.MethodGet, rawURL, header)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck

		out := &Response{StatusCode: resp.StatusCode, Header: resp.Header}
		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent {
			body, err := io.ReadAll(io.LimitReader(resp.Body, end-start+1))
			if err != nil {
				return nil, resilience.NetworkError(rawURL, err)
			}
			out.Body = body
		}
		return out, nil
	})
}
