// Package ingest fetches company pages, search results and index constituent
// lists from the financial data site.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stock_fundamentals/pkg/core/config"
	"stock_fundamentals/pkg/core/proxy"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrEmptyBody is returned when the site answers 200 with no content.
var ErrEmptyBody = errors.New("empty response body")

// StatusError is a non-200 answer from the site.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

type proxyKey struct{}

// Fetcher downloads pages with retries, proxy rotation and a shared request
// rate. Safe for concurrent use.
type Fetcher struct {
	cfg     config.FetchConfig
	pool    *proxy.Pool
	client  *http.Client
	limiter *rate.Limiter
	retry   map[int]bool
	logger  *zap.Logger
}

// NewFetcher creates a fetcher. pool may be nil to fetch without proxies.
func NewFetcher(cfg config.FetchConfig, pool *proxy.Pool, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pool == nil {
		pool = proxy.NewPool(nil, nil, nil)
	}

	retry := make(map[int]bool, len(cfg.RetryStatuses))
	for _, code := range cfg.RetryStatuses {
		retry[code] = true
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
			return u, nil
		}
		return nil, nil
	}

	return &Fetcher{
		cfg:     cfg,
		pool:    pool,
		client:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		retry:   retry,
		logger:  logger,
	}
}

// Fetch downloads rawURL. Transport errors and configured statuses are
// retried with exponential backoff, each attempt through a freshly picked
// proxy and user agent.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	attempts := f.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := f.cfg.Backoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := f.attempt(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if !retryable || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		f.logger.Debug("fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) ([]byte, bool, error) {
	if p, ok := f.pool.Proxy(); ok {
		u, err := url.Parse("http://" + p)
		if err != nil {
			return nil, true, fmt.Errorf("invalid proxy %q: %w", p, err)
		}
		ctx = context.WithValue(ctx, proxyKey{}, u)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", f.pool.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, f.retry[resp.StatusCode], &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, false, fmt.Errorf("%s: %w", rawURL, ErrEmptyBody)
	}
	return body, false, nil
}

// IsConsolidated reports whether u points at a consolidated statements page.
func IsConsolidated(u string) bool {
	return strings.Contains(u, "/consolidated/")
}

// StandaloneURL turns a consolidated page URL into its standalone counterpart.
func StandaloneURL(u string) string {
	return strings.Replace(u, "/consolidated/", "/", 1)
}
