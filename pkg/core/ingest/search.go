package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"stock_fundamentals/pkg/core/config"
)

// ErrNoSearchResult is returned when neither ticker nor name finds a company.
var ErrNoSearchResult = errors.New("no search result")

type searchResult struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SearchClient resolves a ticker to its company page through the site's search API.
type SearchClient struct {
	fetcher   *Fetcher
	baseURL   string
	searchURL string
}

// NewSearchClient creates a search client that reuses fetcher's retry policy.
func NewSearchClient(cfg config.FetchConfig, fetcher *Fetcher) *SearchClient {
	return &SearchClient{
		fetcher:   fetcher,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		searchURL: cfg.SearchURL,
	}
}

// ResolveURL returns the absolute company page URL for ticker, retrying the
// search with the company name when the ticker finds nothing.
func (c *SearchClient) ResolveURL(ctx context.Context, ticker, name string) (string, error) {
	for _, q := range []string{ticker, name} {
		if q == "" {
			continue
		}
		results, err := c.search(ctx, q)
		if err != nil {
			return "", err
		}
		if len(results) > 0 && results[0].URL != "" {
			return c.baseURL + results[0].URL, nil
		}
	}
	return "", fmt.Errorf("%w for %s (%s)", ErrNoSearchResult, ticker, name)
}

func (c *SearchClient) search(ctx context.Context, q string) ([]searchResult, error) {
	body, err := c.fetcher.Fetch(ctx, c.searchURL+"?q="+url.QueryEscape(q))
	if err != nil {
		return nil, fmt.Errorf("search %q failed: %w", q, err)
	}
	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to parse search response for %q: %w", q, err)
	}
	return results, nil
}
