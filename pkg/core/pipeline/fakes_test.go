package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stock_fundamentals/pkg/core/extract"
	"stock_fundamentals/pkg/core/store"
)

// --- Fixtures ---

func table(headers []string, label string, values ...string) string {
	var sb strings.Builder
	sb.WriteString(`<table class="data-table"><thead><tr><th></th>`)
	for _, h := range headers {
		fmt.Fprintf(&sb, "<th>%s</th>", h)
	}
	fmt.Fprintf(&sb, "</tr></thead><tbody><tr><td>%s</td>", label)
	for _, v := range values {
		fmt.Fprintf(&sb, "<td>%s</td>", v)
	}
	sb.WriteString("</tr></tbody></table>")
	return sb.String()
}

// companyPage renders a five-section page whose core sections report years.
func companyPage(sector string, years ...string) string {
	values := make([]string, len(years))
	for i := range years {
		values[i] = fmt.Sprint(100 + i)
	}
	section := func(id, label string) string {
		return fmt.Sprintf(`<section id="%s">%s</section>`, id, table(years, label, values...))
	}
	return `<html><body>` +
		`<div id="top"><h1>Test Co</h1></div>` +
		fmt.Sprintf(`<section id="peers"><p class="sub">Sector:  %s  Industry:  Widgets</p></section>`, sector) +
		section("profit-loss", "Sales +") +
		section("balance-sheet", "Borrowings +") +
		section("cash-flow", "Net Cash Flow") +
		section("ratios", "ROCE %") +
		`<section id="shareholding"><div id="yearly-shp">` + table([]string{"Mar 2023"}, "Promoters +", "55%") + `</div></section>` +
		`</body></html>`
}

func testBuilder() *extract.DatasetBuilder {
	b := extract.NewDatasetBuilder(nil)
	b.SetClock(func() time.Time { return time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC) })
	return b
}

// --- Fakes ---

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	html, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%s returned status 503", url)
	}
	return []byte(html), nil
}

func (f *fakeFetcher) called(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == url {
			return true
		}
	}
	return false
}

type fakeSource struct {
	groups []store.SectorStocks
	err    error
}

func (s *fakeSource) StockURLsBySector(ctx context.Context, indexID int64) ([]store.SectorStocks, error) {
	return s.groups, s.err
}

type fakeSink struct {
	mu           sync.Mutex
	modified     map[int64]time.Time
	docs         map[int64]string
	headers      map[int64][]string
	fundamentals map[int64]map[int][]float64
	sectors      map[int64]string
	failures     []store.Failure
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		modified:     map[int64]time.Time{},
		docs:         map[int64]string{},
		headers:      map[int64][]string{},
		fundamentals: map[int64]map[int][]float64{},
		sectors:      map[int64]string{},
	}
}

func (s *fakeSink) DocumentModifiedAt(ctx context.Context, stockID int64) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.modified[stockID]
	return t, ok, nil
}

func (s *fakeSink) UpsertDocument(ctx context.Context, stockID int64, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[stockID] = html
	return nil
}

func (s *fakeSink) UpsertYearlyFundamentals(ctx context.Context, stockID int64, headers []string, yearly map[int][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers[stockID] = headers
	s.fundamentals[stockID] = yearly
	return nil
}

func (s *fakeSink) UpdateProfile(ctx context.Context, stockID int64, sector, industry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sectors[stockID] = sector
	return nil
}

func (s *fakeSink) RecordFailure(ctx context.Context, f store.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
	return nil
}

func (s *fakeSink) Documents(ctx context.Context, fn func(stockID int64, html string) error) error {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		if err := fn(id, s.docs[id]); err != nil {
			return err
		}
	}
	return nil
}

type fakeIndexStore struct {
	index    *store.Index
	stocks   []store.Stock
	urls     map[int64]string
	inserted int
}

func (s *fakeIndexStore) GetIndex(ctx context.Context, name string) (*store.Index, error) {
	if s.index == nil || !strings.EqualFold(s.index.Name, name) {
		return nil, store.ErrIndexNotFound
	}
	return s.index, nil
}

func (s *fakeIndexStore) UpsertStocks(ctx context.Context, stocks []store.Stock) (int, error) {
	next := int64(len(s.stocks))
	for _, st := range stocks {
		next++
		st.ID = next
		s.stocks = append(s.stocks, st)
	}
	s.inserted += len(stocks)
	return len(stocks), nil
}

func (s *fakeIndexStore) StocksWithoutURL(ctx context.Context, indexID int64) ([]store.Stock, error) {
	var out []store.Stock
	for _, st := range s.stocks {
		if _, ok := s.urls[st.ID]; !ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *fakeIndexStore) SetScreenerURL(ctx context.Context, stockID int64, url string) error {
	s.urls[stockID] = url
	return nil
}

type fakeConstituents struct {
	stocks []store.Stock
}

func (f *fakeConstituents) FetchConstituents(ctx context.Context, idx store.Index) ([]store.Stock, error) {
	out := make([]store.Stock, len(f.stocks))
	for i, s := range f.stocks {
		s.IndexID = idx.ID
		out[i] = s
	}
	return out, nil
}

type fakeResolver struct {
	known map[string]string
}

func (r *fakeResolver) ResolveURL(ctx context.Context, ticker, name string) (string, error) {
	if u, ok := r.known[ticker]; ok {
		return u, nil
	}
	return "", errors.New("no search result")
}
