package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"stock_fundamentals/pkg/core/store"
)

var (
	ErrUnsupportedLink = errors.New("unsupported index link")
	ErrMissingColumn   = errors.New("missing column")
)

// listingDateLayout matches dates such as "06-OCT-2008".
const listingDateLayout = "02-Jan-2006"

var requiredColumns = []string{"symbol", "name", "date_of_listing", "isin_number"}

var columnRenames = map[string]string{
	"name_of_company": "name",
}

// ConstituentLoader downloads the constituent list of an index.
type ConstituentLoader struct {
	fetcher *Fetcher
}

// NewConstituentLoader creates a loader that downloads through fetcher.
func NewConstituentLoader(fetcher *Fetcher) *ConstituentLoader {
	return &ConstituentLoader{fetcher: fetcher}
}

// FetchConstituents downloads and parses the CSV linked from idx.
func (l *ConstituentLoader) FetchConstituents(ctx context.Context, idx store.Index) ([]store.Stock, error) {
	if !strings.EqualFold(idx.LinkType, "csv") || !strings.Contains(strings.ToLower(idx.Link), "csv") {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedLink, idx.Link, idx.LinkType)
	}
	body, err := l.fetcher.Fetch(ctx, idx.Link)
	if err != nil {
		return nil, fmt.Errorf("failed to download constituents of %s: %w", idx.Name, err)
	}
	return ParseConstituents(bytes.NewReader(body), idx.ID)
}

// ParseConstituents reads an index constituent CSV. Column names are matched
// after trimming, lower-casing and replacing spaces with underscores.
func ParseConstituents(r io.Reader, indexID int64) ([]store.Stock, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
		if renamed, ok := columnRenames[name]; ok {
			name = renamed
		}
		cols[name] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	field := func(rec []string, col string) string {
		if i := cols[col]; i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var stocks []store.Stock
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		symbol := field(rec, "symbol")
		if symbol == "" {
			continue
		}
		listed, _ := time.Parse(listingDateLayout, field(rec, "date_of_listing"))
		stocks = append(stocks, store.Stock{
			IndexID:  indexID,
			Symbol:   symbol,
			Name:     field(rec, "name"),
			ListedOn: listed,
			ISIN:     field(rec, "isin_number"),
		})
	}
	return stocks, nil
}
