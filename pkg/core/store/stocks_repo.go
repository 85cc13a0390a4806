package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrIndexNotFound is returned when index_base has no row for the name.
var ErrIndexNotFound = errors.New("index not found")

// Index is a row of index_base: where to download an index's constituents.
type Index struct {
	ID         int64
	Name       string
	Link       string
	LinkType   string
	Country    string
	ModifiedOn time.Time
}

// Stock is a row of stock_base.
type Stock struct {
	ID          int64
	IndexID     int64
	Symbol      string
	Name        string
	ListedOn    time.Time // zero when unknown
	ISIN        string
	ScreenerURL string
	Sector      string
	Industry    string
}

// StockURL is a stock with the page its fundamentals are read from.
type StockURL struct {
	StockID int64
	URL     string
}

// SectorStocks groups stock pages by sector.
type SectorStocks struct {
	Sector string
	Stocks []StockURL
}

// GetIndex loads an index by name (case-insensitive).
func (db *DB) GetIndex(ctx context.Context, name string) (*Index, error) {
	query := `
		SELECT index_id, name, link, linktype, country, modifiedon
		FROM index_base
		WHERE name = $1
	`
	var idx Index
	err := db.pool.QueryRow(ctx, query, strings.ToUpper(name)).Scan(
		&idx.ID, &idx.Name, &idx.Link, &idx.LinkType, &idx.Country, &idx.ModifiedOn,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index %s: %w", name, err)
	}
	return &idx, nil
}

// UpsertStocks inserts new constituents and leaves existing ones untouched.
// It returns the number of rows inserted.
func (db *DB) UpsertStocks(ctx context.Context, stocks []Stock) (int, error) {
	query := `
		INSERT INTO stock_base (index_id, symbol, name, date_of_listing, isin_number)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (index_id, symbol)
		DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, s := range stocks {
		s := s // per-iteration copy (go < 1.22 loop semantics)
		var listed *time.Time
		if !s.ListedOn.IsZero() {
			listed = &s.ListedOn
		}
		batch.Queue(query, s.IndexID, s.Symbol, s.Name, listed, s.ISIN)
	}

	results := db.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for _, s := range stocks {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to upsert stock %s: %w", s.Symbol, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// StocksWithoutURL lists the constituents whose company page is not yet known.
func (db *DB) StocksWithoutURL(ctx context.Context, indexID int64) ([]Stock, error) {
	query := `
		SELECT stock_id, index_id, symbol, name, isin_number
		FROM stock_base
		WHERE index_id = $1 AND screener_url IS NULL
		ORDER BY stock_id
	`
	rows, err := db.pool.Query(ctx, query, indexID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	stocks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Stock, error) {
		var s Stock
		err := row.Scan(&s.ID, &s.IndexID, &s.Symbol, &s.Name, &s.ISIN)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan stocks: %w", err)
	}
	return stocks, nil
}

// SetScreenerURL records the company page of a stock.
func (db *DB) SetScreenerURL(ctx context.Context, stockID int64, url string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE stock_base SET screener_url = $2, modifiedon = NOW() WHERE stock_id = $1`,
		stockID, url)
	if err != nil {
		return fmt.Errorf("failed to set url for stock %d: %w", stockID, err)
	}
	return nil
}

// UpdateProfile stores the sector and industry read from a company page.
func (db *DB) UpdateProfile(ctx context.Context, stockID int64, sector, industry string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE stock_base SET sector = $2, industry = $3, modifiedon = NOW() WHERE stock_id = $1`,
		stockID, sector, industry)
	if err != nil {
		return fmt.Errorf("failed to update profile for stock %d: %w", stockID, err)
	}
	return nil
}

// StockURLsBySector returns the stock pages of an index grouped by sector.
func (db *DB) StockURLsBySector(ctx context.Context, indexID int64) ([]SectorStocks, error) {
	query := `
		SELECT sector, stock_id, screener_url
		FROM stock_base
		WHERE index_id = $1 AND screener_url IS NOT NULL
		ORDER BY sector, stock_id
	`
	rows, err := db.pool.Query(ctx, query, indexID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock urls: %w", err)
	}
	defer rows.Close()

	var groups []SectorStocks
	for rows.Next() {
		var sector string
		var su StockURL
		if err := rows.Scan(&sector, &su.StockID, &su.URL); err != nil {
			return nil, fmt.Errorf("failed to scan stock url: %w", err)
		}
		if n := len(groups); n == 0 || groups[n-1].Sector != sector {
			groups = append(groups, SectorStocks{Sector: sector})
		}
		last := &groups[len(groups)-1]
		last.Stocks = append(last.Stocks, su)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stock urls: %w", err)
	}
	return groups, nil
}
