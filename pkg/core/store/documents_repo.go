package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Failure records a stock whose page could not be loaded in a run.
type Failure struct {
	RunID   uuid.UUID
	StockID int64
	URL     string
	Reason  string
}

// UpsertDocument stores the raw page of a stock and stamps it with the current time.
func (db *DB) UpsertDocument(ctx context.Context, stockID int64, html string) error {
	query := `
		INSERT INTO stock_soup (stock_id, soup, modifiedon)
		VALUES ($1, $2, NOW())
		ON CONFLICT (stock_id)
		DO UPDATE SET
			soup = EXCLUDED.soup,
			modifiedon = EXCLUDED.modifiedon
	`
	if _, err := db.pool.Exec(ctx, query, stockID, html); err != nil {
		return fmt.Errorf("failed to upsert document for stock %d: %w", stockID, err)
	}
	return nil
}

// DocumentModifiedAt returns when the stored page of a stock was last written.
func (db *DB) DocumentModifiedAt(ctx context.Context, stockID int64) (time.Time, bool, error) {
	var modified time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT modifiedon FROM stock_soup WHERE stock_id = $1`, stockID).Scan(&modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read document age for stock %d: %w", stockID, err)
	}
	return modified, true, nil
}

// Documents calls fn for every stored page. Iteration stops at the first error.
func (db *DB) Documents(ctx context.Context, fn func(stockID int64, html string) error) error {
	rows, err := db.pool.Query(ctx, `SELECT stock_id, soup FROM stock_soup ORDER BY stock_id`)
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stockID int64
		var html string
		if err := rows.Scan(&stockID, &html); err != nil {
			return fmt.Errorf("failed to scan document: %w", err)
		}
		if err := fn(stockID, html); err != nil {
			return err
		}
	}
	return rows.Err()
}

// UpsertYearlyFundamentals writes one row per fiscal year in a single transaction.
func (db *DB) UpsertYearlyFundamentals(ctx context.Context, stockID int64, headers []string, yearly map[int][]float64) error {
	query := `
		INSERT INTO yearly_fundamentals (stock_id, year, column_headers, vals, modifiedon)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (stock_id, year)
		DO UPDATE SET
			column_headers = EXCLUDED.column_headers,
			vals = EXCLUDED.vals,
			modifiedon = EXCLUDED.modifiedon
	`
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		for year, vals := range yearly {
			if _, err := tx.Exec(ctx, query, stockID, year, headers, vals); err != nil {
				return fmt.Errorf("year %d: %w", year, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert fundamentals for stock %d: %w", stockID, err)
	}
	return nil
}

// RecordFailure stores a failed stock so a later run can retry it.
func (db *DB) RecordFailure(ctx context.Context, f Failure) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO fetch_failures (run_id, stock_id, url, reason) VALUES ($1, $2, $3, $4)`,
		f.RunID, f.StockID, f.URL, f.Reason)
	if err != nil {
		return fmt.Errorf("failed to record failure for stock %d: %w", f.StockID, err)
	}
	return nil
}
