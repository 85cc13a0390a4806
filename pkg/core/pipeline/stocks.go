package pipeline

import (
	"context"
	"fmt"

	"stock_fundamentals/pkg/core/store"

	"go.uber.org/zap"
)

// IndexStore persists index constituents.
type IndexStore interface {
	GetIndex(ctx context.Context, name string) (*store.Index, error)
	UpsertStocks(ctx context.Context, stocks []store.Stock) (int, error)
	StocksWithoutURL(ctx context.Context, indexID int64) ([]store.Stock, error)
	SetScreenerURL(ctx context.Context, stockID int64, url string) error
}

// ConstituentSource downloads the constituent list of an index.
type ConstituentSource interface {
	FetchConstituents(ctx context.Context, idx store.Index) ([]store.Stock, error)
}

// URLResolver finds the company page of a stock.
type URLResolver interface {
	ResolveURL(ctx context.Context, ticker, name string) (string, error)
}

// StockSummary counts the outcome of a constituent load.
type StockSummary struct {
	IndexID    int64
	Fetched    int
	Inserted   int
	Resolved   int
	Unresolved int
}

// StockLoader refreshes the constituents of an index and resolves the
// company page of stocks that do not have one yet.
type StockLoader struct {
	store    IndexStore
	source   ConstituentSource
	resolver URLResolver
	logger   *zap.Logger
}

// NewStockLoader wires a constituent loader. resolver may be nil to skip URL resolution.
func NewStockLoader(st IndexStore, source ConstituentSource, resolver URLResolver, logger *zap.Logger) *StockLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockLoader{store: st, source: source, resolver: resolver, logger: logger}
}

// Run loads the constituents of the named index.
func (l *StockLoader) Run(ctx context.Context, indexName string) (*StockSummary, error) {
	idx, err := l.store.GetIndex(ctx, indexName)
	if err != nil {
		return nil, err
	}
	log := l.logger.With(zap.String("index", idx.Name), zap.Int64("index_id", idx.ID))

	stocks, err := l.source.FetchConstituents(ctx, *idx)
	if err != nil {
		return nil, err
	}
	inserted, err := l.store.UpsertStocks(ctx, stocks)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert constituents of %s: %w", idx.Name, err)
	}
	log.Info("constituents loaded", zap.Int("fetched", len(stocks)), zap.Int("inserted", inserted))

	summary := &StockSummary{IndexID: idx.ID, Fetched: len(stocks), Inserted: inserted}
	if l.resolver == nil {
		return summary, nil
	}

	pending, err := l.store.StocksWithoutURL(ctx, idx.ID)
	if err != nil {
		return summary, err
	}
	for _, s := range pending {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		url, err := l.resolver.ResolveURL(ctx, s.Symbol, s.Name)
		if err == nil {
			err = l.store.SetScreenerURL(ctx, s.ID, url)
		}
		if err != nil {
			summary.Unresolved++
			log.Warn("failed to resolve company page", zap.String("symbol", s.Symbol), zap.Error(err))
			continue
		}
		summary.Resolved++
	}
	log.Info("company pages resolved",
		zap.Int("resolved", summary.Resolved),
		zap.Int("unresolved", summary.Unresolved))
	return summary, nil
}
