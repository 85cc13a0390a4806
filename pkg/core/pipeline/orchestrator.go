// Package pipeline drives batch loads: index constituents, company pages and
// yearly fundamentals.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"stock_fundamentals/pkg/core/config"
	"stock_fundamentals/pkg/core/extract"
	"stock_fundamentals/pkg/core/ingest"
	"stock_fundamentals/pkg/core/store"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PageFetcher downloads a page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DatasetBuilder turns a parsed company page into a yearly dataset.
type DatasetBuilder interface {
	Build(doc *goquery.Document) (*extract.YearlyDataset, error)
}

// StockSource lists the company pages of an index.
type StockSource interface {
	StockURLsBySector(ctx context.Context, indexID int64) ([]store.SectorStocks, error)
}

// FundamentalsSink persists pages and datasets.
type FundamentalsSink interface {
	DocumentModifiedAt(ctx context.Context, stockID int64) (time.Time, bool, error)
	UpsertDocument(ctx context.Context, stockID int64, html string) error
	UpsertYearlyFundamentals(ctx context.Context, stockID int64, headers []string, yearly map[int][]float64) error
	UpdateProfile(ctx context.Context, stockID int64, sector, industry string) error
	RecordFailure(ctx context.Context, f store.Failure) error
}

// Summary counts the outcome of one run.
type Summary struct {
	RunID     uuid.UUID
	Processed int64
	Skipped   int64
	Doubtful  int64
	Failed    int64
}

type counters struct {
	processed, skipped, doubtful, failed atomic.Int64
}

func (c *counters) summary(runID uuid.UUID) *Summary {
	return &Summary{
		RunID:     runID,
		Processed: c.processed.Load(),
		Skipped:   c.skipped.Load(),
		Doubtful:  c.doubtful.Load(),
		Failed:    c.failed.Load(),
	}
}

type outcome int

const (
	outcomeLoaded outcome = iota
	outcomeFresh
	outcomeDoubtful
)

// FundamentalsLoader fetches every company page of an index and stores the
// page and its yearly dataset. One failed stock never stops the batch.
type FundamentalsLoader struct {
	source       StockSource
	sink         FundamentalsSink
	fetcher      PageFetcher
	builder      DatasetBuilder
	workers      int
	refreshAfter time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewFundamentalsLoader wires a loader from its collaborators.
func NewFundamentalsLoader(cfg config.LoaderConfig, source StockSource, sink FundamentalsSink,
	fetcher PageFetcher, builder DatasetBuilder, logger *zap.Logger) *FundamentalsLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &FundamentalsLoader{
		source:       source,
		sink:         sink,
		fetcher:      fetcher,
		builder:      builder,
		workers:      workers,
		refreshAfter: cfg.RefreshAfter,
		now:          time.Now,
		logger:       logger,
	}
}

// Run loads every stock of indexID, sector by sector. It returns early only
// when ctx is cancelled or the stock list cannot be read.
func (l *FundamentalsLoader) Run(ctx context.Context, indexID int64) (*Summary, error) {
	runID := uuid.New()
	log := l.logger.With(zap.String("run_id", runID.String()), zap.Int64("index_id", indexID))

	groups, err := l.source.StockURLsBySector(ctx, indexID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}

	var c counters
	for _, group := range groups {
		log.Info("scraping sector",
			zap.String("sector", group.Sector),
			zap.Int("stocks", len(group.Stocks)))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(l.workers, len(group.Stocks)))
		for _, s := range group.Stocks {
			s := s // per-iteration copy (go < 1.22 loop semantics)
			g.Go(func() error {
				res, err := l.loadStock(gctx, s)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					c.failed.Add(1)
					log.Warn("failed to load stock",
						zap.Int64("stock_id", s.StockID),
						zap.String("url", s.URL),
						zap.Error(err))
					l.recordFailure(ctx, log, runID, s, err)
					return nil
				}
				switch res {
				case outcomeFresh:
					c.skipped.Add(1)
				case outcomeDoubtful:
					c.doubtful.Add(1)
				default:
					c.processed.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return c.summary(runID), err
		}
		log.Info("sector completed", zap.String("sector", group.Sector))
	}

	return c.summary(runID), nil
}

type page struct {
	html    string
	doc     *goquery.Document
	dataset *extract.YearlyDataset
}

func (l *FundamentalsLoader) loadStock(ctx context.Context, s store.StockURL) (outcome, error) {
	modified, ok, err := l.sink.DocumentModifiedAt(ctx, s.StockID)
	if err != nil {
		return 0, err
	}
	if ok && l.now().Sub(modified) < l.refreshAfter {
		return outcomeFresh, nil
	}

	p, err := l.fetchPage(ctx, s.URL)
	if err != nil {
		return 0, err
	}
	if p.dataset.Doubtful && ingest.IsConsolidated(s.URL) {
		standalone := ingest.StandaloneURL(s.URL)
		l.logger.Info("consolidated figures doubtful, trying standalone",
			zap.Int64("stock_id", s.StockID),
			zap.String("section", p.dataset.DoubtfulSection),
			zap.String("url", standalone))
		if p, err = l.fetchPage(ctx, standalone); err != nil {
			return 0, err
		}
	}
	if p.dataset.Doubtful {
		l.logger.Info("page still doubtful, skipping",
			zap.Int64("stock_id", s.StockID),
			zap.String("section", p.dataset.DoubtfulSection))
		return outcomeDoubtful, nil
	}

	if err := l.sink.UpsertDocument(ctx, s.StockID, p.html); err != nil {
		return 0, err
	}
	if profile, err := extract.ParseCompanyProfile(p.doc); err == nil && profile.Sector != "" {
		if err := l.sink.UpdateProfile(ctx, s.StockID, profile.Sector, profile.Industry); err != nil {
			l.logger.Warn("failed to update profile", zap.Int64("stock_id", s.StockID), zap.Error(err))
		}
	}
	if err := l.sink.UpsertYearlyFundamentals(ctx, s.StockID, p.dataset.ColumnHeaders, p.dataset.YearlyData); err != nil {
		return 0, err
	}
	return outcomeLoaded, nil
}

func (l *FundamentalsLoader) fetchPage(ctx context.Context, url string) (*page, error) {
	body, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	ds, err := l.builder.Build(doc)
	if err != nil {
		return nil, err
	}
	return &page{html: string(body), doc: doc, dataset: ds}, nil
}

func (l *FundamentalsLoader) recordFailure(ctx context.Context, log *zap.Logger, runID uuid.UUID, s store.StockURL, cause error) {
	err := l.sink.RecordFailure(ctx, store.Failure{
		RunID:   runID,
		StockID: s.StockID,
		URL:     s.URL,
		Reason:  cause.Error(),
	})
	if err != nil {
		log.Warn("failed to record failure", zap.Int64("stock_id", s.StockID), zap.Error(err))
	}
}
