package pipeline

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentStore streams stored pages and accepts rebuilt datasets.
type DocumentStore interface {
	Documents(ctx context.Context, fn func(stockID int64, html string) error) error
	UpsertYearlyFundamentals(ctx context.Context, stockID int64, headers []string, yearly map[int][]float64) error
}

// Reextractor rebuilds yearly fundamentals from pages already in the store,
// without touching the network.
type Reextractor struct {
	store   DocumentStore
	builder DatasetBuilder
	logger  *zap.Logger
}

// NewReextractor wires a reextractor.
func NewReextractor(st DocumentStore, builder DatasetBuilder, logger *zap.Logger) *Reextractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reextractor{store: st, builder: builder, logger: logger}
}

// Run rebuilds every stored page. Unparseable or doubtful pages are counted and skipped.
func (r *Reextractor) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.New()
	var c counters

	err := r.store.Documents(ctx, func(stockID int64, html string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err == nil {
			err = r.rebuild(ctx, stockID, doc, &c)
		}
		if err != nil {
			c.failed.Add(1)
			r.logger.Warn("failed to re-extract document",
				zap.String("run_id", runID.String()),
				zap.Int64("stock_id", stockID),
				zap.Error(err))
		}
		return nil
	})
	return c.summary(runID), err
}

func (r *Reextractor) rebuild(ctx context.Context, stockID int64, doc *goquery.Document, c *counters) error {
	ds, err := r.builder.Build(doc)
	if err != nil {
		return err
	}
	if ds.Doubtful {
		c.doubtful.Add(1)
		return nil
	}
	if err := r.store.UpsertYearlyFundamentals(ctx, stockID, ds.ColumnHeaders, ds.YearlyData); err != nil {
		return err
	}
	c.processed.Add(1)
	return nil
}
