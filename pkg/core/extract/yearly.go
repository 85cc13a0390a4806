package extract

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Section identifies one yearly financial table on a company page.
type Section struct {
	Name  string
	ID    string
	TabID string
	// IgnoreDoubt keeps sparse or stale data from invalidating the document.
	IgnoreDoubt bool
}

// YearlySections lists the sections of a yearly dataset in column order.
var YearlySections = []Section{
	{Name: "Profit Loss", ID: "profit-loss"},
	{Name: "Balance Sheet", ID: "balance-sheet"},
	{Name: "Cash Flow", ID: "cash-flow"},
	{Name: "Ratios", ID: "ratios"},
	{Name: "Shareholding Pattern", ID: "shareholding", TabID: "yearly-shp", IgnoreDoubt: true},
}

// YearlyDataset is every yearly section of a document aligned by fiscal year.
type YearlyDataset struct {
	// ColumnHeaders concatenates the metric names of all sections in section order.
	ColumnHeaders []string
	// YearlyData maps a fiscal year to one value per column header. Years a
	// section does not report are zero-filled for that section's width.
	YearlyData map[int][]float64
	// Doubtful is set when a core section had untrustworthy year coverage.
	// ColumnHeaders and YearlyData are nil in that case.
	Doubtful bool
	// DoubtfulSection names the section that made the dataset doubtful.
	DoubtfulSection string
}

// Years returns the fiscal years of the dataset in ascending order.
func (d *YearlyDataset) Years() []int {
	years := make([]int, 0, len(d.YearlyData))
	for y := range d.YearlyData {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// DatasetBuilder composes TableExtractor results into a YearlyDataset.
type DatasetBuilder struct {
	extractor *TableExtractor
	sections  []Section
}

// NewDatasetBuilder creates a builder over YearlySections.
func NewDatasetBuilder(logger *zap.Logger) *DatasetBuilder {
	return &DatasetBuilder{
		extractor: NewTableExtractor(logger),
		sections:  YearlySections,
	}
}

// SetClock overrides the clock used for doubt detection. Call before use.
func (b *DatasetBuilder) SetClock(now func() time.Time) {
	b.extractor.SetClock(now)
}

// BuildHTML parses raw page markup and builds its dataset.
func (b *DatasetBuilder) BuildHTML(r io.Reader) (*YearlyDataset, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return b.Build(doc)
}

// Build extracts every section of doc and aligns them by fiscal year.
//
// A doubtful core section is not an error: the returned dataset has Doubtful
// set and no data. Structural failures are returned as *SectionError.
func (b *DatasetBuilder) Build(doc *goquery.Document) (*YearlyDataset, error) {
	results := make([]*SectionData, 0, len(b.sections))
	headers := []string{}
	years := make(map[int]struct{})
	doubtful := false

	for _, section := range b.sections {
		data, err := b.extractor.Extract(doc, section.ID, section.TabID)
		if err != nil {
			return nil, err
		}
		if section.IgnoreDoubt {
			data.Doubtful = false
		}
		if data.Doubtful {
			return &YearlyDataset{Doubtful: true, DoubtfulSection: section.Name}, nil
		}

		results = append(results, data)
		headers = append(headers, data.MetricNames...)
		for y := range data.YearValues {
			years[y] = struct{}{}
		}
		// Always false past the early return above; kept so that a
		// non-fatal section policy only has to change the return.
		doubtful = doubtful || data.Doubtful
	}

	yearly := make(map[int][]float64, len(years))
	for y := range years {
		row := make([]float64, 0, len(headers))
		for _, data := range results {
			row = append(row, fitWidth(data.YearValues[y], len(data.MetricNames))...)
		}
		yearly[y] = row
	}

	return &YearlyDataset{
		ColumnHeaders: headers,
		YearlyData:    yearly,
		Doubtful:      doubtful,
	}, nil
}

// fitWidth sizes a section's year vector to its metric count. Blank cells and
// unlabelled rows make the two disagree; short vectors are zero-padded on the
// right and long ones truncated so every year row matches the headers.
func fitWidth(values []float64, width int) []float64 {
	if len(values) >= width {
		return values[:width]
	}
	out := make([]float64, width)
	copy(out, values)
	return out
}
