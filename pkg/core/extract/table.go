// Package extract turns screener company pages into year-indexed numeric datasets.
package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// ttmHeader marks the trailing-twelve-months column.
const ttmHeader = "TTM"

// metricRenames maps current site terminology back to the names downstream
// consumers were built against.
var metricRenames = map[string]string{
	"Revenue":          "Sales",
	"Financing_Profit": "Operating_Profit",
	"Financing_Margin": "OPM",
}

var punctuationReplacer = strings.NewReplacer("+", "", "%", "", ",", "")

// SectionData is the parsed content of one financial table.
type SectionData struct {
	// MetricNames holds the row labels in table order. Rows without a label
	// contribute values but no name.
	MetricNames []string
	// Years holds the header years left to right, including the synthetic
	// TTM year when present.
	Years []int
	// YearValues maps a header year to the populated values of that column.
	YearValues map[int][]float64
	// Doubtful is set when the year coverage looks stale or too sparse.
	Doubtful bool
}

// TableExtractor locates a financial section in a document and parses its data table.
// It holds no mutable state and is safe for concurrent use once configured.
type TableExtractor struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewTableExtractor creates an extractor that judges staleness against the wall clock.
func NewTableExtractor(logger *zap.Logger) *TableExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableExtractor{now: time.Now, logger: logger}
}

// SetClock overrides the clock used for doubt detection. Call before use.
func (e *TableExtractor) SetClock(now func() time.Time) {
	e.now = now
}

// Extract parses the data table of section sectionID, scoped to the sub-tab
// tabID when it is non-empty.
func (e *TableExtractor) Extract(doc *goquery.Document, sectionID, tabID string) (*SectionData, error) {
	section := findByID(doc.Selection, "section", sectionID)
	if section.Length() == 0 {
		return nil, &SectionError{SectionID: sectionID, TabID: tabID, Err: ErrSectionNotFound}
	}

	scope := section
	if tabID != "" {
		scope = findByID(section, "div", tabID)
		if scope.Length() == 0 {
			return nil, &SectionError{SectionID: sectionID, TabID: tabID, Err: ErrTabNotFound}
		}
	}

	table := scope.Find("table.data-table").First()
	if table.Length() == 0 {
		return nil, &SectionError{SectionID: sectionID, TabID: tabID, Err: ErrTableNotFound}
	}

	years, parsed := e.parseHeaders(table, sectionID)
	names, rows, err := parseBody(table)
	if err != nil {
		return nil, &SectionError{SectionID: sectionID, TabID: tabID, Err: ErrMalformedValue, Detail: err.Error()}
	}

	yearValues := make(map[int][]float64, len(years))
	for i, year := range years {
		values := make([]float64, 0, len(rows))
		for _, row := range rows {
			if i >= len(row) || row[i].empty {
				continue
			}
			values = append(values, row[i].value)
		}
		yearValues[year] = values
	}

	return &SectionData{
		MetricNames: names,
		Years:       years,
		YearValues:  yearValues,
		Doubtful:    e.isDoubtful(parsed),
	}, nil
}

// parseHeaders returns the header years including a synthetic TTM year, and
// the calendar years actually read from the header row.
func (e *TableExtractor) parseHeaders(table *goquery.Selection, sectionID string) ([]int, []int) {
	var years []int
	ttm := false

	table.Find("thead").First().Find("th").Each(func(_ int, th *goquery.Selection) {
		text := cellText(th)
		if text == "" {
			return
		}
		fields := strings.Fields(text)
		if year, ok := parseYear(fields[len(fields)-1]); ok {
			years = append(years, year)
			return
		}
		if text == ttmHeader {
			ttm = true
			return
		}
		e.logger.Debug("ignoring unrecognized header",
			zap.String("section", sectionID),
			zap.String("header", text))
	})

	parsed := append([]int(nil), years...)
	if ttm && len(years) > 0 {
		years = append(years, maxInt(years)+1)
	}
	return years, parsed
}

func (e *TableExtractor) isDoubtful(years []int) bool {
	if len(years) < 2 {
		return true
	}
	current := e.now().Year()
	for _, y := range years {
		if y == current || y == current-1 {
			return false
		}
	}
	return true
}

type cell struct {
	value float64
	empty bool
}

// parseBody reads every body row. Values are kept positionally even when the
// row label is empty, so names and rows can fall out of step.
func parseBody(table *goquery.Selection) ([]string, [][]cell, error) {
	names := []string{}
	var rows [][]cell
	var err error

	table.Find("tbody").First().Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		tds := tr.Find("td")
		if tds.Length() == 0 {
			return true
		}
		var row []cell
		tds.EachWithBreak(func(j int, td *goquery.Selection) bool {
			if j == 0 {
				if label := NormalizeLabel(cellText(td)); label != "" {
					names = append(names, label)
				}
				return true
			}
			var c cell
			c, err = parseCell(cellText(td))
			if err != nil {
				return false
			}
			row = append(row, c)
			return true
		})
		if err != nil {
			return false
		}
		rows = append(rows, row)
		return true
	})

	if err != nil {
		return nil, nil, err
	}
	return names, rows, nil
}

func parseCell(text string) (cell, error) {
	raw := strings.TrimSpace(punctuationReplacer.Replace(text))
	if raw == "" {
		return cell{empty: true}, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return cell{}, err
	}
	return cell{value: v}, nil
}

// ParseValue cleans a table cell and parses it. Blank cells parse to zero.
func ParseValue(text string) (float64, error) {
	c, err := parseCell(text)
	if err != nil {
		return 0, err
	}
	return c.value, nil
}

// NormalizeLabel turns a row label into a metric name: punctuation removed,
// whitespace runs joined with underscores, trailing periods dropped, renamed
// through the legacy terminology table.
func NormalizeLabel(text string) string {
	name := strings.Join(strings.Fields(punctuationReplacer.Replace(text)), "_")
	name = strings.TrimRight(name, ".")
	if renamed, ok := metricRenames[name]; ok {
		return renamed
	}
	return name
}

func parseYear(token string) (int, bool) {
	if token == "" {
		return 0, false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	year, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	return year, true
}

func findByID(root *goquery.Selection, tag, id string) *goquery.Selection {
	return root.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr("id")
		return ok && v == id
	}).First()
}

// cellText returns the text content with whitespace runs collapsed.
// cellText folds compatibility characters (full-width digits, ligatures)
// before collapsing whitespace.
func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s.Text())), " ")
}

func maxInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
