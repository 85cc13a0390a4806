package extract

import (
	"errors"
	"testing"
)

func TestExtract_TTMColumn(t *testing.T) {
	doc := mustDoc(t, pageHTML(sectionHTML("profit-loss", tableHTML(
		[]string{"", "2021", "2022", "TTM"},
		[][]string{{"Sales", "10", "20", "30"}},
	))))

	e := NewTableExtractor(nil)
	e.SetClock(clockAt(2023))

	data, err := e.Extract(doc, "profit-loss", "")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := []int{2021, 2022, 2023}
	if len(data.Years) != len(want) {
		t.Fatalf("Years = %v, want %v", data.Years, want)
	}
	for i := range want {
		if data.Years[i] != want[i] {
			t.Fatalf("Years = %v, want %v", data.Years, want)
		}
	}
	if got := data.YearValues[2023]; !floatsEqual(got, []float64{30}) {
		t.Errorf("YearValues[2023] = %v, want [30]", got)
	}
	if data.Doubtful {
		t.Error("Doubtful = true, want false")
	}
}

func TestExtract_HeaderParsing(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    []int
	}{
		{"month prefix", []string{"", "Mar 2022", "Mar 2023"}, []int{2022, 2023}},
		{"unrecognized header ignored", []string{"", "Mar 2022", "Notes", "Mar 2023"}, []int{2022, 2023}},
		{"ttm without years", []string{"", "TTM"}, nil},
		{"lowercase ttm ignored", []string{"", "Mar 2023", "ttm"}, []int{2023}},
		{"ttm after unordered years", []string{"", "2023", "2021", "TTM"}, []int{2023, 2021, 2024}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, pageHTML(sectionHTML("ratios", tableHTML(tt.headers, nil))))
			data, err := NewTableExtractor(nil).Extract(doc, "ratios", "")
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if len(data.Years) != len(tt.want) {
				t.Fatalf("Years = %v, want %v", data.Years, tt.want)
			}
			for i := range tt.want {
				if data.Years[i] != tt.want[i] {
					t.Errorf("Years = %v, want %v", data.Years, tt.want)
				}
			}
		})
	}
}

func TestExtract_DoubtDetection(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		year    int
		want    bool
	}{
		{"current year present", []string{"", "Mar 2023", "Mar 2024"}, 2024, false},
		{"previous year present", []string{"", "Mar 2022", "Mar 2023"}, 2024, false},
		{"stale years", []string{"", "Mar 2019", "Mar 2020"}, 2024, true},
		{"single year", []string{"", "Mar 2024"}, 2024, true},
		{"no years", []string{"", "Notes"}, 2024, true},
		// The synthetic TTM year does not count as a reported year.
		{"ttm does not rescue stale section", []string{"", "Mar 2021", "Mar 2022", "TTM"}, 2024, true},
		{"ttm does not add a second year", []string{"", "Mar 2024", "TTM"}, 2024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, pageHTML(sectionHTML("balance-sheet", tableHTML(tt.headers, nil))))
			e := NewTableExtractor(nil)
			e.SetClock(clockAt(tt.year))
			data, err := e.Extract(doc, "balance-sheet", "")
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if data.Doubtful != tt.want {
				t.Errorf("Doubtful = %v, want %v", data.Doubtful, tt.want)
			}
		})
	}
}

func TestExtract_BlankCellsDroppedPerYear(t *testing.T) {
	doc := mustDoc(t, pageHTML(sectionHTML("cash-flow", tableHTML(
		[]string{"", "Mar 2022", "Mar 2023"},
		[][]string{
			{"Investing Activity", "5", ""},
			{"Financing Activity", "0", "7"},
			{"Net Cash Flow", "1,234%", "-3"},
		},
	))))

	data, err := NewTableExtractor(nil).Extract(doc, "cash-flow", "")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := data.YearValues[2022]; !floatsEqual(got, []float64{5, 0, 1234}) {
		t.Errorf("YearValues[2022] = %v, want [5 0 1234]", got)
	}
	// Blank is dropped, a literal zero would be kept.
	if got := data.YearValues[2023]; !floatsEqual(got, []float64{7, -3}) {
		t.Errorf("YearValues[2023] = %v, want [7 -3]", got)
	}
}

// Known edge case: an unlabelled row still contributes values, so metric
// names and value positions fall out of step.
func TestExtract_CompatibilityCharacters(t *testing.T) {
	doc := mustDoc(t, pageHTML(sectionHTML("ratios", tableHTML(
		[]string{"", "Mar\u00a02023", "Mar 2024"},
		[][]string{{"ROCE\u00a0%", "１２", "15"}},
	))))

	data, err := NewTableExtractor(nil).Extract(doc, "ratios", "")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(data.MetricNames) != 1 || data.MetricNames[0] != "ROCE" {
		t.Errorf("MetricNames = %v, want [ROCE]", data.MetricNames)
	}
	if got := data.YearValues[2023]; !floatsEqual(got, []float64{12}) {
		t.Errorf("YearValues[2023] = %v, want [12]", got)
	}
}

func TestExtract_UnlabelledRowKeepsValues(t *testing.T) {
	doc := mustDoc(t, pageHTML(sectionHTML("ratios", tableHTML(
		[]string{"", "Mar 2022", "Mar 2023"},
		[][]string{
			{"Debtor Days", "30", "31"},
			{"", "1", "2"},
			{"ROCE %", "15", "16"},
		},
	))))

	data, err := NewTableExtractor(nil).Extract(doc, "ratios", "")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(data.MetricNames) != 2 || data.MetricNames[0] != "Debtor_Days" || data.MetricNames[1] != "ROCE" {
		t.Errorf("MetricNames = %v, want [Debtor_Days ROCE]", data.MetricNames)
	}
	if got := data.YearValues[2022]; !floatsEqual(got, []float64{30, 1, 15}) {
		t.Errorf("YearValues[2022] = %v, want [30 1 15]", got)
	}
}

func TestExtract_ShortRow(t *testing.T) {
	doc := mustDoc(t, pageHTML(sectionHTML("ratios", tableHTML(
		[]string{"", "Mar 2022", "Mar 2023"},
		[][]string{{"Debtor Days", "30"}},
	))))

	data, err := NewTableExtractor(nil).Extract(doc, "ratios", "")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := data.YearValues[2023]; len(got) != 0 {
		t.Errorf("YearValues[2023] = %v, want empty", got)
	}
}

func TestExtract_TabScope(t *testing.T) {
	doc := mustDoc(t, fullPage())
	data, err := NewTableExtractor(nil).Extract(doc, "shareholding", "yearly-shp")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := data.YearValues[2023]; !floatsEqual(got, []float64{55.5}) {
		t.Errorf("YearValues[2023] = %v, want [55.5]", got)
	}
	if len(data.Years) != 1 {
		t.Errorf("Years = %v, want only the yearly tab's header", data.Years)
	}
}

func TestExtract_Errors(t *testing.T) {
	page := pageHTML(
		sectionHTML("profit-loss", "<p>no table here</p>"),
		sectionHTML("shareholding", tabHTML("quarterly-shp", "")),
		sectionHTML("ratios", tableHTML([]string{"", "Mar 2023"}, [][]string{{"ROCE", "n/a"}})),
	)

	tests := []struct {
		name    string
		section string
		tab     string
		want    error
	}{
		{"missing section", "cash-flow", "", ErrSectionNotFound},
		{"missing tab", "shareholding", "yearly-shp", ErrTabNotFound},
		{"missing table", "profit-loss", "", ErrTableNotFound},
		{"missing table in tab", "shareholding", "quarterly-shp", ErrTableNotFound},
		{"malformed value", "ratios", "", ErrMalformedValue},
	}

	doc := mustDoc(t, page)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTableExtractor(nil).Extract(doc, tt.section, tt.tab)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Extract() error = %v, want %v", err, tt.want)
			}
			if !IsStructural(err) {
				t.Errorf("IsStructural(%v) = false, want true", err)
			}
			var se *SectionError
			if !errors.As(err, &se) || se.SectionID != tt.section {
				t.Errorf("error %v does not carry section %q", err, tt.section)
			}
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Revenue", "Sales"},
		{"Revenue +", "Sales"},
		{"Financing Profit", "Operating_Profit"},
		{"Financing Margin %", "OPM"},
		{"OPM %", "OPM"},
		{"  Net   Profit  ", "Net_Profit"},
		{"EPS in Rs.", "EPS_in_Rs"},
		{"Dividend Payout %", "Dividend_Payout"},
		{"Revenue Growth", "Revenue_Growth"},
		{"", ""},
		{"+", ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := NormalizeLabel(tt.label); got != tt.want {
				t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"1,234%", 1234, false},
		{"", 0, false},
		{"   ", 0, false},
		{"+12.5", 12.5, false},
		{"-3", -3, false},
		{" 7 ", 7, false},
		{"0", 0, false},
		{"1,23,456.78", 123456.78, false},
		{"abc", 0, true},
		{"12 34", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseValue(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseValue(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseValue(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
