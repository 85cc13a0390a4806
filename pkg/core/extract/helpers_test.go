package extract

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

func tableHTML(headers []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString(`<table class="data-table responsive-text-nowrap"><thead><tr>`)
	for _, h := range headers {
		fmt.Fprintf(&sb, "<th>%s</th>", h)
	}
	sb.WriteString("</tr></thead><tbody>")
	for _, row := range rows {
		sb.WriteString("<tr>")
		for _, c := range row {
			fmt.Fprintf(&sb, "<td>%s</td>", c)
		}
		sb.WriteString("</tr>")
	}
	sb.WriteString("</tbody></table>")
	return sb.String()
}

func sectionHTML(id string, body string) string {
	return fmt.Sprintf(`<section id="%s" class="card card-large"><h2>%s</h2>%s</section>`, id, id, body)
}

func tabHTML(id string, body string) string {
	return fmt.Sprintf(`<div id="%s" class="hidden">%s</div>`, id, body)
}

func pageHTML(sections ...string) string {
	return "<html><body><main>" + strings.Join(sections, "\n") + "</main></body></html>"
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return doc
}

func clockAt(year int) func() time.Time {
	return func() time.Time { return time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC) }
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fullPage is a five-section page reporting through FY2023 with a TTM column
// in Profit & Loss and a single-year yearly shareholding tab.
func fullPage() string {
	return pageHTML(
		sectionHTML("quarters", tableHTML(
			[]string{"", "Jun 2023", "Sep 2023"},
			[][]string{{"Sales", "1", "2"}},
		)),
		sectionHTML("profit-loss", tableHTML(
			[]string{"", "Mar 2022", "Mar 2023", "TTM"},
			[][]string{
				{`<button class="button-plain">Revenue&nbsp;<span class="blue-icon">+</span></button>`, "100", "120", "130"},
				{"Net Profit", "10", "12", "13"},
			},
		)),
		sectionHTML("balance-sheet", tableHTML(
			[]string{"", "Mar 2022", "Mar 2023"},
			[][]string{{"Borrowings +", "50", "60"}},
		)),
		sectionHTML("cash-flow", tableHTML(
			[]string{"", "Mar 2022", "Mar 2023"},
			[][]string{{"Cash from Operating Activity +", "20", "25"}},
		)),
		sectionHTML("ratios", tableHTML(
			[]string{"", "Mar 2022", "Mar 2023"},
			[][]string{{"ROCE %", "15%", "18%"}},
		)),
		sectionHTML("shareholding",
			tabHTML("quarterly-shp", tableHTML(
				[]string{"", "Sep 2023", "Dec 2023"},
				[][]string{{"Promoters +", "50.00%", "51.00%"}},
			))+
				tabHTML("yearly-shp", tableHTML(
					[]string{"", "Mar 2023"},
					[][]string{{"Promoters +", "55.50%"}},
				)),
		),
	)
}

func goqueryDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
