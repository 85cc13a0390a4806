package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// CompanyProfile is the descriptive header of a company page.
type CompanyProfile struct {
	Name     string
	About    string
	Website  string
	BSELink  string
	NSELink  string
	Sector   string
	Industry string
}

// ParseCompanyProfile reads the company header and the peers breadcrumb.
// The NSE link, sector and industry are optional.
func ParseCompanyProfile(doc *goquery.Document) (CompanyProfile, error) {
	top := doc.Find("#top").First()
	if top.Length() == 0 {
		return CompanyProfile{}, &SectionError{SectionID: "top", Err: ErrSectionNotFound}
	}

	profile := CompanyProfile{
		Name:  cellText(top.Find("h1").First()),
		About: cellText(top.Find(".company-profile p").First()),
	}

	var links []string
	top.Find(".company-links").First().Find("a").Each(func(_ int, a *goquery.Selection) {
		links = append(links, strings.TrimSpace(a.AttrOr("href", "")))
	})
	if len(links) > 0 {
		profile.Website = links[0]
	}
	if len(links) > 1 {
		profile.BSELink = links[1]
	}
	if len(links) > 2 {
		profile.NSELink = links[2]
	}

	// The breadcrumb reads "Sector:  <sector>  Industry:  <industry>".
	sub := doc.Find("#peers .sub").First()
	if sub.Length() > 0 {
		var terms []string
		text := strings.TrimSpace(strings.ReplaceAll(sub.Text(), "\n", ""))
		for _, term := range multiSpace.Split(text, -1) {
			if term = strings.TrimSpace(term); term != "" {
				terms = append(terms, term)
			}
		}
		if len(terms) > 1 {
			profile.Sector = terms[1]
		}
		if len(terms) > 3 {
			profile.Industry = terms[3]
		}
	}

	return profile, nil
}
