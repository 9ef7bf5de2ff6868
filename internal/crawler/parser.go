package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/loupix57/prospectlab-sub002/internal/extract"
)

// linkSelectors lists the elements whose URL attribute may lead to
// another page of the site.
var linkSelectors = []struct {
	selector string
	attr     string
}{
	{"a[href]", "href"},
	{"area[href]", "href"},
	{"iframe[src]", "src"},
	{"frame[src]", "src"},
}

// extractLinks returns the absolute URLs of every navigable link on the
// page, fragments removed and without duplicates. Anchors come first,
// then areas and frames, each in document order.
// Scope filtering is left to the frontier.
func extractLinks(doc *extract.Document) []string {
	seen := make(map[string]struct{})
	links := make([]string, 0)

	for _, ls := range linkSelectors {
		doc.DOM().Find(ls.selector).Each(func(_ int, s *goquery.Selection) {
			raw := strings.TrimSpace(s.AttrOr(ls.attr, ""))
			if strings.HasPrefix(raw, "#") {
				return
			}
			u, ok := doc.Resolve(raw)
			if !ok || (u.Scheme != "http" && u.Scheme != "https") {
				return
			}
			link := NormalizeURL(u)
			if _, dup := seen[link]; dup {
				return
			}
			seen[link] = struct{}{}
			links = append(links, link)
		})
	}
	return links
}
