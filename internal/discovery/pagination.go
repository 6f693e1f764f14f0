// Package discovery walks category listing pages, resolves pagination,
// and decides when a category has been fully explored.
package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/grupo-alas/catalog-sync/internal/urls"
)

var pageParamRe = regexp.MustCompile(`p=(\d+)`)

// Structural selectors scanned for next-page affordances, most specific
// first.
var paginationSelectors = []string{
	".pagination a", ".pagination-item a", ".page-item a",
	"a[aria-label*='next']", "a[aria-label*='siguiente']",
	"a[title*='next']", "a[title*='siguiente']",
	"a.next", "a.next-page", "a[class*='next']",
	"a[href*='page=']", "a[href*='pagina=']", "a[href*='p=']",
	".pager a", ".pagination-container a", "nav.pagination a",
	"a[data-page]", "a[data-pagination]", ".pagination-wrapper a",
	"button[data-action*='load']", "a[data-action*='load']",
	".load-more", ".show-more", ".view-more",
}

// Candidate URLs matching any of these are never pagination targets.
var invalidCandidateRules = []*regexp.Regexp{
	regexp.MustCompile(`#`),
	regexp.MustCompile(`javascript:`),
	regexp.MustCompile(`void\(0\)`),
	regexp.MustCompile(`cat=`),
	regexp.MustCompile(`talle_rap=`),
	regexp.MustCompile(`color_filtro_cc=`),
	regexp.MustCompile(`discount_rate=`),
}

// Resolver computes next-page URLs for one storefront host.
type Resolver struct {
	baseURL string
	host    string
}

// NewResolver builds a Resolver rooted at baseURL. Candidates on other
// hosts are rejected.
func NewResolver(baseURL string) (*Resolver, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Resolver{baseURL: baseURL, host: u.Host}, nil
}

// ExtractPaginationLinks returns the pagination candidates found in doc,
// deduplicated preserving first-seen order. Product URLs, cross-host
// links, filter variants, and the current URL itself are filtered out.
func (r *Resolver) ExtractPaginationLinks(doc *goquery.Document, currentURL string) []string {
	var candidates []string

	collect := func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		full := urls.Normalize(href, r.baseURL)
		if full != "" && r.validCandidate(full, currentURL) {
			candidates = append(candidates, full)
		}
	}

	for _, selector := range paginationSelectors {
		doc.Find(selector).Each(collect)
	}

	// Explicit page-number links anywhere on the page.
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if pageParamRe.MatchString(href) {
			collect(0, sel)
		}
	})

	seen := make(map[string]struct{}, len(candidates))
	unique := candidates[:0]
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}

func (r *Resolver) validCandidate(candidate, currentURL string) bool {
	if candidate == currentURL {
		return false
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host != r.host {
		return false
	}
	if urls.IsProduct(candidate) {
		return false
	}
	for _, re := range invalidCandidateRules {
		if re.MatchString(candidate) {
			return false
		}
	}
	return true
}

// FindNextPage picks the next page from candidates relative to
// currentURL. It prefers a candidate whose page index is exactly one past
// the current index (absent index means page 1), then falls back to the
// first candidate that differs from currentURL. Returns "" when no
// candidate qualifies; never returns currentURL.
func (r *Resolver) FindNextPage(candidates []string, currentURL string) string {
	if len(candidates) == 0 {
		return ""
	}
	current := pageIndex(currentURL)
	for _, c := range candidates {
		if pageIndex(c) == current+1 {
			return c
		}
	}
	for _, c := range candidates {
		if c != currentURL {
			return c
		}
	}
	return ""
}

func pageIndex(u string) int {
	m := pageParamRe.FindStringSubmatch(u)
	if m == nil {
		return 1
	}
	n := 0
	for _, ch := range m[1] {
		n = n*10 + int(ch-'0')
	}
	return n
}

// Signals reports client-side pagination affordances. Advisory only: the
// walker builds bounded synthetic ?p=N URLs instead of executing scripts.
type Signals struct {
	HasLoadMore       bool
	HasInfiniteScroll bool
}

var loadMoreSelectors = []string{
	"button[data-action*='load']", "a[data-action*='load']",
	".load-more", ".show-more", ".view-more", ".load-more-btn",
	"button[class*='load']", "a[class*='load']",
	"button[onclick*='load']", "a[onclick*='load']",
	"button[data-load]", "a[data-load]",
	".pagination-load-more", ".infinite-scroll-trigger",
}

var infiniteScrollSelectors = []string{
	"[data-infinite-scroll]", "[data-scroll]", "[data-lazy]",
	".infinite-scroll", ".lazy-load", ".scroll-trigger",
	"[data-load-more]", "[data-next-page]",
}

var scriptKeywords = []string{"loadmore", "infinite", "scroll", "pagination", "ajax"}

// DetectClientSidePagination scans doc for load-more buttons, infinite
// scroll markers, and pagination-related inline scripts.
func DetectClientSidePagination(doc *goquery.Document) Signals {
	var s Signals
	for _, selector := range loadMoreSelectors {
		if doc.Find(selector).Length() > 0 {
			s.HasLoadMore = true
			break
		}
	}
	for _, selector := range infiniteScrollSelectors {
		if doc.Find(selector).Length() > 0 {
			s.HasInfiniteScroll = true
			break
		}
	}
	if !s.HasLoadMore {
		doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			content := strings.ToLower(sel.Text())
			for _, kw := range scriptKeywords {
				if strings.Contains(content, kw) {
					s.HasLoadMore = true
					return false
				}
			}
			return true
		})
	}
	return s
}

// Active reports whether any client-side pagination affordance was found.
func (s Signals) Active() bool {
	return s.HasLoadMore || s.HasInfiniteScroll
}
