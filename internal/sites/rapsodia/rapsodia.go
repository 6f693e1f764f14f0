// Package rapsodia implements the catalog.Site capability interface for
// the Rapsodia storefront (Magento). Selectors target the Magento theme
// the site ships; generic fallbacks cover theme drift.
package rapsodia

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/urls"
)

const (
	defaultBaseURL = "https://www.rapsodia.com.ar"
	brandName      = "Rapsodia"

	// The product image CDN. Anything outside this prefix is chrome, not
	// product photography.
	imagePrefix = "https://grupo-alas.com.ar/media/catalog/product/"
)

var subcategorySelectors = []string{
	"a[href*='/woman/']", "a[href*='/girls/']", "a[href*='/denim/']",
	"a[href*='/sale/']", "a[href*='/home/']", "a[href*='/vintage/']",
	".category-link", ".subcategory-link", "nav a",
}

var genericProductSelectors = []string{
	"a[href*='/producto/']", "a[href*='/product/']",
	".product-item a", ".item a", ".product-link",
	"a[data-product]", "a[href*='.html']",
	".product-card a", ".item-card a",
	"li.product-item a", "a.product-item-link",
	".product-item-photo-link",
}

// Site is the Rapsodia storefront implementation.
type Site struct {
	baseURL string
	log     *zap.Logger
}

// New builds a Site. An empty baseURL falls back to the production
// storefront.
func New(baseURL string, log *zap.Logger) *Site {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Site{baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

// Brand returns the brand name as persisted.
func (s *Site) Brand() string { return brandName }

// BaseURL returns the storefront root.
func (s *Site) BaseURL() string { return s.baseURL }

// DiscoverProductURLs extracts product URLs from a listing page. The
// Magento product grid is tried first; generic selectors only run when
// the grid yields nothing.
func (s *Site) DiscoverProductURLs(pageURL string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var found []string
	seen := make(map[string]struct{})
	add := func(href string) {
		full := urls.Normalize(href, s.baseURL)
		if full == "" || !urls.IsProduct(full) {
			return
		}
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}
		found = append(found, full)
	}

	doc.Find("ol.products.list.items.product-items li.item.product.product-item").
		Find("a[href*='.html']").
		Each(func(_ int, sel *goquery.Selection) {
			if href, ok := sel.Attr("href"); ok {
				add(href)
			}
		})

	if len(found) == 0 {
		for _, selector := range genericProductSelectors {
			doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
				if href, ok := sel.Attr("href"); ok {
					add(href)
				}
			})
		}
	}
	return found, nil
}

// DiscoverSubcategoryURLs extracts listing links from a category seed
// page: taxonomy paths and nav links that do not classify as products.
func (s *Site) DiscoverSubcategoryURLs(pageURL string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var found []string
	seen := make(map[string]struct{})
	for _, selector := range subcategorySelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			full := urls.Normalize(href, s.baseURL)
			if full == "" || full == pageURL || urls.IsProduct(full) {
				return
			}
			if !strings.HasPrefix(full, s.baseURL) {
				return
			}
			if _, dup := seen[full]; dup {
				return
			}
			seen[full] = struct{}{}
			found = append(found, full)
		})
	}
	return found, nil
}

// HasProductMarkers reports whether the page carries product tiles. Used
// by the discovery walker's confirmatory probe before trusting an empty
// streak.
func (s *Site) HasProductMarkers(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if doc.Find("ol.products.list.items.product-items li.item.product.product-item").Length() > 0 {
		return true
	}
	return doc.Find(".product-item, .product-card, a.product-item-link").Length() > 0
}
