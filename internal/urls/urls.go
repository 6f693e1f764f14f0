// Package urls normalizes storefront hrefs and classifies them as product
// pages, listing pages, or noise. Classification is ordered: exclusion
// rules run first, then inclusion rules, and anything unmatched is not a
// product.
package urls

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Exclusion rules: filter/query variants, pagination, and service pages.
// Checked before any inclusion rule so a filtered product listing never
// classifies as a product.
var exclusionRules = []*regexp.Regexp{
	regexp.MustCompile(`\.html\?`),
	regexp.MustCompile(`cat=`),
	regexp.MustCompile(`talle_rap=`),
	regexp.MustCompile(`color_filtro_cc=`),
	regexp.MustCompile(`discount_rate=`),
	regexp.MustCompile(`p=\d+`),
	regexp.MustCompile(`faq/`),
	regexp.MustCompile(`stores/`),
	regexp.MustCompile(`como-comprar/`),
	regexp.MustCompile(`contact/`),
	regexp.MustCompile(`vintage/girls`),
	regexp.MustCompile(`/woman/.*\.html$`),
	regexp.MustCompile(`/girls/.*\.html$`),
	regexp.MustCompile(`/denim/.*\.html$`),
	regexp.MustCompile(`/sale/.*\.html$`),
	regexp.MustCompile(`/home/.*\.html$`),
	regexp.MustCompile(`/vintage/.*\.html$`),
}

// Inclusion rules: long numeric product codes and explicit product paths.
var inclusionRules = []*regexp.Regexp{
	regexp.MustCompile(`^\d{8,}`),
	regexp.MustCompile(`producto/`),
	regexp.MustCompile(`product/`),
	regexp.MustCompile(`\d{8,}p\d+`),
	regexp.MustCompile(`\d{8,}.*\.html$`),
}

// Normalize resolves href against base and returns an absolute http(s)
// URL, or "" if the href is empty or cannot be resolved to one.
func Normalize(href, base string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref).String()
	if !strings.HasPrefix(resolved, "http") {
		return ""
	}
	return resolved
}

// IsProduct reports whether u points at an individual product page.
// Exclusions win over inclusions; an unmatched URL is not a product.
func IsProduct(u string) bool {
	for _, re := range exclusionRules {
		if re.MatchString(u) {
			return false
		}
	}
	for _, re := range inclusionRules {
		if re.MatchString(u) {
			return true
		}
	}
	return false
}

// InferCategory derives a (category, subcategory) pair from a product
// URL's path segments. Used by the worker to recover taxonomy from a bare
// queue message.
func InferCategory(u string) (category, subcategory string) {
	switch {
	case strings.Contains(u, "/woman/"):
		category = "WOMAN"
		switch {
		case strings.Contains(u, "/jean"):
			subcategory = "JEANS"
		case strings.Contains(u, "/camisas-y-tops"), strings.Contains(u, "/remeras"):
			subcategory = "CAMISAS_Y_TOPS"
		case strings.Contains(u, "/vestidos"):
			subcategory = "VESTIDOS"
		case strings.Contains(u, "/pantalones"):
			subcategory = "PANTALONES"
		default:
			subcategory = "GENERAL"
		}
	case strings.Contains(u, "/girls/"):
		category = "GIRLS"
		subcategory = "GENERAL"
	default:
		category = "UNKNOWN"
		subcategory = "GENERAL"
	}
	return category, subcategory
}

// WithPage appends a ?p=N (or &p=N) pagination parameter to u. Used to
// build synthetic next-page URLs when pagination is client-rendered.
func WithPage(u string, page int) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "p=" + strconv.Itoa(page)
}
