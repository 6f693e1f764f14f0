package discovery

import (
	"fmt"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

// CompletionPolicy decides when a category walk is done. The storefront
// exposes no authoritative last-page signal, so completion is inferred
// from a set of safety nets checked in priority order. The predicate is
// monotone: a snapshot that is equal-or-worse on every counter can only
// move it from not-complete to complete.
type CompletionPolicy struct {
	// EmptyPageStreak completes after this many consecutive pages with no
	// new products.
	EmptyPageStreak int
	// StallPages completes when no new product has appeared at all and
	// more than this many pages were processed.
	StallPages int
	// ProductCap completes once the category holds more than this many
	// products.
	ProductCap int
	// PageCap is the hard page-count ceiling.
	PageCap int
}

// CategoryPolicy is the default policy for top-level category walks.
func CategoryPolicy() CompletionPolicy {
	return CompletionPolicy{EmptyPageStreak: 3, StallPages: 10, ProductCap: 200, PageCap: 20}
}

// PaginationPolicy is the looser variant governing per-subcategory
// pagination loops.
func PaginationPolicy() CompletionPolicy {
	return CompletionPolicy{EmptyPageStreak: 3, StallPages: 15, ProductCap: 300, PageCap: 25}
}

// Complete evaluates the policy over a progress snapshot. The returned
// reason is empty while the walk should continue.
func (p CompletionPolicy) Complete(prog catalog.CategoryProgress) (bool, string) {
	switch {
	case prog.EmptyStreak >= p.EmptyPageStreak:
		return true, fmt.Sprintf("%d consecutive empty pages", prog.EmptyStreak)
	case prog.NewProducts == 0 && prog.PagesProcessed > p.StallPages:
		return true, fmt.Sprintf("no new products after %d pages", prog.PagesProcessed)
	case prog.ProductsFound > p.ProductCap:
		return true, fmt.Sprintf("product cap reached (%d)", prog.ProductsFound)
	case prog.PagesProcessed > p.PageCap:
		return true, fmt.Sprintf("page cap reached (%d)", prog.PagesProcessed)
	}
	return false, ""
}
