package discovery

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
	"github.com/grupo-alas/catalog-sync/internal/metrics"
	"github.com/grupo-alas/catalog-sync/internal/urls"
)

// EmitFunc receives each newly discovered product URL exactly once per
// run. Implementations publish to the queue or collect in memory.
type EmitFunc func(ctx context.Context, url string) error

// Config tunes a Walker. Zero values fall back to the engine defaults.
type Config struct {
	CategoryPolicy   CompletionPolicy
	PaginationPolicy CompletionPolicy
	// PageCeiling bounds each subcategory pagination loop independently
	// of the completion policy.
	PageCeiling int
}

// Walker drives one site's category walks: fetches listing pages, emits
// deduplicated product URLs, and stops each category per the completion
// policy. Not safe for concurrent Walk calls; the dedup set and progress
// counters are mutated from a single logical thread of control.
type Walker struct {
	fetcher  catalog.Fetcher
	site     catalog.Site
	resolver *Resolver
	emit     EmitFunc
	cfg      Config
	log      *zap.Logger

	seen     map[string]struct{}
	progress map[string]*catalog.CategoryProgress
}

// WalkResult summarizes one category walk.
type WalkResult struct {
	Category        string
	PagesVisited    int
	ProductsEmitted int
	Reason          string
}

// NewWalker wires a Walker for one site.
func NewWalker(fetcher catalog.Fetcher, site catalog.Site, emit EmitFunc, cfg Config, log *zap.Logger) (*Walker, error) {
	resolver, err := NewResolver(site.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("resolver for %s: %w", site.BaseURL(), err)
	}
	if cfg.CategoryPolicy == (CompletionPolicy{}) {
		cfg.CategoryPolicy = CategoryPolicy()
	}
	if cfg.PaginationPolicy == (CompletionPolicy{}) {
		cfg.PaginationPolicy = PaginationPolicy()
	}
	if cfg.PageCeiling <= 0 {
		cfg.PageCeiling = 5
	}
	metrics.Init()
	return &Walker{
		fetcher:  fetcher,
		site:     site,
		resolver: resolver,
		emit:     emit,
		cfg:      cfg,
		log:      log,
		seen:     make(map[string]struct{}),
		progress: make(map[string]*catalog.CategoryProgress),
	}, nil
}

// Seen returns the product URLs discovered so far. Used by the
// interruption flush.
func (w *Walker) Seen() []string {
	out := make([]string, 0, len(w.seen))
	for u := range w.seen {
		out = append(out, u)
	}
	return out
}

// Progress returns the per-category counters accumulated so far.
func (w *Walker) Progress() []catalog.CategoryProgress {
	out := make([]catalog.CategoryProgress, 0, len(w.progress))
	for _, p := range w.progress {
		out = append(out, *p)
	}
	return out
}

// Walk explores one category: the seed page's direct products, then each
// subcategory's pagination loop. Fetch failures count as empty pages and
// never abort the walk; only context cancellation does.
func (w *Walker) Walk(ctx context.Context, target catalog.CrawlTarget) (WalkResult, error) {
	prog := w.progressFor(target.Category)
	result := WalkResult{Category: target.Category}

	page, err := w.fetcher.Fetch(ctx, target.SeedURL)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		w.log.Warn("seed fetch failed",
			zap.String("category", target.Category),
			zap.String("url", target.SeedURL),
			zap.Error(err))
		prog.RecordPage(0)
		result.PagesVisited = 1
		result.Reason = "seed fetch failed"
		return result, nil
	}
	subcategories, err := w.site.DiscoverSubcategoryURLs(target.SeedURL, page.Body)
	if err != nil {
		w.log.Warn("subcategory discovery failed",
			zap.String("category", target.Category), zap.Error(err))
	}

	if len(subcategories) == 0 {
		// Listing with no subcategory nav: paginate the seed itself,
		// reusing the body already fetched.
		visited, emitted, err := w.paginate(ctx, target.SeedURL, page.Body, prog)
		result.PagesVisited += visited
		result.ProductsEmitted += emitted
		if err != nil {
			return result, err
		}
		if done, reason := w.cfg.CategoryPolicy.Complete(*prog); done {
			result.Reason = reason
		} else {
			result.Reason = "pagination exhausted"
		}
		return result, nil
	}

	// Direct products on the seed page itself.
	result.PagesVisited++
	emitted, err := w.emitProducts(ctx, target.SeedURL, page.Body)
	if err != nil {
		return result, err
	}
	prog.RecordPage(emitted)
	metrics.ObserveDiscoveryPage(target.Category)
	metrics.ObserveDiscoveredProducts(target.Category, emitted)
	result.ProductsEmitted += emitted

	for _, sub := range subcategories {
		if done, reason := w.cfg.CategoryPolicy.Complete(*prog); done {
			result.Reason = reason
			w.log.Info("category complete",
				zap.String("category", target.Category),
				zap.String("reason", reason))
			return result, nil
		}
		visited, emitted, err := w.paginate(ctx, sub, nil, prog)
		result.PagesVisited += visited
		result.ProductsEmitted += emitted
		if err != nil {
			return result, err
		}
	}

	if done, reason := w.cfg.CategoryPolicy.Complete(*prog); done {
		result.Reason = reason
	} else {
		result.Reason = "all subcategories exhausted"
	}
	return result, nil
}

// paginate follows one listing's pagination until the policy fires, the
// next page cannot be resolved, or the hard page ceiling is hit.
func (w *Walker) paginate(ctx context.Context, startURL string, initial []byte, catProg *catalog.CategoryProgress) (pages, products int, err error) {
	subProg := &catalog.CategoryProgress{Category: catProg.Category}
	visited := make(map[string]struct{})

	current := startURL
	prefetched := initial

	for page := 1; page <= w.cfg.PageCeiling; page++ {
		if err := ctx.Err(); err != nil {
			return pages, products, err
		}
		if _, loop := visited[current]; loop {
			w.log.Debug("pagination cycle detected", zap.String("url", current))
			return pages, products, nil
		}
		visited[current] = struct{}{}

		body := prefetched
		prefetched = nil
		if body == nil {
			fetched, ferr := w.fetcher.Fetch(ctx, current)
			if ferr != nil {
				if ctx.Err() != nil {
					return pages, products, ctx.Err()
				}
				w.log.Warn("listing fetch failed, counting page as empty",
					zap.String("url", current), zap.Error(ferr))
			} else {
				body = fetched.Body
			}
		}
		pages++

		emitted := 0
		if body != nil {
			emitted, err = w.emitProducts(ctx, current, body)
			if err != nil {
				return pages, products, err
			}
		}
		products += emitted
		subProg.RecordPage(emitted)
		catProg.RecordPage(emitted)
		metrics.ObserveDiscoveryPage(catProg.Category)
		metrics.ObserveDiscoveredProducts(catProg.Category, emitted)

		if done, reason := w.cfg.PaginationPolicy.Complete(*subProg); done {
			w.log.Info("pagination complete",
				zap.String("url", current), zap.String("reason", reason))
			return pages, products, nil
		}
		if done, reason := w.cfg.CategoryPolicy.Complete(*catProg); done {
			w.log.Info("category budget exhausted mid-pagination",
				zap.String("url", current), zap.String("reason", reason))
			return pages, products, nil
		}

		next := w.nextPage(body, current, startURL, page)
		if next == "" {
			return pages, products, nil
		}

		// Two empty pages in a row: probe the next page for product
		// markers before trusting the streak. One anomalous page must
		// not truncate a category.
		if subProg.EmptyStreak >= 2 {
			probe, perr := w.fetcher.Fetch(ctx, next)
			pages++
			if perr != nil || !w.site.HasProductMarkers(probe.Body) {
				w.log.Info("empty streak confirmed by probe",
					zap.String("url", next))
				return pages, products, nil
			}
			// The probe found products; reuse its body as the next page.
			prefetched = probe.Body
		}
		current = next
	}
	return pages, products, nil
}

// nextPage resolves the next pagination URL from the page body. When no
// real link exists but client-side pagination affordances are present, it
// builds a bounded synthetic ?p=N URL off the loop's start URL.
func (w *Walker) nextPage(body []byte, current, startURL string, page int) string {
	if body == nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	candidates := w.resolver.ExtractPaginationLinks(doc, current)
	if next := w.resolver.FindNextPage(candidates, current); next != "" {
		return next
	}
	if DetectClientSidePagination(doc).Active() && page+1 <= w.cfg.PageCeiling {
		return urls.WithPage(startURL, page+1)
	}
	return ""
}

// emitProducts extracts product URLs from body, filters already-seen
// ones, and hands the rest to the emit callback.
func (w *Walker) emitProducts(ctx context.Context, pageURL string, body []byte) (int, error) {
	found, err := w.site.DiscoverProductURLs(pageURL, body)
	if err != nil {
		w.log.Warn("product discovery failed", zap.String("url", pageURL), zap.Error(err))
		return 0, nil
	}
	emitted := 0
	for _, u := range found {
		if _, dup := w.seen[u]; dup {
			continue
		}
		w.seen[u] = struct{}{}
		if err := w.emit(ctx, u); err != nil {
			return emitted, fmt.Errorf("emit %s: %w", u, err)
		}
		emitted++
	}
	return emitted, nil
}

func (w *Walker) progressFor(category string) *catalog.CategoryProgress {
	if p, ok := w.progress[category]; ok {
		return p
	}
	p := &catalog.CategoryProgress{Category: category}
	w.progress[category] = p
	return p
}
