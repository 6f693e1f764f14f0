package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	body, ok := f.pages[url]
	if !ok {
		return catalog.Page{}, errors.New("not found")
	}
	return catalog.Page{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.fetched {
		if u == url {
			n++
		}
	}
	return n
}

// fakeSite reads product hrefs from data-product anchors and subcategory
// hrefs from data-subcat anchors; product markers are div.product tiles.
type fakeSite struct{}

func (fakeSite) Brand() string   { return "Rapsodia" }
func (fakeSite) BaseURL() string { return "https://shop.example.com" }

func (fakeSite) DiscoverProductURLs(_ string, body []byte) ([]string, error) {
	return hrefs(body, "a[data-product]")
}

func (fakeSite) DiscoverSubcategoryURLs(_ string, body []byte) ([]string, error) {
	return hrefs(body, "a[data-subcat]")
}

func (fakeSite) HasProductMarkers(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find("div.product").Length() > 0
}

func (fakeSite) ExtractProductDetails(string, []byte) (*catalog.ExtractedRecord, error) {
	return nil, errors.New("not a product site")
}

func (fakeSite) NormalizeProductData(*catalog.ExtractedRecord) {}

func hrefs(body []byte, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			out = append(out, "https://shop.example.com"+href)
		}
	})
	return out, nil
}

type collector struct {
	mu   sync.Mutex
	urls []string
}

func (c *collector) emit(_ context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls = append(c.urls, url)
	return nil
}

func productPage(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<div class="product"><a data-product href=%q>p</a></div>`, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func withNextLink(page, next string) string {
	return strings.Replace(page, "</body>",
		fmt.Sprintf(`<div class="pagination"><a href=%q>next</a></div></body>`, next), 1)
}

func newTestWalker(t *testing.T, fetcher *fakeFetcher, emit EmitFunc, cfg Config) *Walker {
	t.Helper()
	w, err := NewWalker(fetcher, fakeSite{}, emit, cfg, zap.NewNop())
	require.NoError(t, err)
	return w
}

func TestWalker_StopsAfterConfirmedEmptyStreak(t *testing.T) {
	t.Parallel()

	// Three consecutive pages with no products; the probe of page 3
	// confirms the streak, so page 4 is never fetched.
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://shop.example.com/cat":     withNextLink(productPage(), "/cat?p=2"),
		"https://shop.example.com/cat?p=2": withNextLink(productPage(), "/cat?p=3"),
		"https://shop.example.com/cat?p=3": withNextLink(productPage(), "/cat?p=4"),
		"https://shop.example.com/cat?p=4": productPage("/producto/99999999"),
	}}
	var c collector
	w := newTestWalker(t, fetcher, c.emit, Config{PageCeiling: 10})

	result, err := w.Walk(context.Background(), catalog.CrawlTarget{
		Category: "WOMAN",
		SeedURL:  "https://shop.example.com/cat",
	})
	require.NoError(t, err)

	assert.Empty(t, c.urls)
	assert.Zero(t, result.ProductsEmitted)
	assert.Equal(t, 0, fetcher.count("https://shop.example.com/cat?p=4"),
		"walk must stop before a fourth page")
}

func TestWalker_ProbeRescuesAnomalousEmptyPages(t *testing.T) {
	t.Parallel()

	// Pages 1 and 2 are empty but page 3 has products: the confirmatory
	// probe must keep the walk alive.
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://shop.example.com/cat":     withNextLink(productPage(), "/cat?p=2"),
		"https://shop.example.com/cat?p=2": withNextLink(productPage(), "/cat?p=3"),
		"https://shop.example.com/cat?p=3": productPage("/producto/11111111", "/producto/22222222"),
	}}
	var c collector
	w := newTestWalker(t, fetcher, c.emit, Config{})

	result, err := w.Walk(context.Background(), catalog.CrawlTarget{
		Category: "WOMAN",
		SeedURL:  "https://shop.example.com/cat",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProductsEmitted)
	assert.ElementsMatch(t, []string{
		"https://shop.example.com/producto/11111111",
		"https://shop.example.com/producto/22222222",
	}, c.urls)
	assert.Equal(t, 1, fetcher.count("https://shop.example.com/cat?p=3"),
		"probe body must be reused, not refetched")
}

func TestWalker_DeduplicatesAcrossPages(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://shop.example.com/cat": withNextLink(
			productPage("/producto/11111111", "/producto/22222222"), "/cat?p=2"),
		"https://shop.example.com/cat?p=2": productPage("/producto/22222222", "/producto/33333333"),
	}}
	var c collector
	w := newTestWalker(t, fetcher, c.emit, Config{})

	result, err := w.Walk(context.Background(), catalog.CrawlTarget{
		Category: "WOMAN",
		SeedURL:  "https://shop.example.com/cat",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.ProductsEmitted)
	assert.Len(t, c.urls, 3, "a url is emitted at most once per run")
	assert.Len(t, w.Seen(), 3)
}

func TestWalker_FetchFailureCountsAsEmptyPage(t *testing.T) {
	t.Parallel()

	// Page 2 404s; the walk records it as empty and continues to page 3
	// via the link found on page 1... which it cannot, since page 2 had
	// no body. The category still terminates cleanly.
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://shop.example.com/cat": withNextLink(
			productPage("/producto/11111111"), "/cat?p=2"),
	}}
	var c collector
	w := newTestWalker(t, fetcher, c.emit, Config{})

	result, err := w.Walk(context.Background(), catalog.CrawlTarget{
		Category: "WOMAN",
		SeedURL:  "https://shop.example.com/cat",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProductsEmitted)

	progress := w.Progress()
	require.Len(t, progress, 1)
	assert.Equal(t, 1, progress[0].EmptyStreak)
}

func TestWalker_PageCeilingBoundsSyntheticPagination(t *testing.T) {
	t.Parallel()

	// Every page advertises load-more with no real next link; synthetic
	// ?p=N pages are bounded by the ceiling.
	loadMore := `<html><body><div class="product"><a data-product href="/producto/%d0000000">p</a></div>` +
		`<button class="load-more">Ver más</button></body></html>`

	pages := map[string]string{
		"https://shop.example.com/cat": fmt.Sprintf(loadMore, 1),
	}
	for p := 2; p <= 8; p++ {
		pages[fmt.Sprintf("https://shop.example.com/cat?p=%d", p)] = fmt.Sprintf(loadMore, p)
	}
	fetcher := &fakeFetcher{pages: pages}
	var c collector
	w := newTestWalker(t, fetcher, c.emit, Config{PageCeiling: 3})

	result, err := w.Walk(context.Background(), catalog.CrawlTarget{
		Category: "WOMAN",
		SeedURL:  "https://shop.example.com/cat",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.ProductsEmitted)
	assert.Equal(t, 0, fetcher.count("https://shop.example.com/cat?p=4"))
}

func TestWalker_SubcategoriesShareCategoryBudget(t *testing.T) {
	t.Parallel()

	seed := `<html><body>
		<a data-subcat href="/cat/jeans.html">jeans</a>
		<a data-subcat href="/cat/vestidos.html">vestidos</a>
	</body></html>`

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://shop.example.com/cat":               seed,
		"https://shop.example.com/cat/jeans.html":    productPage("/producto/11111111"),
		"https://shop.example.com/cat/vestidos.html": productPage("/producto/22222222"),
	}}
	var c collector
	w := newTestWalker(t, fetcher, c.emit, Config{})

	result, err := w.Walk(context.Background(), catalog.CrawlTarget{
		Category: "WOMAN",
		SeedURL:  "https://shop.example.com/cat",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProductsEmitted)
	assert.Equal(t, 1, fetcher.count("https://shop.example.com/cat/jeans.html"))
	assert.Equal(t, 1, fetcher.count("https://shop.example.com/cat/vestidos.html"))
}

func TestWalker_ContextCancellationPreservesState(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://shop.example.com/cat": withNextLink(
			productPage("/producto/11111111"), "/cat?p=2"),
		"https://shop.example.com/cat?p=2": productPage("/producto/22222222"),
	}}

	var c collector
	emit := func(ctx context.Context, url string) error {
		cancel() // interrupt mid-walk
		return c.emit(ctx, url)
	}
	w := newTestWalker(t, fetcher, emit, Config{})

	_, err := w.Walk(ctx, catalog.CrawlTarget{
		Category: "WOMAN",
		SeedURL:  "https://shop.example.com/cat",
	})
	require.ErrorIs(t, err, context.Canceled)

	// Discovered state survives interruption for the flush.
	assert.NotEmpty(t, w.Seen())
}
