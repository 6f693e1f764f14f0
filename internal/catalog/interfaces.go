package catalog

import (
	"context"
	"time"
)

// Fetcher retrieves a single page. Implementations own retries and
// timeouts; a returned error means the URL is not usable this run.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Site bundles the capabilities the pipeline needs from one storefront.
// Everything brand-specific lives behind this interface so the walker,
// extractor and syncer stay site-agnostic.
type Site interface {
	// Brand is the storefront's brand name as persisted.
	Brand() string
	// BaseURL is the absolute root used to resolve relative hrefs.
	BaseURL() string
	// DiscoverProductURLs returns the normalized product URLs found on a
	// listing page body.
	DiscoverProductURLs(pageURL string, body []byte) ([]string, error)
	// DiscoverSubcategoryURLs returns the normalized listing (non-product)
	// URLs linked from a category seed page.
	DiscoverSubcategoryURLs(pageURL string, body []byte) ([]string, error)
	// HasProductMarkers reports whether the page body contains product
	// tiles. Used by the walker's confirmatory probe.
	HasProductMarkers(body []byte) bool
	// ExtractProductDetails parses a product page into a record.
	ExtractProductDetails(pageURL string, body []byte) (*ExtractedRecord, error)
	// NormalizeProductData applies site-specific cleanup (size labels,
	// price text) before the record leaves the site package.
	NormalizeProductData(rec *ExtractedRecord)
}

// Message is the unit published between the discovery and extraction
// stages.
type Message struct {
	URL          string    `json:"url"`
	Brand        string    `json:"brand"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Publisher sends discovered-product messages to the fan-out queue.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Consumer receives messages on the extraction side. Receive blocks until
// a message is available, ctx is done, or the queue is closed.
type Consumer interface {
	Receive(ctx context.Context) (Message, error)
}

// ItemStore persists extracted records and reconciles availability.
type ItemStore interface {
	// UpsertItem inserts or updates by the (name, brand) natural key and
	// returns the item id plus whether a row already existed.
	UpsertItem(ctx context.Context, item Item) (id string, updated bool, err error)
	// ReplaceImages swaps the item's image set.
	ReplaceImages(ctx context.Context, itemID string, urls []string) error
	// ReplaceColors swaps the item's color links, creating colors on demand.
	ReplaceColors(ctx context.Context, itemID string, colors []string) error
	// GetOrCreateBrand resolves a brand name to its id.
	GetOrCreateBrand(ctx context.Context, name string) (string, error)
	// SyncAvailability flips items of the brand that were not observed
	// this run to unavailable and returns how many changed.
	SyncAvailability(ctx context.Context, brandID string, observedNames []string) (int, error)
}

// SecretSource resolves a named secret. Sources are chained; a miss in
// one source falls through to the next.
type SecretSource interface {
	Secret(ctx context.Context, name string) (string, error)
}

// CategoryMapper resolves a (category, subcategory) pair to database ids.
// A miss returns ErrNoMapping.
type CategoryMapper interface {
	Lookup(category, subcategory string) (categoryID, subcategoryID string, err error)
}
