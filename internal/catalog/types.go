// Package catalog defines the core types and interfaces shared by the
// discovery and extraction stages of the storefront sync pipeline.
package catalog

import (
	"net/http"
	"time"
)

// CrawlTarget identifies one top-level listing to visit. Immutable once
// created.
type CrawlTarget struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	SeedURL     string `json:"seed_url"`
}

// PageVisit records a single listing-page fetch. It feeds the visited set
// and the per-category progress counters and is never mutated afterwards.
type PageVisit struct {
	URL       string    `json:"url"`
	Category  string    `json:"category"`
	PageIndex int       `json:"page_index"`
	VisitedAt time.Time `json:"visited_at"`
}

// CategoryProgress tracks how far a single category walk has advanced.
// It is mutated only by the discovery walker after each page visit and
// drives the completion policy.
type CategoryProgress struct {
	Category       string `json:"category"`
	PagesProcessed int    `json:"pages_processed"`
	ProductsFound  int    `json:"products_found"`
	EmptyStreak    int    `json:"consecutive_empty_pages"`
	NewProducts    int    `json:"new_products_since_last_nonzero"`
}

// RecordPage updates the counters after a page visit that yielded
// newProducts previously unseen product URLs. A failed fetch is recorded
// with newProducts == 0 so it contributes to the empty streak.
func (p *CategoryProgress) RecordPage(newProducts int) {
	p.PagesProcessed++
	if newProducts == 0 {
		p.EmptyStreak++
		return
	}
	p.EmptyStreak = 0
	p.NewProducts += newProducts
	p.ProductsFound += newProducts
}

// Page is the rendered result of fetching a URL.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ExtractedRecord is the structured output of one successful product-page
// extraction. Field values are raw site strings; numeric normalization
// happens in the sync layer.
type ExtractedRecord struct {
	SourceURL      string   `json:"source_url"`
	Category       string   `json:"category"`
	Subcategory    string   `json:"subcategory"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	PriceText      string   `json:"price_text"`
	OldPriceText   string   `json:"old_price_text,omitempty"`
	AllSizes       []string `json:"all_sizes"`
	AvailableSizes []string `json:"available_sizes"`
	Colors         []string `json:"colors"`
	ImageURLs      []string `json:"image_urls"`
	SKU            string   `json:"sku"`
	Available      bool     `json:"available"`
}

// Normalize deduplicates the list fields in place, preserving first-seen
// order, and drops available sizes that are not members of AllSizes.
func (r *ExtractedRecord) Normalize() {
	r.AllSizes = dedupe(r.AllSizes)
	r.Colors = dedupe(r.Colors)
	r.ImageURLs = dedupe(r.ImageURLs)

	all := make(map[string]struct{}, len(r.AllSizes))
	for _, s := range r.AllSizes {
		all[s] = struct{}{}
	}
	available := r.AvailableSizes[:0]
	seen := make(map[string]struct{}, len(r.AvailableSizes))
	for _, s := range r.AvailableSizes {
		if _, ok := all[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		available = append(available, s)
	}
	r.AvailableSizes = available
}

// Validate reports whether the record carries the minimum fields required
// for persistence: an absolute http(s) source URL plus a name or a
// description.
func (r ExtractedRecord) Validate() error {
	if !isHTTP(r.SourceURL) {
		return &ValidationError{URL: r.SourceURL, Reason: "missing or non-http source url"}
	}
	if r.Name == "" && r.Description == "" {
		return &ValidationError{URL: r.SourceURL, Reason: "record has neither name nor description"}
	}
	return nil
}

func isHTTP(raw string) bool {
	return len(raw) > 8 && (raw[:7] == "http://" || raw[:8] == "https://")
}

func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// OutcomeStatus tags the per-URL result of an extraction attempt.
type OutcomeStatus string

// Outcome status values.
const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is the tagged per-URL result of the extraction pipeline. Exactly
// one of Record or Reason is meaningful depending on Status.
type Outcome struct {
	URL    string        `json:"url"`
	Status OutcomeStatus `json:"status"`
	Record *ExtractedRecord
	Reason string `json:"reason,omitempty"`
}

// RunSummary aggregates per-unit outcomes into the run-level result every
// entry point returns.
type RunSummary struct {
	Processed  int       `json:"processed"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Failures   []Failure `json:"failures,omitempty"`
}

// Failure describes one failed unit of work for operator triage.
type Failure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Observe folds one outcome into the summary.
func (s *RunSummary) Observe(o Outcome) {
	s.Processed++
	switch o.Status {
	case OutcomeSuccess, OutcomeSkipped:
		s.Successful++
	case OutcomeFailed:
		s.Failed++
		s.Failures = append(s.Failures, Failure{URL: o.URL, Reason: o.Reason})
	}
}

// Item is the persisted representation of a product, keyed for
// reconciliation by the (name, brand) natural key.
type Item struct {
	ID             string
	Name           string
	Description    string
	Price          float64
	BrandID        string
	CategoryID     *string
	SubcategoryID  *string
	Sizes          []string
	SizesAvailable []string
	Available      bool
}
