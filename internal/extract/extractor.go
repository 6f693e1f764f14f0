// Package extract runs the bounded concurrent extraction pipeline:
// admission-gated workers fetch product pages, run site extraction, and
// produce tagged per-URL outcomes with at-most-one successful extraction
// per URL per process lifetime.
package extract

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
	"github.com/grupo-alas/catalog-sync/internal/metrics"
)

// Config tunes the extractor. Zero values fall back to the engine
// defaults: 5 concurrent extractions, 1s pause between batches.
type Config struct {
	MaxConcurrent int
	BatchPause    time.Duration
}

// Extractor consumes product URLs and yields extraction outcomes. The
// extracted set lives for the process; duplicate deliveries are skipped
// without a fetch. Safe for concurrent use.
type Extractor struct {
	fetcher catalog.Fetcher
	site    catalog.Site
	cfg     Config
	log     *zap.Logger

	mu        sync.Mutex
	extracted map[string]struct{}
	inflight  map[string]struct{}
}

// New wires an Extractor for one site.
func New(fetcher catalog.Fetcher, site catalog.Site, cfg Config, log *zap.Logger) *Extractor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.BatchPause <= 0 {
		cfg.BatchPause = time.Second
	}
	metrics.Init()
	return &Extractor{
		fetcher:   fetcher,
		site:      site,
		cfg:       cfg,
		log:       log,
		extracted: make(map[string]struct{}),
		inflight:  make(map[string]struct{}),
	}
}

// Process extracts every URL with bounded concurrency: work is submitted
// in fixed batches the size of the concurrency cap, with a pause between
// batches. Outcomes are returned in input order; cancellation returns
// the outcomes accumulated so far.
func (e *Extractor) Process(ctx context.Context, urls []string) ([]catalog.Outcome, catalog.RunSummary) {
	outcomes := make([]catalog.Outcome, 0, len(urls))
	var summary catalog.RunSummary

	for start := 0; start < len(urls); start += e.cfg.MaxConcurrent {
		if ctx.Err() != nil {
			break
		}
		end := start + e.cfg.MaxConcurrent
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]
		batchOutcomes := make([]catalog.Outcome, len(batch))

		var g errgroup.Group
		for i, u := range batch {
			g.Go(func() error {
				metrics.IncActiveWorkers()
				defer metrics.DecActiveWorkers()
				batchOutcomes[i] = e.ExtractOne(ctx, u)
				return nil
			})
		}
		_ = g.Wait()

		for _, o := range batchOutcomes {
			summary.Observe(o)
			outcomes = append(outcomes, o)
		}

		if end < len(urls) {
			select {
			case <-ctx.Done():
			case <-time.After(e.cfg.BatchPause):
			}
		}
	}
	return outcomes, summary
}

// ExtractOne runs the full pipeline for a single URL: claim, fetch,
// extract, normalize, validate. Failures release the claim so the URL
// stays eligible for a later run; only success marks it extracted.
func (e *Extractor) ExtractOne(ctx context.Context, url string) catalog.Outcome {
	if !e.claim(url) {
		e.log.Debug("skipping already processed url", zap.String("url", url))
		metrics.ObserveExtraction("skipped")
		return catalog.Outcome{URL: url, Status: catalog.OutcomeSkipped, Reason: "already processed"}
	}

	rec, err := e.extract(ctx, url)
	if err != nil {
		e.release(url)
		e.log.Warn("extraction failed", zap.String("url", url), zap.Error(err))
		metrics.ObserveExtraction("failed")
		return catalog.Outcome{URL: url, Status: catalog.OutcomeFailed, Reason: err.Error()}
	}

	e.markExtracted(url)
	metrics.ObserveExtraction("success")
	return catalog.Outcome{URL: url, Status: catalog.OutcomeSuccess, Record: rec}
}

func (e *Extractor) extract(ctx context.Context, url string) (*catalog.ExtractedRecord, error) {
	page, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	rec, err := e.site.ExtractProductDetails(url, page.Body)
	if err != nil {
		return nil, err
	}
	e.site.NormalizeProductData(rec)
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// claim reserves a URL for this caller. Returns false when the URL was
// already extracted or is in flight elsewhere.
func (e *Extractor) claim(url string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, done := e.extracted[url]; done {
		return false
	}
	if _, busy := e.inflight[url]; busy {
		return false
	}
	e.inflight[url] = struct{}{}
	return true
}

func (e *Extractor) release(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, url)
}

func (e *Extractor) markExtracted(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, url)
	e.extracted[url] = struct{}{}
}
