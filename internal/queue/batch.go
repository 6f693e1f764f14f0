// Package queue moves discovered product URLs between the discovery and
// extraction stages: a batching publisher adapter, an in-memory queue for
// single-process runs, and a Google Cloud Pub/Sub transport.
package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
	"github.com/grupo-alas/catalog-sync/internal/metrics"
)

// MaxBatchSize matches common queue batch-publish ceilings.
const MaxBatchSize = 10

// PublishResult is the per-entry outcome of a batch publish. A failed
// entry never fails its batch siblings.
type PublishResult struct {
	Seq int
	URL string
	Err error
}

// Batcher fans discovered URLs out to a Publisher in bounded groups.
type Batcher struct {
	pub   catalog.Publisher
	brand string
	max   int
	log   *zap.Logger
}

// NewBatcher wires a Batcher. maxBatch values outside (0, MaxBatchSize]
// fall back to MaxBatchSize.
func NewBatcher(pub catalog.Publisher, brand string, maxBatch int, log *zap.Logger) *Batcher {
	if maxBatch <= 0 || maxBatch > MaxBatchSize {
		maxBatch = MaxBatchSize
	}
	metrics.Init()
	return &Batcher{pub: pub, brand: brand, max: maxBatch, log: log}
}

// PublishAll publishes every URL in groups of at most the batch maximum
// and returns one result per URL, in input order. Sequence numbers are
// assigned within each batch.
func (b *Batcher) PublishAll(ctx context.Context, urls []string) []PublishResult {
	results := make([]PublishResult, 0, len(urls))
	for start := 0; start < len(urls); start += b.max {
		end := start + b.max
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]
		b.log.Debug("publishing batch",
			zap.Int("size", len(batch)),
			zap.Int("offset", start))
		for seq, u := range batch {
			err := b.pub.Publish(ctx, catalog.Message{
				URL:          u,
				Brand:        b.brand,
				DiscoveredAt: time.Now().UTC(),
			})
			if err != nil {
				b.log.Warn("publish failed", zap.String("url", u), zap.Error(err))
				metrics.ObserveQueuePublish("failed")
			} else {
				metrics.ObserveQueuePublish("ok")
			}
			results = append(results, PublishResult{Seq: seq, URL: u, Err: err})
		}
	}
	return results
}
