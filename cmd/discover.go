package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
	"github.com/grupo-alas/catalog-sync/internal/discovery"
	"github.com/grupo-alas/catalog-sync/internal/queue"
	"github.com/grupo-alas/catalog-sync/internal/urls"
)

func newDiscoverCmd() *cobra.Command {
	var seeds []string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Walk category listings and enqueue discovered product URLs",
		Long: `Walks each configured seed category through its subcategories and
pagination, deduplicates the product URLs it finds, and publishes them
to the queue in batches. An interrupted walk still flushes everything
discovered so far.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscover(cmd.Context(), seeds)
		},
	}
	cmd.Flags().StringSliceVar(&seeds, "seed", nil, "seed URL override (repeatable)")
	return cmd
}

func runDiscover(parent context.Context, seedOverride []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signalContext(parent)
	defer stop()
	stopMetrics := rt.startMetrics()
	defer stopMetrics()

	discovered, interrupted, err := walkSeeds(ctx, rt, seedOverride)
	if err != nil {
		return err
	}

	pub, err := buildPublisher(ctx, rt)
	if err != nil {
		return err
	}
	defer pub.Close()

	// The flush must survive the interrupt that ended the walk.
	flushCtx := ctx
	if interrupted {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	batcher := queue.NewBatcher(pub, rt.cfg.Site.Brand, rt.cfg.Queue.BatchSize, rt.log.Named("queue"))
	failed := 0
	for _, res := range batcher.PublishAll(flushCtx, discovered) {
		if res.Err != nil {
			failed++
		}
	}
	rt.log.Info("discovery finished",
		zap.Int("discovered", len(discovered)),
		zap.Int("publish_failures", failed),
		zap.Bool("interrupted", interrupted))
	return nil
}

// walkSeeds walks every seed category and returns the deduplicated
// product URLs in discovery order. An interrupt stops the walk but is
// not an error; the caller flushes what was found.
func walkSeeds(ctx context.Context, rt *runtime, seedOverride []string) ([]string, bool, error) {
	site, err := rt.site()
	if err != nil {
		return nil, false, err
	}

	var discovered []string
	walker, err := discovery.NewWalker(rt.fetcher(), site,
		func(_ context.Context, u string) error {
			discovered = append(discovered, u)
			return nil
		},
		discovery.Config{PageCeiling: rt.cfg.Crawler.PageCeiling},
		rt.log.Named("walker"))
	if err != nil {
		return nil, false, err
	}

	seeds := seedOverride
	if len(seeds) == 0 {
		seeds = rt.cfg.Site.Seeds
	}
	if len(seeds) == 0 {
		return nil, false, fmt.Errorf("no seed URLs configured; set site.seeds or pass --seed")
	}

	for _, seed := range seeds {
		category, _ := urls.InferCategory(seed)
		res, err := walker.Walk(ctx, catalog.CrawlTarget{Category: category, SeedURL: seed})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				rt.log.Warn("walk interrupted, flushing discovered urls",
					zap.String("category", category),
					zap.Int("discovered", len(discovered)))
				return discovered, true, nil
			}
			return discovered, false, err
		}
		rt.log.Info("category walked",
			zap.String("category", res.Category),
			zap.Int("pages", res.PagesVisited),
			zap.Int("products", res.ProductsEmitted),
			zap.String("reason", res.Reason))
	}
	return discovered, false, nil
}

// buildPublisher picks the queue transport. The memory backend has no
// cross-process queue, so discover degrades to printing messages.
func buildPublisher(ctx context.Context, rt *runtime) (catalog.Publisher, error) {
	switch rt.cfg.Queue.Backend {
	case "pubsub":
		return queue.NewPubSubPublisher(ctx, rt.cfg.Queue.ProjectID, rt.cfg.Queue.Topic)
	default:
		return &printPublisher{enc: json.NewEncoder(os.Stdout)}, nil
	}
}

type printPublisher struct {
	enc *json.Encoder
}

func (p *printPublisher) Publish(_ context.Context, msg catalog.Message) error {
	return p.enc.Encode(msg)
}

func (p *printPublisher) Close() error { return nil }
