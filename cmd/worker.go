package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
	"github.com/grupo-alas/catalog-sync/internal/extract"
	"github.com/grupo-alas/catalog-sync/internal/queue"
	"github.com/grupo-alas/catalog-sync/internal/syncer"
)

func newWorkerCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume queued product URLs, extract details and sync the database",
		Long: `Pulls product URL messages from the queue, extracts product details
with bounded concurrency, and upserts them into the catalog database.
Runs until interrupted. Requires the pubsub queue backend; single-process
crawls should use run instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "extract without writing to the database")
	return cmd
}

func runWorker(parent context.Context, dryRun bool) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.cfg.Queue.Backend != "pubsub" {
		return fmt.Errorf("worker requires the pubsub queue backend, got %q", rt.cfg.Queue.Backend)
	}
	if rt.cfg.Queue.Subscription == "" {
		return fmt.Errorf("queue.subscription must be set for the worker")
	}

	ctx, stop := signalContext(parent)
	defer stop()
	stopMetrics := rt.startMetrics()
	defer stopMetrics()

	sub, err := queue.NewPubSubSubscriber(ctx, rt.cfg.Queue.ProjectID, rt.cfg.Queue.Subscription, rt.log.Named("queue"))
	if err != nil {
		return err
	}
	defer sub.Close()
	go func() {
		if err := sub.Start(ctx); err != nil {
			rt.log.Error("subscriber stopped", zap.Error(err))
		}
	}()

	site, err := rt.site()
	if err != nil {
		return err
	}
	extractor := extract.New(rt.fetcher(), site, extract.Config{
		MaxConcurrent: rt.cfg.Crawler.MaxConcurrent,
		BatchPause:    rt.cfg.BatchPause(),
	}, rt.log.Named("extract"))

	var sync *syncer.Syncer
	if !dryRun {
		store, err := rt.store(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		mapper, err := rt.mapper()
		if err != nil {
			return err
		}
		sync = syncer.New(store, mapper, rt.log.Named("sync"))
	}

	summary := processQueue(ctx, sub, extractor, sync, rt.cfg.Crawler.MaxConcurrent, rt.log)
	rt.log.Info("worker finished",
		zap.Int("processed", summary.Processed),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed))
	return nil
}

// processQueue drains the consumer in extraction-sized batches until the
// queue closes or ctx ends. When sync is nil, successful extractions are
// counted but not persisted.
func processQueue(ctx context.Context, consumer catalog.Consumer, extractor *extract.Extractor, sync *syncer.Syncer, batchSize int, log *zap.Logger) catalog.RunSummary {
	var total catalog.RunSummary
	for {
		msgs, err := collectBatch(ctx, consumer, batchSize)
		if len(msgs) > 0 {
			processBatch(ctx, msgs, extractor, sync, &total, log)
		}
		if err != nil {
			if !errors.Is(err, catalog.ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				log.Warn("queue receive failed", zap.Error(err))
			}
			return total
		}
		if ctx.Err() != nil {
			return total
		}
	}
}

func processBatch(ctx context.Context, msgs []catalog.Message, extractor *extract.Extractor, sync *syncer.Syncer, total *catalog.RunSummary, log *zap.Logger) {
	urlList := make([]string, len(msgs))
	brandByURL := make(map[string]string, len(msgs))
	for i, msg := range msgs {
		urlList[i] = msg.URL
		brandByURL[msg.URL] = msg.Brand
	}

	outcomes, _ := extractor.Process(ctx, urlList)
	for _, o := range outcomes {
		if o.Status == catalog.OutcomeSuccess && sync != nil {
			if _, err := sync.SyncRecord(ctx, brandByURL[o.URL], o.Record); err != nil {
				log.Warn("sync failed", zap.String("url", o.URL), zap.Error(err))
				o = catalog.Outcome{URL: o.URL, Status: catalog.OutcomeFailed, Reason: err.Error()}
			}
		}
		total.Observe(o)
	}
}

// collectBatch blocks for the first message, then greedily gathers more
// for a short window so extraction batches stay full without stalling on
// a slow queue.
func collectBatch(ctx context.Context, consumer catalog.Consumer, n int) ([]catalog.Message, error) {
	first, err := consumer.Receive(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []catalog.Message{first}
	for len(msgs) < n {
		drainCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		msg, err := consumer.Receive(drainCtx)
		cancel()
		if err != nil {
			if errors.Is(err, catalog.ErrQueueClosed) {
				return msgs, err
			}
			break
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
