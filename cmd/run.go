package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/extract"
	"github.com/grupo-alas/catalog-sync/internal/queue"
	"github.com/grupo-alas/catalog-sync/internal/syncer"
)

func newRunCmd() *cobra.Command {
	var (
		seeds  []string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Full crawl in one process: discover, extract and sync",
		Long: `Runs the whole pipeline through an in-memory queue: walks the seed
categories, extracts every discovered product, syncs the records and
finishes with the availability sweep. Meant for scheduled full crawls
where the run observes the complete catalog.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFull(cmd.Context(), seeds, dryRun)
		},
	}
	cmd.Flags().StringSliceVar(&seeds, "seed", nil, "seed URL override (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "extract without writing to the database")
	return cmd
}

func runFull(parent context.Context, seedOverride []string, dryRun bool) error {
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
	rt.log.Info("discovery stage complete",
		zap.Int("discovered", len(discovered)),
		zap.Bool("interrupted", interrupted))

	// Publish concurrently with consumption; the queue buffer is smaller
	// than a large frontier.
	mem := queue.NewMemory(rt.cfg.Queue.BufferSize)
	batcher := queue.NewBatcher(mem, rt.cfg.Site.Brand, rt.cfg.Queue.BatchSize, rt.log.Named("queue"))
	go func() {
		batcher.PublishAll(ctx, discovered)
		_ = mem.Close()
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

	summary := processQueue(ctx, mem, extractor, sync, rt.cfg.Crawler.MaxConcurrent, rt.log)

	// The sweep assumes the run saw the whole catalog; an interrupted
	// discovery must not mark the unvisited remainder unavailable.
	if sync != nil && !interrupted && ctx.Err() == nil {
		swept, err := sync.SweepAvailability(ctx)
		if err != nil {
			return err
		}
		rt.log.Info("availability sweep complete", zap.Int("swept", swept))
	}

	rt.log.Info("run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed))
	return json.NewEncoder(os.Stdout).Encode(summary)
}
