// Package cmd defines the CLI commands for the catalogsync executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
	"github.com/grupo-alas/catalog-sync/internal/config"
	"github.com/grupo-alas/catalog-sync/internal/fetch"
	"github.com/grupo-alas/catalog-sync/internal/logging"
	"github.com/grupo-alas/catalog-sync/internal/mapping"
	"github.com/grupo-alas/catalog-sync/internal/metrics"
	"github.com/grupo-alas/catalog-sync/internal/secrets"
	"github.com/grupo-alas/catalog-sync/internal/sites/rapsodia"
	"github.com/grupo-alas/catalog-sync/internal/storage/postgres"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogsync",
		Short: "Product catalog crawler and database sync for Grupo Alas storefronts.",
		Long: `catalogsync keeps the catalog database aligned with what the
storefronts actually sell. The discover command walks category listings
and enqueues product URLs; the worker command consumes the queue,
extracts product details and syncs them into Postgres. The run command
does both in one process for scheduled full crawls.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newRunCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runtime bundles the services every subcommand starts from.
type runtime struct {
	cfg   config.Config
	log   *zap.Logger
	runID string
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))
	return &runtime{cfg: cfg, log: logger, runID: runID}, nil
}

func (r *runtime) Close() {
	logging.Flush(r.log)
}

// site resolves the configured brand to its storefront implementation.
func (r *runtime) site() (catalog.Site, error) {
	switch strings.ToLower(r.cfg.Site.Brand) {
	case "rapsodia":
		return rapsodia.New(r.cfg.Site.BaseURL, r.log.Named("site")), nil
	default:
		return nil, fmt.Errorf("no site implementation for brand %q", r.cfg.Site.Brand)
	}
}

// fetcher builds the retrying colly fetcher shared by both stages.
func (r *runtime) fetcher() catalog.Fetcher {
	base := fetch.New(fetch.Config{
		UserAgent: r.cfg.Crawler.UserAgent,
		Timeout:   r.cfg.FetchTimeout(),
	})
	return fetch.WithRetry(base, fetch.RetryConfig{
		MaxRetries:  r.cfg.Crawler.MaxRetries,
		BackoffBase: r.cfg.BackoffBase(),
	}, r.log.Named("fetch"))
}

func (r *runtime) mapper() (catalog.CategoryMapper, error) {
	if r.cfg.Mapping.File != "" {
		return mapping.Load(r.cfg.Mapping.File)
	}
	return mapping.Default(), nil
}

// store opens the Postgres item store, resolving the connection string
// through the secret chain when no DSN is configured directly.
func (r *runtime) store(ctx context.Context) (*postgres.ItemStore, error) {
	dsn := r.cfg.DB.DSN
	if dsn == "" {
		chain := secrets.Chain{
			secrets.Env{Prefix: "CATALOG"},
			secrets.Env{},
			secrets.Dir{Path: "/var/run/secrets/catalog"},
		}
		resolved, err := chain.Secret(ctx, r.cfg.DB.SecretName)
		if err != nil {
			return nil, fmt.Errorf("resolve database connection string: %w", err)
		}
		dsn = resolved
	}
	return postgres.NewItemStore(ctx, dsn, r.log.Named("store"))
}

// startMetrics serves /metrics and /healthz until the returned stop
// function is called. A no-op when metrics are disabled.
func (r *runtime) startMetrics() func() {
	if !r.cfg.Metrics.Enabled {
		return func() {}
	}
	srv := &http.Server{Addr: r.cfg.Metrics.Addr, Handler: metrics.Router()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Warn("metrics listener failed", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
