package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

// RetryConfig bounds the retry loop. Backoff is linear: attempt N sleeps
// BackoffBase * N before retrying.
type RetryConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
}

// Retrying decorates a Fetcher with bounded linear-backoff retries for
// transient failures. Validation-class errors pass through untouched.
type Retrying struct {
	inner catalog.Fetcher
	cfg   RetryConfig
	log   *zap.Logger
}

// WithRetry wraps inner. Zero config fields fall back to 3 retries and a
// 2s backoff base.
func WithRetry(inner catalog.Fetcher, cfg RetryConfig, log *zap.Logger) *Retrying {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	return &Retrying{inner: inner, cfg: cfg, log: log}
}

// Fetch retries transient failures up to MaxRetries times, sleeping
// BackoffBase * attempt between tries.
func (r *Retrying) Fetch(ctx context.Context, url string) (catalog.Page, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		page, err := r.inner.Fetch(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !catalog.IsTransient(err) || attempt == r.cfg.MaxRetries {
			break
		}
		r.log.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return catalog.Page{}, ctx.Err()
		case <-time.After(r.cfg.BackoffBase * time.Duration(attempt)):
		}
	}
	return catalog.Page{}, lastErr
}
