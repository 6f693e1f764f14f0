package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

type countingFetcher struct {
	mu       sync.Mutex
	attempts int
	fails    int
	err      error
}

func (f *countingFetcher) Fetch(_ context.Context, url string) (catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.fails {
		return catalog.Page{}, f.err
	}
	return catalog.Page{URL: url, StatusCode: 200, Body: []byte("ok")}, nil
}

func TestRetrying_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	inner := &countingFetcher{
		fails: 2,
		err:   catalog.Transient("fetch", "u", errors.New("connection reset")),
	}
	f := WithRetry(inner, RetryConfig{MaxRetries: 3, BackoffBase: time.Millisecond}, zap.NewNop())

	page, err := f.Fetch(context.Background(), "https://shop.example.com")
	require.NoError(t, err)
	require.Equal(t, 200, page.StatusCode)
	require.Equal(t, 3, inner.attempts)
}

func TestRetrying_Exhausted(t *testing.T) {
	t.Parallel()

	inner := &countingFetcher{
		fails: 10,
		err:   catalog.Transient("fetch", "u", errors.New("timeout")),
	}
	f := WithRetry(inner, RetryConfig{MaxRetries: 3, BackoffBase: time.Millisecond}, zap.NewNop())

	_, err := f.Fetch(context.Background(), "https://shop.example.com")
	require.Error(t, err)
	require.True(t, catalog.IsTransient(err))
	require.Equal(t, 3, inner.attempts)
}

func TestRetrying_NonTransientNotRetried(t *testing.T) {
	t.Parallel()

	inner := &countingFetcher{fails: 10, err: errors.New("permanent")}
	f := WithRetry(inner, RetryConfig{MaxRetries: 3, BackoffBase: time.Millisecond}, zap.NewNop())

	_, err := f.Fetch(context.Background(), "https://shop.example.com")
	require.Error(t, err)
	require.Equal(t, 1, inner.attempts)
}

func TestRetrying_CancellationStopsBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &countingFetcher{
		fails: 10,
		err:   catalog.Transient("fetch", "u", errors.New("timeout")),
	}
	f := WithRetry(inner, RetryConfig{MaxRetries: 3, BackoffBase: time.Hour}, zap.NewNop())

	_, err := f.Fetch(ctx, "https://shop.example.com")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, inner.attempts)
}
