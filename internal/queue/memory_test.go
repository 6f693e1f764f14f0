package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

func TestMemory_RoundTrip(t *testing.T) {
	t.Parallel()

	q := NewMemory(4)
	ctx := context.Background()

	in := catalog.Message{URL: "https://shop.example.com/producto/1", Brand: "Rapsodia", DiscoveredAt: time.Now()}
	require.NoError(t, q.Publish(ctx, in))

	out, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestMemory_ReceiveRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewMemory(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_CloseDrainsThenReportsClosed(t *testing.T) {
	t.Parallel()

	q := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, catalog.Message{URL: "u1"}))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close(), "close is idempotent")

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", msg.URL)

	_, err = q.Receive(ctx)
	require.ErrorIs(t, err, catalog.ErrQueueClosed)

	err = q.Publish(ctx, catalog.Message{URL: "u2"})
	require.ErrorIs(t, err, catalog.ErrQueueClosed)
}
