package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []catalog.Message
	failOn   map[string]error
}

func (p *recordingPublisher) Publish(_ context.Context, msg catalog.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failOn[msg.URL]; ok {
		return err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func urlsN(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://shop.example.com/producto/%08d", i)
	}
	return out
}

func TestBatcher_SplitsIntoBoundedBatches(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	b := NewBatcher(pub, "Rapsodia", 10, zap.NewNop())

	results := b.PublishAll(context.Background(), urlsN(25))

	require.Len(t, results, 25)
	require.Len(t, pub.messages, 25)

	// Sequence ids restart per batch: 10, 10, 5.
	var seqs []int
	for _, r := range results {
		require.NoError(t, r.Err)
		seqs = append(seqs, r.Seq)
	}
	assert.Equal(t, 0, seqs[0])
	assert.Equal(t, 9, seqs[9])
	assert.Equal(t, 0, seqs[10])
	assert.Equal(t, 9, seqs[19])
	assert.Equal(t, 0, seqs[20])
	assert.Equal(t, 4, seqs[24])
}

func TestBatcher_PartialFailureDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	urls := urlsN(4)
	pub := &recordingPublisher{failOn: map[string]error{
		urls[1]: errors.New("broker unavailable"),
	}}
	b := NewBatcher(pub, "Rapsodia", 10, zap.NewNop())

	results := b.PublishAll(context.Background(), urls)

	require.Len(t, results, 4)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.NoError(t, results[3].Err)
	assert.Len(t, pub.messages, 3)
}

func TestBatcher_MessageCarriesBrandAndTimestamp(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	b := NewBatcher(pub, "Rapsodia", 0, zap.NewNop())

	b.PublishAll(context.Background(), urlsN(1))

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, "Rapsodia", msg.Brand)
	assert.False(t, msg.DiscoveredAt.IsZero())
}
