package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

// Memory is a bounded in-memory queue with context-aware operations. It
// backs single-process runs and tests; both stages share the channel.
type Memory struct {
	ch      chan catalog.Message
	closeMu sync.Mutex
	closed  bool
}

// NewMemory constructs a queue with the provided capacity.
func NewMemory(capacity int) *Memory {
	return &Memory{ch: make(chan catalog.Message, capacity)}
}

// Publish pushes a message or returns when the context ends.
func (q *Memory) Publish(ctx context.Context, msg catalog.Message) error {
	q.closeMu.Lock()
	closed := q.closed
	q.closeMu.Unlock()
	if closed {
		return catalog.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- msg:
		return nil
	}
}

// Receive pops the next message, respecting context cancellation.
func (q *Memory) Receive(ctx context.Context) (catalog.Message, error) {
	select {
	case <-ctx.Done():
		return catalog.Message{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case msg, ok := <-q.ch:
		if !ok {
			return catalog.Message{}, catalog.ErrQueueClosed
		}
		return msg, nil
	}
}

// Close closes the underlying channel for shutdown. Receivers drain the
// remaining messages before seeing ErrQueueClosed.
func (q *Memory) Close() error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return nil
	}
	close(q.ch)
	q.closed = true
	return nil
}
