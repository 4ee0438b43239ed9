// Package memory provides an in-process broker for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
)

// Queue is a bounded in-memory topic with context-aware operations.
type Queue struct {
	ch      chan queue.Message
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan queue.Message, capacity),
	}
}

// Enqueue pushes a message or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, msg queue.Message) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return queue.ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- msg:
		return nil
	}
}

// Dequeue pops the next message, respecting context cancellation. It returns
// queue.ErrClosed once the queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (queue.Message, error) {
	select {
	case <-ctx.Done():
		return queue.Message{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case msg, ok := <-q.ch:
		if !ok {
			return queue.Message{}, queue.ErrClosed
		}
		return msg, nil
	}
}

// TryDequeue pops a message without blocking.
func (q *Queue) TryDequeue() (queue.Message, bool) {
	select {
	case msg, ok := <-q.ch:
		return msg, ok
	default:
		return queue.Message{}, false
	}
}

// Len reports the number of buffered messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting messages. Buffered messages can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
