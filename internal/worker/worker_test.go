package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue/memory"
)

type recordingHandler struct {
	mu      sync.Mutex
	batches [][]string
	fail    func(msg queue.Message) error
}

func (h *recordingHandler) HandleBatch(_ context.Context, batch []queue.Message) queue.BatchResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(batch))
	var res queue.BatchResult
	for _, msg := range batch {
		ids = append(ids, msg.ID)
		if h.fail != nil {
			if err := h.fail(msg); err != nil {
				res.Fail(msg.ID, err)
			}
		}
	}
	h.batches = append(h.batches, ids)
	return res
}

func (h *recordingHandler) seen() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]string(nil), h.batches...)
}

func fill(t *testing.T, q *memory.Queue, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), queue.Message{ID: id, Attempt: 1}))
	}
}

func TestWorkerBatchesUpToSize(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(10)
	fill(t, q, "a", "b", "c", "d", "e")
	q.Close()

	h := &recordingHandler{}
	w := New(q, h, Config{Name: "detector", BatchSize: 2}, zap.NewNop())
	require.NoError(t, w.Run(context.Background()))

	require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, h.seen())
	require.Equal(t, Stats{Handled: 5}, w.Stats())
}

func TestWorkerRedeliversOnlyFailedMessages(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(10)
	fill(t, q, "a", "b", "c")
	q.Close()

	var mu sync.Mutex
	attempts := map[string]int{}
	h := &recordingHandler{fail: func(msg queue.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[msg.ID] = msg.Attempt
		if msg.ID == "b" && msg.Attempt < 2 {
			return errors.New("store unavailable")
		}
		return nil
	}}
	w := New(q, h, Config{Name: "writer", BatchSize: 10, MaxDeliveries: 3}, zap.NewNop())
	require.NoError(t, w.Run(context.Background()))

	require.Equal(t, [][]string{{"a", "b", "c"}, {"b"}}, h.seen())
	require.Equal(t, 2, attempts["b"])
	require.Equal(t, Stats{Handled: 4, Redelivered: 1}, w.Stats())
}

func TestWorkerDropsAfterMaxDeliveries(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	fill(t, q, "poison")
	q.Close()

	h := &recordingHandler{fail: func(queue.Message) error { return errors.New("always") }}
	w := New(q, h, Config{Name: "writer", BatchSize: 5, MaxDeliveries: 3}, zap.NewNop())
	require.NoError(t, w.Run(context.Background()))

	require.Equal(t, [][]string{{"poison"}, {"poison"}, {"poison"}}, h.seen())
	require.Equal(t, Stats{Handled: 3, Redelivered: 2, Dropped: 1}, w.Stats())
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	w := New(q, &recordingHandler{}, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	fill(t, q, "a")
	require.Eventually(t, func() bool { return w.Stats().Handled == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
