package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchResultTracksFailures(t *testing.T) {
	t.Parallel()

	var res BatchResult
	assert.False(t, res.Failed("a"))

	res.Fail("b", errors.New("boom"))
	batch := []Message{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	assert.True(t, res.Failed("b"))
	assert.Equal(t, []string{"b"}, res.FailedIDs(batch))
}

func TestHandlerFunc(t *testing.T) {
	t.Parallel()

	var seen int
	h := HandlerFunc(func(_ context.Context, batch []Message) BatchResult {
		seen = len(batch)
		return BatchResult{}
	})
	res := h.HandleBatch(context.Background(), []Message{{ID: "1"}, {ID: "2"}})
	assert.Equal(t, 2, seen)
	assert.Empty(t, res.Failures)
}

func TestEncode(t *testing.T) {
	t.Parallel()

	raw, err := Encode([]byte(`{"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(raw))

	text, err := Encode("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", string(text))

	type record struct {
		ID    int64   `json:"id"`
		Score *int64  `json:"homeScore"`
		Team  *string `json:"homeTeam"`
	}
	score := int64(2)
	encoded, err := Encode(record{ID: 5398675, Score: &score})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5398675,"homeScore":2,"homeTeam":null}`, string(encoded))
}
