package ondemand

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/locator"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/producer"
)

type fakeRunner struct {
	calls   []locator.Locator
	matches []match.Match
	err     error
}

func (f *fakeRunner) RunSingle(_ context.Context, loc locator.Locator) ([]match.Match, producer.Summary, error) {
	f.calls = append(f.calls, loc)
	if f.err != nil {
		return nil, producer.Summary{}, f.err
	}
	return f.matches, producer.Summary{Locators: 1, Matches: len(f.matches), Emitted: len(f.matches)}, nil
}

func TestHandleReturnsMatches(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{matches: []match.Match{{
		ID:             5398675,
		StartTimeEpoch: 1725206400,
		MatchState:     "final",
		Division:       "d1",
		Gender:         "female",
		HomeScore:      match.Ptr(int64(2)),
		AwayScore:      match.Ptr(int64(2)),
	}}}
	svc := New(runner, zap.NewNop())

	resp := svc.Handle(context.Background(), Request{Gender: "female", Division: "d1", TargetDate: "2024-09-01"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &got))
	require.Len(t, got, 1)
	assert.EqualValues(t, 5398675, got[0]["id"])
	assert.Equal(t, "final", got[0]["matchState"])

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "female/d1/2024-09-01", runner.calls[0].String())
}

func TestHandleEmptySlotReturnsEmptyArray(t *testing.T) {
	t.Parallel()

	svc := New(&fakeRunner{matches: []match.Match{}}, zap.NewNop())

	resp := svc.Handle(context.Background(), Request{Gender: "male", Division: "d3", TargetDate: "2023-10-15"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, resp.Body)
}

func TestHandleAcceptsMixedCaseSelectors(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{matches: []match.Match{}}
	svc := New(runner, zap.NewNop())

	resp := svc.Handle(context.Background(), Request{Gender: "Male", Division: " D1 ", TargetDate: "2024-09-01"})
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "male/d1/2024-09-01", runner.calls[0].String())
}

func TestHandleRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	cases := map[string]Request{
		"gender":   {Gender: "mixed", Division: "d1", TargetDate: "2024-09-01"},
		"division": {Gender: "male", Division: "d4", TargetDate: "2024-09-01"},
		"date":     {Gender: "male", Division: "d1", TargetDate: "09/01/2024"},
		"missing":  {Gender: "male"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runner := &fakeRunner{}
			svc := New(runner, zap.NewNop())

			_, err := svc.Fetch(context.Background(), req)
			require.Error(t, err)
			assert.True(t, faults.IsValidation(err))

			resp := svc.Handle(context.Background(), req)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

			var msg string
			require.NoError(t, json.Unmarshal([]byte(resp.Body), &msg))
			assert.Contains(t, msg, "An error occurred")
			assert.Empty(t, runner.calls)
		})
	}
}

func TestHandleRunnerFailure(t *testing.T) {
	t.Parallel()

	svc := New(&fakeRunner{err: context.Canceled}, zap.NewNop())

	resp := svc.Handle(context.Background(), Request{Gender: "male", Division: "d1", TargetDate: "2024-09-01"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Body, "context canceled")
}
