package producer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/locator"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/metrics"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue/memory"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/scoreboard"
)

type fakeSource struct {
	mu       sync.Mutex
	byKey    map[string][]match.Match
	visited  []string
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeSource) Matches(_ context.Context, loc locator.Locator) ([]match.Match, scoreboard.Result) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited = append(f.visited, loc.String())
	matches := f.byKey[loc.String()]
	status := metrics.ResultNotFound
	if len(matches) > 0 {
		status = metrics.ResultMatches
	}
	return matches, scoreboard.Result{Locator: loc, Status: status}
}

func day(raw string) time.Time {
	t, _ := time.Parse(locator.DateLayout, raw)
	return t
}

func mk(id int64, gender, state string, start int64) match.Match {
	return match.Match{ID: id, Gender: gender, MatchState: state, StartTimeEpoch: start, Division: "d1"}
}

func publishedIDs(t *testing.T, rec *memory.Recorder) []int64 {
	t.Helper()
	var ids []int64
	for _, payload := range rec.OnTopic(queue.TopicMatches) {
		m, ok := payload.(match.Match)
		require.True(t, ok)
		ids = append(ids, m.ID)
	}
	return ids
}

func TestRunBatchSortsWholeBatch(t *testing.T) {
	t.Parallel()

	src := &fakeSource{byKey: map[string][]match.Match{
		"male/d1/2024-09-01":   {mk(1, "male", "live", 300)},
		"female/d1/2024-09-01": {mk(2, "female", "final", 200)},
		"female/d1/2024-09-02": {mk(3, "female", "live", 100), mk(4, "female", "final", 400)},
	}}
	rec := memory.NewRecorder()
	p := New(src, rec, Config{Genders: []string{"male", "female"}, Divisions: []string{"d1"}}, zap.NewNop())

	summary, err := p.RunBatch(context.Background(), day("2024-09-01"), day("2024-09-02"))
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 4, 3, 1}, publishedIDs(t, rec))
	assert.Equal(t, 4, summary.Locators)
	assert.Equal(t, 4, summary.Matches)
	assert.Equal(t, 4, summary.Emitted)
	assert.Equal(t, map[string]int{metrics.ResultMatches: 3, metrics.ResultNotFound: 1}, summary.Results)
	assert.Equal(t, []string{
		"male/d1/2024-09-01", "female/d1/2024-09-01",
		"male/d1/2024-09-02", "female/d1/2024-09-02",
	}, src.visited)
}

func TestRunBatchParallelWaitsForAllFetches(t *testing.T) {
	t.Parallel()

	src := &fakeSource{delay: 20 * time.Millisecond, byKey: map[string][]match.Match{
		"male/d1/2024-09-01":   {mk(10, "male", "live", 1)},
		"male/d2/2024-09-03":   {mk(11, "male", "final", 5)},
		"female/d2/2024-09-02": {mk(12, "female", "live", 9)},
		"female/d1/2024-09-03": {mk(13, "female", "final", 2)},
	}}
	rec := memory.NewRecorder()
	p := New(src, rec, Config{
		Genders:     []string{"male", "female"},
		Divisions:   []string{"d1", "d2"},
		Concurrency: 4,
	}, zap.NewNop())

	summary, err := p.RunBatch(context.Background(), day("2024-09-01"), day("2024-09-03"))
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Locators)
	assert.Equal(t, []int64{13, 12, 11, 10}, publishedIDs(t, rec))
	assert.Greater(t, src.peak.Load(), int32(1))
	assert.LessOrEqual(t, src.peak.Load(), int32(4))
}

func TestRunBatchRejectsBadGridBeforeFetching(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	p := New(src, memory.NewRecorder(), Config{Genders: []string{"mixed"}, Divisions: []string{"d1"}}, nil)
	_, err := p.RunBatch(context.Background(), day("2024-09-01"), day("2024-09-01"))
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	p = New(src, memory.NewRecorder(), Config{Genders: []string{"male"}, Divisions: []string{"d1"}}, nil)
	_, err = p.RunBatch(context.Background(), day("2024-09-02"), day("2024-09-01"))
	var rangeErr *locator.InvalidRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Empty(t, src.visited)
}

func TestRunBatchCountsPublishFailures(t *testing.T) {
	t.Parallel()

	src := &fakeSource{byKey: map[string][]match.Match{
		"male/d1/2024-09-01": {mk(1, "male", "live", 1), mk(2, "male", "live", 2)},
	}}
	rec := memory.NewRecorder()
	rec.FailTopic(queue.TopicMatches, errors.New("topic unavailable"))
	p := New(src, rec, Config{Genders: []string{"male"}, Divisions: []string{"d1"}}, nil)

	summary, err := p.RunBatch(context.Background(), day("2024-09-01"), day("2024-09-01"))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PublishFailures)
	assert.Zero(t, summary.Emitted)
}

func TestRunSingleKeepsFeedOrder(t *testing.T) {
	t.Parallel()

	loc, err := locator.New("male", "d1", day("2024-09-01"))
	require.NoError(t, err)
	src := &fakeSource{byKey: map[string][]match.Match{
		loc.String(): {mk(1, "male", "live", 300), mk(2, "male", "final", 100)},
	}}
	rec := memory.NewRecorder()
	p := New(src, rec, Config{}, nil)

	matches, summary, err := p.RunSingle(context.Background(), loc)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, publishedIDs(t, rec))
	assert.Len(t, matches, 2)
	assert.Equal(t, 1, summary.Locators)

	empty, err := locator.New("female", "d3", day("2024-09-01"))
	require.NoError(t, err)
	none, _, err := p.RunSingle(context.Background(), empty)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
