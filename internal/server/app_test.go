package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/config"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/locator"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/ondemand"
	memoryStorage "github.com/JakeFAU/ncaa-match-pipeline/internal/storage/memory"
)

const feedPath = "/casablanca/scoreboard/soccer-women/d1/2024/09/01/scoreboard.json"

func feedServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	body, err := os.ReadFile("../scoreboard/testdata/women-d1-2024-09-01.json")
	require.NoError(t, err)

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != feedPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Feed.BaseURL = baseURL + "/casablanca/scoreboard/soccer"
	cfg.Feed.TimeoutSeconds = 2
	cfg.Feed.RateLimitRPS = 0
	cfg.Retry.MaxAttempts = 1
	cfg.Producer.Genders = []string{"female"}
	cfg.Producer.Divisions = []string{"d1"}
	return cfg
}

func day() time.Time { return time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC) }

func TestRunPipelineWritesNewMatches(t *testing.T) {
	t.Parallel()

	srv, hits := feedServer(t)
	app, err := Build(context.Background(), testConfig(t, srv.URL), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	report, err := app.RunPipeline(context.Background(), day(), day())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Producer.Locators)
	assert.Equal(t, 2, report.Producer.Matches)
	assert.Equal(t, int64(2), report.Detector.Handled)
	assert.Equal(t, int64(2), report.Written)
	assert.Zero(t, report.WriteFailures)
	assert.Equal(t, int64(1), hits.Load())

	store, ok := app.store.(*memoryStorage.MatchStore)
	require.True(t, ok)
	assert.Equal(t, 2, store.Len())

	doc, found, err := store.Get(context.Background(), match.Key{ID: 5398679, StartTimeEpoch: 1725231600})
	require.NoError(t, err)
	require.True(t, found)
	stored, err := doc.Match()
	require.NoError(t, err)
	assert.Equal(t, "female", stored.Gender)
	assert.Nil(t, stored.HomeScore)
}

func TestRunPipelineSkipsUnchangedMatches(t *testing.T) {
	t.Parallel()

	srv, _ := feedServer(t)
	app, err := Build(context.Background(), testConfig(t, srv.URL), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	known := match.Match{
		ID:               5398675,
		ProcessTimeEpoch: 1,
		StartTimeEpoch:   1725206400,
		MatchState:       "final",
		Division:         "d1",
		Gender:           "female",
		UpdatedAt:        1,
		AwayTeam:         match.Ptr("Eastern Illinois University"),
		AwayScore:        match.Ptr[int64](2),
		AwayConference:   match.Ptr("OVC"),
		HomeTeam:         match.Ptr("Eastern Kentucky University"),
		HomeScore:        match.Ptr[int64](2),
		HomeConference:   match.Ptr("ASUN"),
	}
	doc, err := known.Document()
	require.NoError(t, err)
	store := app.store.(*memoryStorage.MatchStore)
	store.Seed(known.Key(), doc)

	report, err := app.RunPipeline(context.Background(), day(), day())
	require.NoError(t, err)

	assert.Equal(t, int64(2), report.Detector.Handled)
	assert.Equal(t, int64(1), report.Written)
	assert.Equal(t, 2, store.Len())

	doc, _, err = store.Get(context.Background(), known.Key())
	require.NoError(t, err)
	kept, err := doc.Match()
	require.NoError(t, err)
	assert.Equal(t, int64(1), kept.ProcessTimeEpoch, "unchanged record must not be rewritten")
}

func TestRunPipelineArchivesLocally(t *testing.T) {
	t.Parallel()

	srv, _ := feedServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Archive.Provider = config.ProviderLocal
	cfg.Archive.LocalDir = t.TempDir()

	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	_, err = app.RunPipeline(context.Background(), day(), day())
	require.NoError(t, err)

	loc, err := locator.New("female", "d1", day())
	require.NoError(t, err)
	path := filepath.Join(cfg.Archive.LocalDir, cfg.Archive.Prefix, filepath.FromSlash(loc.ArchiveKey()))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), "5398675")
}

func TestOnDemandThroughApp(t *testing.T) {
	t.Parallel()

	srv, _ := feedServer(t)
	app, err := Build(context.Background(), testConfig(t, srv.URL), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	resp := app.OnDemand().Handle(context.Background(), ondemand.Request{
		Gender:     "female",
		Division:   "d1",
		TargetDate: "2024-09-01",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "Eastern Kentucky University")

	assert.Equal(t, 2, app.broker.Topic(app.cfg.Queue.Topics.Matches).Len())
}

func TestConsumersRegistersEveryStage(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	d, err := app.Consumers()
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Port = 0
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
