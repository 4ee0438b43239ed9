// Package server builds the application's dependencies from configuration
// and runs the pipeline stages and HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/api"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/clock/system"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/config"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/detector"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/ncaa-match-pipeline/internal/fetcher/colly"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/hash/sha256"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/locator"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/logging"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/ondemand"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/policy/ratelimit"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/producer"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/queue"
	queueMemory "github.com/JakeFAU/ncaa-match-pipeline/internal/queue/memory"
	gcpqueue "github.com/JakeFAU/ncaa-match-pipeline/internal/queue/pubsub"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/retry"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/scoreboard"
	matchstorage "github.com/JakeFAU/ncaa-match-pipeline/internal/storage"
	gcsstorage "github.com/JakeFAU/ncaa-match-pipeline/internal/storage/gcs"
	localstorage "github.com/JakeFAU/ncaa-match-pipeline/internal/storage/local"
	memoryStorage "github.com/JakeFAU/ncaa-match-pipeline/internal/storage/memory"
	pgstore "github.com/JakeFAU/ncaa-match-pipeline/internal/storage/postgres"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/telemetry"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/worker"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/writer"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	broker          *queueMemory.Broker
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcpqueue.Publisher
	storage         *storage.Client
	pgStore         *pgstore.MatchStore
	tracer          *sdktrace.TracerProvider

	store     matchstorage.MatchStore
	publisher queue.Publisher
	fetcher   *scoreboard.Fetcher
	producer  *producer.Producer
	detector  *detector.Detector
	writer    *writer.Writer
	ondemand  *ondemand.Service
}

// Report summarises one in-process pipeline run.
type Report struct {
	Producer      producer.Summary
	Detector      worker.Stats
	Written       int64
	WriteFailures int64
}

// Build creates the application's dependencies. Close must be called to
// release any clients it opened, including after a partial failure.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.String("queue", cfg.Queue.Provider),
		zap.String("store", cfg.Store.Provider),
		zap.String("archive", cfg.Archive.Provider),
	)

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, logging.ServiceName)
		if err != nil {
			return app, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracer = tp
	}
	if err := app.setupStore(ctx); err != nil {
		return app, err
	}
	archive, err := app.setupArchive(ctx)
	if err != nil {
		return app, err
	}
	if err := app.setupQueue(ctx); err != nil {
		return app, err
	}

	app.fetcher = app.newFetcher(archive)
	app.producer = producer.New(app.fetcher, app.publisher, producer.Config{
		Genders:     cfg.Producer.Genders,
		Divisions:   cfg.Producer.Divisions,
		Concurrency: cfg.Producer.Concurrency,
		Topic:       cfg.Queue.Topics.Matches,
	}, logger)

	var detectorOpts []detector.Option
	if cfg.Detector.Restamp {
		detectorOpts = append(detectorOpts, detector.WithRestamp(system.New()))
	}
	app.detector = detector.New(app.store, app.publisher, detector.Config{
		NewTopic:     cfg.Queue.Topics.NewMatches,
		ChangedTopic: cfg.Queue.Topics.ChangedMatches,
	}, logger, detectorOpts...)
	app.writer = writer.New(app.store, logger)
	app.ondemand = ondemand.New(app.producer, logger)

	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Store.Provider {
	case config.ProviderPostgres:
		store, err := pgstore.NewMatchStore(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			Table:           a.cfg.DB.Table,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.ConnLifetime(),
		})
		if err != nil {
			return fmt.Errorf("match store init failed: %w", err)
		}
		a.pgStore = store
		a.store = store
		a.logger.Info("postgres match store initialized", zap.String("table", a.cfg.DB.Table))
	default:
		a.logger.Info("using in-memory match store")
		a.store = memoryStorage.NewMatchStore()
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) (matchstorage.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case config.ProviderGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Archive.GCSBucket,
			Prefix: a.cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving payloads to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
		return blobs, nil
	case config.ProviderLocal:
		dir := filepath.Join(a.cfg.Archive.LocalDir, a.cfg.Archive.Prefix)
		blobs, err := localstorage.New(localstorage.Config{BaseDir: dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving payloads locally", zap.String("path", dir))
		return blobs, nil
	case config.ProviderMemory:
		a.logger.Info("archiving payloads in memory")
		return memoryStorage.NewBlobStore(), nil
	default:
		a.logger.Debug("payload archive disabled")
		return nil, nil
	}
}

func (a *App) setupQueue(ctx context.Context) error {
	if a.cfg.Queue.Provider != config.ProviderPubSub {
		a.broker = queueMemory.NewBroker(a.cfg.Queue.Depth)
		a.publisher = a.broker
		a.logger.Info("using in-memory queue broker", zap.Int("depth", a.cfg.Queue.Depth))
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPublisher, err = gcpqueue.NewPublisher(client, nil)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = a.pubsubPublisher
	a.logger.Info("Pub/Sub publisher initialized", zap.String("project", a.cfg.PubSub.ProjectID))
	return nil
}

func (a *App) newFetcher(archive matchstorage.BlobStore) *scoreboard.Fetcher {
	retryOpts := []retry.Option{
		retry.WithMaxAttempts(a.cfg.Retry.MaxAttempts),
		retry.WithBackoff(a.cfg.BackoffBase(), a.cfg.BackoffMax()),
	}
	if a.cfg.Retry.Jitter {
		retryOpts = append(retryOpts, retry.WithJitter())
	}
	transport := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Feed.UserAgent,
		Timeout:   a.cfg.FeedTimeout(),
	})
	opts := []scoreboard.Option{
		scoreboard.WithLimiter(ratelimit.New(ratelimit.Config{
			RPS:   a.cfg.Feed.RateLimitRPS,
			Burst: a.cfg.Feed.RateLimitBurst,
		})),
	}
	if archive != nil {
		opts = append(opts, scoreboard.WithArchive(archive, sha256.New()))
	}
	a.logger.Info("using colly feed transport",
		zap.String("base_url", a.cfg.Feed.BaseURL),
		zap.String("user_agent", a.cfg.Feed.UserAgent),
		zap.Int("max_attempts", a.cfg.Retry.MaxAttempts),
	)
	return scoreboard.NewFetcher(
		transport,
		locator.NewURLBuilder(a.cfg.Feed.BaseURL),
		retry.NewPolicy(retryOpts...),
		system.New(),
		a.logger,
		opts...,
	)
}

// Producer returns the pipeline producer.
func (a *App) Producer() *producer.Producer { return a.producer }

// OnDemand returns the single-locator service.
func (a *App) OnDemand() *ondemand.Service { return a.ondemand }

// Consumers registers the detector and writer stages for the configured
// queue transport.
func (a *App) Consumers() (*dispatcher.Dispatcher, error) {
	d := dispatcher.New()
	topics := a.cfg.Queue.Topics
	if a.broker != nil {
		d.Add("detector", a.memoryWorker("detector", topics.Matches, a.detector))
		d.Add("new-writer", a.memoryWorker("new-writer", topics.NewMatches, a.writer))
		d.Add("changed-writer", a.memoryWorker("changed-writer", topics.ChangedMatches, a.writer))
		return d, nil
	}
	subs := a.cfg.PubSub.Subscriptions
	stages := []struct {
		name    string
		sub     string
		handler queue.Handler
	}{
		{"detector", subs.Matches, a.detector},
		{"new-writer", subs.NewMatches, a.writer},
		{"changed-writer", subs.ChangedMatches, a.writer},
	}
	for _, s := range stages {
		c, err := gcpqueue.NewConsumer(a.pubsubClient, s.handler, gcpqueue.ConsumerConfig{
			Subscription:  s.sub,
			Concurrency:   a.cfg.PubSub.Concurrency,
			MaxDeliveries: a.cfg.Queue.MaxDeliveries,
		}, logging.Stage(a.logger, s.name))
		if err != nil {
			return nil, fmt.Errorf("%s consumer init failed: %w", s.name, err)
		}
		d.Add(s.name, c)
	}
	return d, nil
}

func (a *App) memoryWorker(name, topic string, h queue.Handler) *worker.Worker {
	return worker.New(a.broker.Topic(topic), h, worker.Config{
		Name:          name,
		BatchSize:     a.cfg.Queue.BatchSize,
		MaxDeliveries: a.cfg.Queue.MaxDeliveries,
	}, logging.Stage(a.logger, name))
}

// RunPipeline walks [start, end] and, with the in-memory broker, drives every
// record through detection and storage before returning. Topics are closed
// stage by stage so each consumer drains before its downstream stops.
func (a *App) RunPipeline(ctx context.Context, start, end time.Time) (Report, error) {
	if a.broker == nil {
		summary, err := a.producer.RunBatch(ctx, start, end)
		return Report{Producer: summary}, err
	}

	topics := a.cfg.Queue.Topics
	det := a.memoryWorker("detector", topics.Matches, a.detector)
	writers := dispatcher.New().
		Add("new-writer", a.memoryWorker("new-writer", topics.NewMatches, a.writer)).
		Add("changed-writer", a.memoryWorker("changed-writer", topics.ChangedMatches, a.writer))

	detDone := make(chan error, 1)
	writersDone := make(chan error, 1)
	go func() { detDone <- det.Run(ctx) }()
	go func() { writersDone <- writers.Run(ctx) }()

	summary, runErr := a.producer.RunBatch(ctx, start, end)

	a.broker.CloseTopic(topics.Matches)
	detErr := <-detDone
	a.broker.CloseTopic(topics.NewMatches)
	a.broker.CloseTopic(topics.ChangedMatches)
	writeErr := <-writersDone

	report := Report{
		Producer:      summary,
		Detector:      det.Stats(),
		Written:       a.writer.Written(),
		WriteFailures: a.writer.Failed(),
	}
	a.logger.Info("pipeline run complete",
		zap.Int("locators", summary.Locators),
		zap.Int("matches", summary.Matches),
		zap.Int64("classified", report.Detector.Handled),
		zap.Int64("written", report.Written),
		zap.Int64("write_failures", report.WriteFailures),
	)
	return report, errors.Join(runErr, detErr, writeErr)
}

// Serve runs the HTTP API and the consumer stages until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	consumers, err := a.Consumers()
	if err != nil {
		return err
	}
	consumersDone := make(chan error, 1)
	go func() {
		a.logger.Info("consumers started", zap.Int("stages", consumers.Len()))
		consumersDone <- consumers.Run(ctx)
	}()

	checks := map[string]api.Pinger{}
	if a.pgStore != nil {
		checks["postgres"] = a.pgStore
	}
	apiKey := ""
	if a.cfg.Auth.Enabled {
		apiKey = a.cfg.Auth.APIKey
	}
	apiServer := api.NewServer(a.ondemand, checks, api.Config{
		APIKey:         apiKey,
		RequestTimeout: a.cfg.RequestTimeout(),
	}, a.logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.broker != nil {
		a.broker.Close()
	}
	return <-consumersDone
}

// Close gracefully shuts down the application.
func (a *App) Close() {
	if a.broker != nil {
		a.broker.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}
