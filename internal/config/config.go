// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/locator"
)

// Provider names accepted by the queue, store and archive sections.
const (
	ProviderMemory   = "memory"
	ProviderPubSub   = "pubsub"
	ProviderPostgres = "postgres"
	ProviderNone     = "none"
	ProviderLocal    = "local"
	ProviderGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Producer ProducerConfig `mapstructure:"producer"`
	Detector DetectorConfig `mapstructure:"detector"`
	Queue    QueueConfig    `mapstructure:"queue"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Store    StoreConfig    `mapstructure:"store"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FeedConfig points at the remote scoreboard feed.
type FeedConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// RetryConfig configures the fetch retry policy.
type RetryConfig struct {
	MaxAttempts   int  `mapstructure:"max_attempts"`
	BackoffBaseMs int  `mapstructure:"backoff_base_ms"`
	BackoffMaxMs  int  `mapstructure:"backoff_max_ms"`
	Jitter        bool `mapstructure:"jitter"`
}

// ProducerConfig governs the grid walk.
type ProducerConfig struct {
	Genders      []string `mapstructure:"genders"`
	Divisions    []string `mapstructure:"divisions"`
	LookbackDays int      `mapstructure:"lookback_days"`
	Concurrency  int      `mapstructure:"concurrency"`
}

// DetectorConfig tunes change detection.
type DetectorConfig struct {
	Restamp bool `mapstructure:"restamp"`
}

// QueueConfig selects the queue transport and consumer behaviour.
type QueueConfig struct {
	Provider      string      `mapstructure:"provider"`
	Depth         int         `mapstructure:"depth"`
	BatchSize     int         `mapstructure:"batch_size"`
	MaxDeliveries int         `mapstructure:"max_deliveries"`
	Topics        TopicConfig `mapstructure:"topics"`
}

// TopicConfig maps the logical topics onto broker names.
type TopicConfig struct {
	Matches        string `mapstructure:"matches"`
	NewMatches     string `mapstructure:"new_matches"`
	ChangedMatches string `mapstructure:"changed_matches"`
}

// PubSubConfig holds Google Cloud Pub/Sub settings.
type PubSubConfig struct {
	ProjectID     string      `mapstructure:"project_id"`
	Concurrency   int         `mapstructure:"concurrency"`
	Subscriptions TopicConfig `mapstructure:"subscriptions"`
}

// StoreConfig selects the match store.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// ArchiveConfig sets where raw scoreboard payloads are kept.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig toggles the OpenTelemetry trace provider.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MATCHES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("feed.base_url", locator.DefaultBaseURL)
	v.SetDefault("feed.timeout_seconds", 10)
	v.SetDefault("feed.user_agent", "ncaa-match-pipeline/0.1")
	v.SetDefault("feed.rate_limit_rps", 4)
	v.SetDefault("feed.rate_limit_burst", 2)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.backoff_base_ms", 1000)
	v.SetDefault("retry.backoff_max_ms", 30000)
	v.SetDefault("retry.jitter", false)
	v.SetDefault("producer.genders", []string{"male", "female"})
	v.SetDefault("producer.divisions", []string{"d1", "d2"})
	v.SetDefault("producer.lookback_days", 4)
	v.SetDefault("producer.concurrency", 1)
	v.SetDefault("detector.restamp", false)
	v.SetDefault("queue.provider", ProviderMemory)
	v.SetDefault("queue.depth", 1024)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.max_deliveries", 3)
	v.SetDefault("queue.topics.matches", "matches")
	v.SetDefault("queue.topics.new_matches", "new_matches")
	v.SetDefault("queue.topics.changed_matches", "changed_matches")
	v.SetDefault("pubsub.concurrency", 4)
	v.SetDefault("pubsub.subscriptions.matches", "matches-detector")
	v.SetDefault("pubsub.subscriptions.new_matches", "new-matches-writer")
	v.SetDefault("pubsub.subscriptions.changed_matches", "changed-matches-writer")
	v.SetDefault("store.provider", ProviderMemory)
	v.SetDefault("db.table", "ncaa_match_data")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.local_dir", "archive")
	v.SetDefault("archive.prefix", "scoreboards")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.enabled", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url must be set")
	}
	if c.Feed.TimeoutSeconds <= 0 {
		return fmt.Errorf("feed.timeout_seconds must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.BackoffBaseMs < 0 || c.Retry.BackoffMaxMs < c.Retry.BackoffBaseMs {
		return fmt.Errorf("retry.backoff_max_ms must be >= retry.backoff_base_ms >= 0")
	}
	if err := c.validateProducer(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	switch c.Store.Provider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when store.provider is postgres")
		}
	default:
		return fmt.Errorf("store.provider must be one of memory, postgres")
	}
	switch c.Archive.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.provider is local")
		}
	case ProviderGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider must be one of none, memory, local, gcs")
	}
	return nil
}

func (c Config) validateProducer() error {
	if len(c.Producer.Genders) == 0 {
		return fmt.Errorf("producer.genders must not be empty")
	}
	for _, g := range c.Producer.Genders {
		if _, err := locator.ParseGender(g); err != nil {
			return fmt.Errorf("producer.genders: %w", err)
		}
	}
	if len(c.Producer.Divisions) == 0 {
		return fmt.Errorf("producer.divisions must not be empty")
	}
	for _, d := range c.Producer.Divisions {
		if _, err := locator.ParseDivision(d); err != nil {
			return fmt.Errorf("producer.divisions: %w", err)
		}
	}
	if c.Producer.LookbackDays < 0 {
		return fmt.Errorf("producer.lookback_days must be >= 0")
	}
	if c.Producer.Concurrency <= 0 {
		return fmt.Errorf("producer.concurrency must be > 0")
	}
	return nil
}

func (c Config) validateQueue() error {
	if !slices.Contains([]string{ProviderMemory, ProviderPubSub}, c.Queue.Provider) {
		return fmt.Errorf("queue.provider must be one of memory, pubsub")
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be > 0")
	}
	if c.Queue.MaxDeliveries <= 0 {
		return fmt.Errorf("queue.max_deliveries must be > 0")
	}
	if c.Queue.Topics.Matches == "" || c.Queue.Topics.NewMatches == "" || c.Queue.Topics.ChangedMatches == "" {
		return fmt.Errorf("queue.topics must name matches, new_matches and changed_matches")
	}
	if c.Queue.Provider == ProviderPubSub && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when queue.provider is pubsub")
	}
	return nil
}

// FeedTimeout is the per-attempt HTTP timeout.
func (c Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// BackoffBase is the first retry delay.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Retry.BackoffBaseMs) * time.Millisecond
}

// BackoffMax caps the retry delay.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Retry.BackoffMaxMs) * time.Millisecond
}

// RequestTimeout bounds a single API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ConnLifetime bounds how long a pooled database connection lives.
func (c Config) ConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeMinutes) * time.Minute
}
