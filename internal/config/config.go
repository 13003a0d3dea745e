// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob the harvester recognizes.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	DB        DBConfig        `mapstructure:"db"`
	Ops       OpsConfig       `mapstructure:"ops"`
}

// LoggingConfig selects the zap build.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig tunes the governed fetch engine.
type FetchConfig struct {
	Transport         string        `mapstructure:"transport"` // "colly" or "chromedp"
	Timeout           time.Duration `mapstructure:"timeout"`
	Concurrency       int           `mapstructure:"concurrency"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	TokenInterval     time.Duration `mapstructure:"token_interval"` // one admission per interval
	BucketCapacity    float64       `mapstructure:"bucket_capacity"`
	PollMin           time.Duration `mapstructure:"poll_min"`
	PollMax           time.Duration `mapstructure:"poll_max"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
}

// FillRate converts the admission interval to tokens per second.
func (c FetchConfig) FillRate() float64 {
	if c.TokenInterval <= 0 {
		return 0
	}
	return 1.0 / c.TokenInterval.Seconds()
}

// ScrapeConfig tunes pagination and the batch scheduler.
type ScrapeConfig struct {
	ResultsPerPage int           `mapstructure:"results_per_page"`
	MaxPages       int           `mapstructure:"max_pages"`
	CooldownEvery  int           `mapstructure:"cooldown_every"`
	CooldownMin    time.Duration `mapstructure:"cooldown_min"`
	CooldownMax    time.Duration `mapstructure:"cooldown_max"`
}

// PipelineConfig tunes the chunked run.
type PipelineConfig struct {
	Transaction    string        `mapstructure:"transaction"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	TimeBudget     time.Duration `mapstructure:"time_budget"`
	StartJitterMax time.Duration `mapstructure:"start_jitter_max"`
}

// StorageConfig selects the blob store backend.
type StorageConfig struct {
	Provider string `mapstructure:"provider"` // "memory", "local" or "gcs"
	Bucket   string `mapstructure:"bucket"`
	BaseDir  string `mapstructure:"base_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// WarehouseConfig points at the BigQuery table the run appends to.
type WarehouseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
	Table   string `mapstructure:"table"`
}

// PubSubConfig points at the completion-event topic.
type PubSubConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Project string `mapstructure:"project"`
	Topic   string `mapstructure:"topic"`
}

// DBConfig points at the optional run bookkeeping store.
type DBConfig struct {
	DSN        string `mapstructure:"dsn"`
	RunTable   string `mapstructure:"run_table"`
	ChunkTable string `mapstructure:"chunk_table"`
}

// OpsConfig controls the operational HTTP server.
type OpsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Load reads configuration from the optional file path, HARVESTER_*
// environment variables, and the defaults below, then validates it.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
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
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("fetch.transport", "colly")
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.concurrency", 1)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.initial_backoff", 32*time.Second)
	v.SetDefault("fetch.max_backoff", 64*time.Second)
	v.SetDefault("fetch.token_interval", 27*time.Second)
	v.SetDefault("fetch.bucket_capacity", 1.0)
	v.SetDefault("fetch.poll_min", time.Second)
	v.SetDefault("fetch.poll_max", 5*time.Second)
	v.SetDefault("fetch.rate_limit_cooldown", 12*time.Hour)

	v.SetDefault("scrape.results_per_page", 30)
	v.SetDefault("scrape.max_pages", 60)
	v.SetDefault("scrape.cooldown_every", 30)
	v.SetDefault("scrape.cooldown_min", 2*time.Second)
	v.SetDefault("scrape.cooldown_max", 10*time.Second)

	v.SetDefault("pipeline.transaction", "sale")
	v.SetDefault("pipeline.chunk_size", 30)
	v.SetDefault("pipeline.time_budget", 18*time.Hour)
	v.SetDefault("pipeline.start_jitter_max", 30*time.Minute)

	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "listings")

	v.SetDefault("warehouse.enabled", false)
	v.SetDefault("pubsub.enabled", false)

	v.SetDefault("db.run_table", "runs")
	v.SetDefault("db.chunk_table", "run_chunks")

	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.listen", ":9090")
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	switch c.Fetch.Transport {
	case "colly", "chromedp":
	default:
		return fmt.Errorf("fetch.transport must be colly or chromedp, got %q", c.Fetch.Transport)
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be >= 1")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Fetch.TokenInterval <= 0 {
		return fmt.Errorf("fetch.token_interval must be positive")
	}
	if c.Fetch.BucketCapacity <= 0 {
		return fmt.Errorf("fetch.bucket_capacity must be positive")
	}
	if c.Fetch.PollMin <= 0 || c.Fetch.PollMax <= c.Fetch.PollMin {
		return fmt.Errorf("fetch poll window must satisfy 0 < poll_min < poll_max")
	}
	if c.Scrape.ResultsPerPage < 1 {
		return fmt.Errorf("scrape.results_per_page must be >= 1")
	}
	if c.Scrape.MaxPages < 1 {
		return fmt.Errorf("scrape.max_pages must be >= 1")
	}
	if c.Pipeline.ChunkSize < 1 {
		return fmt.Errorf("pipeline.chunk_size must be >= 1")
	}
	if c.Pipeline.TimeBudget <= 0 {
		return fmt.Errorf("pipeline.time_budget must be positive")
	}
	switch c.Storage.Provider {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local provider")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider must be memory, local or gcs, got %q", c.Storage.Provider)
	}
	if c.Warehouse.Enabled {
		if c.Storage.Provider != "gcs" {
			return fmt.Errorf("warehouse loads read gs:// URIs; storage.provider must be gcs")
		}
		if c.Warehouse.Project == "" || c.Warehouse.Dataset == "" || c.Warehouse.Table == "" {
			return fmt.Errorf("warehouse.project, dataset and table are required when enabled")
		}
	}
	if c.PubSub.Enabled && (c.PubSub.Project == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project and topic are required when enabled")
	}
	return nil
}
