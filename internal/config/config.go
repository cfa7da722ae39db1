// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/quotes-crawler/internal/logging"
)

// Sink names accepted in output.sinks.
const (
	SinkCSV      = "csv"
	SinkPostgres = "postgres"
)

// Storage providers accepted in storage.provider.
const (
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Publisher providers accepted in publisher.provider.
const (
	PublisherNone   = "none"
	PublisherPubSub = "pubsub"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Output    OutputConfig    `mapstructure:"output"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   logging.Config  `mapstructure:"logging"`
}

// SourceConfig locates the site being crawled.
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// CrawlerConfig governs fetching, pagination, and author resolution.
type CrawlerConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxPages caps the listing scan; zero means no cap.
	MaxPages          int           `mapstructure:"max_pages"`
	EntityConcurrency int           `mapstructure:"entity_concurrency"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	// RateLimitRPS of zero disables rate limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// OutputConfig selects the sinks that receive the datasets.
type OutputConfig struct {
	Sinks []string `mapstructure:"sinks"`
	// Prefix is the object path prefix for CSV artifacts.
	Prefix string `mapstructure:"prefix"`
}

// StorageConfig selects where CSV artifacts are written.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PostgresConfig controls the Postgres sink.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

// PublisherConfig holds the completion event destination.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the /metrics and /healthz listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"base-url":   "source.base_url",
	"max-pages":  "crawler.max_pages",
	"output-dir": "storage.base_dir",
	"sinks":      "output.sinks",
}

// Load builds a Config from defaults, an optional file, QUOTES_* environment
// variables, and any changed flags in flags (which may be nil).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

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
	v.SetDefault("source.base_url", "https://quotes.toscrape.com")
	v.SetDefault("crawler.user_agent", "quotes-crawler/0.1")
	v.SetDefault("crawler.request_timeout", 15*time.Second)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.entity_concurrency", 4)
	v.SetDefault("crawler.max_retries", 2)
	v.SetDefault("crawler.backoff_initial", 250*time.Millisecond)
	v.SetDefault("crawler.backoff_max", 2*time.Second)
	v.SetDefault("crawler.rate_limit_rps", 2.0)
	v.SetDefault("crawler.rate_limit_burst", 1)
	v.SetDefault("output.sinks", []string{SinkCSV})
	v.SetDefault("output.prefix", "crawls")
	v.SetDefault("storage.provider", StorageLocal)
	v.SetDefault("storage.base_dir", "out")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("publisher.provider", PublisherNone)
	v.SetDefault("publisher.topic", "quotes-crawl-completed")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source.base_url must be an absolute http(s) URL")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Crawler.EntityConcurrency <= 0 {
		return fmt.Errorf("crawler.entity_concurrency must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Crawler.BackoffMax < c.Crawler.BackoffInitial {
		return fmt.Errorf("crawler.backoff_max must be >= crawler.backoff_initial")
	}
	if c.Crawler.RateLimitRPS < 0 {
		return fmt.Errorf("crawler.rate_limit_rps must be >= 0")
	}
	if len(c.Output.Sinks) == 0 {
		return fmt.Errorf("output.sinks must name at least one sink")
	}
	for _, s := range c.Output.Sinks {
		if s != SinkCSV && s != SinkPostgres {
			return fmt.Errorf("output.sinks: unknown sink %q", s)
		}
	}
	if c.HasSink(SinkCSV) {
		switch c.Storage.Provider {
		case StorageLocal:
			if strings.TrimSpace(c.Storage.BaseDir) == "" {
				return fmt.Errorf("storage.base_dir is required for the local provider")
			}
		case StorageGCS:
			if c.Storage.GCSBucket == "" {
				return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
			}
		case StorageMemory:
		default:
			return fmt.Errorf("storage.provider: unknown provider %q", c.Storage.Provider)
		}
	}
	if c.HasSink(SinkPostgres) && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when the postgres sink is enabled")
	}
	switch c.Publisher.Provider {
	case PublisherNone, "":
	case PublisherPubSub:
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("publisher.provider: unknown provider %q", c.Publisher.Provider)
	}
	return nil
}

// HasSink reports whether name is listed in output.sinks.
func (c Config) HasSink(name string) bool {
	return slices.Contains(c.Output.Sinks, name)
}
