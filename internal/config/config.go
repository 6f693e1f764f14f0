// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler Crawler `mapstructure:"crawler"`
	Queue   Queue   `mapstructure:"queue"`
	DB      DB      `mapstructure:"db"`
	Metrics Metrics `mapstructure:"metrics"`
	Logging Logging `mapstructure:"logging"`
	Mapping Mapping `mapstructure:"mapping"`
	Site    Site    `mapstructure:"site"`
}

// Crawler governs discovery and extraction pipeline behavior.
type Crawler struct {
	UserAgent       string `mapstructure:"user_agent"`
	FetchTimeoutSec int    `mapstructure:"fetch_timeout_seconds"`
	MaxRetries      int    `mapstructure:"max_retries"`
	BackoffBaseSec  int    `mapstructure:"backoff_base_seconds"`
	PageCeiling     int    `mapstructure:"page_ceiling"`
	MaxConcurrent   int    `mapstructure:"max_concurrent"`
	BatchPauseSec   int    `mapstructure:"batch_pause_seconds"`
}

// Queue selects and configures the discovery-to-extraction queue.
type Queue struct {
	Backend      string `mapstructure:"backend"`
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
	BatchSize    int    `mapstructure:"batch_size"`
	BufferSize   int    `mapstructure:"buffer_size"`
}

// DB controls access to the catalog database. When DSN is empty the
// connection string is resolved through the secret source under
// SecretName.
type DB struct {
	DSN        string `mapstructure:"dsn"`
	SecretName string `mapstructure:"secret_name"`
}

// Metrics configures the Prometheus listener.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Logging toggles zap development features.
type Logging struct {
	Development bool `mapstructure:"development"`
}

// Mapping points at an optional category mapping file; the built-in
// table is used when empty.
type Mapping struct {
	File string `mapstructure:"file"`
}

// Site identifies the storefront to crawl.
type Site struct {
	Brand   string   `mapstructure:"brand"`
	BaseURL string   `mapstructure:"base_url"`
	Seeds   []string `mapstructure:"seeds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
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
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; catalog-sync/1.0)")
	v.SetDefault("crawler.fetch_timeout_seconds", 30)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.backoff_base_seconds", 2)
	v.SetDefault("crawler.page_ceiling", 5)
	v.SetDefault("crawler.max_concurrent", 5)
	v.SetDefault("crawler.batch_pause_seconds", 1)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.buffer_size", 1024)
	v.SetDefault("db.secret_name", "supabase-credentials")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.development", true)
	v.SetDefault("site.brand", "Rapsodia")
	v.SetDefault("site.base_url", "https://www.rapsodia.com.ar")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.FetchTimeoutSec <= 0 {
		return fmt.Errorf("crawler.fetch_timeout_seconds must be > 0")
	}
	if c.Crawler.MaxConcurrent <= 0 {
		return fmt.Errorf("crawler.max_concurrent must be > 0")
	}
	if c.Crawler.PageCeiling <= 0 {
		return fmt.Errorf("crawler.page_ceiling must be > 0")
	}
	switch c.Queue.Backend {
	case "memory":
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.Topic == "" {
			return fmt.Errorf("queue.project_id and queue.topic must be set for the pubsub backend")
		}
	default:
		return fmt.Errorf("queue.backend must be memory or pubsub, got %q", c.Queue.Backend)
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be > 0")
	}
	if c.Site.Brand == "" {
		return fmt.Errorf("site.brand must be set")
	}
	return nil
}

// FetchTimeout returns the per-request fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.FetchTimeoutSec) * time.Second
}

// BackoffBase returns the linear retry backoff unit.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Crawler.BackoffBaseSec) * time.Second
}

// BatchPause returns the pause between extraction batches.
func (c Config) BatchPause() time.Duration {
	return time.Duration(c.Crawler.BatchPauseSec) * time.Second
}
