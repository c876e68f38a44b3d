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
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	DB       DBConfig       `mapstructure:"db"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Concurrency   int    `mapstructure:"concurrency"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
	RetryDelayMs  int    `mapstructure:"retry_delay_ms"`
	PageDelayMs   int    `mapstructure:"page_delay_ms"`
	UserAgent     string `mapstructure:"user_agent"`
	KeepRawHTML   bool   `mapstructure:"keep_raw_html"`
	// Resume adopts a still-running session instead of starting fresh.
	Resume bool `mapstructure:"resume"`
}

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// DBConfig selects and configures the storage backend.
type DBConfig struct {
	// Provider is "memory" or "postgres".
	Provider     string `mapstructure:"provider"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MinOpenConns int    `mapstructure:"min_open_conns"`
}

// SnapshotConfig controls raw HTML archival.
type SnapshotConfig struct {
	Dir string `mapstructure:"dir"`
}

// ScheduleConfig holds cron expressions for the serve-mode jobs. An empty
// expression disables that job.
type ScheduleConfig struct {
	Crawl  string `mapstructure:"crawl"`
	Detect string `mapstructure:"detect"`
	Report string `mapstructure:"report"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKWATCH")
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
	v.SetDefault("crawler.base_url", "https://books.toscrape.com")
	v.SetDefault("crawler.concurrency", 10)
	v.SetDefault("crawler.retry_attempts", 3)
	v.SetDefault("crawler.retry_delay_ms", 1000)
	v.SetDefault("crawler.page_delay_ms", 500)
	v.SetDefault("crawler.user_agent", "bookwatch-bot/0.1")
	v.SetDefault("crawler.keep_raw_html", false)
	v.SetDefault("crawler.resume", true)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("snapshot.dir", "snapshots")
	v.SetDefault("schedule.crawl", "0 2 * * *")
	v.SetDefault("schedule.detect", "0 */6 * * *")
	v.SetDefault("schedule.report", "0 8 * * *")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url is required")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.RetryAttempts <= 0 {
		return fmt.Errorf("crawler.retry_attempts must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("db.provider must be memory or postgres, got %q", c.DB.Provider)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RequestTimeout returns the per-fetch timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryDelay returns the backoff unit between fetch attempts.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Crawler.RetryDelayMs) * time.Millisecond
}

// PageDelay returns the politeness gap between listing page fetches.
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.Crawler.PageDelayMs) * time.Millisecond
}
