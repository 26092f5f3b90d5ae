// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Browser   BrowserConfig   `mapstructure:"browser"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	API       APIConfig       `mapstructure:"api"`
	Store     StoreConfig     `mapstructure:"store"`
	Visited   VisitedConfig   `mapstructure:"visited"`
	Blobs     BlobsConfig     `mapstructure:"blobs"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// BrowserConfig controls how the authenticated browsing surface is obtained.
// DevtoolsURL attaches to an already logged-in Chrome instance; when empty,
// a local instance is launched with the given user data dir, which must
// contain a valid session.
type BrowserConfig struct {
	DevtoolsURL    string `mapstructure:"devtools_url"`
	UserDataDir    string `mapstructure:"user_data_dir"`
	UserAgent      string `mapstructure:"user_agent"`
	Headless       bool   `mapstructure:"headless"`
	NavTimeoutSecs int    `mapstructure:"nav_timeout_seconds"`
}

// HarvestConfig governs the crawl session loop.
type HarvestConfig struct {
	SearchTerm          string `mapstructure:"search_term"`
	Quota               int    `mapstructure:"quota"`
	StallThreshold      int    `mapstructure:"stall_threshold"`
	CandidateWindow     int    `mapstructure:"candidate_window"`
	CommentLimit        int    `mapstructure:"comment_limit"`
	CommentScrollRounds int    `mapstructure:"comment_scroll_rounds"`
	BaseURL             string `mapstructure:"base_url"`
	ResultsRoute        string `mapstructure:"results_route"`
	Pacing              string `mapstructure:"pacing"`
	DownloadVideos      bool   `mapstructure:"download_videos"`
}

// APIConfig configures the signed backend API client.
type APIConfig struct {
	Host           string `mapstructure:"host"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RetryAttempts  int    `mapstructure:"retry_attempts"`
	RetryWaitMs    int    `mapstructure:"retry_wait_ms"`
}

// StoreConfig sets the output artifact path and flush thresholds.
type StoreConfig struct {
	Dir               string `mapstructure:"dir"`
	FlushThreshold    int    `mapstructure:"flush_threshold"`
	FlushIntervalSecs int    `mapstructure:"flush_interval_seconds"`
}

// VisitedConfig selects how the visited-unit set is persisted.
// Backend "memory" scopes dedup to the session; "postgres" carries it
// across runs.
type VisitedConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// BlobsConfig selects the blob store backend for downloaded media.
type BlobsConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PublisherConfig controls the session-completed notification.
type PublisherConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the operator status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REDHARVEST")
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
	v.SetDefault("browser.devtools_url", "http://localhost:9222")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.nav_timeout_seconds", 25)

	v.SetDefault("harvest.quota", 20)
	v.SetDefault("harvest.stall_threshold", 5)
	v.SetDefault("harvest.candidate_window", 6)
	v.SetDefault("harvest.comment_limit", 100)
	v.SetDefault("harvest.comment_scroll_rounds", 3)
	v.SetDefault("harvest.base_url", "https://www.xiaohongshu.com")
	v.SetDefault("harvest.results_route", "search_result")
	v.SetDefault("harvest.pacing", "human")
	v.SetDefault("harvest.download_videos", false)

	v.SetDefault("api.host", "https://edith.xiaohongshu.com")
	v.SetDefault("api.timeout_seconds", 60)
	v.SetDefault("api.retry_attempts", 3)
	v.SetDefault("api.retry_wait_ms", 1000)

	v.SetDefault("store.dir", "data/harvest")
	v.SetDefault("store.flush_threshold", 5)
	v.SetDefault("store.flush_interval_seconds", 30)

	v.SetDefault("visited.backend", "memory")
	v.SetDefault("visited.table", "visited_notes")

	v.SetDefault("blobs.backend", "local")
	v.SetDefault("blobs.base_dir", "data/media")

	v.SetDefault("publisher.enabled", false)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.Quota <= 0 {
		return fmt.Errorf("harvest.quota must be > 0")
	}
	if c.Harvest.StallThreshold <= 0 {
		return fmt.Errorf("harvest.stall_threshold must be > 0")
	}
	if c.Harvest.BaseURL == "" {
		return fmt.Errorf("harvest.base_url is required")
	}
	if c.API.Host == "" {
		return fmt.Errorf("api.host is required")
	}
	if c.API.RetryAttempts <= 0 {
		return fmt.Errorf("api.retry_attempts must be > 0")
	}
	if c.Store.FlushThreshold <= 0 {
		return fmt.Errorf("store.flush_threshold must be > 0")
	}
	switch c.Visited.Backend {
	case "memory":
	case "postgres":
		if c.Visited.DSN == "" {
			return fmt.Errorf("visited.dsn must be set when visited.backend is postgres")
		}
	default:
		return fmt.Errorf("visited.backend must be memory or postgres")
	}
	switch c.Blobs.Backend {
	case "local", "memory":
	case "gcs":
		if c.Blobs.GCSBucket == "" {
			return fmt.Errorf("blobs.gcs_bucket must be set when blobs.backend is gcs")
		}
	default:
		return fmt.Errorf("blobs.backend must be local, gcs or memory")
	}
	if c.Publisher.Enabled && (c.Publisher.ProjectID == "" || c.Publisher.Topic == "") {
		return fmt.Errorf("publisher.project_id and publisher.topic must be set when publisher is enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when server is enabled")
	}
	return nil
}

// NavTimeout converts the browser navigation timeout to a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSecs) * time.Second
}

// APITimeout converts the API timeout to a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// FlushInterval converts the store flush interval to a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.Store.FlushIntervalSecs) * time.Second
}
