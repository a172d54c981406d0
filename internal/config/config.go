// Package config loads and validates ingest configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

// EnvPrefix prefixes every environment override, e.g. INGEST_STORAGE_BACKEND.
const EnvPrefix = "INGEST"

// SearchPaths are tried in order for a config.{yaml,json,toml} when no path is given.
var SearchPaths = []string{".", "/etc/clickbait-verifier/", "$HOME/.clickbait-verifier"}

// Storage and export backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig               `mapstructure:"server"`
	Crawler   CrawlerConfig              `mapstructure:"crawler"`
	HTTP      HTTPConfig                 `mapstructure:"http"`
	Headless  HeadlessConfig             `mapstructure:"headless"`
	Storage   StorageConfig              `mapstructure:"storage"`
	Export    ExportConfig               `mapstructure:"export"`
	PubSub    PubSubConfig               `mapstructure:"pubsub"`
	Logging   LoggingConfig              `mapstructure:"logging"`
	Telemetry TelemetryConfig            `mapstructure:"telemetry"`
	Sources   []crawler.SourceDefinition `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior. An empty APIKey disables auth.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// CrawlerConfig governs the dispatcher and the per-article pipeline.
type CrawlerConfig struct {
	Concurrency        int     `mapstructure:"concurrency"`
	QueueDepth         int     `mapstructure:"queue_depth"`
	UserAgent          string  `mapstructure:"user_agent"`
	AcceptLanguage     string  `mapstructure:"accept_language"`
	DelaySeconds       float64 `mapstructure:"delay_seconds"`
	RespectRobots      bool    `mapstructure:"respect_robots"`
	EscalationMinChars int     `mapstructure:"escalation_min_chars"`
	ExtractorDir       string  `mapstructure:"extractor_dir"`
	Location           string  `mapstructure:"location"`
}

// HTTPConfig configures the direct fetcher and feed client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	ExecPath      string `mapstructure:"exec_path"`
}

// StorageConfig selects the article store backend.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// SQLiteConfig points at the database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ExportConfig selects where JSON reports are written.
type ExportConfig struct {
	Backend string          `mapstructure:"backend"`
	Local   LocalExportConf `mapstructure:"local"`
	GCS     GCSExportConf   `mapstructure:"gcs"`
}

// LocalExportConf is the filesystem export root.
type LocalExportConf struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSExportConf names the bucket and object prefix.
type GCSExportConf struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for new-record notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls the OpenTelemetry tracer provider.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from an optional .env file, the environment and a config file. An empty
// path searches SearchPaths and runs on defaults when nothing is found.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		for _, dir := range SearchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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

// LoadDotEnv exports the variables in path unless they are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Several news sites serve stripped pages to anything that does not look like a desktop browser.
const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36"
	defaultAcceptLanguage = "en-US,en;q=0.9,pl;q=0.8"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.user_agent", defaultUserAgent)
	v.SetDefault("crawler.accept_language", defaultAcceptLanguage)
	v.SetDefault("crawler.delay_seconds", 1)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.escalation_min_chars", 1000)
	v.SetDefault("crawler.extractor_dir", "extractors")
	v.SetDefault("crawler.location", "Europe/Warsaw")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("storage.postgres.min_conns", 0)
	v.SetDefault("storage.postgres.migrate", true)
	v.SetDefault("storage.sqlite.path", "data/articles.db")
	v.SetDefault("export.backend", BackendLocal)
	v.SetDefault("export.local.base_dir", "reports")
	v.SetDefault("export.gcs.bucket", "")
	v.SetDefault("export.gcs.prefix", "")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "articles-new")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "clickbait-verifier")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits. It also prepares every source.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.Crawler.DelaySeconds < 0 {
		return fmt.Errorf("crawler.delay_seconds must be >= 0")
	}
	if _, err := time.LoadLocation(c.Crawler.Location); err != nil {
		return fmt.Errorf("crawler.location: %w", err)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set for the postgres backend")
		}
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path must be set for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Export.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Export.Local.BaseDir == "" {
			return fmt.Errorf("export.local.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Export.GCS.Bucket == "" {
			return fmt.Errorf("export.gcs.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown export.backend %q", c.Export.Backend)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set when pubsub is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if err := crawler.ValidateSources(c.Sources); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	return nil
}

// HTTPTimeout is the per-request budget for direct fetches and feeds.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout is the headless navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// Delay is the polite per-host delay between article fetches.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Crawler.DelaySeconds * float64(time.Second))
}

// RequestTimeout bounds each API request.
func (c Config) RequestTimeout() time.Duration {
	if c.Server.RequestTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// EnabledSources returns the sources marked enabled, in configured order.
func (c Config) EnabledSources() []crawler.SourceDefinition {
	out := make([]crawler.SourceDefinition, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
