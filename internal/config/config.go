// Package config loads and validates indexer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

// Config captures all indexer configuration knobs loaded via Viper.
type Config struct {
	Sitemap  SitemapConfig  `mapstructure:"sitemap"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Chunk    ChunkConfig    `mapstructure:"chunk"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Index    IndexConfig    `mapstructure:"index"`
	State    StateConfig    `mapstructure:"state"`
	Report   ReportConfig   `mapstructure:"report"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SitemapConfig points at the root sitemap.
type SitemapConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CrawlerConfig governs the worker pool and fetch politeness.
type CrawlerConfig struct {
	Workers           int      `mapstructure:"workers"`
	FetchConcurrency  int      `mapstructure:"fetch_concurrency"`
	UserAgent         string   `mapstructure:"user_agent"`
	BlockedSubstrings []string `mapstructure:"blocked_substrings"`
	BlockedHosts      []string `mapstructure:"blocked_hosts"`
	RespectRobots     bool     `mapstructure:"respect_robots"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	Burst             int      `mapstructure:"burst"`
}

// HTTPConfig configures page fetching.
type HTTPConfig struct {
	TimeoutSeconds      int  `mapstructure:"timeout_seconds"`
	InsecureTLSFallback bool `mapstructure:"insecure_tls_fallback"`
	MaxBodyBytes        int  `mapstructure:"max_body_bytes"`
}

// ExtractConfig tunes HTML extraction.
type ExtractConfig struct {
	MainSelectors    []string `mapstructure:"main_selectors"`
	RemoveSelectors  []string `mapstructure:"remove_selectors"`
	MinWords         int      `mapstructure:"min_words"`
	MaxDownloadLinks int      `mapstructure:"max_download_links"`
}

// ChunkConfig sets chunk sizing in characters.
type ChunkConfig struct {
	MaxChars     int `mapstructure:"max_chars"`
	OverlapChars int `mapstructure:"overlap_chars"`
	MinChars     int `mapstructure:"min_chars"`
}

// EmbedConfig selects and tunes the embedding provider.
type EmbedConfig struct {
	Provider       string `mapstructure:"provider"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	Dimension      int    `mapstructure:"dimension"`
	BatchSize      int    `mapstructure:"batch_size"`
	Concurrency    int    `mapstructure:"concurrency"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend        string `mapstructure:"backend"`
	DSN            string `mapstructure:"dsn"`
	Table          string `mapstructure:"table"`
	BatchSize      int    `mapstructure:"batch_size"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	TextLimit      int    `mapstructure:"text_limit"`
	PruneStale     bool   `mapstructure:"prune_stale"`
}

// StateConfig selects the crawl state backend.
type StateConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// ReportConfig controls where run reports are written.
type ReportConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig holds Pub/Sub settings for run notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
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

// DefaultMainSelectors are tried in order to find the main content container.
var DefaultMainSelectors = []string{
	"main", "article", "#content", ".entry-content", ".page-content", ".content", ".entry",
}

// DefaultRemoveSelectors are stripped before extraction.
var DefaultRemoveSelectors = []string{
	"header", "nav", "footer", "aside", ".navbar", ".menu", ".site-header", ".site-footer",
	".cookie", ".cookies", ".popup", ".modal", ".breadcrumb", ".breadcrumbs",
}

func setDefaults(v *viper.Viper) {
	// AutomaticEnv only resolves keys viper already knows about.
	v.SetDefault("sitemap.url", "")
	v.SetDefault("sitemap.timeout_seconds", 120)

	v.SetDefault("crawler.workers", 12)
	v.SetDefault("crawler.fetch_concurrency", 20)
	v.SetDefault("crawler.user_agent", "sitemap-indexer/1.0")
	v.SetDefault("crawler.blocked_substrings", crawler.DefaultBlockedSubstrings)
	v.SetDefault("crawler.blocked_hosts", []string{})
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.burst", 1)

	v.SetDefault("http.timeout_seconds", 80)
	v.SetDefault("http.insecure_tls_fallback", true)
	v.SetDefault("http.max_body_bytes", 20*1024*1024)

	v.SetDefault("extract.main_selectors", DefaultMainSelectors)
	v.SetDefault("extract.remove_selectors", DefaultRemoveSelectors)
	v.SetDefault("extract.min_words", 10)
	v.SetDefault("extract.max_download_links", 50)

	v.SetDefault("chunk.max_chars", 3500)
	v.SetDefault("chunk.overlap_chars", 200)
	v.SetDefault("chunk.min_chars", 250)

	v.SetDefault("embed.provider", "gemini")
	v.SetDefault("embed.model", "gemini-embedding-001")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.dimension", 3072)
	v.SetDefault("embed.batch_size", 64)
	v.SetDefault("embed.concurrency", 5)
	v.SetDefault("embed.timeout_seconds", 60)

	v.SetDefault("index.backend", "pgvector")
	v.SetDefault("index.dsn", "")
	v.SetDefault("index.table", "page_chunks")
	v.SetDefault("index.batch_size", 100)
	v.SetDefault("index.timeout_seconds", 60)
	v.SetDefault("index.text_limit", 8000)
	v.SetDefault("index.prune_stale", true)

	v.SetDefault("state.backend", "badger")
	v.SetDefault("state.path", "data/crawl_state")
	v.SetDefault("state.dsn", "")

	v.SetDefault("report.backend", "local")
	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.bucket", "")
	v.SetDefault("report.prefix", "crawl-reports")

	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.promotion_threshold", 2048)

	v.SetDefault("metrics.port", 0)

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Sitemap.URL) == "" {
		return fmt.Errorf("sitemap.url is required")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.FetchConcurrency <= 0 {
		return fmt.Errorf("crawler.fetch_concurrency must be > 0")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Chunk.MaxChars <= 0 {
		return fmt.Errorf("chunk.max_chars must be > 0")
	}
	if c.Chunk.OverlapChars < 0 || c.Chunk.OverlapChars*2 >= c.Chunk.MaxChars {
		return fmt.Errorf("chunk.overlap_chars must be >= 0 and less than half of chunk.max_chars")
	}
	if c.Embed.Dimension <= 0 {
		return fmt.Errorf("embed.dimension must be > 0")
	}
	if c.Embed.BatchSize <= 0 || c.Embed.Concurrency <= 0 {
		return fmt.Errorf("embed.batch_size and embed.concurrency must be > 0")
	}
	if c.Embed.Provider != "gemini" {
		return fmt.Errorf("embed.provider %q is not supported", c.Embed.Provider)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be > 0")
	}
	if c.Index.TimeoutSeconds <= 0 {
		return fmt.Errorf("index.timeout_seconds must be > 0")
	}
	switch c.Index.Backend {
	case "pgvector":
		if c.Index.DSN == "" {
			return fmt.Errorf("index.dsn is required for the pgvector backend")
		}
	case "memory":
	default:
		return fmt.Errorf("index.backend %q is not supported", c.Index.Backend)
	}
	switch c.State.Backend {
	case "badger":
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for the badger backend")
		}
	case "postgres":
		if c.State.DSN == "" {
			return fmt.Errorf("state.dsn is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("state.backend %q is not supported", c.State.Backend)
	}
	switch c.Report.Backend {
	case "local", "memory":
	case "gcs":
		if c.Report.Bucket == "" {
			return fmt.Errorf("report.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("report.backend %q is not supported", c.Report.Backend)
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	return nil
}

// HTTPTimeout is the per-request fetch timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// SitemapTimeout is the per-request timeout for sitemap documents.
func (c Config) SitemapTimeout() time.Duration {
	return time.Duration(c.Sitemap.TimeoutSeconds) * time.Second
}

// UpsertTimeout bounds each vector batch write.
func (c Config) UpsertTimeout() time.Duration {
	return time.Duration(c.Index.TimeoutSeconds) * time.Second
}

// EmbedTimeout bounds each embedding call.
func (c Config) EmbedTimeout() time.Duration {
	return time.Duration(c.Embed.TimeoutSeconds) * time.Second
}
