// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// stage of the pipeline (Crawler, Indexer, Ranker) and the services around it
// (Server, Redis, Kafka, Logging, Metrics, Tracing).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/noodle-search/noodle/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Redis   RedisConfig   `yaml:"redis"`
	Corpus  CorpusConfig  `yaml:"corpus"`
	NLP     NLPConfig     `yaml:"nlp"`
	Crawler CrawlerConfig `yaml:"crawler"`
	Indexer IndexerConfig `yaml:"indexer"`
	Ranker  RankerConfig  `yaml:"ranker"`
	Search  SearchConfig  `yaml:"search"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables event publishing.
type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents string `yaml:"searchEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CorpusConfig locates the crawled pages file shared by all three stages.
type CorpusConfig struct {
	Path string `yaml:"path"`
}

// NLPConfig controls text normalization. The indexer and the searcher build
// their normalizer from this one section.
type NLPConfig struct {
	Language  string `yaml:"language"`
	Stemming  bool   `yaml:"stemming"`
	MinLength int    `yaml:"minLength"`
}

// Robots-unavailable policies.
const (
	RobotsAllow = "allow"
	RobotsDeny  = "deny"
	RobotsFail  = "fail"
)

// CrawlerConfig controls the crawl scheduler.
type CrawlerConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	MaxURLs           int           `yaml:"maxUrls"`
	Threads           int           `yaml:"threads"`
	PolitenessDelay   time.Duration `yaml:"politenessDelay"`
	MaxURLPerPage     int           `yaml:"maxUrlPerPage"`
	UserAgent         string        `yaml:"userAgent"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
	RobotsUnavailable string        `yaml:"robotsUnavailable"`
	Sitemaps          bool          `yaml:"sitemaps"`
}

// IndexerConfig controls which fields are indexed and how.
type IndexerConfig struct {
	OutputDir  string   `yaml:"outputDir"`
	Fields     []string `yaml:"fields"`
	Positional bool     `yaml:"positional"`
	Limit      int      `yaml:"limit"`
}

// Ranking models.
const (
	ModelWeighted = "weighted"
	ModelBM25     = "bm25"
)

// IDF bases for BM25.
const (
	IDFDocuments  = "documents"
	IDFVocabulary = "vocabulary"
)

// RankerConfig controls query scoring.
type RankerConfig struct {
	IndexDir   string              `yaml:"indexDir"`
	Positional bool                `yaml:"positional"`
	Model      string              `yaml:"model"`
	K1         float64             `yaml:"k1"`
	B          float64             `yaml:"b"`
	IDFBase    string              `yaml:"idfBase"`
	Fields     []RankerFieldConfig `yaml:"fields"`
}

// RankerFieldConfig assigns a weight to an indexed field. IndexFile overrides
// the path derived from IndexDir.
type RankerFieldConfig struct {
	Name      string  `yaml:"name"`
	Weight    float64 `yaml:"weight"`
	IndexFile string  `yaml:"indexFile"`
}

// SearchConfig controls the HTTP search surface.
type SearchConfig struct {
	DefaultLimit int             `yaml:"defaultLimit"`
	MaxResults   int             `yaml:"maxResults"`
	Display      DisplayConfig   `yaml:"display"`
	RateLimit    RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig bounds requests per client address. Zero disables it.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// DisplayConfig holds per-field truncation lengths for search responses.
type DisplayConfig struct {
	TitleLength   int `yaml:"titleLength"`
	URLLength     int `yaml:"urlLength"`
	ContentLength int `yaml:"contentLength"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles span logging for search requests.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local runs.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Kafka: KafkaConfig{
			Topics: KafkaTopics{
				SearchEvents: "noodle.search-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Corpus: CorpusConfig{
			Path: "data/pages.json",
		},
		NLP: NLPConfig{
			Language:  "english",
			Stemming:  false,
			MinLength: 2,
		},
		Crawler: CrawlerConfig{
			MaxURLs:           50,
			Threads:           5,
			PolitenessDelay:   3 * time.Second,
			MaxURLPerPage:     10,
			UserAgent:         "NoodleBot/1.0",
			RequestTimeout:    10 * time.Second,
			MaxBodyBytes:      5 << 20,
			RobotsUnavailable: RobotsAllow,
		},
		Indexer: IndexerConfig{
			OutputDir: "data/index",
			Fields:    []string{"title", "content"},
		},
		Ranker: RankerConfig{
			IndexDir: "data/index",
			Model:    ModelWeighted,
			K1:       1.5,
			B:        0.75,
			IDFBase:  IDFDocuments,
			Fields: []RankerFieldConfig{
				{Name: "title", Weight: 2},
				{Name: "content", Weight: 1},
			},
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxResults:   100,
			Display: DisplayConfig{
				TitleLength:   50,
				URLLength:     30,
				ContentLength: 100,
			},
			RateLimit: RateLimitConfig{
				Window: time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate rejects configurations no stage can run with.
func (c *Config) Validate() error {
	if c.Crawler.MaxURLs <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, 0, "crawler.maxUrls must be positive, got %d", c.Crawler.MaxURLs)
	}
	if c.Crawler.Threads <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, 0, "crawler.threads must be positive, got %d", c.Crawler.Threads)
	}
	if c.Crawler.MaxURLPerPage < 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, 0, "crawler.maxUrlPerPage must not be negative")
	}
	switch c.Crawler.RobotsUnavailable {
	case RobotsAllow, RobotsDeny, RobotsFail:
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, 0, "crawler.robotsUnavailable: unknown policy %q", c.Crawler.RobotsUnavailable)
	}
	switch c.Ranker.Model {
	case ModelWeighted, ModelBM25:
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, 0, "ranker.model: unknown model %q", c.Ranker.Model)
	}
	switch c.Ranker.IDFBase {
	case IDFDocuments, IDFVocabulary:
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, 0, "ranker.idfBase: unknown base %q", c.Ranker.IDFBase)
	}
	if c.Search.RateLimit.Requests < 0 {
		return apperrors.New(apperrors.ErrInvalidInput, 0, "search.rateLimit.requests must not be negative")
	}
	if c.Search.RateLimit.Requests > 0 && c.Search.RateLimit.Window <= 0 {
		return apperrors.New(apperrors.ErrInvalidInput, 0, "search.rateLimit.window must be positive")
	}
	if len(c.Indexer.Fields) == 0 {
		return apperrors.New(apperrors.ErrInvalidInput, 0, "indexer.fields must not be empty")
	}
	if len(c.Ranker.Fields) == 0 {
		return apperrors.New(apperrors.ErrInvalidInput, 0, "ranker.fields must not be empty")
	}
	return nil
}

// applyEnvOverrides reads NOODLE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NOODLE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NOODLE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("NOODLE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("NOODLE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NOODLE_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("NOODLE_CRAWLER_BASE_URL"); v != "" {
		cfg.Crawler.BaseURL = v
	}
	if v := os.Getenv("NOODLE_CRAWLER_MAX_URLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.MaxURLs = n
		}
	}
	if v := os.Getenv("NOODLE_CRAWLER_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.Threads = n
		}
	}
	if v := os.Getenv("NOODLE_INDEXER_OUTPUT_DIR"); v != "" {
		cfg.Indexer.OutputDir = v
		cfg.Ranker.IndexDir = v
	}
	if v := os.Getenv("NOODLE_RANKER_MODEL"); v != "" {
		cfg.Ranker.Model = v
	}
	if v := os.Getenv("NOODLE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NOODLE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
