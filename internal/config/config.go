package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	Store       string `envconfig:"STORE" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/kbvec.db"`

	OpenAIAPIKey        string  `envconfig:"OPENAI_API_KEY"`
	EmbeddingBaseURL    string  `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingRateLimit  float64 `envconfig:"EMBEDDING_RATE_LIMIT" default:"0"`
	EmbeddingReferer    string  `envconfig:"EMBEDDING_REFERER"`
	EmbeddingTitle      string  `envconfig:"EMBEDDING_TITLE"`

	ChunkMaxChars     int           `envconfig:"CHUNK_MAX_CHARS" default:"4500"`
	ChunkOverlapChars int           `envconfig:"CHUNK_OVERLAP_CHARS" default:"680"`
	EmbedBatchSize    int           `envconfig:"EMBED_BATCH_SIZE" default:"100"`
	EmbedTimeout      time.Duration `envconfig:"EMBED_TIMEOUT" default:"60s"`
	SimilarTopK       int           `envconfig:"SIMILAR_TOP_K" default:"15"`
	PairThreshold     float64       `envconfig:"PAIR_THRESHOLD" default:"0.70"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"10s"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"kbvec-reports"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("KB", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("KB_DATABASE_URL is required when KB_STORE=postgres"))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("KB_SQLITE_PATH is required when KB_STORE=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("KB_STORE must be %q or %q, got %q", StorePostgres, StoreSQLite, c.Store))
	}

	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("KB_EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.EmbeddingRateLimit < 0 {
		errs = append(errs, errors.New("KB_EMBEDDING_RATE_LIMIT must not be negative"))
	}
	if c.ChunkMaxChars <= 0 {
		errs = append(errs, errors.New("KB_CHUNK_MAX_CHARS must be positive"))
	}
	if c.ChunkOverlapChars < 0 || c.ChunkOverlapChars >= c.ChunkMaxChars {
		errs = append(errs, errors.New("KB_CHUNK_OVERLAP_CHARS must be in [0, KB_CHUNK_MAX_CHARS)"))
	}
	if c.EmbedBatchSize <= 0 {
		errs = append(errs, errors.New("KB_EMBED_BATCH_SIZE must be positive"))
	}
	if c.EmbedTimeout <= 0 {
		errs = append(errs, errors.New("KB_EMBED_TIMEOUT must be positive"))
	}
	if c.SimilarTopK <= 0 {
		errs = append(errs, errors.New("KB_SIMILAR_TOP_K must be positive"))
	}
	if c.PairThreshold < -1 || c.PairThreshold > 1 {
		errs = append(errs, errors.New("KB_PAIR_THRESHOLD must be in [-1, 1]"))
	}
	if c.WorkerPollInterval <= 0 {
		errs = append(errs, errors.New("KB_WORKER_POLL_INTERVAL must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) UsesSQLite() bool {
	return c.Store == StoreSQLite
}
