package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string   `env:"PORT" envDefault:"8080"`
	Env             string   `env:"ENV" envDefault:"dev"`
	CORSAllowOrigin []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`

	AnalysisAPIURL      string        `env:"ANALYSIS_API_URL" envDefault:"http://localhost:10000"`
	AnalysisDispatch    string        `env:"ANALYSIS_DISPATCH" envDefault:"sequential"`
	AnalysisCallTimeout time.Duration `env:"ANALYSIS_CALL_TIMEOUT" envDefault:"5m"`
	AnalysisMaxRetries  int           `env:"ANALYSIS_MAX_RETRIES" envDefault:"2"`
	MaxUploadMB         int64         `env:"MAX_UPLOAD_MB" envDefault:"200"`
	RateLimitPerMinute  float64       `env:"RATE_LIMIT_PER_MINUTE" envDefault:"6"`

	ResultStore string `env:"RESULT_STORE"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./data/results.db"`

	ObjectStoreType string `env:"OBJECT_STORE" envDefault:"local"`
	LocalStoreDir   string `env:"LOCAL_STORE_DIR" envDefault:"./data/videos"`
	AWSRegion       string `env:"AWS_REGION"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3Prefix        string `env:"S3_PREFIX"`
	MinioEndpoint   string `env:"MINIO_ENDPOINT"`
	MinioAccessKey  string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey  string `env:"MINIO_SECRET_KEY"`
	MinioBucket     string `env:"MINIO_BUCKET"`
	MinioUseSSL     bool   `env:"MINIO_USE_SSL"`

	CommentarySource string `env:"COMMENTARY_SOURCE" envDefault:"remote"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	LLMModel         string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()

	if cfg.Env == "production" && cfg.ResultStore == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required in production")
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Env = normalizeEnv(c.Env)
	c.ObjectStoreType = normalizeStoreType(c.ObjectStoreType)
	c.ResultStore = normalizeResultStore(c.ResultStore, c.DatabaseURL)
	c.AnalysisDispatch = normalizeDispatch(c.AnalysisDispatch)
	c.CommentarySource = normalizeCommentarySource(c.CommentarySource)
	c.AnalysisAPIURL = strings.TrimRight(strings.TrimSpace(c.AnalysisAPIURL), "/")
	c.CORSAllowOrigin = splitAndTrim(c.CORSAllowOrigin)
	if c.AnalysisMaxRetries < 0 {
		c.AnalysisMaxRetries = 0
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 200
	}
}

func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		// godotenv.Load never overrides variables already set in the process.
		if err := godotenv.Load(path); err == nil {
			log.Printf("config: loaded %s", path)
		}
	}
}

func splitAndTrim(raw []string) []string {
	var out []string
	for _, p := range raw {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}

func normalizeResultStore(raw, databaseURL string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return "postgres"
	case "sqlite":
		return "sqlite"
	case "memory":
		return "memory"
	default:
		if strings.TrimSpace(databaseURL) != "" {
			return "postgres"
		}
		return "memory"
	}
}

func normalizeDispatch(raw string) string {
	if strings.ToLower(strings.TrimSpace(raw)) == "concurrent" {
		return "concurrent"
	}
	return "sequential"
}

func normalizeCommentarySource(raw string) string {
	if strings.ToLower(strings.TrimSpace(raw)) == "openai" {
		return "openai"
	}
	return "remote"
}

// IsDevLike reports whether the environment tolerates in-memory fallbacks.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}
