package shared

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"prod"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	HTTPAddr    string `env:"HTTP_ADDR" default:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" default:":9100"`

	StoreDriver string `env:"STORE_DRIVER" default:"mysql"`
	MySQLDSN    string `env:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/vibecheck?parseTime=true&charset=utf8mb4&loc=UTC"`
	SQLitePath  string `env:"SQLITE_PATH" default:"data/vibecheck.db"`

	RedisAddr       string `env:"REDIS_ADDR"`
	RedisPass       string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" default:"0"`
	CacheTTLSeconds int    `env:"CACHE_TTL_SECONDS" default:"900"`

	ModelBaseURL        string `env:"MODEL_BASE_URL" default:"https://api-inference.huggingface.co"`
	ModelName           string `env:"MODEL_NAME" default:"distilbert-base-uncased-finetuned-sst-2-english"`
	ModelKey            string `env:"MODEL_API_KEY"`
	ModelRPS            int    `env:"MODEL_RPS" default:"10"`
	ModelTimeoutSeconds int    `env:"MODEL_TIMEOUT_SECONDS" default:"30"`

	// ModelLoadTimeoutSeconds bounds the one-time model load, which runs
	// independently of the request that triggered it.
	ModelLoadTimeoutSeconds int `env:"MODEL_LOAD_TIMEOUT_SECONDS" default:"300"`
	// ClassifyTimeoutSeconds is the classification budget of one review
	// submission. It stays below the 15s HTTP request timeout.
	ClassifyTimeoutSeconds  int `env:"CLASSIFY_TIMEOUT_SECONDS" default:"8"`

	MinReviewLength  int `env:"MIN_REVIEW_LENGTH" default:"10"`
	MaxKeywords      int `env:"MAX_KEYWORDS" default:"5"`
	ReconcileWorkers int `env:"RECONCILE_WORKERS" default:"8"`
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

func (c Config) ModelLoadTimeout() time.Duration {
	return time.Duration(c.ModelLoadTimeoutSeconds) * time.Second
}

func (c Config) ClassifyTimeout() time.Duration {
	return time.Duration(c.ClassifyTimeoutSeconds) * time.Second
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using process environment")
	}
	return FromEnv()
}

// FromEnv maps the process environment onto Config and validates it.
func FromEnv() (Config, error) {
	var c Config
	if err := env.Load(&c, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	if c.ModelKey == "" {
		log.Warn().Msg("MODEL_API_KEY is empty")
	}
	return c, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.StoreDriver {
	case "mysql":
		if c.MySQLDSN == "" {
			errs = append(errs, errors.New("MYSQL_DSN is required for STORE_DRIVER=mysql"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for STORE_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be mysql or sqlite, got %q", c.StoreDriver))
	}
	if c.CacheTTLSeconds <= 0 {
		errs = append(errs, errors.New("CACHE_TTL_SECONDS must be positive"))
	}
	if c.MinReviewLength < 1 {
		errs = append(errs, errors.New("MIN_REVIEW_LENGTH must be at least 1"))
	}
	if c.MaxKeywords < 1 {
		errs = append(errs, errors.New("MAX_KEYWORDS must be at least 1"))
	}
	if c.ClassifyTimeoutSeconds < 1 || c.ClassifyTimeoutSeconds >= 15 {
		errs = append(errs, errors.New("CLASSIFY_TIMEOUT_SECONDS must be between 1 and 14"))
	}
	if c.ModelLoadTimeoutSeconds < 1 {
		errs = append(errs, errors.New("MODEL_LOAD_TIMEOUT_SECONDS must be positive"))
	}
	if c.ReconcileWorkers < 1 {
		errs = append(errs, errors.New("RECONCILE_WORKERS must be at least 1"))
	}
	return errors.Join(errs...)
}
