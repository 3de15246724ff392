package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	Port     string `env:"PORT" default:"8080"`
	GinMode  string `env:"GIN_MODE" default:"release"`
	DataDir  string `env:"DATA_DIR" default:"./data"`
	LogLevel string `env:"LOG_LEVEL" default:"info"`

	LogFormat  string `env:"LOG_FORMAT" default:"json"`
	SchemaPath string `env:"SCHEMA_PATH"`

	CorpusFile     string        `env:"CORPUS_FILE"`
	CorpusURL      string        `env:"CORPUS_URL"`
	CorpusToken    string        `env:"CORPUS_TOKEN"`
	CorpusCacheTTL time.Duration `env:"CORPUS_CACHE_TTL" default:"10m"`
	CorpusRetry    string        `env:"CORPUS_RETRY_POLICY" default:"standard"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" default:"0"`

	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" default:"60"`
	AllowedOrigins     string        `env:"ALLOWED_ORIGINS" default:"*"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" default:"30s"`

	EnableHSTS        bool `env:"ENABLE_HSTS" default:"false"`
	EnableCompression bool `env:"ENABLE_COMPRESSION" default:"true"`
}

// Load reads an optional .env file, then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Origins splits ALLOWED_ORIGINS on commas
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// AllowAllOrigins reports whether CORS is open to every origin
func (c *Config) AllowAllOrigins() bool {
	for _, o := range c.Origins() {
		if o == "*" {
			return true
		}
	}
	return false
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}
	if cfg.DataDir == "" {
		return errors.New("DATA_DIR is required")
	}

	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test, got %q", cfg.GinMode)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}

	switch cfg.CorpusRetry {
	case "fast", "standard", "slow":
	default:
		return fmt.Errorf("CORPUS_RETRY_POLICY must be fast, standard or slow, got %q", cfg.CorpusRetry)
	}

	if cfg.CorpusURL != "" {
		u, err := url.Parse(cfg.CorpusURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("CORPUS_URL must be an absolute http(s) URL, got %q", cfg.CorpusURL)
		}
	}

	if cfg.CorpusCacheTTL <= 0 {
		return errors.New("CORPUS_CACHE_TTL must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if cfg.RedisDB < 0 {
		return errors.New("REDIS_DB must not be negative")
	}
	if len(cfg.Origins()) == 0 {
		return errors.New("ALLOWED_ORIGINS must list at least one origin")
	}

	return nil
}
