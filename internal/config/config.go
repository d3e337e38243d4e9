package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Session backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all configuration for the PredictX client.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Backend API
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8000/api/v1"`

	// Transport
	HTTPTimeout           time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	HTTPMaxRetries        int           `env:"HTTP_MAX_RETRIES" envDefault:"2"`
	RateLimitRPS          float64       `env:"HTTP_RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst        int           `env:"HTTP_RATE_LIMIT_BURST" envDefault:"1"`
	CircuitBreakerEnabled bool          `env:"CIRCUIT_BREAKER_ENABLED" envDefault:"true"`

	// Session storage
	SessionBackend   string        `env:"SESSION_BACKEND" envDefault:"file"`
	SessionFile      string        `env:"SESSION_FILE"`
	SessionKeyPrefix string        `env:"SESSION_KEY_PREFIX" envDefault:"predictx:"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"720h"`

	// Redis (SESSION_BACKEND=redis)
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment variables
// win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL))
	} else if u.Scheme == "http" && c.Environment == "production" && !isLoopback(u.Hostname()) {
		errs = append(errs, errors.New("API_BASE_URL must use https in production"))
	}

	switch c.SessionBackend {
	case BackendFile, BackendRedis, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND must be one of file, redis, memory, got %q", c.SessionBackend))
	}

	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}
	if c.HTTPMaxRetries < 0 {
		errs = append(errs, errors.New("HTTP_MAX_RETRIES must not be negative"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("HTTP_RATE_LIMIT_RPS must not be negative"))
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %g", c.OTELSampleRate))
	}

	return errors.Join(errs...)
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}
