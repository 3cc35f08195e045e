// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverDynamoDB = "dynamodb"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config holds every setting the api and worker binaries read.
type Config struct {
	Port     string
	RunLocal bool
	Env      string

	BackendBaseURL string
	AssetBaseURL   string
	BackendTimeout time.Duration

	StorageDriver    string
	StorageTable     string
	IdempotencyTable string
	RedisURL         string
	SessionTTL       time.Duration
	IdempotencyTTL   time.Duration

	EventsQueueURL      string
	JWTSecret           string
	OrderPayloadVersion int

	RateLimitRPS   float64
	RateLimitBurst int

	CloudWatchNamespace string
	AWSRegion           string
}

// Load reads an optional .env file and then the process environment.
// A missing .env is not an error; malformed values are.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Tests pass a map lookup.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:                get("PORT", "8080"),
		RunLocal:            strings.EqualFold(get("RUN_LOCAL", "false"), "true"),
		Env:                 get("APP_ENV", "development"),
		BackendBaseURL:      strings.TrimRight(get("BACKEND_BASE_URL", "http://localhost:8080/api"), "/"),
		StorageDriver:       strings.ToLower(get("STORAGE_DRIVER", DriverDynamoDB)),
		StorageTable:        get("STORAGE_TABLE", "storefront-sessions"),
		IdempotencyTable:    get("IDEMPOTENCY_TABLE", "storefront-idempotency"),
		RedisURL:            get("REDIS_URL", "redis://localhost:6379/0"),
		EventsQueueURL:      get("EVENTS_QUEUE_URL", ""),
		JWTSecret:           get("JWT_SECRET", ""),
		CloudWatchNamespace: get("CLOUDWATCH_NAMESPACE", "StorefrontCheckout"),
		AWSRegion:           get("AWS_REGION", "us-east-1"),
	}

	asset := get("ASSET_BASE_URL", "")
	if asset == "" {
		asset = originOf(cfg.BackendBaseURL)
	}
	cfg.AssetBaseURL = strings.TrimRight(asset, "/")

	var err error
	if cfg.BackendTimeout, err = parseDuration(get("BACKEND_TIMEOUT", "10s"), "BACKEND_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = parseDuration(get("SESSION_TTL", "168h"), "SESSION_TTL"); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = parseDuration(get("IDEMPOTENCY_TTL", "48h"), "IDEMPOTENCY_TTL"); err != nil {
		return nil, err
	}
	if cfg.OrderPayloadVersion, err = parseInt(get("ORDER_PAYLOAD_VERSION", "2"), "ORDER_PAYLOAD_VERSION"); err != nil {
		return nil, err
	}
	if cfg.OrderPayloadVersion != 1 && cfg.OrderPayloadVersion != 2 {
		return nil, fmt.Errorf("ORDER_PAYLOAD_VERSION must be 1 or 2, got %d", cfg.OrderPayloadVersion)
	}
	if cfg.RateLimitBurst, err = parseInt(get("RATE_LIMIT_BURST", "10"), "RATE_LIMIT_BURST"); err != nil {
		return nil, err
	}
	rps, err := strconv.ParseFloat(get("RATE_LIMIT_RPS", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("parse RATE_LIMIT_RPS: %w", err)
	}
	cfg.RateLimitRPS = rps

	switch cfg.StorageDriver {
	case DriverDynamoDB, DriverRedis, DriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

// IsProduction reports whether APP_ENV selects production logging.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func parseDuration(v, name string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return d, nil
}

func parseInt(v, name string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}

// originOf strips the path from a URL: http://host:8080/api -> http://host:8080
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
