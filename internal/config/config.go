// Package config builds the service configuration from the environment.
// The resulting value is passed explicitly into every constructor; nothing
// in the repository reads configuration from ambient globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the service understands.
type Config struct {
	HTTPAddr string

	// AuthSecret is the HMAC key used to sign tokens. Required.
	AuthSecret string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// PostgresDSN selects the Postgres-backed stores when set; otherwise the
	// in-memory stores are used (dev mode).
	PostgresDSN string

	// RedisAddr selects the Redis revocation backend when set. Postgres and
	// memory backends remain available without it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JanitorInterval time.Duration

	RateLimitPerSecond int
	RateLimitBurst     int
}

// FromEnv reads TOKENGATE_* variables and applies defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:           envOr("TOKENGATE_HTTP_ADDR", ":8080"),
		AuthSecret:         os.Getenv("TOKENGATE_AUTH_SECRET"),
		Issuer:             envOr("TOKENGATE_ISSUER", "tokengate"),
		PostgresDSN:        os.Getenv("TOKENGATE_PG_DSN"),
		RedisAddr:          os.Getenv("TOKENGATE_REDIS_ADDR"),
		RedisPassword:      os.Getenv("TOKENGATE_REDIS_PASSWORD"),
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         14 * 24 * time.Hour,
		JanitorInterval:    time.Hour,
		RateLimitPerSecond: 20,
		RateLimitBurst:     40,
	}

	var err error
	if cfg.AccessTTL, err = envDuration("TOKENGATE_ACCESS_TTL", cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = envDuration("TOKENGATE_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.JanitorInterval, err = envDuration("TOKENGATE_JANITOR_INTERVAL", cfg.JanitorInterval); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = envInt("TOKENGATE_REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerSecond, err = envInt("TOKENGATE_RATE_LIMIT_PER_SECOND", cfg.RateLimitPerSecond); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = envInt("TOKENGATE_RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
