package cache

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend selects the view cache implementation.
type Backend string

const (
	BackendLRU   Backend = "lru"
	BackendRedis Backend = "redis"
)

// Config holds configuration for the public view cache.
type Config struct {
	// Enabled controls whether verification lookups are cached at all.
	Enabled bool `yaml:"enabled"`

	Backend Backend `yaml:"backend"`

	// TTL bounds how long a cached view is served.
	TTL time.Duration `yaml:"ttl"`

	// MaxSize is the maximum number of entries held by the LRU backend.
	MaxSize int `yaml:"maxSize"`

	// RedisURL is used by the redis backend, e.g. redis://localhost:6379/0.
	RedisURL string `yaml:"redisUrl"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Backend: BackendLRU,
		TTL:     5 * time.Minute,
		MaxSize: 10000,
	}
}

// ConfigFromEnv returns the defaults overlaid with environment variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overlays environment variables onto cfg. Unset or malformed
// variables leave the current value in place.
//
// Environment variables:
//   - DLRS_CACHE_ENABLED: "true" or "false"
//   - DLRS_CACHE_BACKEND: "lru" or "redis"
//   - DLRS_CACHE_TTL: duration in seconds
//   - DLRS_CACHE_MAX_SIZE: max entries for the lru backend
//   - DLRS_CACHE_REDIS_URL: redis connection URL
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv("DLRS_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("DLRS_CACHE_BACKEND"); v != "" {
		cfg.Backend = Backend(strings.ToLower(strings.TrimSpace(v)))
	}

	if v := os.Getenv("DLRS_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.TTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("DLRS_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	if v := os.Getenv("DLRS_CACHE_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
}

// Validate checks the backend selection.
func (cfg Config) Validate() error {
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Backend {
	case BackendLRU:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("cache backend %q requires a redis url", cfg.Backend)
		}
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	return nil
}
