package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

// ViewCache stores redacted public views keyed by lookup key.
type ViewCache interface {
	Get(ctx context.Context, key string) (*parcel.PublicView, bool)
	Set(ctx context.Context, key string, view parcel.PublicView)
	Close() error
}

// New builds the view cache selected by cfg. It returns nil, nil when
// caching is disabled.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (ViewCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendRedis:
		return NewRedisViewCache(ctx, cfg.RedisURL, cfg.TTL, logger)
	default:
		return NewLRUViewCache(cfg.MaxSize, cfg.TTL, logger), nil
	}
}

// LRUViewCache keeps views in process memory.
type LRUViewCache struct {
	lru    *LRUCache
	logger *slog.Logger
}

// NewLRUViewCache creates an in-process view cache.
func NewLRUViewCache(maxSize int, ttl time.Duration, logger *slog.Logger) *LRUViewCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &LRUViewCache{lru: NewLRUCache(maxSize, ttl), logger: logger}
}

// Get returns a copy of the cached view for key.
func (c *LRUViewCache) Get(_ context.Context, key string) (*parcel.PublicView, bool) {
	data, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return decodeView(c.logger, key, data)
}

// Set caches view under key.
func (c *LRUViewCache) Set(_ context.Context, key string, view parcel.PublicView) {
	data, err := json.Marshal(view)
	if err != nil {
		c.logger.Warn("failed to encode cached view", "key", key, "error", err)
		return
	}
	c.lru.Set(key, data)
}

// Close releases nothing; it satisfies ViewCache.
func (c *LRUViewCache) Close() error { return nil }

// RedisViewCache shares views between replicas through Redis. Redis errors
// are logged and treated as cache misses.
type RedisViewCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

const redisKeyPrefix = "land-registry:view:"

// NewRedisViewCache connects to the Redis server at url.
func NewRedisViewCache(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*RedisViewCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisViewCacheFromClient(client, ttl, logger), nil
}

// NewRedisViewCacheFromClient wraps an existing client.
func NewRedisViewCacheFromClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisViewCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	return &RedisViewCache{client: client, ttl: ttl, prefix: redisKeyPrefix, logger: logger}
}

// Get returns the cached view for key.
func (c *RedisViewCache) Get(ctx context.Context, key string) (*parcel.PublicView, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("view cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return decodeView(c.logger, key, data)
}

// Set caches view under key with the configured TTL.
func (c *RedisViewCache) Set(ctx context.Context, key string, view parcel.PublicView) {
	data, err := json.Marshal(view)
	if err != nil {
		c.logger.Warn("failed to encode cached view", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("view cache write failed", "key", key, "error", err)
	}
}

// Health checks if the Redis connection is healthy.
func (c *RedisViewCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisViewCache) Close() error {
	return c.client.Close()
}

func decodeView(logger *slog.Logger, key string, data []byte) (*parcel.PublicView, bool) {
	var view parcel.PublicView
	if err := json.Unmarshal(data, &view); err != nil {
		logger.Warn("discarding undecodable cached view", "key", key, "error", err)
		return nil, false
	}
	return &view, true
}
