package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"items-api/internal/config"
	"items-api/pkg/logger"
)

const pageKeyPattern = "items:page:*"

var (
	client *redis.Client
	once   sync.Once
)

// Client returns the global Redis client (initialized on first use). Returns
// nil when Redis is unreachable; callers treat that as a permanent miss.
func Client(ctx context.Context) *redis.Client {
	once.Do(func() {
		cfg := config.Get()
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error(ctx, "Invalid REDIS_URL", "error", err, "url", cfg.RedisURL)
			return
		}
		opts.PoolSize = cfg.RedisPoolSize
		c := redis.NewClient(opts)
		if err := c.Ping(ctx).Err(); err != nil {
			logger.Error(ctx, "Redis ping failed", "error", err)
			return
		}
		client = c
		logger.Info(ctx, "Redis client initialized", "pool_size", cfg.RedisPoolSize)
	})
	return client
}

// PageKey returns the cache key for one page of the admin item listing.
func PageKey(offset, limit int) string {
	return fmt.Sprintf("items:page:%d:%d", offset, limit)
}

// GetRawPage reads a cached listing page as raw JSON bytes. Returns
// (nil, false) on miss or error.
func GetRawPage(ctx context.Context, offset, limit int) ([]byte, bool) {
	c := Client(ctx)
	if c == nil {
		return nil, false
	}
	b, err := c.Get(ctx, PageKey(offset, limit)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Debug(ctx, "Redis get page failed", "error", err)
		return nil, false
	}
	return b, true
}

// SetRawPageAsync writes a listing page to Redis with the configured TTL.
// Runs detached from the request context.
func SetRawPageAsync(offset, limit int, b []byte) {
	ctx := context.Background()
	c := Client(ctx)
	if c == nil {
		return
	}
	ttl := time.Duration(config.Get().CacheTTL) * time.Second
	if err := c.Set(ctx, PageKey(offset, limit), b, ttl).Err(); err != nil {
		logger.Debug(ctx, "Redis set page failed", "error", err)
	}
}

// InvalidatePages deletes every cached listing page so the next read goes to
// the database.
func InvalidatePages(ctx context.Context) {
	c := Client(ctx)
	if c == nil {
		return
	}
	iter := c.Scan(ctx, 0, pageKeyPattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Debug(ctx, "Redis scan pages failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.Del(ctx, keys...).Err(); err != nil {
		logger.Debug(ctx, "Redis invalidate pages failed", "error", err)
	}
}
