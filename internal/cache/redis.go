package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contest-radar/contest-engine/internal/models"
)

const keyPrefix = "contests:upcoming:"

// ContestCache is a read-through Redis cache for the upcoming-contest
// listing. It is an optimization only; callers fall back to the store when
// the cache misses or Redis is down.
type ContestCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewContestCache connects to Redis and returns a cache handle
func NewContestCache(address, password string, db int, ttl time.Duration) (*ContestCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &ContestCache{client: client, ttl: ttl}, nil
}

func cacheKey(platform models.Platform) string {
	if platform == "" {
		return keyPrefix + "all"
	}
	return keyPrefix + string(platform)
}

// GetUpcoming returns the cached upcoming listing for a platform, with a hit
// flag. Cache errors are logged and treated as misses.
func (c *ContestCache) GetUpcoming(ctx context.Context, platform models.Platform) ([]*models.Contest, bool) {
	data, err := c.client.Get(ctx, cacheKey(platform)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("contest cache read failed", "error", err)
		}
		return nil, false
	}

	var contests []*models.Contest
	if err := json.Unmarshal(data, &contests); err != nil {
		slog.Warn("contest cache entry corrupt, dropping", "error", err)
		c.client.Del(ctx, cacheKey(platform))
		return nil, false
	}

	return contests, true
}

// SetUpcoming stores the upcoming listing for a platform
func (c *ContestCache) SetUpcoming(ctx context.Context, platform models.Platform, contests []*models.Contest) {
	data, err := json.Marshal(contests)
	if err != nil {
		slog.Warn("failed to marshal contests for cache", "error", err)
		return
	}

	if err := c.client.Set(ctx, cacheKey(platform), data, c.ttl).Err(); err != nil {
		slog.Warn("contest cache write failed", "error", err)
	}
}

// Invalidate drops every cached listing; called after each sync so readers
// never see pre-sync data for a full TTL
func (c *ContestCache) Invalidate(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("contest cache invalidation failed", "error", err)
			return
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("failed to delete cache keys", "error", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// HealthCheck verifies Redis connectivity
func (c *ContestCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *ContestCache) Close() error {
	return c.client.Close()
}
