package sessions

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const historyCacheKeyPrefix = "sessions:history:"

// RedisHistoryCache implements CacheInvalidator over the shared Redis
// client: a session's message-history read cache (if any caller chooses to
// populate one under the same key prefix) is dropped whenever the session
// is updated or deleted.
type RedisHistoryCache struct {
	client *redis.Client
}

// NewRedisHistoryCache wraps an existing Redis client.
func NewRedisHistoryCache(client *redis.Client) *RedisHistoryCache {
	return &RedisHistoryCache{client: client}
}

// InvalidateHistory deletes the cached history entry for chatID.
func (c *RedisHistoryCache) InvalidateHistory(ctx context.Context, chatID string) error {
	if err := c.client.Del(ctx, historyCacheKeyPrefix+chatID).Err(); err != nil {
		return fmt.Errorf("sessions: invalidate history for %s: %w", chatID, err)
	}
	return nil
}
