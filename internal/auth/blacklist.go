package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist marks tokens as revoked until their own expiry, per §4.8 logout
// ("blacklist both provided refresh token and the bearer access token, each
// keyed by the token itself, with TTL = exp claim") and the cache-key layout
// in §6 (`blacklist:<token>`).
type Blacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

// RedisBlacklist stores revoked tokens as Redis keys with a TTL, so entries
// self-expire once the token would have expired anyway.
type RedisBlacklist struct {
	client *redis.Client
}

// NewRedisBlacklist wraps an existing Redis client.
func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func (b *RedisBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return b.client.Set(ctx, "blacklist:"+token, "1", ttl).Err()
}

func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, "blacklist:"+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
