// Package ratelimit implements a two-window (minute + hour) sliding-window
// rate limiter backed by Redis sorted sets, with an in-memory fallback.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the per-key limit: admitted count within each window.
type Config struct {
	CallsPerMinute int
	CallsPerHour   int
}

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed      bool
	RetryAfterMs int64
}

// Store is the sliding-window counting backend.
type Store interface {
	// Count returns how many timestamps are recorded for key at or after since.
	Count(ctx context.Context, key string, since time.Time) (int, error)
	// Oldest returns the earliest recorded timestamp for key.
	Oldest(ctx context.Context, key string) (time.Time, error)
	// Record adds now to key's window and sets the key's expiry to ttl.
	Record(ctx context.Context, key string, now time.Time, ttl time.Duration) error
}

// Limiter enforces per-minute and per-hour sliding windows over a Store.
type Limiter struct {
	store  Store
	logger *slog.Logger
}

// New builds a Limiter over the given Store.
func New(store Store, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, logger: logger}
}

// Check admits a request for key under cfg. key is typically
// "<user_id>:<tool_name>" for MCP invocation, or "user:<id>"/"ip:<addr>" for
// HTTP middleware. Both the minute and hour windows must have capacity.
func (l *Limiter) Check(ctx context.Context, key string, cfg Config) (Result, error) {
	now := time.Now()

	minuteKey := "ratelimit:minute:" + key
	minuteCount, err := l.store.Count(ctx, minuteKey, now.Add(-time.Minute))
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: count minute window: %w", err)
	}
	if minuteCount >= cfg.CallsPerMinute {
		oldest, err := l.store.Oldest(ctx, minuteKey)
		if err != nil {
			return Result{}, fmt.Errorf("ratelimit: oldest minute window: %w", err)
		}
		retryAfter := oldest.Add(time.Minute).Sub(now).Milliseconds()
		l.logger.Warn("rate limit exceeded (minute)", "key", key, "count", minuteCount, "limit", cfg.CallsPerMinute)
		return Result{Allowed: false, RetryAfterMs: retryAfter}, nil
	}

	hourKey := "ratelimit:hour:" + key
	hourCount, err := l.store.Count(ctx, hourKey, now.Add(-time.Hour))
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: count hour window: %w", err)
	}
	if hourCount >= cfg.CallsPerHour {
		oldest, err := l.store.Oldest(ctx, hourKey)
		if err != nil {
			return Result{}, fmt.Errorf("ratelimit: oldest hour window: %w", err)
		}
		retryAfter := oldest.Add(time.Hour).Sub(now).Milliseconds()
		l.logger.Warn("rate limit exceeded (hour)", "key", key, "count", hourCount, "limit", cfg.CallsPerHour)
		return Result{Allowed: false, RetryAfterMs: retryAfter}, nil
	}

	if err := l.store.Record(ctx, minuteKey, now, 2*time.Minute); err != nil {
		return Result{}, fmt.Errorf("ratelimit: record minute window: %w", err)
	}
	if err := l.store.Record(ctx, hourKey, now, 2*time.Hour); err != nil {
		return Result{}, fmt.Errorf("ratelimit: record hour window: %w", err)
	}

	return Result{Allowed: true}, nil
}

// RedisStore implements Store against Redis sorted sets, scored by Unix
// timestamp.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Count(ctx context.Context, key string, since time.Time) (int, error) {
	n, err := s.client.ZCount(ctx, key, fmt.Sprintf("%f", float64(since.UnixNano())/1e9), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RedisStore) Oldest(ctx context.Context, key string) (time.Time, error) {
	results, err := s.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return time.Time{}, err
	}
	if len(results) == 0 {
		return time.Now(), nil
	}
	return time.Unix(0, int64(results[0].Score*1e9)), nil
}

func (s *RedisStore) Record(ctx context.Context, key string, now time.Time, ttl time.Duration) error {
	score := float64(now.UnixNano()) / 1e9
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: fmt.Sprintf("%d", now.UnixNano())}).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, ttl).Err()
}

// MemoryStore is an in-memory fallback Store, for when Redis is unavailable.
// Its state is process-local and does not coordinate across replicas.
type MemoryStore struct {
	mu        sync.Mutex
	timestamps map[string][]time.Time
}

// NewMemoryStore builds an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{timestamps: make(map[string][]time.Time)}
}

func (s *MemoryStore) Count(ctx context.Context, key string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.timestamps[key] {
		if !t.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Oldest(ctx context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.timestamps[key]
	if len(ts) == 0 {
		return time.Now(), nil
	}
	oldest := ts[0]
	for _, t := range ts[1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}
	return oldest, nil
}

func (s *MemoryStore) Record(ctx context.Context, key string, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-ttl)
	kept := s.timestamps[key][:0]
	for _, t := range s.timestamps[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.timestamps[key] = append(kept, now)
	return nil
}
