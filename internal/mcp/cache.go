package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// RedisResultCache implements ResultCache plus the cache-admin surface of
// §4.4.4 over the shared Redis cache, keyed per §6's layout:
// "mcp:tool:<tool>:<doc_id>:<params-hash-8hex>".
type RedisResultCache struct {
	client *redis.Client
}

// NewRedisResultCache wraps an existing Redis client.
func NewRedisResultCache(client *redis.Client) *RedisResultCache {
	return &RedisResultCache{client: client}
}

func (c *RedisResultCache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("mcp: cache get %s: %w", key, err)
	}
	return json.RawMessage(raw), true, nil
}

func (c *RedisResultCache) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return c.client.Set(ctx, key, string(value), ttl).Err()
}

// InvalidateToolCache deletes every cache entry for (tool, docID) regardless
// of the params hash suffix, matching DELETE /api/mcp/cache/tool/{tool}/{doc}.
func (c *RedisResultCache) InvalidateToolCache(ctx context.Context, tool, docID string) (int, error) {
	return c.deleteByPattern(ctx, fmt.Sprintf("mcp:tool:%s:%s:*", tool, docID))
}

// InvalidateDocumentToolCache scans keys matching "mcp:tool:*:<doc_id>:*",
// optionally filtered to a single tool, and deletes every match.
func (c *RedisResultCache) InvalidateDocumentToolCache(ctx context.Context, docID, tool string) (int, error) {
	toolGlob := "*"
	if tool != "" {
		toolGlob = tool
	}
	pattern := fmt.Sprintf("mcp:tool:%s:%s:*", toolGlob, docID)
	return c.deleteByPattern(ctx, pattern)
}

// InvalidateAllToolCaches wipes every cached tool result, optionally
// filtered to a single tool. The HTTP surface must gate this behind an
// explicit confirm flag (§4.4.4); this method itself performs no gating.
func (c *RedisResultCache) InvalidateAllToolCaches(ctx context.Context, tool string) (int, error) {
	toolGlob := "*"
	if tool != "" {
		toolGlob = tool
	}
	pattern := fmt.Sprintf("mcp:tool:%s:*:*", toolGlob)
	return c.deleteByPattern(ctx, pattern)
}

func (c *RedisResultCache) deleteByPattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return deleted, fmt.Errorf("mcp: scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("mcp: delete matched keys: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// CacheStats reports cached-entry counts by tool and by document, per
// GetCacheStats.
type CacheStats struct {
	TotalEntries int            `json:"total_entries"`
	ByTool       map[string]int `json:"by_tool"`
	ByDocument   map[string]int `json:"by_document,omitempty"`
}

// GetCacheStats counts cache entries by tool, and by document when docID is
// empty (a scan across the whole "mcp:tool:*" namespace) or scoped to a
// single document when docID is non-empty.
func (c *RedisResultCache) GetCacheStats(ctx context.Context, docID string) (CacheStats, error) {
	pattern := "mcp:tool:*:*:*"
	if docID != "" {
		pattern = fmt.Sprintf("mcp:tool:*:%s:*", docID)
	}

	stats := CacheStats{ByTool: map[string]int{}, ByDocument: map[string]int{}}
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return stats, fmt.Errorf("mcp: scan %s: %w", pattern, err)
		}
		for _, key := range keys {
			parts := strings.Split(key, ":")
			if len(parts) != 5 {
				continue
			}
			tool, doc := parts[2], parts[3]
			stats.ByTool[tool]++
			stats.ByDocument[doc]++
			stats.TotalEntries++
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if docID != "" {
		stats.ByDocument = nil
	}
	return stats, nil
}

// WarmupToolCache invokes tool once per document (with default/empty
// params) through dispatcher, populating the result cache ahead of demand.
// Per-document failures are tolerated and reported, not aborted on.
func WarmupToolCache(ctx context.Context, dispatcher *Dispatcher, tool string, docIDs []string, userID string, scopes map[string]struct{}) map[string]string {
	failures := map[string]string{}
	for _, docID := range docIDs {
		payload, _ := json.Marshal(map[string]string{"doc_id": docID})
		req := models.InvokeRequest{Tool: tool, Payload: payload, Context: map[string]any{"doc_id": docID}}
		ictx := models.InvokeContext{RequestID: uuid.NewString(), UserID: userID, Source: "warmup"}
		resp := dispatcher.Invoke(ctx, req, ictx, scopes)
		if !resp.Success {
			msg := "unknown error"
			if resp.Error != nil {
				msg = resp.Error.Message
			}
			failures[docID] = msg
		}
	}
	return failures
}
