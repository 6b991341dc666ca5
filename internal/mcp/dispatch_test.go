package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/saptiva-copilot/gateway/internal/cache"
	"github.com/saptiva-copilot/gateway/internal/ratelimit"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// echoTool is a minimal scope-free tool used to exercise the dispatch
// pipeline without a real tool implementation.
type echoTool struct {
	spec models.ToolSpec
}

func (t echoTool) Spec() models.ToolSpec    { return t.spec }
func (t echoTool) Limits() models.ToolLimits { return models.ToolLimits{TimeoutMs: 1000, MaxPayloadKB: 64} }
func (t echoTool) Invoke(ctx context.Context, payload json.RawMessage, ictx models.InvokeContext) (json.RawMessage, error) {
	return json.RawMessage(`{"echo":true}`), nil
}

func newTestRegistry(t *testing.T, name string, schema json.RawMessage) *LazyRegistry {
	t.Helper()
	r := NewLazyRegistry(nil)
	r.RegisterFactory(DiscoveryMeta{Name: name, Category: "test"}, func() (models.Tool, error) {
		return echoTool{spec: models.ToolSpec{Name: name, Version: "1.0.0", InputSchema: schema}}, nil
	})
	return r
}

// memResultCache is an in-memory ResultCache fake for testing.
type memResultCache struct {
	mu    sync.Mutex
	items map[string]json.RawMessage
	sets  int
}

func newMemResultCache() *memResultCache {
	return &memResultCache{items: map[string]json.RawMessage{}}
}

func (c *memResultCache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok, nil
}

func (c *memResultCache) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	c.sets++
	return nil
}

func newTestDispatcher(t *testing.T, name string, schema json.RawMessage, rc ResultCache) *Dispatcher {
	t.Helper()
	registry := newTestRegistry(t, name, schema)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), nil)
	cfg := ratelimit.Config{CallsPerMinute: 60, CallsPerHour: 1000}
	dedupe := cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: time.Minute, MaxSize: 1000})
	return NewDispatcher(registry, limiter, cfg, rc, dedupe, nil, nil)
}

func TestDispatcherRejectsOversizedPayload(t *testing.T) {
	d := newTestDispatcher(t, "audit_file", nil, nil)
	big := make([]byte, MaxPayloadSizeKB*1024+100)
	payload, _ := json.Marshal(map[string]string{"data": string(big)})
	req := models.InvokeRequest{Tool: "audit_file", Payload: payload}
	resp := d.Invoke(context.Background(), req, models.InvokeContext{UserID: "u1"}, map[string]struct{}{ScopeToolsAudit: {}})
	if resp.Success {
		t.Fatalf("expected oversized payload to fail")
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %+v", resp.Error)
	}
}

func TestDispatcherDeniesMissingScope(t *testing.T) {
	d := newTestDispatcher(t, "audit_file", nil, nil)
	payload, _ := json.Marshal(map[string]string{"doc_id": "abc"})
	req := models.InvokeRequest{Tool: "audit_file", Payload: payload}
	resp := d.Invoke(context.Background(), req, models.InvokeContext{UserID: "u1"}, map[string]struct{}{})
	if resp.Success {
		t.Fatalf("expected missing-scope request to fail")
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodePermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED, got %+v", resp.Error)
	}
}

func TestDispatcherEnforcesSchemaValidation(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["doc_id"],"properties":{"doc_id":{"type":"string"}}}`)
	d := newTestDispatcher(t, "generic_tool", schema, nil)
	payload, _ := json.Marshal(map[string]string{"wrong_field": "abc"})
	req := models.InvokeRequest{Tool: "generic_tool", Payload: payload}
	resp := d.Invoke(context.Background(), req, models.InvokeContext{UserID: "u1"}, map[string]struct{}{})
	if resp.Success {
		t.Fatalf("expected schema-invalid payload to fail")
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %+v", resp.Error)
	}
}

func TestDispatcherUnknownToolReportsAvailableVersions(t *testing.T) {
	registry := NewLazyRegistry(nil)
	registry.RegisterFactory(DiscoveryMeta{Name: "tool_x"}, func() (models.Tool, error) {
		return echoTool{spec: models.ToolSpec{Name: "tool_x", Version: "1.0.0"}}, nil
	})
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), nil)
	dedupe := cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: time.Minute, MaxSize: 1000})
	d := NewDispatcher(registry, limiter, ratelimit.Config{CallsPerMinute: 60, CallsPerHour: 1000}, nil, dedupe, nil, nil)

	payload, _ := json.Marshal(map[string]string{})
	req := models.InvokeRequest{Tool: "tool_x", Version: "2.0.0", Payload: payload}
	resp := d.Invoke(context.Background(), req, models.InvokeContext{UserID: "u1"}, map[string]struct{}{})
	if resp.Success {
		t.Fatalf("expected an unresolvable version constraint to fail")
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeToolNotFound {
		t.Fatalf("expected TOOL_NOT_FOUND, got %+v", resp.Error)
	}
}

func TestDispatcherRateLimitsRepeatedCalls(t *testing.T) {
	registry := newTestRegistry(t, "audit_file", nil)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), nil)
	dedupe := cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: time.Minute, MaxSize: 1000})
	cfg := ratelimit.Config{CallsPerMinute: 1, CallsPerHour: 100}
	d := NewDispatcher(registry, limiter, cfg, nil, dedupe, nil, nil)

	payload, _ := json.Marshal(map[string]string{"doc_id": "abc"})
	req := models.InvokeRequest{Tool: "audit_file", Payload: payload}
	ictx := models.InvokeContext{UserID: "u1"}
	scopes := map[string]struct{}{ScopeToolsAudit: {}}

	first := d.Invoke(context.Background(), req, ictx, scopes)
	if !first.Success {
		t.Fatalf("expected first call to be admitted, got %+v", first.Error)
	}
	second := d.Invoke(context.Background(), req, ictx, scopes)
	if second.Success {
		t.Fatalf("expected second call within the same minute window to be rate limited")
	}
	if second.Error == nil || second.Error.Code != models.ErrCodeRateLimit {
		t.Fatalf("expected RATE_LIMIT, got %+v", second.Error)
	}
	if second.Error.RetryAfterMs <= 0 {
		t.Fatalf("expected a positive retry_after_ms, got %d", second.Error.RetryAfterMs)
	}
}

func TestDispatcherCachesSuccessfulInvocations(t *testing.T) {
	rc := newMemResultCache()
	d := newTestDispatcher(t, "audit_file", nil, rc)
	payload, _ := json.Marshal(map[string]string{"doc_id": "doc-1"})
	req := models.InvokeRequest{Tool: "audit_file", Payload: payload, Context: map[string]any{"doc_id": "doc-1"}}
	ictx := models.InvokeContext{UserID: "u1"}
	scopes := map[string]struct{}{ScopeToolsAudit: {}}

	first := d.Invoke(context.Background(), req, ictx, scopes)
	if !first.Success || first.Cached {
		t.Fatalf("expected an uncached success on first call, got %+v", first)
	}
	if rc.sets != 1 {
		t.Fatalf("expected exactly one cache write, got %d", rc.sets)
	}

	second := d.Invoke(context.Background(), req, ictx, scopes)
	if !second.Success || !second.Cached {
		t.Fatalf("expected a cache hit on the second identical call, got %+v", second)
	}
}

func TestResultCacheKeyStableForIdenticalPayloadRegardlessOfFieldOrder(t *testing.T) {
	p1, _ := json.Marshal(map[string]any{"a": 1, "b": 2})
	p2, _ := json.Marshal(map[string]any{"b": 2, "a": 1})
	k1 := resultCacheKey("audit_file", "doc-1", p1, "")
	k2 := resultCacheKey("audit_file", "doc-1", p2, "")
	if k1 != k2 {
		t.Fatalf("expected key order-independence, got %s vs %s", k1, k2)
	}
}

func TestResultCacheKeyDiffersWithIdempotencyKey(t *testing.T) {
	p, _ := json.Marshal(map[string]any{"a": 1})
	k1 := resultCacheKey("audit_file", "doc-1", p, "")
	k2 := resultCacheKey("audit_file", "doc-1", p, "retry-1")
	if k1 == k2 {
		t.Fatalf("expected distinct keys when an idempotency_key salts the hash")
	}
}
