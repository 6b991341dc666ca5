package mcp

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/saptiva-copilot/gateway/internal/cache"
	"github.com/saptiva-copilot/gateway/internal/observability"
	"github.com/saptiva-copilot/gateway/internal/pii"
	"github.com/saptiva-copilot/gateway/internal/ratelimit"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// ResultCache is the shared key/value result cache for tool invocations.
type ResultCache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
}

// toolCacheTTL is the per-tool result-cache TTL; unknown tools use the
// default.
var toolCacheTTL = map[string]time.Duration{
	"audit_file":     3600 * time.Second,
	"excel_analyzer": 1800 * time.Second,
	"research":       86400 * time.Second,
	"extract":        3600 * time.Second,
	"bank_analytics": 300 * time.Second,
}

const defaultCacheTTL = 3600 * time.Second

// Dispatcher runs the invocation pipeline: payload validation, scope
// authorization, rate limiting, version resolution, timeout-bounded
// execution, and response normalization.
type Dispatcher struct {
	registry    *LazyRegistry
	limiter     *ratelimit.Limiter
	defaultRate ratelimit.Config
	resultCache ResultCache
	dedupe      *cache.DedupeCache
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewDispatcher wires the invocation pipeline's dependencies.
func NewDispatcher(registry *LazyRegistry, limiter *ratelimit.Limiter, defaultRate ratelimit.Config, resultCache ResultCache, dedupe *cache.DedupeCache, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:    registry,
		limiter:     limiter,
		defaultRate: defaultRate,
		resultCache: resultCache,
		dedupe:      dedupe,
		metrics:     metrics,
		logger:      logger,
	}
}

// Invoke runs req through the full gated pipeline and returns a normalized
// response; pipeline failures are returned inside the response, never as a
// Go error, so callers never need to translate exceptions into HTTP status.
func (d *Dispatcher) Invoke(ctx context.Context, req models.InvokeRequest, ictx models.InvokeContext, userScopes map[string]struct{}) models.InvokeResponse {
	invocationID := uuid.NewString()
	started := time.Now()

	fail := func(code, message string, retryable bool, retryAfterMs int64, details map[string]any) models.InvokeResponse {
		d.recordMetrics(req.Tool, "", "error", code, ictx, started)
		return models.InvokeResponse{
			Success:      false,
			Tool:         req.Tool,
			InvocationID: invocationID,
			DurationMs:   durationMs(started),
			Error: &models.ToolError{
				Code:         code,
				Message:      pii.Scrub(message, false),
				Retryable:    retryable,
				RetryAfterMs: retryAfterMs,
				Details:      details,
			},
		}
	}

	if err := ValidatePayloadSize(req.Payload, 0); err != nil {
		return fail(models.ErrCodeValidation, err.Error(), false, 0, nil)
	}
	if err := ValidatePayloadStructure(req.Payload); err != nil {
		return fail(models.ErrCodeValidation, err.Error(), false, 0, nil)
	}

	if err := ValidateToolAccess(userScopes, req.Tool); err != nil {
		return fail(models.ErrCodePermissionDenied, err.Error(), false, 0, nil)
	}

	rateKey := ictx.UserID + ":" + req.Tool
	rateResult, err := d.limiter.Check(ctx, rateKey, d.defaultRate)
	if err != nil {
		return fail(models.ErrCodeInternal, err.Error(), false, 0, nil)
	}
	if !rateResult.Allowed {
		return fail(models.ErrCodeRateLimit, "rate limit exceeded", true, rateResult.RetryAfterMs, nil)
	}

	tool, err := d.registry.Resolve(req.Tool, req.Version)
	if err != nil {
		var notFound *ErrToolNotFound
		available := []string{}
		if errors.As(err, &notFound) {
			available = notFound.AvailableVersions
		}
		return fail(models.ErrCodeToolNotFound, err.Error(), false, 0, map[string]any{"available_versions": available})
	}
	spec := tool.Spec()

	if err := ValidateAgainstSchema(spec.InputSchema, req.Payload); err != nil {
		return fail(models.ErrCodeInvalidInput, err.Error(), false, 0, nil)
	}

	docID, _ := req.Context["doc_id"].(string)
	cacheKey := resultCacheKey(spec.Name, docID, req.Payload, req.IdempotencyKey)
	if d.resultCache != nil {
		if cached, found, err := d.resultCache.Get(ctx, cacheKey); err == nil && found {
			if d.metrics != nil {
				d.metrics.MCPCacheOps.WithLabelValues(spec.Name, "hit").Inc()
			}
			return models.InvokeResponse{
				Success: true, Tool: spec.Name, Version: spec.Version,
				Result: cached, InvocationID: invocationID, DurationMs: durationMs(started), Cached: true,
			}
		}
		if d.metrics != nil {
			d.metrics.MCPCacheOps.WithLabelValues(spec.Name, "miss").Inc()
		}
	}

	if req.IdempotencyKey != "" && d.dedupe != nil && d.dedupe.Check(req.Tool+":"+req.IdempotencyKey) {
		return fail(models.ErrCodeValidation, "duplicate request for idempotency_key", false, 0, nil)
	}

	payload := injectUserID(req.Payload, ictx.UserID)

	limits := tool.Limits()
	timeout := time.Duration(limits.TimeoutMs) * time.Millisecond
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, execErr := tool.Invoke(execCtx, payload, ictx)
	if execErr != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			d.logger.Warn("tool timed out", "tool", spec.Name, "timeout_ms", limits.TimeoutMs)
			return fail(models.ErrCodeTimeout, fmt.Sprintf("%s timed out after %dms", spec.Name, limits.TimeoutMs), true, 0, nil)
		}
		var toolErr *ToolExecutionError
		if errors.As(execErr, &toolErr) {
			return fail(toolErr.Code, toolErr.Message, toolErr.Retryable, 0, toolErr.Details)
		}
		return fail(models.ErrCodeExecutionError, "tool failed unexpectedly", false, 0, map[string]any{"exc_type": fmt.Sprintf("%T", execErr)})
	}

	if d.resultCache != nil {
		ttl := toolCacheTTL[spec.Name]
		if ttl == 0 {
			ttl = defaultCacheTTL
		}
		_ = d.resultCache.Set(ctx, cacheKey, result, ttl)
	}

	d.recordMetrics(spec.Name, spec.Version, "ok", "success", ictx, started)
	return models.InvokeResponse{
		Success:      true,
		Tool:         spec.Name,
		Version:      spec.Version,
		Result:       result,
		InvocationID: invocationID,
		DurationMs:   durationMs(started),
		Metadata:     map[string]any{"capabilities": spec.Capabilities},
	}
}

func (d *Dispatcher) recordMetrics(tool, version, status, outcome string, ictx models.InvokeContext, started time.Time) {
	if d.metrics == nil {
		return
	}
	userType := "authenticated"
	if ictx.Source == "admin" {
		userType = "admin"
	}
	d.metrics.MCPInvocations.WithLabelValues(tool, version, status, outcome, userType).Inc()
	d.metrics.MCPInvocationDuration.WithLabelValues(tool, version).Observe(time.Since(started).Seconds())
}

// ToolExecutionError is returned by Tool implementations to carry a
// specific error code/retryability/details through the pipeline instead of
// collapsing to a generic EXECUTION_ERROR.
type ToolExecutionError struct {
	Code      string
	Message   string
	Retryable bool
	Details   map[string]any
}

func (e *ToolExecutionError) Error() string { return e.Message }

// injectUserID adds "user_id" to payload if absent, matching the reference
// implementation's reflection-based parameter injection for tools that
// declare a user_id field.
func injectUserID(payload json.RawMessage, userID string) json.RawMessage {
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return payload
	}
	if _, exists := decoded["user_id"]; exists {
		return payload
	}
	decoded["user_id"] = userID
	out, err := json.Marshal(decoded)
	if err != nil {
		return payload
	}
	return out
}

// resultCacheKey builds "mcp:tool:<tool>:<doc_id>:<8-char-hex MD5 of
// sorted-JSON params>". idempotencyKey, when present, salts the hash so
// retried requests with an explicit key never collide with unrelated calls
// that happen to share the same payload.
func resultCacheKey(tool, docID string, payload json.RawMessage, idempotencyKey string) string {
	var decoded map[string]any
	_ = json.Unmarshal(payload, &decoded)
	sortedKeys := make([]string, 0, len(decoded))
	for k := range decoded {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)
	ordered := make(map[string]any, len(decoded))
	for _, k := range sortedKeys {
		ordered[k] = decoded[k]
	}
	normalized, _ := json.Marshal(ordered)
	sum := md5.Sum(append(normalized, []byte(idempotencyKey)...))
	hash := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("mcp:tool:%s:%s:%s", tool, docID, hash)
}

func durationMs(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000.0
}
