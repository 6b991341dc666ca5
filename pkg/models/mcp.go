package models

import (
	"context"
	"encoding/json"
	"time"
)

// ToolLimits bounds a single tool's execution envelope.
type ToolLimits struct {
	TimeoutMs      int `json:"timeout_ms"`
	MaxPayloadKB   int `json:"max_payload_kb"`
	MaxAttachmentMB int `json:"max_attachment_mb"`
}

// DefaultToolLimits mirrors the reference tool defaults.
func DefaultToolLimits() ToolLimits {
	return ToolLimits{TimeoutMs: 60000, MaxPayloadKB: 64, MaxAttachmentMB: 25}
}

// ToolSpec is the publicly discoverable metadata of a tool.
type ToolSpec struct {
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	DisplayName   string          `json:"display_name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Capabilities  []string        `json:"capabilities,omitempty"`
	InputSchema   json.RawMessage `json:"input_schema"`
	OutputSchema  json.RawMessage `json:"output_schema,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Owner         string          `json:"owner,omitempty"`
	RateLimit     *RateLimitConfig `json:"rate_limit,omitempty"`
	TimeoutMs     int             `json:"timeout_ms"`
	MaxPayloadKB  int             `json:"max_payload_kb"`
	RequiresAuth  bool            `json:"requires_auth"`
}

// RateLimitConfig is a per-tool override of the default sliding-window limits.
type RateLimitConfig struct {
	CallsPerMinute int `json:"calls_per_minute" yaml:"calls_per_minute"`
	CallsPerHour   int `json:"calls_per_hour" yaml:"calls_per_hour"`
	BurstSize      int `json:"burst_size" yaml:"burst_size"`
}

// InvokeContext accompanies a tool invocation. UserID is a first-class field
// so tools never need reflection-based parameter injection.
type InvokeContext struct {
	RequestID string
	UserID    string
	SessionID string
	TraceID   string
	Source    string
	Metadata  map[string]any
}

// Tool is the common trait every dispatchable tool implements.
type Tool interface {
	Spec() ToolSpec
	Limits() ToolLimits
	Invoke(ctx context.Context, payload json.RawMessage, ictx InvokeContext) (json.RawMessage, error)
}

// InvokeRequest is the body of POST /api/mcp/invoke.
type InvokeRequest struct {
	Tool           string          `json:"tool"`
	Version        string          `json:"version,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Context        map[string]any  `json:"context,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// InvokeResponse is the normalized envelope returned for every invocation;
// pipeline failures are packaged here rather than surfaced as HTTP errors.
type InvokeResponse struct {
	Success      bool            `json:"success"`
	Tool         string          `json:"tool"`
	Version      string          `json:"version,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        *ToolError      `json:"error,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	InvocationID string          `json:"invocation_id"`
	DurationMs   float64         `json:"duration_ms"`
	Cached       bool            `json:"cached"`
}

// ToolError is the structured error attached to a failed InvokeResponse.
type ToolError struct {
	Code         string         `json:"code"`
	Message      string         `json:"message"`
	Retryable    bool           `json:"retryable"`
	RetryAfterMs int64          `json:"retry_after_ms,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// Error codes from the taxonomy.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeMissingField   = "MISSING_FIELD"
	ErrCodeInvalidFormat  = "INVALID_FORMAT"
	ErrCodeInvalidCreds   = "INVALID_CREDENTIALS"
	ErrCodeAccountInactive = "ACCOUNT_INACTIVE"
	ErrCodeInvalidToken   = "INVALID_TOKEN"
	ErrCodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeToolNotFound   = "TOOL_NOT_FOUND"
	ErrCodeUserNotFound   = "USER_NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeUsernameExists = "USERNAME_EXISTS"
	ErrCodeDuplicateEmail = "DUPLICATE_EMAIL"
	ErrCodeRateLimit      = "RATE_LIMIT"
	ErrCodeExecutionError = "EXECUTION_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeGone           = "GONE"
)

// TaskStatus is the lifecycle state of a long-running invocation.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether s is one of the lifecycle's terminal states.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// TaskPriority orders background execution hints.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityNormal TaskPriority = "normal"
	TaskPriorityHigh   TaskPriority = "high"
)

// Task is a long-running tool invocation tracked by the task manager. Only
// the background executor mutates the lifecycle fields of a given task
// (single-writer invariant); handlers reading a Task must treat it as a
// snapshot.
type Task struct {
	TaskID                 string         `json:"task_id"`
	Tool                   string         `json:"tool"`
	Payload                json.RawMessage `json:"payload"`
	Status                 TaskStatus     `json:"status"`
	Priority               TaskPriority   `json:"priority"`
	UserID                 string         `json:"user_id"`
	SessionID              string         `json:"session_id,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	StartedAt              *time.Time     `json:"started_at,omitempty"`
	CompletedAt            *time.Time     `json:"completed_at,omitempty"`
	Progress               float64        `json:"progress"`
	ProgressMessage        string         `json:"progress_message,omitempty"`
	Result                 json.RawMessage `json:"result,omitempty"`
	Error                  *ToolError     `json:"error,omitempty"`
	CancellationRequested  bool           `json:"cancellation_requested"`
}
