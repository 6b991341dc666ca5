// Package models holds the plain data types shared across the gateway's
// internal packages: chat context, prompt registry entries, MCP tool and task
// records, retrieval segments, and the persisted session/message/user shapes.
package models

import "time"

// ChatContext is immutable per request. Once SessionID has been resolved,
// callers derive a new value (WithSessionID, WithToolResult, …) rather than
// mutate an existing one.
type ChatContext struct {
	UserID           string         `json:"user_id"`
	RequestID        string         `json:"request_id"`
	Timestamp        time.Time      `json:"timestamp"`
	ChatID           string         `json:"chat_id,omitempty"`
	SessionID        string         `json:"session_id,omitempty"`
	Message          string         `json:"message"`
	PriorContext     []LLMMessage   `json:"prior_context,omitempty"`
	Model            string         `json:"model"`
	Channel          string         `json:"channel,omitempty"`
	ToolsEnabled     map[string]bool `json:"tools_enabled,omitempty"`
	Stream           bool           `json:"stream"`
	DocumentIDs      []string       `json:"document_ids,omitempty"`
	ToolResults      map[string]any `json:"tool_results,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	KillSwitchActive bool           `json:"kill_switch_active"`
}

// LLMMessage is a single entry in the array sent to the upstream LLM.
type LLMMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WithSessionID returns a copy of ctx with SessionID set, leaving ctx
// untouched. Once a session id has been resolved every further derivation of
// the request must go through a functional update like this one.
func (ctx ChatContext) WithSessionID(sessionID string) ChatContext {
	next := ctx
	next.SessionID = sessionID
	return next
}

// WithToolResult returns a copy of ctx with a tool result merged in.
func (ctx ChatContext) WithToolResult(toolName string, result any) ChatContext {
	next := ctx
	merged := make(map[string]any, len(ctx.ToolResults)+1)
	for k, v := range ctx.ToolResults {
		merged[k] = v
	}
	merged[toolName] = result
	next.ToolResults = merged
	return next
}

// MessageMetadata carries the bookkeeping attached to a processed chat turn.
type MessageMetadata struct {
	MessageID          string         `json:"message_id"`
	ChatID             string         `json:"chat_id"`
	UserMessageID      string         `json:"user_message_id,omitempty"`
	AssistantMessageID string         `json:"assistant_message_id,omitempty"`
	ModelUsed          string         `json:"model_used"`
	TokensUsed         *int           `json:"tokens_used,omitempty"`
	LatencyMs          float64        `json:"latency_ms"`
	DecisionMetadata   map[string]any `json:"decision_metadata,omitempty"`
}

// ChatProcessingResult is what a Handler Chain strategy returns.
type ChatProcessingResult struct {
	Content           string          `json:"content"`
	SanitizedContent  string          `json:"sanitized_content"`
	Metadata          MessageMetadata `json:"metadata"`
	ProcessingTimeMs  float64         `json:"processing_time_ms"`
	StrategyUsed      string          `json:"strategy_used"`
	ResearchTriggered bool            `json:"research_triggered"`
	TaskID            string          `json:"task_id,omitempty"`
	SessionTitle      string          `json:"session_title,omitempty"`
	SessionUpdated    bool            `json:"session_updated"`
}

// DecisionMetadataKey constants used as keys in MessageMetadata.DecisionMetadata.
const (
	DecisionKeyToolInvocations = "tool_invocations"
	DecisionKeyAuditArtifact   = "audit_artifact"
)
