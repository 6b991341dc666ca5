package chatpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/saptiva-copilot/gateway/internal/mcp"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// auditCommandPrefix is the fixed prefix that routes a message to the audit
// tool instead of the LLM, per §4.5's "specialized handlers ... matching a
// fixed prefix" example.
const auditCommandPrefix = "/audit "

// AuditCommandHandler intercepts "/audit <doc_id>" messages and dispatches
// them straight to the audit_file MCP tool, bypassing the LLM entirely. It
// only registers ahead of Standard when a dispatcher is available (the
// chain falls back to Standard otherwise).
type AuditCommandHandler struct {
	dispatcher *mcp.Dispatcher
}

// NewAuditCommandHandler wires the specialized handler's dependency.
func NewAuditCommandHandler(dispatcher *mcp.Dispatcher) *AuditCommandHandler {
	return &AuditCommandHandler{dispatcher: dispatcher}
}

func (h *AuditCommandHandler) Name() string { return "audit_command" }

// CanHandle matches messages beginning with the fixed "/audit " prefix.
func (h *AuditCommandHandler) CanHandle(ctx context.Context, cctx models.ChatContext) bool {
	return strings.HasPrefix(cctx.Message, auditCommandPrefix)
}

// Process invokes the audit_file tool with the document id trailing the
// command prefix and folds the tool result into a ChatProcessingResult.
func (h *AuditCommandHandler) Process(ctx context.Context, cctx models.ChatContext) (models.ChatProcessingResult, error) {
	docID := strings.TrimSpace(strings.TrimPrefix(cctx.Message, auditCommandPrefix))
	payload, _ := json.Marshal(map[string]string{"doc_id": docID})

	resp := h.dispatcher.Invoke(ctx, models.InvokeRequest{
		Tool:    "audit_file",
		Payload: payload,
		Context: map[string]any{"doc_id": docID},
	}, models.InvokeContext{
		RequestID: cctx.RequestID,
		UserID:    cctx.UserID,
		SessionID: cctx.SessionID,
		Source:    "chat",
	}, map[string]struct{}{"mcp:tools.audit": {}})

	if !resp.Success {
		return models.ChatProcessingResult{}, fmt.Errorf("chatpipeline: audit command failed: %s", resp.Error.Message)
	}

	content := fmt.Sprintf("Auditoría completada para el documento %s.", docID)
	return models.ChatProcessingResult{
		Content:          content,
		SanitizedContent: content,
		StrategyUsed:     "audit_command",
		Metadata: models.MessageMetadata{
			ChatID:    cctx.ChatID,
			MessageID: uuid.NewString(),
			ModelUsed: cctx.Model,
			DecisionMetadata: map[string]any{
				models.DecisionKeyToolInvocations: []string{"audit_file"},
				models.DecisionKeyAuditArtifact:   resp.Result,
			},
		},
	}, nil
}
