// Package chatresponse implements the Response Builder (§4.6): a fluent
// accumulator that assembles the wire response for a chat turn and always
// stamps the no-store cache headers the spec requires on every API
// response. Grounded on the teacher's handler-chain result shaping, rebuilt
// here as an explicit builder per the spec's accumulator contract.
package chatresponse

import (
	"strings"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// auditArtifactPreviewThreshold is the sanitized-content length below which
// the bulky audit markdown is kept inline instead of being replaced by a
// short sentence (§4.6 "unless the sanitized content is already < 300
// chars").
const auditArtifactPreviewThreshold = 300

// Tokens mirrors the {prompt, completion, total} token-usage shape.
type Tokens struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Response is the wire shape the builder assembles.
type Response struct {
	ChatID         string         `json:"chat_id,omitempty"`
	Content        string         `json:"content"`
	MessageID      string         `json:"message_id,omitempty"`
	Model          string         `json:"model,omitempty"`
	Tokens         *Tokens        `json:"tokens,omitempty"`
	LatencyMs      float64        `json:"latency_ms"`
	DecisionMeta   map[string]any `json:"decision_metadata,omitempty"`
	Artifact       *models.Artifact `json:"artifact,omitempty"`
	ResearchTaskID string         `json:"research_task_id,omitempty"`
	SessionTitle   string         `json:"session_title,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Headers are the cache-control headers the builder always attaches,
// preventing any intermediary from caching a chat response.
var Headers = map[string]string{
	"Cache-Control": "no-store, no-cache, must-revalidate, max-age=0",
	"Pragma":        "no-cache",
	"Expires":       "0",
}

// Builder is the fluent accumulator.
type Builder struct {
	resp Response
}

// New starts an empty Builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) ChatID(id string) *Builder {
	b.resp.ChatID = id
	return b
}

func (b *Builder) Content(content string) *Builder {
	b.resp.Content = content
	return b
}

func (b *Builder) MessageID(id string) *Builder {
	b.resp.MessageID = id
	return b
}

func (b *Builder) Model(model string) *Builder {
	b.resp.Model = model
	return b
}

func (b *Builder) TokenUsage(prompt, completion, total int) *Builder {
	b.resp.Tokens = &Tokens{Prompt: prompt, Completion: completion, Total: total}
	return b
}

// Latency stores latencyMs rounded to 2 decimals.
func (b *Builder) Latency(latencyMs float64) *Builder {
	b.resp.LatencyMs = float64(int64(latencyMs*100+0.5)) / 100
	return b
}

func (b *Builder) DecisionMetadata(meta map[string]any) *Builder {
	b.resp.DecisionMeta = meta
	return b
}

func (b *Builder) Artifact(artifact *models.Artifact) *Builder {
	b.resp.Artifact = artifact
	return b
}

func (b *Builder) ResearchTaskID(id string) *Builder {
	b.resp.ResearchTaskID = id
	return b
}

func (b *Builder) SessionTitle(title string) *Builder {
	b.resp.SessionTitle = title
	return b
}

func (b *Builder) Metadata(meta map[string]any) *Builder {
	b.resp.Metadata = meta
	return b
}

func (b *Builder) Err(message string) *Builder {
	b.resp.Error = message
	return b
}

// Build returns the accumulated Response.
func (b *Builder) Build() Response {
	return b.resp
}

// FromProcessingResult populates the builder from a ChatProcessingResult,
// replacing a bulky audit-artifact markdown body with a short sentence when
// the sanitized content is already long enough to stand on its own (§4.6).
func FromProcessingResult(result models.ChatProcessingResult) *Builder {
	b := New().
		ChatID(result.Metadata.ChatID).
		Content(result.SanitizedContent).
		MessageID(result.Metadata.AssistantMessageID).
		Model(result.Metadata.ModelUsed).
		Latency(result.ProcessingTimeMs).
		DecisionMetadata(result.Metadata.DecisionMetadata).
		ResearchTaskID(result.TaskID).
		SessionTitle(result.SessionTitle)

	if result.Metadata.TokensUsed != nil {
		b.TokenUsage(0, 0, *result.Metadata.TokensUsed)
	}

	if result.Metadata.DecisionMetadata != nil {
		if raw, ok := result.Metadata.DecisionMetadata[models.DecisionKeyAuditArtifact]; ok {
			artifact, content := summarizeAuditArtifact(raw, result.SanitizedContent)
			b.resp.Artifact = artifact
			if len(strings.TrimSpace(result.SanitizedContent)) < auditArtifactPreviewThreshold {
				b.Content(result.SanitizedContent)
			} else {
				b.Content(content)
			}
		}
	}

	return b
}

// summarizeAuditArtifact wraps the raw audit-tool result as an Artifact and
// returns a short sentence to use in place of the full markdown body.
func summarizeAuditArtifact(raw any, fallback string) (*models.Artifact, string) {
	artifact := &models.Artifact{
		Kind:    "audit_report",
		Payload: map[string]any{"result": raw},
	}
	return artifact, "Se generó un reporte de auditoría; consulta el artefacto adjunto para el detalle completo."
}
