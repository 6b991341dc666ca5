package chatpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/saptiva-copilot/gateway/internal/llmclient"
	"github.com/saptiva-copilot/gateway/internal/prompts"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// ToolCatalog renders the markdown block describing the tools a caller has
// enabled, substituted into the resolved system prompt's {TOOLS} placeholder.
type ToolCatalog interface {
	ToolsMarkdown(enabled map[string]bool) string
}

// Service implements the chat-completion half of the Handler Chain &
// Strategy (§4.5 step 2): prompt resolution, message assembly, and the
// unified sync/stream upstream call.
type Service struct {
	prompts *prompts.Registry
	llm     *llmclient.Client
	tools   ToolCatalog
}

// NewService wires the chat-completion dependencies.
func NewService(promptRegistry *prompts.Registry, llm *llmclient.Client, tools ToolCatalog) *Service {
	return &Service{prompts: promptRegistry, llm: llm, tools: tools}
}

// defaultChannel is the prompt-registry channel used for ordinary chat
// completions when the caller doesn't specify one (as opposed to "title",
// "summary", or "report" channels used by other flows).
const defaultChannel = "chat"

// resolveAndAssemble resolves the system prompt for (model, channel,
// tools_markdown) and assembles the LLM message array per §4.5 step 2b,
// shared by both the buffered (ProcessWithSaptiva) and streaming
// (StreamWithSaptiva) entry points.
func (s *Service) resolveAndAssemble(model, channel string, toolsEnabled map[string]bool, priorContext []models.LLMMessage, message, documentContext string) (models.ResolvedPrompt, string, []models.LLMMessage, error) {
	if channel == "" {
		channel = defaultChannel
	}

	toolsMarkdown := ""
	if s.tools != nil {
		toolsMarkdown = s.tools.ToolsMarkdown(toolsEnabled)
	}

	resolved, err := s.prompts.Resolve(model, toolsMarkdown, channel)
	if err != nil {
		return models.ResolvedPrompt{}, "", nil, fmt.Errorf("chatpipeline: resolve prompt: %w", err)
	}

	userContent := message
	if documentContext != "" {
		userContent = fmt.Sprintf("%s\n\n%s", message, documentContext)
	}

	messages := make([]models.LLMMessage, 0, len(priorContext)+2)
	messages = append(messages, models.LLMMessage{Role: "system", Content: resolved.SystemText})
	messages = append(messages, priorContext...)
	messages = append(messages, models.LLMMessage{Role: "user", Content: userContent})

	return resolved, toolsMarkdown, messages, nil
}

// StreamWithSaptiva resolves the prompt and message array exactly like
// ProcessWithSaptiva, but returns the raw upstream event channel instead of
// buffering it — used by the SSE stream endpoint (§4.9's "stream" router) to
// forward each chunk to the client as it arrives.
func (s *Service) StreamWithSaptiva(ctx context.Context, message, model, channel, userID, chatID string, toolsEnabled map[string]bool, priorContext []models.LLMMessage, documentContext string) (<-chan llmclient.LLMEvent, error) {
	resolved, toolsMarkdown, messages, err := s.resolveAndAssemble(model, channel, toolsEnabled, priorContext, message, documentContext)
	if err != nil {
		return nil, err
	}

	return s.llm.ChatCompletionOrStream(ctx, llmclient.Request{
		Messages:         messages,
		Model:            model,
		Temperature:      resolved.Params.Temperature,
		TopP:             resolved.Params.TopP,
		PresencePenalty:  resolved.Params.PresencePenalty,
		FrequencyPenalty: resolved.Params.FrequencyPenalty,
		MaxTokens:        resolved.Params.MaxTokens,
		Stream:           true,
		ToolsMarkdown:    toolsMarkdown,
	})
}

// ProcessWithSaptiva resolves the system prompt, assembles the message
// array, and calls the upstream LLM, returning a ChatProcessingResult with
// sanitized content, token usage, and latency.
func (s *Service) ProcessWithSaptiva(ctx context.Context, message, model, channel, userID, chatID string, toolsEnabled map[string]bool, priorContext []models.LLMMessage, documentContext string, stream bool) (models.ChatProcessingResult, error) {
	started := time.Now()

	resolved, toolsMarkdown, messages, err := s.resolveAndAssemble(model, channel, toolsEnabled, priorContext, message, documentContext)
	if err != nil {
		return models.ChatProcessingResult{}, err
	}

	events, err := s.llm.ChatCompletionOrStream(ctx, llmclient.Request{
		Messages:         messages,
		Model:            model,
		Temperature:      resolved.Params.Temperature,
		TopP:             resolved.Params.TopP,
		PresencePenalty:  resolved.Params.PresencePenalty,
		FrequencyPenalty: resolved.Params.FrequencyPenalty,
		MaxTokens:        resolved.Params.MaxTokens,
		Stream:           stream,
		ToolsMarkdown:    toolsMarkdown,
	})
	if err != nil {
		return models.ChatProcessingResult{}, err
	}

	var content string
	var usage *llmclient.Response
	for event := range events {
		switch event.Kind {
		case llmclient.EventChunk:
			content += event.Content
		case llmclient.EventFinal:
			content = event.Content
			usage = event.Response
		}
	}

	sanitized := Sanitize(content)
	latencyMs := roundTo2(float64(time.Since(started).Microseconds()) / 1000.0)

	result := models.ChatProcessingResult{
		Content:          content,
		SanitizedContent: sanitized,
		StrategyUsed:     "simple",
		ProcessingTimeMs: latencyMs,
		Metadata: models.MessageMetadata{
			ChatID:    chatID,
			ModelUsed: model,
			LatencyMs: latencyMs,
		},
	}
	if usage != nil {
		total := usage.TotalTokens
		result.Metadata.TokensUsed = &total
	}
	return result, nil
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
