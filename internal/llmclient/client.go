// Package llmclient implements the unified sync/stream wrapper around the
// upstream Saptiva LLM completion API (§4.5 step 2c). It is grounded on the
// reference OpenAI provider's client shape (retrying, channel-of-chunks
// streaming) but typed as a sum type instead of a tagged map, per the
// spec's "replace generator yield with a typed channel" design note.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/saptiva-copilot/gateway/internal/retry"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// Config configures the upstream client.
type Config struct {
	BaseURL           string
	APIKey            string
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	TotalTimeout      time.Duration
	ForceMock         bool
	AllowMockFallback bool
}

// Request is the resolved input to a completion call.
type Request struct {
	Messages         []models.LLMMessage
	Model            string
	Temperature      float64
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64
	MaxTokens        int
	Stream           bool
	ToolsMarkdown    string
}

// EventKind tags an LLMEvent's variant.
type EventKind string

const (
	EventFinal EventKind = "final"
	EventChunk EventKind = "chunk"
)

// LLMEvent is the sum type yielded by ChatCompletionOrStream: exactly one
// Final event in non-streaming mode, or a series of Chunk events terminated
// by a Final event in streaming mode. Callers branch on Kind rather than a
// generator "type" tag.
type LLMEvent struct {
	Kind     EventKind
	Content  string // chunk delta, or the full content on Final
	Response *Response
}

// Response carries the completion metadata attached to a Final event.
type Response struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// TimeoutError marks an upstream call that exceeded its deadline. The
// chat pipeline maps it to a 504 with the exact wording the spec requires.
type TimeoutError struct {
	Seconds float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Saptiva API timed out after %.0fs", e.Seconds)
}

// Client is the upstream Saptiva LLM HTTP client.
type Client struct {
	cfg    Config
	client *openai.Client
}

// New builds a Client. When cfg.ForceMock is set (or no API key is
// configured and AllowMockFallback is set), calls are served by an
// in-process mock so the gateway can run without a live upstream.
func New(cfg Config) *Client {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{cfg: cfg, client: openai.NewClientWithConfig(oaiCfg)}
}

// ChatCompletionOrStream is the unified entry point §4.5 step 2c describes:
// a single call that is typed identically whether req.Stream is true or
// false. Non-streaming mode sends exactly one LLMEvent{Kind: EventFinal} on
// the returned channel; streaming mode sends zero or more EventChunk
// followed by one EventFinal. The channel is always closed when the call
// completes, including on error (the error is returned, not sent on the
// channel).
func (c *Client) ChatCompletionOrStream(ctx context.Context, req Request) (<-chan LLMEvent, error) {
	if c.cfg.ForceMock || (c.cfg.APIKey == "" && c.cfg.AllowMockFallback) {
		return c.mockStream(ctx, req), nil
	}

	totalTimeout := c.cfg.TotalTimeout
	if !req.Stream && totalTimeout <= 0 {
		totalTimeout = 30 * time.Second
	}
	readTimeout := c.cfg.ReadTimeout
	if req.Stream && readTimeout <= 0 {
		readTimeout = 120 * time.Second
	}
	deadline := totalTimeout
	if req.Stream {
		deadline = readTimeout
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if deadline > 0 {
		callCtx, cancel = context.WithTimeout(ctx, deadline)
	}

	messages := toOpenAIMessages(req.Messages)

	if !req.Stream {
		if cancel != nil {
			defer cancel()
		}
		return c.completeSync(callCtx, req, messages, deadline)
	}
	// The stream's reader goroutine owns cancel, so the deadline keeps
	// covering the read loop after this call returns.
	return c.completeStream(callCtx, cancel, req, messages, deadline)
}

func (c *Client) completeSync(ctx context.Context, req Request, messages []openai.ChatCompletionMessage, deadline time.Duration) (<-chan LLMEvent, error) {
	out := make(chan LLMEvent, 1)

	resp, result := retry.DoWithValue(ctx, retry.Exponential(3, 200*time.Millisecond, 2*time.Second), func() (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:            req.Model,
			Messages:         messages,
			Temperature:      float32(req.Temperature),
			TopP:             float32(req.TopP),
			PresencePenalty:  float32(req.PresencePenalty),
			FrequencyPenalty: float32(req.FrequencyPenalty),
			MaxTokens:        req.MaxTokens,
		})
	})
	if result.Err != nil {
		close(out)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Seconds: deadline.Seconds()}
		}
		return nil, fmt.Errorf("llmclient: chat completion: %w", result.Err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	out <- LLMEvent{
		Kind:    EventFinal,
		Content: content,
		Response: &Response{
			Model:            resp.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	close(out)
	return out, nil
}

func (c *Client) completeStream(ctx context.Context, cancel context.CancelFunc, req Request, messages []openai.ChatCompletionMessage, deadline time.Duration) (<-chan LLMEvent, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		Temperature:      float32(req.Temperature),
		TopP:             float32(req.TopP),
		PresencePenalty:  float32(req.PresencePenalty),
		FrequencyPenalty: float32(req.FrequencyPenalty),
		MaxTokens:        req.MaxTokens,
		Stream:           true,
	})
	if err != nil {
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		if cancel != nil {
			cancel()
		}
		if timedOut {
			return nil, &TimeoutError{Seconds: deadline.Seconds()}
		}
		return nil, fmt.Errorf("llmclient: open stream: %w", err)
	}

	out := make(chan LLMEvent)
	go func() {
		if cancel != nil {
			defer cancel()
		}
		defer close(out)
		defer stream.Close()

		var full []byte
		var usage openai.Usage
		model := req.Model
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return
			}
			if chunk.Model != "" {
				model = chunk.Model
			}
			if len(chunk.Choices) > 0 {
				delta := chunk.Choices[0].Delta.Content
				if delta != "" {
					full = append(full, delta...)
					select {
					case out <- LLMEvent{Kind: EventChunk, Content: delta}:
					case <-ctx.Done():
						return
					}
				}
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
		}

		select {
		case out <- LLMEvent{
			Kind:    EventFinal,
			Content: string(full),
			Response: &Response{
				Model:            model,
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				TotalTokens:      usage.TotalTokens,
			},
		}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// mockStream serves SAPTIVA_FORCE_MOCK / no-upstream-configured calls so
// the gateway is runnable without a live Saptiva endpoint.
func (c *Client) mockStream(_ context.Context, req Request) <-chan LLMEvent {
	out := make(chan LLMEvent, 1)
	content := "[mock] respuesta generada localmente para pruebas."
	out <- LLMEvent{
		Kind:    EventFinal,
		Content: content,
		Response: &Response{
			Model:            req.Model,
			PromptTokens:     estimateTokens(req.Messages),
			CompletionTokens: estimateTokens([]models.LLMMessage{{Content: content}}),
			TotalTokens:      0,
		},
	}
	close(out)
	return out
}

func estimateTokens(messages []models.LLMMessage) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}

func toOpenAIMessages(messages []models.LLMMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
