package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/saptiva-copilot/gateway/internal/apierr"
	"github.com/saptiva-copilot/gateway/internal/llmclient"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// streamEvent is the SSE payload shape: one "chunk" event per delta, then a
// terminal "final" event carrying the full content and token usage,
// mirroring the LLMEvent sum type the upstream client yields (§4.5 step 2c,
// §9 "Coroutines / async").
type streamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Model   string `json:"model,omitempty"`
	Usage   *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// handleStreamChat serves GET /api/stream/{chat_id} as Server-Sent Events:
// the "stream" router named in §2/§4.9, whose bearer token arrives via the
// "token" query parameter (middleware.bearerToken already special-cases the
// /api/stream prefix). Unlike POST /api/chat, this bypasses the buffering
// Chain and forwards each upstream chunk as it arrives.
func handleStreamChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.ChatService == nil {
			renderError(w, r, apierr.New("NOT_IMPLEMENTED", http.StatusNotImplemented, "streaming is not configured on this gateway"))
			return
		}
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}
		if deps.Config != nil && deps.Config.Research.KillSwitch && r.URL.Query().Get("research") == "true" {
			renderError(w, r, apierr.Gone("deep research is currently disabled"))
			return
		}

		chatID := strings.TrimPrefix(r.URL.Path, "/api/stream/")
		q := r.URL.Query()
		message := q.Get("message")
		if message == "" {
			renderError(w, r, apierr.Validation("message query parameter is required"))
			return
		}
		model := q.Get("model")

		flusher, ok := w.(http.Flusher)
		if !ok {
			renderError(w, r, apierr.Internal(fmt.Errorf("response writer does not support flushing")))
			return
		}

		var documentIDs []string
		if raw := q.Get("document_ids"); raw != "" {
			documentIDs = strings.Split(raw, ",")
		}

		cctx := models.ChatContext{
			UserID:      user.ID,
			ChatID:      chatID,
			Message:     message,
			Model:       model,
			Channel:     q.Get("channel"),
			DocumentIDs: documentIDs,
			Stream:      true,
		}

		documentContext := ""
		if deps.Standard != nil {
			var err error
			documentContext, err = deps.Standard.BuildDocumentContext(r.Context(), cctx)
			if err != nil {
				renderError(w, r, err)
				return
			}
		}

		events, err := deps.ChatService.StreamWithSaptiva(r.Context(), message, model, cctx.Channel, user.ID, chatID, nil, nil, documentContext)
		if err != nil {
			renderError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Connection", "keep-alive")
		for k, v := range noStoreHeaders {
			w.Header().Set(k, v)
		}
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for event := range events {
			select {
			case <-r.Context().Done():
				return
			default:
			}
			writeSSEEvent(w, flusher, event)
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event llmclient.LLMEvent) {
	out := streamEvent{Content: event.Content}
	switch event.Kind {
	case llmclient.EventChunk:
		out.Type = "chunk"
	case llmclient.EventFinal:
		out.Type = "final"
		if event.Response != nil {
			out.Model = event.Response.Model
			out.Usage = &struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
				TotalTokens      int `json:"total_tokens"`
			}{
				PromptTokens:     event.Response.PromptTokens,
				CompletionTokens: event.Response.CompletionTokens,
				TotalTokens:      event.Response.TotalTokens,
			}
		}
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}
