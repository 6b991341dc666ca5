package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/saptiva-copilot/gateway/internal/apierr"
	"github.com/saptiva-copilot/gateway/internal/chatresponse"
	"github.com/saptiva-copilot/gateway/internal/llmclient"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

type chatMessageRequest struct {
	ChatID       string                 `json:"chat_id"`
	Message      string                 `json:"message"`
	Model        string                 `json:"model"`
	Channel      string                 `json:"channel"`
	ToolsEnabled map[string]bool        `json:"tools_enabled"`
	DocumentIDs  []string               `json:"document_ids"`
	Stream       bool                   `json:"stream"`
	PriorContext []models.LLMMessage    `json:"prior_context"`
	Temperature  *float64               `json:"temperature"`
	MaxTokens    *int                   `json:"max_tokens"`
}

func chatHandlers(deps Deps) map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"/api/chat": handleChatMessage(deps),
	}
}

func handleChatMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}

		var req chatMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Message == "" {
			renderError(w, r, apierr.Validation("message is required"))
			return
		}
		chatID := req.ChatID
		if chatID == "" {
			chatID = uuid.NewString()
		}

		cctx := models.ChatContext{
			UserID:           user.ID,
			RequestID:        uuid.NewString(),
			Timestamp:        time.Now(),
			ChatID:           chatID,
			Message:          req.Message,
			PriorContext:     req.PriorContext,
			Model:            req.Model,
			Channel:          req.Channel,
			ToolsEnabled:     req.ToolsEnabled,
			Stream:           req.Stream,
			DocumentIDs:      req.DocumentIDs,
			Temperature:      req.Temperature,
			MaxTokens:        req.MaxTokens,
			KillSwitchActive: deps.Config != nil && deps.Config.Research.KillSwitch,
		}

		result, err := deps.Chat.Process(r.Context(), cctx)
		if err != nil {
			var timeoutErr *llmclient.TimeoutError
			if errors.As(err, &timeoutErr) {
				renderError(w, r, apierr.Timeout(timeoutErr.Error()))
				return
			}
			renderError(w, r, apierr.Internal(err))
			return
		}

		resp := chatresponse.FromProcessingResult(result).Build()
		for k, v := range chatresponse.Headers {
			w.Header().Set(k, v)
		}
		renderJSON(w, http.StatusOK, resp)
	}
}
