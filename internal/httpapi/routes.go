package httpapi

import (
	"net/http"

	"github.com/saptiva-copilot/gateway/internal/apierr"
)

// registerRoutes mounts the auth, chat, session/history, mcp, stream, and
// research-escalate routes onto mux. No other /api/* router is mounted.
func registerRoutes(mux *http.ServeMux, deps Deps) {
	for path, handler := range authHandlers(deps) {
		mux.HandleFunc(path, handler)
	}
	for path, handler := range chatHandlers(deps) {
		mux.HandleFunc(path, handler)
	}
	for path, handler := range sessionHandlers(deps) {
		mux.HandleFunc(path, handler)
	}
	for path, handler := range mcpHandlers(deps) {
		mux.HandleFunc(path, handler)
	}

	mux.HandleFunc("/api/stream/", handleStreamChat(deps))
	mux.HandleFunc("/api/research/escalate", handleResearchEscalate(deps))
}

// handleResearchEscalate is the deep-research entry point the kill switch
// guards (§6): when active, every escalation request is refused with 410
// GONE rather than silently degrading to Standard.
func handleResearchEscalate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Config != nil && deps.Config.Research.KillSwitch {
			renderError(w, r, apierr.Gone("deep research is currently disabled"))
			return
		}
		if _, ok := userFromContext(r.Context()); !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}
		renderError(w, r, apierr.New("NOT_IMPLEMENTED", http.StatusNotImplemented, "research escalation is not yet available"))
	}
}
