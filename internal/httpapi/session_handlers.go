package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/saptiva-copilot/gateway/internal/apierr"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

func sessionHandlers(deps Deps) map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"/api/sessions":         handleSessions(deps),
		"/api/sessions/":        handleSessionByID(deps),
		"/api/history/":         handleHistory(deps),
		"/api/sessions/export/": handleExport(deps),
	}
}

func handleSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}

		q := r.URL.Query()
		limit := queryInt(q, "limit", 20)
		offset := queryInt(q, "offset", 0)
		search := q.Get("search")

		var from, to *time.Time
		if v := q.Get("from"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				from = &t
			}
		}
		if v := q.Get("to"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				to = &t
			}
		}

		result, err := deps.Sessions.GetSessions(r.Context(), user.ID, limit, offset, search, from, to)
		if err != nil {
			renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusOK, result)
	}
}

func handleSessionByID(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
		if id == "" {
			renderError(w, r, apierr.NotFound("session id is required"))
			return
		}

		switch r.Method {
		case http.MethodPatch:
			if strings.HasSuffix(id, "/canvas") {
				base := strings.TrimSuffix(id, "/canvas")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					renderError(w, r, apierr.Validation("could not read request body"))
					return
				}
				if err := deps.Sessions.PatchCanvasState(r.Context(), user.ID, base, body); err != nil {
					renderError(w, r, err)
					return
				}
				renderJSON(w, http.StatusOK, map[string]any{"ok": true})
				return
			}

			var body struct {
				Title  *string `json:"title"`
				Pinned *bool   `json:"pinned"`
			}
			if !decodeJSON(w, r, &body) {
				return
			}
			session, err := deps.Sessions.UpdateSession(r.Context(), user.ID, id, body.Title, body.Pinned)
			if err != nil {
				renderError(w, r, err)
				return
			}
			renderJSON(w, http.StatusOK, session)
		case http.MethodDelete:
			if err := deps.Sessions.DeleteSession(r.Context(), user.ID, id); err != nil {
				renderError(w, r, err)
				return
			}
			renderJSON(w, http.StatusOK, map[string]any{"ok": true})
		case http.MethodGet:
			if strings.HasSuffix(r.URL.Path, "/canvas") {
				base := strings.TrimSuffix(id, "/canvas")
				state, err := deps.Sessions.GetCanvasState(r.Context(), user.ID, base)
				if err != nil {
					renderError(w, r, err)
					return
				}
				renderJSON(w, http.StatusOK, state)
				return
			}
			if strings.HasSuffix(id, "/research") {
				base := strings.TrimSuffix(id, "/research")
				q := r.URL.Query()
				limit := queryInt(q, "limit", 20)
				offset := queryInt(q, "offset", 0)
				status := models.TaskStatus(q.Get("status"))
				result, err := deps.Sessions.GetResearchTasks(r.Context(), user.ID, base, limit, offset, status)
				if err != nil {
					renderError(w, r, err)
					return
				}
				renderJSON(w, http.StatusOK, result)
				return
			}
			renderError(w, r, apierr.NotFound("unknown session route"))
		default:
			renderError(w, r, apierr.New("METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed, "unsupported method"))
		}
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}
		chatID := strings.TrimPrefix(r.URL.Path, "/api/history/")
		if chatID == "" {
			renderError(w, r, apierr.NotFound("chat id is required"))
			return
		}

		q := r.URL.Query()
		limit := queryInt(q, "limit", 50)
		offset := queryInt(q, "offset", 0)
		includeSystem := q.Get("include_system") == "true"
		roleFilter := q.Get("role")

		result, err := deps.Sessions.GetMessages(r.Context(), user.ID, chatID, limit, offset, includeSystem, roleFilter)
		if err != nil {
			renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusOK, result)
	}
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}
		chatID := strings.TrimPrefix(r.URL.Path, "/api/sessions/export/")
		if chatID == "" {
			renderError(w, r, apierr.NotFound("chat id is required"))
			return
		}

		format := models.ExportFormat(r.URL.Query().Get("format"))
		if format == "" {
			format = models.ExportJSON
		}
		includeMetadata := r.URL.Query().Get("include_metadata") == "true"

		data, mimeType, err := deps.Sessions.Export(r.Context(), user.ID, chatID, format, includeMetadata)
		if err != nil {
			renderError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+chatID+"."+string(format)+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, strings.NewReader(string(data)))
	}
}

func queryInt(q map[string][]string, key string, def int) int {
	if v, ok := q[key]; ok && len(v) > 0 {
		if n, err := strconv.Atoi(v[0]); err == nil {
			return n
		}
	}
	return def
}
