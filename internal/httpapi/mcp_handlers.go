package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saptiva-copilot/gateway/internal/apierr"
	"github.com/saptiva-copilot/gateway/internal/mcp"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

func mcpHandlers(deps Deps) map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"/api/mcp/tools":              handleMCPTools(deps),
		"/api/mcp/discover":           handleMCPDiscover(deps),
		"/api/mcp/invoke":             handleMCPInvoke(deps),
		"/api/mcp/tasks":              handleMCPTasks(deps),
		"/api/mcp/tasks/":             handleMCPTaskByID(deps),
		"/api/mcp/schema/":            handleMCPSchema(deps),
		"/api/mcp/health":             handleMCPHealth(deps),
		"/api/mcp/cache/tool/":        handleMCPCacheInvalidateTool(deps),
		"/api/mcp/cache/document/":    handleMCPCacheInvalidateDocument(deps),
		"/api/mcp/cache/all":          handleMCPCacheInvalidateAll(deps),
		"/api/mcp/cache/stats":        handleMCPCacheStats(deps),
		"/api/mcp/cache/warmup":       handleMCPCacheWarmup(deps),
		"/api/mcp/lazy/discover":      handleMCPDiscover(deps),
		"/api/mcp/lazy/tools/":        handleMCPLazyToolByName(deps),
		"/api/mcp/lazy/invoke":        handleMCPInvoke(deps),
		"/api/mcp/lazy/stats":         handleMCPLazyStats(deps),
	}
}

func handleMCPTools(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusOK, map[string]any{"tools": deps.Registry.DiscoverTools("", "")})
	}
}

func handleMCPDiscover(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		tools := deps.Registry.DiscoverTools(q.Get("category"), q.Get("search"))
		renderJSON(w, http.StatusOK, map[string]any{"tools": tools})
	}
}

func handleMCPSchema(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/api/mcp/schema/")
		if name == "" {
			renderError(w, r, apierr.Validation("tool name is required"))
			return
		}
		spec, err := deps.Registry.GetToolSpec(name)
		if err != nil {
			renderError(w, r, apierr.New("TOOL_NOT_FOUND", http.StatusNotFound, err.Error()))
			return
		}
		renderJSON(w, http.StatusOK, map[string]any{
			"input_schema":  spec.InputSchema,
			"output_schema": spec.OutputSchema,
			"example":       exampleFromSchema(spec.InputSchema),
		})
	}
}

// exampleFromSchema builds a minimal example payload from a JSON Schema's
// top-level "properties", one zero-value per declared type.
func exampleFromSchema(schema json.RawMessage) map[string]any {
	var decoded struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(schema, &decoded); err != nil {
		return map[string]any{}
	}
	example := make(map[string]any, len(decoded.Properties))
	for name, prop := range decoded.Properties {
		switch prop.Type {
		case "string":
			example[name] = ""
		case "number", "integer":
			example[name] = 0
		case "boolean":
			example[name] = false
		case "array":
			example[name] = []any{}
		case "object":
			example[name] = map[string]any{}
		default:
			example[name] = nil
		}
	}
	return example
}

type invokeRequest struct {
	Tool           string         `json:"tool"`
	Version        string         `json:"version"`
	Payload        map[string]any `json:"payload"`
	Context        map[string]any `json:"context"`
	IdempotencyKey string         `json:"idempotency_key"`
}

func handleMCPInvoke(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}

		var req invokeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Tool == "" {
			renderError(w, r, apierr.Validation("tool is required"))
			return
		}

		payload, err := marshalPayload(req.Payload)
		if err != nil {
			renderError(w, r, apierr.Validation("payload is not valid JSON"))
			return
		}

		resp := deps.Dispatcher.Invoke(r.Context(), models.InvokeRequest{
			Tool:           req.Tool,
			Version:        req.Version,
			Payload:        payload,
			Context:        req.Context,
			IdempotencyKey: req.IdempotencyKey,
		}, models.InvokeContext{
			RequestID: uuid.NewString(),
			UserID:    user.ID,
			Source:    "http",
		}, scopesFor(deps.Config, user))

		renderJSON(w, http.StatusOK, resp)
	}
}

type createTaskRequest struct {
	Tool      string              `json:"tool"`
	Payload   map[string]any      `json:"payload"`
	Priority  models.TaskPriority `json:"priority"`
	SessionID string              `json:"session_id,omitempty"`
}

func handleMCPTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}

		if r.Method == http.MethodPost {
			handleMCPTaskCreate(deps, w, r, user)
			return
		}

		q := r.URL.Query()
		status := models.TaskStatus(q.Get("status"))
		tasks := deps.Tasks.ListTasks(user.ID, q.Get("tool"), status)
		renderJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
	}
}

func handleMCPTaskCreate(deps Deps, w http.ResponseWriter, r *http.Request, user *models.User) {
	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Tool == "" {
		renderError(w, r, apierr.Validation("tool is required"))
		return
	}
	if req.Priority == "" {
		req.Priority = models.TaskPriorityNormal
	}

	payload, err := marshalPayload(req.Payload)
	if err != nil {
		renderError(w, r, apierr.Validation("payload is not valid JSON"))
		return
	}
	if err := mcp.ValidatePayloadSize(payload, 0); err != nil {
		renderError(w, r, apierr.Validation(err.Error()))
		return
	}
	if err := mcp.ValidatePayloadStructure(payload); err != nil {
		renderError(w, r, apierr.Validation(err.Error()))
		return
	}
	scopes := scopesFor(deps.Config, user)
	if err := mcp.ValidateToolAccess(scopes, req.Tool); err != nil {
		renderError(w, r, apierr.New("PERMISSION_DENIED", http.StatusForbidden, err.Error()))
		return
	}
	tool, err := deps.Registry.Resolve(req.Tool, "")
	if err != nil {
		renderError(w, r, apierr.New("TOOL_NOT_FOUND", http.StatusNotFound, err.Error()))
		return
	}

	taskID, estimatedMs := deps.Tasks.Create(req.Tool, payload, user.ID, req.Priority)
	deps.Tasks.SetSessionID(taskID, req.SessionID)

	ictx := models.InvokeContext{
		RequestID: uuid.NewString(),
		UserID:    user.ID,
		Source:    "task",
		Metadata:  map[string]any{"task_id": taskID},
	}
	limits := tool.Limits()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(limits.TimeoutMs)*time.Millisecond)
		defer cancel()
		deps.Tasks.Execute(ctx, taskID, func(ctx context.Context) (json.RawMessage, error) {
			return tool.Invoke(ctx, payload, ictx)
		})
	}()

	renderJSON(w, http.StatusAccepted, map[string]any{
		"task_id":               taskID,
		"poll_url":              "/api/mcp/tasks/" + taskID,
		"cancel_url":            "/api/mcp/tasks/" + taskID,
		"estimated_duration_ms": estimatedMs,
	})
}

func handleMCPTaskByID(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}
		taskID := strings.TrimPrefix(r.URL.Path, "/api/mcp/tasks/")
		if taskID == "" {
			renderError(w, r, apierr.NotFound("task id is required"))
			return
		}

		task, ok := deps.Tasks.Get(taskID)
		if !ok {
			renderError(w, r, apierr.NotFound("task not found"))
			return
		}
		if task.UserID != user.ID {
			renderError(w, r, apierr.New("PERMISSION_DENIED", http.StatusForbidden, "not the task owner"))
			return
		}

		switch r.Method {
		case http.MethodDelete:
			deps.Tasks.RequestCancellation(taskID)
			task, _ = deps.Tasks.Get(taskID)
			renderJSON(w, http.StatusAccepted, map[string]any{
				"task_id":                 taskID,
				"cancellation_requested": task.CancellationRequested,
				"status":                  task.Status,
			})
		default:
			renderJSON(w, http.StatusOK, task)
		}
	}
}

func handleMCPHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusOK, map[string]any{"status": "ok", "stats": deps.Registry.GetRegistryStats()})
	}
}

func handleMCPLazyStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok || !isAdmin(deps.Config, user) {
			renderError(w, r, apierr.New("PERMISSION_DENIED", http.StatusForbidden, "admin scope required"))
			return
		}
		renderJSON(w, http.StatusOK, deps.Registry.GetRegistryStats())
	}
}

func handleMCPLazyToolByName(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/mcp/lazy/tools/")
		name, action, _ := strings.Cut(rest, "/")
		if name == "" {
			renderError(w, r, apierr.Validation("tool name is required"))
			return
		}

		if action == "unload" {
			user, ok := userFromContext(r.Context())
			if !ok || !isAdmin(deps.Config, user) {
				renderError(w, r, apierr.New("PERMISSION_DENIED", http.StatusForbidden, "admin scope required"))
				return
			}
			deps.Registry.UnloadTool(name)
			renderJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}

		spec, err := deps.Registry.GetToolSpec(name)
		if err != nil {
			renderError(w, r, apierr.New("TOOL_NOT_FOUND", http.StatusNotFound, err.Error()))
			return
		}
		renderJSON(w, http.StatusOK, spec)
	}
}

func handleMCPCacheInvalidateTool(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/mcp/cache/tool/")
		tool, docID, _ := strings.Cut(rest, "/")
		if tool == "" || docID == "" {
			renderError(w, r, apierr.Validation("tool and document id are required"))
			return
		}
		n, err := deps.CacheAdmin.InvalidateToolCache(r.Context(), tool, docID)
		if err != nil {
			renderError(w, r, apierr.Internal(err))
			return
		}
		renderJSON(w, http.StatusOK, map[string]any{"deleted": n})
	}
}

func handleMCPCacheInvalidateDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID := strings.TrimPrefix(r.URL.Path, "/api/mcp/cache/document/")
		if docID == "" {
			renderError(w, r, apierr.Validation("document id is required"))
			return
		}
		n, err := deps.CacheAdmin.InvalidateDocumentToolCache(r.Context(), docID, r.URL.Query().Get("tool"))
		if err != nil {
			renderError(w, r, apierr.Internal(err))
			return
		}
		renderJSON(w, http.StatusOK, map[string]any{"deleted": n})
	}
}

func handleMCPCacheInvalidateAll(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok || !isAdmin(deps.Config, user) {
			renderError(w, r, apierr.New("PERMISSION_DENIED", http.StatusForbidden, "admin scope required"))
			return
		}
		if r.URL.Query().Get("confirm") != "true" {
			renderError(w, r, apierr.Validation("confirm=true is required to wipe every tool cache"))
			return
		}
		n, err := deps.CacheAdmin.InvalidateAllToolCaches(r.Context(), r.URL.Query().Get("tool"))
		if err != nil {
			renderError(w, r, apierr.Internal(err))
			return
		}
		renderJSON(w, http.StatusOK, map[string]any{"deleted": n})
	}
}

func handleMCPCacheStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.CacheAdmin.GetCacheStats(r.Context(), r.URL.Query().Get("doc_id"))
		if err != nil {
			renderError(w, r, apierr.Internal(err))
			return
		}
		renderJSON(w, http.StatusOK, stats)
	}
}

func handleMCPCacheWarmup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}
		tool := r.URL.Query().Get("tool")
		docIDs := strings.Split(r.URL.Query().Get("doc_ids"), ",")
		if tool == "" || len(docIDs) == 0 {
			renderError(w, r, apierr.Validation("tool and doc_ids are required"))
			return
		}
		failures := mcp.WarmupToolCache(r.Context(), deps.Dispatcher, tool, docIDs, user.ID, scopesFor(deps.Config, user))
		renderJSON(w, http.StatusOK, map[string]any{"warmed": len(docIDs) - len(failures), "failures": failures})
	}
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(payload)
}
