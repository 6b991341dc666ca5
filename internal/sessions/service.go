// Package sessions implements the Session & History Service (§4.7):
// listing, message history with research-task enrichment, export,
// metadata updates, cascading delete, and a per-session canvas-state blob —
// every operation owner-checked before it touches the store.
package sessions

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/saptiva-copilot/gateway/internal/apierr"
	"github.com/saptiva-copilot/gateway/internal/mcp"
	"github.com/saptiva-copilot/gateway/internal/store"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// CacheInvalidator is notified when a session's cached history is stale.
type CacheInvalidator interface {
	InvalidateHistory(ctx context.Context, chatID string) error
}

// TaskLookup resolves the research-task snapshot attached to a message, and
// lists research tasks spawned by a given session.
type TaskLookup interface {
	Get(taskID string) (models.Task, bool)
	ListTasksBySession(sessionID string, status models.TaskStatus) []models.Task
}

// Service implements the Session & History operations.
type Service struct {
	store  store.Store
	tasks  TaskLookup
	cache  CacheInvalidator
}

// NewService wires the session service's dependencies. cache may be nil,
// in which case delete/update skip invalidation.
func NewService(st store.Store, tasks TaskLookup, cache CacheInvalidator) *Service {
	return &Service{store: st, tasks: tasks, cache: cache}
}

// GetSessions lists a user's sessions, paginated and optionally filtered by
// a title search and a creation-date range.
func (s *Service) GetSessions(ctx context.Context, userID string, limit, offset int, search string, from, to *time.Time) (models.SessionListResult, error) {
	list, total, err := s.store.ListSessions(ctx, userID, limit, offset, search, from, to)
	if err != nil {
		return models.SessionListResult{}, apierr.Internal(err)
	}
	return models.SessionListResult{
		Sessions:   list,
		TotalCount: total,
		HasMore:    offset+len(list) < total,
	}, nil
}

// GetMessages returns a chat's messages newest-first, enriching each
// message that carries a task_id with a snapshot of that research task.
func (s *Service) GetMessages(ctx context.Context, userID, chatID string, limit, offset int, includeSystem bool, roleFilter string) (models.MessageListResult, error) {
	if err := s.checkOwnership(ctx, userID, chatID); err != nil {
		return models.MessageListResult{}, err
	}

	list, total, err := s.store.ListMessages(ctx, chatID, limit, offset, includeSystem, roleFilter)
	if err != nil {
		return models.MessageListResult{}, apierr.Internal(err)
	}

	if s.tasks != nil {
		for i := range list {
			if list[i].TaskID == "" {
				continue
			}
			if task, ok := s.tasks.Get(list[i].TaskID); ok {
				if list[i].Metadata == nil {
					list[i].Metadata = map[string]any{}
				}
				list[i].Metadata["research_task"] = task
			}
		}
	}

	return models.MessageListResult{
		Messages:   list,
		TotalCount: total,
		HasMore:    offset+len(list) < total,
	}, nil
}

// GetResearchTasks lists the research tasks spawned by a session (§6 `GET
// /api/sessions/{id}/research`), owner-checked, newest first, paginated and
// optionally filtered by status.
func (s *Service) GetResearchTasks(ctx context.Context, userID, id string, limit, offset int, status models.TaskStatus) (models.ResearchTaskListResult, error) {
	if err := s.checkOwnership(ctx, userID, id); err != nil {
		return models.ResearchTaskListResult{}, err
	}
	if s.tasks == nil {
		return models.ResearchTaskListResult{Tasks: []models.Task{}}, nil
	}

	all := s.tasks.ListTasksBySession(id, status)
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return models.ResearchTaskListResult{
		Tasks:      all[offset:end],
		TotalCount: total,
		HasMore:    end < total,
	}, nil
}

// Export serializes a chat's full message history in the requested format.
func (s *Service) Export(ctx context.Context, userID, chatID string, format models.ExportFormat, includeMetadata bool) ([]byte, string, error) {
	if err := s.checkOwnership(ctx, userID, chatID); err != nil {
		return nil, "", err
	}

	messages, _, err := s.store.ListMessages(ctx, chatID, 0, 0, true, "")
	if err != nil {
		return nil, "", apierr.Internal(err)
	}

	switch format {
	case models.ExportJSON:
		data, err := json.MarshalIndent(exportRows(messages, includeMetadata), "", "  ")
		if err != nil {
			return nil, "", apierr.Internal(err)
		}
		return data, "application/json", nil
	case models.ExportCSV:
		data, err := exportCSV(messages, includeMetadata)
		if err != nil {
			return nil, "", apierr.Internal(err)
		}
		return data, "text/csv", nil
	case models.ExportTXT:
		return exportTXT(messages), "text/plain", nil
	default:
		return nil, "", apierr.Validation(fmt.Sprintf("unsupported export format %q", format))
	}
}

// UpdateSession patches a session's title and/or pinned flag.
func (s *Service) UpdateSession(ctx context.Context, userID, id string, title *string, pinned *bool) (models.ChatSession, error) {
	session, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return models.ChatSession{}, err
	}
	if title != nil {
		session.Title = *title
	}
	if pinned != nil {
		session.Pinned = *pinned
	}
	session.UpdatedAt = time.Now()
	if err := s.store.UpdateSession(ctx, &session); err != nil {
		return models.ChatSession{}, apierr.Internal(err)
	}
	s.invalidate(ctx, id)
	return session, nil
}

// DeleteSession removes a session, cascading to its messages and
// invalidating any cached history.
func (s *Service) DeleteSession(ctx context.Context, userID, id string) error {
	if _, err := s.getOwned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return apierr.Internal(err)
	}
	s.invalidate(ctx, id)
	return nil
}

// GetCanvasState returns a session's opaque canvas-state blob.
func (s *Service) GetCanvasState(ctx context.Context, userID, id string) (json.RawMessage, error) {
	session, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return session.CanvasState, nil
}

// PatchCanvasState replaces a session's canvas-state blob.
func (s *Service) PatchCanvasState(ctx context.Context, userID, id string, patch json.RawMessage) error {
	session, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}
	session.CanvasState = patch
	session.UpdatedAt = time.Now()
	if err := s.store.UpdateSession(ctx, &session); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (s *Service) getOwned(ctx context.Context, userID, id string) (models.ChatSession, error) {
	session, err := s.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.ChatSession{}, apierr.NotFound("session not found")
	}
	if err != nil {
		return models.ChatSession{}, apierr.Internal(err)
	}
	if session.UserID != userID {
		return models.ChatSession{}, apierr.PermissionDenied("you do not own this session")
	}
	return *session, nil
}

func (s *Service) checkOwnership(ctx context.Context, userID, chatID string) error {
	_, err := s.getOwned(ctx, userID, chatID)
	return err
}

func (s *Service) invalidate(ctx context.Context, chatID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateHistory(ctx, chatID)
}

func exportRows(messages []models.ChatMessage, includeMetadata bool) []map[string]any {
	rows := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		row := map[string]any{
			"id":         m.ID,
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt,
		}
		if includeMetadata {
			row["metadata"] = m.Metadata
		}
		rows = append(rows, row)
	}
	return rows
}

func exportCSV(messages []models.ChatMessage, includeMetadata bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "role", "content", "created_at"}
	if includeMetadata {
		header = append(header, "metadata")
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, m := range messages {
		row := []string{m.ID, m.Role, m.Content, m.CreatedAt.Format(time.RFC3339)}
		if includeMetadata {
			meta, _ := json.Marshal(m.Metadata)
			row = append(row, string(meta))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func exportTXT(messages []models.ChatMessage) []byte {
	var buf bytes.Buffer
	for _, m := range messages {
		fmt.Fprintf(&buf, "[%s] %s: %s\n", m.CreatedAt.Format(time.RFC3339), m.Role, m.Content)
	}
	return buf.Bytes()
}

// compile-time assertion that *mcp.TaskManager satisfies TaskLookup.
var _ TaskLookup = (*mcp.TaskManager)(nil)
