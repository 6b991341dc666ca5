package sessions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/saptiva-copilot/gateway/internal/store"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// memStore is a minimal in-memory store.Store for exercising the session
// service's orchestration logic without a real database.
type memStore struct {
	sessions map[string]*models.ChatSession
	messages map[string][]models.ChatMessage
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*models.ChatSession{}, messages: map[string][]models.ChatMessage{}}
}

func (m *memStore) InsertUser(ctx context.Context, user *models.User) error { return nil }
func (m *memStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) UpdateUser(ctx context.Context, user *models.User) error { return nil }

func (m *memStore) InsertSession(ctx context.Context, session *models.ChatSession) error {
	m.sessions[session.ID] = session
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (m *memStore) ListSessions(ctx context.Context, userID string, limit, offset int, search string, from, to *time.Time) ([]models.ChatSession, int, error) {
	var out []models.ChatSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, len(out), nil
}

func (m *memStore) UpdateSession(ctx context.Context, session *models.ChatSession) error {
	m.sessions[session.ID] = session
	return nil
}

func (m *memStore) DeleteSession(ctx context.Context, id string) error {
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *memStore) InsertMessage(ctx context.Context, message *models.ChatMessage) error {
	m.messages[message.ChatID] = append(m.messages[message.ChatID], *message)
	return nil
}

func (m *memStore) ListMessages(ctx context.Context, chatID string, limit, offset int, includeSystem bool, roleFilter string) ([]models.ChatMessage, int, error) {
	all := m.messages[chatID]
	return all, len(all), nil
}

func (m *memStore) DeleteMessagesForChat(ctx context.Context, chatID string) error {
	delete(m.messages, chatID)
	return nil
}

func (m *memStore) InsertArtifact(ctx context.Context, artifact *models.Artifact) error { return nil }
func (m *memStore) GetArtifact(ctx context.Context, id string) (*models.Artifact, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) InsertReport(ctx context.Context, report *models.ValidationReport) error {
	return nil
}
func (m *memStore) GetReport(ctx context.Context, id string) (*models.ValidationReport, error) {
	return nil, store.ErrNotFound
}

var _ store.Store = (*memStore)(nil)

// memTaskLookup is a minimal in-memory TaskLookup.
type memTaskLookup struct {
	byID      map[string]models.Task
	bySession map[string][]models.Task
}

func newMemTaskLookup() *memTaskLookup {
	return &memTaskLookup{byID: map[string]models.Task{}, bySession: map[string][]models.Task{}}
}

func (m *memTaskLookup) Get(taskID string) (models.Task, bool) {
	t, ok := m.byID[taskID]
	return t, ok
}

func (m *memTaskLookup) ListTasksBySession(sessionID string, status models.TaskStatus) []models.Task {
	var out []models.Task
	for _, t := range m.bySession[sessionID] {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (m *memTaskLookup) add(task models.Task) {
	m.byID[task.TaskID] = task
	m.bySession[task.SessionID] = append(m.bySession[task.SessionID], task)
}

var _ TaskLookup = (*memTaskLookup)(nil)

// memCacheInvalidator records which chats had their history cache busted.
type memCacheInvalidator struct {
	invalidated []string
}

func (m *memCacheInvalidator) InvalidateHistory(ctx context.Context, chatID string) error {
	m.invalidated = append(m.invalidated, chatID)
	return nil
}

func seedSession(st *memStore, id, userID string) *models.ChatSession {
	s := &models.ChatSession{ID: id, UserID: userID, Title: "untitled", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	st.sessions[id] = s
	return s
}

func TestGetSessionsFiltersByOwner(t *testing.T) {
	st := newMemStore()
	seedSession(st, "s1", "alice")
	seedSession(st, "s2", "bob")
	svc := NewService(st, nil, nil)

	result, err := svc.GetSessions(context.Background(), "alice", 20, 0, "", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalCount != 1 || len(result.Sessions) != 1 {
		t.Fatalf("expected exactly alice's session, got %+v", result)
	}
}

func TestGetMessagesEnrichesWithResearchTaskSnapshot(t *testing.T) {
	st := newMemStore()
	seedSession(st, "chat-1", "alice")
	st.messages["chat-1"] = []models.ChatMessage{
		{ID: "m1", ChatID: "chat-1", Role: "assistant", Content: "hi", TaskID: "task-1"},
	}
	tasks := newMemTaskLookup()
	tasks.add(models.Task{TaskID: "task-1", Status: models.TaskCompleted, Progress: 1})
	svc := NewService(st, tasks, nil)

	result, err := svc.GetMessages(context.Background(), "alice", "chat-1", 50, 0, true, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(result.Messages))
	}
	if _, ok := result.Messages[0].Metadata["research_task"]; !ok {
		t.Fatalf("expected the message to carry a research_task snapshot")
	}
}

func TestGetMessagesRejectsNonOwner(t *testing.T) {
	st := newMemStore()
	seedSession(st, "chat-1", "alice")
	svc := NewService(st, nil, nil)

	if _, err := svc.GetMessages(context.Background(), "mallory", "chat-1", 50, 0, true, ""); err == nil {
		t.Fatalf("expected a non-owner to be rejected")
	}
}

func TestUpdateSessionPatchesTitleAndPinnedAndInvalidatesCache(t *testing.T) {
	st := newMemStore()
	seedSession(st, "chat-1", "alice")
	cache := &memCacheInvalidator{}
	svc := NewService(st, nil, cache)

	title := "renamed"
	pinned := true
	updated, err := svc.UpdateSession(context.Background(), "alice", "chat-1", &title, &pinned)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Title != "renamed" || !updated.Pinned {
		t.Fatalf("expected title/pinned to be patched, got %+v", updated)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "chat-1" {
		t.Fatalf("expected the history cache to be invalidated, got %+v", cache.invalidated)
	}
}

func TestDeleteSessionCascadesMessagesAndInvalidatesCache(t *testing.T) {
	st := newMemStore()
	seedSession(st, "chat-1", "alice")
	st.messages["chat-1"] = []models.ChatMessage{{ID: "m1", ChatID: "chat-1"}}
	cache := &memCacheInvalidator{}
	svc := NewService(st, nil, cache)

	if err := svc.DeleteSession(context.Background(), "alice", "chat-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := st.sessions["chat-1"]; ok {
		t.Fatalf("expected session to be deleted")
	}
	if _, ok := st.messages["chat-1"]; ok {
		t.Fatalf("expected messages to cascade-delete")
	}
	if len(cache.invalidated) != 1 {
		t.Fatalf("expected cache invalidation on delete")
	}
}

func TestDeleteSessionRejectsNonOwner(t *testing.T) {
	st := newMemStore()
	seedSession(st, "chat-1", "alice")
	svc := NewService(st, nil, nil)

	if err := svc.DeleteSession(context.Background(), "mallory", "chat-1"); err == nil {
		t.Fatalf("expected a non-owner delete to be rejected")
	}
	if _, ok := st.sessions["chat-1"]; !ok {
		t.Fatalf("expected the session to survive a rejected delete")
	}
}

func TestCanvasStateRoundTripIsOwnerOnly(t *testing.T) {
	st := newMemStore()
	seedSession(st, "chat-1", "alice")
	svc := NewService(st, nil, nil)
	ctx := context.Background()

	blob := json.RawMessage(`{"zoom":2}`)
	if err := svc.PatchCanvasState(ctx, "alice", "chat-1", blob); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := svc.GetCanvasState(ctx, "alice", "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(state) != string(blob) {
		t.Fatalf("expected canvas state to round-trip, got %s", state)
	}

	if _, err := svc.GetCanvasState(ctx, "mallory", "chat-1"); err == nil {
		t.Fatalf("expected a non-owner canvas read to be rejected")
	}
}

func TestGetResearchTasksListsBySessionPaginated(t *testing.T) {
	st := newMemStore()
	seedSession(st, "chat-1", "alice")
	tasks := newMemTaskLookup()
	tasks.add(models.Task{TaskID: "t1", SessionID: "chat-1", Status: models.TaskCompleted})
	tasks.add(models.Task{TaskID: "t2", SessionID: "chat-1", Status: models.TaskRunning})
	tasks.add(models.Task{TaskID: "t3", SessionID: "other-chat", Status: models.TaskCompleted})
	svc := NewService(st, tasks, nil)

	result, err := svc.GetResearchTasks(context.Background(), "alice", "chat-1", 20, 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalCount != 2 {
		t.Fatalf("expected 2 tasks scoped to chat-1, got %d", result.TotalCount)
	}

	filtered, err := svc.GetResearchTasks(context.Background(), "alice", "chat-1", 20, 0, models.TaskCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filtered.TotalCount != 1 {
		t.Fatalf("expected only the completed task, got %d", filtered.TotalCount)
	}
}

func TestGetResearchTasksRejectsNonOwner(t *testing.T) {
	st := newMemStore()
	seedSession(st, "chat-1", "alice")
	svc := NewService(st, newMemTaskLookup(), nil)

	if _, err := svc.GetResearchTasks(context.Background(), "mallory", "chat-1", 20, 0, ""); err == nil {
		t.Fatalf("expected a non-owner to be rejected")
	}
}

func TestExportFormatsJSONCSVTXT(t *testing.T) {
	st := newMemStore()
	seedSession(st, "chat-1", "alice")
	st.messages["chat-1"] = []models.ChatMessage{
		{ID: "m1", ChatID: "chat-1", Role: "user", Content: "hola", CreatedAt: time.Now()},
	}
	svc := NewService(st, nil, nil)
	ctx := context.Background()

	for _, format := range []models.ExportFormat{models.ExportJSON, models.ExportCSV, models.ExportTXT} {
		data, mime, err := svc.Export(ctx, "alice", "chat-1", format, true)
		if err != nil {
			t.Fatalf("unexpected error for format %s: %v", format, err)
		}
		if len(data) == 0 || mime == "" {
			t.Fatalf("expected non-empty export for format %s", format)
		}
	}
}

func TestExportRejectsUnsupportedFormat(t *testing.T) {
	st := newMemStore()
	seedSession(st, "chat-1", "alice")
	svc := NewService(st, nil, nil)

	if _, _, err := svc.Export(context.Background(), "alice", "chat-1", models.ExportFormat("xml"), false); err == nil {
		t.Fatalf("expected an unsupported export format to be rejected")
	}
}
