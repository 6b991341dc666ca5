package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// estimatedDurationMs heuristically estimates how long a tool's task will
// take, used to populate the 202 response so clients can set expectations.
func estimatedDurationMs(tool string, payload json.RawMessage) int {
	switch tool {
	case "audit_file":
		return 5000
	case "excel_analyzer", "analyzer":
		var decoded struct {
			Operations []any `json:"operations"`
		}
		_ = json.Unmarshal(payload, &decoded)
		return 10000 + 2000*len(decoded.Operations)
	case "viz_tool":
		return 3000
	case "bank_analytics":
		return 8000
	default:
		return 5000
	}
}

// TaskManager tracks long-running tool invocations: creation, progress,
// terminal transitions, owner-scoped lookup, cooperative cancellation, and
// hourly TTL-based cleanup. Only the background executor that owns a task
// mutates its lifecycle fields (single-writer invariant); callers read a
// Task as an immutable snapshot.
type TaskManager struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
	ttl   time.Duration

	cronEntryID cron.EntryID
	cronRunner  *cron.Cron
	logger      *slog.Logger
}

// NewTaskManager builds a TaskManager with the given cleanup TTL (tasks in
// a terminal state older than ttl are purged hourly).
func NewTaskManager(ttl time.Duration, logger *slog.Logger) *TaskManager {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TaskManager{
		tasks:  map[string]*models.Task{},
		ttl:    ttl,
		logger: logger,
	}
}

// Start launches the hourly cleanup scheduler. The parser configuration
// mirrors the teacher's scheduled-job idiom: standard 5-field cron plus
// descriptor support, so "@hourly" resolves without a custom case.
func (m *TaskManager) Start() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	runner := cron.New(cron.WithParser(parser))
	id, err := runner.AddFunc("@hourly", m.cleanupOldTasks)
	if err != nil {
		return fmt.Errorf("mcp: schedule task cleanup: %w", err)
	}
	m.cronEntryID = id
	m.cronRunner = runner
	runner.Start()
	m.logger.Info("task manager cleanup scheduler started", "ttl", m.ttl)
	return nil
}

// Stop halts the cleanup scheduler.
func (m *TaskManager) Stop() {
	if m.cronRunner != nil {
		ctx := m.cronRunner.Stop()
		<-ctx.Done()
	}
}

// Create enqueues a new pending task and returns its id and estimated
// duration.
func (m *TaskManager) Create(tool string, payload json.RawMessage, userID string, priority models.TaskPriority) (taskID string, estimatedMs int) {
	taskID = uuid.NewString()
	task := &models.Task{
		TaskID:    taskID,
		Tool:      tool,
		Payload:   payload,
		Status:    models.TaskPending,
		Priority:  priority,
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.tasks[taskID] = task
	m.mu.Unlock()

	m.logger.Info("task created", "task_id", taskID, "tool", tool, "priority", priority, "user_id", userID)
	return taskID, estimatedDurationMs(tool, payload)
}

// SetSessionID links a task to the chat session that spawned it, so the
// session research endpoint (§6 `GET /api/sessions/{id}/research`) can find
// it later. A no-op if the task does not exist.
func (m *TaskManager) SetSessionID(taskID, sessionID string) {
	if sessionID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[taskID]; ok {
		task.SessionID = sessionID
	}
}

// Get returns a snapshot of a task, owner-checked by the caller.
func (m *TaskManager) Get(taskID string) (models.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return models.Task{}, false
	}
	return *task, true
}

// MarkRunning transitions a task to running.
func (m *TaskManager) MarkRunning(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return
	}
	task.Status = models.TaskRunning
	now := time.Now()
	task.StartedAt = &now
	m.logger.Info("task started", "task_id", taskID, "tool", task.Tool)
}

// UpdateProgress clamps progress to [0, 1] and records an optional message.
func (m *TaskManager) UpdateProgress(taskID string, progress float64, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	task.Progress = progress
	if message != "" {
		task.ProgressMessage = message
	}
}

// MarkCompleted finalizes a task with its result.
func (m *TaskManager) MarkCompleted(taskID string, result json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return
	}
	task.Status = models.TaskCompleted
	now := time.Now()
	task.CompletedAt = &now
	task.Progress = 1.0
	task.Result = result
	m.logger.Info("task completed", "task_id", taskID, "tool", task.Tool)
}

// MarkFailed finalizes a task with an error.
func (m *TaskManager) MarkFailed(taskID string, toolErr *models.ToolError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return
	}
	task.Status = models.TaskFailed
	now := time.Now()
	task.CompletedAt = &now
	task.Error = toolErr
	m.logger.Error("task failed", "task_id", taskID, "tool", task.Tool, "error_code", toolErr.Code)
}

// MarkCancelled finalizes a task as cancelled.
func (m *TaskManager) MarkCancelled(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return
	}
	task.Status = models.TaskCancelled
	now := time.Now()
	task.CompletedAt = &now
	m.logger.Info("task cancelled", "task_id", taskID, "tool", task.Tool)
}

// RequestCancellation marks a non-terminal task for cooperative
// cancellation. Returns false if the task is missing or already terminal
// (idempotent: calling it twice on a terminal task is a no-op, not an
// error).
func (m *TaskManager) RequestCancellation(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	if task.Status.IsTerminal() {
		return false
	}
	task.CancellationRequested = true
	m.logger.Info("task cancellation requested", "task_id", taskID, "tool", task.Tool)
	return true
}

// IsCancellationRequested is polled by the executing tool at checkpoints;
// no preemption is assumed.
func (m *TaskManager) IsCancellationRequested(taskID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[taskID]
	return ok && task.CancellationRequested
}

// ListTasks filters tasks by owner, tool, and status, newest first.
func (m *TaskManager) ListTasks(userID, tool string, status models.TaskStatus) []models.Task {
	return m.listTasks(userID, tool, "", status)
}

// ListTasksBySession filters tasks by the session that spawned them (and
// optionally status), newest first, ignoring ownership — callers are
// expected to have already owner-checked the session itself.
func (m *TaskManager) ListTasksBySession(sessionID string, status models.TaskStatus) []models.Task {
	return m.listTasks("", "", sessionID, status)
}

func (m *TaskManager) listTasks(userID, tool, sessionID string, status models.TaskStatus) []models.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if userID != "" && task.UserID != userID {
			continue
		}
		if tool != "" && task.Tool != tool {
			continue
		}
		if sessionID != "" && task.SessionID != sessionID {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		out = append(out, *task)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// cleanupOldTasks removes terminal-state tasks older than the configured
// TTL, run hourly by the cron scheduler.
func (m *TaskManager) cleanupOldTasks() {
	now := time.Now()
	var removed int

	m.mu.Lock()
	for id, task := range m.tasks {
		if !task.Status.IsTerminal() {
			continue
		}
		reference := task.CreatedAt
		if task.CompletedAt != nil {
			reference = *task.CompletedAt
		}
		if now.Sub(reference) > m.ttl {
			delete(m.tasks, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Info("cleaned up old tasks", "count", removed)
	}
}

// Execute runs fn in the background for taskID, handling the
// pending->running->terminal transitions and translating a returned
// ToolExecutionError/context cancellation into the right terminal state.
func (m *TaskManager) Execute(ctx context.Context, taskID string, fn func(ctx context.Context) (json.RawMessage, error)) {
	m.MarkRunning(taskID)

	result, err := fn(ctx)
	if err != nil {
		if m.IsCancellationRequested(taskID) {
			m.MarkCancelled(taskID)
			return
		}
		var toolErr *ToolExecutionError
		code := models.ErrCodeExecutionError
		message := err.Error()
		if te, ok := err.(*ToolExecutionError); ok {
			toolErr = te
			code = te.Code
			message = te.Message
		}
		m.MarkFailed(taskID, &models.ToolError{Code: code, Message: message, Retryable: toolErr != nil && toolErr.Retryable})
		return
	}
	m.MarkCompleted(taskID, result)
}
