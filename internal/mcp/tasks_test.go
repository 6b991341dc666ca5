package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

func TestTaskManagerCreateStartsPending(t *testing.T) {
	m := NewTaskManager(time.Hour, nil)
	taskID, estimatedMs := m.Create("audit_file", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)
	if taskID == "" {
		t.Fatalf("expected a non-empty task id")
	}
	if estimatedMs != 5000 {
		t.Fatalf("expected audit_file's estimated duration to be 5000ms, got %d", estimatedMs)
	}

	task, ok := m.Get(taskID)
	if !ok {
		t.Fatalf("expected to retrieve the created task")
	}
	if task.Status != models.TaskPending {
		t.Fatalf("expected a newly created task to be pending, got %s", task.Status)
	}
}

func TestTaskManagerMarkRunningThenCompleted(t *testing.T) {
	m := NewTaskManager(time.Hour, nil)
	taskID, _ := m.Create("viz_tool", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)

	m.MarkRunning(taskID)
	task, _ := m.Get(taskID)
	if task.Status != models.TaskRunning {
		t.Fatalf("expected running, got %s", task.Status)
	}
	if task.StartedAt == nil {
		t.Fatalf("expected started_at to be set")
	}

	m.MarkCompleted(taskID, json.RawMessage(`{"done":true}`))
	task, _ = m.Get(taskID)
	if task.Status != models.TaskCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}
	if task.Progress != 1.0 {
		t.Fatalf("expected progress to reach 1.0 on completion, got %f", task.Progress)
	}
	if task.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}
}

func TestTaskManagerMarkFailedSetsTerminalError(t *testing.T) {
	m := NewTaskManager(time.Hour, nil)
	taskID, _ := m.Create("bank_analytics", json.RawMessage(`{}`), "user-1", models.TaskPriorityHigh)

	m.MarkRunning(taskID)
	m.MarkFailed(taskID, &models.ToolError{Code: models.ErrCodeExecutionError, Message: "boom"})

	task, _ := m.Get(taskID)
	if task.Status != models.TaskFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.Error == nil || task.Error.Code != models.ErrCodeExecutionError {
		t.Fatalf("expected the terminal error to be recorded, got %+v", task.Error)
	}
}

func TestTaskManagerCancellationIsIdempotentOnTerminalTasks(t *testing.T) {
	m := NewTaskManager(time.Hour, nil)
	taskID, _ := m.Create("audit_file", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)

	m.MarkRunning(taskID)
	m.MarkCompleted(taskID, json.RawMessage(`{}`))

	if m.RequestCancellation(taskID) {
		t.Fatalf("expected cancellation request against a terminal task to be rejected")
	}
	task, _ := m.Get(taskID)
	if task.Status != models.TaskCompleted {
		t.Fatalf("expected the terminal status to remain unchanged, got %s", task.Status)
	}
}

func TestTaskManagerRequestCancellationOnPendingTask(t *testing.T) {
	m := NewTaskManager(time.Hour, nil)
	taskID, _ := m.Create("audit_file", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)

	if !m.RequestCancellation(taskID) {
		t.Fatalf("expected cancellation request against a pending task to be accepted")
	}
	if !m.IsCancellationRequested(taskID) {
		t.Fatalf("expected IsCancellationRequested to report true after a successful request")
	}
}

func TestTaskManagerExecuteHonorsCooperativeCancellation(t *testing.T) {
	m := NewTaskManager(time.Hour, nil)
	taskID, _ := m.Create("audit_file", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)
	m.RequestCancellation(taskID)

	m.Execute(context.Background(), taskID, func(ctx context.Context) (json.RawMessage, error) {
		return nil, context.Canceled
	})

	task, _ := m.Get(taskID)
	if task.Status != models.TaskCancelled {
		t.Fatalf("expected a failing execution on a cancellation-requested task to land as cancelled, got %s", task.Status)
	}
}

func TestTaskManagerExecuteMarksCompletedOnSuccess(t *testing.T) {
	m := NewTaskManager(time.Hour, nil)
	taskID, _ := m.Create("audit_file", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)

	m.Execute(context.Background(), taskID, func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})

	task, _ := m.Get(taskID)
	if task.Status != models.TaskCompleted {
		t.Fatalf("expected completed, got %s", task.Status)
	}
}

func TestTaskManagerListTasksFiltersByOwnerToolAndStatus(t *testing.T) {
	m := NewTaskManager(time.Hour, nil)
	id1, _ := m.Create("audit_file", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)
	_, _ = m.Create("viz_tool", json.RawMessage(`{}`), "user-2", models.TaskPriorityNormal)
	m.MarkRunning(id1)
	m.MarkCompleted(id1, json.RawMessage(`{}`))

	tasks := m.ListTasks("user-1", "", "")
	if len(tasks) != 1 || tasks[0].TaskID != id1 {
		t.Fatalf("expected exactly the user-1 task, got %+v", tasks)
	}

	tasks = m.ListTasks("", "viz_tool", "")
	if len(tasks) != 1 || tasks[0].Tool != "viz_tool" {
		t.Fatalf("expected exactly the viz_tool task, got %+v", tasks)
	}

	tasks = m.ListTasks("", "", models.TaskCompleted)
	if len(tasks) != 1 || tasks[0].Status != models.TaskCompleted {
		t.Fatalf("expected exactly one completed task, got %+v", tasks)
	}
}

func TestSetSessionIDLinksTaskToSessionForListing(t *testing.T) {
	m := NewTaskManager(time.Hour, nil)
	id1, _ := m.Create("audit_file", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)
	id2, _ := m.Create("viz_tool", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)
	m.SetSessionID(id1, "chat-1")
	m.SetSessionID(id2, "chat-2")

	tasks := m.ListTasksBySession("chat-1", "")
	if len(tasks) != 1 || tasks[0].TaskID != id1 {
		t.Fatalf("expected exactly the chat-1 task, got %+v", tasks)
	}

	m.MarkRunning(id1)
	tasks = m.ListTasksBySession("chat-1", models.TaskCompleted)
	if len(tasks) != 0 {
		t.Fatalf("expected no completed tasks for chat-1 yet, got %+v", tasks)
	}
}

func TestSetSessionIDIsNoOpForUnknownTaskOrEmptySession(t *testing.T) {
	m := NewTaskManager(time.Hour, nil)
	id1, _ := m.Create("audit_file", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)

	m.SetSessionID("does-not-exist", "chat-1")
	m.SetSessionID(id1, "")

	task, _ := m.Get(id1)
	if task.SessionID != "" {
		t.Fatalf("expected session id to remain unset, got %q", task.SessionID)
	}
}

func TestEstimatedDurationScalesWithExcelOperationCount(t *testing.T) {
	payload := json.RawMessage(`{"operations":[1,2,3]}`)
	ms := estimatedDurationMs("excel_analyzer", payload)
	if ms != 10000+2000*3 {
		t.Fatalf("expected estimated duration to scale with operation count, got %d", ms)
	}
}

func TestCleanupOldTasksPurgesExpiredTerminalTasks(t *testing.T) {
	m := NewTaskManager(time.Millisecond, nil)
	taskID, _ := m.Create("audit_file", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)
	m.MarkRunning(taskID)
	m.MarkCompleted(taskID, json.RawMessage(`{}`))

	time.Sleep(5 * time.Millisecond)
	m.cleanupOldTasks()

	if _, ok := m.Get(taskID); ok {
		t.Fatalf("expected the completed task to be purged once past its TTL")
	}
}

func TestCleanupOldTasksKeepsNonTerminalTasks(t *testing.T) {
	m := NewTaskManager(time.Millisecond, nil)
	taskID, _ := m.Create("audit_file", json.RawMessage(`{}`), "user-1", models.TaskPriorityNormal)
	m.MarkRunning(taskID)

	time.Sleep(5 * time.Millisecond)
	m.cleanupOldTasks()

	if _, ok := m.Get(taskID); !ok {
		t.Fatalf("expected a still-running task to survive cleanup regardless of age")
	}
}
