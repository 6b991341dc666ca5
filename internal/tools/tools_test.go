package tools

import (
	"encoding/json"
	"testing"

	"github.com/saptiva-copilot/gateway/internal/mcp"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

func TestDecodePayloadWrapsMalformedJSONAsInvalidInput(t *testing.T) {
	err := decodePayload(json.RawMessage(`not json`), &struct{}{})
	if err == nil {
		t.Fatalf("expected an error for malformed JSON")
	}
	var toolErr *mcp.ToolExecutionError
	if te, ok := err.(*mcp.ToolExecutionError); !ok {
		t.Fatalf("expected a *mcp.ToolExecutionError, got %T", err)
	} else {
		toolErr = te
	}
	if toolErr.Code != models.ErrCodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %s", toolErr.Code)
	}
}

func TestMissingFieldReportsFieldName(t *testing.T) {
	err := missingField("doc_id").(*mcp.ToolExecutionError)
	if err.Code != models.ErrCodeMissingField {
		t.Fatalf("expected MISSING_FIELD, got %s", err.Code)
	}
}

func TestNotFoundReportsResourceAndID(t *testing.T) {
	err := notFound("document", "doc-42").(*mcp.ToolExecutionError)
	if err.Code != models.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", err.Code)
	}
}

func TestTaskIDFromExtractsMetadataField(t *testing.T) {
	ictx := models.InvokeContext{Metadata: map[string]any{"task_id": "task-1"}}
	if got := taskIDFrom(ictx); got != "task-1" {
		t.Fatalf("expected task-1, got %q", got)
	}
}

func TestTaskIDFromEmptyWithoutMetadata(t *testing.T) {
	if got := taskIDFrom(models.InvokeContext{}); got != "" {
		t.Fatalf("expected an empty task id, got %q", got)
	}
}

type fakeCancellationChecker struct {
	cancelled map[string]bool
}

func (f fakeCancellationChecker) IsCancellationRequested(taskID string) bool {
	return f.cancelled[taskID]
}

func TestCancelledRequiresBothTaskIDAndChecker(t *testing.T) {
	checker := fakeCancellationChecker{cancelled: map[string]bool{"task-1": true}}
	if cancelled(checker, "") {
		t.Fatalf("expected an empty task id to never report cancelled")
	}
	if !cancelled(checker, "task-1") {
		t.Fatalf("expected task-1 to report cancelled")
	}
	if cancelled(checker, "task-2") {
		t.Fatalf("expected an unflagged task to report not cancelled")
	}
	if cancelled(nil, "task-1") {
		t.Fatalf("expected a nil checker to never report cancelled")
	}
}
