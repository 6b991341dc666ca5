// Package tools implements the concrete MCP tools dispatched through the
// registry: audit_file, excel_analyzer, viz_tool, and bank_analytics. Each is a
// models.Tool (spec()/invoke()) following the spec's "tagged variant over a
// common trait" design note, grounded on the reference agent's tool-plugin
// shape but rewritten as ordinary Go structs instead of reflection-driven
// dynamic dispatch.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/saptiva-copilot/gateway/internal/mcp"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// decodePayload unmarshals a tool's JSON payload into dst, wrapping failures
// as a non-retryable ToolExecutionError so the dispatcher reports
// INVALID_INPUT instead of a generic execution failure.
func decodePayload(payload json.RawMessage, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return &mcp.ToolExecutionError{
			Code:    models.ErrCodeInvalidInput,
			Message: fmt.Sprintf("invalid payload: %v", err),
		}
	}
	return nil
}

// taskIDFrom extracts the task id a long-running invocation was created
// under, if any. Tools invoked synchronously via /api/mcp/invoke have no
// task id and never poll cancellation.
func taskIDFrom(ictx models.InvokeContext) string {
	if ictx.Metadata == nil {
		return ""
	}
	id, _ := ictx.Metadata["task_id"].(string)
	return id
}

// CancellationChecker is polled by long-running tools at checkpoints,
// satisfied by *mcp.TaskManager.
type CancellationChecker interface {
	IsCancellationRequested(taskID string) bool
}

func cancelled(checker CancellationChecker, taskID string) bool {
	return taskID != "" && checker != nil && checker.IsCancellationRequested(taskID)
}

// errCancelled is returned when a tool observes its task's cancellation flag
// mid-execution; the task manager's Execute translates it (via the task
// manager's own IsCancellationRequested check) into a TaskCancelled state
// rather than TaskFailed.
var errCancelled = fmt.Errorf("tools: cancellation requested")

// missingField reports a required payload field that was left empty.
func missingField(field string) error {
	return &mcp.ToolExecutionError{
		Code:    models.ErrCodeMissingField,
		Message: fmt.Sprintf("missing required field %q", field),
	}
}

// notFound reports a referenced resource (document, file) that the tool
// could not load.
func notFound(what, id string) error {
	return &mcp.ToolExecutionError{
		Code:    models.ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", what, id),
	}
}

// invalidFormat reports a file the tool could not parse in its expected
// format.
func invalidFormat(tool string, cause error) error {
	return &mcp.ToolExecutionError{
		Code:    models.ErrCodeInvalidFormat,
		Message: fmt.Sprintf("%s: could not parse file: %v", tool, cause),
	}
}

// invalidInput reports a semantically invalid (but well-formed) payload
// value.
func invalidInput(message string) error {
	return &mcp.ToolExecutionError{Code: models.ErrCodeInvalidInput, Message: message}
}
