package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/saptiva-copilot/gateway/internal/objectstore"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// previewRows bounds how many rows the "preview" operation returns per
// sheet, keeping the response within the tool's payload budget.
const previewRows = 20

// excelAnalyzerPayload is the decoded invoke payload for excel_analyzer.
type excelAnalyzerPayload struct {
	FileID     string   `json:"file_id"`
	Operations []string `json:"operations"`
}

// ExcelAnalyzerTool computes sheet statistics and row previews over an
// uploaded workbook. Grounded on the object store's content-addressed
// download path; parsing is done with excelize, the workbook library the
// rest of the retrieved corpus reaches for.
type ExcelAnalyzerTool struct {
	objects objectstore.Store
	tasks   CancellationChecker
}

// NewExcelAnalyzerTool wires the tool to the object store and, optionally,
// the task manager so long preview/stats runs can poll for cancellation.
func NewExcelAnalyzerTool(objects objectstore.Store, tasks CancellationChecker) *ExcelAnalyzerTool {
	return &ExcelAnalyzerTool{objects: objects, tasks: tasks}
}

func (t *ExcelAnalyzerTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:         "excel_analyzer",
		Version:      "1.0.0",
		DisplayName:  "Excel Analyzer",
		Description:  "Computes per-sheet statistics and row previews for an uploaded workbook.",
		Category:     "analytics",
		Capabilities: []string{"stats", "preview"},
		InputSchema:  json.RawMessage(`{"type":"object","required":["file_id"],"properties":{"file_id":{"type":"string"},"operations":{"type":"array","items":{"type":"string","enum":["stats","preview"]}}}}`),
		RequiresAuth: true,
		TimeoutMs:    120000,
		MaxPayloadKB: models.DefaultToolLimits().MaxPayloadKB,
	}
}

func (t *ExcelAnalyzerTool) Limits() models.ToolLimits {
	return models.ToolLimits{TimeoutMs: 120000, MaxPayloadKB: 64, MaxAttachmentMB: 25}
}

func (t *ExcelAnalyzerTool) Invoke(ctx context.Context, payload json.RawMessage, ictx models.InvokeContext) (json.RawMessage, error) {
	var req excelAnalyzerPayload
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.FileID == "" {
		return nil, missingField("file_id")
	}
	operations := req.Operations
	if len(operations) == 0 {
		operations = []string{"stats", "preview"}
	}

	taskID := taskIDFrom(ictx)

	reader, err := t.objects.Get(ctx, req.FileID)
	if err != nil {
		if err == objectstore.ErrNotFound {
			return nil, notFound("file", req.FileID)
		}
		return nil, fmt.Errorf("tools: excel_analyzer: fetch file: %w", err)
	}
	defer reader.Close()

	wb, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, invalidFormat("excel_analyzer", err)
	}
	defer wb.Close()

	result := map[string]any{"file_id": req.FileID}
	sheets := wb.GetSheetList()

	for _, op := range operations {
		if cancelled(t.tasks, taskID) {
			return nil, errCancelled
		}
		switch op {
		case "stats":
			result["stats"] = sheetStats(wb, sheets)
		case "preview":
			result["preview"] = sheetPreview(wb, sheets)
		}
	}

	return json.Marshal(result)
}

func sheetStats(wb *excelize.File, sheets []string) []map[string]any {
	stats := make([]map[string]any, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			continue
		}
		maxCols := 0
		for _, row := range rows {
			if len(row) > maxCols {
				maxCols = len(row)
			}
		}
		stats = append(stats, map[string]any{
			"sheet":   sheet,
			"rows":    len(rows),
			"columns": maxCols,
		})
	}
	return stats
}

func sheetPreview(wb *excelize.File, sheets []string) []map[string]any {
	preview := make([]map[string]any, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			continue
		}
		limit := len(rows)
		if limit > previewRows {
			limit = previewRows
		}
		preview = append(preview, map[string]any{
			"sheet": sheet,
			"rows":  rows[:limit],
		})
	}
	return preview
}

