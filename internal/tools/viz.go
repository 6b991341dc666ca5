package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// vizPayload is the decoded invoke payload for viz_tool.
type vizPayload struct {
	ChartType string         `json:"chart_type"`
	Title     string         `json:"title"`
	Labels    []string       `json:"labels"`
	Series    map[string][]float64 `json:"series"`
}

// VizTool renders chart definitions into standalone HTML snippets, one of
// the document collaborators the chat pipeline can surface as an artifact
// link. Grounded on the rest of the retrieved corpus's go-echarts usage;
// the teacher has no charting dependency of its own.
type VizTool struct{}

// NewVizTool builds a stateless VizTool.
func NewVizTool() *VizTool { return &VizTool{} }

func (t *VizTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:         "viz_tool",
		Version:      "1.0.0",
		DisplayName:  "Chart Renderer",
		Description:  "Renders bar, line, and pie charts from tabular series data as standalone HTML.",
		Category:     "visualization",
		Capabilities: []string{"bar", "line", "pie"},
		InputSchema:  json.RawMessage(`{"type":"object","required":["chart_type","labels","series"],"properties":{"chart_type":{"type":"string","enum":["bar","line","pie"]},"title":{"type":"string"},"labels":{"type":"array","items":{"type":"string"}},"series":{"type":"object"}}}`),
		RequiresAuth: true,
		TimeoutMs:    models.DefaultToolLimits().TimeoutMs,
		MaxPayloadKB: models.DefaultToolLimits().MaxPayloadKB,
	}
}

func (t *VizTool) Limits() models.ToolLimits {
	return models.DefaultToolLimits()
}

func (t *VizTool) Invoke(_ context.Context, payload json.RawMessage, _ models.InvokeContext) (json.RawMessage, error) {
	var req vizPayload
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.ChartType == "" {
		return nil, missingField("chart_type")
	}
	if len(req.Labels) == 0 {
		return nil, missingField("labels")
	}
	if len(req.Series) == 0 {
		return nil, missingField("series")
	}

	html, err := render(req)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"chart_type": req.ChartType,
		"title":      req.Title,
		"html":       html,
	})
}

func render(req vizPayload) (string, error) {
	var buf bytes.Buffer

	switch req.ChartType {
	case "bar":
		bar := charts.NewBar()
		bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: req.Title}))
		bar.SetXAxis(req.Labels)
		for name, values := range req.Series {
			bar.AddSeries(name, barData(values))
		}
		if err := bar.Render(&buf); err != nil {
			return "", invalidFormat("viz_tool", err)
		}
	case "line":
		line := charts.NewLine()
		line.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: req.Title}))
		line.SetXAxis(req.Labels)
		for name, values := range req.Series {
			line.AddSeries(name, lineData(values))
		}
		if err := line.Render(&buf); err != nil {
			return "", invalidFormat("viz_tool", err)
		}
	case "pie":
		pie := charts.NewPie()
		pie.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: req.Title}))
		for name, values := range req.Series {
			pie.AddSeries(name, pieData(req.Labels, values))
			break
		}
		if err := pie.Render(&buf); err != nil {
			return "", invalidFormat("viz_tool", err)
		}
	default:
		return "", invalidInput(fmt.Sprintf("unsupported chart_type %q", req.ChartType))
	}

	return buf.String(), nil
}

func barData(values []float64) []opts.BarData {
	out := make([]opts.BarData, len(values))
	for i, v := range values {
		out[i] = opts.BarData{Value: v}
	}
	return out
}

func lineData(values []float64) []opts.LineData {
	out := make([]opts.LineData, len(values))
	for i, v := range values {
		out[i] = opts.LineData{Value: v}
	}
	return out
}

func pieData(labels []string, values []float64) []opts.PieData {
	out := make([]opts.PieData, 0, len(values))
	for i, v := range values {
		if i >= len(labels) {
			break
		}
		out = append(out, opts.PieData{Name: labels[i], Value: v})
	}
	return out
}
