package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/saptiva-copilot/gateway/internal/mcp"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// bankAnalyticsPayload is the decoded invoke payload for bank_analytics.
type bankAnalyticsPayload struct {
	MetricOrQuery string `json:"metric_or_query"`
	Mode          string `json:"mode,omitempty"`
}

// rpcRequest is the JSON-RPC 2.0 envelope the bank-advisor microservice
// expects, matching services/bank_analytics_client.py::query_bank_analytics.
type rpcRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      string     `json:"id"`
	Method  string      `json:"method"`
	Params  rpcParams  `json:"params"`
}

type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	Error  *rpcError       `json:"error,omitempty"`
	Result json.RawMessage `json:"result"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// BankAnalyticsTool proxies natural-language banking metric queries to the
// external bank-advisor microservice over its MCP JSON-RPC endpoint.
// Grounded line-for-line on the dropped auditor/spreadsheet corpus's sibling
// collaborator, services/bank_analytics_client.py: same "/rpc" path, same
// "tools/call" method, same "bank_analytics" tool name and argument shape,
// same unwrap-or-surface-error handling of the enhanced
// {success,data,metadata} response envelope.
type BankAnalyticsTool struct {
	baseURL string
	client  *http.Client
	enabled bool
}

// NewBankAnalyticsTool wires the tool to the bank-advisor base URL. enabled
// mirrors USE_BANK_ADVISOR: when false the tool reports itself unavailable
// without making a network call.
func NewBankAnalyticsTool(baseURL string, timeout time.Duration, enabled bool) *BankAnalyticsTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BankAnalyticsTool{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		enabled: enabled,
	}
}

func (t *BankAnalyticsTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:         "bank_analytics",
		Version:      "1.0.0",
		DisplayName:  "Bank Analytics",
		Description:  "Queries banking metrics (IMOR, ICAP, cartera, etc.) from the bank-advisor analytics microservice in dashboard or timeline mode.",
		Category:     "analytics",
		Capabilities: []string{"dashboard", "timeline"},
		InputSchema:  json.RawMessage(`{"type":"object","required":["metric_or_query"],"properties":{"metric_or_query":{"type":"string"},"mode":{"type":"string","enum":["dashboard","timeline"]}}}`),
		RequiresAuth: true,
		TimeoutMs:    models.DefaultToolLimits().TimeoutMs,
		MaxPayloadKB: models.DefaultToolLimits().MaxPayloadKB,
	}
}

func (t *BankAnalyticsTool) Limits() models.ToolLimits {
	return models.DefaultToolLimits()
}

func (t *BankAnalyticsTool) Invoke(ctx context.Context, payload json.RawMessage, _ models.InvokeContext) (json.RawMessage, error) {
	if !t.enabled {
		return nil, invalidInput("bank advisor is disabled (USE_BANK_ADVISOR=false)")
	}

	var req bankAnalyticsPayload
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.MetricOrQuery == "" {
		return nil, missingField("metric_or_query")
	}
	if req.Mode == "" {
		req.Mode = "dashboard"
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "bank-analytics-call",
		Method:  "tools/call",
		Params: rpcParams{
			Name: "bank_analytics",
			Arguments: map[string]any{
				"metric_or_query": req.MetricOrQuery,
				"mode":            req.Mode,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tools: bank_analytics: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tools: bank_analytics: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &mcp.ToolExecutionError{
			Code:      models.ErrCodeExecutionError,
			Message:   fmt.Sprintf("bank-advisor unavailable: %v", err),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, invalidFormat("bank_analytics", err)
	}
	if decoded.Error != nil {
		return nil, invalidInput(fmt.Sprintf("MCP error: %s", decoded.Error.Message))
	}

	return unwrapBankResult(decoded.Result)
}

// unwrapBankResult handles both the "enhanced" {success,data,metadata}
// response envelope and the legacy bare-result shape, matching the
// original client's two branches.
func unwrapBankResult(raw json.RawMessage) (json.RawMessage, error) {
	var enhanced struct {
		Success  *bool           `json:"success"`
		Data     json.RawMessage `json:"data"`
		Metadata map[string]any  `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &enhanced); err == nil && enhanced.Success != nil {
		if !*enhanced.Success {
			errMsg := "unknown error"
			if v, ok := enhanced.Metadata["error"].(string); ok {
				errMsg = v
			}
			return nil, invalidInput(fmt.Sprintf("tool execution failed: %s", errMsg))
		}
		return json.Marshal(map[string]any{
			"success":  true,
			"data":     enhanced.Data,
			"metadata": enhanced.Metadata,
		})
	}

	var legacy map[string]any
	if err := json.Unmarshal(raw, &legacy); err == nil {
		if errType, ok := legacy["error"]; ok {
			message := legacy["message"]
			return nil, invalidInput(fmt.Sprintf("%v: %v", errType, message))
		}
	}
	return json.Marshal(map[string]any{"success": true, "data": raw})
}
