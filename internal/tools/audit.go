package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/saptiva-copilot/gateway/internal/pii"
	"github.com/saptiva-copilot/gateway/internal/ragcache"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// pluginCheck is one opaque auditor plugin: it inspects text and reports
// findings plus a one-line summary. The spec treats plugin internals
// (color/format/typography/grammar/logo/entity/semantic) as opaque
// callables honoring this exec(payload, ctx) -> (findings, summary)
// contract; only the generic ones with a deterministic check are
// implemented here, the rest report a neutral pass.
type pluginCheck func(text string) (findings []string, summary string)

var auditPlugins = map[string]pluginCheck{
	"typography": checkTypography,
	"grammar":    checkGrammar,
	"format":     checkFormat,
	"color":      neutralCheck("color"),
	"logo":       neutralCheck("logo"),
	"entity":     neutralCheck("entity"),
	"semantic":   neutralCheck("semantic"),
}

func neutralCheck(name string) pluginCheck {
	return func(string) ([]string, string) {
		return nil, fmt.Sprintf("%s check has no findings for text-only input", name)
	}
}

func checkTypography(text string) ([]string, string) {
	var findings []string
	if strings.Contains(text, "  ") {
		findings = append(findings, "double space detected")
	}
	if strings.Contains(text, "\t") {
		findings = append(findings, "tab character detected")
	}
	return findings, "typography scan complete"
}

func checkGrammar(text string) ([]string, string) {
	var findings []string
	for _, word := range []string{" i ", " teh ", " recieve "} {
		if strings.Contains(strings.ToLower(text), word) {
			findings = append(findings, fmt.Sprintf("possible typo near %q", strings.TrimSpace(word)))
		}
	}
	return findings, "grammar scan complete"
}

func checkFormat(text string) ([]string, string) {
	var findings []string
	if len(text) == 0 {
		findings = append(findings, "document has no extractable text")
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		findings = append(findings, "document starts with a blank line")
	}
	return findings, "format scan complete"
}

// auditFilePayload is the decoded invoke payload for audit_file.
type auditFilePayload struct {
	DocID  string   `json:"doc_id"`
	Checks []string `json:"checks,omitempty"`
}

// AuditFileTool runs the auditor plugin set against a cached document's
// extracted text. Grounded on the Document Context Cache's extraction
// lookup, reused here instead of the retrieval orchestrator since an audit
// wants the full text, not scored segments.
type AuditFileTool struct {
	docCache *ragcache.Cache
}

// NewAuditFileTool wires the audit tool to the shared document cache.
func NewAuditFileTool(docCache *ragcache.Cache) *AuditFileTool {
	return &AuditFileTool{docCache: docCache}
}

func (t *AuditFileTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "audit_file",
		Version:     "1.0.0",
		DisplayName: "Document Auditor",
		Description: "Runs typography, grammar, format, color, logo, entity, and semantic checks against a cached document.",
		Category:    "audit",
		Capabilities: []string{
			"typography", "grammar", "format", "color", "logo", "entity", "semantic",
		},
		InputSchema:  json.RawMessage(`{"type":"object","required":["doc_id"],"properties":{"doc_id":{"type":"string"},"checks":{"type":"array","items":{"type":"string"}}}}`),
		RequiresAuth: true,
		TimeoutMs:    models.DefaultToolLimits().TimeoutMs,
		MaxPayloadKB: models.DefaultToolLimits().MaxPayloadKB,
	}
}

func (t *AuditFileTool) Limits() models.ToolLimits {
	return models.DefaultToolLimits()
}

func (t *AuditFileTool) Invoke(ctx context.Context, payload json.RawMessage, ictx models.InvokeContext) (json.RawMessage, error) {
	var req auditFilePayload
	if err := decodePayload(payload, &req); err != nil {
		return nil, err
	}
	if req.DocID == "" {
		return nil, missingField("doc_id")
	}

	docs, err := t.docCache.GetDocumentTextFromCache(ctx, []string{req.DocID}, ictx.UserID)
	if err != nil {
		return nil, fmt.Errorf("tools: audit_file: load document: %w", err)
	}
	if len(docs) == 0 {
		return nil, notFound("document", req.DocID)
	}
	text := docs[0].Text

	checks := req.Checks
	if len(checks) == 0 {
		for name := range auditPlugins {
			checks = append(checks, name)
		}
	}

	type pluginResult struct {
		Plugin   string   `json:"plugin"`
		Findings []string `json:"findings"`
		Summary  string   `json:"summary"`
	}
	results := make([]pluginResult, 0, len(checks))
	for _, name := range checks {
		plugin, ok := auditPlugins[name]
		if !ok {
			continue
		}
		findings, summary := plugin(text)
		for i, f := range findings {
			findings[i] = pii.Scrub(f, false)
		}
		results = append(results, pluginResult{Plugin: name, Findings: findings, Summary: summary})
	}

	totalFindings := 0
	for _, r := range results {
		totalFindings += len(r.Findings)
	}

	return json.Marshal(map[string]any{
		"doc_id":         req.DocID,
		"plugins":        results,
		"total_findings": totalFindings,
	})
}
