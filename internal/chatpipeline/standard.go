package chatpipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/saptiva-copilot/gateway/internal/ragcache"
	"github.com/saptiva-copilot/gateway/internal/retrieval"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// documentBudget bounds how much extracted document text SimpleChatStrategy
// folds into the prompt: per-document, global, and a max document count
// (§4.2 extract_content_for_rag defaults).
const (
	maxCharsPerDoc = 8000
	maxTotalChars  = 16000
	maxDocs        = 3
)

// StandardHandler is the terminal link in the chain: it always accepts and
// delegates to SimpleChatStrategy (§4.5).
type StandardHandler struct {
	docCache     *ragcache.Cache
	service      *Service
	orchestrator *retrieval.Orchestrator
}

// NewStandardHandler wires the terminal handler's dependencies.
func NewStandardHandler(docCache *ragcache.Cache, service *Service) *StandardHandler {
	return &StandardHandler{docCache: docCache, service: service}
}

// WithOrchestrator attaches the adaptive retrieval orchestrator. When set,
// a request naming document_ids is routed through query-analysis-driven
// strategy selection instead of the flat per-document truncation; when nil,
// Process keeps the simple extraction behavior.
func (h *StandardHandler) WithOrchestrator(o *retrieval.Orchestrator) *StandardHandler {
	h.orchestrator = o
	return h
}

// CanHandle always returns true; Standard is the chain's terminal handler.
func (h *StandardHandler) CanHandle(ctx context.Context, cctx models.ChatContext) bool {
	return true
}

// Name identifies this handler for logging/metrics.
func (h *StandardHandler) Name() string { return "standard" }

// BuildDocumentContext builds the RAG context string a chat turn folds
// into the user message, identical to what Process does internally —
// exported so the SSE stream endpoint (which bypasses the Chain) can
// reuse the same document-retrieval behavior.
func (h *StandardHandler) BuildDocumentContext(ctx context.Context, cctx models.ChatContext) (string, error) {
	if len(cctx.DocumentIDs) == 0 {
		return "", nil
	}
	docs, err := h.docCache.GetDocumentTextFromCache(ctx, cctx.DocumentIDs, cctx.UserID)
	if err != nil {
		return "", err
	}
	if h.orchestrator != nil {
		return h.retrieveAdaptive(ctx, cctx, docs), nil
	}
	extracted := ragcache.ExtractContentForRAG(docs, maxCharsPerDoc, maxTotalChars, maxDocs)
	return extracted.Combined, nil
}

// Process implements SimpleChatStrategy (§4.5):
//  1. build a document-context string when document_ids is non-empty,
//  2. call the chat service's ProcessWithSaptiva,
//  3. sanitize is done inside Service; Standard just forwards the result.
func (h *StandardHandler) Process(ctx context.Context, cctx models.ChatContext) (models.ChatProcessingResult, error) {
	documentContext, err := h.BuildDocumentContext(ctx, cctx)
	if err != nil {
		return models.ChatProcessingResult{}, err
	}

	result, err := h.service.ProcessWithSaptiva(
		ctx,
		cctx.Message,
		cctx.Model,
		cctx.Channel,
		cctx.UserID,
		cctx.ChatID,
		cctx.ToolsEnabled,
		cctx.PriorContext,
		documentContext,
		cctx.Stream,
	)
	if err != nil {
		return models.ChatProcessingResult{}, err
	}
	result.Metadata.ChatID = cctx.ChatID
	return result, nil
}

// retrieveAdaptive runs the query through the orchestrator's strategy
// selection and folds the returned segments into a document-context string,
// highest score first, within the same character budget the flat
// extraction path uses.
func (h *StandardHandler) retrieveAdaptive(ctx context.Context, cctx models.ChatContext, docs []models.CachedDocument) string {
	refs := make([]retrieval.DocumentRef, 0, len(docs))
	for _, doc := range docs {
		refs = append(refs, retrieval.DocumentRef{ID: doc.FileID, Filename: doc.Filename})
	}

	qctx := models.QueryContext{
		ConversationID:    cctx.ChatID,
		DocumentsCount:    len(refs),
		HasRecentEntities: len(cctx.PriorContext) > 0,
	}

	result, err := h.orchestrator.Retrieve(ctx, cctx.Message, cctx.ChatID, refs, maxDocs*4, &qctx)
	if err != nil {
		return ""
	}

	segments := result.Segments
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Score > segments[j].Score })

	var b strings.Builder
	total := 0
	for _, seg := range segments {
		text := seg.Text
		if len(text) > maxCharsPerDoc {
			text = text[:maxCharsPerDoc]
		}
		if total+len(text) > maxTotalChars {
			break
		}
		fmt.Fprintf(&b, "[Archivo: %s]\n%s\n\n", seg.DocName, text)
		total += len(text)
	}
	return strings.TrimSpace(b.String())
}
