package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/saptiva-copilot/gateway/internal/ragcache"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// HeuristicQueryAnalyzer classifies intent/complexity from surface features
// of the query text rather than a model call — a deliberately cheap default
// for the QueryAnalyzer injected capability, swappable for an LLM-backed one
// without the orchestrator noticing.
type HeuristicQueryAnalyzer struct{}

// NewHeuristicQueryAnalyzer builds a stateless HeuristicQueryAnalyzer.
func NewHeuristicQueryAnalyzer() *HeuristicQueryAnalyzer { return &HeuristicQueryAnalyzer{} }

var intentKeywords = []struct {
	intent   models.QueryIntent
	keywords []string
}{
	{models.IntentDefinitional, []string{"what is", "define", "qué es", "definición"}},
	{models.IntentQuantitative, []string{"how many", "how much", "cuánto", "total", "sum", "average"}},
	{models.IntentProcedural, []string{"how do i", "how to", "cómo", "steps", "pasos"}},
	{models.IntentComparison, []string{"versus", "vs", "compare", "comparar", "difference between"}},
	{models.IntentAnalytical, []string{"why", "por qué", "analyze", "analiza", "explain"}},
	{models.IntentSpecificFact, []string{"when", "who", "cuándo", "quién", "where", "dónde"}},
}

// AnalyzeQuery implements QueryAnalyzer (§4.3). Intent falls back to
// "overview" for a short, keyword-free query; complexity grows with word
// count and conversational signal.
func (HeuristicQueryAnalyzer) AnalyzeQuery(_ context.Context, query string, qctx models.QueryContext) (models.QueryAnalysis, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	words := strings.Fields(lower)

	intent := models.IntentOverview
	confidence := 0.4
	for _, candidate := range intentKeywords {
		for _, kw := range candidate.keywords {
			if strings.Contains(lower, kw) {
				intent = candidate.intent
				confidence = 0.75
				break
			}
		}
		if confidence == 0.75 {
			break
		}
	}

	complexity := models.ComplexitySimple
	switch {
	case len(words) == 0:
		complexity = models.ComplexityVague
	case len(words) > 15 || qctx.HasRecentEntities:
		complexity = models.ComplexityComplex
	case len(words) < 4:
		complexity = models.ComplexityVague
	}

	return models.QueryAnalysis{
		Intent:        intent,
		Complexity:    complexity,
		OriginalQuery: query,
		ExpandedQuery: query,
		Confidence:    confidence,
		Reasoning:     fmt.Sprintf("matched %d words, intent=%s, complexity=%s", len(words), intent, complexity),
	}, nil
}

const chunkSize = 1200

// CachedChunkSource implements ChunkSource by splitting a document cache's
// extracted text into fixed-size chunks in storage order. Grounded on the
// Document Context Cache's extraction lookup (internal/ragcache) rather than
// a dedicated chunk store, since the gateway's only text-extraction
// collaborator is the same file-extraction service the cache already fronts.
type CachedChunkSource struct {
	store ragcache.Store
}

// NewCachedChunkSource wraps the document cache's backing Store.
func NewCachedChunkSource(store ragcache.Store) *CachedChunkSource {
	return &CachedChunkSource{store: store}
}

// FirstChunks returns the first limit chunks of documentID's cached text.
// sessionID is accepted for interface symmetry with a session-scoped chunk
// store; this cache keys only by document id, ownership having already been
// checked when document_ids entered the chat context.
func (s *CachedChunkSource) FirstChunks(ctx context.Context, sessionID, documentID string, limit int) ([]models.Segment, error) {
	doc, found, err := s.store.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("retrieval: load chunks for %s: %w", documentID, err)
	}
	if !found {
		return nil, nil
	}

	var out []models.Segment
	text := doc.Text
	for i := 0; i < len(text) && len(out) < limit; i += chunkSize {
		end := i + chunkSize
		if end > len(text) {
			end = len(text)
		}
		out = append(out, models.Segment{
			DocID:   documentID,
			DocName: doc.Filename,
			ChunkID: fmt.Sprintf("%s:%d", documentID, i/chunkSize),
			Text:    text[i:end],
			Score:   1.0,
		})
	}
	return out, nil
}

// HTTPEmbedder calls an external embedding model's encode endpoint,
// mirroring the reference agent's remote-embedder HTTP shape
// (internal/tools/memorysearch/embeddings.go in the retrieved corpus) but
// without its local disk cache, since results here are transient
// per-request query vectors rather than durable memory entries.
type HTTPEmbedder struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPEmbedder wires an embedder to baseURL's /encode endpoint.
func NewHTTPEmbedder(baseURL, apiKey string, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEmbedder{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

// Embed posts text to the encode endpoint and returns its vector.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/encode", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed request: %w", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Vector []float32 `json:"vector"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("retrieval: decode embedding response: %w", err)
	}
	return decoded.Vector, nil
}

// HTTPVectorSearcher calls an external vector index's search endpoint,
// restricted to a session via the request body.
type HTTPVectorSearcher struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPVectorSearcher wires a VectorSearcher to baseURL's /search endpoint.
func NewHTTPVectorSearcher(baseURL, apiKey string, timeout time.Duration) *HTTPVectorSearcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPVectorSearcher{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

// Search posts params to the vector index's search endpoint.
func (s *HTTPVectorSearcher) Search(ctx context.Context, params SearchParams) ([]SearchHit, error) {
	body, err := json.Marshal(map[string]any{
		"session_id":      params.SessionID,
		"vector":          params.Vector,
		"top_k":           params.TopK,
		"score_threshold": params.ScoreThreshold,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search request: %w", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Hits []SearchHit `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("retrieval: decode search response: %w", err)
	}
	return decoded.Hits, nil
}
