package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// SemanticSearchStrategy ranks segments by cosine similarity against an
// adaptively-computed score threshold, for queries that need precise
// rather than broad retrieval.
type SemanticSearchStrategy struct {
	BaseThreshold float64
	Embedder      Embedder
	Searcher      VectorSearcher
	logger        *slog.Logger
}

// NewSemanticSearchStrategy builds a SemanticSearchStrategy.
func NewSemanticSearchStrategy(baseThreshold float64, embedder Embedder, searcher VectorSearcher, logger *slog.Logger) *SemanticSearchStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticSearchStrategy{BaseThreshold: baseThreshold, Embedder: embedder, Searcher: searcher, logger: logger}
}

func (s *SemanticSearchStrategy) Name() string { return "SemanticSearchStrategy" }

func (s *SemanticSearchStrategy) Retrieve(ctx context.Context, req Request) []models.Segment {
	threshold := s.calculateAdaptiveThreshold(req.Query, len(req.Documents), req.ThresholdOverride)

	vector, err := s.Embedder.Embed(ctx, req.Query)
	if err != nil {
		s.logger.Error("failed to embed query", "error", err)
		return nil
	}

	hits, err := s.Searcher.Search(ctx, SearchParams{
		SessionID:      req.SessionID,
		Vector:         vector,
		TopK:           req.MaxSegments * 2,
		ScoreThreshold: threshold,
	})
	if err != nil {
		s.logger.Error("semantic search failed", "session_id", req.SessionID, "error", err)
		return nil
	}

	if len(hits) > req.MaxSegments {
		hits = hits[:req.MaxSegments]
	}

	docNames := make(map[string]string, len(req.Documents))
	for _, doc := range req.Documents {
		docNames[doc.ID] = doc.Filename
	}

	segments := make([]models.Segment, 0, len(hits))
	for _, hit := range hits {
		name := docNames[hit.DocumentID]
		if name == "" {
			if fn, ok := hit.Metadata["filename"].(string); ok {
				name = fn
			} else {
				name = "Unknown"
			}
		}
		segments = append(segments, models.Segment{
			DocID:    hit.DocumentID,
			DocName:  name,
			ChunkID:  hit.ChunkID,
			Text:     hit.Text,
			Score:    hit.Score,
			Page:     hit.Page,
			Metadata: hit.Metadata,
		})
	}
	return segments
}

// calculateAdaptiveThreshold mirrors the reference orchestrator's threshold
// math: shorter queries are more permissive, longer queries and larger
// corpora are stricter, manual overrides win outright.
func (s *SemanticSearchStrategy) calculateAdaptiveThreshold(query string, documentCount int, override *float64) float64 {
	if override != nil {
		return clamp(*override, 0, 1)
	}

	threshold := s.BaseThreshold
	wordCount := len(strings.Fields(query))
	switch {
	case wordCount < 5:
		threshold -= 0.15
	case wordCount > 15:
		threshold += 0.05
	}
	if documentCount > 5 {
		threshold += 0.05
	}

	return clamp(threshold, 0, 0.8)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
