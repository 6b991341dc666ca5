package retrieval

import (
	"context"
	"log/slog"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// QueryAnalyzer classifies a query's intent and complexity, optionally
// expanding it. Treated as an injected capability (heuristic or LLM-backed).
type QueryAnalyzer interface {
	AnalyzeQuery(ctx context.Context, query string, qctx models.QueryContext) (models.QueryAnalysis, error)
}

type registryEntry struct {
	intent     models.QueryIntent
	complexity models.QueryComplexity
	strategy   Strategy
}

// Orchestrator selects and executes a retrieval Strategy based on query
// analysis, with fallback post-processing for empty results.
type Orchestrator struct {
	analyzer QueryAnalyzer
	registry []registryEntry
	fallback Strategy

	overviewFallback func() Strategy
	semanticFallback func(threshold float64) Strategy

	logger *slog.Logger
}

// NewOrchestrator wires the strategy registry exactly as the reference
// orchestrator does: one entry per (intent, complexity) pair it recognizes,
// in the same precedence order, plus a semantic-search fallback.
func NewOrchestrator(analyzer QueryAnalyzer, chunkSource ChunkSource, embedder Embedder, searcher VectorSearcher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	newOverview := func(chunksPerDoc int) Strategy {
		return NewOverviewStrategy(chunksPerDoc, chunkSource, logger)
	}
	newSemantic := func(threshold float64) Strategy {
		return NewSemanticSearchStrategy(threshold, embedder, searcher, logger)
	}

	o := &Orchestrator{
		analyzer: analyzer,
		registry: []registryEntry{
			{models.IntentOverview, models.ComplexityVague, newOverview(3)},
			{models.IntentOverview, models.ComplexitySimple, newOverview(2)},

			{models.IntentDefinitional, models.ComplexitySimple, newSemantic(0.4)},
			{models.IntentDefinitional, models.ComplexityComplex, newSemantic(0.3)},

			{models.IntentSpecificFact, models.ComplexitySimple, newSemantic(0.35)},
			{models.IntentSpecificFact, models.ComplexityComplex, newSemantic(0.25)},
			{models.IntentSpecificFact, models.ComplexityVague, newSemantic(0.2)},

			{models.IntentQuantitative, models.ComplexitySimple, newSemantic(0.4)},
			{models.IntentQuantitative, models.ComplexityComplex, newSemantic(0.3)},

			{models.IntentProcedural, models.ComplexitySimple, newSemantic(0.35)},
			{models.IntentProcedural, models.ComplexityComplex, newSemantic(0.25)},

			{models.IntentAnalytical, models.ComplexitySimple, newSemantic(0.3)},
			{models.IntentAnalytical, models.ComplexityComplex, newSemantic(0.2)},

			{models.IntentComparison, models.ComplexityComplex, newSemantic(0.25)},
		},
		fallback:         newSemantic(0.3),
		overviewFallback: func() Strategy { return newOverview(2) },
		semanticFallback: newSemantic,
		logger:           logger,
	}
	o.logger.Info("retrieval orchestrator initialized", "registered_strategies", len(o.registry))
	return o
}

// Retrieve analyzes the query, selects and executes a strategy, applies
// fallback post-processing on empty results, and returns the full result.
func (o *Orchestrator) Retrieve(ctx context.Context, query, sessionID string, documents []DocumentRef, maxSegments int, qctx *models.QueryContext) (models.RetrievalResult, error) {
	if qctx == nil {
		qctx = &models.QueryContext{
			ConversationID: sessionID,
			DocumentsCount: len(documents),
		}
	}

	analysis, err := o.analyzer.AnalyzeQuery(ctx, query, *qctx)
	if err != nil {
		return models.RetrievalResult{}, err
	}

	strategy := o.selectStrategy(analysis.Intent, analysis.Complexity)
	o.logger.Info("strategy selected", "strategy", strategy.Name(), "intent", analysis.Intent, "complexity", analysis.Complexity)

	req := Request{
		Query:       analysis.ExpandedQuery,
		SessionID:   sessionID,
		Documents:   documents,
		MaxSegments: maxSegments,
	}
	segments := strategy.Retrieve(ctx, req)

	segments = o.postProcess(ctx, segments, analysis, query, sessionID, documents, maxSegments)

	result := models.RetrievalResult{
		Segments:     segments,
		StrategyUsed: strategy.Name(),
		Analysis:     analysis,
		Confidence:   analysis.Confidence,
		Metadata: map[string]any{
			"intent":         string(analysis.Intent),
			"complexity":     string(analysis.Complexity),
			"query_expanded": analysis.ExpandedQuery != analysis.OriginalQuery,
			"reasoning":      analysis.Reasoning,
		},
	}
	o.logger.Info("adaptive retrieval complete",
		"segments_count", len(segments), "max_score", result.MaxScore(), "avg_score", result.AvgScore(),
		"strategy", result.StrategyUsed, "confidence", result.Confidence)
	return result, nil
}

// selectStrategy tries an exact (intent, complexity) match, then the first
// registry entry matching intent alone (registry order = precedence), then
// the semantic-search fallback.
func (o *Orchestrator) selectStrategy(intent models.QueryIntent, complexity models.QueryComplexity) Strategy {
	for _, e := range o.registry {
		if e.intent == intent && e.complexity == complexity {
			return e.strategy
		}
	}
	for _, e := range o.registry {
		if e.intent == intent {
			return e.strategy
		}
	}
	return o.fallback
}

// postProcess applies the two named fallbacks: an overview query that
// returned nothing retries with fewer chunks per doc; any other query that
// returned nothing retries semantic search with threshold 0 (accept
// anything).
func (o *Orchestrator) postProcess(ctx context.Context, segments []models.Segment, analysis models.QueryAnalysis, query, sessionID string, documents []DocumentRef, maxSegments int) []models.Segment {
	if len(segments) > 0 {
		return segments
	}

	if analysis.Intent == models.IntentOverview {
		o.logger.Warn("overview query returned 0 segments, applying fallback")
		return o.overviewFallback().Retrieve(ctx, Request{
			Query: query, SessionID: sessionID, Documents: documents, MaxSegments: maxSegments,
		})
	}

	o.logger.Warn("specific query returned 0 segments, applying lower threshold fallback", "original_intent", analysis.Intent)
	zero := 0.0
	return o.semanticFallback(0.0).Retrieve(ctx, Request{
		Query: analysis.ExpandedQuery, SessionID: sessionID, Documents: documents,
		MaxSegments: maxSegments, ThresholdOverride: &zero,
	})
}
