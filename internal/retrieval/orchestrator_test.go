package retrieval

import (
	"context"
	"testing"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

type fakeAnalyzer struct {
	analysis models.QueryAnalysis
}

func (f fakeAnalyzer) AnalyzeQuery(ctx context.Context, query string, qctx models.QueryContext) (models.QueryAnalysis, error) {
	a := f.analysis
	a.OriginalQuery = query
	if a.ExpandedQuery == "" {
		a.ExpandedQuery = query
	}
	return a, nil
}

type fakeChunkSource struct {
	chunks map[string][]models.Segment
}

func (f fakeChunkSource) FirstChunks(ctx context.Context, sessionID, documentID string, limit int) ([]models.Segment, error) {
	chunks := f.chunks[documentID]
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeSearcher struct {
	hits []SearchHit
}

func (f fakeSearcher) Search(ctx context.Context, params SearchParams) ([]SearchHit, error) {
	return f.hits, nil
}

func TestOrchestratorOverviewFlow(t *testing.T) {
	analyzer := fakeAnalyzer{analysis: models.QueryAnalysis{
		Intent: models.IntentOverview, Complexity: models.ComplexityVague, Confidence: 0.9,
	}}
	chunks := fakeChunkSource{chunks: map[string][]models.Segment{
		"doc-1": {{ChunkID: "c1", Text: "intro"}, {ChunkID: "c2", Text: "more"}},
	}}
	o := NewOrchestrator(analyzer, chunks, fakeEmbedder{}, fakeSearcher{}, nil)

	result, err := o.Retrieve(context.Background(), "¿de qué trata?", "session-1",
		[]DocumentRef{{ID: "doc-1", Filename: "a.pdf"}}, 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StrategyUsed != "OverviewStrategy" {
		t.Fatalf("expected OverviewStrategy, got %s", result.StrategyUsed)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(result.Segments))
	}
	for _, s := range result.Segments {
		if s.Score != 1.0 {
			t.Fatalf("expected uniform score 1.0, got %f", s.Score)
		}
	}
}

func TestOrchestratorOverviewFallbackOnEmpty(t *testing.T) {
	analyzer := fakeAnalyzer{analysis: models.QueryAnalysis{
		Intent: models.IntentOverview, Complexity: models.ComplexityVague,
	}}
	chunks := fakeChunkSource{chunks: map[string][]models.Segment{}}
	o := NewOrchestrator(analyzer, chunks, fakeEmbedder{}, fakeSearcher{}, nil)

	result, err := o.Retrieve(context.Background(), "¿qué es esto?", "session-1",
		[]DocumentRef{{ID: "doc-1", Filename: "a.pdf"}}, 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Segments) != 0 {
		t.Fatalf("expected fallback to still return 0 segments from an empty source, got %d", len(result.Segments))
	}
}

func TestOrchestratorSemanticSearchSelection(t *testing.T) {
	analyzer := fakeAnalyzer{analysis: models.QueryAnalysis{
		Intent: models.IntentSpecificFact, Complexity: models.ComplexitySimple, Confidence: 0.8,
	}}
	searcher := fakeSearcher{hits: []SearchHit{
		{DocumentID: "doc-1", ChunkID: "c1", Text: "the price is $10", Score: 0.9},
	}}
	o := NewOrchestrator(analyzer, fakeChunkSource{}, fakeEmbedder{}, searcher, nil)

	result, err := o.Retrieve(context.Background(), "¿cuál es el precio?", "session-1",
		[]DocumentRef{{ID: "doc-1", Filename: "a.pdf"}}, 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StrategyUsed != "SemanticSearchStrategy" {
		t.Fatalf("expected SemanticSearchStrategy, got %s", result.StrategyUsed)
	}
	if len(result.Segments) != 1 || result.Segments[0].DocName != "a.pdf" {
		t.Fatalf("expected 1 segment with resolved doc name, got %+v", result.Segments)
	}
}

func TestOrchestratorSemanticFallbackOnEmptyRetriesWithZeroThreshold(t *testing.T) {
	analyzer := fakeAnalyzer{analysis: models.QueryAnalysis{
		Intent: models.IntentSpecificFact, Complexity: models.ComplexitySimple,
	}}
	o := NewOrchestrator(analyzer, fakeChunkSource{}, fakeEmbedder{}, fakeSearcher{hits: nil}, nil)

	result, err := o.Retrieve(context.Background(), "¿cuál es el precio?", "session-1",
		[]DocumentRef{{ID: "doc-1", Filename: "a.pdf"}}, 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Segments) != 0 {
		t.Fatalf("expected 0 segments since fake searcher always returns none")
	}
}

func TestSelectStrategyFallsBackToIntentOnlyMatch(t *testing.T) {
	analyzer := fakeAnalyzer{}
	o := NewOrchestrator(analyzer, fakeChunkSource{}, fakeEmbedder{}, fakeSearcher{}, nil)

	// Comparison is only registered for Complex; Simple should still match
	// via intent-only fallback rather than the global SemanticSearch(0.3).
	s := o.selectStrategy(models.IntentComparison, models.ComplexitySimple)
	if s.Name() != "SemanticSearchStrategy" {
		t.Fatalf("expected a SemanticSearchStrategy via intent-only match, got %s", s.Name())
	}
}

func TestAdaptiveThresholdShortQueryLowered(t *testing.T) {
	strat := NewSemanticSearchStrategy(0.3, fakeEmbedder{}, fakeSearcher{}, nil)
	got := strat.calculateAdaptiveThreshold("precio?", 1, nil)
	if got != 0.15 {
		t.Fatalf("expected threshold 0.15 for a short query, got %f", got)
	}
}

func TestAdaptiveThresholdOverrideWins(t *testing.T) {
	strat := NewSemanticSearchStrategy(0.3, fakeEmbedder{}, fakeSearcher{}, nil)
	override := 0.99
	got := strat.calculateAdaptiveThreshold("a fairly long query with many words in it totally", 10, &override)
	if got != 0.99 {
		t.Fatalf("expected override to win, got %f", got)
	}
}
