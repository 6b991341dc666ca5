// Package retrieval implements the adaptive Retrieval Orchestrator: query
// analysis, strategy selection, execution, and fallback post-processing.
package retrieval

import (
	"context"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// DocumentRef is the minimal document shape a Strategy needs: identity and
// a display name for segment metadata.
type DocumentRef struct {
	ID       string
	Filename string
}

// Request carries everything a Strategy needs to produce segments.
type Request struct {
	Query             string
	SessionID         string
	Documents         []DocumentRef
	MaxSegments       int
	ThresholdOverride *float64
}

// Strategy retrieves segments for a request. Implementations never return
// an error to the orchestrator for retrieval failures; they log and return
// an empty slice so the orchestrator's fallback logic can take over.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, req Request) []models.Segment
}

// ChunkSource returns the first N chunks stored for a (session, document)
// pair, in storage order, without any ranking.
type ChunkSource interface {
	FirstChunks(ctx context.Context, sessionID, documentID string, limit int) ([]models.Segment, error)
}

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchHit is a single vector-index match.
type SearchHit struct {
	DocumentID string
	ChunkID    string
	Text       string
	Score      float64
	Page       int
	Metadata   map[string]any
}

// SearchParams scopes a vector search to a session and similarity threshold.
type SearchParams struct {
	SessionID      string
	Vector         []float32
	TopK           int
	ScoreThreshold float64
}

// VectorSearcher performs a cosine-similarity search restricted to a session.
type VectorSearcher interface {
	Search(ctx context.Context, params SearchParams) ([]SearchHit, error)
}
