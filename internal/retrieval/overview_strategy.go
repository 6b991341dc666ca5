package retrieval

import (
	"context"
	"log/slog"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// OverviewStrategy returns the first N chunks of each document, unranked
// (score 1.0), for vague/general "what is this document about" queries.
type OverviewStrategy struct {
	ChunksPerDoc int
	Source       ChunkSource
	logger       *slog.Logger
}

// NewOverviewStrategy builds an OverviewStrategy retrieving chunksPerDoc
// chunks per document from source.
func NewOverviewStrategy(chunksPerDoc int, source ChunkSource, logger *slog.Logger) *OverviewStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverviewStrategy{ChunksPerDoc: chunksPerDoc, Source: source, logger: logger}
}

func (s *OverviewStrategy) Name() string { return "OverviewStrategy" }

func (s *OverviewStrategy) Retrieve(ctx context.Context, req Request) []models.Segment {
	var all []models.Segment
	for _, doc := range req.Documents {
		chunks, err := s.Source.FirstChunks(ctx, req.SessionID, doc.ID, s.ChunksPerDoc)
		if err != nil {
			s.logger.Error("failed to retrieve overview chunks for document",
				"doc_id", doc.ID, "error", err)
			continue
		}
		for _, c := range chunks {
			c.DocID = doc.ID
			c.DocName = doc.Filename
			c.Score = 1.0
			all = append(all, c)
		}
	}
	if len(all) > req.MaxSegments {
		all = all[:req.MaxSegments]
	}
	return all
}
