// Package ragcache implements the Document Context Cache: ownership-checked
// retrieval of previously extracted document text, and its concatenation
// into a budget-bounded RAG context string.
package ragcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// Store is the backing key/value lookup for previously extracted document
// text, keyed by file id. Implemented against Redis per the cache key
// layout `<plugin-prefix>:extraction:<file_id>`.
type Store interface {
	Get(ctx context.Context, fileID string) (models.CachedDocument, bool, error)
}

const extractionKeyPrefix = "files:extraction:"

// RedisStore is the Store implementation backed by the shared Redis cache.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, fileID string) (models.CachedDocument, bool, error) {
	raw, err := s.client.Get(ctx, extractionKeyPrefix+fileID).Result()
	if err == redis.Nil {
		return models.CachedDocument{}, false, nil
	}
	if err != nil {
		return models.CachedDocument{}, false, fmt.Errorf("ragcache: get %s: %w", fileID, err)
	}
	var doc models.CachedDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return models.CachedDocument{}, false, fmt.Errorf("ragcache: decode %s: %w", fileID, err)
	}
	return doc, true, nil
}

// Cache is the Document Context Cache component.
type Cache struct {
	store  Store
	logger *slog.Logger
}

// New builds a Cache over the given Store.
func New(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, logger: logger}
}

// GetDocumentTextFromCache looks up extracted text for each requested file
// id, in request order, silently dropping (with a warning log) any entry
// not owned by userID or not present in the cache.
func (c *Cache) GetDocumentTextFromCache(ctx context.Context, documentIDs []string, userID string) ([]models.CachedDocument, error) {
	out := make([]models.CachedDocument, 0, len(documentIDs))
	for _, id := range documentIDs {
		doc, found, err := c.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			c.logger.Warn("document not found in cache", "file_id", id)
			continue
		}
		if doc.OwnerID != userID {
			c.logger.Warn("document not owned by requesting user, dropping", "file_id", id, "user_id", userID)
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// ExtractResult is the output of ExtractContentForRAG.
type ExtractResult struct {
	Combined      string
	Warnings      []string
	TruncatedDocs []string
}

// ExtractContentForRAG concatenates up to maxDocs documents, truncating each
// to maxCharsPerDoc and the whole result to maxTotalChars, prefixing each
// document's content with "[Archivo: <name>]\n".
func ExtractContentForRAG(docs []models.CachedDocument, maxCharsPerDoc, maxTotalChars, maxDocs int) ExtractResult {
	result := ExtractResult{}

	if len(docs) == 0 {
		return result
	}
	if len(docs) > maxDocs {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("only the first %d of %d documents were included", maxDocs, len(docs)))
		docs = docs[:maxDocs]
	}

	var b strings.Builder
	remaining := maxTotalChars
	for _, doc := range docs {
		if remaining <= 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("global character budget exhausted before %s", doc.Filename))
			break
		}

		text := doc.Text
		truncated := false
		if len(text) > maxCharsPerDoc {
			text = text[:maxCharsPerDoc]
			truncated = true
		}
		if len(text) > remaining {
			text = text[:remaining]
			truncated = true
		}
		if truncated {
			result.TruncatedDocs = append(result.TruncatedDocs, doc.Filename)
		}

		b.WriteString(fmt.Sprintf("[Archivo: %s]\n", doc.Filename))
		b.WriteString(text)
		b.WriteString("\n")
		remaining -= len(text)
	}

	result.Combined = b.String()
	return result
}
