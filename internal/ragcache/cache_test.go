package ragcache

import (
	"context"
	"testing"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

type fakeStore struct {
	docs map[string]models.CachedDocument
}

func (f *fakeStore) Get(ctx context.Context, fileID string) (models.CachedDocument, bool, error) {
	doc, ok := f.docs[fileID]
	return doc, ok, nil
}

func TestGetDocumentTextFromCacheDropsUnownedAndMissing(t *testing.T) {
	store := &fakeStore{docs: map[string]models.CachedDocument{
		"a": {FileID: "a", Filename: "a.pdf", Text: "alpha", OwnerID: "user-1"},
		"b": {FileID: "b", Filename: "b.pdf", Text: "beta", OwnerID: "user-2"},
	}}
	c := New(store, nil)

	docs, err := c.GetDocumentTextFromCache(context.Background(), []string{"a", "b", "missing"}, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].FileID != "a" {
		t.Fatalf("expected only doc 'a' to survive ownership + existence checks, got %+v", docs)
	}
}

func TestGetDocumentTextFromCachePreservesOrder(t *testing.T) {
	store := &fakeStore{docs: map[string]models.CachedDocument{
		"a": {FileID: "a", Filename: "a.pdf", Text: "alpha", OwnerID: "user-1"},
		"b": {FileID: "b", Filename: "b.pdf", Text: "beta", OwnerID: "user-1"},
	}}
	c := New(store, nil)

	docs, err := c.GetDocumentTextFromCache(context.Background(), []string{"b", "a"}, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 || docs[0].FileID != "b" || docs[1].FileID != "a" {
		t.Fatalf("expected request order preserved, got %+v", docs)
	}
}

func TestExtractContentForRAGRespectsPerDocBudget(t *testing.T) {
	docs := []models.CachedDocument{
		{Filename: "long.txt", Text: stringsRepeat("x", 100)},
	}
	result := ExtractContentForRAG(docs, 10, 10000, 3)
	if len(result.TruncatedDocs) != 1 || result.TruncatedDocs[0] != "long.txt" {
		t.Fatalf("expected long.txt flagged as truncated, got %+v", result.TruncatedDocs)
	}
}

func TestExtractContentForRAGRespectsGlobalBudget(t *testing.T) {
	docs := []models.CachedDocument{
		{Filename: "a.txt", Text: stringsRepeat("a", 8)},
		{Filename: "b.txt", Text: stringsRepeat("b", 8)},
	}
	result := ExtractContentForRAG(docs, 8000, 10, 3)
	if len(result.TruncatedDocs) == 0 && len(result.Warnings) == 0 {
		t.Fatalf("expected global budget to truncate or warn, got %+v", result)
	}
}

func TestExtractContentForRAGCapsDocCount(t *testing.T) {
	docs := []models.CachedDocument{
		{Filename: "a.txt", Text: "a"},
		{Filename: "b.txt", Text: "b"},
		{Filename: "c.txt", Text: "c"},
		{Filename: "d.txt", Text: "d"},
	}
	result := ExtractContentForRAG(docs, 8000, 16000, 3)
	if len(result.Warnings) == 0 {
		t.Fatalf("expected a warning about dropped documents")
	}
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if !containsSubstring(result.Combined, name) {
			t.Fatalf("expected %s to be included, got %q", name, result.Combined)
		}
	}
	if containsSubstring(result.Combined, "d.txt") {
		t.Fatalf("expected 4th document to be dropped, got %q", result.Combined)
	}
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func containsSubstring(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
