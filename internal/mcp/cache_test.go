package mcp

import (
	"context"
	"testing"
)

// RedisResultCache itself is concretely typed against *redis.Client and is
// exercised through integration tests against a real Redis instance rather
// than here; WarmupToolCache's document-fanout and per-document failure
// handling is still unit-testable against the in-memory ResultCache fake
// used for the dispatcher tests.
func TestWarmupToolCachePopulatesEntriesAndReportsFailures(t *testing.T) {
	rc := newMemResultCache()
	d := newTestDispatcher(t, "audit_file", nil, rc)
	scopes := map[string]struct{}{ScopeToolsAudit: {}}

	failures := WarmupToolCache(context.Background(), d, "audit_file", []string{"doc-1", "doc-2"}, "user-1", scopes)
	if len(failures) != 0 {
		t.Fatalf("expected no failures warming up valid documents, got %+v", failures)
	}
	if rc.sets != 2 {
		t.Fatalf("expected one cache write per document, got %d", rc.sets)
	}
}

func TestWarmupToolCacheReportsPerDocumentFailures(t *testing.T) {
	rc := newMemResultCache()
	d := newTestDispatcher(t, "audit_file", nil, rc)
	scopes := map[string]struct{}{}

	failures := WarmupToolCache(context.Background(), d, "audit_file", []string{"doc-1"}, "user-1", scopes)
	if len(failures) != 1 {
		t.Fatalf("expected the missing-scope invocation to be reported as a failure, got %+v", failures)
	}
}
