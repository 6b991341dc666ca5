package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

type stubTool struct {
	spec   models.ToolSpec
	limits models.ToolLimits
}

func (s stubTool) Spec() models.ToolSpec    { return s.spec }
func (s stubTool) Limits() models.ToolLimits { return s.limits }
func (s stubTool) Invoke(ctx context.Context, payload json.RawMessage, ictx models.InvokeContext) (json.RawMessage, error) {
	return json.RawMessage(`{"ok":true}`), nil
}

func newStub(name, version string) stubTool {
	return stubTool{
		spec:   models.ToolSpec{Name: name, Version: version},
		limits: models.DefaultToolLimits(),
	}
}

func TestRegistryResolveLatestWhenVersionOmitted(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(newStub("tool_x", "1.0.0"))
	r.Register(newStub("tool_x", "1.2.0"))

	tool, err := r.Resolve("tool_x", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tool.Spec().Version != "1.2.0" {
		t.Fatalf("expected latest registered version 1.2.0, got %s", tool.Spec().Version)
	}
}

func TestRegistryResolveCaretConstraint(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(newStub("tool_x", "1.0.0"))
	r.Register(newStub("tool_x", "1.2.0"))

	tool, err := r.Resolve("tool_x", "^1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tool.Spec().Version != "1.2.0" {
		t.Fatalf("expected ^1.0.0 to resolve to highest satisfying 1.2.0, got %s", tool.Spec().Version)
	}
}

func TestRegistryResolveExactVersionRequiresPresence(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(newStub("tool_x", "1.0.0"))
	r.Register(newStub("tool_x", "1.2.0"))

	_, err := r.Resolve("tool_x", "2.0.0")
	if err == nil {
		t.Fatalf("expected an error resolving an absent exact version")
	}
	var notFound *ErrToolNotFound
	if !asToolNotFound(err, &notFound) {
		t.Fatalf("expected ErrToolNotFound, got %T: %v", err, err)
	}
	if len(notFound.AvailableVersions) != 2 {
		t.Fatalf("expected available_versions to list both registered versions, got %v", notFound.AvailableVersions)
	}
}

func TestRegistryResolveUnknownToolFails(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Resolve("does_not_exist", ""); err == nil {
		t.Fatalf("expected an error resolving an unregistered tool")
	}
}

func asToolNotFound(err error, target **ErrToolNotFound) bool {
	if e, ok := err.(*ErrToolNotFound); ok {
		*target = e
		return true
	}
	return false
}
