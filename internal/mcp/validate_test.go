package mcp

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidatePayloadSizeRejectsOversized(t *testing.T) {
	big := strings.Repeat("x", MaxPayloadSizeKB*1024+1)
	payload, _ := json.Marshal(map[string]string{"data": big})
	if err := ValidatePayloadSize(payload, 0); err == nil {
		t.Fatalf("expected oversized payload to be rejected")
	}
}

func TestValidatePayloadSizeAllowsUnderLimit(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"doc_id": "abc"})
	if err := ValidatePayloadSize(payload, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePayloadStructureRejectsDeepNesting(t *testing.T) {
	var nested any = "leaf"
	for i := 0; i <= MaxNestingDepth+1; i++ {
		nested = map[string]any{"child": nested}
	}
	payload, _ := json.Marshal(map[string]any{"root": nested})
	if err := ValidatePayloadStructure(payload); err == nil {
		t.Fatalf("expected deeply nested payload to be rejected")
	}
}

func TestValidatePayloadStructureRejectsLongString(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"text": strings.Repeat("a", MaxStringLength+1)})
	if err := ValidatePayloadStructure(payload); err == nil {
		t.Fatalf("expected over-long string to be rejected")
	}
}

func TestValidatePayloadStructureRejectsLongArray(t *testing.T) {
	items := make([]int, MaxArrayLength+1)
	payload, _ := json.Marshal(map[string]any{"items": items})
	if err := ValidatePayloadStructure(payload); err == nil {
		t.Fatalf("expected over-long array to be rejected")
	}
}

func TestValidatePayloadStructureRejectsLongKey(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{strings.Repeat("k", MaxKeyLength+1): "v"})
	if err := ValidatePayloadStructure(payload); err == nil {
		t.Fatalf("expected over-long key to be rejected")
	}
}

func TestValidatePayloadStructureAllowsOrdinaryPayload(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"doc_id": "abc123",
		"checks": []string{"grammar", "typography"},
		"nested": map[string]any{"threshold": 0.5},
	})
	if err := ValidatePayloadStructure(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAgainstSchemaRejectsMissingRequiredField(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["doc_id"],"properties":{"doc_id":{"type":"string"}}}`)
	payload := json.RawMessage(`{"checks":["grammar"]}`)
	if err := ValidateAgainstSchema(schema, payload); err == nil {
		t.Fatalf("expected schema validation to reject a payload missing doc_id")
	}
}

func TestValidateAgainstSchemaAcceptsConformingPayload(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["doc_id"],"properties":{"doc_id":{"type":"string"}}}`)
	payload := json.RawMessage(`{"doc_id":"abc"}`)
	if err := ValidateAgainstSchema(schema, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAgainstSchemaRejectsWrongType(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"mode":{"type":"string","enum":["dashboard","timeline"]}}}`)
	payload := json.RawMessage(`{"mode":"unknown"}`)
	if err := ValidateAgainstSchema(schema, payload); err == nil {
		t.Fatalf("expected enum mismatch to be rejected")
	}
}

func TestValidateAgainstSchemaEmptySchemaIsPermissive(t *testing.T) {
	if err := ValidateAgainstSchema(nil, json.RawMessage(`{"anything":true}`)); err != nil {
		t.Fatalf("expected an absent schema to allow any payload, got %v", err)
	}
}
