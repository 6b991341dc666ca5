package mcp

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Payload structure limits, matching the reference implementation's
// PayloadValidator.
const (
	MaxPayloadSizeKB  = 1024
	MaxStringLength   = 10000
	MaxArrayLength    = 1000
	MaxNestingDepth   = 10
	MaxKeyLength      = 100
)

// ValidatePayloadSize checks the serialized size of payload against maxKB
// (defaulting to MaxPayloadSizeKB when maxKB <= 0).
func ValidatePayloadSize(payload json.RawMessage, maxKB int) error {
	if maxKB <= 0 {
		maxKB = MaxPayloadSizeKB
	}
	sizeKB := float64(len(payload)) / 1024
	if sizeKB > float64(maxKB) {
		return fmt.Errorf("payload too large: %.2fKB exceeds limit of %dKB", sizeKB, maxKB)
	}
	return nil
}

// ValidatePayloadStructure enforces nesting depth, key length, string
// length, and array length limits on a decoded JSON payload.
func ValidatePayloadStructure(payload json.RawMessage) error {
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("payload is not a JSON object: %w", err)
	}
	return validateStructure(decoded, 0)
}

func validateStructure(obj map[string]any, depth int) error {
	if depth > MaxNestingDepth {
		return fmt.Errorf("payload nesting too deep (max: %d)", MaxNestingDepth)
	}
	for key, value := range obj {
		if len(key) > MaxKeyLength {
			return fmt.Errorf("key too long: %d chars (max: %d)", len(key), MaxKeyLength)
		}
		if err := validateValue(value, depth); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(value any, depth int) error {
	switch v := value.(type) {
	case string:
		if len(v) > MaxStringLength {
			return fmt.Errorf("string too long: %d chars (max: %d)", len(v), MaxStringLength)
		}
	case []any:
		if len(v) > MaxArrayLength {
			return fmt.Errorf("array too long: %d items (max: %d)", len(v), MaxArrayLength)
		}
		for _, item := range v {
			if nested, ok := item.(map[string]any); ok {
				if err := validateStructure(nested, depth+1); err != nil {
					return err
				}
			}
		}
	case map[string]any:
		if err := validateStructure(v, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// schemaCache memoizes compiled schemas by their raw JSON text so repeated
// invocations of the same tool don't recompile its input_schema every call.
var schemaCache sync.Map

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("tool.input_schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ValidateAgainstSchema checks payload against a tool's declared JSON Schema
// input_schema. An empty schema is treated as permissive (no declared
// shape to enforce).
func ValidateAgainstSchema(schema json.RawMessage, payload json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile input_schema: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("payload does not satisfy input_schema: %w", err)
	}
	return nil
}
