package toolpolicy

import (
	"encoding/json"
	"testing"
)

func TestCompileToolSchemaValidatesArguments(t *testing.T) {
	raw := map[string]any{
		"type":     "object",
		"required": []string{"path"},
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
		},
	}
	schema, err := CompileToolSchema("read_file", raw)
	if err != nil {
		t.Fatalf("CompileToolSchema: %v", err)
	}

	if err := schema.Validate(json.RawMessage(`{"path":"/tmp/x"}`)); err != nil {
		t.Fatalf("expected valid arguments to pass, got %v", err)
	}

	err = schema.Validate(json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected missing required field to fail validation")
	}
	var valErr *ValidationError
	if ok := errorsAsValidationError(err, &valErr); !ok {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
}

func TestCompileToolSchemaRejectsMalformedArguments(t *testing.T) {
	raw := map[string]any{"type": "object"}
	schema, err := CompileToolSchema("noop", raw)
	if err != nil {
		t.Fatalf("CompileToolSchema: %v", err)
	}
	if err := schema.Validate(json.RawMessage(`not json`)); err == nil {
		t.Fatal("expected malformed JSON to fail validation")
	}
}

func errorsAsValidationError(err error, target **ValidationError) bool {
	e, ok := err.(*ValidationError)
	if ok {
		*target = e
	}
	return ok
}
