package toolpolicy

import (
	"bytes"
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolSchema is a compiled JSON schema bound to a tool name, ready to
// validate that tool's call arguments before execution.
type ToolSchema struct {
	Name   string
	schema *jsonschema.Schema
}

// CompileToolSchema compiles a raw JSON-schema document (as produced
// by reflection or hand-authored) for a tool.
func CompileToolSchema(name string, rawSchema map[string]any) (*ToolSchema, error) {
	raw, err := json.Marshal(rawSchema)
	if err != nil {
		return nil, fmt.Errorf("toolpolicy: marshal schema for %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	resourceURL := "tool://" + name
	if err := compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("toolpolicy: add schema resource for %s: %w", name, err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("toolpolicy: compile schema for %s: %w", name, err)
	}
	return &ToolSchema{Name: name, schema: compiled}, nil
}

// ValidationError reports a tool-call argument validation failure as a
// tool-execution error, never a client-layer error (per the agent
// loop's contract).
type ValidationError struct {
	Tool    string
	Details string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("toolpolicy: invalid arguments for tool %q: %s", e.Tool, e.Details)
}

// Validate checks rawArguments (a JSON object) against the compiled
// schema.
func (s *ToolSchema) Validate(rawArguments json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(rawArguments, &doc); err != nil {
		return &ValidationError{Tool: s.Name, Details: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := s.schema.Validate(doc); err != nil {
		return &ValidationError{Tool: s.Name, Details: err.Error()}
	}
	return nil
}

// ReflectSchema builds a tool's JSON schema document from a Go struct
// describing its arguments, so callers can register a tool's schema
// from a typed Go value instead of hand-writing JSON.
func ReflectSchema(argumentsValue any) (map[string]any, error) {
	reflector := &invopop.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(argumentsValue)

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("toolpolicy: marshal reflected schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("toolpolicy: decode reflected schema: %w", err)
	}
	return out, nil
}
