package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/tau/internal/llmclient"
	"github.com/haasonsaas/tau/internal/toolpolicy"
)

// ToolExecutor runs one tool call. It must honor ctx cancellation,
// returning promptly when ctx is done. A non-nil error is a
// tool-execution failure (surfaced to the model as an error tool
// result), not a client-layer error.
type ToolExecutor func(ctx context.Context, rawArguments json.RawMessage) (result string, err error)

// Tool is a registered tool: its name, JSON-schema argument
// definition, and executor.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Execute     ToolExecutor

	compiled *toolpolicy.ToolSchema
}

// Registry holds the loop's registered tools, keyed by unique name.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// ErrDuplicateTool is returned by Register when a tool name is already
// registered (tool names must be unique, per the loop's contract).
type ErrDuplicateTool struct{ Name string }

func (e *ErrDuplicateTool) Error() string {
	return fmt.Sprintf("agentloop: tool %q already registered", e.Name)
}

// Register adds a tool, compiling its schema up front so validation
// failures surface at registration time rather than mid-run.
func (r *Registry) Register(tool Tool) error {
	if _, exists := r.tools[tool.Name]; exists {
		return &ErrDuplicateTool{Name: tool.Name}
	}
	compiled, err := toolpolicy.CompileToolSchema(tool.Name, tool.Schema)
	if err != nil {
		return fmt.Errorf("agentloop: register tool %q: %w", tool.Name, err)
	}
	tool.compiled = compiled
	r.tools[tool.Name] = &tool
	return nil
}

func (r *Registry) get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the registered tools in llmclient.ToolDefinition
// form, for inclusion in provider requests.
func (r *Registry) Definitions() []llmclient.ToolDefinition {
	defs := make([]llmclient.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llmclient.ToolDefinition{Name: t.Name, Description: t.Description, Schema: t.Schema})
	}
	return defs
}
