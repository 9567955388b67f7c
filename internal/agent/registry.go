package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxToolNameLength and MaxToolParamsSize bound the name/params a caller
// may hand Execute, matching the teacher registry's defensive limits.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20 // 10 MiB
)

// Registry holds the named tool set available to the agent loop. It owns
// its tools exclusively: the bus and session store never reach into it.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	ctx     Context
	logger  *slog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  logger.With("component", "tool_registry"),
	}
}

// Register adds or replaces tool under its own Name(). Registering the
// same name twice overwrites the prior registration.
func (r *Registry) Register(tool Tool) error {
	compiled, err := compileSchema(tool.Name(), tool.Schema())
	if err != nil {
		return fmt.Errorf("register %s: %w", tool.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.schemas[tool.Name()] = compiled
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	resource := "tool://" + name + ".json"
	if err := compiler.AddResource(resource, bytesReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(resource)
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Exists reports whether a tool is registered under name.
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Definitions returns the function-schema form of every tool, optionally
// filtering out unavailable ones.
func (r *Registry) Definitions(filterUnavailable bool) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		if filterUnavailable && !t.Available() {
			continue
		}
		defs = append(defs, ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}

// UpdateContext rebinds a new Context to every tool atomically (copy on
// update: readers always see either the old or the new value, never a
// partial one).
func (r *Registry) UpdateContext(ctx Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx
}

// CurrentContext returns the currently bound Context.
func (r *Registry) CurrentContext() Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctx
}

// Execute validates name/params, checks availability, validates params
// against the tool's compiled JSON Schema, times the call, and converts
// any returned error into a failed *ToolResult rather than letting it
// escape. The returned error is non-nil only for registry-level
// validation failures that never reach the tool at all (kept distinct
// so callers can still emit a ToolExecution event either way).
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) == 0 || len(name) > MaxToolNameLength {
		return &ToolResult{IsError: true, Content: "invalid tool name"}, NewToolError(name, KindToolUnknown, "invalid tool name", nil)
	}
	if len(params) > MaxToolParamsSize {
		return &ToolResult{IsError: true, Content: "tool parameters too large"}, NewToolError(name, KindToolFailed, "parameters exceed size limit", nil)
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		err := NewToolError(name, KindToolUnknown, "unknown tool", ErrToolNotFound)
		return &ToolResult{IsError: true, Content: err.Error()}, err
	}
	if !tool.Available() {
		err := NewToolError(name, KindToolUnavailable, "tool unavailable", nil)
		return &ToolResult{IsError: true, Content: err.Error()}, err
	}

	if schema != nil && len(params) > 0 {
		var v any
		if err := json.Unmarshal(params, &v); err == nil {
			if verr := schema.Validate(v); verr != nil {
				err := NewToolError(name, KindToolFailed, "invalid arguments: "+verr.Error(), verr)
				return &ToolResult{IsError: true, Content: err.Error()}, err
			}
		}
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		te := NewToolError(name, "", "execution failed", err)
		r.logger.Warn("tool execution failed", "tool", name, "error", err)
		return &ToolResult{IsError: true, Content: te.Error()}, te
	}
	if result == nil {
		result = &ToolResult{}
	}
	return result, nil
}
