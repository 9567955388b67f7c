package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pocketrb/core/internal/agent"
)

const maxWriteBytes = 10 << 20 // 10 MiB

// WriteTool implements write_file: overwrites (or creates) a file within
// the workspace, creating parent directories as needed.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write tool scoped to cfg.Workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *WriteTool) Name() string        { return "write_file" }
func (t *WriteTool) Description() string { return "Write content to a file in the workspace, creating parent directories as needed." }
func (t *WriteTool) Available() bool     { return true }

func (t *WriteTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Path to write (relative to workspace)."},
			"content": map[string]any{"type": "string", "description": "File contents to write."},
		},
		"required": []string{"path", "content"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err))
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required")
	}
	if len(input.Content) > maxWriteBytes {
		return toolError(fmt.Sprintf("content exceeds %d byte limit", maxWriteBytes))
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create directory: %v", err))
	}
	if err := os.WriteFile(resolved, []byte(input.Content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err))
	}

	return &agent.ToolResult{Content: fmt.Sprintf("wrote %d bytes to %s", len(input.Content), input.Path)}, nil
}
