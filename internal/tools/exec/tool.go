package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pocketrb/core/internal/agent"
)

// Tool implements exec: runs a shell command under the workspace,
// classifying it into quick/standard/long-running before it ever spawns,
// and refusing dangerous patterns outright.
type Tool struct {
	manager *Manager
}

// NewTool creates an exec tool backed by manager.
func NewTool(manager *Manager) *Tool {
	return &Tool{manager: manager}
}

func (t *Tool) Name() string        { return "exec" }
func (t *Tool) Description() string { return "Run a shell command in the workspace. Long-running commands auto-detach to a background job; dangerous commands are refused." }
func (t *Tool) Available() bool     { return t.manager != nil }

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":         map[string]any{"type": "string", "description": "Shell command to execute."},
			"working_dir":     map[string]any{"type": "string", "description": "Working directory (relative to workspace)."},
			"timeout_seconds": map[string]any{"type": "integer", "description": "Explicit timeout in seconds (standard commands cap at 600).", "minimum": 0},
			"background":      map[string]any{"type": "boolean", "description": "Force the command to run detached as a background job."},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.manager == nil {
		return &agent.ToolResult{Content: "exec manager unavailable", IsError: true}, nil
	}
	var input struct {
		Command        string `json:"command"`
		WorkingDir     string `json:"working_dir"`
		TimeoutSeconds int    `json:"timeout_seconds"`
		Background     bool   `json:"background"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return &agent.ToolResult{Content: "command is required", IsError: true}, nil
	}

	explicitTimeout := time.Duration(input.TimeoutSeconds) * time.Second
	result, proc, err := t.manager.RunCommand(ctx, command, input.WorkingDir, explicitTimeout, input.Background)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	if proc != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("started background job %s: %s", proc.id, command)}, nil
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("encode result: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
