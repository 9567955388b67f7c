// Package jobs implements the jobs tool: list/status/output/kill for
// background processes started by the exec tool.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pocketrb/core/internal/agent"
	"github.com/pocketrb/core/internal/tools/exec"
)

// Tool implements jobs(action, job_id?, lines?).
type Tool struct {
	manager *exec.Manager
}

// NewTool creates a jobs tool backed by manager, the same process
// registry the exec tool's background jobs are tracked in.
func NewTool(manager *exec.Manager) *Tool {
	return &Tool{manager: manager}
}

func (t *Tool) Name() string        { return "jobs" }
func (t *Tool) Description() string { return "List, check, fetch output from, or kill background jobs started by exec." }
func (t *Tool) Available() bool     { return t.manager != nil }

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{"type": "string", "description": "list, status, output, or kill.", "enum": []string{"list", "status", "output", "kill"}},
			"job_id": map[string]any{"type": "string", "description": "Job id; required for status/output/kill."},
			"lines":  map[string]any{"type": "integer", "description": "For output: number of trailing lines to return (default: all).", "minimum": 1},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.manager == nil {
		return &agent.ToolResult{Content: "job manager unavailable", IsError: true}, nil
	}
	var input struct {
		Action string `json:"action"`
		JobID  string `json:"job_id"`
		Lines  int    `json:"lines"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))

	switch action {
	case "list":
		procs := t.manager.List()
		payload, _ := json.MarshalIndent(procs, "", "  ")
		return &agent.ToolResult{Content: string(payload)}, nil

	case "status":
		if input.JobID == "" {
			return &agent.ToolResult{Content: "job_id is required", IsError: true}, nil
		}
		info, ok := t.manager.Status(input.JobID)
		if !ok {
			return &agent.ToolResult{Content: "job not found", IsError: true}, nil
		}
		payload, _ := json.MarshalIndent(info, "", "  ")
		return &agent.ToolResult{Content: string(payload)}, nil

	case "output":
		if input.JobID == "" {
			return &agent.ToolResult{Content: "job_id is required", IsError: true}, nil
		}
		out, ok := t.manager.Output(input.JobID, input.Lines)
		if !ok {
			return &agent.ToolResult{Content: "job not found", IsError: true}, nil
		}
		return &agent.ToolResult{Content: out}, nil

	case "kill":
		if input.JobID == "" {
			return &agent.ToolResult{Content: "job_id is required", IsError: true}, nil
		}
		if err := t.manager.Kill(input.JobID); err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		return &agent.ToolResult{Content: fmt.Sprintf("killed job %s", input.JobID)}, nil

	default:
		return &agent.ToolResult{Content: "unsupported action: " + input.Action, IsError: true}, nil
	}
}
