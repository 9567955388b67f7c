// Package think implements the think tool: a pure side-effect-free
// scratchpad the model uses to reason without that reasoning leaking to
// the end user as chat text.
package think

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pocketrb/core/internal/agent"
)

// Tool implements think(thought). It never mutates state visible outside
// the log stream and always returns the same acknowledgement.
type Tool struct {
	logger *slog.Logger
}

// NewTool creates a think tool. logger may be nil, in which case
// slog.Default is used.
func NewTool(logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{logger: logger.With("component", "tool.think")}
}

func (t *Tool) Name() string        { return "think" }
func (t *Tool) Description() string { return "Record a private reasoning step. Not shown to the user." }
func (t *Tool) Available() bool     { return true }

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"thought": {"type": "string", "description": "The reasoning step to record."}
		},
		"required": ["thought"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Thought string `json:"thought"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: "invalid parameters: " + err.Error(), IsError: true}, nil
	}
	t.logger.Info("thought", "thought", input.Thought)
	return &agent.ToolResult{Content: "noted"}, nil
}
