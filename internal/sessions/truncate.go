package sessions

import (
	"fmt"

	"github.com/pocketrb/core/pkg/models"
)

// Truncation bounds mandated by spec.md §4.2. They apply only to the
// persisted copy of history; the live tool result returned within the
// current turn is never truncated.
const (
	maxToolArgStringChars = 500
	maxToolResultChars    = 2000
)

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	dropped := len(s) - max
	return fmt.Sprintf("%s… [truncated %d chars]", s[:max], dropped)
}

// truncateForPersist returns a copy of msg with oversized tool-call
// argument strings and oversized tool-result content truncated per
// spec.md's bounds. msg itself (and the live turn's in-memory copy) is
// left untouched by the caller.
func truncateForPersist(msg models.Message) models.Message {
	out := msg
	if len(msg.ToolCalls) > 0 {
		out.ToolCalls = make([]models.ToolCall, len(msg.ToolCalls))
		for i, call := range msg.ToolCalls {
			out.ToolCalls[i] = truncateToolCallArgs(call)
		}
	}
	if msg.Role == models.RoleTool {
		out.Content = truncateString(msg.Content, maxToolResultChars)
	}
	return out
}

func truncateToolCallArgs(call models.ToolCall) models.ToolCall {
	if len(call.Arguments) == 0 {
		return call
	}
	args := make(map[string]any, len(call.Arguments))
	for k, v := range call.Arguments {
		if s, ok := v.(string); ok {
			args[k] = truncateString(s, maxToolArgStringChars)
			continue
		}
		args[k] = v
	}
	call.Arguments = args
	return call
}
