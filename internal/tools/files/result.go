package files

import "github.com/pocketrb/core/internal/agent"

func toolError(message string) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: message, IsError: true}, nil
}

// Config controls filesystem tool defaults. Workspace empty disables
// sandboxing (see Resolver.Resolve).
type Config struct {
	Workspace    string
	MaxReadLines int
}
