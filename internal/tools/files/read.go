package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pocketrb/core/internal/agent"
)

const defaultReadLineLimit = 2000

// ReadTool implements read_file: returns a file's content with 1-based
// line numbers, optionally starting at offset and stopping after limit
// lines.
type ReadTool struct {
	resolver  Resolver
	lineLimit int
}

// NewReadTool creates a read tool scoped to cfg.Workspace.
func NewReadTool(cfg Config) *ReadTool {
	limit := cfg.MaxReadLines
	if limit <= 0 {
		limit = defaultReadLineLimit
	}
	return &ReadTool{resolver: Resolver{Root: cfg.Workspace}, lineLimit: limit}
}

func (t *ReadTool) Name() string        { return "read_file" }
func (t *ReadTool) Description() string { return "Read a file from the workspace, 1-based line numbering, with optional offset and limit." }
func (t *ReadTool) Available() bool     { return true }

func (t *ReadTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string", "description": "Path to the file (relative to workspace)."},
			"offset": map[string]any{"type": "integer", "description": "1-based line number to start reading from (default: 1).", "minimum": 1},
			"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines to return.", "minimum": 1},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path   string `json:"path"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err))
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required")
	}
	if input.Offset < 0 {
		return toolError("offset must be >= 1")
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error())
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("open file: %v", err))
	}
	if info.IsDir() {
		return toolError(fmt.Sprintf("not a file: %s", input.Path))
	}

	file, err := os.Open(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("open file: %v", err))
	}
	defer file.Close()

	start := input.Offset
	if start == 0 {
		start = 1
	}
	limit := input.Limit
	if limit <= 0 || limit > t.lineLimit {
		limit = t.lineLimit
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var b strings.Builder
	lineNo := 0
	emitted := 0
	truncated := false
	for scanner.Scan() {
		lineNo++
		if lineNo < start {
			continue
		}
		if emitted >= limit {
			truncated = true
			break
		}
		fmt.Fprintf(&b, "%6d\t%s\n", lineNo, scanner.Text())
		emitted++
	}
	if err := scanner.Err(); err != nil {
		return toolError(fmt.Sprintf("read file: %v", err))
	}
	if emitted == 0 && start > lineNo {
		return toolError(fmt.Sprintf("offset %d is past end of file (%d lines)", start, lineNo))
	}

	content := b.String()
	if truncated {
		content += fmt.Sprintf("\n[truncated: showing lines %d-%d of this read]\n", start, start+emitted-1)
	}
	return &agent.ToolResult{Content: content}, nil
}
