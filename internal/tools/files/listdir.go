package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pocketrb/core/internal/agent"
)

// ListDirTool implements list_dir: sorted directory enumeration with an
// optional glob pattern, optional recursion, and optional hidden-entry
// inclusion.
type ListDirTool struct {
	resolver Resolver
}

// NewListDirTool creates a list_dir tool scoped to cfg.Workspace.
func NewListDirTool(cfg Config) *ListDirTool {
	return &ListDirTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string { return "List directory entries, optionally matching a glob pattern and recursing." }
func (t *ListDirTool) Available() bool     { return true }

func (t *ListDirTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":           map[string]any{"type": "string", "description": "Directory to list (relative to workspace; default: workspace root)."},
			"pattern":        map[string]any{"type": "string", "description": "Glob pattern to filter entry names."},
			"recursive":      map[string]any{"type": "boolean", "description": "Recurse into subdirectories (default: false)."},
			"include_hidden": map[string]any{"type": "boolean", "description": "Include dotfiles (default: false)."},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ListDirTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path          string `json:"path"`
		Pattern       string `json:"pattern"`
		Recursive     bool   `json:"recursive"`
		IncludeHidden bool   `json:"include_hidden"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return toolError(fmt.Sprintf("invalid parameters: %v", err))
		}
	}
	if input.Path == "" {
		input.Path = "."
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error())
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("stat directory: %v", err))
	}
	if !info.IsDir() {
		return toolError(fmt.Sprintf("not a directory: %s", input.Path))
	}

	type entry struct {
		relPath string
		isDir   bool
		size    int64
		modTime string
	}
	var entries []entry

	walk := func(dirPath string, recurse bool) error {
		items, err := os.ReadDir(dirPath)
		if err != nil {
			return err
		}
		for _, item := range items {
			name := item.Name()
			if !input.IncludeHidden && strings.HasPrefix(name, ".") {
				continue
			}
			if input.Pattern != "" {
				matched, _ := filepath.Match(input.Pattern, name)
				if !matched {
					continue
				}
			}
			full := filepath.Join(dirPath, name)
			rel, err := filepath.Rel(resolved, full)
			if err != nil {
				rel = name
			}
			fi, err := item.Info()
			if err != nil {
				continue
			}
			entries = append(entries, entry{
				relPath: rel,
				isDir:   fi.IsDir(),
				size:    fi.Size(),
				modTime: fi.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
			})
		}
		if !recurse {
			return nil
		}
		for _, item := range items {
			if item.IsDir() && (input.IncludeHidden || !strings.HasPrefix(item.Name(), ".")) {
				if err := walk(filepath.Join(dirPath, item.Name()), recurse); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(resolved, input.Recursive); err != nil {
		return toolError(fmt.Sprintf("list directory: %v", err))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].relPath < entries[j].relPath })

	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString("(empty)")
	}
	for _, e := range entries {
		if e.isDir {
			fmt.Fprintf(&b, "%s/\n", e.relPath)
			continue
		}
		fmt.Fprintf(&b, "%-40s %10d  %s\n", e.relPath, e.size, e.modTime)
	}
	return &agent.ToolResult{Content: b.String()}, nil
}
