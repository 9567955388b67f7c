package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pocketrb/core/internal/agent"
)

// EditTool implements edit_file: an exact-match old_string/new_string
// substitution. Unlike a generic find/replace, it refuses an ambiguous
// old_string unless replace_all is set, and offers a near-miss hint when
// old_string isn't found at all.
type EditTool struct {
	resolver Resolver
}

// NewEditTool creates an edit tool scoped to cfg.Workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *EditTool) Name() string        { return "edit_file" }
func (t *EditTool) Description() string { return "Replace an exact text match in a file. Fails if the match is missing or ambiguous." }
func (t *EditTool) Available() bool     { return true }

func (t *EditTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":        map[string]any{"type": "string", "description": "Path to edit (relative to workspace)."},
			"old_string":  map[string]any{"type": "string", "description": "Exact text to replace."},
			"new_string":  map[string]any{"type": "string", "description": "Replacement text."},
			"replace_all": map[string]any{"type": "boolean", "description": "Replace every occurrence instead of requiring a unique match (default: false)."},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *EditTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path       string `json:"path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err))
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required")
	}
	if input.OldString == "" {
		return toolError("old_string is required")
	}
	if input.OldString == input.NewString {
		return toolError("old_string and new_string must differ")
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error())
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err))
	}
	content := string(data)

	count := strings.Count(content, input.OldString)
	if count == 0 {
		hint := nearMissHint(content, input.OldString)
		msg := "old_string not found in " + input.Path
		if hint != "" {
			msg += "\n" + hint
		}
		return toolError(msg)
	}
	if count > 1 && !input.ReplaceAll {
		return toolError(fmt.Sprintf("old_string matches %d times in %s; pass replace_all or narrow the match", count, input.Path))
	}

	var updated string
	if input.ReplaceAll {
		updated = strings.ReplaceAll(content, input.OldString, input.NewString)
	} else {
		updated = strings.Replace(content, input.OldString, input.NewString, 1)
	}

	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err))
	}

	replacements := 1
	if input.ReplaceAll {
		replacements = count
	}
	return &agent.ToolResult{Content: fmt.Sprintf("replaced %d occurrence(s) in %s", replacements, input.Path)}, nil
}

// nearMissHint scans content line-by-line and returns up to 3 lines most
// similar to the first line of old_string, to help the caller correct a
// near-miss match.
func nearMissHint(content, oldString string) string {
	needle := strings.TrimSpace(strings.SplitN(oldString, "\n", 2)[0])
	if needle == "" {
		return ""
	}
	type scored struct {
		line  string
		score int
	}
	var candidates []scored
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		score := similarity(needle, trimmed)
		if score > 0 {
			candidates = append(candidates, scored{line: trimmed, score: score})
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	var b strings.Builder
	b.WriteString("similar lines found:")
	for _, c := range candidates {
		b.WriteString("\n  ")
		b.WriteString(c.line)
	}
	return b.String()
}

// similarity scores a and b by shared word tokens; a crude but cheap
// stand-in for edit distance, good enough to rank candidate lines.
func similarity(a, b string) int {
	aw := strings.Fields(a)
	bw := strings.Fields(strings.ToLower(b))
	set := make(map[string]struct{}, len(bw))
	for _, w := range bw {
		set[w] = struct{}{}
	}
	score := 0
	for _, w := range aw {
		if _, ok := set[strings.ToLower(w)]; ok {
			score++
		}
	}
	return score
}
