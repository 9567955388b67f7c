// Package memory implements the memory tool: typed remember verbs, semantic
// search, relevant-context summarization, recent events, and stats, backed
// by a internal/memory.Collaborator.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pocketrb/core/internal/agent"
	memorypkg "github.com/pocketrb/core/internal/memory"
)

// Tool implements memory(action, key?, value?, query?, max_facts?, n?).
type Tool struct {
	collaborator memorypkg.Collaborator
}

// NewTool creates a memory tool backed by collaborator (may be nil, in
// which case the tool reports itself unavailable).
func NewTool(collaborator memorypkg.Collaborator) *Tool {
	return &Tool{collaborator: collaborator}
}

func (t *Tool) Name() string { return "memory" }
func (t *Tool) Description() string {
	return "Remember facts about the user, preferences, or context; search and summarize what's been remembered."
}
func (t *Tool) Available() bool { return t.collaborator != nil }

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "remember_learned, remember_user, remember_preference, remember_context, search, relevant_context, recent_events, or stats.",
				"enum": []string{
					"remember_learned", "remember_user", "remember_preference", "remember_context",
					"search", "relevant_context", "recent_events", "stats",
				},
			},
			"key":        map[string]any{"type": "string", "description": "Fact key; required for remember_* actions."},
			"value":      map[string]any{"type": "string", "description": "Fact value; required for remember_* actions."},
			"query":      map[string]any{"type": "string", "description": "Search text; required for search and relevant_context."},
			"max_facts":  map[string]any{"type": "integer", "description": "For relevant_context: max facts to include (default: 5).", "minimum": 1},
			"n":          map[string]any{"type": "integer", "description": "For recent_events: number of events to return (default: all buffered).", "minimum": 1},
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
	if t.collaborator == nil {
		return &agent.ToolResult{Content: "memory collaborator unavailable", IsError: true}, nil
	}
	var input struct {
		Action   string `json:"action"`
		Key      string `json:"key"`
		Value    string `json:"value"`
		Query    string `json:"query"`
		MaxFacts int    `json:"max_facts"`
		N        int    `json:"n"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))

	switch action {
	case "remember_learned", "remember_user", "remember_preference", "remember_context":
		if input.Key == "" || input.Value == "" {
			return &agent.ToolResult{Content: "key and value are required", IsError: true}, nil
		}
		var err error
		switch action {
		case "remember_learned":
			err = t.collaborator.RememberLearned(ctx, input.Key, input.Value)
		case "remember_user":
			err = t.collaborator.RememberUser(ctx, input.Key, input.Value)
		case "remember_preference":
			err = t.collaborator.RememberPreference(ctx, input.Key, input.Value)
		case "remember_context":
			err = t.collaborator.RememberContext(ctx, input.Key, input.Value)
		}
		if err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		return &agent.ToolResult{Content: "remembered"}, nil

	case "search":
		if input.Query == "" {
			return &agent.ToolResult{Content: "query is required", IsError: true}, nil
		}
		results, err := t.collaborator.Search(ctx, input.Query)
		if err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		payload, _ := json.MarshalIndent(results, "", "  ")
		return &agent.ToolResult{Content: string(payload)}, nil

	case "relevant_context":
		if input.Query == "" {
			return &agent.ToolResult{Content: "query is required", IsError: true}, nil
		}
		text, err := t.collaborator.RelevantContext(ctx, input.Query, input.MaxFacts)
		if err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		if text == "" {
			text = "no relevant context found"
		}
		return &agent.ToolResult{Content: text}, nil

	case "recent_events":
		events, err := t.collaborator.RecentEvents(ctx, input.N)
		if err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		payload, _ := json.MarshalIndent(events, "", "  ")
		return &agent.ToolResult{Content: string(payload)}, nil

	case "stats":
		stats, err := t.collaborator.Stats(ctx)
		if err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		payload, _ := json.MarshalIndent(stats, "", "  ")
		return &agent.ToolResult{Content: string(payload)}, nil

	default:
		return &agent.ToolResult{Content: "unsupported action: " + input.Action, IsError: true}, nil
	}
}
