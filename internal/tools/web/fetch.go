package web

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pocketrb/core/internal/agent"
)

// maxFetchChars is the hard cap on fetched content returned to the model,
// regardless of what the caller asks for.
const maxFetchChars = 500_000

const defaultFetchChars = 10_000

// FetchTool implements web_fetch(url, selector?, max_chars?).
type FetchTool struct {
	extractor *Extractor
}

// NewFetchTool creates a web_fetch tool. extractor may be nil, in which
// case a default (SSRF-checked, 15s timeout) extractor is used.
func NewFetchTool(extractor *Extractor) *FetchTool {
	if extractor == nil {
		extractor = NewExtractor()
	}
	return &FetchTool{extractor: extractor}
}

func (t *FetchTool) Name() string { return "web_fetch" }
func (t *FetchTool) Description() string {
	return "Fetch a URL and return its readable text content, with script/style/nav/footer stripped."
}
func (t *FetchTool) Available() bool { return t.extractor != nil }

func (t *FetchTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":      map[string]any{"type": "string", "description": "The URL to fetch."},
			"selector": map[string]any{"type": "string", "description": "Optional: a tag name, #id, .class, or tag.class to narrow extraction to one element."},
			"max_chars": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum characters to return (default %d, hard cap %d).", defaultFetchChars, maxFetchChars),
				"minimum":     1,
				"maximum":     maxFetchChars,
			},
		},
		"required": []string{"url"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type fetchResult struct {
	URL       string `json:"url"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

func (t *FetchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		URL      string `json:"url"`
		Selector string `json:"selector"`
		MaxChars int    `json:"max_chars"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if input.URL == "" {
		return &agent.ToolResult{Content: "url is required", IsError: true}, nil
	}

	limit := input.MaxChars
	if limit <= 0 {
		limit = defaultFetchChars
	}
	if limit > maxFetchChars {
		limit = maxFetchChars
	}

	content, err := t.extractor.Extract(ctx, input.URL, input.Selector)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("fetch failed: %v", err), IsError: true}, nil
	}

	truncated := false
	if len(content) > limit {
		content = content[:limit] + "..."
		truncated = true
	}

	payload, err := json.MarshalIndent(fetchResult{URL: input.URL, Content: content, Truncated: truncated}, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to format result: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
