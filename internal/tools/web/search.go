package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pocketrb/core/internal/agent"
)

// Backend identifies a web search provider.
type Backend string

const (
	BackendSearXNG    Backend = "searxng"
	BackendDuckDuckGo Backend = "duckduckgo"
	BackendBrave      Backend = "brave"

	maxCacheEntries = 1000
)

// SearchConfig holds backend credentials and defaults for the web_search tool.
type SearchConfig struct {
	SearXNGURL         string  `json:"searxng_url,omitempty"`
	BraveAPIKey        string  `json:"brave_api_key,omitempty"`
	DefaultBackend     Backend `json:"default_backend"`
	ExtractContent     bool    `json:"extract_content"`
	DefaultResultCount int     `json:"default_result_count"`
	CacheTTLSeconds    int     `json:"cache_ttl_seconds"`
}

// SearchResult is a single web_search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

// SearchResponse is the full web_search result set.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
	Backend Backend        `json:"backend"`
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// SearchTool implements web_search(query, count?). It supports SearXNG,
// DuckDuckGo's Instant Answer API, and Brave as pluggable backends, with
// an in-memory TTL cache and a DuckDuckGo fallback if the configured
// backend errors.
type SearchTool struct {
	config     *SearchConfig
	httpClient *http.Client
	extractor  *Extractor
	cache      map[string]*cacheEntry
	cacheMu    sync.RWMutex
}

// NewSearchTool creates a web_search tool, filling unset config with
// sane defaults (DuckDuckGo backend, 5 results, 5 minute cache).
func NewSearchTool(config *SearchConfig) *SearchTool {
	if config == nil {
		config = &SearchConfig{}
	}
	if config.DefaultResultCount == 0 {
		config.DefaultResultCount = 5
	}
	if config.CacheTTLSeconds == 0 {
		config.CacheTTLSeconds = 300
	}
	if config.DefaultBackend == "" {
		if config.SearXNGURL != "" {
			config.DefaultBackend = BackendSearXNG
		} else {
			config.DefaultBackend = BackendDuckDuckGo
		}
	}
	return &SearchTool{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		extractor:  NewExtractor(),
		cache:      make(map[string]*cacheEntry),
	}
}

func (t *SearchTool) Name() string        { return "web_search" }
func (t *SearchTool) Description() string { return "Search the web and return titles, URLs, and snippets." }
func (t *SearchTool) Available() bool     { return t.config != nil }

func (t *SearchTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "The search query."},
			"count": map[string]any{"type": "integer", "description": "Number of results to return (default 5, max 20).", "minimum": 1, "maximum": 20},
			"extract_content": map[string]any{
				"type":        "boolean",
				"description": "Fetch and include full page content for each result (default: false).",
			},
		},
		"required": []string{"query"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query          string `json:"query"`
		Count          int    `json:"count"`
		ExtractContent bool   `json:"extract_content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if input.Query == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}

	count := input.Count
	if count == 0 {
		count = t.config.DefaultResultCount
	} else if count > 20 {
		count = 20
	}
	extractContent := input.ExtractContent || t.config.ExtractContent

	cacheKey := fmt.Sprintf("%s:%d:%v", input.Query, count, extractContent)
	if cached := t.getFromCache(cacheKey); cached != nil {
		return formatSearchResponse(cached), nil
	}

	response, err := t.search(ctx, t.config.DefaultBackend, input.Query, count)
	if err != nil && t.config.DefaultBackend != BackendDuckDuckGo {
		response, err = t.search(ctx, BackendDuckDuckGo, input.Query, count)
	}
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("search failed: %v", err), IsError: true}, nil
	}

	if extractContent {
		t.extractContentForResults(ctx, response)
	}

	t.putInCache(cacheKey, response)
	return formatSearchResponse(response), nil
}

func (t *SearchTool) search(ctx context.Context, backend Backend, query string, count int) (*SearchResponse, error) {
	switch backend {
	case BackendSearXNG:
		return t.searchSearXNG(ctx, query, count)
	case BackendBrave:
		return t.searchBrave(ctx, query, count)
	default:
		return t.searchDuckDuckGo(ctx, query, count)
	}
}

func formatSearchResponse(r *SearchResponse) *agent.ToolResult {
	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to format response: %v", err), IsError: true}
	}
	return &agent.ToolResult{Content: string(payload)}
}

func (t *SearchTool) getFromCache(key string) *SearchResponse {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	entry, ok := t.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.response
}

func (t *SearchTool) putInCache(key string, response *SearchResponse) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	now := time.Now()
	for k, v := range t.cache {
		if now.After(v.expiresAt) {
			delete(t.cache, k)
		}
	}
	for len(t.cache) >= maxCacheEntries {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range t.cache {
			if oldestKey == "" || v.expiresAt.Before(oldestTime) {
				oldestKey, oldestTime = k, v.expiresAt
			}
		}
		if oldestKey == "" {
			break
		}
		delete(t.cache, oldestKey)
	}
	t.cache[key] = &cacheEntry{response: response, expiresAt: now.Add(time.Duration(t.config.CacheTTLSeconds) * time.Second)}
}

func (t *SearchTool) extractContentForResults(ctx context.Context, response *SearchResponse) {
	var wg sync.WaitGroup
	for i := range response.Results {
		wg.Add(1)
		go func(result *SearchResult) {
			defer wg.Done()
			content, err := t.extractor.Extract(ctx, result.URL, "")
			if err == nil && content != "" {
				result.Content = content
			}
		}(&response.Results[i])
	}
	wg.Wait()
}

func (t *SearchTool) searchSearXNG(ctx context.Context, query string, count int) (*SearchResponse, error) {
	if t.config.SearXNGURL == "" {
		return nil, fmt.Errorf("searxng URL not configured")
	}
	searchURL, err := url.Parse(t.config.SearXNGURL)
	if err != nil {
		return nil, fmt.Errorf("invalid searxng URL: %w", err)
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("categories", "general")
	searchURL.Path = "/search"
	searchURL.RawQuery = q.Encode()

	body, err := t.get(ctx, searchURL.String(), nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse searxng response: %w", err)
	}

	results := make([]SearchResult, 0, count)
	for i := 0; i < len(parsed.Results) && i < count; i++ {
		r := parsed.Results[i]
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return &SearchResponse{Query: query, Results: results, Count: len(results), Backend: BackendSearXNG}, nil
}

func (t *SearchTool) searchDuckDuckGo(ctx context.Context, query string, count int) (*SearchResponse, error) {
	instantURL := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1", url.QueryEscape(query))
	body, err := t.get(ctx, instantURL, map[string]string{"User-Agent": "Mozilla/5.0 (compatible; pocketrbbot/1.0)"})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse duckduckgo response: %w", err)
	}

	results := make([]SearchResult, 0, count)
	if parsed.AbstractText != "" && parsed.AbstractURL != "" {
		results = append(results, SearchResult{Title: parsed.Heading, URL: parsed.AbstractURL, Snippet: parsed.AbstractText})
	}
	for i := 0; i < len(parsed.RelatedTopics) && len(results) < count; i++ {
		topic := parsed.RelatedTopics[i]
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, SearchResult{Title: title, URL: topic.FirstURL, Snippet: topic.Text})
	}
	return &SearchResponse{Query: query, Results: results, Count: len(results), Backend: BackendDuckDuckGo}, nil
}

func (t *SearchTool) searchBrave(ctx context.Context, query string, count int) (*SearchResponse, error) {
	if t.config.BraveAPIKey == "" {
		return nil, fmt.Errorf("brave API key not configured")
	}
	searchURL, _ := url.Parse("https://api.search.brave.com/res/v1/web/search")
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", count))
	searchURL.RawQuery = q.Encode()

	body, err := t.get(ctx, searchURL.String(), map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": t.config.BraveAPIKey,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse brave response: %w", err)
	}

	results := make([]SearchResult, 0, count)
	for i := 0; i < len(parsed.Web.Results) && i < count; i++ {
		r := parsed.Web.Results[i]
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return &SearchResponse{Query: query, Results: results, Count: len(results), Backend: BackendBrave}, nil
}

func (t *SearchTool) get(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
