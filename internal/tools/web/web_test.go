package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
)

func mustParse(t *testing.T, doc string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return root
}

func TestExtractorStripsBoilerplateAndKeepsArticle(t *testing.T) {
	htmlContent := `
<!DOCTYPE html>
<html>
<head>
    <title>Test Page Title</title>
    <meta name="description" content="This is a test page description">
</head>
<body>
    <header><nav>Navigation menu</nav></header>
    <main>
        <article>
            <h1>Main Article Title</h1>
            <p>This is the first paragraph of the article.</p>
        </article>
    </main>
    <footer>Footer content</footer>
    <script>console.log("should be removed");</script>
</body>
</html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(htmlContent))
	}))
	defer server.Close()

	extractor := NewExtractorForTesting()
	content, err := extractor.Extract(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	for _, want := range []string{"Test Page Title", "test page description", "first paragraph"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected content to contain %q, got: %s", want, content)
		}
	}
	for _, unwanted := range []string{"console.log", "Navigation menu", "Footer content"} {
		if strings.Contains(content, unwanted) {
			t.Errorf("expected content not to contain %q, got: %s", unwanted, content)
		}
	}
}

func TestExtractorSelectorNarrowsToElement(t *testing.T) {
	htmlContent := `<html><body>
		<div id="sidebar">Sidebar junk</div>
		<div id="content"><p>The real article text.</p></div>
	</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(htmlContent))
	}))
	defer server.Close()

	extractor := NewExtractorForTesting()
	content, err := extractor.Extract(context.Background(), server.URL, "#content")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(content, "real article text") {
		t.Errorf("expected selected element's text, got: %s", content)
	}
	if strings.Contains(content, "Sidebar junk") {
		t.Errorf("selector should have excluded sidebar, got: %s", content)
	}
}

func TestExtractorRejectsNonHTMLContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"key":"value"}`))
	}))
	defer server.Close()

	extractor := NewExtractorForTesting()
	_, err := extractor.Extract(context.Background(), server.URL, "")
	if err == nil || !strings.Contains(err.Error(), "unsupported content type") {
		t.Fatalf("expected unsupported content type error, got %v", err)
	}
}

func TestExtractorRejectsLocalhostUnlessTesting(t *testing.T) {
	extractor := NewExtractor()
	_, err := extractor.Extract(context.Background(), "http://localhost:9/secret", "")
	if err == nil || !strings.Contains(err.Error(), "URL validation failed") {
		t.Fatalf("expected SSRF rejection, got %v", err)
	}
}

func TestExtractorHonorsContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	extractor := NewExtractorForTesting()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := extractor.Extract(ctx, server.URL, "")
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestCleanTextCollapsesWhitespaceAndNewlines(t *testing.T) {
	got := cleanText("  Text  with   extra    spaces \n\n\n\nLine2  ")
	want := "Text with extra spaces\n\nLine2"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFetchToolTruncatesToMaxChars(t *testing.T) {
	long := strings.Repeat("A", 15000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><main><p>" + long + "</p></main></body></html>"))
	}))
	defer server.Close()

	tool := NewFetchTool(NewExtractorForTesting())
	params, _ := json.Marshal(map[string]any{"url": server.URL, "max_chars": 100})
	result, err := tool.Execute(context.Background(), params)
	if err != nil || result.IsError {
		t.Fatalf("execute: err=%v result=%+v", err, result)
	}

	var parsed fetchResult
	if err := json.Unmarshal([]byte(result.Content), &parsed); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if !parsed.Truncated {
		t.Fatal("expected truncated=true")
	}
	if len(parsed.Content) > 103 {
		t.Fatalf("expected content capped near 100 chars, got %d", len(parsed.Content))
	}
}

func TestFetchToolRequiresURL(t *testing.T) {
	tool := NewFetchTool(NewExtractorForTesting())
	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for missing url")
	}
}

func TestSearchToolSearXNGBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"Go","url":"https://go.dev","content":"The Go language"}]}`))
	}))
	defer server.Close()

	tool := NewSearchTool(&SearchConfig{DefaultBackend: BackendSearXNG, SearXNGURL: server.URL})
	resp, err := tool.searchSearXNG(context.Background(), "golang", 5)
	if err != nil {
		t.Fatalf("searchSearXNG: %v", err)
	}
	if resp.Backend != BackendSearXNG || len(resp.Results) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Results[0].Title != "Go" {
		t.Fatalf("expected title Go, got %q", resp.Results[0].Title)
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	tool := NewSearchTool(nil)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for missing query")
	}
}

func TestSearchToolCachesResponses(t *testing.T) {
	tool := NewSearchTool(&SearchConfig{CacheTTLSeconds: 60})
	resp := &SearchResponse{Query: "cached", Results: []SearchResult{{Title: "t", URL: "u"}}, Count: 1, Backend: BackendDuckDuckGo}
	tool.putInCache("cached:5:false", resp)

	got := tool.getFromCache("cached:5:false")
	if got == nil || got.Query != "cached" {
		t.Fatalf("expected cache hit, got %+v", got)
	}
}

func TestFindSelectorMatchesTagIDAndClass(t *testing.T) {
	doc := `<html><body><div class="a"><p id="p1">x</p></div><span class="b">y</span></body></html>`
	root := mustParse(t, doc)

	if n := findSelector(root, "span"); n == nil {
		t.Error("expected tag selector to match")
	}
	if n := findSelector(root, "#p1"); n == nil {
		t.Error("expected id selector to match")
	}
	if n := findSelector(root, ".b"); n == nil {
		t.Error("expected class selector to match")
	}
	if n := findSelector(root, "#missing"); n != nil {
		t.Error("expected no match for missing id")
	}
}
