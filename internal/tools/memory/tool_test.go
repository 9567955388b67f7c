package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pocketrb/core/pkg/models"
)

type fakeCollaborator struct {
	remembered []string
	stats      map[string]any
}

func (f *fakeCollaborator) RememberLearned(ctx context.Context, key, value string) error {
	f.remembered = append(f.remembered, "learned:"+key+"="+value)
	return nil
}
func (f *fakeCollaborator) RememberUser(ctx context.Context, key, value string) error {
	f.remembered = append(f.remembered, "user:"+key+"="+value)
	return nil
}
func (f *fakeCollaborator) RememberPreference(ctx context.Context, key, value string) error {
	f.remembered = append(f.remembered, "preference:"+key+"="+value)
	return nil
}
func (f *fakeCollaborator) RememberContext(ctx context.Context, key, value string) error {
	f.remembered = append(f.remembered, "context:"+key+"="+value)
	return nil
}
func (f *fakeCollaborator) Search(ctx context.Context, query string) ([]*models.SearchResult, error) {
	return []*models.SearchResult{{Entry: &models.MemoryEntry{Content: "match for " + query}, Score: 0.9}}, nil
}
func (f *fakeCollaborator) RelevantContext(ctx context.Context, query string, maxFacts int) (string, error) {
	return "- match for " + query + "\n", nil
}
func (f *fakeCollaborator) RecentEvents(ctx context.Context, n int) ([]*models.MemoryEntry, error) {
	return []*models.MemoryEntry{{Content: "recent event"}}, nil
}
func (f *fakeCollaborator) Stats(ctx context.Context) (map[string]any, error) {
	return f.stats, nil
}

func TestMemoryToolRememberActions(t *testing.T) {
	fc := &fakeCollaborator{}
	tool := NewTool(fc)

	params, _ := json.Marshal(map[string]any{"action": "remember_user", "key": "name", "value": "Alex"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil || result.IsError {
		t.Fatalf("remember_user: err=%v result=%+v", err, result)
	}
	if len(fc.remembered) != 1 || fc.remembered[0] != "user:name=Alex" {
		t.Fatalf("unexpected remembered state: %v", fc.remembered)
	}
}

func TestMemoryToolRememberRequiresKeyAndValue(t *testing.T) {
	tool := NewTool(&fakeCollaborator{})
	params, _ := json.Marshal(map[string]any{"action": "remember_learned", "key": "name"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error for missing value")
	}
}

func TestMemoryToolSearchAndRelevantContext(t *testing.T) {
	tool := NewTool(&fakeCollaborator{})

	searchParams, _ := json.Marshal(map[string]any{"action": "search", "query": "deploy freeze"})
	searchResult, err := tool.Execute(context.Background(), searchParams)
	if err != nil || searchResult.IsError {
		t.Fatalf("search: err=%v result=%+v", err, searchResult)
	}

	rcParams, _ := json.Marshal(map[string]any{"action": "relevant_context", "query": "deploy freeze", "max_facts": 3})
	rcResult, err := tool.Execute(context.Background(), rcParams)
	if err != nil || rcResult.IsError {
		t.Fatalf("relevant_context: err=%v result=%+v", err, rcResult)
	}
	if rcResult.Content == "" {
		t.Fatalf("expected non-empty relevant context")
	}
}

func TestMemoryToolRequiresQueryForSearch(t *testing.T) {
	tool := NewTool(&fakeCollaborator{})
	params, _ := json.Marshal(map[string]any{"action": "search"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error for missing query")
	}
}

func TestMemoryToolRecentEventsAndStats(t *testing.T) {
	fc := &fakeCollaborator{stats: map[string]any{"total_entries": int64(2)}}
	tool := NewTool(fc)

	reParams, _ := json.Marshal(map[string]any{"action": "recent_events", "n": 5})
	reResult, err := tool.Execute(context.Background(), reParams)
	if err != nil || reResult.IsError {
		t.Fatalf("recent_events: err=%v result=%+v", err, reResult)
	}

	statsResult, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"stats"}`))
	if err != nil || statsResult.IsError {
		t.Fatalf("stats: err=%v result=%+v", err, statsResult)
	}
}

func TestMemoryToolUnavailableWithoutCollaborator(t *testing.T) {
	tool := NewTool(nil)
	if tool.Available() {
		t.Fatalf("expected tool to be unavailable without a collaborator")
	}
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"stats"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result when collaborator is unavailable")
	}
}
