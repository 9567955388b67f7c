package cron

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pocketrb/core/internal/cron"
	"github.com/pocketrb/core/pkg/models"
)

type noopBus struct{}

func (noopBus) PublishInbound(ctx context.Context, m models.InboundMessage) error   { return nil }
func (noopBus) PublishOutbound(ctx context.Context, m models.OutboundMessage) error { return nil }

func newTestTool(t *testing.T) *Tool {
	t.Helper()
	store, err := cron.NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sched := cron.NewScheduler(store, noopBus{})
	return NewTool(sched)
}

func TestCronToolAddListRemove(t *testing.T) {
	tool := newTestTool(t)

	addParams, _ := json.Marshal(map[string]any{
		"action":   "add",
		"name":     "heartbeat",
		"schedule": map[string]any{"kind": "every", "every_ms": 60000},
		"payload":  map[string]any{"message": "ping"},
	})
	addResult, err := tool.Execute(context.Background(), addParams)
	if err != nil || addResult.IsError {
		t.Fatalf("add: err=%v result=%+v", err, addResult)
	}
	var job struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(addResult.Content), &job); err != nil {
		t.Fatalf("parse add result: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("expected a job id")
	}

	listResult, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"list"}`))
	if err != nil || listResult.IsError {
		t.Fatalf("list: err=%v result=%+v", err, listResult)
	}
	if !strings.Contains(listResult.Content, job.ID) {
		t.Fatalf("expected listed job to include %s, got %s", job.ID, listResult.Content)
	}

	removeParams, _ := json.Marshal(map[string]any{"action": "remove", "id": job.ID})
	removeResult, err := tool.Execute(context.Background(), removeParams)
	if err != nil || removeResult.IsError {
		t.Fatalf("remove: err=%v result=%+v", err, removeResult)
	}
}

func TestCronToolAddRejectsSubMinimumEvery(t *testing.T) {
	tool := newTestTool(t)
	params, _ := json.Marshal(map[string]any{
		"action":   "add",
		"schedule": map[string]any{"kind": "every", "every_ms": 5000},
		"payload":  map[string]any{"message": "ping"},
	})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error for every_ms below 60000")
	}
}

func TestCronToolAddRejectsDeliverWithoutChannel(t *testing.T) {
	tool := newTestTool(t)
	params, _ := json.Marshal(map[string]any{
		"action":   "add",
		"schedule": map[string]any{"kind": "every", "every_ms": 60000},
		"payload":  map[string]any{"message": "ping", "deliver": true},
	})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error for deliver=true without channel/chat_id")
	}
}

func TestCronToolEnableRequiresID(t *testing.T) {
	tool := newTestTool(t)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"enable","enabled":false}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error for missing id")
	}
}

func TestCronToolUnavailableWithoutScheduler(t *testing.T) {
	tool := NewTool(nil)
	if tool.Available() {
		t.Fatalf("expected tool to be unavailable without a scheduler")
	}
}
