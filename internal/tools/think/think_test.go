package think

import (
	"context"
	"encoding/json"
	"testing"
)

func TestThinkReturnsConstantAcknowledgement(t *testing.T) {
	tool := NewTool(nil)
	params, _ := json.Marshal(map[string]any{"thought": "considering the approach"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil || result.IsError {
		t.Fatalf("execute: err=%v result=%+v", err, result)
	}
	if result.Content != "noted" {
		t.Fatalf("expected constant acknowledgement, got %q", result.Content)
	}
}

func TestThinkRejectsInvalidParams(t *testing.T) {
	tool := NewTool(nil)
	result, err := tool.Execute(context.Background(), json.RawMessage(`not json`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for invalid params")
	}
}
