package openai

import (
	"testing"

	"github.com/pocketrb/core/internal/agent"
	"github.com/pocketrb/core/pkg/models"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.defaultModel != "gpt-4o" {
		t.Fatalf("expected default model gpt-4o, got %q", p.defaultModel)
	}
	if p.Name() != "openai" || !p.SupportsTools() {
		t.Fatalf("unexpected provider identity")
	}
}

func TestConvertMessagesPrependsSystem(t *testing.T) {
	out, err := convertMessages([]agent.CompletionMessage{{Role: models.RoleUser, Content: "hi"}}, "be helpful")
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 2 || out[0].Content != "be helpful" {
		t.Fatalf("expected system message prepended, got %+v", out)
	}
}

func TestConvertMessagesEncodesAssistantToolCalls(t *testing.T) {
	out, err := convertMessages([]agent.CompletionMessage{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "1", Name: "search", Arguments: map[string]any{"q": "go"}}}},
	}, "")
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 1 || len(out[0].ToolCalls) != 1 {
		t.Fatalf("expected one assistant message with one tool call, got %+v", out)
	}
}

func TestIsRetryableClassifiesTransientErrors(t *testing.T) {
	if !isRetryable(errString("429 too many requests")) {
		t.Fatalf("expected 429 to be retryable")
	}
	if isRetryable(errString("401 unauthorized")) {
		t.Fatalf("expected 401 to not be retryable")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
