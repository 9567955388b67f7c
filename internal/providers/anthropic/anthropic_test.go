package anthropic

import (
	"encoding/json"
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
	p, err := New(Config{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.defaultModel == "" {
		t.Fatalf("expected a default model")
	}
	if p.Name() != "anthropic" || !p.SupportsTools() {
		t.Fatalf("unexpected provider identity")
	}
}

func TestConvertMessagesSkipsSystemRole(t *testing.T) {
	msgs := []agent.CompletionMessage{
		{Role: models.RoleSystem, Content: "ignored"},
		{Role: models.RoleUser, Content: "hi"},
	}
	out, err := convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected system message to be dropped, got %d messages", len(out))
	}
}

func TestConvertToolsRejectsInvalidSchema(t *testing.T) {
	tools := []agent.ToolDefinition{{Name: "broken", Parameters: json.RawMessage(`not-json`)}}
	if _, err := convertTools(tools); err == nil {
		t.Fatalf("expected error for invalid schema")
	}
}

func TestIsRetryableClassifiesTransientErrors(t *testing.T) {
	cases := map[string]bool{
		"429 rate_limit exceeded":    true,
		"503 service unavailable":    true,
		"context deadline exceeded":  true,
		"invalid api key":            false,
	}
	for msg, want := range cases {
		if got := isRetryable(errorString(msg)); got != want {
			t.Fatalf("isRetryable(%q) = %v, want %v", msg, got, want)
		}
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }
