package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pocketrb/core/internal/bus"
	"github.com/pocketrb/core/internal/sessions"
	"github.com/pocketrb/core/pkg/models"
)

// scriptedProvider returns one canned completionResult per call, in order,
// looping the last one once exhausted.
type scriptedProvider struct {
	responses [][]*CompletionChunk
	call      int
}

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	idx := p.call
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.call++
	ch := make(chan *CompletionChunk, len(p.responses[idx]))
	for _, c := range p.responses[idx] {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string          { return "scripted" }
func (p *scriptedProvider) Models() []Model       { return nil }
func (p *scriptedProvider) SupportsTools() bool   { return true }

func textChunk(s string) []*CompletionChunk {
	return []*CompletionChunk{{Text: s, Done: true}}
}

func toolCallChunk(id, name string, args map[string]any) []*CompletionChunk {
	return []*CompletionChunk{{ToolCall: &models.ToolCall{ID: id, Name: name, Arguments: args}, Done: true}}
}

func newTestLoop(t *testing.T, provider LLMProvider, registry *Registry) (*bus.Bus, *Loop, sessions.Store) {
	t.Helper()
	b := bus.New(nil)
	store, err := sessions.NewJSONLStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if registry == nil {
		registry = NewRegistry(nil)
	}
	executor := NewExecutor(registry, DefaultExecutorConfig(), nil)
	loop := NewLoop(b, store, registry, executor, provider, DefaultLoopConfig(), nil)
	return b, loop, store
}

func TestGreetingScenarioYieldsOneOutbound(t *testing.T) {
	provider := &scriptedProvider{responses: [][]*CompletionChunk{textChunk("hi there")}}
	b, loop, store := newTestLoop(t, provider, nil)

	ctx := context.Background()
	inbound := models.InboundMessage{Channel: "cli", SenderID: "user", ChatID: "chat1", Content: "hello"}
	loop.ProcessTurn(ctx, inbound)

	out, ok, err := b.ConsumeOutbound(ctx)
	if err != nil || !ok {
		t.Fatalf("expected one outbound: ok=%v err=%v", ok, err)
	}
	if out.Content != "hi there" || out.Channel != "cli" || out.ChatID != "chat1" {
		t.Fatalf("unexpected outbound: %+v", out)
	}

	sess, ok := store.Get("cli:chat1")
	if !ok || len(sess.Messages) != 2 {
		t.Fatalf("expected 2 history messages, got %+v", sess)
	}
	if sess.Messages[0].Role != models.RoleUser || sess.Messages[0].Content != "hello" {
		t.Fatalf("unexpected user message: %+v", sess.Messages[0])
	}
	if sess.Messages[1].Role != models.RoleAssistant || sess.Messages[1].Content != "hi there" {
		t.Fatalf("unexpected assistant message: %+v", sess.Messages[1])
	}
}

type echoTool struct{}

func (echoTool) Name() string                 { return "read_file" }
func (echoTool) Description() string          { return "echo tool for tests" }
func (echoTool) Schema() json.RawMessage      { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Available() bool              { return true }
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: "motd says: welcome"}, nil
}

func TestSingleToolUseScenario(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(echoTool{})

	provider := &scriptedProvider{responses: [][]*CompletionChunk{
		toolCallChunk("call1", "read_file", map[string]any{"path": "motd"}),
		textChunk("motd says: welcome"),
	}}
	b, loop, store := newTestLoop(t, provider, registry)

	ctx := context.Background()
	inbound := models.InboundMessage{Channel: "cli", SenderID: "user", ChatID: "chat1", Content: "read /etc/motd"}
	loop.ProcessTurn(ctx, inbound)

	out, ok, err := b.ConsumeOutbound(ctx)
	if err != nil || !ok {
		t.Fatalf("expected outbound: ok=%v err=%v", ok, err)
	}
	if out.Content != "motd says: welcome" {
		t.Fatalf("unexpected outbound content: %q", out.Content)
	}

	sess, _ := store.Get("cli:chat1")
	if len(sess.Messages) != 4 {
		t.Fatalf("expected user, assistant-with-tool-call, tool-result, assistant-final; got %d: %+v", len(sess.Messages), sess.Messages)
	}
	if sess.Messages[1].Role != models.RoleAssistant || len(sess.Messages[1].ToolCalls) != 1 {
		t.Fatalf("expected assistant tool-call message, got %+v", sess.Messages[1])
	}
	if sess.Messages[2].Role != models.RoleTool || sess.Messages[2].ToolCallID != "call1" {
		t.Fatalf("expected tool-result message, got %+v", sess.Messages[2])
	}
	if sess.Messages[3].Role != models.RoleAssistant || sess.Messages[3].Content != "motd says: welcome" {
		t.Fatalf("expected final assistant message, got %+v", sess.Messages[3])
	}
}

func TestIterationCapProducesNoticeAndStopsLooping(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(echoTool{})

	loopingResponse := toolCallChunk("call", "read_file", map[string]any{"path": "motd"})
	provider := &scriptedProvider{responses: [][]*CompletionChunk{loopingResponse}}
	b, loop, _ := newTestLoop(t, provider, registry)
	loop.config.MaxIterations = 3

	ctx := context.Background()
	inbound := models.InboundMessage{Channel: "cli", ChatID: "chat1", Content: "loop forever"}
	loop.ProcessTurn(ctx, inbound)

	out, ok, err := b.ConsumeOutbound(ctx)
	if err != nil || !ok {
		t.Fatalf("expected outbound: ok=%v err=%v", ok, err)
	}
	if !contains(out.Content, "maximum of 3") {
		t.Fatalf("expected cap notice in outbound, got %q", out.Content)
	}
	if provider.call != 3 {
		t.Fatalf("expected exactly 3 model calls, got %d", provider.call)
	}
}

func TestForbiddenPathDoesNotCrashLoop(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register(forbiddenTool{})
	provider := &scriptedProvider{responses: [][]*CompletionChunk{
		toolCallChunk("call1", "read_file", map[string]any{"path": "/etc/passwd"}),
		textChunk("done"),
	}}
	b, loop, store := newTestLoop(t, provider, registry)

	ctx := context.Background()
	loop.ProcessTurn(ctx, models.InboundMessage{Channel: "cli", ChatID: "chat1", Content: "read /etc/passwd"})

	if _, ok, _ := b.ConsumeOutbound(ctx); !ok {
		t.Fatalf("loop should still publish an outbound after a tool error")
	}
	sess, _ := store.Get("cli:chat1")
	toolMsg := sess.Messages[2]
	if toolMsg.Role != models.RoleTool || !contains(toolMsg.Content, "outside workspace") {
		t.Fatalf("expected forbidden-path tool error mentioning workspace, got %+v", toolMsg)
	}
}

type forbiddenTool struct{}

func (forbiddenTool) Name() string            { return "read_file" }
func (forbiddenTool) Description() string     { return "" }
func (forbiddenTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (forbiddenTool) Available() bool         { return true }
func (forbiddenTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return nil, NewToolError("read_file", KindToolForbidden, "path escapes workspace: outside workspace", nil)
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

func TestProviderTransientErrorRetriesThenSucceeds(t *testing.T) {
	provider := &retryingProvider{failTimes: 2}
	_, loop, _ := newTestLoop(t, provider, nil)
	loop.config.ProviderBackoff = time.Millisecond

	ctx := context.Background()
	loop.ProcessTurn(ctx, models.InboundMessage{Channel: "cli", ChatID: "chat1", Content: "hi"})

	if provider.calls < 3 {
		t.Fatalf("expected retries before success, got %d calls", provider.calls)
	}
}

type retryingProvider struct {
	failTimes int
	calls     int
}

func (p *retryingProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.calls++
	if p.calls <= p.failTimes {
		return nil, &ProviderError{Transient: true, Cause: context.DeadlineExceeded}
	}
	ch := make(chan *CompletionChunk, 1)
	ch <- &CompletionChunk{Text: "ok", Done: true}
	close(ch)
	return ch, nil
}

func (p *retryingProvider) Name() string        { return "retrying" }
func (p *retryingProvider) Models() []Model     { return nil }
func (p *retryingProvider) SupportsTools() bool { return false }
