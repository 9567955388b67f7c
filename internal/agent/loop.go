package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pocketrb/core/internal/sessions"
	"github.com/pocketrb/core/pkg/models"
)

// Publisher is the subset of the bus a Loop needs: publish outbound
// messages and lifecycle events, consume inbound. Kept as an interface so
// tests can swap in a fake without depending on internal/bus.
type Publisher interface {
	ConsumeInbound(ctx context.Context) (models.InboundMessage, bool, error)
	PublishOutbound(ctx context.Context, m models.OutboundMessage) error
	PublishToolEvent(ctx context.Context, e models.ToolExecutionEvent) error
	PublishStateChange(ctx context.Context, e models.StateChangeEvent) error
}

// SystemPromptFunc builds the ambient-context portion of the system
// prompt for one turn (workspace path, memory summary hook, skill
// content). A default is supplied; callers wire a richer one (e.g. one
// backed by internal/skills + internal/memory) via LoopConfig.
type SystemPromptFunc func(ctx Context, userContent string) string

func defaultSystemPrompt(ctx Context, _ string) string {
	if ctx.Workspace == "" {
		return "You are a helpful assistant."
	}
	return fmt.Sprintf("You are a helpful assistant. Workspace: %s", ctx.Workspace)
}

// LoopConfig bounds one AgentLoop's behavior.
type LoopConfig struct {
	MaxIterations      int
	MaxHistoryMessages  int
	DefaultModel       string
	ProviderMaxRetries int
	ProviderBackoff    time.Duration
	SystemPrompt       SystemPromptFunc
}

// DefaultLoopConfig returns the spec's defaults: 10 iterations, no
// history cap beyond a generous ceiling, 3 provider retries.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations:      10,
		MaxHistoryMessages: 200,
		ProviderMaxRetries: 3,
		ProviderBackoff:    250 * time.Millisecond,
		SystemPrompt:       defaultSystemPrompt,
	}
}

func sanitizeLoopConfig(c LoopConfig) LoopConfig {
	d := DefaultLoopConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MaxHistoryMessages <= 0 {
		c.MaxHistoryMessages = d.MaxHistoryMessages
	}
	if c.ProviderMaxRetries <= 0 {
		c.ProviderMaxRetries = d.ProviderMaxRetries
	}
	if c.ProviderBackoff <= 0 {
		c.ProviderBackoff = d.ProviderBackoff
	}
	if c.SystemPrompt == nil {
		c.SystemPrompt = d.SystemPrompt
	}
	return c
}

// Loop drives inbound messages to completion against a provider and tool
// registry, implementing the state machine of spec.md §4.4.
type Loop struct {
	bus      Publisher
	store    sessions.Store
	registry *Registry
	executor *Executor
	provider LLMProvider
	config   LoopConfig
	logger   *slog.Logger

	mu      sync.Mutex
	workers map[string]chan models.InboundMessage
}

// NewLoop wires a Loop from its collaborators.
func NewLoop(busImpl Publisher, store sessions.Store, registry *Registry, executor *Executor, provider LLMProvider, config LoopConfig, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		bus:      busImpl,
		store:    store,
		registry: registry,
		executor: executor,
		provider: provider,
		config:   sanitizeLoopConfig(config),
		logger:   logger.With("component", "agent_loop"),
		workers:  make(map[string]chan models.InboundMessage),
	}
}

// Run consumes inbound messages from the bus until ctx is cancelled or the
// bus shuts down. Turns for distinct sessions run concurrently; turns for
// the same session are strictly serialized through a per-session worker
// goroutine, per spec.md §5.
func (l *Loop) Run(ctx context.Context) {
	for {
		msg, ok, err := l.bus.ConsumeInbound(ctx)
		if err != nil || !ok {
			return
		}
		l.dispatch(ctx, msg)
	}
}

func (l *Loop) dispatch(ctx context.Context, msg models.InboundMessage) {
	key := msg.SessionKey()
	l.mu.Lock()
	ch, ok := l.workers[key]
	if !ok {
		ch = make(chan models.InboundMessage, 32)
		l.workers[key] = ch
		go l.worker(ctx, ch)
	}
	l.mu.Unlock()
	ch <- msg
}

func (l *Loop) worker(ctx context.Context, ch chan models.InboundMessage) {
	for msg := range ch {
		l.ProcessTurn(ctx, msg)
	}
}

// turn carries the mutable state of a single call to ProcessTurn, mirror
// of the teacher's LoopState.
type turn struct {
	sessionKey string
	iteration  int
	state      models.AgentState
}

func (l *Loop) transition(ctx context.Context, t *turn, to models.AgentState, reason string) {
	from := t.state
	t.state = to
	if from == to {
		return
	}
	err := l.bus.PublishStateChange(ctx, models.StateChangeEvent{
		SessionKey: t.sessionKey, From: from, To: to, Reason: reason, At: time.Now(),
	})
	if err != nil {
		l.logger.Error("failed to publish state change", "session", t.sessionKey, "error", err)
	}
}

// ProcessTurn drives one inbound message through the full state machine:
// Idle -> Building -> AwaitingModel -> (ExecutingTools -> Building)* ->
// Publishing|Failed -> Idle.
func (l *Loop) ProcessTurn(ctx context.Context, msg models.InboundMessage) {
	key := msg.SessionKey()
	t := &turn{sessionKey: key, state: models.StateIdle}
	l.transition(ctx, t, models.StateBuilding, "inbound received")

	sess, err := l.store.GetOrCreate(key)
	if err != nil {
		l.fail(ctx, t, msg, fmt.Sprintf("Error: could not load session: %v", err))
		return
	}

	toolCtx := l.registry.CurrentContext()
	toolCtx.Channel, toolCtx.ChatID, toolCtx.SessionKey = msg.Channel, msg.ChatID, key
	l.registry.UpdateContext(toolCtx)

	userMsg := models.Message{Role: models.RoleUser, Content: msg.Content, CreatedAt: time.Now()}
	if len(msg.Media) > 0 {
		userMsg.Content = withMediaRefs(userMsg.Content, msg.Media)
	}
	if err := l.store.AppendMessage(key, userMsg); err != nil {
		l.fail(ctx, t, msg, fmt.Sprintf("Error: could not persist message: %v", err))
		return
	}
	sess.Messages = append(sess.Messages, userMsg)

	finalText := ""
	capNotice := ""

	for t.iteration < l.config.MaxIterations {
		t.iteration++
		l.transition(ctx, t, models.StateAwaitingModel, "prompt assembled")

		chunk, provErr := l.completeWithRetry(ctx, toolCtx, sess, msg.Content)
		if provErr != nil {
			l.fail(ctx, t, msg, fmt.Sprintf("Error: the model is unavailable right now (%v)", provErr))
			return
		}

		finalText = chunk.text
		if len(chunk.toolCalls) == 0 {
			assistantMsg := models.Message{Role: models.RoleAssistant, Content: chunk.text, CreatedAt: time.Now()}
			if err := l.store.AppendMessage(key, assistantMsg); err != nil {
				l.fail(ctx, t, msg, fmt.Sprintf("Error: could not persist response: %v", err))
				return
			}
			sess.Messages = append(sess.Messages, assistantMsg)
			l.transition(ctx, t, models.StatePublishing, "terminal response")
			break
		}

		assistantMsg := models.Message{Role: models.RoleAssistant, Content: chunk.text, ToolCalls: chunk.toolCalls, CreatedAt: time.Now()}
		if err := l.store.AppendMessage(key, assistantMsg); err != nil {
			l.fail(ctx, t, msg, fmt.Sprintf("Error: could not persist response: %v", err))
			return
		}
		sess.Messages = append(sess.Messages, assistantMsg)

		l.transition(ctx, t, models.StateExecutingTools, "tool calls requested")
		results := l.executor.ExecuteSequential(ctx, chunk.toolCalls)
		for _, r := range results {
			toolMsg := models.Message{
				Role: models.RoleTool, Content: r.Result.Content, Name: r.ToolName,
				ToolCallID: r.ToolCallID, CreatedAt: time.Now(),
			}
			if err := l.store.AppendMessage(key, toolMsg); err != nil {
				l.logger.Error("failed to persist tool result", "session", key, "tool", r.ToolName, "error", err)
			}
			sess.Messages = append(sess.Messages, toolMsg)

			event := models.ToolExecutionEvent{
				ToolCallID: r.ToolCallID, Name: r.ToolName, Duration: r.Duration, At: time.Now(),
			}
			if r.Err != nil {
				event.Err = r.Err.Error()
			} else {
				event.Result = r.Result.Content
			}
			if err := l.bus.PublishToolEvent(ctx, event); err != nil {
				l.logger.Error("bus publish failed mid-turn, aborting", "session", key, "error", err)
				return
			}
		}

		if t.iteration >= l.config.MaxIterations {
			capNotice = fmt.Sprintf("\n\n[Notice: reached the maximum of %d tool round-trips for this turn.]", l.config.MaxIterations)
			l.transition(ctx, t, models.StatePublishing, "max iterations reached")
			break
		}
		l.transition(ctx, t, models.StateBuilding, "tools complete")
	}

	if t.state != models.StatePublishing {
		capNotice = fmt.Sprintf("\n\n[Notice: reached the maximum of %d tool round-trips for this turn.]", l.config.MaxIterations)
		l.transition(ctx, t, models.StatePublishing, "max iterations reached")
	}

	out := models.OutboundMessage{
		ID: uuid.NewString(), Channel: msg.Channel, ChatID: msg.ChatID,
		Content: finalText + capNotice, At: time.Now(),
	}
	if err := l.bus.PublishOutbound(ctx, out); err != nil {
		l.logger.Error("bus publish failed, turn aborted without outbound", "session", key, "error", err)
		return
	}
	l.transition(ctx, t, models.StateIdle, "outbound enqueued")
}

func (l *Loop) fail(ctx context.Context, t *turn, msg models.InboundMessage, userMessage string) {
	l.transition(ctx, t, models.StateFailed, userMessage)
	out := models.OutboundMessage{
		ID: uuid.NewString(), Channel: msg.Channel, ChatID: msg.ChatID,
		Content: userMessage, At: time.Now(),
	}
	if err := l.bus.PublishOutbound(ctx, out); err != nil {
		l.logger.Error("bus publish failed while reporting failure", "session", t.sessionKey, "error", err)
		return
	}
	l.transition(ctx, t, models.StateIdle, "error outbound enqueued")
}

type completionResult struct {
	text      string
	toolCalls []models.ToolCall
}

// completeWithRetry calls the provider, retrying transient errors with
// exponential backoff and jitter up to config.ProviderMaxRetries times.
// Non-transient errors return immediately.
func (l *Loop) completeWithRetry(ctx context.Context, toolCtx Context, sess sessions.Session, lastUserContent string) (completionResult, error) {
	if l.provider == nil {
		return completionResult{}, &ProviderError{Transient: false, Cause: ErrNoProvider}
	}

	req := l.buildRequest(toolCtx, sess, lastUserContent)

	var lastErr error
	backoff := l.config.ProviderBackoff
	for attempt := 0; attempt <= l.config.ProviderMaxRetries; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int63n(int64(backoff) + 1))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return completionResult{}, &ProviderError{Transient: false, Cause: ctx.Err()}
			}
			backoff *= 2
		}

		chunks, err := l.provider.Complete(ctx, req)
		if err != nil {
			lastErr = err
			if !isTransientProviderErr(err) {
				return completionResult{}, &ProviderError{Transient: false, Cause: err}
			}
			continue
		}

		result, streamErr := drainChunks(chunks)
		if streamErr == nil {
			return result, nil
		}
		lastErr = streamErr
		if !isTransientProviderErr(streamErr) {
			return completionResult{}, &ProviderError{Transient: false, Cause: streamErr}
		}
	}
	return completionResult{}, &ProviderError{Transient: true, Cause: lastErr}
}

func drainChunks(chunks <-chan *CompletionChunk) (completionResult, error) {
	var result completionResult
	var text strings.Builder
	for c := range chunks {
		if c.Error != nil {
			return completionResult{}, c.Error
		}
		if c.Text != "" {
			text.WriteString(c.Text)
		}
		if c.ToolCall != nil {
			call := *c.ToolCall
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
			result.toolCalls = append(result.toolCalls, call)
		}
		if c.Done {
			break
		}
	}
	result.text = text.String()
	return result, nil
}

func (l *Loop) buildRequest(toolCtx Context, sess sessions.Session, lastUserContent string) *CompletionRequest {
	system := l.config.SystemPrompt(toolCtx, lastUserContent)
	history := sess.Messages
	if len(history) > l.config.MaxHistoryMessages {
		history = history[len(history)-l.config.MaxHistoryMessages:]
	}

	messages := make([]CompletionMessage, 0, len(history))
	for _, m := range history {
		cm := CompletionMessage{Role: m.Role, Content: m.Content, ToolCalls: m.ToolCalls}
		if m.Role == models.RoleTool {
			cm.ToolResults = []models.ToolResult{{ToolCallID: m.ToolCallID, Content: m.Content}}
		}
		messages = append(messages, cm)
	}

	return &CompletionRequest{
		Model:    l.config.DefaultModel,
		System:   system,
		Messages: messages,
		Tools:    l.registry.Definitions(true),
	}
}

func withMediaRefs(content string, media []models.Media) string {
	if len(media) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	for _, m := range media {
		fmt.Fprintf(&b, "\n[attachment: %s %s]", m.Type, m.Filename)
	}
	return b.String()
}

func isTransientProviderErr(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if ok := asProviderError(err, &pe); ok {
		return pe.Transient
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"timeout", "rate limit", "429", "503", "connection reset", "temporarily unavailable", "context deadline exceeded"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

func asProviderError(err error, target **ProviderError) bool {
	pe, ok := err.(*ProviderError)
	if ok {
		*target = pe
	}
	return ok
}
