package agent

import (
	"context"
	"encoding/json"

	"github.com/pocketrb/core/pkg/models"
)

// LLMProvider is the abstract capability §6 of the design names: submit
// history plus tools, receive content and/or tool-call requests back as a
// stream of chunks. Implementations (internal/providers/*) wrap a
// concrete vendor SDK; the agent loop never imports a vendor package
// directly.
type LLMProvider interface {
	// Complete streams a completion for req. The channel is closed after
	// the final chunk (Done=true) or an error chunk.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	Name() string
	Models() []Model
	SupportsTools() bool
}

// CompletionRequest is everything the loop hands a provider for one
// model turn.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []ToolDefinition
	MaxTokens int
}

// CompletionMessage is one entry of the conversation handed to the
// provider; it mirrors models.Message but in the shape providers expect
// (tool calls/results inline rather than as separate history entries).
type CompletionMessage struct {
	Role        models.Role
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// CompletionChunk is one piece of a streamed response. Exactly one of
// Text/ToolCall/Done/Error is meaningful per chunk; InputTokens/
// OutputTokens/StopReason are only populated on the final chunk.
type CompletionChunk struct {
	Text         string
	ToolCall     *models.ToolCall
	Done         bool
	Error        error
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Model describes one model a provider can serve.
type Model struct {
	ID          string
	Name        string
	ContextSize int
}

// ToolDefinition is the representation-neutral shape the loop hands
// providers: a function-schema form (name/description/parameters) that
// each provider adapter reshapes into its own wire format (Anthropic's
// input_schema, OpenAI's function-call schema, Bedrock's toolSpec).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}
