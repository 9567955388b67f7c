// Package message implements the message tool: publishes an outbound
// message to the channel/chat the current turn is addressed to, or to an
// explicitly named one.
package message

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pocketrb/core/internal/agent"
	"github.com/pocketrb/core/pkg/models"
)

// Publisher is the subset of the bus message needs: publishing one
// outbound message.
type Publisher interface {
	PublishOutbound(ctx context.Context, m models.OutboundMessage) error
}

// Tool implements message(content, channel?, chat_id?).
type Tool struct {
	bus      Publisher
	registry *agent.Registry
}

// NewTool creates a message tool. registry supplies the ambient
// channel/chat_id for the current turn when the caller omits them.
func NewTool(bus Publisher, registry *agent.Registry) *Tool {
	return &Tool{bus: bus, registry: registry}
}

func (t *Tool) Name() string        { return "message" }
func (t *Tool) Description() string { return "Send a message to the user on the current or a named channel." }
func (t *Tool) Available() bool     { return t.bus != nil }

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {"type": "string", "description": "Message text to send."},
			"channel": {"type": "string", "description": "Channel to send on; defaults to the current turn's channel."},
			"chat_id": {"type": "string", "description": "Chat/peer id; defaults to the current turn's chat."}
		},
		"required": ["content"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.bus == nil {
		return &agent.ToolResult{Content: "bus unavailable", IsError: true}, nil
	}
	var input struct {
		Content string `json:"content"`
		Channel string `json:"channel"`
		ChatID  string `json:"chat_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if input.Content == "" {
		return &agent.ToolResult{Content: "content is required", IsError: true}, nil
	}

	channel, chatID := input.Channel, input.ChatID
	if t.registry != nil {
		ambient := t.registry.CurrentContext()
		if channel == "" {
			channel = ambient.Channel
		}
		if chatID == "" {
			chatID = ambient.ChatID
		}
	}
	if channel == "" || chatID == "" {
		return &agent.ToolResult{Content: "channel and chat_id are required when no ambient turn context is set", IsError: true}, nil
	}

	out := models.OutboundMessage{
		ID:      uuid.NewString(),
		Channel: channel,
		ChatID:  chatID,
		Content: input.Content,
		At:      time.Now(),
	}
	if err := t.bus.PublishOutbound(ctx, out); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("publish message: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: "sent"}, nil
}
