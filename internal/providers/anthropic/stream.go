package anthropic

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/pocketrb/core/internal/agent"
	"github.com/pocketrb/core/pkg/models"
)

// anthropicStream narrows the SDK's SSE stream to what processStream needs.
type anthropicStream struct {
	inner *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (s *anthropicStream) Next() bool                                { return s.inner.Next() }
func (s *anthropicStream) Current() anthropic.MessageStreamEventUnion { return s.inner.Current() }
func (s *anthropicStream) Err() error                                 { return s.inner.Err() }

func processStream(stream *anthropicStream, chunks chan<- *agent.CompletionChunk) {
	var currentCall *models.ToolCall
	var currentInput strings.Builder
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			if start.Message.Usage.InputTokens > 0 {
				inputTokens = int(start.Message.Usage.InputTokens)
			}

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- &agent.CompletionChunk{Text: delta.Text}
				}
			case "input_json_delta":
				currentInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if currentCall != nil {
				var args map[string]any
				if currentInput.Len() > 0 {
					_ = json.Unmarshal([]byte(currentInput.String()), &args)
				}
				currentCall.Arguments = args
				chunks <- &agent.CompletionChunk{ToolCall: currentCall}
				currentCall = nil
			}

		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Usage.OutputTokens > 0 {
				outputTokens = int(delta.Usage.OutputTokens)
			}

		case "message_stop":
			chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
			return

		case "error":
			chunks <- &agent.CompletionChunk{Error: errors.New("anthropic: stream error")}
			return
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- &agent.CompletionChunk{Error: err}
	}
}
