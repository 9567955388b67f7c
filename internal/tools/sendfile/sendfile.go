// Package sendfile implements the send_file tool: attaches a workspace
// file to an outbound message after validating its size and extension.
package sendfile

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pocketrb/core/internal/agent"
	"github.com/pocketrb/core/internal/tools/files"
	"github.com/pocketrb/core/pkg/models"
)

// maxFileBytes is the spec's 50 MiB attachment cap.
const maxFileBytes = 50 << 20

// allowedExtensions bounds send_file to media/document types a channel
// adapter can reasonably deliver; anything else is refused up front.
var allowedExtensions = map[string]models.MediaType{
	".png": models.MediaImage, ".jpg": models.MediaImage, ".jpeg": models.MediaImage,
	".gif": models.MediaImage, ".webp": models.MediaImage,
	".mp3": models.MediaAudio, ".wav": models.MediaAudio, ".ogg": models.MediaAudio, ".m4a": models.MediaAudio,
	".mp4": models.MediaVideo, ".mov": models.MediaVideo, ".webm": models.MediaVideo,
	".pdf": models.MediaFile, ".txt": models.MediaFile, ".md": models.MediaFile,
	".csv": models.MediaFile, ".json": models.MediaFile, ".zip": models.MediaFile,
	".log": models.MediaFile,
}

// Publisher is the subset of the bus send_file needs.
type Publisher interface {
	PublishOutbound(ctx context.Context, m models.OutboundMessage) error
}

// Tool implements send_file(path, caption?, channel?, chat_id?).
type Tool struct {
	bus      Publisher
	registry *agent.Registry
	resolver files.Resolver
}

// NewTool creates a send_file tool rooted at workspace (passed to the
// same Resolver the file tools use, so paths are sandboxed identically).
func NewTool(bus Publisher, registry *agent.Registry, workspace string) *Tool {
	return &Tool{bus: bus, registry: registry, resolver: files.Resolver{Root: workspace}}
}

func (t *Tool) Name() string { return "send_file" }
func (t *Tool) Description() string {
	return "Send a file from the workspace to the user as a chat attachment."
}
func (t *Tool) Available() bool { return t.bus != nil }

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Workspace-relative or absolute path to the file."},
			"caption": {"type": "string", "description": "Optional caption text sent alongside the file."},
			"channel": {"type": "string", "description": "Channel to send on; defaults to the current turn's channel."},
			"chat_id": {"type": "string", "description": "Chat/peer id; defaults to the current turn's chat."}
		},
		"required": ["path"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.bus == nil {
		return &agent.ToolResult{Content: "bus unavailable", IsError: true}, nil
	}
	var input struct {
		Path    string `json:"path"`
		Caption string `json:"caption"`
		Channel string `json:"channel"`
		ChatID  string `json:"chat_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if input.Path == "" {
		return &agent.ToolResult{Content: "path is required", IsError: true}, nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	mediaType, ok := allowedExtensions[ext]
	if !ok {
		return &agent.ToolResult{Content: fmt.Sprintf("file extension %q is not allowed", ext), IsError: true}, nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("stat file: %v", err), IsError: true}, nil
	}
	if info.IsDir() {
		return &agent.ToolResult{Content: "path is a directory", IsError: true}, nil
	}
	if info.Size() > maxFileBytes {
		return &agent.ToolResult{Content: fmt.Sprintf("file is %d bytes, exceeds the %d byte limit", info.Size(), maxFileBytes), IsError: true}, nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("read file: %v", err), IsError: true}, nil
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = "application/octet-stream"
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
		Content: input.Caption,
		Media: []models.Media{{
			Type:     mediaType,
			MimeType: mimeType,
			Filename: filepath.Base(resolved),
			Data:     data,
		}},
		At: time.Now(),
	}
	if err := t.bus.PublishOutbound(ctx, out); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("publish message: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("sent %s (%d bytes)", filepath.Base(resolved), info.Size())}, nil
}
