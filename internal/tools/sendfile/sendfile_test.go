package sendfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pocketrb/core/pkg/models"
)

type fakeBus struct {
	published []models.OutboundMessage
}

func (f *fakeBus) PublishOutbound(ctx context.Context, m models.OutboundMessage) error {
	f.published = append(f.published, m)
	return nil
}

func TestSendFileAttachesAllowedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	bus := &fakeBus{}
	tool := NewTool(bus, nil, dir)
	params, _ := json.Marshal(map[string]any{"path": "note.txt", "caption": "see attached", "channel": "cli", "chat_id": "c1"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil || result.IsError {
		t.Fatalf("execute: err=%v result=%+v", err, result)
	}
	if len(bus.published) != 1 || len(bus.published[0].Media) != 1 {
		t.Fatalf("expected one published message with one media attachment, got %+v", bus.published)
	}
	if bus.published[0].Media[0].Type != models.MediaFile {
		t.Fatalf("expected MediaFile, got %s", bus.published[0].Media[0].Type)
	}
}

func TestSendFileRejectsDisallowedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.exe")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tool := NewTool(&fakeBus{}, nil, dir)
	params, _ := json.Marshal(map[string]any{"path": "payload.exe", "channel": "cli", "chat_id": "c1"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "not allowed") {
		t.Fatalf("expected extension rejection, got %+v", result)
	}
}

func TestSendFileRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	big := make([]byte, maxFileBytes+1)
	if err := os.WriteFile(path, big, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tool := NewTool(&fakeBus{}, nil, dir)
	params, _ := json.Marshal(map[string]any{"path": "big.txt", "channel": "cli", "chat_id": "c1"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "exceeds") {
		t.Fatalf("expected size rejection, got %+v", result)
	}
}

func TestSendFileRejectsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	tool := NewTool(&fakeBus{}, nil, dir)
	params, _ := json.Marshal(map[string]any{"path": "../outside.txt", "channel": "cli", "chat_id": "c1"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "escapes workspace") {
		t.Fatalf("expected workspace escape rejection, got %+v", result)
	}
}
