package exec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestExecToolRunsQuickCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewTool(mgr)

	params, _ := json.Marshal(map[string]any{"command": "echo hello"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Fatalf("expected stdout in result: %s", result.Content)
	}
}

func TestExecToolRefusesDangerousCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewTool(mgr)

	params, _ := json.Marshal(map[string]any{"command": "rm -rf /"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute should not error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "refused") {
		t.Fatalf("expected refusal, got %+v", result)
	}
}

func TestExecToolAutoBackgroundsLongRunningCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewTool(mgr)

	params, _ := json.Marshal(map[string]any{"command": "git clone https://example.invalid/repo.git"})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected background job to start, got error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "background job") {
		t.Fatalf("expected background-job acknowledgement, got %s", result.Content)
	}
}

func TestClassifyQuickVsStandardVsLongRunning(t *testing.T) {
	if c := classify("ls -la", 0, false); c.kind != kindQuick {
		t.Fatalf("expected ls classified quick, got %s", c.kind)
	}
	if c := classify("go test ./...", 0, false); c.kind != kindStandard {
		t.Fatalf("expected go test classified standard, got %s", c.kind)
	}
	if c := classify("npm install", 0, false); c.kind != kindLongRunning {
		t.Fatalf("expected npm install classified long_running, got %s", c.kind)
	}
}

func TestClassifyExplicitTimeoutCappedForStandard(t *testing.T) {
	c := classify("go build ./...", 1000*time.Second, false)
	if c.timeout != standardTimeoutCap {
		t.Fatalf("expected timeout capped at %s, got %s", standardTimeoutCap, c.timeout)
	}
}

func TestHeadTailTruncateReportsDroppedBytes(t *testing.T) {
	s := strings.Repeat("x", 300_000)
	got := headTailTruncate(s, maxOutputChars)
	if len(got) >= len(s) {
		t.Fatalf("expected truncation, got len=%d", len(got))
	}
	if !strings.Contains(got, "bytes dropped") {
		t.Fatalf("expected dropped-bytes indicator, got suffix %q", got[len(got)-60:])
	}
}

func TestBackgroundJobWritesJobDirectory(t *testing.T) {
	root := t.TempDir()
	mgr := NewManager(root)
	tool := NewTool(mgr)

	params, _ := json.Marshal(map[string]any{"command": "sleep 0.2 && echo done", "background": true})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected background start, got %s", result.Content)
	}

	procs := mgr.list()
	if len(procs) != 1 {
		t.Fatalf("expected 1 tracked process, got %d", len(procs))
	}
}
