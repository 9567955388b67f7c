package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pocketrb/core/internal/tools/exec"
)

func TestJobsListStatusOutputKill(t *testing.T) {
	execMgr := exec.NewManager(t.TempDir())
	execTool := exec.NewTool(execMgr)
	jobsTool := NewTool(execMgr)

	startParams, _ := json.Marshal(map[string]any{"command": "sleep 2 && echo done", "background": true})
	startResult, err := execTool.Execute(context.Background(), startParams)
	if err != nil || startResult.IsError {
		t.Fatalf("start background job: err=%v result=%+v", err, startResult)
	}

	listResult, err := jobsTool.Execute(context.Background(), json.RawMessage(`{"action":"list"}`))
	if err != nil || listResult.IsError {
		t.Fatalf("list: err=%v result=%+v", err, listResult)
	}

	var procs []exec.ProcessInfo
	if err := json.Unmarshal([]byte(listResult.Content), &procs); err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if len(procs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(procs))
	}
	jobID := procs[0].ID

	statusParams, _ := json.Marshal(map[string]any{"action": "status", "job_id": jobID})
	statusResult, err := jobsTool.Execute(context.Background(), statusParams)
	if err != nil || statusResult.IsError {
		t.Fatalf("status: err=%v result=%+v", err, statusResult)
	}
	if !strings.Contains(statusResult.Content, "running") {
		t.Fatalf("expected running status, got %s", statusResult.Content)
	}

	killParams, _ := json.Marshal(map[string]any{"action": "kill", "job_id": jobID})
	killResult, err := jobsTool.Execute(context.Background(), killParams)
	if err != nil || killResult.IsError {
		t.Fatalf("kill: err=%v result=%+v", err, killResult)
	}

	time.Sleep(50 * time.Millisecond)
	outputParams, _ := json.Marshal(map[string]any{"action": "output", "job_id": jobID})
	outputResult, err := jobsTool.Execute(context.Background(), outputParams)
	if err != nil || outputResult.IsError {
		t.Fatalf("output: err=%v result=%+v", err, outputResult)
	}
}

func TestJobsUnknownJobIDReturnsError(t *testing.T) {
	execMgr := exec.NewManager(t.TempDir())
	jobsTool := NewTool(execMgr)

	result, err := jobsTool.Execute(context.Background(), json.RawMessage(`{"action":"status","job_id":"nope"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error for unknown job id")
	}
}

func TestJobsRequiresAction(t *testing.T) {
	execMgr := exec.NewManager(t.TempDir())
	jobsTool := NewTool(execMgr)

	result, err := jobsTool.Execute(context.Background(), json.RawMessage(`{"action":"bogus"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error for unsupported action")
	}
}
