// Package cron implements the cron tool: add/remove/enable/list/run
// against the scheduler's persistent job set.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pocketrb/core/internal/agent"
	croncore "github.com/pocketrb/core/internal/cron"
)

// Tool implements cron(action, id?, name?, schedule?, payload?, enabled?,
// delete_after_run?, include_disabled?).
type Tool struct {
	scheduler *croncore.Scheduler
}

// NewTool creates a cron tool backed by scheduler.
func NewTool(scheduler *croncore.Scheduler) *Tool {
	return &Tool{scheduler: scheduler}
}

func (t *Tool) Name() string        { return "cron" }
func (t *Tool) Description() string { return "Add, remove, enable/disable, list, or immediately run scheduled jobs." }
func (t *Tool) Available() bool     { return t.scheduler != nil }

// scheduleInput is the wire shape of a Schedule: exactly one of at/every/cron
// is meaningful, selected by kind.
type scheduleInput struct {
	Kind     string `json:"kind"`
	At       string `json:"at"`
	EveryMs  int64  `json:"every_ms"`
	Cron     string `json:"cron"`
	Timezone string `json:"timezone"`
}

// payloadInput is the wire shape of a Payload.
type payloadInput struct {
	Message string `json:"message"`
	Deliver bool   `json:"deliver"`
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
}

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"description": "add, remove, enable, list, or run.",
				"enum":        []string{"add", "remove", "enable", "list", "run"},
			},
			"id":   map[string]any{"type": "string", "description": "Job id; required for remove/enable/run."},
			"name": map[string]any{"type": "string", "description": "Job name; for add."},
			"schedule": map[string]any{
				"type":        "object",
				"description": "For add: {kind: at|every|cron, at?: RFC3339 timestamp, every_ms?: int (min 60000), cron?: 5-field expression, timezone?: IANA name}.",
			},
			"payload": map[string]any{
				"type":        "object",
				"description": "For add: {message, deliver?: bool, channel?, chat_id?}. deliver=true requires channel and chat_id.",
			},
			"enabled":           map[string]any{"type": "boolean", "description": "For add: whether the job starts enabled (default true). For enable: the target state."},
			"delete_after_run":  map[string]any{"type": "boolean", "description": "For add: delete the job once it has no further run (default: true for at schedules, false otherwise)."},
			"include_disabled":  map[string]any{"type": "boolean", "description": "For list: include disabled jobs (default false)."},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.scheduler == nil {
		return &agent.ToolResult{Content: "cron scheduler unavailable", IsError: true}, nil
	}
	var input struct {
		Action          string         `json:"action"`
		ID              string         `json:"id"`
		Name            string         `json:"name"`
		Schedule        scheduleInput  `json:"schedule"`
		Payload         payloadInput   `json:"payload"`
		Enabled         *bool          `json:"enabled"`
		DeleteAfterRun  *bool          `json:"delete_after_run"`
		IncludeDisabled bool           `json:"include_disabled"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))

	switch action {
	case "add":
		schedule, err := parseSchedule(input.Schedule)
		if err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		enabled := true
		if input.Enabled != nil {
			enabled = *input.Enabled
		}
		job, err := t.scheduler.AddJob(schedule, croncore.Payload{
			Message: input.Payload.Message,
			Deliver: input.Payload.Deliver,
			Channel: input.Payload.Channel,
			ChatID:  input.Payload.ChatID,
		}, input.Name, enabled, input.DeleteAfterRun)
		if err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		return jsonResult(job), nil

	case "remove":
		if input.ID == "" {
			return &agent.ToolResult{Content: "id is required", IsError: true}, nil
		}
		removed, err := t.scheduler.RemoveJob(input.ID)
		if err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		if !removed {
			return &agent.ToolResult{Content: "job not found", IsError: true}, nil
		}
		return &agent.ToolResult{Content: "removed"}, nil

	case "enable":
		if input.ID == "" {
			return &agent.ToolResult{Content: "id is required", IsError: true}, nil
		}
		enabled := true
		if input.Enabled != nil {
			enabled = *input.Enabled
		}
		ok, err := t.scheduler.EnableJob(input.ID, enabled)
		if err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		if !ok {
			return &agent.ToolResult{Content: "job not found", IsError: true}, nil
		}
		return &agent.ToolResult{Content: "updated"}, nil

	case "list":
		jobs := t.scheduler.ListJobs(input.IncludeDisabled)
		return jsonResult(jobs), nil

	case "run":
		if input.ID == "" {
			return &agent.ToolResult{Content: "id is required", IsError: true}, nil
		}
		if err := t.scheduler.RunJob(ctx, input.ID); err != nil {
			return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
		}
		return &agent.ToolResult{Content: "ran"}, nil

	default:
		return &agent.ToolResult{Content: "unsupported action: " + input.Action, IsError: true}, nil
	}
}

func parseSchedule(in scheduleInput) (croncore.Schedule, error) {
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	switch kind {
	case "at":
		at, err := time.Parse(time.RFC3339, in.At)
		if err != nil {
			return croncore.Schedule{}, fmt.Errorf("invalid at timestamp: %w", err)
		}
		return croncore.NewAtSchedule(at)
	case "every":
		return croncore.NewEverySchedule(time.Duration(in.EveryMs) * time.Millisecond)
	case "cron":
		return croncore.NewCronSchedule(in.Cron, in.Timezone)
	default:
		return croncore.Schedule{}, fmt.Errorf("schedule.kind must be at, every, or cron")
	}
}

func jsonResult(payload any) *agent.ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("encode result: %v", err), IsError: true}
	}
	return &agent.ToolResult{Content: string(encoded)}
}
