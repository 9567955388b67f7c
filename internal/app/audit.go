package app

import (
	"context"
	"fmt"

	"github.com/pocketrb/core/internal/audit"
	"github.com/pocketrb/core/internal/bus"
	"github.com/pocketrb/core/internal/config"
	"github.com/pocketrb/core/pkg/models"
)

// buildAuditLogger constructs the optional durable audit log described by
// cfg. A disabled config still returns a usable, no-op Logger so callers
// never need a nil check.
func buildAuditLogger(cfg config.AuditConfig) (*audit.Logger, error) {
	auditCfg := audit.DefaultConfig()
	auditCfg.Enabled = cfg.Enabled
	if cfg.Level != "" {
		auditCfg.Level = audit.Level(cfg.Level)
	}
	if cfg.Format != "" {
		auditCfg.Format = audit.OutputFormat(cfg.Format)
	}
	if cfg.Output != "" {
		auditCfg.Output = cfg.Output
	}
	return audit.NewLogger(auditCfg)
}

// attachAuditLogger subscribes logger to the bus's tool-event and
// state-change streams, the hook SPEC_FULL.md calls out for a deployment
// that wants durable, queryable history beyond the session JSONL files.
func attachAuditLogger(b *bus.Bus, logger *audit.Logger) {
	_ = b.Subscribe(bus.StreamToolEvents, func(event any) {
		e, ok := event.(models.ToolExecutionEvent)
		if !ok {
			return
		}
		if e.Err != "" {
			logger.Log(context.Background(), &audit.Event{
				Type:       audit.EventToolCompletion,
				Level:      audit.LevelError,
				ToolName:   e.Name,
				ToolCallID: e.ToolCallID,
				Action:     "tool_failed",
				Duration:   e.Duration,
				Error:      e.Err,
			})
			return
		}
		logger.LogToolCompletion(context.Background(), e.Name, e.ToolCallID, true, e.Result, e.Duration, "")
	})

	_ = b.Subscribe(bus.StreamStateChanges, func(event any) {
		e, ok := event.(models.StateChangeEvent)
		if !ok {
			return
		}
		logger.Log(context.Background(), &audit.Event{
			Type:       audit.EventAgentAction,
			Level:      audit.LevelInfo,
			SessionKey: e.SessionKey,
			Action:     fmt.Sprintf("state:%s->%s", e.From, e.To),
			Details:    map[string]any{"reason": e.Reason},
		})
	})
}
