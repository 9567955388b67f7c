package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pocketrb/core/internal/observability"
	"github.com/pocketrb/core/pkg/models"
)

// ExecutorConfig bounds one tool call's execution.
type ExecutorConfig struct {
	DefaultTimeout time.Duration

	// Metrics, if set, receives a RecordToolExecution observation per
	// completed call. Nil disables metrics recording.
	Metrics *observability.Metrics
}

// DefaultExecutorConfig returns the default timeout bounds.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{DefaultTimeout: 30 * time.Second}
}

// ExecutorMetrics counts executor-wide outcomes.
type ExecutorMetrics struct {
	TotalExecutions int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

// Executor runs ToolCalls against a Registry. Per spec.md §5, tool
// executions for one assistant response are processed sequentially, in
// the order the model emitted them, so observable side effects (file
// writes, outbound messages) happen in a predictable order.
type Executor struct {
	registry *Registry
	config   ExecutorConfig
	logger   *slog.Logger
	mu       sync.Mutex
	metrics  ExecutorMetrics
}

// NewExecutor builds an Executor bound to registry.
func NewExecutor(registry *Registry, config ExecutorConfig, logger *slog.Logger) *Executor {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultExecutorConfig().DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, config: config, logger: logger.With("component", "executor")}
}

// ExecutionResult pairs one ToolCall with its outcome.
type ExecutionResult struct {
	ToolCallID string
	ToolName   string
	Result     *ToolResult
	Err        error
	Duration   time.Duration
}

// ExecuteSequential runs each call in calls in order, waiting for one to
// finish before starting the next. It never stops early: a failing call
// still yields a (failed) ExecutionResult and execution continues, since
// tool errors are recoverable per the failure-semantics design.
func (e *Executor) ExecuteSequential(ctx context.Context, calls []models.ToolCall) []ExecutionResult {
	results := make([]ExecutionResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.executeOne(ctx, call))
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, call models.ToolCall) ExecutionResult {
	start := time.Now()
	params, err := argumentsToJSON(call.Arguments)
	if err != nil {
		return e.record(ExecutionResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Result:     &ToolResult{IsError: true, Content: "invalid arguments: " + err.Error()},
			Err:        NewToolError(call.Name, KindToolFailed, "invalid arguments", err),
			Duration:   time.Since(start),
		})
	}

	execCtx, cancel := context.WithTimeout(ctx, e.config.DefaultTimeout)
	defer cancel()

	result, execErr := e.executeWithRecover(execCtx, call.Name, params)
	duration := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded && execErr != nil {
		execErr = NewToolError(call.Name, KindToolTimeout, "tool timed out", ErrToolTimeout)
		result = &ToolResult{IsError: true, Content: execErr.Error()}
	}

	return e.record(ExecutionResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Result:     result,
		Err:        execErr,
		Duration:   duration,
	})
}

func (e *Executor) executeWithRecover(ctx context.Context, name string, params json.RawMessage) (result *ToolResult, err error) {
	done := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("tool panicked", "tool", name, "panic", r, "stack", string(debug.Stack()))
				result = &ToolResult{IsError: true, Content: fmt.Sprintf("tool panicked: %v", r)}
				err = NewToolError(name, KindToolFailed, "panic", fmt.Errorf("%v", r))
			}
			close(done)
		}()
		result, err = e.registry.Execute(ctx, name, params)
	}()

	select {
	case <-done:
		return result, err
	case <-ctx.Done():
		return &ToolResult{IsError: true, Content: "tool timed out"}, NewToolError(name, KindToolTimeout, "timed out", ctx.Err())
	}
}

func (e *Executor) record(r ExecutionResult) ExecutionResult {
	e.mu.Lock()
	e.metrics.TotalExecutions++
	if r.Err != nil {
		e.metrics.TotalFailures++
		if te, ok := IsToolError(r.Err); ok && te.Kind == KindToolTimeout {
			e.metrics.TotalTimeouts++
		}
	}
	e.mu.Unlock()

	if e.config.Metrics != nil {
		status := "success"
		if r.Err != nil {
			status = "error"
		}
		e.config.Metrics.RecordToolExecution(r.ToolName, status, r.Duration.Seconds())
	}

	e.logger.Info("tool_execution", "tool", r.ToolName, "duration_ms", r.Duration.Milliseconds(), "error", errString(r.Err))
	return r
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func argumentsToJSON(args map[string]any) (json.RawMessage, error) {
	if args == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(args)
}

// Metrics returns a snapshot of the executor's counters.
func (e *Executor) Metrics() ExecutorMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// NewToolCallID generates a fresh tool-call identifier.
func NewToolCallID() string { return uuid.NewString() }
