package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pocketrb/core/pkg/models"
)

// Bus is the subset of the message bus the scheduler delivers job payloads
// through: a synthetic inbound for the agent loop to process, or a direct
// outbound bypassing it.
type Bus interface {
	PublishInbound(ctx context.Context, m models.InboundMessage) error
	PublishOutbound(ctx context.Context, m models.OutboundMessage) error
}

// stopGrace bounds how long Stop waits for an in-progress tick to finish
// before giving up and returning anyway.
const stopGrace = 10 * time.Second

// Scheduler evaluates the Store's jobs at a fixed cadence and delivers due
// ones through Bus, advancing each job's schedule exactly once per tick —
// jobs due during a stopped or overloaded period are not caught up.
type Scheduler struct {
	store        *Store
	bus          Bus
	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the tick cadence (default 1s).
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// NewScheduler creates a Scheduler over store, delivering due jobs through
// bus.
func NewScheduler(store *Store, bus Bus, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:        store,
		bus:          bus,
		logger:       slog.Default().With("component", "cron"),
		now:          time.Now,
		tickInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick loop in the background. Safe to call once;
// subsequent calls are no-ops until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runDue(runCtx)
			}
		}
	}()
	return nil
}

// Stop cancels the tick loop and waits up to a bounded grace period for an
// in-progress tick to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.started = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(stopGrace):
		return errors.New("cron scheduler stop timed out waiting for tick to finish")
	}
}

// RunOnce evaluates due jobs immediately, primarily for tests and for the
// cron tool's manual "run" action. Returns the number of jobs fired.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	return s.runDue(ctx)
}

// AddJob validates and persists a new job, computing its initial NextRun.
func (s *Scheduler) AddJob(schedule Schedule, payload Payload, name string, enabled bool, deleteAfterRun *bool) (*Job, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	now := s.now()
	next, ok, err := schedule.Next(now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("schedule has no next run")
	}
	deleteAfter := schedule.Kind == KindAt
	if deleteAfterRun != nil {
		deleteAfter = *deleteAfterRun
	}
	job := &Job{
		ID:             uuid.NewString(),
		Name:           name,
		Enabled:        enabled,
		DeleteAfterRun: deleteAfter,
		Schedule:       schedule,
		Payload:        payload,
		NextRun:        next,
	}
	if err := s.store.Add(job); err != nil {
		return nil, err
	}
	return job, nil
}

func validatePayload(p Payload) error {
	if strings.TrimSpace(p.Message) == "" {
		return fmt.Errorf("payload message is required")
	}
	if p.Deliver {
		if strings.TrimSpace(p.Channel) == "" || strings.TrimSpace(p.ChatID) == "" {
			return fmt.Errorf("payload channel and chat_id are required when deliver is true")
		}
	}
	return nil
}

// RemoveJob deletes a job by id.
func (s *Scheduler) RemoveJob(id string) (bool, error) {
	return s.store.Remove(id)
}

// EnableJob flips a job's enabled flag.
func (s *Scheduler) EnableJob(id string, enabled bool) (bool, error) {
	return s.store.SetEnabled(id, enabled)
}

// ListJobs returns all jobs, optionally including disabled ones.
func (s *Scheduler) ListJobs(includeDisabled bool) []*Job {
	return s.store.List(includeDisabled)
}

// RunJob fires a specific job immediately, independent of its schedule, and
// advances its NextRun/LastRun exactly as a normal tick would.
func (s *Scheduler) RunJob(ctx context.Context, id string) error {
	job, ok := s.store.Get(id)
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	s.fire(ctx, job)
	return nil
}

func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()
	due := s.store.dueSnapshot(now)
	for _, job := range due {
		s.fire(ctx, job)
	}
	return len(due)
}

func (s *Scheduler) fire(ctx context.Context, job *Job) {
	now := s.now()
	deliverErr := s.deliver(ctx, job)
	if deliverErr != nil {
		s.logger.Warn("cron job delivery failed", "id", job.ID, "error", deliverErr)
	}

	next, ok, nextErr := job.Schedule.Next(now)
	if nextErr != nil {
		s.logger.Warn("cron job schedule exhausted", "id", job.ID, "error", nextErr)
		ok = false
	}
	if err := s.store.recordRun(job.ID, now, deliverErr, next, ok); err != nil {
		s.logger.Warn("cron job persist failed", "id", job.ID, "error", err)
	}
}

func (s *Scheduler) deliver(ctx context.Context, job *Job) error {
	if job.Payload.Deliver {
		return s.bus.PublishOutbound(ctx, models.OutboundMessage{
			ID:      uuid.NewString(),
			Channel: job.Payload.Channel,
			ChatID:  job.Payload.ChatID,
			Content: job.Payload.Message,
			At:      s.now(),
		})
	}
	return s.bus.PublishInbound(ctx, models.InboundMessage{
		ID:       uuid.NewString(),
		Channel:  "cron",
		SenderID: "cron",
		ChatID:   job.ID,
		Content:  job.Payload.Message,
		At:       s.now(),
	})
}
