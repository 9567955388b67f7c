package cron

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pocketrb/core/pkg/models"
)

type fakeBus struct {
	mu       sync.Mutex
	inbound  []models.InboundMessage
	outbound []models.OutboundMessage
}

func (b *fakeBus) PublishInbound(ctx context.Context, m models.InboundMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inbound = append(b.inbound, m)
	return nil
}

func (b *fakeBus) PublishOutbound(ctx context.Context, m models.OutboundMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound = append(b.outbound, m)
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *Store, *fakeBus) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	bus := &fakeBus{}
	sched := NewScheduler(store, bus)
	return sched, store, bus
}

func TestAddJobRejectsDeliverWithoutChannel(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	schedule, _ := NewEverySchedule(time.Minute)
	_, err := sched.AddJob(schedule, Payload{Message: "hi", Deliver: true}, "job", true, nil)
	if err == nil {
		t.Fatalf("expected error for deliver=true without channel/chat_id")
	}
}

func TestRunOnceDeliversSyntheticInboundByDefault(t *testing.T) {
	sched, _, bus := newTestScheduler(t)
	schedule, _ := NewEverySchedule(time.Minute)
	job, err := sched.AddJob(schedule, Payload{Message: "ping"}, "heartbeat", true, nil)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	sched.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if n := sched.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected 1 job fired, got %d", n)
	}
	if len(bus.inbound) != 1 {
		t.Fatalf("expected 1 synthetic inbound message, got %d", len(bus.inbound))
	}
	msg := bus.inbound[0]
	if msg.Channel != "cron" || msg.SenderID != "cron" || msg.ChatID != job.ID || msg.Content != "ping" {
		t.Fatalf("unexpected synthetic inbound message: %+v", msg)
	}
}

func TestRunOnceDeliversOutboundWhenDeliverTrue(t *testing.T) {
	sched, _, bus := newTestScheduler(t)
	schedule, _ := NewEverySchedule(time.Minute)
	_, err := sched.AddJob(schedule, Payload{Message: "status ok", Deliver: true, Channel: "telegram", ChatID: "peer1"}, "status", true, nil)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	sched.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if n := sched.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected 1 job fired, got %d", n)
	}
	if len(bus.outbound) != 1 {
		t.Fatalf("expected 1 direct outbound message, got %d", len(bus.outbound))
	}
	msg := bus.outbound[0]
	if msg.Channel != "telegram" || msg.ChatID != "peer1" || msg.Content != "status ok" {
		t.Fatalf("unexpected outbound message: %+v", msg)
	}
}

func TestAddJobDefaultsDeleteAfterRunForAtSchedule(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	schedule, _ := NewAtSchedule(time.Now().Add(time.Hour))
	job, err := sched.AddJob(schedule, Payload{Message: "once"}, "one-shot", true, nil)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if !job.DeleteAfterRun {
		t.Fatalf("expected at-schedule jobs to default DeleteAfterRun=true")
	}
}

func TestAtMostOncePolicyAdvancesPastMissedTicks(t *testing.T) {
	sched, store, bus := newTestScheduler(t)
	schedule, _ := NewEverySchedule(time.Minute)
	job, err := sched.AddJob(schedule, Payload{Message: "tick"}, "tick", true, nil)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	farFuture := time.Now().Add(24 * time.Hour)
	sched.now = func() time.Time { return farFuture }

	if n := sched.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected exactly 1 firing despite many missed ticks, got %d", n)
	}
	if len(bus.inbound) != 1 {
		t.Fatalf("expected exactly 1 delivered message, got %d", len(bus.inbound))
	}

	got, ok := store.Get(job.ID)
	if !ok {
		t.Fatalf("expected job to still exist")
	}
	if !got.NextRun.After(farFuture) {
		t.Fatalf("expected next_run_at to advance past now, got %v vs now %v", got.NextRun, farFuture)
	}
}

func TestRemoveAndEnableJob(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	schedule, _ := NewEverySchedule(time.Minute)
	job, err := sched.AddJob(schedule, Payload{Message: "hi"}, "j", true, nil)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	ok, err := sched.EnableJob(job.ID, false)
	if err != nil || !ok {
		t.Fatalf("EnableJob: ok=%v err=%v", ok, err)
	}
	if jobs := sched.ListJobs(false); len(jobs) != 0 {
		t.Fatalf("expected disabled job to be excluded by default, got %d", len(jobs))
	}

	removed, err := sched.RemoveJob(job.ID)
	if err != nil || !removed {
		t.Fatalf("RemoveJob: removed=%v err=%v", removed, err)
	}
}
