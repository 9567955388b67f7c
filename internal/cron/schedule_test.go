package cron

import (
	"testing"
	"time"
)

func TestNewEveryScheduleRejectsSubMinimum(t *testing.T) {
	if _, err := NewEverySchedule(30 * time.Second); err == nil {
		t.Fatalf("expected error for every < 60s")
	}
	if _, err := NewEverySchedule(60 * time.Second); err != nil {
		t.Fatalf("expected every=60s to be accepted: %v", err)
	}
}

func TestNewCronScheduleRejectsInvalidExpression(t *testing.T) {
	if _, err := NewCronSchedule("not a cron expr", ""); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
	if _, err := NewCronSchedule("*/5 * * * *", ""); err != nil {
		t.Fatalf("expected valid cron expression to be accepted: %v", err)
	}
}

func TestAtScheduleNextReturnsFalseAfterPassed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sched, err := NewAtSchedule(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("NewAtSchedule: %v", err)
	}
	_, ok, err := sched.Next(now)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatalf("expected no next run for an at schedule already in the past")
	}
}

func TestEveryScheduleNextAddsIntervalToNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sched, err := NewEverySchedule(time.Minute)
	if err != nil {
		t.Fatalf("NewEverySchedule: %v", err)
	}
	next, ok, err := sched.Next(now)
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if !next.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected next = now+1m, got %v", next)
	}
}

func TestCronScheduleNextMatchesExpression(t *testing.T) {
	sched, err := NewCronSchedule("0 * * * *", "")
	if err != nil {
		t.Fatalf("NewCronSchedule: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)
	next, ok, err := sched.Next(now)
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	want := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected next = %v, got %v", want, next)
	}
}
