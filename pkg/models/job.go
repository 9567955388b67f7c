package models

import "time"

// ScheduleKind is the discriminant for Schedule's kind-specific field.
type ScheduleKind string

const (
	ScheduleAt    ScheduleKind = "at"
	ScheduleEvery ScheduleKind = "every"
	ScheduleCron  ScheduleKind = "cron"
)

// MinEvery is the minimum interval accepted for ScheduleEvery, in
// milliseconds (60s).
const MinEvery = 60 * time.Second

// Schedule describes when a Job fires. Exactly one of At, Every, Cron is
// set, matching Kind. Schedule is immutable within a Job; edits replace it.
type Schedule struct {
	Kind     ScheduleKind `json:"kind"`
	At       time.Time    `json:"at,omitempty"`
	Every    time.Duration `json:"every,omitempty"`
	Cron     string       `json:"cron,omitempty"`
	Timezone string       `json:"timezone,omitempty"`
}

// Job is a persistent, schedulable unit of work. Delivery semantics are
// governed by Deliver: false routes Payload through the agent loop as a
// synthetic inbound message; true publishes Payload directly as an
// outbound message to Channel/ChatID.
type Job struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Schedule       Schedule  `json:"schedule"`
	Payload        string    `json:"payload"`
	Deliver        bool      `json:"deliver"`
	Channel        string    `json:"channel,omitempty"`
	ChatID         string    `json:"chat_id,omitempty"`
	Enabled        bool      `json:"enabled"`
	DeleteAfterRun bool      `json:"delete_after_run"`
	NextRunAt      time.Time `json:"next_run_at,omitempty"`
	LastRunAt      time.Time `json:"last_run_at,omitempty"`
	LastStatus     string    `json:"last_status,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to a caller outside the
// scheduler's lock.
func (j Job) Clone() Job {
	clone := j
	return clone
}
