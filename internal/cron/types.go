package cron

import "time"

// Payload is the content a fired Job delivers, either as a synthetic
// inbound message for the agent loop to process (Deliver=false, the
// default) or as a direct outbound message bypassing the agent
// (Deliver=true).
type Payload struct {
	Message string
	Deliver bool
	Channel string // required when Deliver is true
	ChatID  string // required when Deliver is true
}

// Job is a persistent scheduled task: a Schedule describing when it fires,
// a Payload describing what it delivers, and run bookkeeping.
type Job struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	Enabled        bool      `json:"enabled"`
	DeleteAfterRun bool      `json:"delete_after_run"`
	Schedule       Schedule  `json:"schedule"`
	Payload        Payload   `json:"payload"`
	NextRun        time.Time `json:"next_run,omitempty"`
	LastRun        time.Time `json:"last_run,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// Clone returns a deep copy safe to hand to a caller outside the store's
// lock.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	return &clone
}
