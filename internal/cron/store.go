package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store is the persistent job set: an in-memory map guarded by one mutex,
// mirrored atomically (write-temp-and-rename) to a single JSON document on
// every mutation, per spec.md's job store format.
type Store struct {
	path string

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewStore opens (or creates) the job store at path, loading any existing
// jobs.json.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, jobs: make(map[string]*Job)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read job store: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var jobs map[string]*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("parse job store: %w", err)
	}
	s.jobs = jobs
	return nil
}

// persist rewrites the whole job store atomically. Caller must hold s.mu.
func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create job store dir: %w", err)
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write job store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename job store: %w", err)
	}
	return nil
}

// Add inserts or replaces a job and persists the store.
func (s *Store) Add(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return s.persist()
}

// Remove deletes a job by id and persists the store. Reports whether a job
// was actually removed.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false, nil
	}
	delete(s.jobs, id)
	if err := s.persist(); err != nil {
		return false, err
	}
	return true, nil
}

// SetEnabled flips a job's Enabled flag and persists the store.
func (s *Store) SetEnabled(id string, enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	job.Enabled = enabled
	if err := s.persist(); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns a clone of the job with the given id.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// List returns clones of all jobs, optionally including disabled ones.
func (s *Store) List(includeDisabled bool) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if !includeDisabled && !job.Enabled {
			continue
		}
		out = append(out, job.Clone())
	}
	return out
}

// dueSnapshot returns clones of enabled jobs whose NextRun is due at or
// before now.
func (s *Store) dueSnapshot(now time.Time) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0)
	for _, job := range s.jobs {
		if job.Enabled && !job.NextRun.IsZero() && !now.Before(job.NextRun) {
			out = append(out, job.Clone())
		}
	}
	return out
}

// recordRun writes back one execution's outcome: LastRun/LastError always;
// NextRun advances to next, or — if next is absent — the job is deleted
// (DeleteAfterRun) or disabled in place. Persists on every call.
func (s *Store) recordRun(id string, ranAt time.Time, runErr error, next time.Time, hasNext bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	job.LastRun = ranAt
	if runErr != nil {
		job.LastError = runErr.Error()
	} else {
		job.LastError = ""
	}
	if hasNext {
		job.NextRun = next
	} else if job.DeleteAfterRun {
		delete(s.jobs, id)
	} else {
		job.NextRun = time.Time{}
		job.Enabled = false
	}
	return s.persist()
}
