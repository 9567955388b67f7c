// Package memory implements the Collaborator hook the agent core calls
// through to remember and recall facts. spec.md §1/§6 scope the actual
// document store out as an external collaborator the core never assumes
// a specific backend for, so this package carries only that hook and a
// process-local reference implementation of it, not a vector database.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pocketrb/core/pkg/models"
)

// Collaborator is the external memory capability the agent core consumes
// (spec §6): remember typed facts, search them semantically, summarize
// relevant context for a prompt, list recent events, and report stats.
// The core never assumes a specific backing store behind it.
type Collaborator interface {
	RememberLearned(ctx context.Context, key, value string) error
	RememberUser(ctx context.Context, key, value string) error
	RememberPreference(ctx context.Context, key, value string) error
	RememberContext(ctx context.Context, key, value string) error
	Search(ctx context.Context, query string) ([]*models.SearchResult, error)
	RelevantContext(ctx context.Context, query string, maxFacts int) (string, error)
	RecentEvents(ctx context.Context, n int) ([]*models.MemoryEntry, error)
	Stats(ctx context.Context) (map[string]any, error)
}

// categoryLearned, etc. tag the MemoryMetadata.Source of entries recorded
// through each remember_* verb, so Search results can be told apart.
const (
	categoryLearned    = "learned"
	categoryUser       = "user"
	categoryPreference = "preference"
	categoryContext    = "context"
)

// maxRecentEvents bounds the in-process ring buffer Search and
// RecentEvents read from; it is not persisted, so a restart starts it
// empty. A deployment that needs durable, cross-restart recall wires a
// different Collaborator implementation in front of its own store.
const maxRecentEvents = 200

// CollaboratorAdapter is the reference Collaborator: an in-process ring
// buffer of remembered facts, searched by substring match. It requires no
// configuration and never errors, so the memory tool stays Available()
// with no external dependency.
type CollaboratorAdapter struct {
	scope   models.MemoryScope
	scopeID string

	mu     sync.Mutex
	recent []*models.MemoryEntry
}

// NewCollaboratorAdapter builds a CollaboratorAdapter scoped to scope/scopeID.
func NewCollaboratorAdapter(scope models.MemoryScope, scopeID string) *CollaboratorAdapter {
	if scope == "" {
		scope = models.ScopeGlobal
	}
	return &CollaboratorAdapter{scope: scope, scopeID: scopeID}
}

func (c *CollaboratorAdapter) remember(_ context.Context, category, key, value string) error {
	entry := &models.MemoryEntry{
		ID:        uuid.NewString(),
		Content:   fmt.Sprintf("%s: %s", key, value),
		Metadata:  models.MemoryMetadata{Source: category, Extra: map[string]any{"key": key}},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if c.scope == models.ScopeSession || c.scope == models.ScopeChannel {
		entry.SessionID = c.scopeID
	}

	c.mu.Lock()
	c.recent = append(c.recent, entry)
	if len(c.recent) > maxRecentEvents {
		c.recent = c.recent[len(c.recent)-maxRecentEvents:]
	}
	c.mu.Unlock()
	return nil
}

func (c *CollaboratorAdapter) RememberLearned(ctx context.Context, key, value string) error {
	return c.remember(ctx, categoryLearned, key, value)
}

func (c *CollaboratorAdapter) RememberUser(ctx context.Context, key, value string) error {
	return c.remember(ctx, categoryUser, key, value)
}

func (c *CollaboratorAdapter) RememberPreference(ctx context.Context, key, value string) error {
	return c.remember(ctx, categoryPreference, key, value)
}

func (c *CollaboratorAdapter) RememberContext(ctx context.Context, key, value string) error {
	return c.remember(ctx, categoryContext, key, value)
}

// Search scans the in-process buffer for entries whose content contains
// query, case-insensitively, most recent first.
func (c *CollaboratorAdapter) Search(_ context.Context, query string) ([]*models.SearchResult, error) {
	needle := strings.ToLower(strings.TrimSpace(query))

	c.mu.Lock()
	defer c.mu.Unlock()

	var results []*models.SearchResult
	for i := len(c.recent) - 1; i >= 0; i-- {
		entry := c.recent[i]
		if needle != "" && !strings.Contains(strings.ToLower(entry.Content), needle) {
			continue
		}
		results = append(results, &models.SearchResult{Entry: entry, Score: 1})
	}
	return results, nil
}

// RelevantContext formats the top maxFacts search hits as plain text
// suitable for splicing into a system prompt.
func (c *CollaboratorAdapter) RelevantContext(ctx context.Context, query string, maxFacts int) (string, error) {
	if maxFacts <= 0 {
		maxFacts = 5
	}
	results, err := c.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) > maxFacts {
		results = results[:maxFacts]
	}
	if len(results) == 0 {
		return "", nil
	}
	text := ""
	for _, r := range results {
		if r.Entry == nil {
			continue
		}
		text += "- " + r.Entry.Content + "\n"
	}
	return text, nil
}

// RecentEvents returns the last n remember_* calls made through this
// adapter, most recent last. This is process-local, not persisted.
func (c *CollaboratorAdapter) RecentEvents(ctx context.Context, n int) ([]*models.MemoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.recent) {
		n = len(c.recent)
	}
	out := make([]*models.MemoryEntry, n)
	copy(out, c.recent[len(c.recent)-n:])
	return out, nil
}

func (c *CollaboratorAdapter) Stats(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{"recent_events": len(c.recent), "backend": "in_process"}, nil
}
