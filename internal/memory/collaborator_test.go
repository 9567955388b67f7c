package memory

import (
	"context"
	"testing"

	"github.com/pocketrb/core/pkg/models"
)

func TestCollaboratorAdapterRecentEventsTracksRememberCalls(t *testing.T) {
	c := NewCollaboratorAdapter(models.ScopeGlobal, "")
	ctx := context.Background()

	if err := c.RememberUser(ctx, "name", "Alex"); err != nil {
		t.Fatalf("RememberUser: %v", err)
	}
	if err := c.RememberPreference(ctx, "tone", "terse"); err != nil {
		t.Fatalf("RememberPreference: %v", err)
	}
	if err := c.RememberLearned(ctx, "timezone", "PT"); err != nil {
		t.Fatalf("RememberLearned: %v", err)
	}

	events, err := c.RecentEvents(ctx, 2)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Metadata.Source != categoryLearned {
		t.Fatalf("expected most recent event to be %q, got %q", categoryLearned, events[1].Metadata.Source)
	}

	all, err := c.RecentEvents(ctx, 0)
	if err != nil {
		t.Fatalf("RecentEvents(0): %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events with n=0, got %d", len(all))
	}
}

func TestCollaboratorAdapterSearchMatchesSubstring(t *testing.T) {
	c := NewCollaboratorAdapter(models.ScopeGlobal, "")
	ctx := context.Background()

	if err := c.RememberUser(ctx, "name", "Alex"); err != nil {
		t.Fatalf("RememberUser: %v", err)
	}
	if err := c.RememberPreference(ctx, "tone", "terse"); err != nil {
		t.Fatalf("RememberPreference: %v", err)
	}

	results, err := c.Search(ctx, "terse")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Metadata.Source != categoryPreference {
		t.Fatalf("expected one preference match, got %+v", results)
	}

	none, err := c.Search(ctx, "no such fact")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches, got %+v", none)
	}
}

func TestCollaboratorAdapterRelevantContextFormatsTopMatches(t *testing.T) {
	c := NewCollaboratorAdapter(models.ScopeGlobal, "")
	ctx := context.Background()

	if err := c.RememberContext(ctx, "topic", "deploy freeze"); err != nil {
		t.Fatalf("RememberContext: %v", err)
	}

	text, err := c.RelevantContext(ctx, "deploy", 5)
	if err != nil {
		t.Fatalf("RelevantContext: %v", err)
	}
	if text == "" {
		t.Fatalf("expected non-empty relevant context")
	}

	empty, err := c.RelevantContext(ctx, "no such fact", 5)
	if err != nil {
		t.Fatalf("RelevantContext: %v", err)
	}
	if empty != "" {
		t.Fatalf("expected empty relevant context for a non-matching query, got %q", empty)
	}
}

func TestCollaboratorAdapterRememberCarriesSessionScope(t *testing.T) {
	c := NewCollaboratorAdapter(models.ScopeSession, "session-1")
	ctx := context.Background()

	if err := c.RememberContext(ctx, "topic", "deploy freeze"); err != nil {
		t.Fatalf("RememberContext: %v", err)
	}

	events, _ := c.RecentEvents(ctx, 1)
	if len(events) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(events))
	}
	if events[0].SessionID != "session-1" {
		t.Fatalf("expected session id to be carried onto the entry, got %q", events[0].SessionID)
	}
}

func TestCollaboratorAdapterStatsReportsRecentCount(t *testing.T) {
	c := NewCollaboratorAdapter(models.ScopeGlobal, "")
	ctx := context.Background()

	if err := c.RememberUser(ctx, "name", "Alex"); err != nil {
		t.Fatalf("RememberUser: %v", err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["recent_events"] != 1 {
		t.Fatalf("expected recent_events=1, got %v", stats["recent_events"])
	}
	if stats["backend"] != "in_process" {
		t.Fatalf("expected backend=in_process, got %v", stats["backend"])
	}
}
