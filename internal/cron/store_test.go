package cron

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStoreAddPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	job := &Job{ID: "j1", Enabled: true, Schedule: Schedule{Kind: KindEvery, Every: time.Minute}, Payload: Payload{Message: "ping"}}
	if err := store.Add(job); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload NewStore: %v", err)
	}
	got, ok := reloaded.Get("j1")
	if !ok {
		t.Fatalf("expected job to survive reload")
	}
	if got.Payload.Message != "ping" {
		t.Fatalf("expected payload to round-trip, got %+v", got.Payload)
	}
}

func TestStoreRemoveAndSetEnabled(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	job := &Job{ID: "j1", Enabled: true, Payload: Payload{Message: "ping"}}
	if err := store.Add(job); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ok, err := store.SetEnabled("j1", false)
	if err != nil || !ok {
		t.Fatalf("SetEnabled: ok=%v err=%v", ok, err)
	}
	if got, _ := store.Get("j1"); got.Enabled {
		t.Fatalf("expected job to be disabled")
	}

	removed, err := store.Remove("j1")
	if err != nil || !removed {
		t.Fatalf("Remove: removed=%v err=%v", removed, err)
	}
	if _, ok := store.Get("j1"); ok {
		t.Fatalf("expected job to be gone after Remove")
	}
}

func TestStoreListFiltersDisabledByDefault(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.Add(&Job{ID: "enabled", Enabled: true, Payload: Payload{Message: "a"}})
	store.Add(&Job{ID: "disabled", Enabled: false, Payload: Payload{Message: "b"}})

	if jobs := store.List(false); len(jobs) != 1 || jobs[0].ID != "enabled" {
		t.Fatalf("expected only the enabled job, got %+v", jobs)
	}
	if jobs := store.List(true); len(jobs) != 2 {
		t.Fatalf("expected both jobs with includeDisabled, got %d", len(jobs))
	}
}

func TestStoreRecordRunDeletesAfterRunWhenExhausted(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.Add(&Job{ID: "j1", Enabled: true, DeleteAfterRun: true, Payload: Payload{Message: "a"}})

	if err := store.recordRun("j1", time.Now(), nil, time.Time{}, false); err != nil {
		t.Fatalf("recordRun: %v", err)
	}
	if _, ok := store.Get("j1"); ok {
		t.Fatalf("expected job to be deleted after exhausted run with DeleteAfterRun")
	}
}

func TestStoreRecordRunDisablesWhenNotDeleteAfterRun(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.Add(&Job{ID: "j1", Enabled: true, Payload: Payload{Message: "a"}})

	if err := store.recordRun("j1", time.Now(), nil, time.Time{}, false); err != nil {
		t.Fatalf("recordRun: %v", err)
	}
	got, ok := store.Get("j1")
	if !ok {
		t.Fatalf("expected job to still exist")
	}
	if got.Enabled {
		t.Fatalf("expected job to be disabled once its schedule is exhausted")
	}
}
