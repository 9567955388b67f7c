package sessions

import (
	"os"
	"strings"
	"testing"

	"github.com/pocketrb/core/pkg/models"
)

func newTestStore(t *testing.T) *JSONLStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewJSONLStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestSanitizeKey(t *testing.T) {
	got := SanitizeKey("cli:chat/1 weird*name")
	if strings.ContainsAny(got, ":/ *") {
		t.Fatalf("sanitized key still has unsafe chars: %q", got)
	}
}

func TestAppendThenReloadRoundTrips(t *testing.T) {
	store := newTestStore(t)
	key := "cli:chat1"

	if _, err := store.GetOrCreate(key); err != nil {
		t.Fatalf("get_or_create: %v", err)
	}
	if err := store.AppendMessage(key, models.Message{Role: models.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendMessage(key, models.Message{Role: models.RoleAssistant, Content: "hi there"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Force a reload from disk by dropping the cache.
	store.mu.Lock()
	delete(store.cache, key)
	store.mu.Unlock()

	sess, ok := store.Get(key)
	if !ok {
		t.Fatalf("expected session to reload from disk")
	}
	if len(sess.Messages) != 2 || sess.Messages[0].Content != "hello" || sess.Messages[1].Content != "hi there" {
		t.Fatalf("unexpected reloaded messages: %+v", sess.Messages)
	}
}

func TestTruncationAppliesOnlyToPersistedCopy(t *testing.T) {
	store := newTestStore(t)
	key := "cli:chat1"
	store.GetOrCreate(key)

	longResult := strings.Repeat("x", 3000)
	if err := store.AppendMessage(key, models.Message{Role: models.RoleTool, ToolCallID: "call1", Name: "read_file", Content: longResult}); err != nil {
		t.Fatalf("append: %v", err)
	}

	store.mu.Lock()
	delete(store.cache, key)
	store.mu.Unlock()

	sess, _ := store.Get(key)
	got := sess.Messages[0].Content
	if len(got) >= len(longResult) {
		t.Fatalf("expected persisted content truncated, got len=%d", len(got))
	}
	if !strings.Contains(got, "truncated 1000 chars") {
		t.Fatalf("expected truncation marker, got suffix %q", got[len(got)-40:])
	}
}

func TestCorruptTrailingLineIsSkippedNotFatal(t *testing.T) {
	store := newTestStore(t)
	key := "cli:chat1"
	store.GetOrCreate(key)
	store.AppendMessage(key, models.Message{Role: models.RoleUser, Content: "good line"})

	f, err := os.OpenFile(store.pathFor(key), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString(`{"role":"user","content":"truncated` + "\n")
	f.Close()

	store.mu.Lock()
	delete(store.cache, key)
	store.mu.Unlock()

	sess, ok := store.Get(key)
	if !ok {
		t.Fatalf("expected session to still load despite corrupt trailing line")
	}
	if len(sess.Messages) != 1 {
		t.Fatalf("expected corrupt line dropped, got %d messages", len(sess.Messages))
	}
}

func TestSaveRewritesAtomically(t *testing.T) {
	store := newTestStore(t)
	key := "cli:chat1"
	sess, _ := store.GetOrCreate(key)
	sess.Messages = []models.Message{{Role: models.RoleUser, Content: "one"}}
	if err := store.Save(sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := os.Stat(store.pathFor(key) + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be renamed away")
	}

	reloaded, ok := store.Get(key)
	if !ok || len(reloaded.Messages) != 1 {
		t.Fatalf("unexpected reloaded session: %+v", reloaded)
	}
}

func TestListKeysUnionsCacheAndDisk(t *testing.T) {
	store := newTestStore(t)
	store.GetOrCreate("cli:a")
	store.AppendMessage("cli:a", models.Message{Role: models.RoleUser, Content: "hi"})

	keys, err := store.ListKeys()
	if err != nil {
		t.Fatalf("list_keys: %v", err)
	}
	found := false
	for _, k := range keys {
		if k == "cli_a" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sanitized key cli_a in %v", keys)
	}
}
