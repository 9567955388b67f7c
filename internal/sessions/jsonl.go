package sessions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/pocketrb/core/pkg/models"
)

var unsafeFilenameChar = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeKey replaces any character outside [A-Za-z0-9_-] with '_', per
// spec.md's session filename rule.
func SanitizeKey(key string) string {
	return unsafeFilenameChar.ReplaceAllString(key, "_")
}

// diskRecord is the on-disk JSONL shape for one history Message, per
// spec.md §6: role, content, optional name/tool_call_id/tool_calls.
// Unknown carries any fields this version does not recognize so they
// survive an unmodified round trip.
type diskRecord struct {
	Role       models.Role      `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []models.ToolCall `json:"tool_calls,omitempty"`
	CreatedAt  time.Time        `json:"created_at,omitempty"`
	Unknown    map[string]any   `json:"-"`
}

func toDiskRecord(m models.Message) diskRecord {
	return diskRecord{
		Role: m.Role, Content: m.Content, Name: m.Name,
		ToolCallID: m.ToolCallID, ToolCalls: m.ToolCalls, CreatedAt: m.CreatedAt,
	}
}

func (d diskRecord) toMessage() models.Message {
	return models.Message{
		Role: d.Role, Content: d.Content, Name: d.Name,
		ToolCallID: d.ToolCallID, ToolCalls: d.ToolCalls, CreatedAt: d.CreatedAt,
		Unknown: d.Unknown,
	}
}

// MarshalJSON preserves Unknown fields by merging them with the known
// ones before encoding, so a round trip through this struct drops no
// data the caller did not explicitly clear.
func (d diskRecord) MarshalJSON() ([]byte, error) {
	type known diskRecord
	base, err := json.Marshal(known(d))
	if err != nil {
		return nil, err
	}
	if len(d.Unknown) == 0 {
		return base, nil
	}
	merged := map[string]any{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range d.Unknown {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func (d *diskRecord) UnmarshalJSON(data []byte) error {
	type known diskRecord
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	*d = diskRecord(k)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for _, known := range []string{"role", "content", "name", "tool_call_id", "tool_calls", "created_at"} {
		delete(raw, known)
	}
	if len(raw) == 0 {
		return nil
	}
	d.Unknown = make(map[string]any, len(raw))
	for key, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			d.Unknown[key] = val
		}
	}
	return nil
}

// JSONLStore is the file-backed Store: one file per session under
// storageDir, one JSON object per line, with an in-memory cache guarded
// by a single store-wide mutex plus a per-session mutex for message-list
// mutation, per spec.md §4.2/§5.
type JSONLStore struct {
	storageDir string
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]*Session
	locks map[string]*sync.Mutex
}

// NewJSONLStore constructs a store rooted at storageDir, creating the
// directory if it does not already exist.
func NewJSONLStore(storageDir string, logger *slog.Logger) (*JSONLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &JSONLStore{
		storageDir: storageDir,
		logger:     logger.With("component", "session_store"),
		cache:      make(map[string]*Session),
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

func (s *JSONLStore) pathFor(key string) string {
	return filepath.Join(s.storageDir, SanitizeKey(key)+".jsonl")
}

func (s *JSONLStore) sessionLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// GetOrCreate returns the cached session for key, loading it from disk
// or creating a fresh one if neither exists.
func (s *JSONLStore) GetOrCreate(key string) (Session, error) {
	if sess, ok := s.Get(key); ok {
		return sess, nil
	}

	loaded, err := s.loadFromDisk(key)
	if err != nil {
		return Session{}, &sessionErr{op: "get_or_create", key: key, cause: err}
	}
	if loaded == nil {
		loaded = &Session{Key: key, CreatedAt: time.Now(), Metadata: map[string]any{}}
	}

	s.mu.Lock()
	s.cache[key] = loaded
	s.mu.Unlock()
	return loaded.Clone(), nil
}

// Get returns the cached/loaded session for key, if any, without
// creating one.
func (s *JSONLStore) Get(key string) (Session, bool) {
	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return cached.Clone(), true
	}

	loaded, err := s.loadFromDisk(key)
	if err != nil || loaded == nil {
		return Session{}, false
	}
	s.mu.Lock()
	s.cache[key] = loaded
	s.mu.Unlock()
	return loaded.Clone(), true
}

// loadFromDisk reads the JSONL file for key, tolerating a corrupt or
// truncated trailing line by dropping it rather than failing the whole
// load. Returns (nil, nil) if the file does not exist.
func (s *JSONLStore) loadFromDisk(key string) (*Session, error) {
	f, err := os.Open(s.pathFor(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("unreadable session file", "key", key, "error", err)
		return &Session{Key: key, CreatedAt: time.Now(), Metadata: map[string]any{}}, nil
	}
	defer f.Close()

	sess := &Session{Key: key, Metadata: map[string]any{}}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec diskRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.logger.Warn("skipping corrupt session line", "key", key, "line", lineNo, "error", err)
			continue
		}
		sess.Messages = append(sess.Messages, rec.toMessage())
	}
	if info, statErr := f.Stat(); statErr == nil {
		sess.CreatedAt = info.ModTime()
	}
	if len(sess.Messages) > 0 && sess.Messages[0].CreatedAt.Before(sess.CreatedAt) && !sess.Messages[0].CreatedAt.IsZero() {
		sess.CreatedAt = sess.Messages[0].CreatedAt
	}
	return sess, nil
}

// Save rewrites the whole session record atomically (write-temp-rename).
func (s *JSONLStore) Save(session Session) error {
	lock := s.sessionLock(session.Key)
	lock.Lock()
	defer lock.Unlock()

	path := s.pathFor(session.Key)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &sessionErr{op: "save", key: session.Key, cause: err}
	}
	writer := bufio.NewWriter(f)
	for _, msg := range session.Messages {
		rec := toDiskRecord(truncateForPersist(msg))
		rec.Unknown = msg.Unknown
		line, err := json.Marshal(rec)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return &sessionErr{op: "save", key: session.Key, cause: err}
		}
		if _, err := writer.Write(append(line, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return &sessionErr{op: "save", key: session.Key, cause: err}
		}
	}
	if err := writer.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &sessionErr{op: "save", key: session.Key, cause: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &sessionErr{op: "save", key: session.Key, cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &sessionErr{op: "save", key: session.Key, cause: err}
	}

	s.mu.Lock()
	clone := session.Clone()
	s.cache[session.Key] = &clone
	s.mu.Unlock()
	return nil
}

// AppendMessage appends one record to the session's on-disk log without
// rewriting history (O(1) under normal conditions), and mirrors it into
// the in-memory cache. On I/O failure, the cache is left untouched
// (atomicity per spec.md §4.2).
func (s *JSONLStore) AppendMessage(key string, msg models.Message) error {
	lock := s.sessionLock(key)
	lock.Lock()
	defer lock.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	rec := toDiskRecord(truncateForPersist(msg))
	rec.Unknown = msg.Unknown
	line, err := json.Marshal(rec)
	if err != nil {
		return &sessionErr{op: "append_message", key: key, cause: err}
	}

	f, err := os.OpenFile(s.pathFor(key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &sessionErr{op: "append_message", key: key, cause: err}
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return &sessionErr{op: "append_message", key: key, cause: err}
	}

	s.mu.Lock()
	cached, ok := s.cache[key]
	if !ok {
		cached = &Session{Key: key, CreatedAt: msg.CreatedAt, Metadata: map[string]any{}}
		s.cache[key] = cached
	}
	cached.Messages = append(cached.Messages, msg)
	s.mu.Unlock()
	return nil
}

// Delete removes the cache entry and backing file for key.
func (s *JSONLStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	delete(s.locks, key)
	s.mu.Unlock()

	if err := os.Remove(s.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return &sessionErr{op: "delete", key: key, cause: err}
	}
	return nil
}

// ListKeys returns the union of cached and on-disk session keys.
func (s *JSONLStore) ListKeys() ([]string, error) {
	seen := map[string]struct{}{}

	s.mu.Lock()
	for key := range s.cache {
		seen[key] = struct{}{}
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.storageDir)
	if err != nil {
		return nil, &sessionErr{op: "list_keys", cause: err}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const ext = ".jsonl"
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			seen[name[:len(name)-len(ext)]] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys, nil
}

// ClearAll wipes the cache and every session file. Test harness only.
func (s *JSONLStore) ClearAll() error {
	s.mu.Lock()
	s.cache = make(map[string]*Session)
	s.locks = make(map[string]*sync.Mutex)
	s.mu.Unlock()

	entries, err := os.ReadDir(s.storageDir)
	if err != nil {
		return &sessionErr{op: "clear_all", cause: err}
	}
	for _, e := range entries {
		if !e.IsDir() {
			os.Remove(filepath.Join(s.storageDir, e.Name()))
		}
	}
	return nil
}

type sessionErr struct {
	op    string
	key   string
	cause error
}

func (e *sessionErr) Error() string {
	if e.key != "" {
		return fmt.Sprintf("session: %s %s: %v", e.op, e.key, e.cause)
	}
	return fmt.Sprintf("session: %s: %v", e.op, e.cause)
}

func (e *sessionErr) Unwrap() error { return e.cause }
