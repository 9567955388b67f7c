// Package sessions implements the per-conversation history store: one
// append-only JSONL file per session key, an in-memory cache of hot
// sessions, and the truncation policy applied to persisted tool
// arguments/results.
package sessions

import (
	"time"

	"github.com/pocketrb/core/pkg/models"
)

// Session is the durable conversation state keyed by channel+":"+chat_id.
type Session struct {
	Key       string
	Messages  []models.Message
	Metadata  map[string]any
	CreatedAt time.Time
}

// Clone returns a deep copy of the session safe to hand across goroutine
// boundaries.
func (s Session) Clone() Session {
	clone := Session{Key: s.Key, CreatedAt: s.CreatedAt}
	clone.Messages = make([]models.Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	if s.Metadata != nil {
		clone.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// Store is the session persistence contract from spec.md §4.2.
type Store interface {
	GetOrCreate(key string) (Session, error)
	Get(key string) (Session, bool)
	Save(session Session) error
	AppendMessage(key string, msg models.Message) error
	Delete(key string) error
	ListKeys() ([]string, error)
	ClearAll() error
}
