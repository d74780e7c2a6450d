// Package sessions manages conversation sessions: in-memory lifecycle,
// durable JSON records, and the history bookkeeping applied on every turn.
package sessions

import (
	"time"

	"github.com/quillmind/quill/core"
)

const (
	// historyLimit caps the retained history per session. Older messages
	// are dropped from the front.
	historyLimit = 20

	// titleLimit is the number of characters of the first user message
	// used as the session name.
	titleLimit = 20
)

// Session is a single conversation with its accumulated state.
type Session struct {
	ID                string
	Name              string
	CreatedAt         time.Time
	History           []core.Message
	UploadedDocuments []string
}

// Summary is the listing view of a session.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// clone returns a defensive copy so callers cannot mutate manager state.
func (s *Session) clone() *Session {
	cp := *s
	cp.History = make([]core.Message, len(s.History))
	copy(cp.History, s.History)
	cp.UploadedDocuments = make([]string, len(s.UploadedDocuments))
	copy(cp.UploadedDocuments, s.UploadedDocuments)
	return &cp
}
