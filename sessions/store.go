package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillmind/quill/core"
)

// Store persists session records.
type Store interface {
	// Save writes the session's durable record.
	Save(session *Session) error

	// Load reads one session. Returns fs.ErrNotExist when absent.
	Load(id string) (*Session, error)

	// LoadAll reads every readable session record, skipping corrupt ones.
	LoadAll() ([]*Session, error)

	// Delete removes the record. Returns false when no record existed.
	Delete(id string) (bool, error)

	// Exists reports whether a record is on disk.
	Exists(id string) bool
}

// record is the on-disk session shape.
type record struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	CreatedAt         string          `json:"created_at"`
	UploadedDocuments []string        `json:"uploaded_documents"`
	History           json.RawMessage `json:"history"`

	// LatestDocument is the pre-multi-upload field, migrated on load.
	LatestDocument string `json:"latest_document,omitempty"`
}

// historyEntry is one durable message.
type historyEntry struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// FileStore keeps one JSON file per session under a directory.
type FileStore struct {
	dir string
	log zerolog.Logger
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir, log: log.With().Str("component", "session_store").Logger()}, nil
}

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.dir, id+".json")
}

// Save writes the session record atomically enough for a single writer.
func (fs *FileStore) Save(session *Session) error {
	history := make([]historyEntry, 0, len(session.History))
	for _, msg := range session.History {
		entry, ok := entryFromMessage(msg)
		if !ok {
			continue
		}
		history = append(history, entry)
	}
	rawHistory, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	rec := record{
		ID:                session.ID,
		Name:              session.Name,
		CreatedAt:         session.CreatedAt.UTC().Format(time.RFC3339),
		UploadedDocuments: session.UploadedDocuments,
		History:           rawHistory,
	}
	if rec.UploadedDocuments == nil {
		rec.UploadedDocuments = []string{}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.ID, err)
	}
	if err := os.WriteFile(fs.path(session.ID), data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", session.ID, err)
	}
	return nil
}

// Load reads one session record.
func (fs *FileStore) Load(id string) (*Session, error) {
	data, err := os.ReadFile(fs.path(id))
	if err != nil {
		return nil, err
	}
	return fs.decode(id, data)
}

// LoadAll reads every session record in the directory. Unreadable or corrupt
// files are logged and skipped so one bad record cannot take down startup.
func (fs *FileStore) LoadAll() ([]*Session, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}

	var sessions []*Session
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(fs.dir, entry.Name()))
		if err != nil {
			fs.log.Warn().Err(err).Str("session_id", id).Msg("skipping unreadable session record")
			continue
		}
		session, err := fs.decode(id, data)
		if err != nil {
			fs.log.Warn().Err(err).Str("session_id", id).Msg("skipping corrupt session record")
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Delete removes the record file. Idempotent.
func (fs *FileStore) Delete(id string) (bool, error) {
	err := os.Remove(fs.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	return true, nil
}

// Exists reports whether the record file is present.
func (fs *FileStore) Exists(id string) bool {
	_, err := os.Stat(fs.path(id))
	return err == nil
}

func (fs *FileStore) decode(id string, data []byte) (*Session, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}

	createdAt, err := time.Parse(time.RFC3339, rec.CreatedAt)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	session := &Session{
		ID:                rec.ID,
		Name:              rec.Name,
		CreatedAt:         createdAt,
		UploadedDocuments: rec.UploadedDocuments,
		History:           decodeHistory(rec.History, fs.log, id),
	}
	if session.UploadedDocuments == nil {
		session.UploadedDocuments = []string{}
	}
	// Migrate the legacy single-document field.
	if rec.LatestDocument != "" && !contains(session.UploadedDocuments, rec.LatestDocument) {
		session.UploadedDocuments = append(session.UploadedDocuments, rec.LatestDocument)
	}
	return session, nil
}

// decodeHistory unmarshals entries individually so a single malformed entry
// drops only itself.
func decodeHistory(raw json.RawMessage, log zerolog.Logger, id string) []core.Message {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("discarding unreadable history")
		return nil
	}

	var history []core.Message
	for _, item := range items {
		var entry historyEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("skipping malformed history entry")
			continue
		}
		msg, ok := messageFromEntry(entry)
		if !ok {
			log.Warn().Str("session_id", id).Str("type", entry.Type).Msg("skipping history entry with unknown type")
			continue
		}
		history = append(history, msg)
	}
	return history
}

func entryFromMessage(msg core.Message) (historyEntry, bool) {
	switch msg.Role {
	case core.RoleUser:
		return historyEntry{Type: "human", Content: msg.Content}, true
	case core.RoleAssistant:
		return historyEntry{Type: "ai", Content: msg.Content}, true
	case core.RoleSystem:
		return historyEntry{Type: "system", Content: msg.Content}, true
	default:
		// Tool exchanges are per-turn scaffolding, never persisted.
		return historyEntry{}, false
	}
}

func messageFromEntry(entry historyEntry) (core.Message, bool) {
	switch entry.Type {
	case "human":
		return core.Message{Role: core.RoleUser, Content: entry.Content}, true
	case "ai":
		return core.Message{Role: core.RoleAssistant, Content: entry.Content}, true
	case "system":
		return core.Message{Role: core.RoleSystem, Content: entry.Content}, true
	default:
		return core.Message{}, false
	}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
