package sessions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillmind/quill/core"
)

// PartitionDeleter removes a session's vector partition. Satisfied by the
// knowledge store.
type PartitionDeleter interface {
	DeletePartition(ctx context.Context, partition string) error
}

// PartitionName maps a session id to its vector partition name.
type PartitionName func(sessionID string) string

// Manager owns session lifecycle. All exported methods are safe for
// concurrent use.
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	store      Store
	partitions PartitionDeleter
	partition  PartitionName
	log        zerolog.Logger
}

// NewManager loads existing session records from the store. partitions may be
// nil when no vector store is attached.
func NewManager(store Store, partitions PartitionDeleter, partition PartitionName, log zerolog.Logger) (*Manager, error) {
	m := &Manager{
		sessions:   make(map[string]*Session),
		store:      store,
		partitions: partitions,
		partition:  partition,
		log:        log.With().Str("component", "sessions").Logger(),
	}

	loaded, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, session := range loaded {
		m.sessions[session.ID] = session
	}
	m.log.Info().Int("count", len(loaded)).Msg("sessions restored")
	return m, nil
}

// Create makes a new empty session and persists it.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(uuid.NewString())
}

// GetOrCreate returns the session with the given id, creating it if absent.
// An empty id always creates a fresh session. The returned session is a copy.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		return m.createLocked(uuid.NewString())
	}
	if session, ok := m.sessions[id]; ok {
		return session.clone(), nil
	}
	return m.createLocked(id)
}

func (m *Manager) createLocked(id string) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:                id,
		Name:              defaultName(now),
		CreatedAt:         now,
		UploadedDocuments: []string{},
	}
	if err := m.store.Save(session); err != nil {
		return nil, fmt.Errorf("persist session %s: %w", id, err)
	}
	m.sessions[id] = session
	m.log.Info().Str("session_id", id).Msg("session created")
	return session.clone(), nil
}

// Delete removes the session from memory and disk and clears its vector
// partition. Returns false only when the session existed in neither place.
// Partition cleanup is best effort and never fails the delete.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	_, inMemory := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	onDisk, err := m.store.Delete(id)
	if err != nil {
		return false, err
	}
	if !inMemory && !onDisk {
		return false, nil
	}

	m.clearPartition(ctx, id)
	m.log.Info().Str("session_id", id).Msg("session deleted")
	return true, nil
}

// RecordTurn appends a completed user/assistant exchange, names the session
// from the first user message, trims history to the retention limit, and
// persists the result.
func (m *Manager) RecordTurn(id, userText, assistantText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}

	session.History = append(session.History,
		core.Message{Role: core.RoleUser, Content: userText},
		core.Message{Role: core.RoleAssistant, Content: assistantText},
	)

	if len(session.History) == 2 {
		if title := titleFrom(userText); title != "" {
			session.Name = title
		}
	}

	if len(session.History) > historyLimit {
		session.History = session.History[len(session.History)-historyLimit:]
		// Turns are stored as user/assistant pairs. If the cut landed
		// mid-pair, drop the leading assistant message too.
		if len(session.History) > 0 && session.History[0].Role == core.RoleAssistant {
			session.History = session.History[1:]
		}
	}

	if err := m.store.Save(session); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// History returns a copy of the session's messages.
func (m *Manager) History(id string) ([]core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	history := make([]core.Message, len(session.History))
	copy(history, session.History)
	return history, nil
}

// List returns session summaries, newest first.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summaries := make([]Summary, 0, len(m.sessions))
	for _, session := range m.sessions {
		summaries = append(summaries, Summary{
			ID:           session.ID,
			Name:         session.Name,
			CreatedAt:    session.CreatedAt,
			MessageCount: len(session.History) / 2,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}

// AddUploadedDocument records a document filename against the session,
// ignoring duplicates while preserving upload order.
func (m *Manager) AddUploadedDocument(id, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	if contains(session.UploadedDocuments, filename) {
		return nil
	}
	session.UploadedDocuments = append(session.UploadedDocuments, filename)
	if err := m.store.Save(session); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// UploadedDocuments returns the session's document filenames in upload order.
func (m *Manager) UploadedDocuments(id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	docs := make([]string, len(session.UploadedDocuments))
	copy(docs, session.UploadedDocuments)
	return docs, nil
}

// ClearUploadedDocuments forgets the session's document list without
// touching history or the vector partition.
func (m *Manager) ClearUploadedDocuments(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	if len(session.UploadedDocuments) == 0 {
		return nil
	}
	session.UploadedDocuments = []string{}
	if err := m.store.Save(session); err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}
	return nil
}

// ClearHistory empties the session's history and document list, persists the
// cleared state, and drops the session's vector partition.
func (m *Manager) ClearHistory(ctx context.Context, id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session %s not found", id)
	}
	session.History = nil
	session.UploadedDocuments = []string{}
	err := m.store.Save(session)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist session %s: %w", id, err)
	}

	m.clearPartition(ctx, id)
	m.log.Info().Str("session_id", id).Msg("session history cleared")
	return nil
}

func (m *Manager) clearPartition(ctx context.Context, id string) {
	if m.partitions == nil || m.partition == nil {
		return
	}
	if err := m.partitions.DeletePartition(ctx, m.partition(id)); err != nil {
		m.log.Warn().Err(err).Str("session_id", id).Msg("session partition cleanup failed")
	}
}

// defaultName is the placeholder name given to a fresh session.
func defaultName(t time.Time) string {
	return "New chat " + t.Format("15:04")
}

// titleFrom derives a session name from the first user message. A blank
// message yields the empty string and the caller keeps the default name.
func titleFrom(text string) string {
	runes := []rune(text)
	if len(runes) > titleLimit {
		runes = runes[:titleLimit]
	}
	return strings.TrimSpace(string(runes))
}
