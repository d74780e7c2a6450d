// Package agent composes retrieval, session state and the reasoning engine
// into the chat operations the server exposes.
package agent

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quillmind/quill/core"
	"github.com/quillmind/quill/engine"
	"github.com/quillmind/quill/knowledge"
	"github.com/quillmind/quill/sessions"
)

// ChatRequest is one user turn.
type ChatRequest struct {
	// SessionID selects the conversation. Empty means start a new one.
	SessionID string `json:"session_id"`

	// Message is the user's text.
	Message string `json:"message"`

	// ImageBase64 is an optional image for this turn only, raw base64 or
	// a data URL.
	ImageBase64 string `json:"image_base64,omitempty"`

	// UseRAG enables knowledge retrieval. Defaults to true on the wire.
	UseRAG bool `json:"use_rag"`

	// UseTools exposes tools to the model. Defaults to true on the wire.
	UseTools bool `json:"use_tools"`
}

// ChatResponse is the completed turn.
type ChatResponse struct {
	SessionID     string                  `json:"session_id"`
	Response      string                  `json:"response"`
	ToolCalls     []engine.ToolCallRecord `json:"tool_calls"`
	RetrievedDocs []knowledge.RetrievedDoc `json:"retrieved_docs"`
}

// Event is one frame of a streamed turn. Frames arrive as one meta event,
// zero or more content events, then exactly one done or error event.
type Event struct {
	Type          string                   `json:"type"`
	SessionID     string                   `json:"session_id,omitempty"`
	RetrievedDocs []knowledge.RetrievedDoc `json:"retrieved_docs,omitempty"`
	Content       string                   `json:"content,omitempty"`
	Message       string                   `json:"message,omitempty"`
}

// Event types.
const (
	EventMeta    = "meta"
	EventContent = "content"
	EventDone    = "done"
	EventError   = "error"
)

// Service runs chat turns.
type Service struct {
	engine    *engine.Engine
	sessions  *sessions.Manager
	retriever *knowledge.Retriever
	log       zerolog.Logger
}

// New creates a chat service. retriever may be nil to disable retrieval
// entirely.
func New(eng *engine.Engine, mgr *sessions.Manager, retriever *knowledge.Retriever, log zerolog.Logger) *Service {
	return &Service{
		engine:    eng,
		sessions:  mgr,
		retriever: retriever,
		log:       log.With().Str("component", "agent").Logger(),
	}
}

// Chat runs one turn to completion and records it in the session.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return s.run(ctx, req, nil)
}

// ChatStream runs one turn, emitting protocol events as it progresses. The
// emit callback is called from the calling goroutine only.
func (s *Service) ChatStream(ctx context.Context, req ChatRequest, emit func(Event)) {
	if _, err := s.run(ctx, req, emit); err != nil {
		emit(Event{Type: EventError, Message: err.Error()})
		return
	}
	emit(Event{Type: EventDone})
}

func (s *Service) run(ctx context.Context, req ChatRequest, emit func(Event)) (*ChatResponse, error) {
	session, err := s.sessions.GetOrCreate(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	retrieval := &knowledge.RetrievalResult{}
	if req.UseRAG && s.retriever != nil {
		retrieval = s.retriever.Retrieve(ctx, session.ID, req.Message, session.UploadedDocuments)
	}

	if emit != nil {
		emit(Event{Type: EventMeta, SessionID: session.ID, RetrievedDocs: docsOrEmpty(retrieval.Docs)})
	}

	prompt := buildKnowledgePrompt(req.Message, retrieval)
	if prefix := sessionContextPrefix(session.UploadedDocuments); prefix != "" {
		prompt = prefix + prompt
	}
	if req.ImageBase64 != "" {
		prompt += imageHint(req.UseTools)
	}

	var onDelta func(string)
	if emit != nil {
		onDelta = func(text string) {
			emit(Event{Type: EventContent, Content: text})
		}
	}

	out, err := s.engine.Run(ctx, engine.Input{
		History: session.History,
		Prompt:  prompt,
		ToolContext: &core.ToolContext{
			SessionID:   session.ID,
			ImageBase64: req.ImageBase64,
		},
		UseTools: req.UseTools,
		OnDelta:  onDelta,
	})
	if err != nil {
		return nil, err
	}

	// The turn only enters history once it fully succeeded.
	if err := s.sessions.RecordTurn(session.ID, req.Message, out.Text); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("session_id", session.ID).
		Int("tool_calls", len(out.ToolCalls)).
		Int("retrieved_docs", len(retrieval.Docs)).
		Msg("turn completed")

	return &ChatResponse{
		SessionID:     session.ID,
		Response:      out.Text,
		ToolCalls:     recordsOrEmpty(out.ToolCalls),
		RetrievedDocs: docsOrEmpty(retrieval.Docs),
	}, nil
}

// ClearHistory wipes the session's conversation and document state.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) error {
	return s.sessions.ClearHistory(ctx, sessionID)
}

func docsOrEmpty(docs []knowledge.RetrievedDoc) []knowledge.RetrievedDoc {
	if docs == nil {
		return []knowledge.RetrievedDoc{}
	}
	return docs
}

func recordsOrEmpty(records []engine.ToolCallRecord) []engine.ToolCallRecord {
	if records == nil {
		return []engine.ToolCallRecord{}
	}
	return records
}
