// Package server exposes the agent over HTTP: JSON request/response, an
// NDJSON streaming endpoint, and a websocket transport.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillmind/quill/agent"
	"github.com/quillmind/quill/ingest"
	"github.com/quillmind/quill/knowledge"
	"github.com/quillmind/quill/sessions"
)

const maxUploadBytes = 20 << 20

// Server is the HTTP front end.
type Server struct {
	agent    *agent.Service
	sessions *sessions.Manager
	store    *knowledge.Store
	ingest   *ingest.Service
	log      zerolog.Logger
}

// New wires the HTTP handlers.
func New(svc *agent.Service, mgr *sessions.Manager, store *knowledge.Store, ing *ingest.Service, log zerolog.Logger) *Server {
	return &Server{
		agent:    svc,
		sessions: mgr,
		store:    store,
		ingest:   ing,
		log:      log.With().Str("component", "server").Logger(),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /ws/chat", s.handleWebsocket)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /sessions/{id}/documents", s.handleDocuments)
	mux.HandleFunc("GET /sessions/{id}/knowledge/stats", s.handleSessionStats)
	mux.HandleFunc("POST /agent/clear", s.handleClear)
	mux.HandleFunc("POST /knowledge/upload", s.handleUpload)
	mux.HandleFunc("GET /knowledge/stats", s.handleKnowledgeStats)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// chatPayload is the wire shape of a chat request. The switch fields are
// pointers so that omission means enabled.
type chatPayload struct {
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	ImageBase64 string `json:"image_base64"`
	UseRAG      *bool  `json:"use_rag"`
	UseTools    *bool  `json:"use_tools"`
}

func (p *chatPayload) toRequest() agent.ChatRequest {
	return agent.ChatRequest{
		SessionID:   p.SessionID,
		Message:     p.Message,
		ImageBase64: p.ImageBase64,
		UseRAG:      p.UseRAG == nil || *p.UseRAG,
		UseTools:    p.UseTools == nil || *p.UseTools,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeChat(w, r)
	if !ok {
		return
	}

	resp, err := s.agent.Chat(r.Context(), payload.toRequest())
	if err != nil {
		s.log.Error().Err(err).Msg("chat failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChatStream writes newline-delimited JSON events and flushes after
// each one.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeChat(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	s.agent.ChatStream(r.Context(), payload.toRequest(), func(ev agent.Event) {
		if err := enc.Encode(ev); err != nil {
			s.log.Debug().Err(err).Msg("stream write failed, client likely gone")
			return
		}
		flusher.Flush()
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	session, err := s.sessions.Create()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": session.ID,
		"name":       session.Name,
		"created_at": session.CreatedAt,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.sessions.Delete(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "session_id": id})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	history, err := s.sessions.History(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	type entry struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	entries := make([]entry, 0, len(history))
	for _, msg := range history {
		entries = append(entries, entry{Role: string(msg.Role), Content: msg.Content})
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "history": entries})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	docs, err := s.sessions.UploadedDocuments(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "documents": docs})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, s.store.Stats(knowledge.SessionPartition(id)))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := s.agent.ClearHistory(r.Context(), payload.SessionID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "session_id": payload.SessionID})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload failed")
		return
	}

	sessionID := r.FormValue("session_id")
	global := r.FormValue("global") == "true"

	result, err := s.ingest.Ingest(r.Context(), data, header.Filename, sessionID, global)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleKnowledgeStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats(knowledge.GlobalPartition))
}

func decodeChat(w http.ResponseWriter, r *http.Request) (*chatPayload, bool) {
	var payload chatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if payload.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return nil, false
	}
	return &payload, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().Str("addr", addr).Msg("listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
