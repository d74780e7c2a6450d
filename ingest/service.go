package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quillmind/quill/knowledge"
	"github.com/quillmind/quill/sessions"
)

// loadableExtensions are the file types the bootstrap loader indexes.
var loadableExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
}

// Service chunks documents and writes them to the knowledge store.
type Service struct {
	store    *knowledge.Store
	splitter Chunker
	sessions *sessions.Manager
	log      zerolog.Logger
}

// New creates an ingest service. sessions may be nil when no session
// bookkeeping is wanted.
func New(store *knowledge.Store, splitter Chunker, mgr *sessions.Manager, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		splitter: splitter,
		sessions: mgr,
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// Result describes a completed ingestion.
type Result struct {
	Filename  string `json:"filename"`
	Chunks    int    `json:"chunks"`
	Partition string `json:"partition"`
}

// Ingest splits the document and indexes it. A global flag or an empty
// session id targets the global partition; otherwise the chunks go to the
// session's partition. The filename is recorded against the session whenever
// a session id is present, including global uploads: the targeted retrieval
// stage searches the global partition by the session's filenames, so
// global-stored uploads are exactly the ones it can find.
func (s *Service) Ingest(ctx context.Context, data []byte, filename, sessionID string, global bool) (*Result, error) {
	chunks := s.splitter.Split(string(data))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s contains no indexable text", filename)
	}

	partition := knowledge.GlobalPartition
	if !global && sessionID != "" {
		partition = knowledge.SessionPartition(sessionID)
	}

	metadatas := make([]map[string]string, len(chunks))
	for i := range chunks {
		metadatas[i] = map[string]string{"filename": filename}
	}

	if err := s.store.AddRecords(ctx, partition, chunks, metadatas, nil); err != nil {
		return nil, fmt.Errorf("index %s: %w", filename, err)
	}

	if sessionID != "" && s.sessions != nil {
		if err := s.sessions.AddUploadedDocument(sessionID, filename); err != nil {
			return nil, err
		}
	}

	s.log.Info().Str("filename", filename).Str("partition", partition).Int("chunks", len(chunks)).Msg("document ingested")
	return &Result{Filename: filename, Chunks: len(chunks), Partition: partition}, nil
}

// LoadKnowledgeDir indexes every supported file in dir into the global
// partition. Used to seed the knowledge base at startup. A missing directory
// is not an error.
func (s *Service) LoadKnowledgeDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read knowledge dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !loadableExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			s.log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping unreadable knowledge file")
			continue
		}
		if _, err := s.Ingest(ctx, data, entry.Name(), "", true); err != nil {
			s.log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping knowledge file")
			continue
		}
		loaded++
	}
	return loaded, nil
}
