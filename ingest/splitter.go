// Package ingest turns uploaded documents into indexed knowledge records.
package ingest

import "strings"

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 50
)

// separators, tried in order. The empty string forces a hard character split
// when nothing else fits.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// Chunker cuts document text into indexable pieces. Implementations other
// than the character splitter can handle structured formats.
type Chunker interface {
	Split(text string) []string
}

// Splitter cuts text into overlapping chunks along natural boundaries.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter returns a splitter with the given chunk size and overlap.
// Non-positive values fall back to the defaults.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = defaultChunkOverlap
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split cuts text into chunks of at most the configured size, preferring
// paragraph, line, and sentence boundaries, with overlap between neighbors.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + s.chunkSize
		if end >= len(text) {
			chunk := strings.TrimSpace(text[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := s.findCut(text, start, end)
		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - s.overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// findCut looks for the latest separator occurrence inside the window so
// chunks end on natural boundaries.
func (s *Splitter) findCut(text string, start, end int) int {
	window := text[start:end]
	for _, sep := range separators {
		if sep == "" {
			break
		}
		if idx := strings.LastIndex(window, sep); idx > 0 {
			return start + idx + len(sep)
		}
	}
	return end
}
