package rag

import (
	"strings"
	"unicode"
)

const (
	// DefaultChunkSize and DefaultChunkOverlap are in characters (runes).
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Chunker splits document text into overlapping character windows,
// preferring sentence and paragraph boundaries near the window end.
// Chunking is deterministic: the same text always yields the same chunks.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given window size and overlap.
// Non-positive sizes fall back to defaults. Overlap is clamped below
// size, since overlap >= size would never advance the window.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into windows. Every chunk inherits meta plus its own
// ordinal position and document name. Empty or whitespace-only text
// produces zero chunks; text shorter than the window produces exactly one.
func (c *Chunker) Chunk(text, documentName string, meta map[string]string) []Chunk {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.breakPoint(runes, start, end)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{
				Text:         piece,
				DocumentName: documentName,
				Index:        len(chunks),
				Meta:         cloneMeta(meta),
			})
		}

		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			// Cannot happen with a clamped overlap, but never loop forever.
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint looks backwards from the hard cut for a sentence or paragraph
// boundary, but never gives up more than three quarters of the window. Best
// effort only: if no boundary is found the hard cut stands.
func (c *Chunker) breakPoint(runes []rune, start, end int) int {
	floor := start + c.size/4
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && i > start && runes[i-1] == '\n' {
			return i
		}
	}
	for i := end - 1; i > floor; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}
	// Avoid a mid-word split when a nearby space allows it.
	for i := end - 1; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func cloneMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
