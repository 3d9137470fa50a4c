package rag

import (
	"strings"
	"testing"
)

func TestChunkShortText(t *testing.T) {
	c := NewChunker(500, 50)
	chunks := c.Chunk("A short note about aspirin.", "note.txt", nil)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "A short note about aspirin." {
		t.Errorf("unexpected chunk text: %q", chunks[0].Text)
	}
	if chunks[0].DocumentName != "note.txt" || chunks[0].Index != 0 {
		t.Errorf("bad chunk identity: %+v", chunks[0])
	}
}

func TestChunkEmptyText(t *testing.T) {
	c := NewChunker(500, 50)
	if got := c.Chunk("", "empty.txt", nil); got != nil {
		t.Fatalf("empty text should produce no chunks, got %d", len(got))
	}
	if got := c.Chunk("   \n\t  ", "blank.txt", nil); got != nil {
		t.Fatalf("whitespace-only text should produce no chunks, got %d", len(got))
	}
}

func TestChunkDeterministic(t *testing.T) {
	c := NewChunker(120, 20)
	text := strings.Repeat("The patient was admitted with chest pain. Vitals were stable on arrival. ", 30)
	first := c.Chunk(text, "doc", nil)
	second := c.Chunk(text, "doc", nil)
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestChunkIndicesSequential(t *testing.T) {
	c := NewChunker(100, 10)
	text := strings.Repeat("Blood pressure was recorded every hour through the night shift. ", 20)
	chunks := c.Chunk(text, "doc", nil)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d has index %d", i, ch.Index)
		}
	}
}

func TestChunkPrefersSentenceBoundary(t *testing.T) {
	c := NewChunker(80, 10)
	text := "The first sentence ends here. The second sentence keeps going for quite a while and will not fit in the same window at all."
	chunks := c.Chunk(text, "doc", nil)
	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %d chunks", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, ".") {
		t.Errorf("first chunk should end at a sentence boundary, got %q", chunks[0].Text)
	}
	// The boundary sits well before the hard cut; the whole first sentence
	// must survive intact rather than being split mid-word.
	if chunks[0].Text != "The first sentence ends here." {
		t.Errorf("first chunk = %q, want the complete first sentence", chunks[0].Text)
	}
}

func TestChunkOverlapCarriesText(t *testing.T) {
	c := NewChunker(100, 30)
	text := strings.Repeat("word ", 200)
	chunks := c.Chunk(text, "doc", nil)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// With overlap, the tail of one chunk reappears at the head of the next.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		tail := prev[len(prev)-10:]
		if !strings.Contains(chunks[i].Text, strings.TrimSpace(tail)) {
			t.Errorf("chunk %d does not overlap with its predecessor", i)
		}
	}
}

func TestChunkMetaIsolated(t *testing.T) {
	c := NewChunker(500, 50)
	meta := map[string]string{"hadm_id": "100375"}
	chunks := c.Chunk("Discharge summary for the admission.", "record", meta)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	meta["hadm_id"] = "changed"
	if chunks[0].MetaValue("hadm_id") != "100375" {
		t.Errorf("chunk metadata should be a copy, got %q", chunks[0].MetaValue("hadm_id"))
	}
}

func TestChunkerClampsOverlap(t *testing.T) {
	c := NewChunker(100, 100)
	text := strings.Repeat("steady stream of admission notes with no punctuation at all ", 50)
	chunks := c.Chunk(text, "doc", nil)
	if len(chunks) == 0 {
		t.Fatal("expected chunks despite degenerate overlap")
	}
	// The clamp keeps the window advancing; a runaway loop would OOM long
	// before this assertion.
	if len(chunks) > len(text) {
		t.Fatalf("too many chunks: %d", len(chunks))
	}
}
