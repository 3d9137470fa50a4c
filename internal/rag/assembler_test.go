package rag

import (
	"strings"
	"testing"
)

func TestAssembleStrongMatches(t *testing.T) {
	a := NewAssembler(0.2, 8000)
	results := []Result{
		{Chunk: Chunk{Text: "Aspirin 81mg daily", DocumentName: "record", Index: 3}, Score: 0.45},
		{Chunk: Chunk{Text: "Follow up in two weeks", DocumentName: "record", Index: 7}, Score: 0.12},
	}
	block := a.Assemble(results, nil)
	if block.Tier != TierDocument {
		t.Fatalf("expected TierDocument, got %q", block.Tier)
	}
	if len(block.Sources) != 1 {
		t.Fatalf("only the strong match belongs in the block, got %d sources", len(block.Sources))
	}
	if !strings.Contains(block.Text, "[Source 1: record #3]") {
		t.Errorf("missing source tag: %q", block.Text)
	}
	if block.Sources[0].Score != 0.45 {
		t.Errorf("source score not carried: %f", block.Sources[0].Score)
	}
}

func TestAssembleWeakMatches(t *testing.T) {
	a := NewAssembler(0.2, 8000)
	var results []Result
	for i := 0; i < 5; i++ {
		results = append(results, Result{
			Chunk: Chunk{Text: "weak match", DocumentName: "d", Index: i},
			Score: 0.15,
		})
	}
	block := a.Assemble(results, nil)
	if block.Tier != TierMixed {
		t.Fatalf("expected TierMixed, got %q", block.Tier)
	}
	if len(block.Sources) != 3 {
		t.Fatalf("weak tier should cap at top 3, got %d", len(block.Sources))
	}
}

func TestAssembleSampledFallback(t *testing.T) {
	a := NewAssembler(0.2, 8000)
	corpus := []Chunk{
		{Text: "chunk one", DocumentName: "d", Index: 0},
		{Text: "chunk two", DocumentName: "d", Index: 1},
	}
	block := a.Assemble(nil, corpus)
	if block.Tier != TierSampled {
		t.Fatalf("expected TierSampled, got %q", block.Tier)
	}
	if len(block.Sources) != 2 {
		t.Fatalf("sample should cover the whole tiny corpus, got %d", len(block.Sources))
	}
	if block.Text == "" {
		t.Error("sampled block should carry text")
	}
}

func TestAssembleEmptyEverything(t *testing.T) {
	a := NewAssembler(0.2, 8000)
	block := a.Assemble(nil, nil)
	if block.Tier != TierNone {
		t.Fatalf("expected TierNone, got %q", block.Tier)
	}
	if block.Text != "" || len(block.Sources) != 0 {
		t.Errorf("empty inputs should produce an empty block: %+v", block)
	}
}

func TestAssembleRespectsBudget(t *testing.T) {
	a := NewAssembler(0.2, 300)
	big := strings.Repeat("x", 250)
	results := []Result{
		{Chunk: Chunk{Text: big, DocumentName: "d", Index: 0}, Score: 0.5},
		{Chunk: Chunk{Text: big, DocumentName: "d", Index: 1}, Score: 0.4},
		{Chunk: Chunk{Text: big, DocumentName: "d", Index: 2}, Score: 0.3},
	}
	block := a.Assemble(results, nil)
	if len(block.Text) > 300 {
		t.Fatalf("context exceeds budget: %d chars", len(block.Text))
	}
	if len(block.Sources) >= 3 {
		t.Errorf("budget should have dropped excerpts, kept %d", len(block.Sources))
	}
}

func TestAssembleTruncatesOversizedFirstExcerpt(t *testing.T) {
	a := NewAssembler(0.2, 200)
	results := []Result{
		{Chunk: Chunk{Text: strings.Repeat("y", 500), DocumentName: "d", Index: 0}, Score: 0.5},
	}
	block := a.Assemble(results, nil)
	if block.Text == "" {
		t.Fatal("a single oversized chunk must not empty the context")
	}
	if len(block.Text) > 200 {
		t.Errorf("truncation overshot the budget: %d chars", len(block.Text))
	}
	// The truncated excerpt is still in the context, so it keeps its
	// attribution.
	if len(block.Sources) != 1 {
		t.Fatalf("expected 1 source for the truncated excerpt, got %d", len(block.Sources))
	}
	if block.Sources[0].DocumentName != "d" || block.Sources[0].ChunkIndex != 0 {
		t.Errorf("wrong source attribution: %+v", block.Sources[0])
	}
}
