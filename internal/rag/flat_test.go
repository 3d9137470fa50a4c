package rag

import (
	"context"
	"errors"
	"testing"
)

func unitVec(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestFlatSearchBeforeBuild(t *testing.T) {
	idx := NewFlatIndex()
	if _, err := idx.Search(context.Background(), unitVec(4, 0), 3); !errors.Is(err, ErrIndexNotBuilt) {
		t.Fatalf("expected ErrIndexNotBuilt, got %v", err)
	}
}

func TestFlatBuildLengthMismatch(t *testing.T) {
	idx := NewFlatIndex()
	err := idx.Build(context.Background(), [][]float32{unitVec(4, 0)}, nil)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestFlatDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewFlatIndex()
	if err := idx.Build(ctx, [][]float32{unitVec(4, 0)}, []Chunk{{Text: "a"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Search(ctx, unitVec(8, 0), 3); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("search: expected ErrDimensionMismatch, got %v", err)
	}
	if err := idx.Append(ctx, [][]float32{unitVec(8, 0)}, []Chunk{{Text: "b"}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("append: expected ErrDimensionMismatch, got %v", err)
	}
}

func TestFlatSearchRanking(t *testing.T) {
	ctx := context.Background()
	idx := NewFlatIndex()
	vectors := [][]float32{
		{1, 0, 0},
		{0.6, 0.8, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	chunks := []Chunk{
		{Text: "exact", Index: 0},
		{Text: "close", Index: 1},
		{Text: "orthogonal-y", Index: 2},
		{Text: "orthogonal-z", Index: 3},
	}
	if err := idx.Build(ctx, vectors, chunks); err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Chunk.Text != "exact" || results[1].Chunk.Text != "close" {
		t.Errorf("bad ranking: %q then %q", results[0].Chunk.Text, results[1].Chunk.Text)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
	if results[0].Score < 0.999 {
		t.Errorf("identical vector should score ~1, got %f", results[0].Score)
	}
}

func TestFlatBuildReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewFlatIndex()
	if err := idx.Build(ctx, [][]float32{unitVec(4, 0), unitVec(4, 1)}, []Chunk{{Text: "a"}, {Text: "b"}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Build(ctx, [][]float32{unitVec(4, 2)}, []Chunk{{Text: "c"}}); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 {
		t.Fatalf("rebuild should replace contents, Len=%d", idx.Len())
	}
	chunks, _ := idx.Chunks(ctx)
	if chunks[0].Text != "c" {
		t.Errorf("unexpected survivor: %q", chunks[0].Text)
	}
}

func TestFlatAppendExtends(t *testing.T) {
	ctx := context.Background()
	idx := NewFlatIndex()
	if err := idx.Build(ctx, [][]float32{unitVec(4, 0)}, []Chunk{{Text: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Append(ctx, [][]float32{unitVec(4, 1)}, []Chunk{{Text: "b"}}); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 2 {
		t.Fatalf("Len=%d after append", idx.Len())
	}
}

func TestFlatExportLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewFlatIndex()
	vectors := [][]float32{unitVec(4, 0), unitVec(4, 1), unitVec(4, 2)}
	chunks := []Chunk{
		{Text: "first", DocumentName: "d", Index: 0},
		{Text: "second", DocumentName: "d", Index: 1},
		{Text: "third", DocumentName: "d", Index: 2},
	}
	if err := src.Build(ctx, vectors, chunks); err != nil {
		t.Fatal(err)
	}

	expVecs, expChunks, err := src.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}

	dst := NewFlatIndex()
	if err := dst.Load(ctx, expVecs, expChunks); err != nil {
		t.Fatal(err)
	}
	if dst.Len() != src.Len() {
		t.Fatalf("round-trip lost entries: %d vs %d", dst.Len(), src.Len())
	}

	want, _ := src.Search(ctx, unitVec(4, 1), 1)
	got, err := dst.Search(ctx, unitVec(4, 1), 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Chunk.Text != want[0].Chunk.Text || got[0].Score != want[0].Score {
		t.Errorf("round-trip changed search result: %+v vs %+v", got[0], want[0])
	}
}
