package rag

import (
	"context"
	"errors"
	"testing"
)

func newTestSystem() *System {
	return NewSystem(newHashEmbedder(64), NewFlatIndex(), Options{
		ChunkSize:       200,
		ChunkOverlap:    20,
		Thresholds:      []float32{0.3, 0.2, 0.1, 0.0},
		StrongMatch:     0.2,
		MaxContextChars: 8000,
	})
}

func testDocuments() []Document {
	return []Document{
		{
			Name: "discharge-100375",
			Text: "Aspirin 81mg was prescribed once daily for cardiac prophylaxis. " +
				"The patient was advised to continue the medication after discharge.",
			Meta: map[string]string{"hadm_id": "100375"},
		},
		{
			Name: "radiology-100375",
			Text: "The chest radiograph demonstrated clear lung fields with no acute " +
				"cardiopulmonary process identified on this examination.",
			Meta: map[string]string{"hadm_id": "100375"},
		},
	}
}

func TestSystemLoadAndRetrieve(t *testing.T) {
	ctx := context.Background()
	sys := newTestSystem()

	n, err := sys.LoadDocuments(ctx, testDocuments())
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 || sys.Len() != n {
		t.Fatalf("indexed %d chunks, Len=%d", n, sys.Len())
	}

	results, err := sys.Retrieve(ctx, "What dose of aspirin was prescribed?", 3, 0.1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected retrieval hits")
	}
	if results[0].Chunk.DocumentName != "discharge-100375" {
		t.Errorf("aspirin question should hit the discharge note, got %q", results[0].Chunk.DocumentName)
	}
}

func TestSystemAssembleContext(t *testing.T) {
	ctx := context.Background()
	sys := newTestSystem()
	if _, err := sys.LoadDocuments(ctx, testDocuments()); err != nil {
		t.Fatal(err)
	}

	results, err := sys.Retrieve(ctx, "aspirin dose prescribed daily", 3, 0.1, nil)
	if err != nil {
		t.Fatal(err)
	}
	block, err := sys.AssembleContext(ctx, results)
	if err != nil {
		t.Fatal(err)
	}
	if block.Tier == TierNone {
		t.Fatalf("loaded corpus should never yield TierNone")
	}
	if block.Text == "" {
		t.Error("assembled context is empty")
	}
}

func TestSystemAssembleSampledWhenNoResults(t *testing.T) {
	ctx := context.Background()
	sys := newTestSystem()
	if _, err := sys.LoadDocuments(ctx, testDocuments()); err != nil {
		t.Fatal(err)
	}
	block, err := sys.AssembleContext(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if block.Tier != TierSampled {
		t.Fatalf("expected TierSampled with a loaded corpus and no results, got %q", block.Tier)
	}
}

func TestSystemAddDocumentsAppends(t *testing.T) {
	ctx := context.Background()
	sys := newTestSystem()
	if _, err := sys.LoadDocuments(ctx, testDocuments()[:1]); err != nil {
		t.Fatal(err)
	}
	before := sys.Len()
	n, err := sys.AddDocuments(ctx, testDocuments()[1:])
	if err != nil {
		t.Fatal(err)
	}
	if sys.Len() != before+n {
		t.Fatalf("Len=%d after appending %d to %d", sys.Len(), n, before)
	}
}

func TestSystemSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestSystem()
	if _, err := src.LoadDocuments(ctx, testDocuments()); err != nil {
		t.Fatal(err)
	}

	snap, err := src.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.ModelInfo == "" || snap.Dimension == 0 {
		t.Fatalf("snapshot missing model identity: %+v", snap)
	}

	dst := newTestSystem()
	if err := dst.Load(ctx, snap); err != nil {
		t.Fatal(err)
	}
	if dst.Len() != src.Len() {
		t.Fatalf("round-trip lost chunks: %d vs %d", dst.Len(), src.Len())
	}

	want, _ := src.Retrieve(ctx, "aspirin prescribed", 2, 0.0, nil)
	got, err := dst.Retrieve(ctx, "aspirin prescribed", 2, 0.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("restored system retrieves differently: %d vs %d hits", len(got), len(want))
	}
	for i := range got {
		if got[i].Score != want[i].Score {
			t.Errorf("hit %d score differs: %f vs %f", i, got[i].Score, want[i].Score)
		}
	}
}

func TestSystemRefusesForeignSnapshot(t *testing.T) {
	ctx := context.Background()
	sys := newTestSystem()

	snap := Snapshot{
		Chunks:    []Chunk{{Text: "x"}},
		Vectors:   [][]float32{unitVec(64, 0)},
		ModelInfo: "some-other/model",
		Dimension: 64,
	}
	if err := sys.Load(ctx, snap); !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("expected ErrModelMismatch, got %v", err)
	}

	snap.ModelInfo = newHashEmbedder(64).ModelInfo()
	snap.Dimension = 32
	if err := sys.Load(ctx, snap); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSystemReset(t *testing.T) {
	ctx := context.Background()
	sys := newTestSystem()
	if _, err := sys.LoadDocuments(ctx, testDocuments()); err != nil {
		t.Fatal(err)
	}
	if err := sys.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if sys.Len() != 0 {
		t.Fatalf("Len=%d after reset", sys.Len())
	}
}
