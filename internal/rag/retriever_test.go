package rag

import (
	"context"
	"testing"
)

func buildTestIndex(t *testing.T, e Embedder, docs []Chunk) Index {
	t.Helper()
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	idx := NewFlatIndex()
	if err := idx.Build(context.Background(), vectors, docs); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestRetrieveEmptyIndex(t *testing.T) {
	e := newHashEmbedder(64)
	r := NewRetriever(e, NewFlatIndex(), nil)
	results, err := r.Retrieve(context.Background(), "anything", 5, 0.3, nil)
	if err != nil {
		t.Fatalf("empty index should not error: %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestRetrieveRanksByOverlap(t *testing.T) {
	e := newHashEmbedder(64)
	chunks := []Chunk{
		{Text: "Aspirin 81mg was prescribed daily for cardiac prophylaxis", DocumentName: "record", Index: 0},
		{Text: "The MRI of the lumbar spine showed mild degenerative changes", DocumentName: "record", Index: 1},
		{Text: "Dietary consult recommended a low sodium meal plan", DocumentName: "record", Index: 2},
	}
	idx := buildTestIndex(t, e, chunks)
	r := NewRetriever(e, idx, nil)

	results, err := r.Retrieve(context.Background(), "What dose of aspirin was prescribed?", 3, 0.1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Chunk.Index != 0 {
		t.Errorf("aspirin chunk should rank first, got chunk %d (score %f)", results[0].Chunk.Index, results[0].Score)
	}
}

func TestRetrieveThresholdLadder(t *testing.T) {
	e := newHashEmbedder(64)
	chunks := []Chunk{
		{Text: "The patient tolerated the procedure well with no complications", DocumentName: "record", Index: 0},
	}
	idx := buildTestIndex(t, e, chunks)
	r := NewRetriever(e, idx, []float32{0.3, 0.2, 0.1, 0.0})

	// A query sharing no tokens scores ~0 against everything; the strict
	// pass finds nothing and the ladder relaxes down to the zero floor.
	results, err := r.Retrieve(context.Background(), "zebra xylophone quantum", 3, 0.3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("ladder should surface the only chunk, got %d results", len(results))
	}
	if results[0].Score >= 0.3 {
		t.Errorf("score %f should be below the strict threshold", results[0].Score)
	}
}

func TestRetrieveHonorsK(t *testing.T) {
	e := newHashEmbedder(64)
	var chunks []Chunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, Chunk{
			Text:         "Daily medication review covered aspirin dosing and timing",
			DocumentName: "record",
			Index:        i,
		})
	}
	idx := buildTestIndex(t, e, chunks)
	r := NewRetriever(e, idx, nil)

	results, err := r.Retrieve(context.Background(), "aspirin dosing", 4, 0.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("expected exactly k=4 results, got %d", len(results))
	}
}

func TestRetrieveMetadataFilter(t *testing.T) {
	e := newHashEmbedder(64)
	chunks := []Chunk{
		{Text: "Aspirin prescribed at discharge", DocumentName: "a", Index: 0, Meta: map[string]string{"hadm_id": "100375"}},
		{Text: "Aspirin prescribed at discharge", DocumentName: "b", Index: 0, Meta: map[string]string{"hadm_id": "223344"}},
		{Text: "Aspirin prescribed at discharge", DocumentName: "c", Index: 0},
	}
	idx := buildTestIndex(t, e, chunks)
	r := NewRetriever(e, idx, nil)

	results, err := r.Retrieve(context.Background(), "aspirin discharge", 5, 0.0,
		map[string]string{"hadm_id": "100375"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("filter should keep exactly one chunk, got %d", len(results))
	}
	if results[0].Chunk.DocumentName != "a" {
		t.Errorf("wrong chunk survived the filter: %q", results[0].Chunk.DocumentName)
	}
}

func TestRetrieveFilterExcludesAll(t *testing.T) {
	e := newHashEmbedder(64)
	chunks := []Chunk{
		{Text: "Routine follow up scheduled in two weeks", DocumentName: "a", Index: 0, Meta: map[string]string{"hadm_id": "100375"}},
	}
	idx := buildTestIndex(t, e, chunks)
	r := NewRetriever(e, idx, nil)

	results, err := r.Retrieve(context.Background(), "follow up", 5, 0.0,
		map[string]string{"hadm_id": "999999"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no survivors, got %d", len(results))
	}
}
