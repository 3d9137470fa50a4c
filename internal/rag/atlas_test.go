package rag

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestAtlasToCosine(t *testing.T) {
	cases := []struct {
		atlas float64
		want  float32
	}{
		{1.0, 1.0},
		{0.5, 0.0},
		{0.75, 0.5},
		{0.0, -1.0},
	}
	for _, c := range cases {
		if got := atlasToCosine(c.atlas); got != c.want {
			t.Errorf("atlasToCosine(%f) = %f, want %f", c.atlas, got, c.want)
		}
	}
}

func TestAtlasSearchPipelineShape(t *testing.T) {
	a := &AtlasIndex{indexName: "doc_chunks_vector", dimension: 3, numCandMul: 10}
	pipeline := a.searchPipeline([]float32{1, 0, 0}, 5)
	if len(pipeline) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(pipeline))
	}

	search := pipeline[0][0]
	if search.Key != "$vectorSearch" {
		t.Fatalf("first stage is %q", search.Key)
	}
	fields := map[string]interface{}{}
	for _, e := range search.Value.(bson.D) {
		fields[e.Key] = e.Value
	}
	if fields["index"] != "doc_chunks_vector" {
		t.Errorf("index = %v", fields["index"])
	}
	if fields["path"] != "vector" {
		t.Errorf("path = %v", fields["path"])
	}
	if fields["limit"] != 5 {
		t.Errorf("limit = %v", fields["limit"])
	}
	if fields["numCandidates"] != 50 {
		t.Errorf("numCandidates = %v, want limit*10", fields["numCandidates"])
	}

	project := pipeline[1][0]
	if project.Key != "$project" {
		t.Fatalf("second stage is %q", project.Key)
	}
}

// TestAtlasLiveEquivalence compares the Atlas backend against the flat
// reference on the same corpus. Needs a real Atlas cluster with a vector
// index already provisioned, so it only runs when pointed at one.
func TestAtlasLiveEquivalence(t *testing.T) {
	uri := os.Getenv("ATLAS_TEST_URI")
	if uri == "" {
		t.Skip("ATLAS_TEST_URI not set")
	}
	indexName := os.Getenv("ATLAS_TEST_INDEX")
	if indexName == "" {
		indexName = "doc_chunks_vector"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Disconnect(ctx)
	col := client.Database("rag_test").Collection("doc_chunks")

	e := newHashEmbedder(64)
	chunks := []Chunk{
		{Text: "Aspirin 81mg was prescribed once daily", DocumentName: "a", Index: 0},
		{Text: "Chest radiograph showed clear lung fields", DocumentName: "b", Index: 0},
		{Text: "Dietary consult recommended low sodium meals", DocumentName: "c", Index: 0},
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}

	atlas, err := NewAtlasIndex(ctx, col, indexName, 64)
	if err != nil {
		t.Fatal(err)
	}
	if err := atlas.Build(ctx, vectors, chunks); err != nil {
		t.Fatal(err)
	}
	// Atlas indexes the new documents asynchronously.
	time.Sleep(5 * time.Second)

	flat := NewFlatIndex()
	if err := flat.Build(ctx, vectors, chunks); err != nil {
		t.Fatal(err)
	}

	query, err := EmbedOne(ctx, e, "aspirin prescription")
	if err != nil {
		t.Fatal(err)
	}
	want, err := flat.Search(ctx, query, 2)
	if err != nil {
		t.Fatal(err)
	}
	got, err := atlas.Search(ctx, query, 2)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != len(want) {
		t.Fatalf("result counts differ: atlas %d, flat %d", len(got), len(want))
	}
	for i := range got {
		if got[i].Chunk.DocumentName != want[i].Chunk.DocumentName {
			t.Errorf("rank %d: atlas %q, flat %q", i, got[i].Chunk.DocumentName, want[i].Chunk.DocumentName)
		}
		diff := got[i].Score - want[i].Score
		if diff < -0.01 || diff > 0.01 {
			t.Errorf("rank %d score drift: atlas %f, flat %f", i, got[i].Score, want[i].Score)
		}
	}

	// A second handle over the same collection must see inserts made
	// through the first: the API and the queue worker run as separate
	// processes over one collection.
	other, err := NewAtlasIndex(ctx, col, indexName, 64)
	if err != nil {
		t.Fatal(err)
	}
	extraText := "Physical therapy evaluation before discharge"
	extraVec, err := EmbedOne(ctx, e, extraText)
	if err != nil {
		t.Fatal(err)
	}
	extra := []Chunk{{Text: extraText, DocumentName: "d", Index: 0}}
	if err := atlas.Append(ctx, [][]float32{extraVec}, extra); err != nil {
		t.Fatal(err)
	}
	if got := other.Len(); got != 4 {
		t.Errorf("second handle Len() = %d, want 4", got)
	}
}
