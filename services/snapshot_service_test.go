package services

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"patient-qa-platform/internal/rag"
)

func TestPayloadRoundTrip(t *testing.T) {
	raw := []byte(strings.Repeat("chunk text with plenty of repetition ", 100))
	payload, err := compressPayload(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) >= len(raw) {
		t.Errorf("repetitive payload did not shrink: %d -> %d", len(raw), len(payload))
	}
	back, err := decompressPayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, raw) {
		t.Fatal("round trip changed the payload")
	}
}

func TestPayloadSmallDataStoredPlain(t *testing.T) {
	raw := []byte("tiny")
	payload, err := compressPayload(raw)
	if err != nil {
		t.Fatal(err)
	}
	back, err := decompressPayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, raw) {
		t.Fatal("round trip changed the payload")
	}
}

func TestPayloadEmpty(t *testing.T) {
	payload, err := compressPayload(nil)
	if err != nil {
		t.Fatal(err)
	}
	back, err := decompressPayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(back))
	}
}

// Two snapshot services over one database stand in for the API and the
// queue worker: chunks indexed by one process must reach the other
// through the snapshot collection.
func TestRefreshIfNewerPicksUpForeignSnapshot(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Disconnect(ctx)
	db := client.Database("patient_qa_snapshot_test")
	defer db.Drop(ctx)

	newSystem := func() *rag.System {
		return rag.NewSystem(&tokenEmbedder{dim: 64}, rag.NewFlatIndex(), rag.Options{
			ChunkSize:    200,
			ChunkOverlap: 20,
		})
	}
	workerSystem := newSystem()
	apiSystem := newSystem()
	worker := NewSnapshotService(db, workerSystem, "primary")
	api := NewSnapshotService(db, apiSystem, "primary")

	if _, err := workerSystem.LoadDocuments(ctx, []rag.Document{
		{Name: "discharge-100375", Text: "Patient admitted with congestive heart failure, discharged on furosemide."},
	}); err != nil {
		t.Fatal(err)
	}
	if err := worker.Save(ctx); err != nil {
		t.Fatal(err)
	}

	refreshed, err := api.RefreshIfNewer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !refreshed {
		t.Fatal("expected the foreign snapshot to be applied")
	}
	if apiSystem.Len() == 0 {
		t.Fatal("refresh left the index empty")
	}
	results, err := apiSystem.Retrieve(ctx, "congestive heart failure", 3, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("chunks from the foreign snapshot are not retrievable")
	}

	// Nothing new since the last apply: no reload.
	refreshed, err = api.RefreshIfNewer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed {
		t.Error("refresh reapplied an already-seen snapshot")
	}

	// A service never reloads its own save.
	if err := api.Save(ctx); err != nil {
		t.Fatal(err)
	}
	refreshed, err = api.RefreshIfNewer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed {
		t.Error("refresh reapplied this process's own snapshot")
	}
}
