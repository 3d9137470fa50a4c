package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"patient-qa-platform/internal/logger"
	"patient-qa-platform/internal/rag"
	"patient-qa-platform/models"
	"patient-qa-platform/utils"
)

// SnapshotService persists the vector index to Mongo and restores it at
// startup, so a flat index survives restarts without re-embedding. It also
// tracks the newest snapshot this process has saved or applied, so
// RefreshIfNewer can pick up snapshots written by other processes (the
// queue worker) without reloading its own.
type SnapshotService struct {
	db     *mongo.Database
	system *rag.System
	name   string

	mu       sync.Mutex
	lastSeen time.Time
}

func NewSnapshotService(db *mongo.Database, system *rag.System, name string) *SnapshotService {
	if name == "" {
		name = "primary"
	}
	return &SnapshotService{db: db, system: system, name: name}
}

// Save exports the current index and stores it as the newest snapshot
// under this service's name. An empty index is not saved.
func (ss *SnapshotService) Save(ctx context.Context) error {
	if ss.system.Len() == 0 {
		return nil
	}

	snap, err := ss.system.Export(ctx)
	if err != nil {
		return fmt.Errorf("index export failed: %w", err)
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot encode failed: %w", err)
	}

	payload, err := compressPayload(raw)
	if err != nil {
		return err
	}

	doc := models.IndexSnapshot{
		Name:       ss.name,
		ModelInfo:  snap.ModelInfo,
		Dimension:  snap.Dimension,
		ChunkCount: len(snap.Chunks),
		Payload:    payload,
		CreatedAt:  time.Now(),
	}

	if _, err := ss.db.Collection("index_snapshots").InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("snapshot insert failed: %w", err)
	}
	ss.markSeen(doc.CreatedAt)

	// Keep only the latest few snapshots per name
	ss.prune(ctx)

	logger.Info("index snapshot saved", "name", ss.name, "chunks", doc.ChunkCount, "model", doc.ModelInfo)
	return nil
}

// Restore loads the newest snapshot into the index. A snapshot from a
// different embedding model or dimension is rejected by the index load and
// reported, not silently applied. Returns false when no snapshot exists.
func (ss *SnapshotService) Restore(ctx context.Context) (bool, error) {
	var doc models.IndexSnapshot
	err := ss.db.Collection("index_snapshots").
		FindOne(ctx, bson.M{"name": ss.name}, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).
		Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("snapshot lookup failed: %w", err)
	}

	if err := ss.apply(ctx, &doc); err != nil {
		return false, err
	}

	logger.Info("index restored from snapshot", "name", ss.name, "chunks", doc.ChunkCount, "model", doc.ModelInfo)
	return true, nil
}

// RefreshIfNewer applies the newest snapshot only when another process
// wrote it after anything this process has saved or restored. Returns
// whether the index was reloaded.
func (ss *SnapshotService) RefreshIfNewer(ctx context.Context) (bool, error) {
	var head models.IndexSnapshot
	err := ss.db.Collection("index_snapshots").
		FindOne(ctx, bson.M{"name": ss.name},
			options.FindOne().
				SetSort(bson.D{{Key: "created_at", Value: -1}}).
				SetProjection(bson.M{"payload": 0})).
		Decode(&head)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("snapshot lookup failed: %w", err)
	}

	ss.mu.Lock()
	stale := !head.CreatedAt.After(ss.lastSeen)
	ss.mu.Unlock()
	if stale {
		return false, nil
	}

	var doc models.IndexSnapshot
	err = ss.db.Collection("index_snapshots").
		FindOne(ctx, bson.M{"_id": head.ID}).
		Decode(&doc)
	if err != nil {
		return false, fmt.Errorf("snapshot fetch failed: %w", err)
	}

	if err := ss.apply(ctx, &doc); err != nil {
		return false, err
	}

	logger.Info("index refreshed from newer snapshot", "name", ss.name, "chunks", doc.ChunkCount, "model", doc.ModelInfo)
	return true, nil
}

// apply decodes a snapshot document, loads it into the index, and records
// its creation time as seen.
func (ss *SnapshotService) apply(ctx context.Context, doc *models.IndexSnapshot) error {
	raw, err := decompressPayload(doc.Payload)
	if err != nil {
		return fmt.Errorf("snapshot payload corrupt: %w", err)
	}

	var snap rag.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("snapshot decode failed: %w", err)
	}

	if err := ss.system.Load(ctx, snap); err != nil {
		return fmt.Errorf("snapshot load rejected: %w", err)
	}
	ss.markSeen(doc.CreatedAt)
	return nil
}

func (ss *SnapshotService) markSeen(at time.Time) {
	ss.mu.Lock()
	if at.After(ss.lastSeen) {
		ss.lastSeen = at
	}
	ss.mu.Unlock()
}

func (ss *SnapshotService) prune(ctx context.Context) {
	const keep = 3

	cur, err := ss.db.Collection("index_snapshots").Find(ctx,
		bson.M{"name": ss.name},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetSkip(keep).SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return
	}
	defer cur.Close(ctx)

	var stale []interface{}
	for cur.Next(ctx) {
		var doc struct {
			ID interface{} `bson:"_id"`
		}
		if cur.Decode(&doc) == nil {
			stale = append(stale, doc.ID)
		}
	}
	if len(stale) > 0 {
		_, _ = ss.db.Collection("index_snapshots").DeleteMany(ctx, bson.M{"_id": bson.M{"$in": stale}})
	}
}

// Snapshot payloads carry a one-byte gzip flag ahead of the data.
func compressPayload(raw []byte) ([]byte, error) {
	data, compressed, err := utils.CompressData(raw)
	if err != nil {
		return nil, err
	}
	flag := byte(0)
	if compressed {
		flag = 1
	}
	return append([]byte{flag}, data...), nil
}

func decompressPayload(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	return utils.DecompressData(payload[1:], payload[0] == 1)
}
