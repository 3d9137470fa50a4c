package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AtlasIndex is the optimized index backend: chunk vectors live in a MongoDB
// collection covered by an Atlas Vector Search index, and queries run as
// $vectorSearch aggregations. Selected by configuration (VECTOR_BACKEND),
// never by runtime probing; FlatIndex is the in-process fallback.
//
// Atlas reports cosine scores rescaled to [0,1] as (1+cos)/2. Search maps
// them back to raw cosine so thresholds behave identically on both backends.
type AtlasIndex struct {
	col        *mongo.Collection
	indexName  string
	dimension  int
	numCandMul int

	mu    sync.Mutex
	count int
}

type atlasChunkDoc struct {
	Position int       `bson:"position"`
	Vector   []float32 `bson:"vector"`
	Chunk    Chunk     `bson:"chunk"`
	Score    float64   `bson:"score,omitempty"`
}

// NewAtlasIndex wraps a chunk collection and the name of its Atlas vector
// index. The collection is expected to be dedicated to this index; Build
// empties it. The initial length is read from the collection so a prior
// session's contents remain searchable.
func NewAtlasIndex(ctx context.Context, col *mongo.Collection, indexName string, dimension int) (*AtlasIndex, error) {
	if indexName == "" {
		return nil, fmt.Errorf("atlas index: index name is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("atlas index: invalid dimension %d", dimension)
	}
	count, err := col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("atlas index: count existing chunks: %w", err)
	}
	return &AtlasIndex{
		col:        col,
		indexName:  indexName,
		dimension:  dimension,
		numCandMul: 10,
		count:      int(count),
	}, nil
}

func (a *AtlasIndex) Build(ctx context.Context, vectors [][]float32, chunks []Chunk) error {
	if len(vectors) != len(chunks) {
		return ErrLengthMismatch
	}
	for _, v := range vectors {
		if len(v) != a.dimension {
			return ErrDimensionMismatch
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.col.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("atlas index: clear collection: %w", err)
	}
	if err := a.insert(ctx, 0, vectors, chunks); err != nil {
		return err
	}
	a.count = len(chunks)
	return nil
}

func (a *AtlasIndex) Append(ctx context.Context, vectors [][]float32, chunks []Chunk) error {
	if len(vectors) != len(chunks) {
		return ErrLengthMismatch
	}
	for _, v := range vectors {
		if len(v) != a.dimension {
			return ErrDimensionMismatch
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.insert(ctx, a.count, vectors, chunks); err != nil {
		return err
	}
	a.count += len(chunks)
	return nil
}

func (a *AtlasIndex) insert(ctx context.Context, base int, vectors [][]float32, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]interface{}, len(chunks))
	for i := range chunks {
		docs[i] = atlasChunkDoc{Position: base + i, Vector: vectors[i], Chunk: chunks[i]}
	}
	if _, err := a.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("atlas index: insert chunks: %w", err)
	}
	return nil
}

func (a *AtlasIndex) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if a.Len() == 0 {
		return nil, ErrIndexNotBuilt
	}
	if len(vector) != a.dimension {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		k = 5
	}

	cursor, err := a.col.Aggregate(ctx, a.searchPipeline(vector, k))
	if err != nil {
		return nil, fmt.Errorf("atlas index: vector search: %w", err)
	}
	defer cursor.Close(ctx)

	var results []Result
	for cursor.Next(ctx) {
		var doc atlasChunkDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("atlas index: decode hit: %w", err)
		}
		results = append(results, Result{
			Chunk: doc.Chunk,
			Score: atlasToCosine(doc.Score),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("atlas index: cursor: %w", err)
	}
	return results, nil
}

// searchPipeline builds the $vectorSearch aggregation. Split out so the
// pipeline shape is testable without a live Atlas cluster.
func (a *AtlasIndex) searchPipeline(vector []float32, k int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: a.indexName},
			{Key: "path", Value: "vector"},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: k * a.numCandMul},
			{Key: "limit", Value: k},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "position", Value: 1},
			{Key: "chunk", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}

func (a *AtlasIndex) Export(ctx context.Context) ([][]float32, []Chunk, error) {
	cursor, err := a.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "position", Value: 1}}))
	if err != nil {
		return nil, nil, fmt.Errorf("atlas index: export: %w", err)
	}
	defer cursor.Close(ctx)

	var vectors [][]float32
	var chunks []Chunk
	for cursor.Next(ctx) {
		var doc atlasChunkDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, nil, fmt.Errorf("atlas index: decode chunk: %w", err)
		}
		vectors = append(vectors, doc.Vector)
		chunks = append(chunks, doc.Chunk)
	}
	if err := cursor.Err(); err != nil {
		return nil, nil, fmt.Errorf("atlas index: cursor: %w", err)
	}
	return vectors, chunks, nil
}

func (a *AtlasIndex) Load(ctx context.Context, vectors [][]float32, chunks []Chunk) error {
	return a.Build(ctx, vectors, chunks)
}

func (a *AtlasIndex) Chunks(ctx context.Context) ([]Chunk, error) {
	_, chunks, err := a.Export(ctx)
	return chunks, err
}

// Len reports the chunk count from the collection itself: other processes
// (the queue worker) insert chunks too, so a process-local counter goes
// stale. The read uses a short timeout and falls back to the last known
// count when the database is unreachable.
func (a *AtlasIndex) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	count, err := a.col.CountDocuments(ctx, bson.M{})

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		return a.count
	}
	a.count = int(count)
	return a.count
}

// atlasToCosine maps the Atlas cosine score (1+cos)/2 back to raw cosine.
func atlasToCosine(score float64) float32 {
	return float32(2*score - 1)
}
