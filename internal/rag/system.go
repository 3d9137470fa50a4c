package rag

import (
	"context"
	"fmt"
	"sync"
)

// System owns the full retrieval pipeline: chunker, embedding provider and
// vector index. The embedding provider is injected once at construction and
// fixed for the system's lifetime; swapping models requires a rebuild
// through a fresh System.
type System struct {
	mu        sync.Mutex
	chunker   *Chunker
	embedder  Embedder
	index     Index
	retriever *Retriever
	assembler *Assembler
}

// Options tunes the retrieval pipeline. Zero values fall back to defaults.
type Options struct {
	ChunkSize       int
	ChunkOverlap    int
	Thresholds      []float32
	StrongMatch     float32
	MaxContextChars int
}

// NewSystem builds a retrieval system over the given embedder and index.
func NewSystem(embedder Embedder, index Index, opts Options) *System {
	chunker := NewChunker(opts.ChunkSize, opts.ChunkOverlap)
	strong := opts.StrongMatch
	if strong == 0 {
		strong = 0.2
	}
	return &System{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		retriever: NewRetriever(embedder, index, opts.Thresholds),
		assembler: NewAssembler(strong, opts.MaxContextChars),
	}
}

// LoadDocuments chunks, embeds and indexes the documents, replacing any
// existing index contents. Returns the number of chunks indexed. Embedding
// runs as one batch call per load: embedding is the dominant cost and the
// backend amortizes it across the batch.
func (s *System) LoadDocuments(ctx context.Context, docs []Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vectors, chunks, err := s.embedDocuments(ctx, docs)
	if err != nil {
		return 0, err
	}
	if err := s.index.Build(ctx, vectors, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// AddDocuments appends to the live index without rebuilding: the
// single-session additive load path for incremental uploads.
func (s *System) AddDocuments(ctx context.Context, docs []Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vectors, chunks, err := s.embedDocuments(ctx, docs)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := s.index.Append(ctx, vectors, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (s *System) embedDocuments(ctx context.Context, docs []Document) ([][]float32, []Chunk, error) {
	var chunks []Chunk
	for _, doc := range docs {
		chunks = append(chunks, s.chunker.Chunk(doc.Text, doc.Name, doc.Meta)...)
	}
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return vectors, chunks, nil
}

// Retrieve runs the threshold-relaxing retrieval described on Retriever.
func (s *System) Retrieve(ctx context.Context, query string, k int, minScore float32, filter map[string]string) ([]Result, error) {
	return s.retriever.Retrieve(ctx, query, k, minScore, filter)
}

// AssembleContext turns retrieval results into the bounded context block
// handed to the generation layer.
func (s *System) AssembleContext(ctx context.Context, results []Result) (ContextBlock, error) {
	corpus, err := s.index.Chunks(ctx)
	if err != nil {
		return ContextBlock{}, err
	}
	return s.assembler.Assemble(results, corpus), nil
}

// Export captures the index contents for cross-session persistence.
func (s *System) Export(ctx context.Context) (Snapshot, error) {
	vectors, chunks, err := s.index.Export(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Chunks:    chunks,
		Vectors:   vectors,
		ModelInfo: s.embedder.ModelInfo(),
		Dimension: s.embedder.Dimension(),
	}, nil
}

// Load restores an exported snapshot without recomputing embeddings.
// Snapshots from a different embedding model are refused: their vectors
// are not comparable with anything this system would embed.
func (s *System) Load(ctx context.Context, snap Snapshot) error {
	if snap.ModelInfo != s.embedder.ModelInfo() {
		return fmt.Errorf("%w: snapshot from %q, system runs %q",
			ErrModelMismatch, snap.ModelInfo, s.embedder.ModelInfo())
	}
	if snap.Dimension != s.embedder.Dimension() {
		return fmt.Errorf("%w: snapshot dimension %d, provider dimension %d",
			ErrDimensionMismatch, snap.Dimension, s.embedder.Dimension())
	}
	if len(snap.Chunks) != len(snap.Vectors) {
		return ErrLengthMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Load(ctx, snap.Vectors, snap.Chunks)
}

// Chunks returns the indexed chunks in insertion order.
func (s *System) Chunks(ctx context.Context) ([]Chunk, error) {
	return s.index.Chunks(ctx)
}

// Len reports the number of indexed chunks.
func (s *System) Len() int {
	return s.index.Len()
}

// ModelInfo identifies the embedding model this system was built with.
func (s *System) ModelInfo() string {
	return s.embedder.ModelInfo()
}

// Reset drops all indexed content.
func (s *System) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Build(ctx, nil, nil)
}
