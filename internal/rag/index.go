package rag

import "context"

// Index stores (vector, chunk) pairs and answers top-k nearest-neighbor
// queries by cosine similarity, highest score first.
//
// Build fully replaces the index contents; Append adds to them. Neither
// partial nor concurrent mutation is supported beyond that: implementations
// either serialize builds against searches or document stale reads.
// The backend is chosen once at construction time from configuration,
// never probed at runtime.
type Index interface {
	Build(ctx context.Context, vectors [][]float32, chunks []Chunk) error
	Append(ctx context.Context, vectors [][]float32, chunks []Chunk) error
	Search(ctx context.Context, vector []float32, k int) ([]Result, error)

	// Export and Load round-trip the index contents for cross-session
	// persistence. Positional correspondence between chunks and vectors
	// must be preserved exactly.
	Export(ctx context.Context) ([][]float32, []Chunk, error)
	Load(ctx context.Context, vectors [][]float32, chunks []Chunk) error

	// Chunks returns the stored chunks in insertion order.
	Chunks(ctx context.Context) ([]Chunk, error)
	Len() int
}
