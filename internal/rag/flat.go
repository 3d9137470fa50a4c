package rag

import (
	"context"
	"sort"
	"sync"
)

// FlatIndex is the brute-force reference index: cosine similarity computed
// as a dot product over unit-normalized vectors against every stored entry.
// It is the correctness baseline the optimized backend is tested against.
//
// A read-write mutex guards the contents: a rebuild blocks readers and
// readers block a rebuild, so searches never observe a half-replaced index.
type FlatIndex struct {
	mu        sync.RWMutex
	dimension int
	built     bool
	vectors   [][]float32
	chunks    []Chunk
}

// NewFlatIndex creates an empty index. The dimension is fixed by the first
// Build or Load call.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

func (f *FlatIndex) Build(_ context.Context, vectors [][]float32, chunks []Chunk) error {
	if len(vectors) != len(chunks) {
		return ErrLengthMismatch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dim := f.dimension
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dim {
			return ErrDimensionMismatch
		}
	}
	f.dimension = dim
	f.vectors = append([][]float32(nil), vectors...)
	f.chunks = append([]Chunk(nil), chunks...)
	f.built = true
	return nil
}

func (f *FlatIndex) Append(_ context.Context, vectors [][]float32, chunks []Chunk) error {
	if len(vectors) != len(chunks) {
		return ErrLengthMismatch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		if f.dimension != 0 && len(v) != f.dimension {
			return ErrDimensionMismatch
		}
	}
	if f.dimension == 0 && len(vectors) > 0 {
		f.dimension = len(vectors[0])
	}
	f.vectors = append(f.vectors, vectors...)
	f.chunks = append(f.chunks, chunks...)
	f.built = true
	return nil
}

func (f *FlatIndex) Search(_ context.Context, vector []float32, k int) ([]Result, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.built {
		return nil, ErrIndexNotBuilt
	}
	if len(f.vectors) == 0 {
		return nil, nil
	}
	if len(vector) != f.dimension {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		k = 5
	}

	results := make([]Result, 0, len(f.vectors))
	for i, v := range f.vectors {
		results = append(results, Result{Chunk: f.chunks[i], Score: dot(v, vector)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (f *FlatIndex) Export(_ context.Context) ([][]float32, []Chunk, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	vectors := append([][]float32(nil), f.vectors...)
	chunks := append([]Chunk(nil), f.chunks...)
	return vectors, chunks, nil
}

func (f *FlatIndex) Load(ctx context.Context, vectors [][]float32, chunks []Chunk) error {
	return f.Build(ctx, vectors, chunks)
}

func (f *FlatIndex) Chunks(_ context.Context) ([]Chunk, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Chunk(nil), f.chunks...), nil
}

func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.chunks)
}

// dot is the similarity kernel. Vectors are L2-normalized by the embedding
// providers, so the dot product equals cosine similarity.
func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
