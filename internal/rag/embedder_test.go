package rag

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// hashEmbedder is a deterministic offline stand-in for a real embedding
// model: lowercase tokens are hashed into dimension buckets and the vector
// is L2-normalized. Shared token overlap yields higher cosine similarity,
// which is enough structure to exercise retrieval end to end.
type hashEmbedder struct {
	dim  int
	name string
}

func newHashEmbedder(dim int) *hashEmbedder {
	return &hashEmbedder{dim: dim, name: "test/hash-embedder"}
}

func (h *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, h.dim)
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			tok = strings.Trim(tok, ".,;:!?()[]")
			if tok == "" {
				continue
			}
			f := fnv.New32a()
			f.Write([]byte(tok))
			vec[int(f.Sum32())%h.dim]++
		}
		out[i] = l2normalize(vec)
	}
	return out, nil
}

func (h *hashEmbedder) Dimension() int    { return h.dim }
func (h *hashEmbedder) ModelInfo() string { return h.name }

func l2normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
