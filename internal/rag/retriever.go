package rag

import (
	"context"
	"fmt"
)

// Embedder maps text to fixed-dimension unit vectors. Implementations must
// fail fast at construction when the backing model is unavailable; a working
// Embedder never returns zero vectors to signal failure.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}

// EmbedOne embeds a single text through the batch call.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one text", len(vecs))
	}
	return vecs[0], nil
}

// DefaultThresholds is the relaxation ladder walked when a strict retrieval
// comes back empty. Threshold values are embedding-model specific, so they
// are configuration; these defaults suit compact sentence-embedding models.
var DefaultThresholds = []float32{0.3, 0.2, 0.1, 0.0}

// Retriever embeds a query, searches the index and applies the score
// threshold with multi-pass relaxation.
//
// Metadata filtering is applied post-search on an expanded candidate pool
// (k times poolMultiplier, floor 20) and the survivors are truncated to the
// requested k. Filtering before truncation means a restrictive filter does
// not starve legitimate matches, at the cost of the effective k seen by the
// index being larger than the caller's.
type Retriever struct {
	embedder   Embedder
	index      Index
	thresholds []float32
	poolMul    int
	poolFloor  int
}

// NewRetriever wires an embedder and an index together. thresholds may be
// nil, in which case DefaultThresholds applies.
func NewRetriever(embedder Embedder, index Index, thresholds []float32) *Retriever {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	return &Retriever{
		embedder:   embedder,
		index:      index,
		thresholds: thresholds,
		poolMul:    4,
		poolFloor:  20,
	}
}

// Retrieve returns up to k chunks scoring at least minScore against the
// query, highest first. If the strict pass finds nothing, progressively
// lower ladder thresholds are tried until something matches or the ladder
// is exhausted — a quality fallback, not error recovery.
//
// An empty index returns an empty slice and no error: there is nothing to
// search. An unavailable embedder is a hard error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minScore float32, filter map[string]string) ([]Result, error) {
	if r.index.Len() == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 5
	}

	vector, err := EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	pool := k * r.poolMul
	if pool < r.poolFloor {
		pool = r.poolFloor
	}
	candidates, err := r.index.Search(ctx, vector, pool)
	if err != nil {
		return nil, err
	}
	candidates = filterByMeta(candidates, filter)

	// Scores are fixed per query, so walking the ladder over the candidate
	// set is equivalent to re-querying with relaxed thresholds.
	for _, threshold := range r.ladder(minScore) {
		results := takeAbove(candidates, threshold, k)
		if len(results) > 0 {
			return results, nil
		}
	}
	return nil, nil
}

// ladder yields minScore followed by every configured threshold strictly
// below it, in descending order.
func (r *Retriever) ladder(minScore float32) []float32 {
	out := []float32{minScore}
	for _, t := range r.thresholds {
		if t < minScore {
			out = append(out, t)
		}
	}
	return out
}

func takeAbove(candidates []Result, threshold float32, k int) []Result {
	var out []Result
	for _, c := range candidates {
		if c.Score >= threshold {
			out = append(out, c)
			if len(out) == k {
				break
			}
		}
	}
	return out
}

// filterByMeta drops candidates whose metadata does not carry every
// key/value pair in filter. A nil or empty filter keeps everything.
func filterByMeta(candidates []Result, filter map[string]string) []Result {
	if len(filter) == 0 {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		match := true
		for k, v := range filter {
			if c.Chunk.MetaValue(k) != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, c)
		}
	}
	return out
}
