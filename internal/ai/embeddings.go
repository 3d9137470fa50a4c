package ai

import (
	"fmt"
	"math"

	"patient-qa-platform/internal/config"
	"patient-qa-platform/internal/rag"
)

// NewEmbedder constructs the embedding provider selected by configuration.
// The choice is made once per process; every component that embeds text
// receives the same provider by reference. Construction fails fast when the
// backing model is unavailable (missing API key, client init failure) so
// indexing and search are refused outright instead of degrading silently.
func NewEmbedder(cfg *config.Config) (rag.Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "":
		return NewGoogleEmbedder(cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel, cfg.VectorDimensions)

	case "openai":
		// The OpenAI-compatible provider doubles as the domain-specialized
		// alternative: point OPENAI_BASE_URL at a hosted clinical
		// embedding model with an OpenAI-style API.
		return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIEmbeddingsModel)

	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

// l2normalize scales v to unit length in place. Embedding vectors are
// normalized at the provider boundary so every index backend can use the
// inner product as cosine similarity.
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
