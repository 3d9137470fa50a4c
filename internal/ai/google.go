package ai

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleEmbedder is the general-purpose provider: Google Generative AI
// sentence embeddings (text-embedding-004 by default). The genai client is
// created once at startup and shared; it is safe for concurrent use.
type GoogleEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGoogleEmbedder fails fast when the API key is missing or the client
// cannot be constructed.
func NewGoogleEmbedder(apiKey, model string, dim int) (*GoogleEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	if dim <= 0 {
		dim = 768
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("init google embeddings client: %w", err)
	}
	return &GoogleEmbedder{client: client, model: model, dim: dim}, nil
}

// EmbedBatch embeds texts in a single batched API call and L2-normalizes
// the results. Batch calls are strongly preferred over per-chunk calls:
// embedding dominates index-build cost.
func (g *GoogleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := g.client.EmbeddingModel(g.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch = batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("google embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("google embeddings: got %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("google embeddings: empty vector at position %d", i)
		}
		v := append([]float32(nil), e.Values...)
		l2normalize(v)
		vectors[i] = v
	}
	return vectors, nil
}

func (g *GoogleEmbedder) Dimension() int { return g.dim }

func (g *GoogleEmbedder) ModelInfo() string { return "google-" + g.model }

// Close releases the underlying API client.
func (g *GoogleEmbedder) Close() error { return g.client.Close() }
