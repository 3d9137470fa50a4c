package ai

import (
	"math"
	"testing"

	"patient-qa-platform/internal/config"
)

func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4}
	l2normalize(v)
	norm := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("norm = %f after normalization", norm)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("unexpected direction: %v", v)
	}
}

func TestL2NormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	l2normalize(v)
	for i, x := range v {
		if x != 0 {
			t.Errorf("component %d changed: %f", i, x)
		}
	}
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	cfg := &config.Config{EmbeddingsProvider: "cohere"}
	if _, err := NewEmbedder(cfg); err == nil {
		t.Fatal("unknown provider should fail construction")
	}
}
