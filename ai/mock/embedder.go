package mock

import (
	"context"
	"hash/fnv"

	"github.com/poiesic/recordstream/ai"
)

// Dimensions is the length of the vectors produced by default.
const Dimensions = 64

// MockEmbedder is a test double for ai.Embedder. Without injected
// functions it embeds each text to a deterministic unit vector, so equal
// text gives equal vectors and a query equal to a chunk's text scores 1.
type MockEmbedder struct {
	// EmbedTextFunc replaces the query embedding when set.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc replaces the chunk embedding when set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

var _ ai.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock embedder with deterministic output.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// EmbedText embeds a query.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return vectorFor(text), nil
}

// EmbedTexts embeds a batch of chunk texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = vectorFor(text)
	}
	return vectors, nil
}

// vectorFor seeds a linear congruential sequence with the FNV hash of text.
func vectorFor(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, Dimensions)
	for i := range vector {
		seed = seed*1664525 + 1013904223
		vector[i] = float32(seed%1000) / 1000
	}
	return ai.NormalizeVector(vector)
}
