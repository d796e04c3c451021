package ai

import "context"

// Embedder turns text into vectors for chunk indexing and search.
// Implementations are shared between indexing tasks and must be safe for
// concurrent use.
type Embedder interface {
	// EmbedText embeds a search query.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds a batch of chunk texts. The result has one vector
	// per input, in input order, and an empty batch yields an empty result.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
