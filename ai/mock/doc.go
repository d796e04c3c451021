// Package mock provides a test double for ai.Embedder.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("embedding service down")
//	}
//
// # Default Behavior
//
// Without injected functions the mock returns deterministic unit-length
// vectors derived from an FNV hash of the text, so equal text always embeds
// to equal vectors.
package mock
