package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/recordstream/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrVectorCount is returned when the service answers with a different
	// number of vectors than texts sent.
	ErrVectorCount = errors.New("embedding service returned wrong number of vectors")

	// ErrDimensionMismatch is returned when vectors in one answer differ in
	// length, which happens when a deployment switches models mid-request.
	ErrDimensionMismatch = errors.New("embedding vectors have mixed dimensions")
)

// Embedder embeds chunk texts and search queries through an
// OpenAI-compatible embeddings endpoint.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// Option configures an Embedder.
type Option func(*Embedder)

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmbedder validates config and connects an embedder to its host. Chunk
// batches larger than config.BatchSize are split into several requests.
func NewEmbedder(config *ai.Config, opts ...Option) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.EmbeddingToken),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	e := &Embedder{
		embedder: embedder,
		model:    config.EmbeddingModel,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "embedder", "model", e.model)
	return e, nil
}

// EmbedText embeds a search query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query with %s: %w", e.model, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrVectorCount)
	}
	return vector, nil
}

// EmbedTexts embeds a batch of chunk texts. Every text gets exactly one
// vector and all vectors share a dimension, or an error is returned and
// nothing should be stored.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("embedding chunks", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks with %s: %w", len(texts), e.model, err)
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		e.logger.Error("rejecting embedding response", "count", len(texts), "err", err)
		return nil, err
	}
	return vectors, nil
}

func checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrVectorCount, len(vectors), want)
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, first has %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}
