package reembed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/poiesic/recordstream/core"
	"github.com/poiesic/recordstream/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder for testing
type mockEmbedder struct {
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedTextsFunc != nil {
		return m.embedTextsFunc(ctx, texts)
	}
	// Default: unnormalized vectors with magnitude 3
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0}
	}
	return result, nil
}

func setupTestChunks(t *testing.T, n int) *badger.ChunkRepository {
	t.Helper()
	_, chunks, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	if n > 0 {
		batch := make([]*core.Chunk, n)
		for i := range batch {
			batch[i] = &core.Chunk{
				RecordID:        fmt.Sprintf("r%d", i/4),
				VirtualRecordID: fmt.Sprintf("v%d", i/4),
				Index:           i % 4,
				Text:            fmt.Sprintf("chunk %d", i),
				Vector:          []float32{0, 1},
			}
		}
		require.NoError(t, chunks.AddChunks(context.Background(), batch...))
	}
	return chunks
}

func assertUnit(t *testing.T, v []float32) {
	t.Helper()
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestBatchProcessor_Process(t *testing.T) {
	repo := setupTestChunks(t, 2)
	ctx := context.Background()

	stored, err := repo.GetChunks(ctx, "r0", "v0")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	processor := NewBatchProcessor(repo, &mockEmbedder{}, 3, 10*time.Millisecond)
	require.NoError(t, processor.Process(ctx, stored))

	updated, err := repo.GetChunks(ctx, "r0", "v0")
	require.NoError(t, err)
	require.Len(t, updated, 2)
	for i, chunk := range updated {
		assert.Equal(t, stored[i].Text, chunk.Text)
		assert.Equal(t, stored[i].Id, chunk.Id)
		assert.InDelta(t, 1.0/3, chunk.Vector[0], 1e-6)
		assertUnit(t, chunk.Vector)
	}
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			t.Fatal("embedder must not be called")
			return nil, nil
		},
	}
	processor := NewBatchProcessor(setupTestChunks(t, 0), embedder, 3, time.Millisecond)
	assert.NoError(t, processor.Process(context.Background(), nil))
}

func TestBatchProcessor_RetriesTransientErrors(t *testing.T) {
	repo := setupTestChunks(t, 1)
	ctx := context.Background()
	stored, err := repo.GetChunks(ctx, "r0", "v0")
	require.NoError(t, err)

	calls := 0
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("temporary error")
			}
			return [][]float32{{3, 4}}, nil
		},
	}
	processor := NewBatchProcessor(repo, embedder, 3, time.Millisecond)
	require.NoError(t, processor.Process(ctx, stored))
	assert.Equal(t, 3, calls)

	updated, err := repo.GetChunks(ctx, "r0", "v0")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, updated[0].Vector, 1e-6)
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	repo := setupTestChunks(t, 2)
	ctx := context.Background()
	stored, err := repo.GetChunks(ctx, "r0", "v0")
	require.NoError(t, err)

	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
	}
	processor := NewBatchProcessor(repo, embedder, 1, time.Millisecond)
	err = processor.Process(ctx, stored)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding count mismatch")
}
