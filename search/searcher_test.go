package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/poiesic/recordstream/ai/mock"
	"github.com/poiesic/recordstream/core"
	"github.com/poiesic/recordstream/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupChunks(t *testing.T, chunks ...*core.Chunk) *badger.ChunkRepository {
	t.Helper()
	_, repo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	if len(chunks) > 0 {
		require.NoError(t, repo.AddChunks(context.Background(), chunks...))
	}
	return repo
}

func fixedQuery(vector []float32) *mock.MockEmbedder {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return vector, nil
	}
	return embedder
}

func TestNewSearcher(t *testing.T) {
	repo := setupChunks(t)
	embedder := mock.NewMockEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(repo, embedder)
		require.NoError(t, err)
		assert.Equal(t, DefaultMinSimilarity, searcher.minSimilarity)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(repo, embedder, WithLogger(nil))
		require.NoError(t, err)
		assert.Equal(t, slog.Default(), searcher.logger)
	})

	t.Run("threshold out of range", func(t *testing.T) {
		_, err := NewSearcher(repo, embedder, WithMinSimilarity(1.5))
		assert.ErrorIs(t, err, ErrInvalidThreshold)
	})

	t.Run("nil chunk repository", func(t *testing.T) {
		_, err := NewSearcher(nil, embedder)
		assert.Equal(t, ErrChunkRepositoryRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(repo, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestFindSimilar_EmptyStore(t *testing.T) {
	searcher, err := NewSearcher(setupChunks(t), mock.NewMockEmbedder())
	require.NoError(t, err)

	results, err := searcher.FindSimilar(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindSimilar_RanksVerbatimMatchesFirst(t *testing.T) {
	repo := setupChunks(t,
		&core.Chunk{RecordID: "r1", VirtualRecordID: "v1", Index: 0,
			Text: "The quarterly revenue report is attached.", Vector: []float32{0.8, 0.6, 0}},
		&core.Chunk{RecordID: "r2", VirtualRecordID: "v2", Index: 0,
			Text: "Revenue figures for the year", Vector: []float32{1, 0, 0}},
		&core.Chunk{RecordID: "r3", VirtualRecordID: "v3", Index: 0,
			Text: "Unrelated holiday schedule", Vector: []float32{0, 1, 0}},
	)
	searcher, err := NewSearcher(repo, fixedQuery([]float32{1, 0, 0}))
	require.NoError(t, err)

	results, err := searcher.FindSimilar(context.Background(), "quarterly revenue report", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "r1", results[0].Chunk.RecordID)
	assert.InDelta(t, 1.1, results[0].Score, 0.001)
	assert.Equal(t, "r2", results[1].Chunk.RecordID)
	assert.InDelta(t, 1.0, results[1].Score, 0.001)
}

func TestFindSimilar_Threshold(t *testing.T) {
	repo := setupChunks(t,
		&core.Chunk{RecordID: "r1", VirtualRecordID: "v1", Text: "close", Vector: []float32{0.9, 0.436, 0}},
		&core.Chunk{RecordID: "r2", VirtualRecordID: "v2", Text: "far", Vector: []float32{0.5, 0.866, 0}},
	)
	searcher, err := NewSearcher(repo, fixedQuery([]float32{1, 0, 0}), WithMinSimilarity(0.4))
	require.NoError(t, err)

	results, err := searcher.FindSimilar(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	searcher.minSimilarity = 0.8
	results, err = searcher.FindSimilar(context.Background(), "q", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "r1", results[0].Chunk.RecordID)
}

func TestFindSimilar_MaxHits(t *testing.T) {
	var chunks []*core.Chunk
	for i := range 5 {
		chunks = append(chunks, &core.Chunk{RecordID: "r", VirtualRecordID: "v", Index: i, Text: "same text", Vector: []float32{1, 0}})
	}
	searcher, err := NewSearcher(setupChunks(t, chunks...), fixedQuery([]float32{1, 0}))
	require.NoError(t, err)

	results, err := searcher.FindSimilar(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = searcher.FindSimilar(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindSimilar_EmbedderError(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	boom := errors.New("embedding service down")
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, boom
	}
	searcher, err := NewSearcher(setupChunks(t), embedder)
	require.NoError(t, err)

	_, err = searcher.FindSimilar(context.Background(), "q", 5)
	assert.ErrorIs(t, err, boom)
}

func TestContainsAllQueryWords(t *testing.T) {
	tests := []struct {
		name     string
		document string
		query    string
		want     bool
	}{
		{"all words present", "The quick brown fox", "quick fox", true},
		{"punctuation ignored", "Hello, world!", "world hello", true},
		{"case insensitive", "REVENUE Report", "revenue report", true},
		{"missing word", "quick brown fox", "quick dog", false},
		{"stop words only", "anything", "the and of", false},
		{"stop words skipped in query", "budget approved", "the budget is approved", true},
		{"empty query", "text", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containsAllQueryWords(tt.document, tt.query))
		})
	}
}
