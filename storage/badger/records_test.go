package badger

import (
	"context"
	"sync"
	"testing"

	"github.com/poiesic/recordstream/core"
	"github.com/poiesic/recordstream/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRecords(t *testing.T) *RecordRepository {
	t.Helper()
	records, _, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return records
}

func TestGetRecord_NotFound(t *testing.T) {
	repo := setupTestRecords(t)

	_, err := repo.GetRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsertRecords_InsertThenUpdate(t *testing.T) {
	repo := setupTestRecords(t)
	ctx := context.Background()

	record := core.NewRecord(&core.Payload{RecordID: "r1", OrgID: "o1", VirtualRecordID: "v1", Extension: "pdf"})
	require.NoError(t, repo.UpsertRecords(ctx, record))
	require.False(t, record.CreatedAt.IsZero())
	createdAt := record.CreatedAt

	got, err := repo.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotStarted, got.IndexingStatus)
	assert.Equal(t, "o1", got.OrgID)

	got.MarkInProgress()
	require.NoError(t, repo.UpsertRecords(ctx, got))

	again, err := repo.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusInProgress, again.IndexingStatus)
	assert.Equal(t, core.StatusInProgress, again.ExtractionStatus)
	assert.True(t, createdAt.Equal(again.CreatedAt))
	assert.False(t, again.UpdatedAt.Before(again.CreatedAt))
}

func TestUpsertRecords_Batch(t *testing.T) {
	repo := setupTestRecords(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRecords(ctx,
		&core.Record{ID: "a", IndexingStatus: core.StatusCompleted},
		&core.Record{ID: "b", IndexingStatus: core.StatusFailed},
	))

	a, err := repo.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, a.IndexingStatus)

	b, err := repo.GetRecord(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, b.IndexingStatus)
}

func TestUpsertRecords_ConcurrentDistinctIDs(t *testing.T) {
	repo := setupTestRecords(t)
	ctx := context.Background()

	ids := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8"}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.UpsertRecords(ctx, &core.Record{ID: id, IndexingStatus: core.StatusInProgress}))
		}()
	}
	wg.Wait()

	for _, id := range ids {
		_, err := repo.GetRecord(ctx, id)
		assert.NoError(t, err, id)
	}
}

func TestRecordRepository_Closed(t *testing.T) {
	records, _, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	_, err = records.GetRecord(context.Background(), "r1")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, records.UpsertRecords(context.Background(), &core.Record{ID: "r1"}), storage.ErrStorageClosed)
}
