package storage

import (
	"context"

	"github.com/poiesic/recordstream/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// RecordRepository reads and writes the status-bearing view of records.
type RecordRepository interface {
	Repository

	// GetRecord retrieves a single record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id string) (*core.Record, error)

	// UpsertRecords inserts or replaces records in one batch.
	// Sets CreatedAt on first write and UpdatedAt on every write.
	// Concurrent upserts of the same ID are last-write-wins.
	UpsertRecords(ctx context.Context, records ...*core.Record) error
}

// ChunkRepository stores embedded chunks of extracted record content.
type ChunkRepository interface {
	Repository

	// AddChunks stores chunks, replacing any chunk with the same ID.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) error

	// GetChunks returns the chunks of one virtual record ordered by Index.
	GetChunks(ctx context.Context, recordID, virtualRecordID string) ([]*core.Chunk, error)

	// DeleteChunks removes every chunk of a record's virtual record.
	// An empty virtualRecordID removes the chunks of all versions of the record.
	// Returns the number of chunks removed; removing nothing is not an error.
	DeleteChunks(ctx context.Context, recordID, virtualRecordID string) (int, error)

	// ScanChunks calls fn with successive batches of at most batchSize stored
	// chunks, in key order. Iteration stops at the first error from fn.
	ScanChunks(ctx context.Context, batchSize int, fn func([]*core.Chunk) error) error

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// FindSimilar finds chunks similar to the given vector.
	// Returns chunks with similarity >= minSimilarity, up to limit results,
	// ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)
}
