package extraction

import "errors"

var (
	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrConverterRequired is returned when a kind needs structural conversion
	// and no converter is configured.
	ErrConverterRequired = errors.New("converter required")

	// ErrNoExtractor is returned for a kind outside the extraction table.
	ErrNoExtractor = errors.New("no extractor for content kind")
)
