// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recordstream/ai"
	"github.com/poiesic/recordstream/core"
	"github.com/poiesic/recordstream/storage"
	"github.com/tmc/langchaingo/textsplitter"
)

// ExtractFunc extracts and indexes one kind of content.
type ExtractFunc func(ctx context.Context, in core.ExtractionInput) error

// Extractor is the extraction layer. It owns the per-kind extraction table
// and the indexing step every entry finishes with.
type Extractor struct {
	recordRepository storage.RecordRepository
	chunkRepository  storage.ChunkRepository
	embedder         ai.Embedder
	converter        Converter
	pool             *ants.Pool
	splitter         textsplitter.TextSplitter
	batchSize        int
	table            map[core.ContentKind]ExtractFunc
	now              func() time.Time
	logger           *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithPoolSize sets the worker pool size for CPU-bound extraction work.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(e *Extractor) error {
		if size < 1 {
			size = 1
		}
		if e.pool != nil {
			e.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		e.pool = pool
		return nil
	}
}

// WithConverter sets the converter used for office documents, PDFs and images.
func WithConverter(c Converter) Option {
	return func(e *Extractor) error {
		e.converter = c
		return nil
	}
}

// WithChunking sets the chunk size and overlap, in runes.
func WithChunking(size, overlap int) Option {
	return func(e *Extractor) error {
		if size <= 0 || overlap < 0 || overlap >= size {
			return fmt.Errorf("invalid chunking: size=%d overlap=%d", size, overlap)
		}
		e.splitter = textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		)
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(size int) Option {
	return func(e *Extractor) error {
		if size < 1 {
			size = 1
		}
		e.batchSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewExtractor creates the extraction layer.
func NewExtractor(
	recordRepository storage.RecordRepository,
	chunkRepository storage.ChunkRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Extractor, error) {
	if recordRepository == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if chunkRepository == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Extractor{
		recordRepository: recordRepository,
		chunkRepository:  chunkRepository,
		embedder:         embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(ai.DefaultChunkSize),
			textsplitter.WithChunkOverlap(ai.DefaultChunkOverlap),
		),
		batchSize: ai.DefaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Release()
			return nil, err
		}
	}

	if e.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU(), 1))
		if err != nil {
			return nil, err
		}
		e.pool = pool
	}
	e.logger = e.logger.With("component", "extraction")
	e.table = e.buildTable()
	return e, nil
}

func (e *Extractor) buildTable() map[core.ContentKind]ExtractFunc {
	converted := e.textual(e.convertedText)
	text := e.textual(e.plainText)
	return map[core.ContentKind]ExtractFunc{
		core.KindPDF:          e.textual(e.pdfText),
		core.KindDOCX:         converted,
		core.KindDOC:          converted,
		core.KindXLSX:         converted,
		core.KindXLS:          converted,
		core.KindPPTX:         converted,
		core.KindPPT:          converted,
		core.KindGoogleDoc:    converted,
		core.KindGoogleSheet:  converted,
		core.KindGoogleSlides: converted,
		core.KindCSV:          e.textual(e.csvText),
		core.KindHTML:         e.textual(e.htmlText),
		core.KindSVG:          e.textual(e.htmlText),
		core.KindGmail:        e.textual(e.mailText),
		core.KindMarkdown:     text,
		core.KindMDX:          text,
		core.KindText:         text,
		core.KindJSON:         e.textual(e.jsonText),
		core.KindPNG:          e.textual(e.imageText("png")),
		core.KindJPEG:         e.textual(e.imageText("jpeg")),
		core.KindWEBP:         e.textual(e.imageText("webp")),
	}
}

// Supports reports whether kind has an entry in the extraction table.
func (e *Extractor) Supports(kind core.ContentKind) bool {
	_, ok := e.table[kind]
	return ok
}

// ExtractorFor returns the extraction table entry for kind.
func (e *Extractor) ExtractorFor(kind core.ContentKind) (ExtractFunc, bool) {
	fn, ok := e.table[kind]
	return fn, ok
}

// Extract runs the table entry for the input's kind.
func (e *Extractor) Extract(ctx context.Context, in core.ExtractionInput) error {
	fn, ok := e.table[in.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoExtractor, in.Kind)
	}
	return fn(ctx, in)
}

// DeleteEmbeddings removes the chunks of a record. An empty
// virtualRecordID removes every version.
func (e *Extractor) DeleteEmbeddings(ctx context.Context, recordID, virtualRecordID string) error {
	n, err := e.chunkRepository.DeleteChunks(ctx, recordID, virtualRecordID)
	if err != nil {
		return fmt.Errorf("failed to delete embeddings for %s: %w", recordID, err)
	}
	e.logger.Debug("deleted embeddings", "record_id", recordID, "virtual_record_id", virtualRecordID, "chunks", n)
	return nil
}

// Release releases the worker pool.
// The extractor should not be used after calling Release.
func (e *Extractor) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

type textFunc func(ctx context.Context, in core.ExtractionInput) (string, error)

// textual wraps a text producer with the shared indexing step.
func (e *Extractor) textual(fn textFunc) ExtractFunc {
	return func(ctx context.Context, in core.ExtractionInput) error {
		if len(in.Content) == 0 {
			return core.NewIndexingError(in.RecordID, in.Kind, "record has no content", core.ErrEmptyContent)
		}
		text, err := fn(ctx, in)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return core.NewIndexingError(in.RecordID, in.Kind, "no text extracted", core.ErrEmptyContent)
		}
		return e.index(ctx, in, text)
	}
}

// index splits text, embeds the chunks, replaces the virtual record's stored
// chunks and marks the record COMPLETED.
func (e *Extractor) index(ctx context.Context, in core.ExtractionInput, text string) error {
	parts, err := offload(ctx, e.pool, func() ([]string, error) {
		return e.splitter.SplitText(text)
	})
	if err != nil {
		return fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]*core.Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, &core.Chunk{
			RecordID:        in.RecordID,
			VirtualRecordID: in.VirtualRecordID,
			OrgID:           in.OrgID,
			Index:           len(chunks),
			Text:            part,
		})
	}

	for start := 0; start < len(chunks); start += e.batchSize {
		batch := chunks[start:min(start+e.batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := e.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding result mismatch. expected %d, received %d", len(batch), len(vectors))
		}
		for i := range batch {
			batch[i].Vector = ai.NormalizeVector(vectors[i])
		}
	}

	if _, err := e.chunkRepository.DeleteChunks(ctx, in.RecordID, in.VirtualRecordID); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}
	if err := e.chunkRepository.AddChunks(ctx, chunks...); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	return e.markCompleted(ctx, in, len(chunks))
}

func (e *Extractor) markCompleted(ctx context.Context, in core.ExtractionInput, chunks int) error {
	record, err := e.recordRepository.GetRecord(ctx, in.RecordID)
	if errors.Is(err, storage.ErrNotFound) {
		record = core.NewRecord(&core.Payload{
			RecordID:        in.RecordID,
			OrgID:           in.OrgID,
			VirtualRecordID: in.VirtualRecordID,
			RecordName:      in.RecordName,
			Version:         in.Version,
		})
	} else if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}

	record.VirtualRecordID = in.VirtualRecordID
	record.MarkCompleted(e.now())
	if err := e.recordRepository.UpsertRecords(ctx, record); err != nil {
		return fmt.Errorf("failed to mark record completed: %w", err)
	}

	e.logger.Info("record indexed", "record_id", in.RecordID, "kind", in.Kind.String(), "source", in.Source, "chunks", chunks)
	return nil
}

func (e *Extractor) plainText(ctx context.Context, in core.ExtractionInput) (string, error) {
	return offload(ctx, e.pool, func() (string, error) {
		return decodeText(in.Content), nil
	})
}

func (e *Extractor) jsonText(ctx context.Context, in core.ExtractionInput) (string, error) {
	text, err := offload(ctx, e.pool, func() (string, error) {
		return decodeJSON(in.Content)
	})
	if err != nil && ctx.Err() == nil {
		return "", core.NewIndexingError(in.RecordID, in.Kind, "unreadable JSON", err)
	}
	return text, err
}

func (e *Extractor) csvText(ctx context.Context, in core.ExtractionInput) (string, error) {
	text, err := offload(ctx, e.pool, func() (string, error) {
		return decodeCSV(in.Content)
	})
	if err != nil && ctx.Err() == nil {
		return "", core.NewIndexingError(in.RecordID, in.Kind, "unreadable CSV", err)
	}
	return text, err
}

func (e *Extractor) htmlText(ctx context.Context, in core.ExtractionInput) (string, error) {
	return offload(ctx, e.pool, func() (string, error) {
		return decodeHTML(in.Content), nil
	})
}

func (e *Extractor) mailText(ctx context.Context, in core.ExtractionInput) (string, error) {
	if looksLikeHTML(in.Content) {
		return e.htmlText(ctx, in)
	}
	return e.plainText(ctx, in)
}

func (e *Extractor) pdfText(ctx context.Context, in core.ExtractionInput) (string, error) {
	pages, err := offload(ctx, e.pool, func() (int, error) {
		return pdfPageCount(in.Content)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", core.NewIndexingError(in.RecordID, in.Kind, "invalid PDF", err)
	}
	if pages == 0 {
		return "", core.NewIndexingError(in.RecordID, in.Kind, "PDF has no pages", nil)
	}
	e.logger.Debug("validated PDF", "record_id", in.RecordID, "pages", pages)
	return e.convertedText(ctx, in)
}

func (e *Extractor) imageText(format string) textFunc {
	return func(ctx context.Context, in core.ExtractionInput) (string, error) {
		_, err := offload(ctx, e.pool, func() (struct{}, error) {
			return struct{}{}, checkImage(in.Content, format)
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			return "", core.NewIndexingError(in.RecordID, in.Kind, "unreadable image", err)
		}
		return e.convertedText(ctx, in)
	}
}

func (e *Extractor) convertedText(ctx context.Context, in core.ExtractionInput) (string, error) {
	if e.converter == nil {
		return "", fmt.Errorf("%w for %s", ErrConverterRequired, in.Kind)
	}
	text, err := e.converter.Convert(ctx, in.Kind, in.RecordName, in.Content)
	if err != nil {
		var ie *core.IndexingError
		if errors.As(err, &ie) && ie.RecordID == "" {
			ie.RecordID = in.RecordID
		}
		return "", err
	}
	return text, nil
}
