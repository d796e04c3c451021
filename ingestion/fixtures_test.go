package ingestion

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/poiesic/recordstream/ai/mock"
	"github.com/poiesic/recordstream/core"
	"github.com/poiesic/recordstream/extraction"
	"github.com/poiesic/recordstream/storage"
	"github.com/poiesic/recordstream/storage/badger"
	"github.com/stretchr/testify/require"
)

// recordingRecords captures every status write.
type recordingRecords struct {
	storage.RecordRepository
	mu     sync.Mutex
	writes []core.Record
}

func (r *recordingRecords) UpsertRecords(ctx context.Context, records ...*core.Record) error {
	r.mu.Lock()
	for _, rec := range records {
		r.writes = append(r.writes, *rec)
	}
	r.mu.Unlock()
	return r.RecordRepository.UpsertRecords(ctx, records...)
}

func (r *recordingRecords) written() []core.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Record(nil), r.writes...)
}

func (r *recordingRecords) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
}

type spyResolver struct {
	calls atomic.Int32
	err   error
	body  []byte
}

func (s *spyResolver) Resolve(ctx context.Context, p *core.Payload) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	if len(p.Buffer) == 0 {
		p.Buffer = s.body
	}
	return nil
}

// spyExtraction counts calls into the real extraction layer and can
// replace Extract.
type spyExtraction struct {
	*extraction.Extractor
	extracts atomic.Int32
	deletes  atomic.Int32
	override func(ctx context.Context, in core.ExtractionInput) error
}

func (s *spyExtraction) Extract(ctx context.Context, in core.ExtractionInput) error {
	s.extracts.Add(1)
	if s.override != nil {
		return s.override(ctx, in)
	}
	return s.Extractor.Extract(ctx, in)
}

func (s *spyExtraction) DeleteEmbeddings(ctx context.Context, recordID, virtualRecordID string) error {
	s.deletes.Add(1)
	return s.Extractor.DeleteEmbeddings(ctx, recordID, virtualRecordID)
}

type fixture struct {
	records    *recordingRecords
	chunks     *badger.ChunkRepository
	resolver   *spyResolver
	extraction *spyExtraction
	dispatcher *Dispatcher
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	records, chunks, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	recorder := &recordingRecords{RecordRepository: records}
	converter := extraction.ConverterFunc(func(ctx context.Context, kind core.ContentKind, name string, content []byte) (string, error) {
		return "Invoice 42. Total due: 100 EUR. Payment within 30 days.", nil
	})
	extractor, err := extraction.NewExtractor(recorder, chunks, mock.NewMockEmbedder(),
		extraction.WithConverter(converter),
		extraction.WithPoolSize(2),
		extraction.WithChunking(200, 20),
	)
	require.NoError(t, err)
	t.Cleanup(extractor.Release)

	f := &fixture{
		records:    recorder,
		chunks:     chunks,
		resolver:   &spyResolver{},
		extraction: &spyExtraction{Extractor: extractor},
	}
	f.dispatcher, err = NewDispatcher(recorder, f.resolver, f.extraction)
	require.NoError(t, err)
	return f
}

func (f *fixture) record(t *testing.T, id string) *core.Record {
	t.Helper()
	rec, err := f.records.GetRecord(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func pdfEvent(eventType core.EventType, recordID, virtualRecordID string) *core.Event {
	return &core.Event{
		Type: eventType,
		Payload: core.Payload{
			RecordID:        recordID,
			OrgID:           "org-1",
			VirtualRecordID: virtualRecordID,
			RecordName:      "invoice.pdf",
			Extension:       "pdf",
			MimeType:        "application/pdf",
			Version:         1,
			Origin:          "UPLOAD",
			Buffer:          extraction.MinimalPDF("Invoice 42"),
		},
	}
}

func textEvent(eventType core.EventType, recordID, virtualRecordID, text string) *core.Event {
	return &core.Event{
		Type: eventType,
		Payload: core.Payload{
			RecordID:        recordID,
			OrgID:           "org-1",
			VirtualRecordID: virtualRecordID,
			RecordName:      "notes.txt",
			Extension:       "txt",
			MimeType:        "text/plain",
			Buffer:          []byte(text),
		},
	}
}
