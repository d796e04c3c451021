package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/recordstream/core"
	"github.com/poiesic/recordstream/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexingStatuses(writes []core.Record) []core.Status {
	out := make([]core.Status, len(writes))
	for i, w := range writes {
		out[i] = w.IndexingStatus
	}
	return out
}

func TestNewDispatcher_Requirements(t *testing.T) {
	f := setupFixture(t)
	_, err := NewDispatcher(nil, f.resolver, f.extraction)
	assert.ErrorIs(t, err, ErrRecordRepositoryRequired)
	_, err = NewDispatcher(f.records, nil, f.extraction)
	assert.ErrorIs(t, err, ErrResolverRequired)
	_, err = NewDispatcher(f.records, f.resolver, nil)
	assert.ErrorIs(t, err, ErrExtractionRequired)
}

func TestDispatch_HappyPathPDF(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	require.True(t, f.dispatcher.Dispatch(ctx, pdfEvent(core.EventNewRecord, "rec-1", "vr-1")))

	rec := f.record(t, "rec-1")
	assert.Equal(t, core.StatusCompleted, rec.IndexingStatus)
	assert.Equal(t, core.StatusCompleted, rec.ExtractionStatus)
	assert.Equal(t, "vr-1", rec.VirtualRecordID)
	assert.Empty(t, rec.Reason)

	chunks, err := f.chunks.GetChunks(ctx, "rec-1", "vr-1")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].Text, "Invoice 42")

	assert.Equal(t, []core.Status{core.StatusInProgress, core.StatusCompleted}, indexingStatuses(f.records.written()))
	assert.Equal(t, int32(1), f.resolver.calls.Load())
}

func TestDispatch_UnsupportedTypeShortCircuits(t *testing.T) {
	f := setupFixture(t)
	event := &core.Event{
		Type: core.EventNewRecord,
		Payload: core.Payload{
			RecordID:        "rec-zip",
			VirtualRecordID: "vr-zip",
			Extension:       "zip",
			MimeType:        "application/zip",
		},
	}

	require.True(t, f.dispatcher.Dispatch(context.Background(), event))

	rec := f.record(t, "rec-zip")
	assert.Equal(t, core.StatusFileTypeNotSupported, rec.IndexingStatus)
	assert.Equal(t, core.StatusFileTypeNotSupported, rec.ExtractionStatus)
	assert.Equal(t, int32(0), f.resolver.calls.Load())
	assert.Equal(t, int32(0), f.extraction.extracts.Load())
	assert.Len(t, f.records.written(), 1)
}

func TestDispatch_RedeliveryIsIdempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	event := pdfEvent(core.EventNewRecord, "rec-1", "vr-1")

	require.True(t, f.dispatcher.Dispatch(ctx, event))
	writes := len(f.records.written())

	redelivered := pdfEvent(core.EventNewRecord, "rec-1", "vr-1")
	require.True(t, f.dispatcher.Dispatch(ctx, redelivered))

	assert.Equal(t, int32(1), f.resolver.calls.Load())
	assert.Equal(t, int32(1), f.extraction.extracts.Load())
	assert.Len(t, f.records.written(), writes, "no status write for a completed record")
	assert.Equal(t, core.StatusCompleted, f.record(t, "rec-1").IndexingStatus)
}

func TestDispatch_NewVersionIsReindexed(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	require.True(t, f.dispatcher.Dispatch(ctx, pdfEvent(core.EventNewRecord, "rec-1", "vr-1")))
	require.True(t, f.dispatcher.Dispatch(ctx, pdfEvent(core.EventNewRecord, "rec-1", "vr-2")))

	assert.Equal(t, int32(2), f.extraction.extracts.Load())
	assert.Equal(t, "vr-2", f.record(t, "rec-1").VirtualRecordID)
}

func TestDispatch_FailureMarksFailedWithTruncatedReason(t *testing.T) {
	f := setupFixture(t)
	f.resolver.err = errors.New(strings.Repeat("é", 2000))
	event := pdfEvent(core.EventNewRecord, "rec-1", "vr-1")
	event.Payload.Buffer = nil

	assert.False(t, f.dispatcher.Dispatch(context.Background(), event))

	rec := f.record(t, "rec-1")
	assert.Equal(t, core.StatusFailed, rec.IndexingStatus)
	assert.Equal(t, core.StatusFailed, rec.ExtractionStatus)
	assert.Equal(t, core.MaxReasonLength, utf8.RuneCountInString(rec.Reason))
	assert.Equal(t, []core.Status{core.StatusInProgress, core.StatusFailed}, indexingStatuses(f.records.written()))
}

func TestDispatch_IndexingErrorMarksFailed(t *testing.T) {
	f := setupFixture(t)
	event := textEvent(core.EventNewRecord, "rec-1", "vr-1", "   ")

	assert.False(t, f.dispatcher.Dispatch(context.Background(), event))

	rec := f.record(t, "rec-1")
	assert.Equal(t, core.StatusFailed, rec.IndexingStatus)
	assert.Contains(t, rec.Reason, "no text extracted")
}

func TestDispatch_CompletedExtractionIsNeverDowngraded(t *testing.T) {
	f := setupFixture(t)
	f.extraction.override = func(ctx context.Context, in core.ExtractionInput) error {
		if err := f.extraction.Extractor.Extract(ctx, in); err != nil {
			return err
		}
		return errors.New("post-index hook failed")
	}

	assert.False(t, f.dispatcher.Dispatch(context.Background(), textEvent(core.EventNewRecord, "rec-1", "vr-1", "some text")))

	rec := f.record(t, "rec-1")
	assert.Equal(t, core.StatusFailed, rec.IndexingStatus)
	assert.Equal(t, core.StatusCompleted, rec.ExtractionStatus)
}

func TestDispatch_FailedReindexKeepsCompletedExtraction(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	require.True(t, f.dispatcher.Dispatch(ctx, textEvent(core.EventNewRecord, "rec-1", "vr-1", "first draft")))
	require.Equal(t, core.StatusCompleted, f.record(t, "rec-1").ExtractionStatus)

	f.extraction.override = func(ctx context.Context, in core.ExtractionInput) error {
		return errors.New("transient")
	}
	assert.False(t, f.dispatcher.Dispatch(ctx, textEvent(core.EventUpdateRecord, "rec-1", "vr-2", "second draft")))

	rec := f.record(t, "rec-1")
	assert.Equal(t, core.StatusFailed, rec.IndexingStatus)
	assert.Equal(t, core.StatusCompleted, rec.ExtractionStatus)
	assert.Equal(t, "transient", rec.Reason)
}

func TestDispatch_ExtractionPanicMarksFailed(t *testing.T) {
	f := setupFixture(t)
	f.extraction.override = func(ctx context.Context, in core.ExtractionInput) error {
		panic("corrupt table")
	}

	assert.False(t, f.dispatcher.Dispatch(context.Background(), textEvent(core.EventNewRecord, "rec-1", "vr-1", "x")))

	rec := f.record(t, "rec-1")
	assert.Equal(t, core.StatusFailed, rec.IndexingStatus)
	assert.Contains(t, rec.Reason, "corrupt table")
}

func TestDispatch_DeleteWritesNoStatus(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	require.True(t, f.dispatcher.Dispatch(ctx, pdfEvent(core.EventNewRecord, "rec-1", "vr-1")))
	before := f.record(t, "rec-1")
	f.records.reset()

	del := &core.Event{Type: core.EventDeleteRecord, Payload: core.Payload{RecordID: "rec-1", VirtualRecordID: "vr-1"}}
	require.True(t, f.dispatcher.Dispatch(ctx, del))

	chunks, err := f.chunks.GetChunks(ctx, "rec-1", "vr-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Empty(t, f.records.written())
	assert.Equal(t, before.IndexingStatus, f.record(t, "rec-1").IndexingStatus)
	assert.Equal(t, int32(1), f.resolver.calls.Load(), "delete does not resolve content")
}

func TestDispatch_UpdateReindexesAndDropsPreviousVersion(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	require.True(t, f.dispatcher.Dispatch(ctx, textEvent(core.EventNewRecord, "rec-1", "vr-1", "first draft")))

	// Same virtual record id: the completed guard must not apply to updates.
	require.True(t, f.dispatcher.Dispatch(ctx, textEvent(core.EventUpdateRecord, "rec-1", "vr-2", "second draft")))

	old, err := f.chunks.GetChunks(ctx, "rec-1", "vr-1")
	require.NoError(t, err)
	assert.Empty(t, old)

	current, err := f.chunks.GetChunks(ctx, "rec-1", "vr-2")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "second draft", current[0].Text)

	rec := f.record(t, "rec-1")
	assert.Equal(t, core.StatusCompleted, rec.IndexingStatus)
	assert.Equal(t, "vr-2", rec.VirtualRecordID)
}

func TestDispatch_UpdateOfCompletedVersionReindexes(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	require.True(t, f.dispatcher.Dispatch(ctx, textEvent(core.EventNewRecord, "rec-1", "vr-1", "draft")))
	require.True(t, f.dispatcher.Dispatch(ctx, textEvent(core.EventUpdateRecord, "rec-1", "vr-1", "edited draft")))

	assert.Equal(t, int32(2), f.extraction.extracts.Load())
	current, err := f.chunks.GetChunks(ctx, "rec-1", "vr-1")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "edited draft", current[0].Text)
}

func TestDispatch_InvalidEvents(t *testing.T) {
	f := setupFixture(t)
	tests := []struct {
		name  string
		event *core.Event
	}{
		{name: "nil", event: nil},
		{name: "missing record id", event: &core.Event{Type: core.EventNewRecord}},
		{name: "unknown type", event: &core.Event{Type: "archiveRecord", Payload: core.Payload{RecordID: "r"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, f.dispatcher.Dispatch(context.Background(), tt.event))
		})
	}
	assert.Empty(t, f.records.written())
	_, err := f.records.GetRecord(context.Background(), "r")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
