package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/recordstream/core"
	"github.com/poiesic/recordstream/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingScheduler struct{}

func (failingScheduler) Schedule(context.Context, *core.Event) error {
	return errors.New("queue unavailable")
}

func TestDeferringHandler_CoalescesUpdates(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	sched, err := scheduler.New(scheduler.NewMemoryQueue(), f.dispatcher, scheduler.WithUpdateDelay(0))
	require.NoError(t, err)
	h, err := NewDeferringHandler(f.dispatcher, sched, nil)
	require.NoError(t, err)

	require.True(t, h.Dispatch(ctx, textEvent(core.EventNewRecord, "rec-1", "vr-1", "original")))
	assert.Equal(t, int32(1), f.extraction.extracts.Load(), "new records are processed inline")

	require.True(t, h.Dispatch(ctx, textEvent(core.EventUpdateRecord, "rec-1", "vr-2", "first edit")))
	require.True(t, h.Dispatch(ctx, textEvent(core.EventUpdateRecord, "rec-1", "vr-3", "second edit")))
	assert.Equal(t, int32(1), f.extraction.extracts.Load(), "updates are deferred")

	previous, err := f.chunks.GetChunks(ctx, "rec-1", "vr-1")
	require.NoError(t, err)
	assert.Empty(t, previous, "replaced version stops matching immediately")

	n, err := sched.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(2), f.extraction.extracts.Load(), "two updates replay once")

	rec := f.record(t, "rec-1")
	assert.Equal(t, core.StatusCompleted, rec.IndexingStatus)
	assert.Equal(t, "vr-3", rec.VirtualRecordID)

	chunks, err := f.chunks.GetChunks(ctx, "rec-1", "vr-3")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "second edit", chunks[0].Text)
}

func TestDeferringHandler_DeleteIsInline(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	h, err := NewDeferringHandler(f.dispatcher, failingScheduler{}, nil)
	require.NoError(t, err)

	require.True(t, h.Dispatch(ctx, textEvent(core.EventNewRecord, "rec-1", "vr-1", "content")))
	require.True(t, h.Dispatch(ctx, &core.Event{Type: core.EventDeleteRecord, Payload: core.Payload{RecordID: "rec-1", VirtualRecordID: "vr-1"}}))

	chunks, err := f.chunks.GetChunks(ctx, "rec-1", "vr-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDeferringHandler_ScheduleFailure(t *testing.T) {
	f := setupFixture(t)
	h, err := NewDeferringHandler(f.dispatcher, failingScheduler{}, nil)
	require.NoError(t, err)

	assert.False(t, h.Dispatch(context.Background(), textEvent(core.EventUpdateRecord, "rec-1", "vr-2", "edit")))
	assert.False(t, h.Dispatch(context.Background(), &core.Event{Type: core.EventUpdateRecord}))
}

func TestNewDeferringHandler_Requirements(t *testing.T) {
	f := setupFixture(t)
	_, err := NewDeferringHandler(nil, failingScheduler{}, nil)
	assert.ErrorIs(t, err, ErrDispatcherRequired)
	_, err = NewDeferringHandler(f.dispatcher, nil, nil)
	assert.ErrorIs(t, err, ErrSchedulerRequired)
}
