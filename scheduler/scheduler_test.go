package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/recordstream/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []*core.Event
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event *core.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return true
}

func (d *recordingDispatcher) dispatched() []*core.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*core.Event(nil), d.events...)
}

type staticDelay struct {
	hours float64
	err   error
}

func (s *staticDelay) GetFloat64(ctx context.Context, key string) (float64, error) {
	if key != UpdateDelayKey {
		return 0, errors.New("unexpected key " + key)
	}
	return s.hours, s.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNew_Requirements(t *testing.T) {
	_, err := New(nil, &recordingDispatcher{})
	assert.ErrorIs(t, err, ErrQueueRequired)
	_, err = New(NewMemoryQueue(), nil)
	assert.ErrorIs(t, err, ErrDispatcherRequired)
	_, err = New(NewMemoryQueue(), &recordingDispatcher{}, WithDrainInterval(0))
	assert.Error(t, err)
}

func TestScheduler_UpdateDelay(t *testing.T) {
	tests := []struct {
		name   string
		source DelaySource
		want   time.Duration
	}{
		{name: "no source", source: nil, want: 2 * time.Hour},
		{name: "source hours", source: &staticDelay{hours: 0.5}, want: 30 * time.Minute},
		{name: "source error", source: &staticDelay{err: errors.New("unset")}, want: 2 * time.Hour},
		{name: "negative", source: &staticDelay{hours: -1}, want: 2 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{WithUpdateDelay(2 * time.Hour)}
			if tt.source != nil {
				opts = append(opts, WithDelaySource(tt.source))
			}
			s, err := New(NewMemoryQueue(), &recordingDispatcher{}, opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.UpdateDelay(context.Background()))
		})
	}
}

func TestScheduler_CoalescedUpdatesReplayOnce(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	dispatcher := &recordingDispatcher{}
	s, err := New(NewMemoryQueue(), dispatcher, WithDelaySource(&staticDelay{hours: 1}))
	require.NoError(t, err)
	s.now = clock.Now
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, updateEvent("r1", "v1")))
	clock.Advance(10 * time.Minute)
	require.NoError(t, s.Schedule(ctx, updateEvent("r1", "v2")))

	clock.Advance(55 * time.Minute)
	n, err := s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "first update's due time was replaced by the second's")

	clock.Advance(5 * time.Minute)
	n, err = s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events := dispatcher.dispatched()
	require.Len(t, events, 1)
	assert.Equal(t, "v2", events[0].Payload.VirtualRecordID)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

// cancellingDispatcher cancels the drain context on its first call.
type cancellingDispatcher struct {
	recordingDispatcher
	cancel context.CancelFunc
}

func (d *cancellingDispatcher) Dispatch(ctx context.Context, event *core.Event) bool {
	d.cancel()
	return d.recordingDispatcher.Dispatch(ctx, event)
}

func TestScheduler_CancelledDrainRequeuesRemainder(t *testing.T) {
	queue := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher := &cancellingDispatcher{cancel: cancel}
	s, err := New(queue, dispatcher, WithUpdateDelay(0))
	require.NoError(t, err)

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.Schedule(context.Background(), updateEvent(id, "v1")))
	}

	n, err := s.Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
	require.Len(t, dispatcher.dispatched(), 1)

	pending, err := s.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	replay := &recordingDispatcher{}
	s.dispatcher = replay
	n, err = s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	seen := []string{dispatcher.dispatched()[0].Payload.RecordID}
	for _, event := range replay.dispatched() {
		seen = append(seen, event.Payload.RecordID)
	}
	assert.ElementsMatch(t, []string{"r1", "r2", "r3"}, seen)
}

func TestScheduler_StartDrainsPeriodically(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	s, err := New(NewMemoryQueue(), dispatcher,
		WithUpdateDelay(0),
		WithDrainInterval(20*time.Millisecond),
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start is rejected")

	require.NoError(t, s.Schedule(ctx, updateEvent("r1", "v1")))

	require.Eventually(t, func() bool {
		return len(dispatcher.dispatched()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
