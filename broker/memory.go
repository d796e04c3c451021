package broker

import (
	"context"
	"sync"
	"time"
)

// MemoryConsumer is an in-process Consumer fed through Push. It is used by
// tests and by local replay of captured messages.
type MemoryConsumer struct {
	mu         sync.Mutex
	queue      []pollResult
	notify     chan struct{}
	subscribed bool
	closed     bool
	polls      int

	// SubscribeErr, when set, is returned by Subscribe.
	SubscribeErr error
}

type pollResult struct {
	msg *Message
	err error
}

// NewMemoryConsumer creates an empty MemoryConsumer.
func NewMemoryConsumer() *MemoryConsumer {
	return &MemoryConsumer{notify: make(chan struct{}, 1)}
}

// Push enqueues messages to be returned by Poll in order.
func (m *MemoryConsumer) Push(msgs ...*Message) {
	m.mu.Lock()
	for _, msg := range msgs {
		m.queue = append(m.queue, pollResult{msg: msg})
	}
	m.mu.Unlock()
	m.wake()
}

// PushError enqueues a transport error to be returned by Poll.
func (m *MemoryConsumer) PushError(err error) {
	m.mu.Lock()
	m.queue = append(m.queue, pollResult{err: err})
	m.mu.Unlock()
	m.wake()
}

func (m *MemoryConsumer) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued results not yet polled.
func (m *MemoryConsumer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Polls returns how many times Poll was called.
func (m *MemoryConsumer) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

// Closed reports whether Close was called.
func (m *MemoryConsumer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Subscribe fails with SubscribeErr when set.
func (m *MemoryConsumer) Subscribe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return m.SubscribeErr
	}
	m.subscribed = true
	return nil
}

// Poll returns the next pushed result, or nil once timeout passes with
// nothing queued.
func (m *MemoryConsumer) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	m.mu.Lock()
	m.polls++
	if m.closed {
		m.mu.Unlock()
		return nil, ErrConsumerClosed
	}
	if !m.subscribed {
		m.mu.Unlock()
		return nil, ErrNotSubscribed
	}
	if res, ok := m.pop(); ok {
		m.mu.Unlock()
		return res.msg, res.err
	}
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case <-m.notify:
		m.mu.Lock()
		defer m.mu.Unlock()
		if res, ok := m.pop(); ok {
			return res.msg, res.err
		}
		return nil, nil
	}
}

// pop removes the head of the queue; callers hold m.mu.
func (m *MemoryConsumer) pop() (pollResult, bool) {
	if len(m.queue) == 0 {
		return pollResult{}, false
	}
	res := m.queue[0]
	m.queue = m.queue[1:]
	return res, true
}

// Close marks the consumer closed.
func (m *MemoryConsumer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
