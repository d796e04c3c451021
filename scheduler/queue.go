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

package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/poiesic/recordstream/core"
)

var (
	ErrNilEvent           = errors.New("cannot schedule a nil event")
	ErrQueueClosed        = errors.New("delay queue closed")
	ErrQueueRequired      = errors.New("delay queue required")
	ErrDispatcherRequired = errors.New("dispatcher required")
)

// Entry is a queued event and the time it becomes due.
type Entry struct {
	Event *core.Event
	Due   time.Time
}

// DelayQueue holds events until they are due. Entries are keyed by record
// id: scheduling a record that is already queued replaces its event and due
// time.
type DelayQueue interface {
	Schedule(ctx context.Context, event *core.Event, due time.Time) error

	// PopDue removes and returns every entry due at or before now, in due order.
	PopDue(ctx context.Context, now time.Time) ([]Entry, error)

	// Requeue puts popped entries back with their original due time. An
	// entry whose record was scheduled again since the pop is dropped in
	// favour of the newer schedule.
	Requeue(ctx context.Context, entries []Entry) error

	Len(ctx context.Context) (int, error)
	Close() error
}

type memoryEntry struct {
	recordID string
	event    *core.Event
	due      time.Time
	index    int
}

type entryHeap []*memoryEntry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*memoryEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// MemoryQueue is a process-local DelayQueue. Its contents do not survive
// a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	order   entryHeap
	closed  bool
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[string]*memoryEntry)}
}

// Schedule queues event under its record id, replacing any queued event
// for the same record.
func (q *MemoryQueue) Schedule(ctx context.Context, event *core.Event, due time.Time) error {
	if event == nil {
		return ErrNilEvent
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	id := event.Payload.RecordID
	if e, ok := q.entries[id]; ok {
		e.event = event
		e.due = due
		heap.Fix(&q.order, e.index)
		return nil
	}
	e := &memoryEntry{recordID: id, event: event, due: due}
	q.entries[id] = e
	heap.Push(&q.order, e)
	return nil
}

// PopDue removes and returns the entries due at or before now.
func (q *MemoryQueue) PopDue(ctx context.Context, now time.Time) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	var due []Entry
	for q.order.Len() > 0 && !q.order[0].due.After(now) {
		e := heap.Pop(&q.order).(*memoryEntry)
		delete(q.entries, e.recordID)
		due = append(due, Entry{Event: e.event, Due: e.due})
	}
	return due, nil
}

// Requeue restores entries whose record is not queued.
func (q *MemoryQueue) Requeue(ctx context.Context, entries []Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	for _, entry := range entries {
		if entry.Event == nil {
			continue
		}
		id := entry.Event.Payload.RecordID
		if _, ok := q.entries[id]; ok {
			continue
		}
		e := &memoryEntry{recordID: id, event: entry.Event, due: entry.Due}
		q.entries[id] = e
		heap.Push(&q.order, e)
	}
	return nil
}

// Len returns the number of queued records.
func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

// Close rejects further use of the queue. Queued events are discarded.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
