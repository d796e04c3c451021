package admission

import (
	"container/heap"
	"sync"
)

// DefaultMaxOffsetsPerKey bounds how many offsets are remembered per partition.
const DefaultMaxOffsetsPerKey = 100_000

// DedupTracker remembers which broker offsets were already admitted, per
// partition key, for the lifetime of the process. When a partition exceeds
// its bound the lowest offsets are forgotten first.
//
// It is an optimization only: a restart forgets everything, and redelivered
// work is then caught by the record's COMPLETED status.
type DedupTracker struct {
	mu         sync.Mutex
	partitions map[string]*offsetSet
	maxPerKey  int
}

// NewDedupTracker creates a tracker keeping at most maxPerKey offsets per
// partition key. Non-positive values use DefaultMaxOffsetsPerKey.
func NewDedupTracker(maxPerKey int) *DedupTracker {
	if maxPerKey <= 0 {
		maxPerKey = DefaultMaxOffsetsPerKey
	}
	return &DedupTracker{
		partitions: make(map[string]*offsetSet),
		maxPerKey:  maxPerKey,
	}
}

// IsProcessed reports whether offset was already marked for key.
func (d *DedupTracker) IsProcessed(key string, offset int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.partitions[key]
	if !ok {
		return false
	}
	_, seen := set.members[offset]
	return seen
}

// MarkProcessed records offset for key, evicting the lowest offsets of key
// once the bound is exceeded.
func (d *DedupTracker) MarkProcessed(key string, offset int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.partitions[key]
	if !ok {
		set = &offsetSet{members: make(map[int64]struct{})}
		d.partitions[key] = set
	}
	if _, seen := set.members[offset]; seen {
		return
	}
	set.members[offset] = struct{}{}
	heap.Push(&set.order, offset)

	for len(set.members) > d.maxPerKey {
		oldest := heap.Pop(&set.order).(int64)
		delete(set.members, oldest)
	}
}

// Len returns the number of offsets remembered for key.
func (d *DedupTracker) Len(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if set, ok := d.partitions[key]; ok {
		return len(set.members)
	}
	return 0
}

// Reset forgets every remembered offset.
func (d *DedupTracker) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.partitions = make(map[string]*offsetSet)
}

type offsetSet struct {
	members map[int64]struct{}
	order   offsetHeap
}

// offsetHeap is a min-heap of offsets.
type offsetHeap []int64

func (h offsetHeap) Len() int           { return len(h) }
func (h offsetHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h offsetHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *offsetHeap) Push(x any) {
	*h = append(*h, x.(int64))
}

func (h *offsetHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
