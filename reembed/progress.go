package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/recordstream/core"
)

// Summary describes a finished re-embedding pass.
type Summary struct {
	Chunks         int
	Records        int
	VirtualRecords int
	Elapsed        time.Duration
}

// ChunksPerSecond returns the average throughput of the pass.
func (s Summary) ChunksPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Chunks) / s.Elapsed.Seconds()
}

// ProgressTracker counts re-embedded chunks and the records and record
// versions they belong to. A progress line is written every reportInterval
// chunks.
type ProgressTracker struct {
	mu             sync.Mutex
	writer         io.Writer
	total          int
	reportInterval int

	started      time.Time
	chunks       int
	lastReported int
	records      map[string]struct{}
	versions     map[string]struct{}
}

// NewProgressTracker creates a tracker for total chunks.
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = time.Now()
	p.chunks = 0
	p.lastReported = 0
	p.records = make(map[string]struct{})
	p.versions = make(map[string]struct{})
}

// Observe records a batch of chunks that has been re-embedded.
func (p *ProgressTracker) Observe(batch []*core.Chunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return
	}

	for _, chunk := range batch {
		p.records[chunk.RecordID] = struct{}{}
		p.versions[chunk.RecordID+"/"+chunk.VirtualRecordID] = struct{}{}
	}
	p.chunks = min(p.chunks+len(batch), p.total)

	if p.chunks-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.chunks
	}
}

// Finish writes the final progress line and returns the pass summary.
func (p *ProgressTracker) Finish() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return Summary{}
	}

	p.report()
	fmt.Fprintln(p.writer)
	return p.summary()
}

// Summary returns the counts observed so far.
func (p *ProgressTracker) Summary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return Summary{}
	}
	return p.summary()
}

func (p *ProgressTracker) summary() Summary {
	return Summary{
		Chunks:         p.chunks,
		Records:        len(p.records),
		VirtualRecords: len(p.versions),
		Elapsed:        time.Since(p.started),
	}
}

func (p *ProgressTracker) report() {
	s := p.summary()
	percentage := 0.0
	if p.total > 0 {
		percentage = float64(s.Chunks) / float64(p.total) * 100
	}
	fmt.Fprintf(p.writer, "\rProgress: %d/%d chunks (%.1f%%), %d records, %d versions - %.1f chunks/s",
		s.Chunks, p.total, percentage, s.Records, s.VirtualRecords, s.ChunksPerSecond())
}
