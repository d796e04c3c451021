package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for stored chunks.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Status is a lifecycle state of a record's indexing or extraction.
type Status string

const (
	StatusNotStarted           Status = "NOT_STARTED"
	StatusInProgress           Status = "IN_PROGRESS"
	StatusCompleted            Status = "COMPLETED"
	StatusFailed               Status = "FAILED"
	StatusFileTypeNotSupported Status = "FILE_TYPE_NOT_SUPPORTED"
)

// MaxReasonLength bounds the diagnostic text persisted with a failed record.
const MaxReasonLength = 500

// Record is the durable document whose content is being indexed.
// The pipeline only ever writes the status fields, Reason, VirtualRecordID
// and the timestamps; every other field belongs to the document store.
type Record struct {
	ID               string
	OrgID            string
	VirtualRecordID  string
	RecordName       string
	Extension        string
	MimeType         string
	Version          int
	IndexingStatus   Status
	ExtractionStatus Status
	Reason           string
	CreatedAt        time.Time // When the record was first seen
	UpdatedAt        time.Time // When any status field last changed
	LastIndexedAt    time.Time // When indexing last completed
}

// NewRecord returns a record in its initial state for the given payload.
func NewRecord(p *Payload) *Record {
	return &Record{
		ID:               p.RecordID,
		OrgID:            p.OrgID,
		VirtualRecordID:  p.VirtualRecordID,
		RecordName:       p.RecordName,
		Extension:        p.Extension,
		MimeType:         p.MimeType,
		Version:          p.Version,
		IndexingStatus:   StatusNotStarted,
		ExtractionStatus: StatusNotStarted,
	}
}

// MarkInProgress resets both statuses for a fresh processing attempt.
func (r *Record) MarkInProgress() {
	r.IndexingStatus = StatusInProgress
	r.ExtractionStatus = StatusInProgress
	r.Reason = ""
}

// MarkUnsupported records the terminal outcome for content with no extractor.
func (r *Record) MarkUnsupported() {
	r.IndexingStatus = StatusFileTypeNotSupported
	r.ExtractionStatus = StatusFileTypeNotSupported
	r.Reason = ""
}

// MarkCompleted records a successful extraction and indexing pass.
func (r *Record) MarkCompleted(at time.Time) {
	r.IndexingStatus = StatusCompleted
	r.ExtractionStatus = StatusCompleted
	r.Reason = ""
	r.LastIndexedAt = at
}

// MarkFailed records a failed attempt. A completed extraction is never
// downgraded; only the indexing status reflects the new failure.
func (r *Record) MarkFailed(reason string) {
	r.IndexingStatus = StatusFailed
	if r.ExtractionStatus != StatusCompleted {
		r.ExtractionStatus = StatusFailed
	}
	r.Reason = TruncateReason(reason)
}

// TruncateReason clips a diagnostic message to MaxReasonLength runes.
func TruncateReason(reason string) string {
	runes := []rune(reason)
	if len(runes) <= MaxReasonLength {
		return reason
	}
	return string(runes[:MaxReasonLength])
}

// Chunk is one embedded slice of a record's extracted text.
type Chunk struct {
	Id              ID
	RecordID        string
	VirtualRecordID string
	OrgID           string
	Index           int
	Text            string
	Vector          []float32 // Embedding vector (populated by the indexer)
	InsertedAt      time.Time
}

// ChunkID derives the deterministic id of the chunk at index within a virtual record.
func ChunkID(virtualRecordID string, index int) ID {
	return IDFromContent(virtualRecordID + "#" + strconv.Itoa(index))
}

// SearchResult is a stored chunk matched by vector similarity.
type SearchResult struct {
	Chunk *Chunk
	Score float32
}
