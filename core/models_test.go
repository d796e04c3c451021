package core

import (
	"strings"
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)
			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestChunkID_DistinctPerIndex(t *testing.T) {
	if ChunkID("vr-1", 0) == ChunkID("vr-1", 1) {
		t.Errorf("ChunkID() produced same ID for different indexes")
	}
	if ChunkID("vr-1", 0) == ChunkID("vr-2", 0) {
		t.Errorf("ChunkID() produced same ID for different virtual records")
	}
}

func TestRecord_MarkFailed(t *testing.T) {
	tests := []struct {
		name           string
		extraction     Status
		wantExtraction Status
	}{
		{name: "in progress becomes failed", extraction: StatusInProgress, wantExtraction: StatusFailed},
		{name: "not started becomes failed", extraction: StatusNotStarted, wantExtraction: StatusFailed},
		{name: "completed extraction is kept", extraction: StatusCompleted, wantExtraction: StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Record{IndexingStatus: StatusInProgress, ExtractionStatus: tt.extraction}
			r.MarkFailed("boom")

			if r.IndexingStatus != StatusFailed {
				t.Errorf("IndexingStatus = %v, want %v", r.IndexingStatus, StatusFailed)
			}
			if r.ExtractionStatus != tt.wantExtraction {
				t.Errorf("ExtractionStatus = %v, want %v", r.ExtractionStatus, tt.wantExtraction)
			}
			if r.Reason != "boom" {
				t.Errorf("Reason = %q, want %q", r.Reason, "boom")
			}
		})
	}
}

func TestRecord_Transitions(t *testing.T) {
	r := NewRecord(&Payload{RecordID: "r1", VirtualRecordID: "vr1"})
	if r.IndexingStatus != StatusNotStarted || r.ExtractionStatus != StatusNotStarted {
		t.Fatalf("new record statuses = %v/%v, want NOT_STARTED", r.IndexingStatus, r.ExtractionStatus)
	}

	r.MarkInProgress()
	if r.IndexingStatus != StatusInProgress || r.ExtractionStatus != StatusInProgress {
		t.Errorf("statuses = %v/%v, want IN_PROGRESS", r.IndexingStatus, r.ExtractionStatus)
	}

	now := time.Now()
	r.MarkCompleted(now)
	if r.IndexingStatus != StatusCompleted || r.ExtractionStatus != StatusCompleted {
		t.Errorf("statuses = %v/%v, want COMPLETED", r.IndexingStatus, r.ExtractionStatus)
	}
	if !r.LastIndexedAt.Equal(now) {
		t.Errorf("LastIndexedAt = %v, want %v", r.LastIndexedAt, now)
	}

	r.MarkUnsupported()
	if r.IndexingStatus != StatusFileTypeNotSupported || r.ExtractionStatus != StatusFileTypeNotSupported {
		t.Errorf("statuses = %v/%v, want FILE_TYPE_NOT_SUPPORTED", r.IndexingStatus, r.ExtractionStatus)
	}
}

func TestTruncateReason(t *testing.T) {
	short := "short reason"
	if got := TruncateReason(short); got != short {
		t.Errorf("TruncateReason() = %q, want %q", got, short)
	}

	long := strings.Repeat("é", MaxReasonLength+20)
	got := TruncateReason(long)
	if n := len([]rune(got)); n != MaxReasonLength {
		t.Errorf("TruncateReason() length = %d runes, want %d", n, MaxReasonLength)
	}
}
