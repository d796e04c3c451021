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

package ingestion

import (
	"context"

	"github.com/poiesic/recordstream/broker"
	"github.com/poiesic/recordstream/core"
)

// PayloadResolver fills Payload.Buffer with the record's content.
type PayloadResolver interface {
	Resolve(ctx context.Context, p *core.Payload) error
}

// ExtractionLayer extracts and indexes resolved content, and removes the
// indexed chunks of a record.
type ExtractionLayer interface {
	// Supports reports whether kind has an extractor.
	Supports(kind core.ContentKind) bool

	// Extract indexes the content and marks the record COMPLETED.
	Extract(ctx context.Context, in core.ExtractionInput) error

	// DeleteEmbeddings removes a record's chunks. An empty
	// virtualRecordID removes every version.
	DeleteEmbeddings(ctx context.Context, recordID, virtualRecordID string) error
}

// EventDispatcher routes a decoded event to its processing path and
// reports whether it was processed successfully.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *core.Event) bool
}

// Handler processes one broker message. The result is informational;
// offsets are committed regardless.
type Handler interface {
	Handle(ctx context.Context, msg *broker.Message) bool
}

// UpdateScheduler defers an update event.
type UpdateScheduler interface {
	Schedule(ctx context.Context, event *core.Event) error
}
