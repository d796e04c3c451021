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


package core

import (
	"fmt"
	"strings"
)

// ValidateEvent validates an Event according to domain rules.
//
// Validation rules:
//   - Type must be one of the three record event types
//   - Payload.RecordID must not be blank
//
// NOT validated:
//   - content location (a payload with none falls back to stream-by-id)
//   - mime type / extension (unsupported kinds are a terminal status, not an error)
func ValidateEvent(event *Event) error {
	if event == nil {
		return fmt.Errorf("%w: event is nil", ErrInvalidEvent)
	}

	if err := ValidateEventType(event.Type); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if strings.TrimSpace(event.Payload.RecordID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrMissingRecordID)
	}

	return nil
}

// ValidateEventType validates that an EventType has a valid value.
func ValidateEventType(t EventType) error {
	switch t {
	case EventNewRecord, EventUpdateRecord, EventDeleteRecord:
		return nil
	}
	return fmt.Errorf("%w: value %q", ErrUnknownEventType, t)
}

// ValidateChunk validates a Chunk before it is stored.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if chunk.RecordID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrMissingRecordID)
	}

	return nil
}
