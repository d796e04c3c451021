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
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidEvent indicates an Event failed validation.
	ErrInvalidEvent = errors.New("invalid record event")

	// ErrMissingRecordID indicates the payload carries no recordId.
	ErrMissingRecordID = errors.New("recordId is required")

	// ErrUnknownEventType indicates an eventType outside the supported set.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrMalformedEvent indicates a message value that is not a JSON event.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyContent indicates the chunk text is empty.
	ErrEmptyContent = errors.New("content cannot be empty")
)

// IndexingError is raised by extraction when the content itself is rejected,
// as opposed to an infrastructure failure while processing it.
type IndexingError struct {
	RecordID string
	Kind     ContentKind
	Msg      string
	Err      error
}

func (e *IndexingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("indexing %s (%s): %s: %v", e.RecordID, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("indexing %s (%s): %s", e.RecordID, e.Kind, e.Msg)
}

func (e *IndexingError) Unwrap() error {
	return e.Err
}

// NewIndexingError builds an IndexingError for the given record and content kind.
func NewIndexingError(recordID string, kind ContentKind, msg string, err error) *IndexingError {
	return &IndexingError{RecordID: recordID, Kind: kind, Msg: msg, Err: err}
}

// IsIndexingError reports whether err carries an IndexingError.
func IsIndexingError(err error) bool {
	var ie *IndexingError
	return errors.As(err, &ie)
}
