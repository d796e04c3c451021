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
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/recordstream/core"
	"github.com/poiesic/recordstream/storage"
)

// Dispatcher routes record events and maintains record statuses.
type Dispatcher struct {
	records    storage.RecordRepository
	resolver   PayloadResolver
	extraction ExtractionLayer
	logger     *slog.Logger
}

var _ EventDispatcher = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger used when no task logger is in context.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(records storage.RecordRepository, resolver PayloadResolver, extraction ExtractionLayer, opts ...DispatcherOption) (*Dispatcher, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if resolver == nil {
		return nil, ErrResolverRequired
	}
	if extraction == nil {
		return nil, ErrExtractionRequired
	}
	d := &Dispatcher{
		records:    records,
		resolver:   resolver,
		extraction: extraction,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d, nil
}

// Dispatch processes event and reports whether it succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, event *core.Event) bool {
	logger := loggerFrom(ctx, d.logger)
	if err := core.ValidateEvent(event); err != nil {
		logger.Error("rejected event", "err", err)
		return false
	}
	logger = logger.With("record_id", event.Payload.RecordID, "event_type", string(event.Type))

	switch event.Type {
	case core.EventDeleteRecord:
		if err := d.extraction.DeleteEmbeddings(ctx, event.Payload.RecordID, event.Payload.VirtualRecordID); err != nil {
			logger.Error("failed to delete embeddings", "err", err)
			return false
		}
		logger.Info("deleted record embeddings")
		return true

	case core.EventUpdateRecord:
		if err := d.DeletePrevious(ctx, &event.Payload); err != nil {
			logger.Error("failed to delete previous embeddings", "err", err)
			return false
		}
		return d.index(ctx, logger, event.Payload, false)

	case core.EventNewRecord:
		return d.index(ctx, logger, event.Payload, true)
	}

	logger.Error("unknown event type")
	return false
}

// DeletePrevious removes the chunks of the version of the record that was
// last seen, which is the version an update replaces.
func (d *Dispatcher) DeletePrevious(ctx context.Context, p *core.Payload) error {
	previous := p.VirtualRecordID
	record, err := d.records.GetRecord(ctx, p.RecordID)
	switch {
	case err == nil && record.VirtualRecordID != "":
		previous = record.VirtualRecordID
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return err
	}
	return d.extraction.DeleteEmbeddings(ctx, p.RecordID, previous)
}

// index runs the new-record path. skipCompleted enables the guard that
// turns a redelivered event for an already indexed version into a no-op.
func (d *Dispatcher) index(ctx context.Context, logger *slog.Logger, payload core.Payload, skipCompleted bool) bool {
	record, err := d.records.GetRecord(ctx, payload.RecordID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		record = core.NewRecord(&payload)
	case err != nil:
		logger.Error("failed to load record", "err", err)
		return false
	}

	if skipCompleted && record.IndexingStatus == core.StatusCompleted && record.VirtualRecordID == payload.VirtualRecordID {
		logger.Info("record already indexed", "virtual_record_id", payload.VirtualRecordID)
		return true
	}

	record.OrgID = payload.OrgID
	record.VirtualRecordID = payload.VirtualRecordID
	record.RecordName = payload.RecordName
	record.Extension = payload.Extension
	record.MimeType = payload.MimeType
	record.Version = payload.Version

	kind := payload.Kind()
	if !kind.Supported() || !d.extraction.Supports(kind) {
		record.MarkUnsupported()
		if err := d.records.UpsertRecords(ctx, record); err != nil {
			logger.Error("failed to persist unsupported status", "err", err)
			return false
		}
		logger.Info("file type not supported", "mime_type", payload.MimeType, "extension", payload.Extension)
		return true
	}

	previous := record.ExtractionStatus
	record.MarkInProgress()
	if err := d.records.UpsertRecords(ctx, record); err != nil {
		logger.Error("failed to persist in-progress status", "err", err)
		return false
	}

	if err := d.extract(ctx, &payload); err != nil {
		d.fail(ctx, logger, record, kind, previous, err)
		return false
	}
	logger.Info("record processed", "kind", kind.String())
	return true
}

// extract resolves the content and runs the kind's extractor. A panic is
// returned as an error so the record is marked FAILED.
func (d *Dispatcher) extract(ctx context.Context, payload *core.Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extraction panicked: %v", r)
		}
	}()

	if err := d.resolver.Resolve(ctx, payload); err != nil {
		return fmt.Errorf("failed to resolve payload: %w", err)
	}
	return d.extraction.Extract(ctx, payload.ExtractionInput())
}

// fail persists a FAILED attempt. previous is the extraction status the
// record had before the attempt started; a COMPLETED extraction from an
// earlier attempt survives the failure.
func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, record *core.Record, kind core.ContentKind, previous core.Status, cause error) {
	if core.IsIndexingError(cause) {
		logger.Warn("content could not be indexed", "kind", kind.String(), "err", cause)
	} else {
		logger.Error("record processing failed", "kind", kind.String(), "err", cause)
	}

	// The failure is recorded even when ctx was cancelled mid-task.
	ctx = context.WithoutCancel(ctx)

	// Extraction may have completed before a later step failed.
	if current, err := d.records.GetRecord(ctx, record.ID); err == nil {
		record.ExtractionStatus = current.ExtractionStatus
	}
	if previous == core.StatusCompleted {
		record.ExtractionStatus = core.StatusCompleted
	}
	record.MarkFailed(cause.Error())
	if err := d.records.UpsertRecords(ctx, record); err != nil {
		logger.Error("failed to persist failed status", "err", err)
	}
}
