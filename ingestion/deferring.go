package ingestion

import (
	"context"
	"log/slog"

	"github.com/poiesic/recordstream/core"
)

// DeferringHandler dispatches new and delete events inline and postpones
// updates. The embeddings of the replaced version are removed right away so
// stale content stops matching while the update waits.
type DeferringHandler struct {
	dispatcher *Dispatcher
	scheduler  UpdateScheduler
	logger     *slog.Logger
}

var _ EventDispatcher = (*DeferringHandler)(nil)

// NewDeferringHandler wraps dispatcher, scheduling updates on scheduler.
// The scheduler must replay due events through dispatcher itself, not
// through the returned handler.
func NewDeferringHandler(dispatcher *Dispatcher, scheduler UpdateScheduler, logger *slog.Logger) (*DeferringHandler, error) {
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	if scheduler == nil {
		return nil, ErrSchedulerRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeferringHandler{
		dispatcher: dispatcher,
		scheduler:  scheduler,
		logger:     logger.With("component", "deferring-handler"),
	}, nil
}

// Dispatch processes new and delete events through the dispatcher. An update
// has its previous embeddings deleted and is queued for replay; it reports
// success once queued.
func (h *DeferringHandler) Dispatch(ctx context.Context, event *core.Event) bool {
	if event == nil || event.Type != core.EventUpdateRecord {
		return h.dispatcher.Dispatch(ctx, event)
	}

	logger := loggerFrom(ctx, h.logger).With("record_id", event.Payload.RecordID)
	if err := core.ValidateEvent(event); err != nil {
		logger.Error("rejected event", "err", err)
		return false
	}
	if err := h.dispatcher.DeletePrevious(ctx, &event.Payload); err != nil {
		logger.Error("failed to delete previous embeddings", "err", err)
		return false
	}
	if err := h.scheduler.Schedule(ctx, event); err != nil {
		logger.Error("failed to defer update", "err", err)
		return false
	}
	return true
}
