package ingestion

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/poiesic/recordstream/broker"
	"github.com/poiesic/recordstream/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/poiesic/recordstream/ingestion"

// MessageHandler decodes a broker message and hands the event to a dispatcher.
type MessageHandler struct {
	dispatcher EventDispatcher
	tracer     trace.Tracer
	logger     *slog.Logger
}

var _ Handler = (*MessageHandler)(nil)

// NewMessageHandler creates a handler that dispatches through dispatcher.
func NewMessageHandler(dispatcher EventDispatcher, logger *slog.Logger) (*MessageHandler, error) {
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{
		dispatcher: dispatcher,
		tracer:     otel.Tracer(tracerName),
		logger:     logger.With("component", "handler"),
	}, nil
}

// Handle processes one message. Malformed messages are logged and dropped.
func (h *MessageHandler) Handle(ctx context.Context, msg *broker.Message) bool {
	if msg.Headers != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Headers))
	}

	taskID := uuid.NewString()
	ctx, span := h.tracer.Start(ctx, "ProcessRecordEvent", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.String("messaging.destination.name", msg.Topic),
		attribute.Int("messaging.destination.partition.id", int(msg.Partition)),
		attribute.Int64("messaging.message.offset", msg.Offset),
		attribute.Int("messaging.message.body.size", len(msg.Value)),
	))
	defer span.End()

	logger := h.logger.With("task_id", taskID, "partition", msg.PartitionKey(), "offset", msg.Offset)

	event, err := core.DecodeEvent(msg.Value)
	if err != nil {
		logger.Error("failed to decode event", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	span.SetAttributes(
		attribute.String("record.id", event.Payload.RecordID),
		attribute.String("record.event_type", string(event.Type)),
	)

	logger.Debug("processing event", "record_id", event.Payload.RecordID, "event_type", string(event.Type))
	ok := h.dispatcher.Dispatch(withLogger(ctx, logger), event)
	if !ok {
		span.SetStatus(codes.Error, "event not processed")
	}
	return ok
}
