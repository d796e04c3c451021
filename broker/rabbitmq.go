package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/recordstream/config"
	"github.com/streadway/amqp"
)

// streamOffsetHeader carries a delivery's position in a RabbitMQ stream.
const streamOffsetHeader = "x-stream-offset"

var NewRabbitMQConsumer ConsumerCreator = func(ctx context.Context, settings *config.BrokerSettings) (Consumer, error) {
	prefetch := settings.Prefetch
	if prefetch <= 0 {
		prefetch = 50
	}
	return &rabbitMQConsumer{
		settings: settings,
		prefetch: prefetch,
		logger:   slog.Default().With("component", "rabbitmq-consumer"),
	}, nil
}

// rabbitMQConsumer reads a RabbitMQ stream queue. The queue name plays the
// role of the topic, streams have a single partition, and the stream offset
// of each delivery is its log position.
type rabbitMQConsumer struct {
	settings *config.BrokerSettings
	prefetch int
	logger   *slog.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
	lastOffset int64
	subscribed bool
	closed     bool
}

func (r *rabbitMQConsumer) Subscribe(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrConsumerClosed
	}
	if err := r.connect("first"); err != nil {
		return err
	}
	r.subscribed = true
	return nil
}

// connect dials and starts consuming from startOffset; callers hold r.mu.
func (r *rabbitMQConsumer) connect(startOffset any) error {
	conn, err := amqp.Dial(r.settings.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	// Set up a channel to handle connection close notifications
	notifyClose := make(chan *amqp.Error, 1)
	conn.NotifyClose(notifyClose)
	go func() {
		for err := range notifyClose {
			r.logger.Warn("RabbitMQ connection closed", "err", err)
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	// QueueDeclare is idempotent when the stream already exists
	_, err = ch.QueueDeclare(
		r.settings.Topic, // name
		true,             // durable
		false,            // auto-deleted
		false,            // exclusive
		false,            // no-wait
		amqp.Table{"x-queue-type": "stream"},
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare stream %s: %w", r.settings.Topic, err)
	}

	deliveries, err := ch.Consume(
		r.settings.Topic,
		r.settings.GroupID, // consumer tag
		false,              // stream queues require manual ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		amqp.Table{streamOffsetHeader: startOffset},
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to consume %s: %w", r.settings.Topic, err)
	}

	r.conn = conn
	r.channel = ch
	r.deliveries = deliveries
	return nil
}

func (r *rabbitMQConsumer) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrConsumerClosed
	}
	if !r.subscribed {
		r.mu.Unlock()
		return nil, ErrNotSubscribed
	}
	deliveries := r.deliveries
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case d, ok := <-deliveries:
		if !ok {
			return nil, r.reconnect()
		}
		// Acknowledge on receipt; this mirrors auto-commit
		if err := d.Ack(false); err != nil {
			r.logger.Warn("failed to ack delivery", "err", err)
		}
		msg := &Message{
			Topic:   r.settings.Topic,
			Offset:  streamOffset(d.Headers),
			Key:     []byte(d.MessageId),
			Value:   d.Body,
			Headers: make(map[string]string, len(d.Headers)),
		}
		for k, v := range d.Headers {
			msg.Headers[k] = fmt.Sprint(v)
		}
		r.mu.Lock()
		r.lastOffset = msg.Offset
		r.mu.Unlock()
		return msg, nil
	}
}

// reconnect resumes after the last seen offset once the delivery channel closes.
func (r *rabbitMQConsumer) reconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrConsumerClosed
	}
	if r.conn != nil {
		r.conn.Close()
	}
	if err := r.connect(r.lastOffset + 1); err != nil {
		return err
	}
	return fmt.Errorf("rabbitmq delivery channel closed, resumed at offset %d", r.lastOffset+1)
}

func streamOffset(headers amqp.Table) int64 {
	switch v := headers[streamOffsetHeader].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return -1
	}
}

func (r *rabbitMQConsumer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
