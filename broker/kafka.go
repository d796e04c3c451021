package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/poiesic/recordstream/config"
)

// kafkaClient is the subset of *kafka.Consumer used here.
type kafkaClient interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	Poll(timeoutMs int) kafka.Event
	Close() error
}

var NewKafkaConsumer ConsumerCreator = func(ctx context.Context, settings *config.BrokerSettings) (Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":    settings.BootstrapServers,
		"group.id":             settings.GroupID,
		"auto.offset.reset":    "earliest",
		"enable.auto.commit":   true,
		"enable.partition.eof": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newKafkaConsumer(c, settings.Topic), nil
}

type kafkaConsumer struct {
	client     kafkaClient
	topic      string
	mu         sync.Mutex
	subscribed bool
	closed     bool
}

func newKafkaConsumer(client kafkaClient, topic string) *kafkaConsumer {
	return &kafkaConsumer{client: client, topic: topic}
}

func (k *kafkaConsumer) Subscribe(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrConsumerClosed
	}
	if err := k.client.SubscribeTopics([]string{k.topic}, nil); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", k.topic, err)
	}
	k.subscribed = true
	return nil
}

func (k *kafkaConsumer) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	k.mu.Lock()
	closed, subscribed := k.closed, k.subscribed
	k.mu.Unlock()
	if closed {
		return nil, ErrConsumerClosed
	}
	if !subscribed {
		return nil, ErrNotSubscribed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch e := k.client.Poll(int(timeout.Milliseconds())).(type) {
	case nil:
		return nil, nil
	case *kafka.Message:
		return fromKafkaMessage(e)
	case kafka.PartitionEOF:
		return nil, ErrPartitionEOF
	case kafka.Error:
		if e.Code() == kafka.ErrPartitionEOF {
			return nil, ErrPartitionEOF
		}
		return nil, e
	default:
		// Rebalance, stats and offset-commit notifications carry no record.
		return nil, nil
	}
}

func fromKafkaMessage(m *kafka.Message) (*Message, error) {
	if err := m.TopicPartition.Error; err != nil {
		var kerr kafka.Error
		if errors.As(err, &kerr) && kerr.Code() == kafka.ErrPartitionEOF {
			return nil, ErrPartitionEOF
		}
		return nil, err
	}

	msg := &Message{
		Partition: m.TopicPartition.Partition,
		Offset:    int64(m.TopicPartition.Offset),
		Key:       m.Key,
		Value:     m.Value,
	}
	if m.TopicPartition.Topic != nil {
		msg.Topic = *m.TopicPartition.Topic
	}
	if len(m.Headers) > 0 {
		msg.Headers = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg, nil
}

func (k *kafkaConsumer) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.client.Close()
}
