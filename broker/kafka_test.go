package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKafkaClient struct {
	topics []string
	events []kafka.Event
	closed bool
}

func (f *fakeKafkaClient) SubscribeTopics(topics []string, _ kafka.RebalanceCb) error {
	f.topics = topics
	return nil
}

func (f *fakeKafkaClient) Poll(int) kafka.Event {
	if len(f.events) == 0 {
		return nil
	}
	e := f.events[0]
	f.events = f.events[1:]
	return e
}

func (f *fakeKafkaClient) Close() error {
	f.closed = true
	return nil
}

func TestKafkaConsumer_RequiresSubscribe(t *testing.T) {
	c := newKafkaConsumer(&fakeKafkaClient{}, "record-events")
	_, err := c.Poll(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotSubscribed)
}

func TestKafkaConsumer_Poll(t *testing.T) {
	topic := "record-events"
	client := &fakeKafkaClient{events: []kafka.Event{
		&kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 2, Offset: 41},
			Key:            []byte("r-1"),
			Value:          []byte(`{"eventType":"newRecord"}`),
			Headers:        []kafka.Header{{Key: "trace", Value: []byte("abc")}},
		},
		kafka.PartitionEOF{Topic: &topic, Partition: 2},
		kafka.NewError(kafka.ErrPartitionEOF, "eof", false),
		kafka.NewError(kafka.ErrTransport, "broker down", false),
		kafka.OffsetsCommitted{},
	}}
	c := newKafkaConsumer(client, topic)
	ctx := context.Background()
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, []string{topic}, client.topics)

	msg, err := c.Poll(ctx, time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, int32(2), msg.Partition)
	assert.Equal(t, int64(41), msg.Offset)
	assert.Equal(t, "record-events-2", msg.PartitionKey())
	assert.Equal(t, "abc", msg.Headers["trace"])

	_, err = c.Poll(ctx, time.Millisecond)
	assert.ErrorIs(t, err, ErrPartitionEOF)

	_, err = c.Poll(ctx, time.Millisecond)
	assert.ErrorIs(t, err, ErrPartitionEOF)

	_, err = c.Poll(ctx, time.Millisecond)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPartitionEOF))

	msg, err = c.Poll(ctx, time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, msg)

	msg, err = c.Poll(ctx, time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, msg)

	require.NoError(t, c.Close())
	assert.True(t, client.closed)
	require.NoError(t, c.Close())

	_, err = c.Poll(ctx, time.Millisecond)
	assert.ErrorIs(t, err, ErrConsumerClosed)
}
