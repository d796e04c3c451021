package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/recordstream/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryConsumer_Order(t *testing.T) {
	c := NewMemoryConsumer()
	ctx := context.Background()
	require.NoError(t, c.Subscribe(ctx))

	boom := errors.New("boom")
	c.Push(&Message{Topic: "t", Offset: 1}, &Message{Topic: "t", Offset: 2})
	c.PushError(boom)

	msg, err := c.Poll(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Offset)

	msg, err = c.Poll(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.Offset)

	_, err = c.Poll(ctx, time.Millisecond)
	assert.ErrorIs(t, err, boom)

	msg, err = c.Poll(ctx, time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 4, c.Polls())
}

func TestMemoryConsumer_WakesOnPush(t *testing.T) {
	c := NewMemoryConsumer()
	ctx := context.Background()
	require.NoError(t, c.Subscribe(ctx))

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Push(&Message{Topic: "t", Offset: 9})
	}()

	msg, err := c.Poll(ctx, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, int64(9), msg.Offset)
}

func TestMemoryConsumer_ContextCancel(t *testing.T) {
	c := NewMemoryConsumer()
	require.NoError(t, c.Subscribe(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Poll(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryConsumer_Close(t *testing.T) {
	c := NewMemoryConsumer()
	require.NoError(t, c.Subscribe(context.Background()))
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())

	_, err := c.Poll(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, ErrConsumerClosed)
}

func TestNewConsumer(t *testing.T) {
	origKafka, origRabbit := NewKafkaConsumer, NewRabbitMQConsumer
	defer func() {
		NewKafkaConsumer, NewRabbitMQConsumer = origKafka, origRabbit
	}()

	var built string
	NewKafkaConsumer = func(ctx context.Context, s *config.BrokerSettings) (Consumer, error) {
		built = "kafka"
		return NewMemoryConsumer(), nil
	}
	NewRabbitMQConsumer = func(ctx context.Context, s *config.BrokerSettings) (Consumer, error) {
		built = "rabbitmq"
		return NewMemoryConsumer(), nil
	}

	tests := []struct {
		name    string
		typ     string
		want    string
		wantErr bool
	}{
		{name: "kafka", typ: "kafka", want: "kafka"},
		{name: "rabbitmq", typ: "rabbitmq", want: "rabbitmq"},
		{name: "unknown", typ: "nats", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			built = ""
			c, err := NewConsumer(context.Background(), &config.BrokerSettings{Type: tt.typ})
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, built)
		})
	}
}

func TestStreamOffset(t *testing.T) {
	assert.Equal(t, int64(7), streamOffset(map[string]interface{}{streamOffsetHeader: int64(7)}))
	assert.Equal(t, int64(3), streamOffset(map[string]interface{}{streamOffsetHeader: int32(3)}))
	assert.Equal(t, int64(-1), streamOffset(map[string]interface{}{}))
}
