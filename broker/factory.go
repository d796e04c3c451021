package broker

import (
	"context"
	"fmt"

	"github.com/poiesic/recordstream/config"
)

// ConsumerCreator builds a Consumer from broker settings.
type ConsumerCreator func(ctx context.Context, settings *config.BrokerSettings) (Consumer, error)

// NewConsumer creates a consumer for the configured broker type.
func NewConsumer(ctx context.Context, settings *config.BrokerSettings) (Consumer, error) {
	switch settings.Type {
	case "kafka":
		return NewKafkaConsumer(ctx, settings)
	case "rabbitmq":
		return NewRabbitMQConsumer(ctx, settings)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", settings.Type)
	}
}
