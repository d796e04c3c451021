// Package broker provides the message-log consumers the ingestion loop
// polls: Kafka through confluent-kafka-go, RabbitMQ streams through
// streadway/amqp, and an in-memory consumer for tests.
package broker
