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

package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPartitionEOF is returned by Poll when the consumer reached the end
	// of a partition. It is informational, not a failure.
	ErrPartitionEOF = errors.New("end of partition")

	// ErrConsumerClosed is returned by Poll after Close.
	ErrConsumerClosed = errors.New("consumer closed")

	// ErrNotSubscribed is returned by Poll before Subscribe.
	ErrNotSubscribed = errors.New("consumer not subscribed")
)

// Message is one record taken off the broker log.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
}

// PartitionKey identifies the log the message belongs to.
func (m *Message) PartitionKey() string {
	return fmt.Sprintf("%s-%d", m.Topic, m.Partition)
}

// Consumer is the poll primitive the ingestion loop is built on.
// Offsets are committed automatically, so delivery is at-least-once.
type Consumer interface {
	// Subscribe joins the consumer group for the configured topic.
	Subscribe(ctx context.Context) error

	// Poll waits up to timeout for the next message. It returns (nil, nil)
	// when nothing arrived, ErrPartitionEOF at the end of a partition, and
	// any other error for transport failures.
	Poll(ctx context.Context, timeout time.Duration) (*Message, error)

	// Close leaves the group and releases the connection.
	Close() error
}
