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
	"sync/atomic"
	"time"

	"github.com/poiesic/recordstream/admission"
	"github.com/poiesic/recordstream/broker"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollTimeout  = 100 * time.Millisecond
	DefaultIdleDelay    = 10 * time.Millisecond
	DefaultErrorBackoff = time.Second
	DefaultRateLimit    = 10
	DefaultConcurrency  = 5
)

// Consumer is the ingestion loop. It polls the broker, admits each message
// through the dedup tracker, the rate limiter and the concurrency gate, and
// runs the handler for it on its own goroutine.
type Consumer struct {
	source  broker.Consumer
	handler Handler
	limiter *admission.RateLimiter
	gate    *admission.ConcurrencyGate
	dedup   *admission.DedupTracker

	pollTimeout  time.Duration
	idleDelay    time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger

	running  atomic.Bool
	stopping atomic.Bool
	stats    Stats
}

// Stats counts what the loop has done with polled messages.
type Stats struct {
	Admitted   atomic.Int64
	Duplicates atomic.Int64
	Failed     atomic.Int64
	Panicked   atomic.Int64
}

// Option configures a Consumer.
type Option func(*Consumer) error

// WithRateLimit sets the number of messages admitted per second.
func WithRateLimit(perSecond int) Option {
	return func(c *Consumer) error {
		limiter, err := admission.NewRateLimiter(perSecond)
		if err != nil {
			return err
		}
		c.limiter = limiter
		return nil
	}
}

// WithMaxConcurrentTasks sets how many messages may be processed at once.
func WithMaxConcurrentTasks(n int) Option {
	return func(c *Consumer) error {
		gate, err := admission.NewConcurrencyGate(n)
		if err != nil {
			return err
		}
		c.gate = gate
		return nil
	}
}

// WithDedupLimit bounds how many processed offsets are remembered per partition.
func WithDedupLimit(n int) Option {
	return func(c *Consumer) error {
		c.dedup = admission.NewDedupTracker(n)
		return nil
	}
}

// WithPollTimeout sets how long a single poll waits for a message.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Consumer) error {
		if d <= 0 {
			return fmt.Errorf("poll timeout must be positive, got %s", d)
		}
		c.pollTimeout = d
		return nil
	}
}

// WithErrorBackoff sets the pause after a failed poll.
func WithErrorBackoff(d time.Duration) Option {
	return func(c *Consumer) error {
		c.errorBackoff = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewConsumer creates an ingestion loop over source.
func NewConsumer(source broker.Consumer, handler Handler, opts ...Option) (*Consumer, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	c := &Consumer{
		source:       source,
		handler:      handler,
		pollTimeout:  DefaultPollTimeout,
		idleDelay:    DefaultIdleDelay,
		errorBackoff: DefaultErrorBackoff,
		logger:       slog.Default(),
	}
	defaults := []Option{
		WithRateLimit(DefaultRateLimit),
		WithMaxConcurrentTasks(DefaultConcurrency),
		WithDedupLimit(admission.DefaultMaxOffsetsPerKey),
	}
	for _, opt := range append(defaults, opts...) {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "consumer")
	return c, nil
}

// Start subscribes and runs the loop until Stop is called or ctx ends. It
// returns after every spawned task has finished and the broker consumer is
// closed. Only a subscription failure is returned as an error.
//
// Stop lets in-flight tasks run to completion. Cancelling ctx also cancels
// them. A Stop that arrives before Start makes Start close the broker
// consumer and return without polling.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		c.stopping.Store(false)
		c.running.Store(false)
	}()

	if c.stopping.Load() {
		c.logger.Info("stop requested before start")
		if err := c.source.Close(); err != nil {
			c.logger.Warn("failed to close broker consumer", "err", err)
		}
		return nil
	}

	if err := c.source.Subscribe(ctx); err != nil {
		c.source.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.logger.Info("consumer started", "rate_limit", c.limiter.Rate(), "max_concurrent_tasks", c.gate.Capacity())

	var tasks errgroup.Group
	c.loop(ctx, &tasks)

	c.logger.Info("waiting for in-flight tasks", "in_flight", c.gate.InFlight())
	tasks.Wait()

	if err := c.source.Close(); err != nil {
		c.logger.Warn("failed to close broker consumer", "err", err)
	}
	c.logger.Info("consumer stopped")
	return nil
}

// Stop ends the loop after the current poll. It may be called before
// Start.
func (c *Consumer) Stop() {
	c.stopping.Store(true)
}

// Running reports whether the loop is active.
func (c *Consumer) Running() bool {
	return c.running.Load()
}

// Stats returns the loop counters.
func (c *Consumer) Stats() *Stats {
	return &c.stats
}

// InFlight returns the number of tasks currently running.
func (c *Consumer) InFlight() int {
	return c.gate.InFlight()
}

func (c *Consumer) loop(ctx context.Context, tasks *errgroup.Group) {
	for !c.stopping.Load() && ctx.Err() == nil {
		msg, err := c.source.Poll(ctx, c.pollTimeout)
		switch {
		case errors.Is(err, broker.ErrPartitionEOF):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("poll failed", "err", err)
			sleep(ctx, c.errorBackoff)
			continue
		case msg == nil:
			sleep(ctx, c.idleDelay)
			continue
		}

		if !c.admit(ctx, tasks, msg) {
			return
		}
	}
}

// admit runs the admission steps for msg and spawns its task. It returns
// false when ctx ended while waiting.
func (c *Consumer) admit(ctx context.Context, tasks *errgroup.Group, msg *broker.Message) bool {
	key := msg.PartitionKey()
	if c.dedup.IsProcessed(key, msg.Offset) {
		c.stats.Duplicates.Add(1)
		c.logger.Debug("skipping processed offset", "partition", key, "offset", msg.Offset)
		return true
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return false
	}
	if err := c.gate.Acquire(ctx); err != nil {
		return false
	}
	c.dedup.MarkProcessed(key, msg.Offset)
	c.stats.Admitted.Add(1)

	tasks.Go(func() error {
		defer c.gate.Release()
		defer func() {
			if r := recover(); r != nil {
				c.stats.Panicked.Add(1)
				c.logger.Error("task panicked", "partition", key, "offset", msg.Offset, "panic", r)
			}
		}()
		if !c.handler.Handle(ctx, msg) {
			c.stats.Failed.Add(1)
		}
		return nil
	})
	return true
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
