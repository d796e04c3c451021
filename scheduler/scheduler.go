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

// Package scheduler defers record update events so that a burst of edits
// to one record is indexed once, after the record has settled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/poiesic/recordstream/core"
)

const (
	// UpdateDelayKey is the configuration key holding the update delay in hours.
	UpdateDelayKey = "scheduler.update_delay_hours"

	DefaultUpdateDelay   = time.Hour
	DefaultDrainInterval = 30 * time.Second
)

// Dispatcher processes a due event.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *core.Event) bool
}

// DelaySource provides the update delay at schedule time, so a changed
// setting applies to the next scheduled event.
type DelaySource interface {
	GetFloat64(ctx context.Context, key string) (float64, error)
}

// Scheduler queues update events and replays them through the dispatcher
// once due.
type Scheduler struct {
	queue         DelayQueue
	dispatcher    Dispatcher
	delays        DelaySource
	defaultDelay  time.Duration
	drainInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger

	mu     sync.Mutex
	cron   gocron.Scheduler
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithDelaySource reads the update delay from src on every Schedule call.
func WithDelaySource(src DelaySource) Option {
	return func(s *Scheduler) error {
		s.delays = src
		return nil
	}
}

// WithUpdateDelay sets the delay used when no DelaySource is configured or
// the source has no value.
func WithUpdateDelay(d time.Duration) Option {
	return func(s *Scheduler) error {
		if d < 0 {
			return fmt.Errorf("update delay must not be negative, got %s", d)
		}
		s.defaultDelay = d
		return nil
	}
}

// WithDrainInterval sets how often due events are drained.
func WithDrainInterval(d time.Duration) Option {
	return func(s *Scheduler) error {
		if d <= 0 {
			return fmt.Errorf("drain interval must be positive, got %s", d)
		}
		s.drainInterval = d
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a Scheduler over queue that replays due events through dispatcher.
func New(queue DelayQueue, dispatcher Dispatcher, opts ...Option) (*Scheduler, error) {
	if queue == nil {
		return nil, ErrQueueRequired
	}
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	s := &Scheduler{
		queue:         queue,
		dispatcher:    dispatcher,
		defaultDelay:  DefaultUpdateDelay,
		drainInterval: DefaultDrainInterval,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "scheduler")
	return s, nil
}

// UpdateDelay returns the delay currently configured for update events.
func (s *Scheduler) UpdateDelay(ctx context.Context) time.Duration {
	if s.delays == nil {
		return s.defaultDelay
	}
	hours, err := s.delays.GetFloat64(ctx, UpdateDelayKey)
	if err != nil || hours < 0 {
		s.logger.Warn("falling back to default update delay", "err", err, "hours", hours)
		return s.defaultDelay
	}
	return time.Duration(hours * float64(time.Hour))
}

// Schedule queues event to run after the update delay. A later event for
// the same record replaces an earlier one.
func (s *Scheduler) Schedule(ctx context.Context, event *core.Event) error {
	if event == nil {
		return ErrNilEvent
	}
	due := s.now().Add(s.UpdateDelay(ctx))
	if err := s.queue.Schedule(ctx, event, due); err != nil {
		return err
	}
	s.logger.Info("deferred record update", "record_id", event.Payload.RecordID, "due", due)
	return nil
}

// Drain dispatches every due event and returns how many were dispatched.
// When ctx ends part way, the undispatched events go back on the queue with
// their original due time and ctx's error is returned.
func (s *Scheduler) Drain(ctx context.Context) (int, error) {
	entries, err := s.queue.PopDue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to drain delay queue: %w", err)
	}
	for i, entry := range entries {
		if ctx.Err() != nil {
			return i, errors.Join(ctx.Err(), s.requeue(ctx, entries[i:]))
		}
		if !s.dispatcher.Dispatch(ctx, entry.Event) {
			s.logger.Warn("deferred event not processed", "record_id", entry.Event.Payload.RecordID)
		}
	}
	return len(entries), nil
}

func (s *Scheduler) requeue(ctx context.Context, entries []Entry) error {
	if err := s.queue.Requeue(context.WithoutCancel(ctx), entries); err != nil {
		s.logger.Error("failed to requeue deferred events", "count", len(entries), "err", err)
		return fmt.Errorf("failed to requeue %d deferred events: %w", len(entries), err)
	}
	s.logger.Info("requeued undispatched events", "count", len(entries))
	return nil
}

// Start runs Drain every drain interval until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create cron scheduler: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	_, err = cron.NewJob(
		gocron.DurationJob(s.drainInterval),
		gocron.NewTask(func() {
			n, err := s.Drain(runCtx)
			switch {
			case err != nil && runCtx.Err() != nil:
				// shutting down
			case err != nil:
				s.logger.Error("drain failed", "err", err)
			case n > 0:
				s.logger.Info("drained deferred events", "count", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		cron.Shutdown()
		return fmt.Errorf("failed to create drain job: %w", err)
	}

	cron.Start()
	s.cron = cron
	s.cancel = cancel
	s.logger.Info("scheduler started", "drain_interval", s.drainInterval)
	return nil
}

// Stop cancels an in-progress drain and shuts the cron scheduler down.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}
	s.cancel()
	err := s.cron.Shutdown()
	s.cron = nil
	s.cancel = nil
	return err
}

// Pending returns the number of queued events.
func (s *Scheduler) Pending(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}
