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

package recordstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/poiesic/recordstream/ai"
	"github.com/poiesic/recordstream/ai/openai"
	"github.com/poiesic/recordstream/auth"
	"github.com/poiesic/recordstream/broker"
	"github.com/poiesic/recordstream/config"
	"github.com/poiesic/recordstream/core"
	"github.com/poiesic/recordstream/extraction"
	"github.com/poiesic/recordstream/ingestion"
	"github.com/poiesic/recordstream/reembed"
	"github.com/poiesic/recordstream/resolve"
	"github.com/poiesic/recordstream/scheduler"
	"github.com/poiesic/recordstream/search"
	"github.com/poiesic/recordstream/storage"
	"github.com/poiesic/recordstream/storage/badger"
	"github.com/poiesic/recordstream/telemetry"
)

// ErrSchedulerDisabled is returned by operations on the delay queue when
// deferred updates are not enabled.
var ErrSchedulerDisabled = errors.New("scheduler is disabled")

// Service owns every component of the record indexing service.
type Service struct {
	settings   *config.Settings
	backend    *badger.Backend
	records    storage.RecordRepository
	chunks     storage.ChunkRepository
	embedder   ai.Embedder
	extractor  *extraction.Extractor
	dispatcher *ingestion.Dispatcher
	scheduler  *scheduler.Scheduler
	queue      scheduler.DelayQueue
	handler    *ingestion.MessageHandler
	source     broker.Consumer
	tracing    telemetry.ShutdownFunc
	logger     *slog.Logger

	mu       sync.Mutex
	consumer *ingestion.Consumer
	stopped  bool
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	store    *config.Store
	embedder ai.Embedder
	source   broker.Consumer
	queue    scheduler.DelayQueue
	logger   *slog.Logger
}

// WithStore reads the update delay through store on every scheduling
// decision, so edits to the config file apply without a restart.
func WithStore(store *config.Store) ServiceOption {
	return func(o *serviceOptions) {
		o.store = store
	}
}

// WithEmbedder replaces the OpenAI-compatible embedder built from settings.
func WithEmbedder(embedder ai.Embedder) ServiceOption {
	return func(o *serviceOptions) {
		o.embedder = embedder
	}
}

// WithBrokerConsumer replaces the broker consumer built from settings.
func WithBrokerConsumer(source broker.Consumer) ServiceOption {
	return func(o *serviceOptions) {
		o.source = source
	}
}

// WithDelayQueue replaces the delay queue built from settings.
func WithDelayQueue(queue scheduler.DelayQueue) ServiceOption {
	return func(o *serviceOptions) {
		o.queue = queue
	}
}

// WithServiceLogger sets the logger passed to every component.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService builds the storage, resolution, extraction and dispatch layers
// from settings. The broker connection is made by Run.
func NewService(ctx context.Context, settings *config.Settings, opts ...ServiceOption) (svc *Service, err error) {
	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	s := &Service{settings: settings, source: options.source, logger: options.logger}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.tracing, err = telemetry.Init(ctx, settings.Observability); err != nil {
		return nil, err
	}

	if s.backend, err = badger.OpenBackendWithLogger(settings.Storage.Path, settings.Storage.InMemory, s.logger); err != nil {
		return nil, err
	}
	s.records = badger.NewRecordRepository(s.backend)
	s.chunks = badger.NewChunkRepository(s.backend)

	s.embedder = options.embedder
	if s.embedder == nil {
		aiConfig := ai.NewConfig(
			ai.WithEmbeddingHost(settings.Embedding.Host),
			ai.WithEmbeddingModel(settings.Embedding.Model),
			ai.WithEmbeddingToken(settings.Embedding.Token),
			ai.WithChunking(settings.Embedding.ChunkSize, settings.Embedding.ChunkOverlap),
			ai.WithBatchSize(settings.Embedding.BatchSize),
		)
		if s.embedder, err = openai.NewEmbedder(aiConfig, openai.WithLogger(s.logger)); err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	resolver, err := newResolver(settings, s.logger)
	if err != nil {
		return nil, err
	}

	extractorOpts := []extraction.Option{
		extraction.WithPoolSize(settings.Extraction.WorkerPoolSize),
		extraction.WithChunking(settings.Embedding.ChunkSize, settings.Embedding.ChunkOverlap),
		extraction.WithBatchSize(settings.Embedding.BatchSize),
		extraction.WithLogger(s.logger),
	}
	if settings.Endpoints.ConverterURL != "" {
		converter := extraction.NewHTTPConverter(settings.Endpoints.ConverterURL, telemetry.HTTPClient(settings.Download.Timeout))
		extractorOpts = append(extractorOpts, extraction.WithConverter(converter))
	}
	if s.extractor, err = extraction.NewExtractor(s.records, s.chunks, s.embedder, extractorOpts...); err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	if s.dispatcher, err = ingestion.NewDispatcher(s.records, resolver, s.extractor, ingestion.WithDispatcherLogger(s.logger)); err != nil {
		return nil, err
	}

	var events ingestion.EventDispatcher = s.dispatcher
	if settings.Scheduler.Enabled {
		if events, err = s.buildScheduler(ctx, options); err != nil {
			return nil, err
		}
	}

	if s.handler, err = ingestion.NewMessageHandler(events, s.logger); err != nil {
		return nil, err
	}
	return s, nil
}

func newResolver(settings *config.Settings, logger *slog.Logger) (*resolve.Resolver, error) {
	minter, err := auth.NewJWTMinter(settings.Auth.JWTSecret,
		auth.WithIssuer(settings.Auth.Issuer),
		auth.WithTTL(settings.Auth.TokenTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token minter: %w", err)
	}
	downloader := resolve.NewDownloader(
		telemetry.HTTPClient(settings.Download.Timeout),
		settings.Download.Timeout,
		settings.Download.ChunkTimeout,
	)
	return resolve.NewResolver(minter, settings.Endpoints.ConnectorURL,
		resolve.WithStorageURL(settings.Endpoints.StorageURL),
		resolve.WithDownloader(downloader),
		resolve.WithRetry(settings.Download.MaxAttempts, settings.Download.RetryBaseDelay),
		resolve.WithLogger(logger),
	)
}

func (s *Service) buildScheduler(ctx context.Context, options *serviceOptions) (*ingestion.DeferringHandler, error) {
	cfg := s.settings.Scheduler
	s.queue = options.queue
	if s.queue == nil {
		switch cfg.Queue {
		case "redis":
			queue, err := scheduler.DialRedisQueue(ctx, s.settings.Redis.Addr, s.settings.Redis.Password, s.settings.Redis.DB, s.settings.Redis.Key)
			if err != nil {
				return nil, err
			}
			s.queue = queue
		default:
			s.queue = scheduler.NewMemoryQueue()
		}
	}

	schedOpts := []scheduler.Option{
		scheduler.WithUpdateDelay(cfg.UpdateDelay()),
		scheduler.WithDrainInterval(cfg.DrainInterval),
		scheduler.WithLogger(s.logger),
	}
	if options.store != nil {
		schedOpts = append(schedOpts, scheduler.WithDelaySource(options.store))
	}
	sched, err := scheduler.New(s.queue, s.dispatcher, schedOpts...)
	if err != nil {
		return nil, err
	}
	s.scheduler = sched
	return ingestion.NewDeferringHandler(s.dispatcher, sched, s.logger)
}

// Run connects to the broker and consumes until ctx ends or Stop is called.
// The scheduler, when enabled, drains in the background for as long as
// consumption runs. Run returns at once when Stop was called first.
func (s *Service) Run(ctx context.Context) error {
	if s.stopRequested() {
		return nil
	}
	if s.source == nil {
		source, err := broker.NewConsumer(ctx, &s.settings.Broker)
		if err != nil {
			return err
		}
		s.source = source
	}

	admission := s.settings.Admission
	opts := []ingestion.Option{
		ingestion.WithLogger(s.logger),
	}
	if admission.RateLimit > 0 {
		opts = append(opts, ingestion.WithRateLimit(admission.RateLimit))
	}
	if admission.MaxConcurrentTasks > 0 {
		opts = append(opts, ingestion.WithMaxConcurrentTasks(admission.MaxConcurrentTasks))
	}
	if admission.DedupMaxOffsets > 0 {
		opts = append(opts, ingestion.WithDedupLimit(admission.DedupMaxOffsets))
	}
	consumer, err := ingestion.NewConsumer(s.source, s.handler, opts...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.consumer = consumer
	if s.stopped {
		// Stop arrived while the broker connection was being made.
		consumer.Stop()
	}
	s.mu.Unlock()

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := s.scheduler.Stop(); err != nil {
				s.logger.Warn("failed to stop scheduler", "err", err)
			}
		}()
	}

	return consumer.Start(ctx)
}

// Stop asks a running consumer to finish its in-flight tasks and return.
// Called before or during Run's startup, it makes Run return without
// consuming.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.consumer != nil {
		s.consumer.Stop()
	}
}

func (s *Service) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stats returns the consumer counters, or nil before Run.
func (s *Service) Stats() *ingestion.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Stats()
}

// Record returns the stored status view of a record.
func (s *Service) Record(ctx context.Context, id string) (*core.Record, error) {
	return s.records.GetRecord(ctx, id)
}

// Dispatch processes a single event synchronously.
func (s *Service) Dispatch(ctx context.Context, event *core.Event) bool {
	return s.dispatcher.Dispatch(ctx, event)
}

// DrainDeferred replays every due deferred update once.
func (s *Service) DrainDeferred(ctx context.Context) (int, error) {
	if s.scheduler == nil {
		return 0, ErrSchedulerDisabled
	}
	return s.scheduler.Drain(ctx)
}

// PendingDeferred returns the number of deferred updates waiting.
func (s *Service) PendingDeferred(ctx context.Context) (int, error) {
	if s.scheduler == nil {
		return 0, ErrSchedulerDisabled
	}
	return s.scheduler.Pending(ctx)
}

// NewSearcher returns a searcher over the indexed chunks.
func (s *Service) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(s.chunks, s.embedder, opts...)
}

// NewReembedder returns a reembedder that rewrites every stored chunk with
// vectors from the service's embedder.
func (s *Service) NewReembedder(cfg *reembed.Config, progress io.Writer) *reembed.Reembedder {
	return reembed.NewReembedder(s.chunks, s.embedder, cfg, progress)
}

// Close releases every component. It is safe to call on a partly built
// Service.
func (s *Service) Close() error {
	var errs []error
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Error("error closing delay queue", "err", err)
			errs = append(errs, err)
		}
	}
	if s.extractor != nil {
		s.extractor.Release()
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	if s.tracing != nil {
		if err := s.tracing(context.Background()); err != nil {
			s.logger.Error("error shutting down tracing", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
