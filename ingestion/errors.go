package ingestion

import "errors"

var (
	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrResolverRequired is returned when a payload resolver is not provided.
	ErrResolverRequired = errors.New("payload resolver required")

	// ErrExtractionRequired is returned when an extraction layer is not provided.
	ErrExtractionRequired = errors.New("extraction layer required")

	// ErrDispatcherRequired is returned when an event dispatcher is not provided.
	ErrDispatcherRequired = errors.New("event dispatcher required")

	// ErrSchedulerRequired is returned when an update scheduler is not provided.
	ErrSchedulerRequired = errors.New("update scheduler required")

	// ErrSourceRequired is returned when a broker consumer is not provided.
	ErrSourceRequired = errors.New("broker consumer required")

	// ErrHandlerRequired is returned when a message handler is not provided.
	ErrHandlerRequired = errors.New("message handler required")

	// ErrAlreadyRunning is returned by Start on a running consumer.
	ErrAlreadyRunning = errors.New("consumer already running")
)
