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

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Settings is the complete runtime configuration of the service.
type Settings struct {
	Broker        BrokerSettings     `mapstructure:"broker"`
	Admission     AdmissionSettings  `mapstructure:"admission"`
	Storage       StorageSettings    `mapstructure:"storage"`
	Auth          AuthSettings       `mapstructure:"auth"`
	Endpoints     EndpointSettings   `mapstructure:"endpoints"`
	Download      DownloadSettings   `mapstructure:"download"`
	Scheduler     SchedulerSettings  `mapstructure:"scheduler"`
	Redis         RedisSettings      `mapstructure:"redis"`
	Embedding     EmbeddingSettings  `mapstructure:"embedding"`
	Extraction    ExtractionSettings `mapstructure:"extraction"`
	Observability Observability      `mapstructure:"observability"`
}

// BrokerSettings holds configuration for consuming from a message broker.
type BrokerSettings struct {
	Type             string `mapstructure:"type" validate:"required,oneof=kafka rabbitmq"`
	BootstrapServers string `mapstructure:"bootstrap_servers" validate:"required_if=Type kafka"`
	GroupID          string `mapstructure:"group_id" validate:"required"`
	Topic            string `mapstructure:"topic" validate:"required"`
	URL              string `mapstructure:"url" validate:"required_if=Type rabbitmq"`
	Prefetch         int    `mapstructure:"prefetch" validate:"gte=0"`
}

// AdmissionSettings bounds how fast and how many records are processed.
type AdmissionSettings struct {
	RateLimit          int `mapstructure:"rate_limit" validate:"gt=0"`
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks" validate:"gt=0"`
	DedupMaxOffsets    int `mapstructure:"dedup_max_offsets" validate:"gte=0"`
}

// StorageSettings locates the record and chunk store.
type StorageSettings struct {
	Path     string `mapstructure:"path" validate:"required_without=InMemory"`
	InMemory bool   `mapstructure:"in_memory"`
}

// AuthSettings configures bearer-token minting for internal routes.
type AuthSettings struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

// EndpointSettings are the base URLs of internal services.
type EndpointSettings struct {
	ConnectorURL string `mapstructure:"connector_url" validate:"required,url"`
	StorageURL   string `mapstructure:"storage_url" validate:"omitempty,url"`
	ConverterURL string `mapstructure:"converter_url" validate:"omitempty,url"`
}

// DownloadSettings bound payload downloads.
type DownloadSettings struct {
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ChunkTimeout   time.Duration `mapstructure:"chunk_timeout" validate:"gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gt=0"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"gte=0"`
}

// SchedulerSettings control deferred handling of update events.
type SchedulerSettings struct {
	Enabled          bool          `mapstructure:"enabled"`
	UpdateDelayHours float64       `mapstructure:"update_delay_hours" validate:"gte=0"`
	DrainInterval    time.Duration `mapstructure:"drain_interval" validate:"gt=0"`
	Queue            string        `mapstructure:"queue" validate:"oneof=memory redis"`
}

// RedisSettings locate the Redis-backed delay queue.
type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Key      string `mapstructure:"key"`
}

// EmbeddingSettings configure the embedding service and chunking.
type EmbeddingSettings struct {
	Host         string `mapstructure:"host" validate:"required"`
	Model        string `mapstructure:"model" validate:"required"`
	Token        string `mapstructure:"token"`
	ChunkSize    int    `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkOverlap int    `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	BatchSize    int    `mapstructure:"batch_size" validate:"gt=0"`
}

// ExtractionSettings size the CPU-bound extraction worker pool.
type ExtractionSettings struct {
	WorkerPoolSize int `mapstructure:"worker_pool_size" validate:"gt=0"`
}

// Observability configures tracing. An empty TracingURL disables export.
type Observability struct {
	ServiceName string `mapstructure:"service_name" validate:"required"`
	TracingURL  string `mapstructure:"tracing_url"`
}

// Validate checks the settings against their struct tags.
func (c *Settings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Scheduler.Enabled && c.Scheduler.Queue == "redis" && c.Redis.Addr == "" {
		return errors.New("invalid configuration: redis.addr is required for the redis scheduler queue")
	}
	return nil
}

// UpdateDelay converts the configured delay hours to a duration.
func (s SchedulerSettings) UpdateDelay() time.Duration {
	return time.Duration(s.UpdateDelayHours * float64(time.Hour))
}

// envKeys are bound explicitly so nested keys map onto RECORDSTREAM_* variables.
var envKeys = []string{
	"broker.type",
	"broker.bootstrap_servers",
	"broker.group_id",
	"broker.topic",
	"broker.url",
	"admission.rate_limit",
	"admission.max_concurrent_tasks",
	"storage.path",
	"auth.jwt_secret",
	"endpoints.connector_url",
	"endpoints.storage_url",
	"endpoints.converter_url",
	"scheduler.enabled",
	"scheduler.update_delay_hours",
	"scheduler.queue",
	"redis.addr",
	"redis.password",
	"embedding.host",
	"embedding.model",
	"embedding.token",
	"observability.service_name",
	"observability.tracing_url",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("broker.type", "kafka")
	v.SetDefault("broker.group_id", "record_consumer_group")
	v.SetDefault("broker.topic", "record-events")
	v.SetDefault("broker.prefetch", 50)
	v.SetDefault("admission.rate_limit", 5)
	v.SetDefault("admission.max_concurrent_tasks", 5)
	v.SetDefault("admission.dedup_max_offsets", 100_000)
	v.SetDefault("storage.path", "./data")
	v.SetDefault("auth.issuer", "recordstream")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("download.timeout", 30*time.Minute)
	v.SetDefault("download.chunk_timeout", 5*time.Minute)
	v.SetDefault("download.max_attempts", 3)
	v.SetDefault("download.retry_base_delay", time.Second)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.update_delay_hours", 1.0)
	v.SetDefault("scheduler.drain_interval", 30*time.Second)
	v.SetDefault("scheduler.queue", "memory")
	v.SetDefault("redis.key", "recordstream:deferred")
	v.SetDefault("embedding.host", "http://localhost:11434/v1")
	v.SetDefault("embedding.model", "embeddinggemma")
	v.SetDefault("embedding.chunk_size", 1000)
	v.SetDefault("embedding.chunk_overlap", 100)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("extraction.worker_pool_size", 4)
	v.SetDefault("observability.service_name", "recordstream")
}

// newViper builds a viper instance reading recordstream.yaml from dir, an
// optional recordstream.<env>.yaml overlay, and RECORDSTREAM_* variables.
// It returns the path of the base file, empty when none was found.
func newViper(dir string) (*viper.Viper, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetConfigName("recordstream")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	base := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
		slog.Debug("no config file found, relying on env", "dir", dir)
	} else {
		base = v.ConfigFileUsed()
		if err := mergeOverlay(v, base); err != nil {
			return nil, "", err
		}
	}

	v.SetEnvPrefix("RECORDSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, "", fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	return v, base, nil
}

// mergeOverlay merges recordstream.<env>.yaml next to base, if present,
// and leaves base as the file viper reads and watches.
func mergeOverlay(v *viper.Viper, base string) error {
	env := getEnvWithDefaultLookup("ENVIRONMENT", "development")
	overlay := filepath.Join(filepath.Dir(base), "recordstream."+env+".yaml")
	if _, err := os.Stat(overlay); err != nil {
		return nil
	}
	v.SetConfigFile(overlay)
	defer v.SetConfigFile(base)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to merge %s config: %w", env, err)
	}
	return nil
}

// readFiles re-reads the base file and its overlay.
func readFiles(v *viper.Viper, base string) error {
	if base == "" {
		return nil
	}
	v.SetConfigFile(base)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return mergeOverlay(v, base)
}

func decode(v *viper.Viper) (*Settings, error) {
	cfg := &Settings{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Load reads and validates settings from dir and the environment.
func Load(dir string) (*Settings, error) {
	v, _, err := newViper(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnvWithDefaultLookup(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
