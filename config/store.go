package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrUnknownKey indicates a configuration key with no value and no default.
var ErrUnknownKey = errors.New("unknown configuration key")

// Store is an explicitly owned configuration cache. Values are read through
// Get and its typed helpers; when the backing file changes the cache is
// invalidated and every subscriber is called with the new settings.
type Store struct {
	v      *viper.Viper
	file   string
	logger *slog.Logger

	mu       sync.RWMutex
	cache    map[string]any
	settings *Settings
	subs     []func(*Settings)
}

// NewStore loads settings from dir and the environment into a new Store.
func NewStore(dir string) (*Store, error) {
	v, file, err := newViper(dir)
	if err != nil {
		return nil, err
	}
	return newStore(v, file)
}

func newStore(v *viper.Viper, file string) (*Store, error) {
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		v:        v,
		file:     file,
		logger:   slog.Default().With("component", "config"),
		cache:    make(map[string]any),
		settings: cfg,
	}, nil
}

// Settings returns the most recently loaded settings.
func (s *Store) Settings() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Get returns the value of a dotted configuration key.
func (s *Store) Get(ctx context.Context, key string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	val, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return val, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.v.IsSet(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	val = s.v.Get(key)
	s.cache[key] = val
	return val, nil
}

// GetString returns a key's value as a string.
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	val, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return cast.ToStringE(val)
}

// GetFloat64 returns a key's value as a float64.
func (s *Store) GetFloat64(ctx context.Context, key string) (float64, error) {
	val, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return cast.ToFloat64E(val)
}

// GetDuration returns a key's value as a time.Duration.
func (s *Store) GetDuration(ctx context.Context, key string) (time.Duration, error) {
	val, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return cast.ToDurationE(val)
}

// Subscribe registers fn to be called after every successful reload.
func (s *Store) Subscribe(fn func(*Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Invalidate drops cached values so the next Get reads through to viper.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]any)
}

// Reload re-reads the config files, clears the cache and notifies
// subscribers. Invalid settings are rejected and the previous settings
// stay active.
func (s *Store) Reload() error {
	s.mu.Lock()
	err := readFiles(s.v, s.file)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	cfg, err := decode(s.v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache = make(map[string]any)
	s.settings = cfg
	subs := make([]func(*Settings), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
	return nil
}

// Watch reloads the store whenever the config file changes on disk.
// It is a no-op when no config file was found.
func (s *Store) Watch() {
	if s.file == "" {
		s.logger.Debug("no config file in use, not watching")
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.logger.Info("config file changed", "file", e.Name, "op", e.Op.String())
		if err := s.Reload(); err != nil {
			s.logger.Error("failed to reload config", "err", err)
		}
	})
	s.v.WatchConfig()
}
