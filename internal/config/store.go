package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/resilience"
)

// Store hands out the current configuration snapshot. Snapshots are never
// mutated; a reload swaps the pointer, so in-flight calls keep the values they
// started with and the next call sees the new ones.
type Store struct {
	current atomic.Pointer[Config]
}

func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.Set(cfg)
	return s
}

// Get returns the current snapshot.
func (s *Store) Get() *Config {
	return s.current.Load()
}

// Set replaces the snapshot.
func (s *Store) Set(cfg *Config) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.fill()
	s.current.Store(cfg)
}

// Source returns the configuration of the named connector.
func (s *Store) Source(name string) *SourceConfig {
	sc := s.Get().Sources.Get(name)
	if sc == nil {
		return &SourceConfig{}
	}
	return sc
}

// Gemini returns the reasoning backend configuration.
func (s *Store) Gemini() *GeminiConfig {
	return s.Get().AI.Gemini
}

// RetryPolicy returns the configured retry policy.
func (s *Store) RetryPolicy() resilience.Policy {
	return s.Get().Retry
}

// Watch reloads the store whenever the config file behind v changes. Invalid
// files are logged and the previous snapshot is kept.
func (s *Store) Watch(v *viper.Viper, logger *zap.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(v)
		if err != nil {
			logger.Warn("config reload rejected, keeping the previous one", zap.String("file", e.Name), zap.Error(err))
			return
		}
		s.Set(cfg)
		logger.Info("config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()
}

// AI returns the scoring configuration.
func (s *Store) AI() *AIConfig {
	return s.Get().AI
}
