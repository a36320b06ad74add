package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"flightbot/internal/config"
	"flightbot/internal/domain"
)

// Constructor creates a provider from a config entry.
type Constructor func(pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error)

// Factory creates and caches providers from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]Constructor
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

// NewFactory creates a provider factory with the built-in constructors registered.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["deepseek"] = func(pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewDeepSeek(DeepSeekConfig{
			APIKey:      pc.APIKey,
			APIBase:     pc.APIBase,
			Model:       pc.DefaultModel,
			Temperature: pc.Temperature,
			Logger:      logger,
		}), nil
	}

	f.constructors["ollama"] = func(pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, DefaultModel: pc.DefaultModel, Logger: logger})
	}
}

// Get returns the provider with the given name, or the default if name is empty.
// Created providers are cached so the same instance is reused across calls.
// Uses double-check locking to avoid TOCTOU races.
func (f *Factory) Get(name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	// Fast path: read lock.
	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	// Slow path: write lock with double-check.
	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	ctor, found := f.constructors[name]

	var p domain.Provider
	var err error
	if found {
		p, err = ctor(pc, f.logger)
	} else if pc.APIBase != "" && pc.APIKey != "" {
		// Fallback: treat unknown providers as OpenAI-compatible endpoints.
		p = NewDeepSeek(DeepSeekConfig{
			Name:        name,
			APIKey:      pc.APIKey,
			APIBase:     pc.APIBase,
			Model:       pc.DefaultModel,
			Temperature: pc.Temperature,
			Logger:      f.logger,
		})
	} else {
		return nil, fmt.Errorf("provider %s: no constructor registered and no API base/key configured", name)
	}
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", name, err)
	}

	f.cache[name] = p
	return p, nil
}

// ForChat resolves the provider a chat session should use: the named
// provider when given, otherwise the configured failover chain when one is
// set, otherwise the default provider.
func (f *Factory) ForChat(name string) (domain.Provider, error) {
	if name != "" {
		return f.Get(name)
	}

	chain := f.cfg.General.FailoverChain
	switch len(chain) {
	case 0:
		return f.Get("")
	case 1:
		return f.Get(chain[0])
	}

	providers := make([]domain.Provider, 0, len(chain))
	for _, n := range chain {
		p, err := f.Get(n)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return NewFailover(providers, f.logger), nil
}

// DefaultProvider returns the configured default provider.
func (f *Factory) DefaultProvider() (domain.Provider, error) {
	return f.Get("")
}

// HealthyProvider returns the first provider that passes a health check, or nil.
func (f *Factory) HealthyProvider(ctx context.Context) domain.Provider {
	for name := range f.cfg.Providers {
		p, err := f.Get(name)
		if err != nil || p == nil {
			continue
		}
		if p.Healthy(ctx) == nil {
			return p
		}
	}
	return nil
}
