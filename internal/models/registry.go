package models

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dohr-michael/parrot/internal/config"
)

// ProviderEntry holds a lazily-initialized provider instance.
type ProviderEntry struct {
	Config   config.ProviderConfig
	provider Provider
	once     sync.Once
	err      error
}

// Registry manages named model providers with lazy initialization.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]*ProviderEntry
	defaultName string
	create      func(ctx context.Context, name string, cfg config.ProviderConfig) (Provider, error)
}

// NewRegistry creates a model registry from config.
func NewRegistry(cfg config.ModelsConfig) *Registry {
	r := &Registry{
		providers:   make(map[string]*ProviderEntry),
		defaultName: cfg.Default,
		create:      CreateProvider,
	}

	for name, provCfg := range cfg.Providers {
		r.providers[name] = &ProviderEntry{Config: provCfg}
	}

	return r
}

// Register adds an already-built provider under name.
func (r *Registry) Register(name string, p Provider) {
	entry := &ProviderEntry{provider: p}
	entry.once.Do(func() {})

	r.mu.Lock()
	r.providers[name] = entry
	if r.defaultName == "" {
		r.defaultName = name
	}
	r.mu.Unlock()
}

// Get returns the named provider, initializing it lazily.
func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	r.mu.RLock()
	entry, ok := r.providers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("model provider %q not found", name)
	}

	entry.once.Do(func() {
		entry.provider, entry.err = r.create(ctx, name, entry.Config)
	})

	return entry.provider, entry.err
}

// Default returns the default provider.
func (r *Registry) Default(ctx context.Context) (Provider, error) {
	name := r.DefaultName()
	if name == "" {
		return nil, fmt.Errorf("no default model configured")
	}
	return r.Get(ctx, name)
}

// DefaultName returns the name of the default provider.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Driver returns the configured driver for name, or "" if unknown.
func (r *Registry) Driver(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.providers[name]; ok {
		return entry.Config.Driver
	}
	return ""
}
