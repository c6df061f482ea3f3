package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mzajc/lektor/pkg/persistence"
	"github.com/mzajc/lektor/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions. It decouples
// the config schema from concrete provider packages, so main wires in the
// implementations it ships with and tests register lightweight fakes.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	llm   map[string]func(ProviderEntry) (llm.Provider, error)
	store map[Backend]func(context.Context, PersistenceConfig) (persistence.Store, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:   make(map[string]func(ProviderEntry) (llm.Provider, error)),
		store: make(map[Backend]func(context.Context, PersistenceConfig) (persistence.Store, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterStore registers a persistence backend factory.
func (r *Registry) RegisterStore(backend Backend, factory func(context.Context, PersistenceConfig) (persistence.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[backend] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateStore instantiates the lecture store for the configured backend.
func (r *Registry) CreateStore(ctx context.Context, cfg PersistenceConfig) (persistence.Store, error) {
	r.mu.RLock()
	factory, ok := r.store[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: store/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}
