// Package adapters holds the remote backends a volume can be mounted from and
// the registry that picks one by the configured backend type.
package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/config"
)

// Provider opens an authenticated session against one backend type.
type Provider interface {
	Open(ctx context.Context, cfg *config.Config) (remotefs.Session, error)
}

// ProviderFunc adapts a plain function to [Provider].
type ProviderFunc func(ctx context.Context, cfg *config.Config) (remotefs.Session, error)

func (f ProviderFunc) Open(ctx context.Context, cfg *config.Config) (remotefs.Session, error) {
	return f(ctx, cfg)
}

type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Default is the registry used by [Register], [GetProvider] and [Open].
var Default = NewRegistry()

// Register ties a provider to a backend type. The first registration for a
// type wins; later ones are ignored.
func (r *Registry) Register(backendType string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[backendType]; exists {
		return
	}
	r.providers[backendType] = p
}

func (r *Registry) GetProvider(backendType string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[backendType]
	if !ok {
		return nil, fmt.Errorf("no provider registered for backend %q", backendType)
	}
	return p, nil
}

// Types lists the registered backend types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	return types
}

// Open picks the provider for cfg.Backend and opens a session with it.
func (r *Registry) Open(ctx context.Context, cfg *config.Config) (remotefs.Session, error) {
	p, err := r.GetProvider(cfg.Backend)
	if err != nil {
		return nil, err
	}
	return p.Open(ctx, cfg)
}

func Register(backendType string, p Provider) {
	Default.Register(backendType, p)
}

func GetProvider(backendType string) (Provider, error) {
	return Default.GetProvider(backendType)
}

func Open(ctx context.Context, cfg *config.Config) (remotefs.Session, error) {
	return Default.Open(ctx, cfg)
}
