package connectors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/applicant-sync/internal/core/domain"
	"github.com/custodia-labs/applicant-sync/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ProviderRegistry = (*Registry)(nil)

// Registry resolves providers by platform type.
// Providers are registered at startup and read concurrently by sync attempts.
type Registry struct {
	mu        sync.RWMutex
	providers map[domain.PlatformType]driven.Provider
}

// NewRegistry creates a registry holding the given providers.
func NewRegistry(providers ...driven.Provider) *Registry {
	r := &Registry{
		providers: make(map[domain.PlatformType]driven.Provider),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register registers a provider for its platform type, replacing any previous one.
func (r *Registry) Register(p driven.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Type()] = p
}

// Resolve returns the provider for a platform type.
func (r *Registry) Resolve(platform domain.PlatformType) (driven.Provider, error) {
	r.mu.RLock()
	p, ok := r.providers[platform]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, platform)
	}
	return p, nil
}

// IsSupported returns true if a provider is registered for the platform type.
func (r *Registry) IsSupported(platform domain.PlatformType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[platform]
	return ok
}

// SupportedTypes returns all registered platform types, sorted.
func (r *Registry) SupportedTypes() []domain.PlatformType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.PlatformType, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
