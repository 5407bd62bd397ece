package source

import (
	"context"
	"sort"
	"sync"

	"TrackHound/model"
)

// Adapter is the capability set every upstream catalog implements.
// Search and Popular return validated results only; ResolveDownload turns
// an adapter-defined external id into a time-bounded playable location.
type Adapter interface {
	// Name returns the source identifier used in cache keys, health
	// scores and API responses.
	Name() model.TrackSource

	// Search runs an adapter-specific discovery query.
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)

	// Popular returns the adapter's trending/popular feed.
	Popular(ctx context.Context, limit int) ([]model.SearchResult, error)

	// ResolveDownload resolves an external id to a playable URL.
	// Metadata-only adapters return an Unavailable-kind error.
	ResolveDownload(ctx context.Context, externalID string) (*model.DownloadResolution, error)

	// HealthCheck issues a minimal probe query and reports latency.
	HealthCheck(ctx context.Context) model.HealthStatus
}

// Registry keeps the registered adapters. Registration happens once at
// startup; lookups are concurrent.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.TrackSource]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[model.TrackSource]Adapter),
	}
}

// Register adds an adapter, replacing any previous one for the same source.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a source.
func (r *Registry) Get(s model.TrackSource) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[s]
	return a, ok
}

// Names returns the registered source identifiers in stable order.
func (r *Registry) Names() []model.TrackSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]model.TrackSource, 0, len(r.adapters))
	for s := range r.adapters {
		names = append(names, s)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// All returns every registered adapter in stable name order.
func (r *Registry) All() []Adapter {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(names))
	for _, n := range names {
		out = append(out, r.adapters[n])
	}
	return out
}
