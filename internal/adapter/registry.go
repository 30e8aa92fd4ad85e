package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maintains the set of registered source adapters.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]SourceAdapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]SourceAdapter),
	}
}

// Register adds an adapter to the registry. Returns an error if an adapter
// with the same id is already registered.
func (r *Registry) Register(a SourceAdapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("adapter %q already registered", id)
	}

	r.adapters[id] = a
	return nil
}

// Get returns the adapter registered under id, or nil if none.
func (r *Registry) Get(id string) SourceAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// List returns all registered adapters, ordered by id for stable iteration.
func (r *Registry) List() []SourceAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SourceAdapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
