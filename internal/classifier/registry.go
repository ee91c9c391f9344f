package classifier

import (
	"context"
	"fmt"
	"sync"
)

// Loader produces a model on first use.
type Loader func(ctx context.Context) (Model, error)

// Registry caches loaded models by identifier so repeated classifier
// construction reuses the same weights.
type Registry struct {
	mu     sync.Mutex
	models map[string]Model
}

// NewRegistry returns an empty cache.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Get returns the cached model for id, calling load only on a miss.
// A failed load is not cached.
func (r *Registry) Get(ctx context.Context, id string, load Loader) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.models[id]; ok {
		return m, nil
	}
	m, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", id, err)
	}
	r.models[id] = m
	return m, nil
}

// Len reports the number of cached models.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.models)
}

// Evict drops id from the cache.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	delete(r.models, id)
	r.mu.Unlock()
}
