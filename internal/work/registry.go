package work

import (
	"sync"
)

// Registry holds all registered job types and provides lookup by ID.
type Registry struct {
	types map[string]*JobType
	mu    sync.RWMutex
}

// NewRegistry creates a new job type registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]*JobType),
	}
}

// Register adds a job type to the registry.
// If a job type with the same ID already exists, it will be replaced.
func (r *Registry) Register(jt *JobType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types[jt.ID] = jt
}

// Get returns a job type by ID, or nil if not found.
func (r *Registry) Get(id string) *JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.types[id]
}

// Has returns true if a job type with the given ID is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.types[id]
	return exists
}
