package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dcshock/pixelpipe/pipeline"
)

// Registry maps task type names to factories. Safe for concurrent use.
// Freeze it before running pixels; registration afterwards panics.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]pipeline.Factory
	frozen    bool
}

// NewRegistry returns an empty task registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]pipeline.Factory)}
}

// Register adds a factory under the given type name. Overwrites any
// existing registration.
func (r *Registry) Register(name string, f pipeline.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Sprintf("config: register %q after Freeze", name))
	}
	if r.factories == nil {
		r.factories = make(map[string]pipeline.Factory)
	}
	r.factories[name] = f
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the factory for name or a *pipeline.UnknownTaskError.
func (r *Registry) Lookup(name string) (pipeline.Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, &pipeline.UnknownTaskError{Type: name}
	}
	return f, nil
}

// MustLookup returns the factory for name, or panics if not found.
func (r *Registry) MustLookup(name string) pipeline.Factory {
	f, err := r.Lookup(name)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return f
}

// Names returns all registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
