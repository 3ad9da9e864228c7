package source

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages adapter registration. It is stateless beyond the
// adapter set itself; a report build snapshots the set it was given.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}
	if !a.Criticality().IsValid() {
		return fmt.Errorf("adapter %q has invalid criticality %q", name, a.Criticality())
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}

	r.adapters[name] = a
	return nil
}

// Get returns a registered adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.adapters[name]
	return a, exists
}

// List returns all registered adapter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered adapter in name order. The order is stable
// so report builds over the same registry behave deterministically.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		out = append(out, r.adapters[name])
	}
	return out
}

// Resolve returns the named adapters, erroring on any unknown name.
func (r *Registry) Resolve(names []string) ([]Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		a, exists := r.adapters[name]
		if !exists {
			return nil, fmt.Errorf("adapter %q not registered", name)
		}
		out = append(out, a)
	}
	return out, nil
}
