package runtime

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps function kinds to runtime factories. Registration happens
// at startup; resolution is safe from any goroutine.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a function kind to a factory. Empty kinds, nil factories
// and duplicate registrations are rejected.
func (r *Registry) Register(kind string, factory Factory) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return errors.New("runtime kind is required")
	}
	if factory == nil {
		return fmt.Errorf("runtime %q: factory is required", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("runtime %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Resolve constructs a fresh runtime for the given function kind.
func (r *Registry) Resolve(kind string) (Runtime, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(kind)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownRuntime)
	}
	return factory(), nil
}

// Kinds lists the registered function kinds in lexical order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}
