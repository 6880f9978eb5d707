package blocks

import (
	"sync"
)

// Factory builds a fresh variant instance
type Factory func() Variant

// Registry maps block type tags to variant factories
type Registry struct {
	mu        sync.RWMutex
	factories map[Type]Factory
	order     []Type
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Type]Factory)}
}

// Register adds or replaces a factory
func (r *Registry) Register(t Type, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[t]; !exists {
		r.order = append(r.order, t)
	}
	r.factories[t] = f
}

// Get returns the factory for a type
func (r *Registry) Get(t Type) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[t]
	return f, ok
}

// Types returns registered types in registration order
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, len(r.order))
	copy(out, r.order)
	return out
}

// New constructs a block of the given type
func (r *Registry) New(t Type, id, name string) (*Block, error) {
	f, ok := r.Get(t)
	if !ok {
		return nil, &GraphDefinitionError{Op: "create_block", BlockID: id, Key: string(t), Err: ErrUnknownBlockType}
	}
	return New(id, name, f()), nil
}
