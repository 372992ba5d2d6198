package store

import "sort"

// Factory constructs an empty record ready to be populated from
// storage.
type Factory func() Record

// Registry maps entity names to record factories. Persistence contexts
// that serialize records (SQLite, DynamoDB) use it to materialize
// fetched rows back into their concrete Go types.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for an entity name, replacing any previous
// registration. This should be called during init() for each entity.
func (r *Registry) Register(entity string, fn Factory) {
	r.factories[entity] = fn
}

// New constructs an empty record for the entity. The second return is
// false when the entity is not registered.
func (r *Registry) New(entity string) (Record, bool) {
	fn, ok := r.factories[entity]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// Entities returns the registered entity names in sorted order.
func (r *Registry) Entities() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
