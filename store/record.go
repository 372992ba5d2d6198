package store

import "context"

// Record is the base interface for all storable types.
type Record interface {
	// EntityName returns the logical entity name (e.g., "Person").
	EntityName() string

	// RecordRef returns the unique reference used as the storage key
	// (e.g., "person#uuid").
	RecordRef() string
}

// Context is the persistence context: a unit of work that stages record
// changes and commits them atomically. Implementations own all engine
// concerns (storage format, query execution, durability); the store
// only routes calls through this interface.
type Context interface {
	// Insert stages a new record. No I/O is performed.
	Insert(rec Record)

	// Remove stages a record for removal. No I/O is performed.
	Remove(rec Record)

	// Fetch executes a query and returns the matching records,
	// materialized as untyped Record values. Zero matches is not an
	// error.
	Fetch(ctx context.Context, q Query) ([]Record, error)

	// Save atomically commits all staged changes together with the
	// current state of every managed record. Either every change
	// becomes durable or none does. A failed Save leaves the staged
	// changes intact, so a later Save retries the same commit.
	Save(ctx context.Context) error
}

// Query selects records of one entity, optionally narrowed by a
// predicate. The predicate is opaque to the store; each context
// implementation compiles it for its engine.
type Query struct {
	// Entity is the logical entity name to fetch.
	Entity string

	// Predicate is an optional filter. Nil matches every record.
	Predicate *Predicate
}
