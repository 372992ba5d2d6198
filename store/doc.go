// Package store provides a generic asynchronous CRUD facade over a
// pluggable persistence context.
//
// Lattice is designed for applications that keep an object graph in an
// external persistence engine and want a small, uniform surface for
// creating, saving, deleting and querying records of one type without
// coupling to the engine itself. The store performs no persistence work
// of its own: every operation delegates to a [Context], the unit-of-work
// collaborator that stages changes and commits them atomically.
//
// # Records
//
// All storable types implement the [Record] interface:
//
//	type Record interface {
//	    EntityName() string
//	    RecordRef() string
//	}
//
// Records are opaque to the store. They are created transiently in
// memory, become persistent on a successful save, may be mutated and
// saved again, and are removed by delete. The store owns no records,
// only a non-owning reference to its context.
//
// # Operations
//
// Each operation is a single-shot asynchronous unit of work: it returns
// a buffered channel that delivers exactly one [Result] and is then
// closed. Callers may abandon the channel without blocking the
// operation.
//
//	people := store.New[*Person](pctx, func() *Person { return &Person{} })
//
//	p := people.CreateTransient()
//	p.Name = "Alice"
//	res := <-people.Save(ctx, p, false)
//
// # Errors
//
// Failures from the persistence context are folded into a closed
// taxonomy of four kinds, matched with errors.Is:
//
//   - [ErrNotFound] - fetch returned records that could not be typed
//   - [ErrRead] - the fetch itself failed
//   - [ErrWrite] - an insert or update commit failed
//   - [ErrDelete] - a delete commit failed
//
// Note that a fetch returning zero records is a success with an empty
// slice; [ErrNotFound] signals a type mismatch, not an empty result.
//
// # Concurrency
//
// The store imposes no locking of its own. The persistence context is
// the sole arbiter of thread-safety and must be confined to whatever
// execution domain it requires; invoking two operations concurrently
// against an unconfined context is the caller's responsibility.
package store
