package store

import (
	"context"
	"fmt"
)

// ObjectStore provides asynchronous CRUD operations for one record type
// on top of a shared persistence context.
type ObjectStore[T Record] struct {
	pctx      Context
	newRecord func() T
}

// New creates a new ObjectStore instance. newRecord constructs an empty
// transient record; it must never return the same instance twice.
func New[T Record](pctx Context, newRecord func() T) *ObjectStore[T] {
	return &ObjectStore[T]{
		pctx:      pctx,
		newRecord: newRecord,
	}
}

// CreateTransient constructs a new record that exists only in memory.
// It performs no I/O and never fails; the record is invisible to
// fetches until saved.
func (s *ObjectStore[T]) CreateTransient() T {
	return s.newRecord()
}

// Save persists a record. With isUpdate false the record is first
// registered as new with the context; with isUpdate true the record is
// assumed to be already tracked and only pending changes are committed.
// The result carries the same record on success, or ErrWrite when the
// commit fails. After a failed commit the insert stays staged with the
// context, so a retried Save re-attempts the same commit.
func (s *ObjectStore[T]) Save(ctx context.Context, rec T, isUpdate bool) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		if !isUpdate {
			s.pctx.Insert(rec)
		}
		if err := s.pctx.Save(ctx); err != nil {
			deliver(out, Result[T]{Err: fmt.Errorf("%w: %w", ErrWrite, err)})
			return
		}
		deliver(out, Result[T]{Value: rec})
	}()
	return out
}

// Delete removes a record from the context and commits. The result
// carries the now-detached record on success, or ErrDelete when the
// commit fails.
func (s *ObjectStore[T]) Delete(ctx context.Context, rec T) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		s.pctx.Remove(rec)
		if err := s.pctx.Save(ctx); err != nil {
			deliver(out, Result[T]{Err: fmt.Errorf("%w: %w", ErrDelete, err)})
			return
		}
		deliver(out, Result[T]{Value: rec})
	}()
	return out
}

// FetchAll returns every record of the given entity. Zero records is a
// success with an empty slice.
func (s *ObjectStore[T]) FetchAll(ctx context.Context, entityName string) <-chan Result[[]T] {
	return s.fetch(ctx, Query{Entity: entityName})
}

// FetchWhere returns the records of the given entity matching the
// predicate. Same error semantics as FetchAll.
func (s *ObjectStore[T]) FetchWhere(ctx context.Context, pred *Predicate, entityName string) <-chan Result[[]T] {
	return s.fetch(ctx, Query{Entity: entityName, Predicate: pred})
}

func (s *ObjectStore[T]) fetch(ctx context.Context, q Query) <-chan Result[[]T] {
	out := make(chan Result[[]T], 1)
	go func() {
		raw, err := s.pctx.Fetch(ctx, q)
		if err != nil {
			deliver(out, Result[[]T]{Err: fmt.Errorf("%w: %w", ErrRead, err)})
			return
		}

		typed := make([]T, 0, len(raw))
		for _, r := range raw {
			rec, ok := r.(T)
			if !ok {
				deliver(out, Result[[]T]{Err: fmt.Errorf("%w: got %T", ErrNotFound, r)})
				return
			}
			typed = append(typed, rec)
		}
		deliver(out, Result[[]T]{Value: typed})
	}()
	return out
}
