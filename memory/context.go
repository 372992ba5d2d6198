// Package memory provides an in-memory persistence context, used for
// tests and for callers that want lattice semantics without an engine.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jacentio/lattice/store"
)

type recordKey struct {
	entity string
	ref    string
}

func keyOf(rec store.Record) recordKey {
	return recordKey{entity: rec.EntityName(), ref: rec.RecordRef()}
}

// Context is an in-memory unit of work. Staged inserts and removals
// become visible only on Save; committed records are held as live
// references, so mutations to a committed record are durable as soon as
// the next Save succeeds.
type Context struct {
	log *slog.Logger

	mu       sync.Mutex
	records  map[string]map[string]store.Record
	inserts  map[recordKey]store.Record
	removes  map[recordKey]store.Record
	saveErr  error
	fetchErr error
}

// New creates an empty in-memory context.
func New() *Context {
	return &Context{
		log:     slog.Default(),
		records: make(map[string]map[string]store.Record),
		inserts: make(map[recordKey]store.Record),
		removes: make(map[recordKey]store.Record),
	}
}

// SetLogger replaces the logger used for commit diagnostics.
func (c *Context) SetLogger(log *slog.Logger) {
	c.log = log
}

// Insert stages a record. Staging is keyed by entity and ref, so
// re-inserting the same record (e.g., a retried save) does not stage a
// duplicate.
func (c *Context) Insert(rec store.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserts[keyOf(rec)] = rec
}

// Remove stages a record for removal. A staged insert for the same
// record is dropped, but a staged insert can shadow an already
// committed copy (a re-save whose commit failed); the removal must
// still be staged then, or the committed copy would survive a
// successful delete.
func (c *Context) Remove(rec store.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := keyOf(rec)
	_, staged := c.inserts[k]
	if staged {
		delete(c.inserts, k)
	}
	_, committed := c.records[k.entity][k.ref]
	if committed || !staged {
		c.removes[k] = rec
	}
}

// Fetch returns the committed records of the queried entity, filtered
// by the predicate. Results are ordered by record ref. Staged changes
// are not visible.
func (c *Context) Fetch(ctx context.Context, q store.Query) ([]store.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byRef := c.records[q.Entity]
	refs := make([]string, 0, len(byRef))
	for ref := range byRef {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	out := make([]store.Record, 0, len(refs))
	for _, ref := range refs {
		rec := byRef[ref]
		ok, err := matches(rec, q.Predicate)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Save commits all staged changes atomically. On failure the staged
// sets are left intact, so a retried Save re-attempts the same commit.
func (c *Context) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.saveErr != nil {
		return c.saveErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for k, rec := range c.inserts {
		byRef := c.records[k.entity]
		if byRef == nil {
			byRef = make(map[string]store.Record)
			c.records[k.entity] = byRef
		}
		byRef[k.ref] = rec
	}
	for k := range c.removes {
		delete(c.records[k.entity], k.ref)
	}

	puts, deletes := len(c.inserts), len(c.removes)
	c.inserts = make(map[recordKey]store.Record)
	c.removes = make(map[recordKey]store.Record)

	c.log.Debug("memory commit", "puts", puts, "deletes", deletes)
	return nil
}

// FailSaves makes every Save fail with err until called with nil.
func (c *Context) FailSaves(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveErr = err
}

// FailFetches makes every Fetch fail with err until called with nil.
func (c *Context) FailFetches(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchErr = err
}

// Len returns the number of committed records for an entity.
func (c *Context) Len(entity string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records[entity])
}
