// Package sqlite provides a persistence context backed by SQLite.
// Records are stored as JSON documents, one row per record, so any
// json-serializable record type works without schema changes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/jacentio/lattice/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	entity TEXT NOT NULL,
	ref    TEXT NOT NULL,
	doc    TEXT NOT NULL,
	PRIMARY KEY (entity, ref)
);
`

type recordKey struct {
	entity string
	ref    string
}

func keyOf(rec store.Record) recordKey {
	return recordKey{entity: rec.EntityName(), ref: rec.RecordRef()}
}

// Context is a SQLite-backed unit of work. Inserts and removals are
// staged in memory and flushed in a single SQL transaction on Save;
// records seen by a successful commit or a fetch are managed, and every
// commit rewrites the managed set so in-place mutations become durable.
type Context struct {
	db       *sql.DB
	registry *store.Registry
	log      *slog.Logger

	mu      sync.Mutex
	managed map[recordKey]store.Record
	inserts map[recordKey]store.Record
	removes map[recordKey]store.Record
}

// New opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an ephemeral database. The registry materializes
// fetched rows back into concrete record types.
func New(path string, registry *store.Registry) (*Context, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Context{
		db:       db,
		registry: registry,
		log:      slog.Default(),
		managed:  make(map[recordKey]store.Record),
		inserts:  make(map[recordKey]store.Record),
		removes:  make(map[recordKey]store.Record),
	}, nil
}

// Close releases the database handle.
func (c *Context) Close() error {
	return c.db.Close()
}

// SetLogger replaces the logger used for commit diagnostics.
func (c *Context) SetLogger(log *slog.Logger) {
	c.log = log
}

// Insert stages a new record. Staging is keyed by entity and ref, so a
// retried save does not stage a duplicate.
func (c *Context) Insert(rec store.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserts[keyOf(rec)] = rec
}

// Remove stages a record for removal. A staged insert for the same
// record is dropped, but a staged insert can shadow a managed copy
// from an earlier commit (a re-save whose commit failed); the removal
// must still be staged then, or the committed row would survive a
// successful delete.
func (c *Context) Remove(rec store.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := keyOf(rec)
	_, staged := c.inserts[k]
	if staged {
		delete(c.inserts, k)
	}
	_, managed := c.managed[k]
	if managed || !staged {
		c.removes[k] = rec
	}
}

// Save flushes staged changes and the managed set in one transaction.
// On any failure the transaction is rolled back and the staged sets are
// left intact for a retry.
func (c *Context) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	var puts, deletes int
	write := func(k recordKey, rec store.Record) error {
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", k.entity, k.ref, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO objects (entity, ref, doc) VALUES (?, ?, ?)
			 ON CONFLICT (entity, ref) DO UPDATE SET doc = excluded.doc`,
			k.entity, k.ref, string(doc))
		if err != nil {
			return fmt.Errorf("write %s/%s: %w", k.entity, k.ref, err)
		}
		puts++
		return nil
	}

	for k, rec := range c.managed {
		if _, gone := c.removes[k]; gone {
			continue
		}
		if err := write(k, rec); err != nil {
			return err
		}
	}
	for k, rec := range c.inserts {
		if err := write(k, rec); err != nil {
			return err
		}
	}
	for k := range c.removes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM objects WHERE entity = ? AND ref = ?`, k.entity, k.ref); err != nil {
			return fmt.Errorf("delete %s/%s: %w", k.entity, k.ref, err)
		}
		deletes++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for k, rec := range c.inserts {
		c.managed[k] = rec
	}
	for k := range c.removes {
		delete(c.managed, k)
	}
	c.inserts = make(map[recordKey]store.Record)
	c.removes = make(map[recordKey]store.Record)

	c.log.Debug("sqlite commit", "puts", puts, "deletes", deletes)
	return nil
}

// Fetch queries committed records of one entity, compiling the
// predicate to a WHERE clause over json_extract. Fetched records become
// managed. An entity with no rows yields an empty result even when it
// is not registered.
func (c *Context) Fetch(ctx context.Context, q store.Query) ([]store.Record, error) {
	where, args, err := compileWhere(q.Predicate)
	if err != nil {
		return nil, err
	}

	query := `SELECT ref, doc FROM objects WHERE entity = ?` + where + ` ORDER BY ref`
	rows, err := c.db.QueryContext(ctx, query, append([]any{q.Entity}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Entity, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var ref, doc string
		if err := rows.Scan(&ref, &doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Entity, err)
		}
		rec, ok := c.registry.New(q.Entity)
		if !ok {
			return nil, fmt.Errorf("entity %q is not registered", q.Entity)
		}
		if err := json.Unmarshal([]byte(doc), rec); err != nil {
			return nil, fmt.Errorf("unmarshal %s/%s: %w", q.Entity, ref, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Entity, err)
	}

	c.mu.Lock()
	for _, rec := range out {
		c.managed[keyOf(rec)] = rec
	}
	c.mu.Unlock()

	return out, nil
}
