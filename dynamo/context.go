// Package dynamo provides a persistence context backed by DynamoDB.
//
// Records live in a single table: the partition key "pk" is the entity
// name and the sort key "sk" is the record ref, with the record's own
// attributes flattened alongside via attributevalue. Record types must
// therefore not use "pk" or "sk" as attribute names. Commits flush all
// pending writes in one TransactWriteItems call, so a commit is
// all-or-nothing up to the transaction item limit.
package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/store"
)

// API is the subset of the DynamoDB client the context uses. It is
// satisfied by *dynamodb.Client.
type API interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type recordKey struct {
	entity string
	ref    string
}

func keyOf(rec store.Record) recordKey {
	return recordKey{entity: rec.EntityName(), ref: rec.RecordRef()}
}

// Context is a DynamoDB-backed unit of work. Inserts and removals are
// staged in memory and flushed atomically on Save; records seen by a
// successful commit or a fetch are managed, and every commit rewrites
// the managed set so in-place mutations become durable.
type Context struct {
	client   API
	config   Config
	registry *store.Registry
	log      *slog.Logger

	mu      sync.Mutex
	managed map[recordKey]store.Record
	inserts map[recordKey]store.Record
	removes map[recordKey]store.Record
}

// New creates a new Context instance. The registry materializes fetched
// items back into concrete record types.
func New(client API, config Config, registry *store.Registry) *Context {
	config.validate()
	return &Context{
		client:   client,
		config:   config,
		registry: registry,
		log:      slog.Default(),
		managed:  make(map[recordKey]store.Record),
		inserts:  make(map[recordKey]store.Record),
		removes:  make(map[recordKey]store.Record),
	}
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
// must still be staged then, or the committed item would survive a
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

// Save flushes staged changes and the managed set in a single
// TransactWriteItems call. On any failure the staged sets are left
// intact for a retry.
func (c *Context) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := []types.TransactWriteItem{}

	put := func(k recordKey, rec store.Record) error {
		item, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", k.entity, k.ref, err)
		}
		item["pk"] = &types.AttributeValueMemberS{Value: k.entity}
		item["sk"] = &types.AttributeValueMemberS{Value: k.ref}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(c.config.Table),
				Item:      item,
			},
		})
		return nil
	}

	for k, rec := range c.managed {
		if _, gone := c.removes[k]; gone {
			continue
		}
		if err := put(k, rec); err != nil {
			return err
		}
	}
	for k, rec := range c.inserts {
		if err := put(k, rec); err != nil {
			return err
		}
	}
	deletes := 0
	for k := range c.removes {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(c.config.Table),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: k.entity},
					"sk": &types.AttributeValueMemberS{Value: k.ref},
				},
			},
		})
		deletes++
	}

	if len(items) == 0 {
		return nil
	}
	if len(items) > c.config.MaxTransactItems {
		return fmt.Errorf("commit of %d items exceeds the transaction limit of %d", len(items), c.config.MaxTransactItems)
	}

	_, err := c.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
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

	c.log.Debug("dynamo commit", "puts", len(items)-deletes, "deletes", deletes)
	return nil
}

// Fetch queries committed records of one entity, compiling the
// predicate to a filter expression and paginating through all results.
// Fetched records become managed. An entity with no items yields an
// empty result even when it is not registered.
func (c *Context) Fetch(ctx context.Context, q store.Query) ([]store.Record, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(c.config.Table),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "pk",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: q.Entity},
		},
	}

	if filter, names, values, err := compileFilter(q.Predicate); err != nil {
		return nil, err
	} else if filter != "" {
		input.FilterExpression = aws.String(filter)
		for k, v := range names {
			input.ExpressionAttributeNames[k] = v
		}
		for k, v := range values {
			input.ExpressionAttributeValues[k] = v
		}
	}

	var out []store.Record
	paginator := dynamodb.NewQueryPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Entity, err)
		}
		for _, raw := range page.Items {
			rec, err := c.unmarshalItem(q.Entity, raw)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}

	c.mu.Lock()
	for _, rec := range out {
		c.managed[keyOf(rec)] = rec
	}
	c.mu.Unlock()

	return out, nil
}

// unmarshalItem converts a DynamoDB item into a concrete record via the
// registry.
func (c *Context) unmarshalItem(entity string, raw map[string]types.AttributeValue) (store.Record, error) {
	rec, ok := c.registry.New(entity)
	if !ok {
		return nil, fmt.Errorf("entity %q is not registered", entity)
	}

	attrs := make(map[string]types.AttributeValue, len(raw))
	for k, v := range raw {
		if k == "pk" || k == "sk" {
			continue
		}
		attrs[k] = v
	}
	if err := attributevalue.UnmarshalMap(attrs, rec); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", entity, err)
	}
	return rec, nil
}
