package dynamo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lattice/dynamo"
	"github.com/jacentio/lattice/store"
)

type gadget struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

func (g *gadget) EntityName() string { return "Gadget" }
func (g *gadget) RecordRef() string  { return "gadget#" + g.ID }

// fakeClient implements dynamo.API, recording inputs and serving
// scripted query pages.
type fakeClient struct {
	queryInputs []*dynamodb.QueryInput
	pages       []*dynamodb.QueryOutput
	queryErr    error

	transacts   []*dynamodb.TransactWriteItemsInput
	transactErr error
}

func (f *fakeClient) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.pages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeClient) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transacts = append(f.transacts, in)
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func gadgetItem(id, name string, level string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":    &types.AttributeValueMemberS{Value: "Gadget"},
		"sk":    &types.AttributeValueMemberS{Value: "gadget#" + id},
		"id":    &types.AttributeValueMemberS{Value: id},
		"name":  &types.AttributeValueMemberS{Value: name},
		"level": &types.AttributeValueMemberN{Value: level},
	}
}

func newContext(client *fakeClient) *dynamo.Context {
	reg := store.NewRegistry()
	reg.Register("Gadget", func() store.Record { return &gadget{} })
	return dynamo.New(client, dynamo.Config{Table: "test_objects"}, reg)
}

// --- Commit Tests ---

func TestSave_BuildsTransactWrite(t *testing.T) {
	client := &fakeClient{}
	c := newContext(client)

	c.Insert(&gadget{ID: "g1", Name: "widget", Level: 3})
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if len(client.transacts) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(client.transacts))
	}
	items := client.transacts[0].TransactItems
	if len(items) != 1 || items[0].Put == nil {
		t.Fatalf("expected a single Put, got %+v", items)
	}

	put := items[0].Put
	if aws.ToString(put.TableName) != "test_objects" {
		t.Errorf("expected table 'test_objects', got %q", aws.ToString(put.TableName))
	}
	if pk := put.Item["pk"].(*types.AttributeValueMemberS).Value; pk != "Gadget" {
		t.Errorf("expected pk 'Gadget', got %q", pk)
	}
	if sk := put.Item["sk"].(*types.AttributeValueMemberS).Value; sk != "gadget#g1" {
		t.Errorf("expected sk 'gadget#g1', got %q", sk)
	}
	if name := put.Item["name"].(*types.AttributeValueMemberS).Value; name != "widget" {
		t.Errorf("expected name attribute 'widget', got %q", name)
	}
}

func TestSave_NothingStagedSkipsCall(t *testing.T) {
	client := &fakeClient{}
	c := newContext(client)

	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(client.transacts) != 0 {
		t.Errorf("expected no transactions for an empty commit, got %d", len(client.transacts))
	}
}

func TestSave_ExceedingTransactLimitFails(t *testing.T) {
	client := &fakeClient{}
	reg := store.NewRegistry()
	c := dynamo.New(client, dynamo.Config{MaxTransactItems: 1}, reg)

	c.Insert(&gadget{ID: "g1"})
	c.Insert(&gadget{ID: "g2"})

	if err := c.Save(context.Background()); err == nil {
		t.Fatal("expected commit above the transaction limit to fail")
	}
	if len(client.transacts) != 0 {
		t.Errorf("expected no call to DynamoDB, got %d", len(client.transacts))
	}
}

func TestSave_ErrorKeepsStaging(t *testing.T) {
	client := &fakeClient{transactErr: errors.New("throughput exceeded")}
	c := newContext(client)

	c.Insert(&gadget{ID: "g1", Name: "widget"})
	if err := c.Save(context.Background()); err == nil {
		t.Fatal("expected Save to fail")
	}

	// Staging survives; the retry re-sends the same put.
	client.transactErr = nil
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("retried Save failed: %v", err)
	}
	if len(client.transacts) != 2 {
		t.Fatalf("expected 2 transaction attempts, got %d", len(client.transacts))
	}
	if items := client.transacts[1].TransactItems; len(items) != 1 || items[0].Put == nil {
		t.Errorf("expected the retry to carry the staged put, got %+v", items)
	}
}

func TestRemove_CommitsDeleteWithoutPut(t *testing.T) {
	client := &fakeClient{}
	c := newContext(client)

	g := &gadget{ID: "g1", Name: "widget"}
	c.Insert(g)
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	c.Remove(g)
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	items := client.transacts[1].TransactItems
	if len(items) != 1 || items[0].Delete == nil {
		t.Fatalf("expected a single Delete, got %+v", items)
	}
	key := items[0].Delete.Key
	if sk := key["sk"].(*types.AttributeValueMemberS).Value; sk != "gadget#g1" {
		t.Errorf("expected delete key sk 'gadget#g1', got %q", sk)
	}
}

func TestRemove_AfterFailedResaveCommitsDelete(t *testing.T) {
	client := &fakeClient{}
	c := newContext(client)

	g := &gadget{ID: "g1", Name: "widget"}
	c.Insert(g)
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Re-stage the committed record and fail the commit, leaving the
	// insert staged on top of the committed item.
	c.Insert(g)
	client.transactErr = errors.New("throughput exceeded")
	if err := c.Save(context.Background()); err == nil {
		t.Fatal("expected re-save to fail")
	}
	client.transactErr = nil

	c.Remove(g)
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	items := client.transacts[len(client.transacts)-1].TransactItems
	if len(items) != 1 || items[0].Delete == nil {
		t.Fatalf("expected the commit to carry a Delete, got %+v", items)
	}
	if sk := items[0].Delete.Key["sk"].(*types.AttributeValueMemberS).Value; sk != "gadget#g1" {
		t.Errorf("expected delete key sk 'gadget#g1', got %q", sk)
	}
}

// --- Fetch Tests ---

func TestFetch_QueriesByEntity(t *testing.T) {
	client := &fakeClient{
		pages: []*dynamodb.QueryOutput{
			{Items: []map[string]types.AttributeValue{gadgetItem("g1", "widget", "3")}},
		},
	}
	c := newContext(client)

	recs, err := c.Fetch(context.Background(), store.Query{Entity: "Gadget"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}

	g, ok := recs[0].(*gadget)
	if !ok {
		t.Fatalf("expected *gadget, got %T", recs[0])
	}
	if g.ID != "g1" || g.Name != "widget" || g.Level != 3 {
		t.Errorf("unexpected record: %+v", g)
	}

	in := client.queryInputs[0]
	if aws.ToString(in.KeyConditionExpression) != "#pk = :pk" {
		t.Errorf("unexpected key condition %q", aws.ToString(in.KeyConditionExpression))
	}
	if pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value; pk != "Gadget" {
		t.Errorf("expected :pk 'Gadget', got %q", pk)
	}
	if in.FilterExpression != nil {
		t.Errorf("expected no filter expression, got %q", aws.ToString(in.FilterExpression))
	}
}

func TestFetch_AppliesPredicateFilter(t *testing.T) {
	client := &fakeClient{}
	c := newContext(client)

	pred := store.Where("level", store.Gt, 2)
	if _, err := c.Fetch(context.Background(), store.Query{Entity: "Gadget", Predicate: pred}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	in := client.queryInputs[0]
	if aws.ToString(in.FilterExpression) != "#f0 > :v0" {
		t.Errorf("unexpected filter %q", aws.ToString(in.FilterExpression))
	}
	if in.ExpressionAttributeNames["#f0"] != "level" {
		t.Errorf("expected #f0 -> level, got %v", in.ExpressionAttributeNames)
	}
	if n := in.ExpressionAttributeValues[":v0"].(*types.AttributeValueMemberN).Value; n != "2" {
		t.Errorf("expected :v0 N 2, got %q", n)
	}
}

func TestFetch_PaginatesThroughAllPages(t *testing.T) {
	client := &fakeClient{
		pages: []*dynamodb.QueryOutput{
			{
				Items:            []map[string]types.AttributeValue{gadgetItem("g1", "widget", "1")},
				LastEvaluatedKey: map[string]types.AttributeValue{"sk": &types.AttributeValueMemberS{Value: "gadget#g1"}},
			},
			{
				Items: []map[string]types.AttributeValue{gadgetItem("g2", "sprocket", "2")},
			},
		},
	}
	c := newContext(client)

	recs, err := c.Fetch(context.Background(), store.Query{Entity: "Gadget"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 records across pages, got %d", len(recs))
	}
	if len(client.queryInputs) != 2 {
		t.Errorf("expected 2 query calls, got %d", len(client.queryInputs))
	}
}

func TestFetch_NoItemsIsEmptySuccess(t *testing.T) {
	client := &fakeClient{}
	reg := store.NewRegistry() // nothing registered
	c := dynamo.New(client, dynamo.DefaultConfig(), reg)

	recs, err := c.Fetch(context.Background(), store.Query{Entity: "Ghost"})
	if err != nil {
		t.Fatalf("expected empty success, got %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestFetch_UnregisteredEntityWithItemsFails(t *testing.T) {
	client := &fakeClient{
		pages: []*dynamodb.QueryOutput{
			{Items: []map[string]types.AttributeValue{gadgetItem("g1", "widget", "1")}},
		},
	}
	reg := store.NewRegistry()
	c := dynamo.New(client, dynamo.DefaultConfig(), reg)

	if _, err := c.Fetch(context.Background(), store.Query{Entity: "Gadget"}); err == nil {
		t.Error("expected fetch of unregistered entity with rows to fail")
	}
}

func TestFetch_ThenSaveRewritesFetchedRecord(t *testing.T) {
	client := &fakeClient{
		pages: []*dynamodb.QueryOutput{
			{Items: []map[string]types.AttributeValue{gadgetItem("g1", "widget", "3")}},
		},
	}
	c := newContext(client)

	recs, err := c.Fetch(context.Background(), store.Query{Entity: "Gadget"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	recs[0].(*gadget).Name = "gizmo"
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	items := client.transacts[0].TransactItems
	if len(items) != 1 || items[0].Put == nil {
		t.Fatalf("expected fetched record to be rewritten, got %+v", items)
	}
	if name := items[0].Put.Item["name"].(*types.AttributeValueMemberS).Value; name != "gizmo" {
		t.Errorf("expected updated name 'gizmo', got %q", name)
	}
}
