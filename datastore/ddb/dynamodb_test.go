/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/docmapper"
	"github.com/suparena/docmapper/datastore"
	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/registry"
	"github.com/suparena/docmapper/storagemodels"
	"github.com/suparena/docmapper/typecast"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeAPI keeps items in memory. It evaluates key conditions on the collection attribute and
// ignores filter expressions, which the driver re-checks anyway.
type fakeAPI struct {
	mu        sync.Mutex
	items     map[string]map[string]types.AttributeValue
	gsis      []types.GlobalSecondaryIndexDescription
	throttle  int
	queries   int
	scans     int
	updates   []*sdk.UpdateTableInput
	lastQuery *sdk.QueryInput
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]types.AttributeValue)}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeAPI) PutItem(_ context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := str(in.Item[partitionKey])
	_, exists := f.items[pk]
	switch aws.ToString(in.ConditionExpression) {
	case "attribute_not_exists(#pk)":
		if exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	case "attribute_exists(#pk)":
		if !exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
		}
	}
	f.items[pk] = in.Item
	return &sdk.PutItemOutput{}, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *sdk.DeleteItemInput, _ ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := str(in.Key[partitionKey])
	if _, ok := f.items[pk]; !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
	}
	delete(f.items, pk)
	return &sdk.DeleteItemOutput{}, nil
}

// page returns the items whose attr equals want, ordered by partition key, after startKey.
func (f *fakeAPI) page(attr, want string, limit int32, startKey map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue) {
	var keys []string
	for pk, item := range f.items {
		if str(item[attr]) == want {
			keys = append(keys, pk)
		}
	}
	sort.Strings(keys)

	start := 0
	if startKey != nil {
		after := str(startKey[partitionKey])
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}
	end := len(keys)
	if limit > 0 && start+int(limit) < end {
		end = start + int(limit)
	}

	var out []map[string]types.AttributeValue
	for _, pk := range keys[start:end] {
		out = append(out, f.items[pk])
	}
	var last map[string]types.AttributeValue
	if end < len(keys) {
		last = map[string]types.AttributeValue{partitionKey: &types.AttributeValueMemberS{Value: keys[end-1]}}
	}
	return out, last
}

func (f *fakeAPI) Query(_ context.Context, in *sdk.QueryInput, _ ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	f.lastQuery = in
	if f.throttle > 0 {
		f.throttle--
		return nil, stderrors.New("ProvisionedThroughputExceededException: slow down")
	}
	items, last := f.page(in.ExpressionAttributeNames["#ck"], str(in.ExpressionAttributeValues[":coll"]), aws.ToInt32(in.Limit), in.ExclusiveStartKey)
	return &sdk.QueryOutput{Items: items, LastEvaluatedKey: last}, nil
}

func (f *fakeAPI) Scan(_ context.Context, in *sdk.ScanInput, _ ...func(*sdk.Options)) (*sdk.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	items, last := f.page(in.ExpressionAttributeNames["#ck"], str(in.ExpressionAttributeValues[":coll"]), aws.ToInt32(in.Limit), in.ExclusiveStartKey)
	return &sdk.ScanOutput{Items: items, LastEvaluatedKey: last}, nil
}

func (f *fakeAPI) DescribeTable(_ context.Context, in *sdk.DescribeTableInput, _ ...func(*sdk.Options)) (*sdk.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &sdk.DescribeTableOutput{Table: &types.TableDescription{
		TableName:              in.TableName,
		GlobalSecondaryIndexes: f.gsis,
	}}, nil
}

func (f *fakeAPI) UpdateTable(_ context.Context, in *sdk.UpdateTableInput, _ ...func(*sdk.Options)) (*sdk.UpdateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)
	for _, u := range in.GlobalSecondaryIndexUpdates {
		if u.Create != nil {
			f.gsis = append(f.gsis, types.GlobalSecondaryIndexDescription{IndexName: u.Create.IndexName})
		}
	}
	return &sdk.UpdateTableOutput{}, nil
}

func testDriver(api *fakeAPI) *Driver {
	cfg := DefaultConfig()
	cfg.PageSize = 2
	cfg.RetryBackoff = time.Millisecond
	return New(api, cfg)
}

func seed(t *testing.T, d *Driver, docs ...map[string]any) {
	t.Helper()
	for _, doc := range docs {
		_, err := d.Insert(context.Background(), "players", doc)
		require.NoError(t, err)
	}
}

func names(t *testing.T, cur datastore.Cursor) []string {
	t.Helper()
	docs, err := datastore.Drain(context.Background(), cur)
	require.NoError(t, err)
	out := make([]string, len(docs))
	for i, doc := range docs {
		out[i], _ = doc["name"].(string)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{CollectionIndex: GSIConfig{IndexName: "ByCollection"}}
	cfg.validate()
	assert.Equal(t, "docmapper", cfg.Table)
	assert.Equal(t, "PK1", cfg.CollectionIndex.PartitionKeyName)
	assert.Equal(t, "SK1", cfg.CollectionIndex.SortKeyName)
	assert.Equal(t, int32(100), cfg.PageSize)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBackoff)

	scan := Config{}
	scan.validate()
	assert.Empty(t, scan.CollectionIndex.IndexName)
}

func TestPushdown(t *testing.T) {
	e := newExpression()
	expr, ok := e.pushdown(bson.M{"name": "ann", "age": bson.M{"$gte": 3}})
	require.True(t, ok)
	assert.Equal(t, "(#f0 >= :v2 OR attribute_type(#f0, :v1)) AND (#f3 = :v4 OR contains(#f3, :v4))", expr)
	assert.Equal(t, map[string]string{"#f0": "age", "#f3": "name"}, e.names)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "3"}, e.values[":v2"])

	t.Run("booleans", func(t *testing.T) {
		e := newExpression()
		expr, ok := e.pushdown(bson.M{"active": true})
		require.True(t, ok)
		assert.Equal(t, "(#f0 = :v1 OR attribute_type(#f0, :v2))", expr)
	})

	t.Run("untranslatable", func(t *testing.T) {
		_, ok := newExpression().pushdown(bson.M{"stats.wins": 3})
		assert.False(t, ok)

		_, ok = newExpression().pushdown(bson.M{"$or": bson.A{bson.M{"stats.wins": 1}, bson.M{"name": "x"}}})
		assert.False(t, ok)

		_, ok = newExpression().pushdown(bson.M{"name": bson.M{"$regex": "^a"}})
		assert.False(t, ok)
	})

	t.Run("and keeps translatable branches", func(t *testing.T) {
		e := newExpression()
		expr, ok := e.pushdown(bson.M{"$and": bson.A{bson.M{"stats.wins": 1}, bson.M{"rank": bson.M{"$exists": true}}}})
		require.True(t, ok)
		assert.Equal(t, "(attribute_exists(#f0))", expr)
	})

	t.Run("in", func(t *testing.T) {
		e := newExpression()
		expr, ok := e.pushdown(bson.M{"name": bson.M{"$in": bson.A{"a", "b"}}})
		require.True(t, ok)
		assert.Equal(t, "((#f0 = :v1 OR contains(#f0, :v1)) OR (#f2 = :v3 OR contains(#f2, :v3)))", expr)
	})
}

func TestStoreForm(t *testing.T) {
	oid := primitive.NewObjectID()
	at := time.Date(2024, 6, 1, 12, 30, 0, 5e6, time.FixedZone("EST", -5*3600))
	got := storeForm(bson.M{
		"_id":   oid,
		"at":    at,
		"list":  bson.A{primitive.NewDateTimeFromTime(at)},
		"plain": 3,
	})
	assert.Equal(t, map[string]any{
		"_id":   oid.Hex(),
		"at":    "2024-06-01T17:30:00.005Z",
		"list":  []any{"2024-06-01T17:30:00.005Z"},
		"plain": 3,
	}, got)
}

func TestInsertFindUpdateDelete(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	d := testDriver(api)

	id, err := d.Insert(ctx, "players", map[string]any{"name": "ann", "rating": 1500})
	require.NoError(t, err)
	assert.IsType(t, "", id)

	seed(t, d,
		map[string]any{"_id": "b", "name": "bob", "rating": 1200},
		map[string]any{"_id": "c", "name": "cid", "rating": 1700},
		map[string]any{"_id": "d", "name": "dee", "rating": 1650},
	)
	_, err = d.Insert(ctx, "teams", map[string]any{"_id": "b", "name": "other collection"})
	require.NoError(t, err)

	_, err = d.Insert(ctx, "players", map[string]any{"_id": "b"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	cur, err := d.Find(ctx, &storagemodels.Query{Collection: "players"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ann", "bob", "cid", "dee"}, names(t, cur))
	assert.Equal(t, "GSI1", aws.ToString(api.lastQuery.IndexName))

	cur, err = d.Find(ctx, &storagemodels.Query{
		Collection: "players",
		Filter:     bson.M{"rating": bson.M{"$gt": 1600}},
		Sort:       bson.D{{Key: "rating", Value: storagemodels.Descending}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cid", "dee"}, names(t, cur))

	cur, err = d.Find(ctx, &storagemodels.Query{
		Collection: "players",
		Sort:       bson.D{{Key: "name", Value: storagemodels.Ascending}},
		Skip:       1,
		Limit:      2,
		Projection: bson.M{"name": 1},
	})
	require.NoError(t, err)
	docs, err := datastore.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, map[string]any{"_id": "b", "name": "bob"}, docs[0])

	require.NoError(t, d.Update(ctx, "players", "b", map[string]any{"name": "bob", "rating": 1800}))
	cur, err = d.Find(ctx, &storagemodels.Query{Collection: "players", Filter: bson.M{"_id": "b"}})
	require.NoError(t, err)
	docs, err = datastore.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, float64(1800), docs[0]["rating"])
	assert.NotContains(t, docs[0], partitionKey)
	assert.NotContains(t, docs[0], "PK1")

	assert.True(t, errors.IsDocumentNotFound(d.Update(ctx, "players", "zz", map[string]any{})))
	require.NoError(t, d.Delete(ctx, "players", "b"))
	assert.True(t, errors.IsDocumentNotFound(d.Delete(ctx, "players", "b")))
}

func TestReservedAttribute(t *testing.T) {
	d := testDriver(newFakeAPI())
	_, err := d.Insert(context.Background(), "players", map[string]any{"PK": "x"})
	assert.True(t, errors.IsValidationError(err))
}

func TestFindUnsortedWindow(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	d := testDriver(api)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		seed(t, d, map[string]any{"_id": id, "name": id})
	}

	cur, err := d.Find(ctx, &storagemodels.Query{Collection: "players", Skip: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, names(t, cur))
	// two pages of two cover skip plus limit
	assert.Equal(t, 2, api.queries)
}

func TestFindScanWithoutCollectionIndex(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	d := New(api, Config{PageSize: 1})
	seed(t, d,
		map[string]any{"_id": "a", "name": "a", "tags": []any{"x", "y"}},
		map[string]any{"_id": "b", "name": "b", "tags": []any{"z"}},
	)

	cur, err := d.Find(ctx, &storagemodels.Query{Collection: "players", Filter: bson.M{"tags": "y"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(t, cur))
	assert.Zero(t, api.queries)
	assert.Equal(t, 2, api.scans)
}

func TestFindRetriesThrottledPages(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	d := testDriver(api)
	seed(t, d, map[string]any{"_id": "a", "name": "a"})

	api.throttle = 2
	cur, err := d.Find(ctx, &storagemodels.Query{Collection: "players"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(t, cur))
	assert.Equal(t, 3, api.queries)

	api.throttle = 10
	cur, err = d.Find(ctx, &storagemodels.Query{Collection: "players"})
	require.NoError(t, err)
	_, err = datastore.Drain(ctx, cur)
	assert.ErrorContains(t, err, "max retries exceeded")
}

func TestCreateIndex(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	d := testDriver(api)

	err := d.CreateIndex(ctx, "players", storagemodels.IndexKeys{storagemodels.Asc("email")}, true, nil)
	assert.ErrorIs(t, err, errors.ErrUnsupported)

	keys := storagemodels.IndexKeys{storagemodels.Asc("club"), storagemodels.Desc("rating")}
	opts := map[string]any{"attribute_types": map[string]any{"rating": "N"}, "read_capacity": 5, "write_capacity": 5}
	require.NoError(t, d.CreateIndex(ctx, "players", keys, false, opts))
	require.Len(t, api.updates, 1)

	create := api.updates[0].GlobalSecondaryIndexUpdates[0].Create
	assert.Equal(t, "club_1_rating_-1", aws.ToString(create.IndexName))
	assert.Equal(t, types.KeyTypeHash, create.KeySchema[0].KeyType)
	assert.Equal(t, types.KeyTypeRange, create.KeySchema[1].KeyType)
	assert.Equal(t, types.ScalarAttributeTypeN, api.updates[0].AttributeDefinitions[1].AttributeType)
	assert.Equal(t, int64(5), aws.ToInt64(create.ProvisionedThroughput.ReadCapacityUnits))

	require.NoError(t, d.CreateIndex(ctx, "players", keys, false, opts))
	assert.Len(t, api.updates, 1)

	tooMany := storagemodels.IndexKeys{storagemodels.Asc("a"), storagemodels.Asc("b"), storagemodels.Asc("c")}
	assert.ErrorIs(t, d.CreateIndex(ctx, "players", tooMany, false, nil), errors.ErrUnsupported)
	assert.ErrorIs(t, d.CreateIndex(ctx, "players", keys[:1], false, map[string]any{"sparse": true}), errors.ErrUnsupported)
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := testDriver(newFakeAPI())

	reg := registry.NewRegistry()
	match := reg.MustDefine("Match")
	match.MustDeclareKey("winner", typecast.String)
	match.MustDeclareKey("games", typecast.Integer)
	match.MustDeclareKey("played_at", typecast.DateTime)

	session, err := docmapper.NewSession(d, reg)
	require.NoError(t, err)

	played := time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)
	doc, err := docmapper.New(match, map[string]any{"winner": "ann", "games": "5", "played_at": played})
	require.NoError(t, err)
	require.NoError(t, session.Create(ctx, doc))

	found, err := session.FindByID(ctx, match, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, doc.ID(), found.ID())
	games, _ := found.Read("games")
	assert.Equal(t, int64(5), games)
	at, _ := found.Read("played_at")
	assert.Equal(t, played, at)

	recent, err := session.Find(ctx, match, map[string]any{"played_at": map[string]any{"$gte": "2024-01-01"}})
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
