/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/docmapper/errors"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMatch(t *testing.T) {
	doc := map[string]any{
		"name":    "alice",
		"age":     int64(30),
		"score":   4.5,
		"tags":    []any{"go", "db"},
		"created": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"address": map[string]any{"city": "Oslo"},
		"items":   bson.A{map[string]any{"sku": "a"}, map[string]any{"sku": "b"}},
	}

	tests := []struct {
		name   string
		filter bson.M
		want   bool
	}{
		{"empty filter", bson.M{}, true},
		{"equality", bson.M{"name": "alice"}, true},
		{"numeric equality across types", bson.M{"age": 30}, true},
		{"array contains", bson.M{"tags": "go"}, true},
		{"array exact", bson.M{"tags": []any{"go", "db"}}, true},
		{"missing field equals nil", bson.M{"nickname": nil}, true},
		{"gt", bson.M{"age": bson.M{"$gt": int64(29)}}, true},
		{"lte fails", bson.M{"score": bson.M{"$lte": 4.0}}, false},
		{"time range", bson.M{"created": bson.M{"$lt": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}}, true},
		{"in", bson.M{"name": bson.M{"$in": bson.A{"bob", "alice"}}}, true},
		{"nin", bson.M{"name": bson.M{"$nin": bson.A{"alice"}}}, false},
		{"all", bson.M{"tags": bson.M{"$all": bson.A{"db", "go"}}}, true},
		{"ne", bson.M{"name": bson.M{"$ne": "bob"}}, true},
		{"exists", bson.M{"nickname": bson.M{"$exists": false}}, true},
		{"size", bson.M{"tags": bson.M{"$size": 2}}, true},
		{"regex", bson.M{"name": bson.M{"$regex": "^AL", "$options": "i"}}, true},
		{"not", bson.M{"age": bson.M{"$not": bson.M{"$gt": 40}}}, true},
		{"dotted path", bson.M{"address.city": "Oslo"}, true},
		{"array of documents", bson.M{"items.sku": "b"}, true},
		{"array index", bson.M{"items.0.sku": "b"}, false},
		{"or", bson.M{"$or": bson.A{bson.M{"name": "bob"}, bson.M{"age": int64(30)}}}, true},
		{"and", bson.M{"$and": bson.A{bson.M{"name": "alice"}, bson.M{"age": int64(31)}}}, false},
		{"nor", bson.M{"$nor": bson.A{bson.M{"name": "bob"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(doc, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchUnsupportedOperator(t *testing.T) {
	_, err := Match(map[string]any{"loc": 1}, bson.M{"loc": bson.M{"$near": bson.A{1, 2}}})
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}

func TestSortWindowProject(t *testing.T) {
	docs := []map[string]any{
		{"_id": 1, "name": "b", "age": 2},
		{"_id": 2, "name": "a", "age": 2},
		{"_id": 3, "name": "c", "age": 1},
		{"_id": 4, "age": 3},
	}

	SortDocuments(docs, bson.D{{Key: "age", Value: -1}, {Key: "name", Value: 1}})
	ids := make([]any, len(docs))
	for i, d := range docs {
		ids[i] = d["_id"]
	}
	assert.Equal(t, []any{4, 2, 1, 3}, ids)

	assert.Len(t, Window(docs, 1, 2), 2)
	assert.Nil(t, Window(docs, 10, 0))
	assert.Len(t, Window(docs, 0, 0), 4)

	assert.Equal(t, map[string]any{"_id": 1, "name": "b"}, Project(map[string]any{"_id": 1, "name": "b", "age": 2}, bson.M{"name": 1}))
}

func TestSliceCursor(t *testing.T) {
	ctx := context.Background()
	cur := NewSliceCursor([]map[string]any{{"a": 1}, {"a": 2}})

	docs, err := Drain(ctx, cur)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	cur = NewSliceCursor([]map[string]any{{"a": 1}})
	assert.False(t, cur.Next(cancelled))
	assert.ErrorIs(t, cur.Err(), context.Canceled)
}
