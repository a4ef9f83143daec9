/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Sort and index directions.
const (
	Ascending  = 1
	Descending = -1
)

// Query is a compiled finder: the store-native filter document plus find options.
type Query struct {
	// Collection is the collection the query runs against.
	Collection string
	// Filter is the query document with every literal predicate already in store form.
	Filter bson.M
	// Sort lists sort keys in priority order. Values are Ascending or Descending.
	Sort bson.D
	// Limit caps the number of returned documents. Zero means no limit.
	Limit int64
	// Skip is the number of matching documents to skip.
	Skip int64
	// Projection selects returned fields. Nil returns whole documents.
	Projection bson.M
}

// SortField is a single sort key.
type SortField struct {
	Field     string
	Direction int
}

// IndexField is a single component of an index key spec.
type IndexField struct {
	Field     string
	Direction int
}

// IndexKeys is an ordered index key spec.
type IndexKeys []IndexField

// Asc builds an ascending index field.
func Asc(field string) IndexField {
	return IndexField{Field: field, Direction: Ascending}
}

// Desc builds a descending index field.
func Desc(field string) IndexField {
	return IndexField{Field: field, Direction: Descending}
}

// Fields returns the field names of the key spec in order.
func (k IndexKeys) Fields() []string {
	fields := make([]string, len(k))
	for i, f := range k {
		fields[i] = f.Field
	}
	return fields
}

// Name returns the conventional index name, e.g. "name_1_age_-1".
func (k IndexKeys) Name() string {
	parts := make([]string, 0, len(k)*2)
	for _, f := range k {
		parts = append(parts, f.Field, fmt.Sprint(f.Direction))
	}
	return strings.Join(parts, "_")
}

// BSON returns the key spec as an ordered document.
func (k IndexKeys) BSON() bson.D {
	d := make(bson.D, len(k))
	for i, f := range k {
		d[i] = bson.E{Key: f.Field, Value: f.Direction}
	}
	return d
}
