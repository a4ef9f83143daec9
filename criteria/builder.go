/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package criteria

import (
	"maps"

	"github.com/suparena/docmapper/registry"
	"github.com/suparena/docmapper/storagemodels"
	"go.mongodb.org/mongo-driver/bson"
)

// Builder assembles finder conditions and options step by step.
//
//	q, err := criteria.New(post).
//	    Where("author", "ann").
//	    WhereOp("age", "$gte", "21").
//	    Sort("created_at", storagemodels.Descending).
//	    Limit(10).
//	    Build()
type Builder struct {
	t          *registry.EntityType
	conditions map[string]any
	opts       Options
}

// New starts a query on t.
func New(t *registry.EntityType) *Builder {
	return &Builder{t: t, conditions: make(map[string]any)}
}

// Where sets an exact-match predicate, replacing any earlier predicate on field.
func (b *Builder) Where(field string, value any) *Builder {
	b.conditions[field] = value
	return b
}

// WhereOp adds an operator predicate on field. Several operators on one field are combined. An
// operator map passed to Where is copied, never modified.
func (b *Builder) WhereOp(field, op string, value any) *Builder {
	var ops map[string]any
	switch cur := b.conditions[field].(type) {
	case map[string]any:
		ops = maps.Clone(cur)
	case bson.M:
		ops = maps.Clone(map[string]any(cur))
	default:
		ops = make(map[string]any, 1)
	}
	ops[op] = value
	b.conditions[field] = ops
	return b
}

// Or appends alternative condition documents.
func (b *Builder) Or(branches ...map[string]any) *Builder {
	existing, _ := b.conditions["$or"].([]any)
	for _, br := range branches {
		existing = append(existing, br)
	}
	b.conditions["$or"] = existing
	return b
}

// Sort appends a sort key.
func (b *Builder) Sort(field string, direction int) *Builder {
	b.opts.Sort = append(b.opts.Sort, storagemodels.SortField{Field: field, Direction: direction})
	return b
}

// Limit caps the number of results.
func (b *Builder) Limit(n int64) *Builder {
	b.opts.Limit = n
	return b
}

// Skip skips the first n results.
func (b *Builder) Skip(n int64) *Builder {
	b.opts.Skip = n
	return b
}

// Fields restricts the returned fields.
func (b *Builder) Fields(fields ...string) *Builder {
	b.opts.Fields = append(b.opts.Fields, fields...)
	return b
}

// Build compiles the accumulated conditions.
func (b *Builder) Build() (*storagemodels.Query, error) {
	return Compile(b.t, b.conditions, b.opts)
}
