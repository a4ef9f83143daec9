/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package criteria

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/registry"
	"github.com/suparena/docmapper/storagemodels"
	"github.com/suparena/docmapper/typecast"
	"go.mongodb.org/mongo-driver/bson"
)

// TypeField is the discriminator field written for document subtypes.
const TypeField = "_type"

// Options are the finder options applied next to the filter.
type Options struct {
	Sort   []storagemodels.SortField
	Limit  int64
	Skip   int64
	Fields []string
}

// operators whose operand is a list of values of the field's kind
var listOperators = map[string]bool{
	"$in":  true,
	"$nin": true,
	"$all": true,
}

// operators whose operand is a single value of the field's kind
var valueOperators = map[string]bool{
	"$eq":  true,
	"$ne":  true,
	"$gt":  true,
	"$gte": true,
	"$lt":  true,
	"$lte": true,
}

var logicalOperators = map[string]bool{
	"$or":  true,
	"$and": true,
	"$nor": true,
}

// Compile builds the store query for t from field conditions and options. Every literal
// predicate on a declared key is converted to the key's store form; undeclared fields and
// unknown operators pass through untouched.
func Compile(t *registry.EntityType, conditions map[string]any, opts Options) (*storagemodels.Query, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: entity type is required", errors.ErrInvalidInput)
	}
	if t.IsEmbedded() {
		return nil, fmt.Errorf("%w: embedded type %s cannot be queried directly", errors.ErrInvalidInput, t.Name())
	}
	if opts.Limit < 0 || opts.Skip < 0 {
		return nil, errors.NewValidationError("limit", "limit and skip must not be negative")
	}

	c := compiler{t: t, caster: t.Registry().Caster()}
	filter, err := c.filter(conditions)
	if err != nil {
		return nil, err
	}

	if t.IsSubtype() {
		if _, set := filter[TypeField]; !set {
			filter[TypeField] = typeSelector(t)
		}
	}

	q := &storagemodels.Query{
		Collection: t.Collection(),
		Filter:     filter,
		Limit:      opts.Limit,
		Skip:       opts.Skip,
	}
	for _, s := range opts.Sort {
		q.Sort = append(q.Sort, bson.E{Key: s.Field, Value: s.Direction})
	}
	if len(opts.Fields) > 0 {
		q.Projection = bson.M{}
		for _, f := range opts.Fields {
			q.Projection[f] = 1
		}
	}
	return q, nil
}

// typeSelector matches t and all of its subtypes.
func typeSelector(t *registry.EntityType) any {
	descendants := t.Descendants()
	if len(descendants) == 0 {
		return t.Name()
	}
	names := bson.A{t.Name()}
	for _, d := range descendants {
		names = append(names, d.Name())
	}
	return bson.M{"$in": names}
}

type compiler struct {
	t      *registry.EntityType
	caster typecast.Caster
}

func (c compiler) filter(conditions map[string]any) (bson.M, error) {
	out := make(bson.M, len(conditions))
	for field, value := range conditions {
		if logicalOperators[field] {
			branches, err := c.branches(field, value)
			if err != nil {
				return nil, err
			}
			out[field] = branches
			continue
		}

		compiled, err := c.predicate(field, value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		out[field] = compiled
	}
	return out, nil
}

func (c compiler) branches(op string, value any) (bson.A, error) {
	list, ok := asList(value)
	if !ok {
		return nil, errors.NewValidationError(op, "expects a list of condition documents")
	}
	out := make(bson.A, 0, len(list))
	for i, branch := range list {
		m, ok := typecast.AsMap(branch)
		if !ok {
			return nil, errors.NewValidationError(fmt.Sprintf("%s.%d", op, i), "expects a condition document")
		}
		compiled, err := c.filter(m)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled)
	}
	return out, nil
}

func (c compiler) predicate(field string, value any) (any, error) {
	key, ok := c.t.LookupPath(field)
	if !ok {
		return value, nil
	}

	if ops, ok := operatorMap(value); ok {
		out := make(bson.M, len(ops))
		for op, operand := range ops {
			switch {
			case listOperators[op]:
				list, err := c.castEach(key, operand)
				if err != nil {
					return nil, err
				}
				out[op] = list
			case valueOperators[op]:
				v, err := c.castOne(key, operand)
				if err != nil {
					return nil, err
				}
				out[op] = v
			default:
				out[op] = operand
			}
		}
		return out, nil
	}

	if key.Kind != typecast.Array && key.Kind != typecast.Embedded {
		if _, isList := asList(value); isList {
			list, err := c.castEach(key, value)
			if err != nil {
				return nil, err
			}
			return bson.M{"$in": list}, nil
		}
	}
	if key.Kind == typecast.Array {
		if _, isList := asList(value); isList {
			return c.caster.ToStoreForm(typecast.Array, value)
		}
	}
	return c.castOne(key, value)
}

// castOne converts a single operand. Operands on Array keys address elements, so they are
// store-encoded but never wrapped.
func (c compiler) castOne(key *registry.Key, v any) (any, error) {
	if key.Kind == typecast.Array {
		return typecast.StoreValue(v), nil
	}
	return c.caster.ToStoreForm(key.Kind, v)
}

func (c compiler) castEach(key *registry.Key, v any) (bson.A, error) {
	list, ok := asList(v)
	if !ok {
		list = []any{v}
	}
	out := make(bson.A, 0, len(list))
	for _, e := range list {
		cast, err := c.castOne(key, e)
		if err != nil {
			return nil, err
		}
		out = append(out, cast)
	}
	return out, nil
}

// operatorMap reports whether v is an operator document such as {"$gt": 5}.
func operatorMap(v any) (map[string]any, bool) {
	m, ok := typecast.AsMap(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func asList(v any) ([]any, bool) {
	switch tv := v.(type) {
	case nil, []byte, string:
		return nil, false
	case []any:
		return tv, true
	case bson.A:
		return []any(tv), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type() == reflect.TypeOf(bson.D{}) {
		return nil, false
	}
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		// fixed byte arrays such as ObjectIDs are scalars
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
