/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// timeLayout has a fixed width so that stored times order correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// expression accumulates a condition with its placeholder maps.
type expression struct {
	names  map[string]string
	values map[string]types.AttributeValue
	n      int
}

func newExpression() *expression {
	return &expression{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

func (e *expression) name(field string) string {
	placeholder := fmt.Sprintf("#f%d", e.n)
	e.n++
	e.names[placeholder] = field
	return placeholder
}

func (e *expression) value(v types.AttributeValue) string {
	placeholder := fmt.Sprintf(":v%d", e.n)
	e.n++
	e.values[placeholder] = v
	return placeholder
}

// pushdown translates the parts of a filter DynamoDB can pre-select on. The translation may
// admit more items than the filter does, never fewer: results are always re-checked with
// datastore.Match. ok is false when nothing could be translated.
//
// Only top-level, undotted fields are translated. Equality also admits lists containing the
// value, and comparisons admit any list, mirroring array matching.
func (e *expression) pushdown(filter bson.M) (string, bool) {
	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var clauses []string
	for _, f := range fields {
		if clause, ok := e.clause(f, filter[f]); ok {
			clauses = append(clauses, clause)
		}
	}
	if len(clauses) == 0 {
		return "", false
	}
	return strings.Join(clauses, " AND "), true
}

func (e *expression) clause(field string, cond any) (string, bool) {
	switch field {
	case "$and", "$or":
		list, ok := conditionList(cond)
		if !ok || len(list) == 0 {
			return "", false
		}
		parts := make([]string, 0, len(list))
		for _, sub := range list {
			part, ok := e.pushdown(sub)
			if !ok {
				if field == "$or" {
					return "", false
				}
				continue
			}
			parts = append(parts, "("+part+")")
		}
		if len(parts) == 0 {
			return "", false
		}
		if field == "$or" {
			return strings.Join(parts, " OR "), true
		}
		return strings.Join(parts, " AND "), true
	}
	if strings.HasPrefix(field, "$") || strings.Contains(field, ".") {
		return "", false
	}

	ops, isOps := operatorMap(cond)
	if !isOps {
		return e.equality(field, cond)
	}

	var parts []string
	for _, op := range sortedKeys(ops) {
		operand := ops[op]
		switch op {
		case "$eq":
			if part, ok := e.equality(field, operand); ok {
				parts = append(parts, part)
			}
		case "$gt", "$gte", "$lt", "$lte":
			av, ok := scalar(operand)
			if !ok {
				continue
			}
			cmp := map[string]string{"$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}[op]
			name := e.name(field)
			list := e.value(&types.AttributeValueMemberS{Value: "L"})
			parts = append(parts, fmt.Sprintf("(%s %s %s OR attribute_type(%s, %s))", name, cmp, e.value(av), name, list))
		case "$in":
			list, ok := operand.(bson.A)
			if !ok {
				if plain, isPlain := operand.([]any); isPlain {
					list, ok = bson.A(plain), true
				}
			}
			if !ok || len(list) == 0 {
				continue
			}
			alts := make([]string, 0, len(list))
			for _, v := range list {
				alt, ok := e.equality(field, v)
				if !ok {
					alts = nil
					break
				}
				alts = append(alts, alt)
			}
			if len(alts) > 0 {
				parts = append(parts, "("+strings.Join(alts, " OR ")+")")
			}
		case "$exists":
			on, isBool := operand.(bool)
			if !isBool {
				continue
			}
			if on {
				parts = append(parts, fmt.Sprintf("attribute_exists(%s)", e.name(field)))
			} else {
				parts = append(parts, fmt.Sprintf("attribute_not_exists(%s)", e.name(field)))
			}
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " AND "), true
}

func (e *expression) equality(field string, v any) (string, bool) {
	av, ok := scalar(v)
	if !ok {
		return "", false
	}
	name := e.name(field)
	val := e.value(av)
	if _, isBool := av.(*types.AttributeValueMemberBOOL); isBool {
		// contains() takes no boolean operand
		list := e.value(&types.AttributeValueMemberS{Value: "L"})
		return fmt.Sprintf("(%s = %s OR attribute_type(%s, %s))", name, val, name, list), true
	}
	return fmt.Sprintf("(%s = %s OR contains(%s, %s))", name, val, name, val), true
}

// scalar marshals strings, numbers and booleans. Other values are not pushed down.
func scalar(v any) (types.AttributeValue, bool) {
	v = storeForm(v)
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
	default:
		return nil, false
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, false
	}
	return av, true
}

func operatorMap(cond any) (map[string]any, bool) {
	var m map[string]any
	switch tv := cond.(type) {
	case bson.M:
		m = tv
	case map[string]any:
		m = tv
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func conditionList(cond any) ([]bson.M, bool) {
	var items []any
	switch tv := cond.(type) {
	case bson.A:
		items = tv
	case []any:
		items = tv
	case []bson.M:
		return tv, true
	default:
		return nil, false
	}
	out := make([]bson.M, 0, len(items))
	for _, item := range items {
		switch m := item.(type) {
		case bson.M:
			out = append(out, m)
		case map[string]any:
			out = append(out, m)
		default:
			return nil, false
		}
	}
	return out, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// storeForm rewrites values DynamoDB has no native type for: ObjectIDs become hex strings and
// times fixed-width UTC strings. Filter operands go through the same rewrite as documents.
func storeForm(v any) any {
	switch tv := v.(type) {
	case primitive.ObjectID:
		return tv.Hex()
	case time.Time:
		return tv.UTC().Format(timeLayout)
	case primitive.DateTime:
		return tv.Time().UTC().Format(timeLayout)
	case bson.M:
		return storeForm(map[string]any(tv))
	case bson.A:
		return storeForm([]any(tv))
	case bson.D:
		return storeForm(tv.Map())
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = storeForm(e)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = storeForm(e)
		}
		return out
	}
	return v
}
