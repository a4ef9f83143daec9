/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/typecast"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Match evaluates a compiled filter against a store-form document. It understands equality,
// $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $all, $exists, $regex, $size, $not and the
// logical operators $and, $or and $nor. Any other operator fails with ErrUnsupported.
func Match(doc map[string]any, filter bson.M) (bool, error) {
	for field, cond := range filter {
		var (
			ok  bool
			err error
		)
		switch field {
		case "$and", "$or", "$nor":
			ok, err = matchLogical(doc, field, cond)
		default:
			ok, err = matchField(lookup(doc, field), cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(doc map[string]any, op string, cond any) (bool, error) {
	branches, ok := cond.(bson.A)
	if !ok {
		list, isList := cond.([]any)
		if !isList {
			return false, fmt.Errorf("%w: %s expects a list", errors.ErrInvalidInput, op)
		}
		branches = list
	}

	matched := 0
	for _, b := range branches {
		m, ok := typecast.AsMap(b)
		if !ok {
			return false, fmt.Errorf("%w: %s branch is not a document", errors.ErrInvalidInput, op)
		}
		hit, err := Match(doc, bson.M(m))
		if err != nil {
			return false, err
		}
		if hit {
			matched++
		}
	}

	switch op {
	case "$and":
		return matched == len(branches), nil
	case "$or":
		return matched > 0, nil
	default:
		return matched == 0, nil
	}
}

// found is a looked-up field value; present is false when the path does not exist.
type found struct {
	value   any
	present bool
}

func lookup(doc map[string]any, path string) found {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		if a, ok := cur.(bson.A); ok {
			cur = []any(a)
		}
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return found{}
			}
			cur = v
		case bson.M:
			v, ok := node[part]
			if !ok {
				return found{}
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil {
				// implicit traversal of arrays of sub-documents
				var collected []any
				for _, e := range node {
					if m, ok := typecast.AsMap(e); ok {
						if f := lookup(m, part); f.present {
							collected = append(collected, f.value)
						}
					}
				}
				if len(collected) == 0 {
					return found{}
				}
				cur = collected
				continue
			}
			if i < 0 || i >= len(node) {
				return found{}
			}
			cur = node[i]
		default:
			return found{}
		}
	}
	return found{value: Plain(cur), present: true}
}

func matchField(f found, cond any) (bool, error) {
	ops, isOps := operators(cond)
	if !isOps {
		return equalsOrContains(f, cond), nil
	}

	for op, operand := range ops {
		ok, err := matchOperator(f, op, operand, ops)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func operators(cond any) (map[string]any, bool) {
	m, ok := typecast.AsMap(cond)
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

func matchOperator(f found, op string, operand any, ops map[string]any) (bool, error) {
	switch op {
	case "$eq":
		return equalsOrContains(f, operand), nil
	case "$ne":
		return !equalsOrContains(f, operand), nil
	case "$gt", "$gte", "$lt", "$lte":
		return anyValue(f, func(v any) bool {
			c, ok := Compare(v, operand)
			if !ok {
				return false
			}
			switch op {
			case "$gt":
				return c > 0
			case "$gte":
				return c >= 0
			case "$lt":
				return c < 0
			default:
				return c <= 0
			}
		}), nil
	case "$in":
		for _, candidate := range toList(operand) {
			if equalsOrContains(f, candidate) {
				return true, nil
			}
		}
		return false, nil
	case "$nin":
		for _, candidate := range toList(operand) {
			if equalsOrContains(f, candidate) {
				return false, nil
			}
		}
		return true, nil
	case "$all":
		for _, candidate := range toList(operand) {
			if !equalsOrContains(f, candidate) {
				return false, nil
			}
		}
		return true, nil
	case "$exists":
		want, _ := typecast.ToTyped(typecast.Boolean, operand)
		return f.present == want.(bool), nil
	case "$size":
		list, ok := f.value.([]any)
		n, _ := typecast.ToTyped(typecast.Integer, operand)
		return ok && n != nil && int64(len(list)) == n.(int64), nil
	case "$regex":
		options, _ := ops["$options"].(string)
		re, err := compileRegex(operand, options)
		if err != nil {
			return false, err
		}
		return anyValue(f, func(v any) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		}), nil
	case "$options":
		// consumed together with $regex
		return true, nil
	case "$not":
		ok, err := matchField(f, operand)
		return !ok, err
	default:
		return false, fmt.Errorf("%w: operator %s", errors.ErrUnsupported, op)
	}
}

func compileRegex(operand any, options string) (*regexp.Regexp, error) {
	switch v := operand.(type) {
	case primitive.Regex:
		return compileRegex(v.Pattern, v.Options+options)
	case string:
		if strings.Contains(options, "i") {
			v = "(?i)" + v
		}
		return regexp.Compile(v)
	default:
		return nil, fmt.Errorf("%w: $regex expects a string, got %T", errors.ErrInvalidInput, operand)
	}
}

// equalsOrContains matches a value directly or, for arrays, any of its elements.
func equalsOrContains(f found, want any) bool {
	if !f.present {
		return want == nil
	}
	if Equal(f.value, want) {
		return true
	}
	if list, ok := f.value.([]any); ok {
		for _, e := range list {
			if Equal(e, want) {
				return true
			}
		}
	}
	return false
}

func anyValue(f found, pred func(any) bool) bool {
	if !f.present {
		return false
	}
	if list, ok := f.value.([]any); ok {
		for _, e := range list {
			if pred(e) {
				return true
			}
		}
		return false
	}
	return pred(f.value)
}

func toList(v any) []any {
	switch tv := v.(type) {
	case bson.A:
		return tv
	case []any:
		return tv
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Equal compares two store-form values. Numbers compare by value across integer and float types.
func Equal(a, b any) bool {
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(Plain(a), Plain(b))
}

// Plain converts the bson container types drivers decode into (bson.M, bson.A, bson.D) into
// map[string]any and []any, recursively.
func Plain(v any) any {
	switch tv := v.(type) {
	case bson.A:
		return Plain([]any(tv))
	case bson.M:
		return Plain(map[string]any(tv))
	case bson.D:
		out := make(map[string]any, len(tv))
		for _, e := range tv {
			out[e.Key] = Plain(e.Value)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = Plain(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = Plain(e)
		}
		return out
	}
	return v
}

// Compare orders two scalar store-form values. ok is false when the values are not comparable.
func Compare(a, b any) (int, bool) {
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	case primitive.ObjectID:
		if bv, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(av.Hex(), bv.Hex()), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// SortDocuments orders docs in place by the sort keys. Missing fields sort first.
func SortDocuments(docs []map[string]any, sort bson.D) {
	if len(sort) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(a, b map[string]any) int {
		for _, e := range sort {
			dir := 1
			if n, ok := number(e.Value); ok && n < 0 {
				dir = -1
			}
			fa, fb := lookup(a, e.Key), lookup(b, e.Key)
			var c int
			switch {
			case !fa.present && !fb.present:
				c = 0
			case !fa.present:
				c = -1
			case !fb.present:
				c = 1
			default:
				c, _ = Compare(fa.value, fb.value)
			}
			if c != 0 {
				return c * dir
			}
		}
		return 0
	})
}

// Window applies skip and limit. A zero limit means no limit.
func Window(docs []map[string]any, skip, limit int64) []map[string]any {
	if skip >= int64(len(docs)) {
		return nil
	}
	docs = docs[skip:]
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}

// Project keeps the selected top-level fields of doc. The identity field is always kept.
func Project(doc map[string]any, projection bson.M) map[string]any {
	if len(projection) == 0 {
		return doc
	}
	out := make(map[string]any, len(projection)+1)
	if id, ok := doc["_id"]; ok {
		out["_id"] = id
	}
	for field := range projection {
		root := strings.SplitN(field, ".", 2)[0]
		if v, ok := doc[root]; ok {
			out[root] = v
		}
	}
	return out
}
