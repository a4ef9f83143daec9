/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package typecast

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/suparena/docmapper/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Mappable is implemented by values that have a document representation, such as embedded documents.
type Mappable interface {
	ToMap() map[string]any
}

// localLayouts are tried before strfmt's RFC3339 family so that zoneless input is read
// in the caster's location rather than UTC.
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Caster converts raw values to canonical typed values and to their store form.
//
// Location is the time-representation policy: nil means a fixed UTC reference, anything else
// means times are parsed and presented in that zone. A Caster is immutable and safe to share.
type Caster struct {
	Location *time.Location
}

// ToTyped converts raw to the canonical value of kind using a UTC Caster.
func ToTyped(kind Kind, raw any) (any, error) {
	return Caster{}.ToTyped(kind, raw)
}

// ToStoreForm converts v to the value handed to the store driver using a UTC Caster.
func ToStoreForm(kind Kind, v any) (any, error) {
	return Caster{}.ToStoreForm(kind, v)
}

func (c Caster) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// ToTyped converts raw to the canonical value of kind. Conversion degrades to a best-effort
// value; only structurally incompatible input returns a TypeMismatch error.
func (c Caster) ToTyped(kind Kind, raw any) (any, error) {
	raw = indirect(raw)

	switch kind {
	case String:
		return toString(raw)
	case Integer:
		return toInteger(raw)
	case Float:
		return toFloat(raw)
	case Boolean:
		return toBoolean(raw), nil
	case DateTime:
		return c.toDateTime(raw)
	case ObjectID:
		return toObjectID(raw)
	case Array:
		return toArray(raw), nil
	case Hash:
		return toHash(raw)
	case Embedded:
		return toEmbedded(raw)
	default:
		return nil, errors.NewTypeMismatchError(kind.String(), raw)
	}
}

// ToStoreForm typecasts v and then encodes it the way the store expects: times in UTC,
// embedded documents as plain maps.
func (c Caster) ToStoreForm(kind Kind, v any) (any, error) {
	typed, err := c.ToTyped(kind, v)
	if err != nil {
		return nil, err
	}
	return storeValue(typed), nil
}

// StoreValue encodes an already-typed or dynamic value for the store.
func StoreValue(v any) any {
	return storeValue(indirect(v))
}

func storeValue(v any) any {
	switch tv := v.(type) {
	case nil:
		return nil
	case Mappable:
		return tv.ToMap()
	case time.Time:
		return tv.UTC().Truncate(time.Millisecond)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = storeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = storeValue(e)
		}
		return out
	default:
		return v
	}
}

// indirect dereferences pointers to plain values. Pointers implementing Mappable are kept.
func indirect(raw any) any {
	if raw == nil {
		return nil
	}
	if _, ok := raw.(Mappable); ok {
		return raw
	}
	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func toString(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	case primitive.ObjectID:
		return v.Hex(), nil
	case strfmt.ObjectId:
		return primitive.ObjectID(v).Hex(), nil
	case fmt.Stringer:
		return v.String(), nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Chan, reflect.Func:
		return nil, errors.NewTypeMismatchError(String.String(), raw)
	default:
		return fmt.Sprint(raw), nil
	}
}

func toInteger(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		return parseInteger(v), nil
	case []byte:
		return parseInteger(string(v)), nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u > math.MaxInt64 {
			return int64(math.MaxInt64), nil
		}
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return truncate(rv.Float()), nil
	case reflect.String:
		return parseInteger(rv.String()), nil
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Chan, reflect.Func:
		return nil, errors.NewTypeMismatchError(Integer.String(), raw)
	default:
		return int64(0), nil
	}
}

func parseInteger(s string) int64 {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return truncate(f)
	}
	return 0
}

// truncate drops the fraction of f, saturating at the int64 bounds. NaN and infinities give 0.
func truncate(f float64) int64 {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(math.Trunc(f))
}

func toFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			return float64(1), nil
		}
		return float64(0), nil
	case string:
		return parseFloat(v), nil
	case []byte:
		return parseFloat(string(v)), nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return parseFloat(rv.String()), nil
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Chan, reflect.Func:
		return nil, errors.NewTypeMismatchError(Float.String(), raw)
	default:
		return float64(0), nil
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func toBoolean(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "1":
			return true
		case "false", "f", "0", "":
			return false
		}
		return true
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	default:
		return true
	}
}

func (c Caster) toDateTime(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return c.normalizeTime(v), nil
	case primitive.DateTime:
		return c.normalizeTime(v.Time()), nil
	case strfmt.DateTime:
		return c.normalizeTime(time.Time(v)), nil
	case string:
		t, ok := c.parseTime(v)
		if !ok {
			return nil, nil
		}
		return t, nil
	}

	switch reflect.ValueOf(raw).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Chan, reflect.Func:
		return nil, errors.NewTypeMismatchError(DateTime.String(), raw)
	default:
		return nil, nil
	}
}

func (c Caster) parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, c.location()); err == nil {
			return c.normalizeTime(t), true
		}
	}
	dt, err := strfmt.ParseDateTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return c.normalizeTime(time.Time(dt)), true
}

// normalizeTime rounds to the store's millisecond precision and expresses t in the caster's zone.
func (c Caster) normalizeTime(t time.Time) time.Time {
	return t.Truncate(time.Millisecond).In(c.location())
}

func toObjectID(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case primitive.ObjectID:
		return v, nil
	case strfmt.ObjectId:
		return primitive.ObjectID(v), nil
	case string:
		if v == "" {
			return nil, nil
		}
		if primitive.IsValidObjectID(v) {
			oid, err := primitive.ObjectIDFromHex(v)
			if err == nil {
				return oid, nil
			}
		}
		return v, nil
	case []byte:
		if len(v) == 12 {
			var oid primitive.ObjectID
			copy(oid[:], v)
			return oid, nil
		}
		return toObjectID(string(v))
	default:
		return nil, errors.NewTypeMismatchError(ObjectID.String(), raw)
	}
}

func toArray(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		return v
	case bson.A:
		return []any(v)
	case []byte:
		return []any{v}
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{raw}
}

func toHash(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if m, ok := asMap(raw); ok {
		return m, nil
	}
	return nil, errors.NewTypeMismatchError(Hash.String(), raw)
}

func toEmbedded(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if m, ok := raw.(Mappable); ok {
		return m, nil
	}
	if m, ok := asMap(raw); ok {
		return m, nil
	}
	return nil, errors.NewTypeMismatchError(Embedded.String(), raw)
}

// AsMap converts the document shapes produced by callers and drivers into map[string]any.
func AsMap(raw any) (map[string]any, bool) {
	return asMap(indirect(raw))
}

func asMap(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return v, true
	case bson.M:
		return map[string]any(v), true
	case bson.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = e.Value
		}
		return out, true
	case Mappable:
		return v.ToMap(), true
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
