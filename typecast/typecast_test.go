/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package typecast

import (
	"math"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/docmapper/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type status string

type mappable map[string]any

func (m mappable) ToMap() map[string]any { return map[string]any(m) }

func TestToTyped(t *testing.T) {
	oid := primitive.NewObjectID()

	tests := []struct {
		name string
		kind Kind
		raw  any
		want any
	}{
		{"string from int", String, 21, "21"},
		{"string from float", String, 21.5, "21.5"},
		{"string from bool", String, true, "true"},
		{"string from bytes", String, []byte("abc"), "abc"},
		{"string from named", String, status("open"), "open"},
		{"string from object id", String, oid, oid.Hex()},
		{"string nil", String, nil, nil},
		{"integer from string", Integer, "21", int64(21)},
		{"integer from padded string", Integer, " 21 ", int64(21)},
		{"integer from float string", Integer, "21.9", int64(21)},
		{"integer from garbage", Integer, "abc", int64(0)},
		{"integer from empty", Integer, "", int64(0)},
		{"integer from float", Integer, 3.7, int64(3)},
		{"integer from uint", Integer, uint8(7), int64(7)},
		{"integer from bool", Integer, true, int64(1)},
		{"integer from huge uint", Integer, uint64(math.MaxUint64), int64(math.MaxInt64)},
		{"integer from huge float string", Integer, "1e30", int64(math.MaxInt64)},
		{"integer from huge negative float string", Integer, "-1e30", int64(math.MinInt64)},
		{"integer from huge float", Integer, -1e300, int64(math.MinInt64)},
		{"integer from out of range string", Integer, "99999999999999999999", int64(math.MaxInt64)},
		{"float from string", Float, "2.5", 2.5},
		{"float from garbage", Float, "x", float64(0)},
		{"float from int", Float, 3, float64(3)},
		{"boolean true string", Boolean, "true", true},
		{"boolean one string", Boolean, "1", true},
		{"boolean one", Boolean, 1, true},
		{"boolean false string", Boolean, "false", false},
		{"boolean zero string", Boolean, "0", false},
		{"boolean zero", Boolean, 0, false},
		{"boolean empty", Boolean, "", false},
		{"boolean nil", Boolean, nil, false},
		{"boolean other string is truthy", Boolean, "yes", true},
		{"boolean other number is truthy", Boolean, 2, true},
		{"object id from hex", ObjectID, oid.Hex(), oid},
		{"object id custom string kept", ObjectID, "custom-id", "custom-id"},
		{"object id empty", ObjectID, "", nil},
		{"object id from strfmt", ObjectID, strfmt.ObjectId(oid), oid},
		{"array wraps scalar", Array, "a", []any{"a"}},
		{"array converts typed slice", Array, []string{"a", "b"}, []any{"a", "b"}},
		{"array from bson", Array, bson.A{1, 2}, []any{1, 2}},
		{"hash from bson.M", Hash, bson.M{"a": 1}, map[string]any{"a": 1}},
		{"hash from bson.D", Hash, bson.D{{Key: "a", Value: 1}}, map[string]any{"a": 1}},
		{"hash from string keyed map", Hash, map[string]int{"a": 1}, map[string]any{"a": 1}},
		{"embedded from map", Embedded, map[string]any{"a": 1}, map[string]any{"a": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToTyped(tt.kind, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToTypedDereferencesPointers(t *testing.T) {
	s := "21"
	got, err := ToTyped(Integer, &s)
	require.NoError(t, err)
	assert.Equal(t, int64(21), got)

	var nilPtr *string
	got, err = ToTyped(String, nilPtr)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestToTypedStructuralMismatch(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		raw  any
	}{
		{"map to string", String, map[string]any{"a": map[string]any{"b": 1}}},
		{"slice to integer", Integer, []any{1, 2}},
		{"map to float", Float, map[string]any{}},
		{"slice to datetime", DateTime, []any{"2020-01-01"}},
		{"number to object id", ObjectID, 12},
		{"scalar to hash", Hash, "abc"},
		{"scalar to embedded", Embedded, 5},
		{"invalid kind", Invalid, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToTyped(tt.kind, tt.raw)
			require.Error(t, err)
			assert.True(t, errors.IsTypeMismatch(err))
		})
	}
}

func TestDateTime(t *testing.T) {
	t.Run("RFC3339", func(t *testing.T) {
		got, err := ToTyped(DateTime, "2020-03-04T05:06:07Z")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC), got)
	})

	t.Run("InvalidStringIsAbsent", func(t *testing.T) {
		got, err := ToTyped(DateTime, "not a date")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ZonelessStringUsesCasterLocation", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*60*60)
		c := Caster{Location: loc}

		got, err := c.ToTyped(DateTime, "2020-03-04 05:06:07")
		require.NoError(t, err)
		tm := got.(time.Time)
		assert.True(t, tm.Equal(time.Date(2020, 3, 4, 3, 6, 7, 0, time.UTC)))
		assert.Equal(t, loc, tm.Location())

		stored, err := c.ToStoreForm(DateTime, "2020-03-04 05:06:07")
		require.NoError(t, err)
		assert.Equal(t, time.UTC, stored.(time.Time).Location())
	})

	t.Run("MillisecondPrecision", func(t *testing.T) {
		in := time.Date(2020, 1, 1, 0, 0, 0, 123456789, time.UTC)
		got, err := ToTyped(DateTime, in)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 123000000, time.UTC), got)
	})

	t.Run("BSONDateTime", func(t *testing.T) {
		in := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
		got, err := ToTyped(DateTime, primitive.NewDateTimeFromTime(in))
		require.NoError(t, err)
		assert.True(t, in.Equal(got.(time.Time)))
	})
}

func TestToStoreForm(t *testing.T) {
	got, err := ToStoreForm(Integer, "21")
	require.NoError(t, err)
	assert.Equal(t, int64(21), got)

	got, err = ToStoreForm(Embedded, mappable{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, got)

	got, err = ToStoreForm(Array, []any{mappable{"b": 2}, "c"})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"b": 2}, "c"}, got)
}

func TestToTypedIsReferentiallyTransparent(t *testing.T) {
	inputs := []any{21, "21", "abc", 2.5, true, nil, "2020-01-01"}
	for _, kind := range []Kind{String, Integer, Float, Boolean, DateTime} {
		for _, in := range inputs {
			first, err1 := ToTyped(kind, in)
			second, err2 := ToTyped(kind, in)
			assert.Equal(t, err1, err2)
			assert.Equal(t, first, second, "kind %s input %v", kind, in)
		}
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("objectid")
	require.NoError(t, err)
	assert.Equal(t, ObjectID, k)

	k, err = ParseKind(" Integer ")
	require.NoError(t, err)
	assert.Equal(t, Integer, k)

	_, err = ParseKind("decimal")
	assert.Error(t, err)

	assert.Equal(t, "ObjectId", ObjectID.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
	assert.False(t, Array.Scalar())
	assert.True(t, String.Scalar())
}
