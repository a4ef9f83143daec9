/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package typecast

import (
	"fmt"
	"strings"
)

// Kind is the declared type of a key.
type Kind int

const (
	Invalid Kind = iota
	String
	Integer
	Float
	Boolean
	DateTime
	ObjectID
	Array
	Hash
	Embedded
)

var kindNames = map[Kind]string{
	String:   "String",
	Integer:  "Integer",
	Float:    "Float",
	Boolean:  "Boolean",
	DateTime: "DateTime",
	ObjectID: "ObjectId",
	Array:    "Array",
	Hash:     "Hash",
	Embedded: "Embedded",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Scalar reports whether values of the kind are single values rather than structures.
func (k Kind) Scalar() bool {
	switch k {
	case Array, Hash, Embedded:
		return false
	}
	return k != Invalid
}

// ParseKind parses a kind name case-insensitively. A few common aliases are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string":
		return String, nil
	case "integer", "int":
		return Integer, nil
	case "float", "number":
		return Float, nil
	case "boolean", "bool":
		return Boolean, nil
	case "datetime", "time":
		return DateTime, nil
	case "objectid", "object_id":
		return ObjectID, nil
	case "array":
		return Array, nil
	case "hash", "map":
		return Hash, nil
	case "embedded":
		return Embedded, nil
	default:
		return Invalid, fmt.Errorf("unknown kind %q", s)
	}
}
