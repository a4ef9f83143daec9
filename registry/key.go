/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import "github.com/suparena/docmapper/typecast"

// Key is a declared, typed field of an entity type. Keys are immutable once registered.
type Key struct {
	Name        string
	Kind        typecast.Kind
	Default     any
	DefaultFunc func() any
	// Target names the entity type of an Embedded key.
	Target   string
	Required bool
	Index    bool
	Unique   bool
	// Options holds modifier flags that have no dedicated field.
	Options map[string]any

	owner *EntityType
}

// KeyOption configures a key at declaration time.
type KeyOption func(*Key)

// WithDefault sets the value read back when the key was never written.
func WithDefault(v any) KeyOption {
	return func(k *Key) {
		k.Default = v
	}
}

// WithDefaultFunc sets a producer evaluated once per document for the key's default.
func WithDefaultFunc(fn func() any) KeyOption {
	return func(k *Key) {
		k.DefaultFunc = fn
	}
}

// Required adds a presence validation for the key.
func Required() KeyOption {
	return func(k *Key) {
		k.Required = true
	}
}

// Indexed declares an ascending single-field index on the key.
func Indexed() KeyOption {
	return func(k *Key) {
		k.Index = true
	}
}

// Unique declares a unique single-field index on the key.
func Unique() KeyOption {
	return func(k *Key) {
		k.Index = true
		k.Unique = true
	}
}

// EmbeddedIn names the entity type stored under an Embedded key.
func EmbeddedIn(typeName string) KeyOption {
	return func(k *Key) {
		k.Target = typeName
	}
}

// WithOption records an arbitrary modifier flag.
func WithOption(name string, value any) KeyOption {
	return func(k *Key) {
		if k.Options == nil {
			k.Options = make(map[string]any)
		}
		k.Options[name] = value
	}
}

// Owner returns the entity type that declared the key.
func (k *Key) Owner() *EntityType {
	return k.owner
}

// HasDefault reports whether the key declares a default value or producer.
func (k *Key) HasDefault() bool {
	return k.Default != nil || k.DefaultFunc != nil
}

// DefaultValue evaluates the key's default. Producers run on every call.
func (k *Key) DefaultValue() any {
	if k.DefaultFunc != nil {
		return k.DefaultFunc()
	}
	return k.Default
}

// TargetType resolves the entity type of an Embedded key.
func (k *Key) TargetType() (*EntityType, bool) {
	if k.Target == "" || k.owner == nil {
		return nil, false
	}
	return k.owner.registry.Type(k.Target)
}

// Option returns a modifier flag.
func (k *Key) Option(name string) (any, bool) {
	v, ok := k.Options[name]
	return v, ok
}
