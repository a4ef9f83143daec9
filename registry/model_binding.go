/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/suparena/docmapper/errors"
)

// modelBindings associates Go struct types with entity types for typed decoding.
type modelBindings struct {
	mu    sync.RWMutex
	types map[reflect.Type]*EntityType
}

func modelTypeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}

// BindModel associates the Go type T with the entity type named typeName, so typed finders can
// pick the collection and key set from T alone.
func BindModel[T any](r *Registry, typeName string) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	t, ok := r.Type(typeName)
	if !ok {
		return fmt.Errorf("%w: cannot bind model to undefined type %q", errors.ErrInvalidInput, typeName)
	}

	r.models.mu.Lock()
	defer r.models.mu.Unlock()
	if r.models.types == nil {
		r.models.types = make(map[reflect.Type]*EntityType)
	}
	r.models.types[modelTypeOf[T]()] = t
	return nil
}

// ModelType returns the entity type bound to the Go type T, if any.
func ModelType[T any](r *Registry) (*EntityType, bool) {
	r.models.mu.RLock()
	defer r.models.mu.RUnlock()
	t, ok := r.models.types[modelTypeOf[T]()]
	return t, ok
}
