/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/go-logr/logr"
	"github.com/suparena/docmapper/storagemodels"
	"github.com/suparena/docmapper/typecast"
	"go.uber.org/multierr"
)

// IndexDeclaration is one deferred index request.
type IndexDeclaration struct {
	Type    *EntityType
	Keys    storagemodels.IndexKeys
	Options map[string]any
}

// IndexCreator issues index creation against a store. datastore.Driver implementations satisfy it.
type IndexCreator interface {
	CreateIndex(ctx context.Context, collection string, keys storagemodels.IndexKeys, unique bool, opts map[string]any) error
}

// IndexManager accumulates index declarations until they are flushed to a store.
type IndexManager struct {
	mu       sync.Mutex
	declared []IndexDeclaration
	logger   logr.Logger
}

// NewIndexManager creates an empty IndexManager.
func NewIndexManager(logger logr.Logger) *IndexManager {
	return &IndexManager{logger: logger}
}

// Declare appends a declaration. Keys and options are copied.
func (m *IndexManager) Declare(t *EntityType, keys storagemodels.IndexKeys, opts map[string]any) {
	decl := IndexDeclaration{
		Type:    t,
		Keys:    append(storagemodels.IndexKeys(nil), keys...),
		Options: maps.Clone(opts),
	}

	m.mu.Lock()
	m.declared = append(m.declared, decl)
	m.mu.Unlock()
}

// Declarations returns a snapshot of the pending declarations in declaration order.
func (m *IndexManager) Declarations() []IndexDeclaration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]IndexDeclaration, len(m.declared))
	copy(out, m.declared)
	return out
}

// Len returns the number of declarations.
func (m *IndexManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.declared)
}

// Flush issues one CreateIndex call per declaration, in declaration order. Declarations are
// kept, so flushing again reissues every index with the same options. Duplicates are not
// collapsed; creation is expected to be idempotent on the store side. A failing declaration
// does not stop the pass; all failures are returned together.
func (m *IndexManager) Flush(ctx context.Context, creator IndexCreator) error {
	var errs error
	for _, decl := range m.Declarations() {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}

		opts := maps.Clone(decl.Options)
		if opts == nil {
			opts = map[string]any{}
		}
		unique := false
		if v, ok := opts["unique"]; ok {
			b, _ := typecast.ToTyped(typecast.Boolean, v)
			unique, _ = b.(bool)
			delete(opts, "unique")
		}

		collection := decl.Type.Collection()
		m.logger.V(1).Info("creating index", "collection", collection, "index", decl.Keys.Name(), "unique", unique)

		if err := creator.CreateIndex(ctx, collection, decl.Keys, unique, opts); err != nil {
			m.logger.Error(err, "index creation failed", "collection", collection, "index", decl.Keys.Name())
			errs = multierr.Append(errs, fmt.Errorf("create index %s on %s: %w", decl.Keys.Name(), collection, err))
		}
	}
	return errs
}
