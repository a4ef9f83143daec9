/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides an in-memory implementation of datastore.Driver for testing
package mock

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/suparena/docmapper/datastore"
	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/storagemodels"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IndexCall records one CreateIndex invocation
type IndexCall struct {
	Collection string
	Keys       storagemodels.IndexKeys
	Unique     bool
	Options    map[string]any
}

type collection struct {
	order []string
	docs  map[string]map[string]any
}

// Driver is an in-memory datastore.Driver. Queries are evaluated with datastore.Match.
type Driver struct {
	mu          sync.RWMutex
	collections map[string]*collection
	indexCalls  []IndexCall
	unique      map[string][]storagemodels.IndexKeys

	insertError error
	updateError error
	deleteError error
	findError   error
	indexError  error
}

var _ datastore.Driver = (*Driver)(nil)

// New creates an empty mock Driver
func New() *Driver {
	return &Driver{
		collections: make(map[string]*collection),
		unique:      make(map[string][]storagemodels.IndexKeys),
	}
}

// WithInsertError makes Insert operations return an error
func (m *Driver) WithInsertError(err error) *Driver {
	m.insertError = err
	return m
}

// WithUpdateError makes Update operations return an error
func (m *Driver) WithUpdateError(err error) *Driver {
	m.updateError = err
	return m
}

// WithDeleteError makes Delete operations return an error
func (m *Driver) WithDeleteError(err error) *Driver {
	m.deleteError = err
	return m
}

// WithFindError makes Find operations return an error
func (m *Driver) WithFindError(err error) *Driver {
	m.findError = err
	return m
}

// WithIndexError makes CreateIndex operations return an error
func (m *Driver) WithIndexError(err error) *Driver {
	m.indexError = err
	return m
}

// Insert stores a copy of doc. A missing _id is generated.
func (m *Driver) Insert(ctx context.Context, coll string, doc map[string]any) (any, error) {
	if m.insertError != nil {
		return nil, m.insertError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := maps.Clone(doc)
	if stored == nil {
		stored = map[string]any{}
	}
	id, ok := stored["_id"]
	if !ok || id == nil {
		id = primitive.NewObjectID()
		stored["_id"] = id
	}

	c := m.collection(coll)
	key := idKey(id)
	if _, exists := c.docs[key]; exists {
		return nil, fmt.Errorf("%w: duplicate _id %v in %s", errors.ErrInvalidInput, id, coll)
	}
	if err := m.checkUnique(coll, key, stored); err != nil {
		return nil, err
	}

	c.docs[key] = stored
	c.order = append(c.order, key)
	return id, nil
}

// Update replaces the document with the given id
func (m *Driver) Update(ctx context.Context, coll string, id any, doc map[string]any) error {
	if m.updateError != nil {
		return m.updateError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(coll)
	key := idKey(id)
	if _, exists := c.docs[key]; !exists {
		return errors.NewDocumentNotFoundError(coll, id)
	}

	stored := maps.Clone(doc)
	if stored == nil {
		stored = map[string]any{}
	}
	stored["_id"] = id
	if err := m.checkUnique(coll, key, stored); err != nil {
		return err
	}
	c.docs[key] = stored
	return nil
}

// Find evaluates the query in insertion order
func (m *Driver) Find(ctx context.Context, query *storagemodels.Query) (datastore.Cursor, error) {
	if m.findError != nil {
		return nil, m.findError
	}
	if query == nil {
		return nil, errors.NewValidationError("query", "query is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []map[string]any
	if c, ok := m.collections[query.Collection]; ok {
		for _, key := range c.order {
			doc := c.docs[key]
			ok, err := datastore.Match(doc, query.Filter)
			if err != nil {
				return nil, err
			}
			if ok {
				hits = append(hits, maps.Clone(doc))
			}
		}
	}

	datastore.SortDocuments(hits, query.Sort)
	hits = datastore.Window(hits, query.Skip, query.Limit)
	for i, doc := range hits {
		hits[i] = datastore.Project(doc, query.Projection)
	}
	return datastore.NewSliceCursor(hits), nil
}

// Delete removes the document with the given id
func (m *Driver) Delete(ctx context.Context, coll string, id any) error {
	if m.deleteError != nil {
		return m.deleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(coll)
	key := idKey(id)
	if _, exists := c.docs[key]; !exists {
		return errors.NewDocumentNotFoundError(coll, id)
	}
	delete(c.docs, key)
	c.order = slices.DeleteFunc(c.order, func(k string) bool { return k == key })
	return nil
}

// CreateIndex records the call. Unique indexes are enforced on later writes.
func (m *Driver) CreateIndex(ctx context.Context, coll string, keys storagemodels.IndexKeys, unique bool, opts map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.indexCalls = append(m.indexCalls, IndexCall{
		Collection: coll,
		Keys:       keys,
		Unique:     unique,
		Options:    maps.Clone(opts),
	})
	if m.indexError != nil {
		return m.indexError
	}
	if unique {
		m.unique[coll] = append(m.unique[coll], keys)
	}
	return nil
}

// Helper methods for testing

// IndexCalls returns the recorded CreateIndex calls in order
func (m *Driver) IndexCalls() []IndexCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.indexCalls)
}

// Documents returns copies of the stored documents of a collection in insertion order
func (m *Driver) Documents(coll string) []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[coll]
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, maps.Clone(c.docs[key]))
	}
	return out
}

// Count returns the number of documents in a collection
func (m *Driver) Count(coll string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[coll]; ok {
		return len(c.docs)
	}
	return 0
}

// Clear removes all data and recorded calls
func (m *Driver) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections = make(map[string]*collection)
	m.unique = make(map[string][]storagemodels.IndexKeys)
	m.indexCalls = nil
}

func (m *Driver) collection(name string) *collection {
	c, ok := m.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]map[string]any)}
		m.collections[name] = c
	}
	return c
}

func (m *Driver) checkUnique(coll, key string, doc map[string]any) error {
	c := m.collection(coll)
	for _, idx := range m.unique[coll] {
		for otherKey, other := range c.docs {
			if otherKey == key {
				continue
			}
			same := true
			for _, f := range idx {
				if !datastore.Equal(doc[f.Field], other[f.Field]) {
					same = false
					break
				}
			}
			if same {
				return fmt.Errorf("%w: duplicate key for unique index %s on %s", errors.ErrInvalidInput, idx.Name(), coll)
			}
		}
	}
	return nil
}

func idKey(id any) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprintf("%T:%v", id, id)
}
