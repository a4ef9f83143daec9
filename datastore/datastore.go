/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"

	"github.com/suparena/docmapper/storagemodels"
)

// Driver is the store boundary consumed by the mapping layer. Documents cross it in store form:
// plain maps whose values are already typecast.
type Driver interface {
	// Insert stores a new document and returns its identity.
	Insert(ctx context.Context, collection string, doc map[string]any) (any, error)

	// Update replaces the document with the given identity.
	Update(ctx context.Context, collection string, id any, doc map[string]any) error

	// Find runs a compiled query.
	Find(ctx context.Context, query *storagemodels.Query) (Cursor, error)

	// Delete removes the document with the given identity.
	Delete(ctx context.Context, collection string, id any) error

	// CreateIndex creates an index. Uniqueness is passed separately from the other options.
	CreateIndex(ctx context.Context, collection string, keys storagemodels.IndexKeys, unique bool, opts map[string]any) error
}

// Cursor iterates over the documents returned by Find.
type Cursor interface {
	Next(ctx context.Context) bool
	Current() map[string]any
	Err() error
	Close(ctx context.Context) error
}

// SliceCursor is a Cursor over documents already in memory.
type SliceCursor struct {
	docs []map[string]any
	pos  int
	err  error
}

// NewSliceCursor returns a cursor over docs.
func NewSliceCursor(docs []map[string]any) *SliceCursor {
	return &SliceCursor{docs: docs, pos: -1}
}

// Next advances the cursor.
func (c *SliceCursor) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos+1 >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

// Current returns the document under the cursor.
func (c *SliceCursor) Current() map[string]any {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return nil
	}
	return c.docs[c.pos]
}

// Err returns the error that stopped iteration, if any.
func (c *SliceCursor) Err() error {
	return c.err
}

// Close releases the cursor.
func (c *SliceCursor) Close(context.Context) error {
	c.docs = nil
	return nil
}

// Drain reads every remaining document from cur and closes it.
func Drain(ctx context.Context, cur Cursor) ([]map[string]any, error) {
	defer cur.Close(ctx)

	var out []map[string]any
	for cur.Next(ctx) {
		out = append(out, cur.Current())
	}
	return out, cur.Err()
}
