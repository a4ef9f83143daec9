/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docmapper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/suparena/docmapper/criteria"
	"github.com/suparena/docmapper/datastore"
	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/registry"
	"github.com/suparena/docmapper/storagemodels"
)

// Session binds a schema registry to a store driver. It is the explicit replacement for a
// process-wide connection: every persistence call goes through a Session value.
//
// A Session is safe for concurrent use if its driver is. Documents are not.
type Session struct {
	driver   datastore.Driver
	registry *registry.Registry
	logger   logr.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogr sets the session logger.
func WithLogr(logger logr.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a Session.
func NewSession(driver datastore.Driver, reg *registry.Registry, opts ...SessionOption) (*Session, error) {
	if driver == nil {
		return nil, errors.NewValidationError("driver", "store driver is required")
	}
	if reg == nil {
		return nil, errors.NewValidationError("registry", "registry is required")
	}

	s := &Session{
		driver:   driver,
		registry: reg,
		logger:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Registry returns the session's schema registry.
func (s *Session) Registry() *registry.Registry {
	return s.registry
}

// Driver returns the session's store driver.
func (s *Session) Driver() datastore.Driver {
	return s.driver
}

// Create validates and inserts a new document. On success the document is no longer new.
func (s *Session) Create(ctx context.Context, d *Document) error {
	if err := s.checkTopLevel(d); err != nil {
		return err
	}
	if !d.IsNew() {
		return fmt.Errorf("%w: %s %v is already persisted", errors.ErrInvalidInput, d.typ.Name(), d.ID())
	}
	if errs := d.Validate(); !errs.Empty() {
		return notValid(d.typ, errs)
	}

	id, err := s.driver.Insert(ctx, d.typ.Collection(), d.ToMap())
	if err != nil {
		return fmt.Errorf("insert %s: %w", d.typ.Name(), err)
	}
	if d.ID() == nil && id != nil {
		if err := d.Write(registry.IDKey, id); err != nil {
			return err
		}
	}
	d.markPersisted()

	s.logger.V(1).Info("document created", "type", d.typ.Name(), "collection", d.typ.Collection(), "id", d.ID())
	return nil
}

// Save creates a new document or replaces the stored form of a persisted one.
func (s *Session) Save(ctx context.Context, d *Document) error {
	if err := s.checkTopLevel(d); err != nil {
		return err
	}
	if d.IsNew() {
		return s.Create(ctx, d)
	}
	if errs := d.Validate(); !errs.Empty() {
		return notValid(d.typ, errs)
	}

	if err := s.driver.Update(ctx, d.typ.Collection(), d.ID(), d.ToMap()); err != nil {
		return fmt.Errorf("update %s %v: %w", d.typ.Name(), d.ID(), err)
	}
	d.markPersisted()

	s.logger.V(1).Info("document saved", "type", d.typ.Name(), "id", d.ID())
	return nil
}

// UpdateAttributes writes attrs as one batch and saves the document.
func (s *Session) UpdateAttributes(ctx context.Context, d *Document, attrs map[string]any) error {
	if err := d.WriteAll(attrs); err != nil {
		return err
	}
	return s.Save(ctx, d)
}

// Delete removes a persisted document from the store.
func (s *Session) Delete(ctx context.Context, d *Document) error {
	if err := s.checkTopLevel(d); err != nil {
		return err
	}
	if d.IsNew() {
		return fmt.Errorf("%w: %s was never persisted", errors.ErrInvalidInput, d.typ.Name())
	}
	if err := s.driver.Delete(ctx, d.typ.Collection(), d.ID()); err != nil {
		return fmt.Errorf("delete %s %v: %w", d.typ.Name(), d.ID(), err)
	}
	s.logger.V(1).Info("document deleted", "type", d.typ.Name(), "id", d.ID())
	return nil
}

// Find compiles a finder map (conditions plus sort/limit/skip/fields options) and loads every match.
func (s *Session) Find(ctx context.Context, t *registry.EntityType, finder map[string]any) ([]*Document, error) {
	q, err := criteria.CompileMap(t, finder)
	if err != nil {
		return nil, err
	}
	return s.All(ctx, t, q)
}

// All runs a compiled query and loads every result as a document of t or one of its subtypes.
func (s *Session) All(ctx context.Context, t *registry.EntityType, q *storagemodels.Query) ([]*Document, error) {
	start := time.Now()
	cur, err := s.driver.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", t.Name(), err)
	}
	stored, err := datastore.Drain(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", t.Name(), err)
	}

	docs := make([]*Document, 0, len(stored))
	for _, m := range stored {
		d, err := Load(t, m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}

	s.logger.V(2).Info("query executed", "collection", q.Collection, "filter", q.Filter, "results", len(docs), "elapsed", time.Since(start))
	return docs, nil
}

// First returns the first match of a finder map, or nil when nothing matches.
func (s *Session) First(ctx context.Context, t *registry.EntityType, finder map[string]any) (*Document, error) {
	q, err := criteria.CompileMap(t, finder)
	if err != nil {
		return nil, err
	}
	q.Limit = 1

	docs, err := s.All(ctx, t, q)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// FindByID loads the document with the given identity. It fails with DocumentNotFound when
// there is none.
func (s *Session) FindByID(ctx context.Context, t *registry.EntityType, id any) (*Document, error) {
	q, err := criteria.Compile(t, map[string]any{registry.IDKey: id}, criteria.Options{Limit: 1})
	if err != nil {
		return nil, err
	}
	docs, err := s.All(ctx, t, q)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.NewDocumentNotFoundError(t.Human(), id)
	}
	return docs[0], nil
}

// Stream runs a compiled query and delivers documents on a channel as the cursor yields them.
// The channel is closed when the cursor is exhausted, a fatal error was sent or ctx is done.
func (s *Session) Stream(ctx context.Context, t *registry.EntityType, q *storagemodels.Query, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult[*Document] {
	options := storagemodels.DefaultStreamOptions()
	for _, opt := range opts {
		opt(&options)
	}

	resultCh := make(chan storagemodels.StreamResult[*Document], options.BufferSize)
	go s.streamWorker(ctx, t, q, options, resultCh)
	return resultCh
}

func (s *Session) streamWorker(
	ctx context.Context,
	t *registry.EntityType,
	q *storagemodels.Query,
	options storagemodels.StreamOptions,
	resultCh chan<- storagemodels.StreamResult[*Document],
) {
	defer close(resultCh)

	var (
		index     int64
		errs      []error
		startTime = time.Now()
	)

	send := func(r storagemodels.StreamResult[*Document]) bool {
		select {
		case <-ctx.Done():
			return false
		case resultCh <- r:
			return true
		}
	}
	meta := func() storagemodels.StreamMeta {
		return storagemodels.StreamMeta{Index: index, Timestamp: time.Now()}
	}
	reportProgress := func() {
		if options.ProgressHandler == nil {
			return
		}
		progress := storagemodels.StreamProgress{
			ItemsProcessed: index,
			Errors:         errs,
			StartTime:      startTime,
		}
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			progress.CurrentRate = float64(index) / elapsed
		}
		options.ProgressHandler(progress)
	}

	cur, err := s.driver.Find(ctx, q)
	if err != nil {
		send(storagemodels.StreamResult[*Document]{Error: fmt.Errorf("find %s: %w", t.Name(), err), Meta: meta()})
		return
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		raw := cur.Current()
		d, err := Load(t, raw)
		if err != nil {
			if options.ErrorHandler == nil || !options.ErrorHandler(err) {
				send(storagemodels.StreamResult[*Document]{Raw: raw, Error: err, Meta: meta()})
				return
			}
			errs = append(errs, err)
			index++
			continue
		}

		if !send(storagemodels.StreamResult[*Document]{Item: d, Raw: raw, Meta: meta()}) {
			return
		}
		index++
		reportProgress()
	}

	if err := cur.Err(); err != nil && ctx.Err() == nil {
		send(storagemodels.StreamResult[*Document]{Error: fmt.Errorf("cursor %s: %w", t.Name(), err), Meta: meta()})
	}
}

// EnsureIndexes flushes the registry's deferred index declarations to the store.
func (s *Session) EnsureIndexes(ctx context.Context) error {
	s.logger.Info("ensuring indexes", "count", s.registry.Indexes().Len())
	return s.registry.Indexes().Flush(ctx, s.driver)
}

func (s *Session) checkTopLevel(d *Document) error {
	if d == nil {
		return errors.NewValidationError("document", "document is required")
	}
	if d.typ.IsEmbedded() {
		return fmt.Errorf("%w: embedded %s is saved through its parent", errors.ErrInvalidInput, d.typ.Name())
	}
	if d.typ.Registry() != s.registry {
		return fmt.Errorf("%w: %s belongs to another registry", errors.ErrInvalidInput, d.typ.Name())
	}
	return nil
}
