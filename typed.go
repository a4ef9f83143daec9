/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docmapper

import (
	"context"
	"fmt"

	"github.com/suparena/docmapper/datastore"
	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/registry"
	"go.mongodb.org/mongo-driver/bson"
)

// Decode copies a document's stored form into a Go value using its bson tags.
func Decode[T any](d *Document, out *T) error {
	if d == nil || out == nil {
		return errors.NewValidationError("document", "document and target are required")
	}
	data, err := bson.Marshal(d.ToMap())
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.typ.Name(), err)
	}
	if err := bson.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s into %T: %w", d.typ.Name(), out, err)
	}
	return nil
}

// FromModel builds a new document of t from a Go value using its bson tags. Fields the value
// encodes as zero values are written like any other attribute.
func FromModel[T any](t *registry.EntityType, v T) (*Document, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var attrs bson.M
	if err := bson.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return New(t, datastore.Plain(attrs).(map[string]any))
}

// FindAs runs a finder map against the entity type bound to T and decodes every match.
func FindAs[T any](ctx context.Context, s *Session, finder map[string]any) ([]T, error) {
	t, err := boundType[T](s)
	if err != nil {
		return nil, err
	}
	docs, err := s.Find(ctx, t, finder)
	if err != nil {
		return nil, err
	}

	out := make([]T, len(docs))
	for i, d := range docs {
		if err := Decode(d, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FindByIDAs loads the document with the given identity and decodes it into T.
func FindByIDAs[T any](ctx context.Context, s *Session, id any) (T, error) {
	var out T
	t, err := boundType[T](s)
	if err != nil {
		return out, err
	}
	d, err := s.FindByID(ctx, t, id)
	if err != nil {
		return out, err
	}
	err = Decode(d, &out)
	return out, err
}

// SaveModel converts v with FromModel and creates it through the session.
func SaveModel[T any](ctx context.Context, s *Session, v T) (*Document, error) {
	t, err := boundType[T](s)
	if err != nil {
		return nil, err
	}
	d, err := FromModel(t, v)
	if err != nil {
		return nil, err
	}
	if err := s.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func boundType[T any](s *Session) (*registry.EntityType, error) {
	t, ok := registry.ModelType[T](s.registry)
	if !ok {
		var zero T
		return nil, fmt.Errorf("%w: no entity type bound to %T", errors.ErrInvalidInput, zero)
	}
	return t, nil
}
