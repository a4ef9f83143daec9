/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"

	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/internal/inflect"
)

// Cardinality is the multiplicity of an embedded association.
type Cardinality int

const (
	// One holds a single sub-document, or none.
	One Cardinality = iota + 1
	// Many holds an ordered sequence of sub-documents.
	Many
)

func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case Many:
		return "many"
	default:
		return fmt.Sprintf("Cardinality(%d)", int(c))
	}
}

// Association is an embedded one or many relation from a parent type to a target type.
type Association struct {
	Name        string
	Cardinality Cardinality
	// TargetName is the entity type name of the sub-documents. It is resolved lazily so that
	// associations may reference types defined later.
	TargetName string

	owner *EntityType
}

// Owner returns the entity type that declared the association.
func (a *Association) Owner() *EntityType {
	return a.owner
}

// Target resolves the target entity type.
func (a *Association) Target() (*EntityType, error) {
	t, ok := a.owner.registry.Type(a.TargetName)
	if !ok {
		return nil, fmt.Errorf("%w: association %s.%s targets undefined type %q",
			errors.ErrInvalidInput, a.owner.name, a.Name, a.TargetName)
	}
	if !t.embedded {
		return nil, fmt.Errorf("%w: association %s.%s targets %q, which is not an embedded type",
			errors.ErrInvalidInput, a.owner.name, a.Name, a.TargetName)
	}
	return t, nil
}

// One declares a single embedded sub-document. An empty target is inferred from the name.
func (t *EntityType) One(name, target string) (*Association, error) {
	return t.declareAssociation(name, One, target)
}

// HasOne is an alias of One.
func (t *EntityType) HasOne(name, target string) (*Association, error) {
	return t.declareAssociation(name, One, target)
}

// Many declares an ordered sequence of embedded sub-documents. An empty target is inferred
// from the plural name ("second_items" targets "SecondItem").
func (t *EntityType) Many(name, target string) (*Association, error) {
	return t.declareAssociation(name, Many, target)
}

// HasMany is an alias of Many.
func (t *EntityType) HasMany(name, target string) (*Association, error) {
	return t.declareAssociation(name, Many, target)
}

func (t *EntityType) declareAssociation(name string, card Cardinality, target string) (*Association, error) {
	r := t.registry
	if err := r.checkWritable(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.NewValidationError("name", "association name is required")
	}
	if target == "" {
		if card == Many {
			target = inflect.Classify(name)
		} else {
			target = inflect.Camelize(name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res := t.buildResolution(r.gen.Load())
	if k, ok := res.keys[name]; ok {
		return nil, errors.NewKeyConflictError(t.name, name, k.Kind.String(), card.String())
	}
	if existing, ok := res.assocs[name]; ok {
		if existing.Cardinality == card && existing.TargetName == target {
			return existing, nil
		}
		return nil, errors.NewKeyConflictError(t.name, name,
			existing.Cardinality.String()+" "+existing.TargetName, card.String()+" "+target)
	}
	if _, ok := res.accessors[name]; ok {
		return nil, errors.NewKeyConflictError(t.name, name, "accessor", card.String())
	}

	a := &Association{Name: name, Cardinality: card, TargetName: target, owner: t}
	t.associations = append(t.associations, a)
	r.gen.Add(1)

	r.logger.V(1).Info("association declared", "type", t.name, "name", name, "cardinality", card.String(), "target", target)
	return a, nil
}
