/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docmapper

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/registry"
	"github.com/suparena/docmapper/typecast"
)

// Parent returns the document that owns d, or nil for a top-level document.
func (d *Document) Parent() *Document {
	return d.parent
}

// Root returns the top-level document d is embedded in, or d itself.
func (d *Document) Root() *Document {
	root := d
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// ChildrenOf returns the ordered children of a many association as []*Document, or the child of a
// one association as *Document (nil when unset).
func (d *Document) ChildrenOf(name string) (any, error) {
	a, err := d.association(name)
	if err != nil {
		return nil, err
	}
	kids := d.children[a.Name]
	if a.Cardinality == registry.One {
		if len(kids) == 0 {
			return nil, nil
		}
		return kids[0], nil
	}
	return d.snapshot(a.Name), nil
}

// Children returns the children of an association in order. A one association yields at most
// one element.
func (d *Document) Children(name string) ([]*Document, error) {
	a, err := d.association(name)
	if err != nil {
		return nil, err
	}
	return d.snapshot(a.Name), nil
}

// Child returns the child of a one association, or nil when unset.
func (d *Document) Child(name string) (*Document, error) {
	a, err := d.association(name)
	if err != nil {
		return nil, err
	}
	if a.Cardinality != registry.One {
		return nil, fmt.Errorf("%w: %s.%s holds many documents", errors.ErrInvalidInput, d.typ.Name(), name)
	}
	kids := d.children[a.Name]
	if len(kids) == 0 {
		return nil, nil
	}
	return kids[0], nil
}

// Build creates a new child from attrs and attaches it: appended to a many association, replacing
// the current child of a one association. A _type entry in attrs selects a subtype of the target.
func (d *Document) Build(name string, attrs map[string]any) (*Document, error) {
	a, err := d.association(name)
	if err != nil {
		return nil, err
	}
	target, err := a.Target()
	if err != nil {
		return nil, err
	}
	kid, err := d.newChild(target, attrs, false)
	if err != nil {
		return nil, err
	}

	if a.Cardinality == registry.Many {
		d.replaceChildren(a.Name, append(d.snapshot(a.Name), kid))
	} else {
		d.replaceChildren(a.Name, []*Document{kid})
	}
	return kid, nil
}

// Append adds an existing, unowned document to the end of a many association.
func (d *Document) Append(name string, child *Document) error {
	a, err := d.association(name)
	if err != nil {
		return err
	}
	if a.Cardinality != registry.Many {
		return fmt.Errorf("%w: %s.%s holds one document, use SetChild", errors.ErrInvalidInput, d.typ.Name(), name)
	}
	target, err := a.Target()
	if err != nil {
		return err
	}
	if err := d.checkChild(name, target, child); err != nil {
		return err
	}
	d.replaceChildren(a.Name, append(d.snapshot(a.Name), child))
	return nil
}

// SetChild replaces the child of a one association. A nil child clears it. The replaced child is
// detached and discarded.
func (d *Document) SetChild(name string, child *Document) error {
	a, err := d.association(name)
	if err != nil {
		return err
	}
	if a.Cardinality != registry.One {
		return fmt.Errorf("%w: %s.%s holds many documents, use Append", errors.ErrInvalidInput, d.typ.Name(), name)
	}
	if child == nil {
		d.replaceChildren(a.Name, nil)
		return nil
	}
	target, err := a.Target()
	if err != nil {
		return err
	}
	if existing := d.children[a.Name]; len(existing) > 0 && existing[0] == child {
		return nil
	}
	if err := d.checkChild(name, target, child); err != nil {
		return err
	}
	d.replaceChildren(a.Name, []*Document{child})
	return nil
}

// RemoveChild detaches and discards the child at index i of a many association.
func (d *Document) RemoveChild(name string, i int) error {
	a, err := d.association(name)
	if err != nil {
		return err
	}
	kids := d.snapshot(a.Name)
	if i < 0 || i >= len(kids) {
		return fmt.Errorf("%w: %s.%s has no child at index %d", errors.ErrInvalidInput, d.typ.Name(), name, i)
	}
	d.replaceChildren(a.Name, append(kids[:i], kids[i+1:]...))
	return nil
}

func (d *Document) association(name string) (*registry.Association, error) {
	a, ok := d.typ.Association(name)
	if !ok {
		return nil, errors.NewKeyNotFoundError(d.typ.Name(), name)
	}
	return a, nil
}

// checkChild enforces exclusive ownership and the association's target type.
func (d *Document) checkChild(name string, target *registry.EntityType, child *Document) error {
	if child == nil {
		return fmt.Errorf("%w: nil child for %s.%s", errors.ErrInvalidInput, d.typ.Name(), name)
	}
	if child.parent != nil {
		return fmt.Errorf("%w: %s already belongs to a %s", errors.ErrAlreadyEmbedded, child.typ.Name(), child.parent.typ.Name())
	}
	if !child.typ.IsA(target) {
		return fmt.Errorf("%w: %s.%s expects %s, got %s", errors.ErrInvalidInput, d.typ.Name(), name, target.Name(), child.typ.Name())
	}
	for cur := d; cur != nil; cur = cur.parent {
		if cur == child {
			return fmt.Errorf("%w: a document cannot embed itself", errors.ErrInvalidInput)
		}
	}
	return nil
}

// holds reports whether child already sits in the association or Embedded key called name.
func (d *Document) holds(name string, child *Document) bool {
	if child.parent != d {
		return false
	}
	if v, ok := d.values[name].(*Document); ok && v == child {
		return true
	}
	return slices.Contains(d.children[name], child)
}

// buildChildren turns an association payload into unattached child documents. Payload entries
// may be maps or unowned *Document values.
func (d *Document) buildChildren(a *registry.Association, payload any, loaded bool) ([]*Document, error) {
	target, err := a.Target()
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}

	var entries []any
	if a.Cardinality == registry.One {
		entries = []any{payload}
	} else {
		list, ok := listOf(payload)
		if !ok {
			return nil, fmt.Errorf("%s.%s: %w", d.typ.Name(), a.Name, errors.NewTypeMismatchError("list of "+target.Name(), payload))
		}
		entries = list
	}

	kids := make([]*Document, 0, len(entries))
	seen := make(map[*Document]bool, len(entries))
	for _, entry := range entries {
		if kid, ok := entry.(*Document); ok {
			if seen[kid] {
				return nil, fmt.Errorf("%w: %s appears twice in %s.%s", errors.ErrAlreadyEmbedded, kid.typ.Name(), d.typ.Name(), a.Name)
			}
			seen[kid] = true
			if !d.holds(a.Name, kid) {
				if err := d.checkChild(a.Name, target, kid); err != nil {
					return nil, err
				}
			}
			kids = append(kids, kid)
			continue
		}
		attrs, ok := typecast.AsMap(entry)
		if !ok {
			return nil, fmt.Errorf("%s.%s: %w", d.typ.Name(), a.Name, errors.NewTypeMismatchError(target.Name(), entry))
		}
		kid, err := d.newChild(target, attrs, loaded)
		if err != nil {
			return nil, err
		}
		kids = append(kids, kid)
	}
	return kids, nil
}

// attach sets the children of an association without dirty tracking.
func (d *Document) attach(name string, kids []*Document) {
	for _, kid := range kids {
		kid.parent = d
	}
	d.children[name] = kids
}

// replaceChildren swaps the children of an association, detaching the ones that are dropped.
func (d *Document) replaceChildren(name string, kids []*Document) {
	prev := d.children[name]
	keep := make(map[*Document]bool, len(kids))
	for _, kid := range kids {
		keep[kid] = true
	}
	for _, old := range prev {
		if !keep[old] {
			old.parent = nil
		}
	}

	if _, tracked := d.changed[name]; !tracked && !sameChildren(prev, kids) {
		d.changed[name] = prev
	}
	d.attach(name, kids)
}

func sameChildren(a, b []*Document) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func listOf(v any) ([]any, bool) {
	switch tv := v.(type) {
	case []any:
		return tv, true
	case []*Document:
		out := make([]any, len(tv))
		for i, kid := range tv {
			out[i] = kid
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
