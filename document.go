/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docmapper

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"

	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/registry"
	"github.com/suparena/docmapper/typecast"
	"go.uber.org/multierr"
)

// TypeField is the discriminator stored with documents of a subtype.
const TypeField = "_type"

// Document is one instance of an entity type. It keeps the typed value of every written key next
// to the raw input of the most recent explicit write.
//
// A Document is not safe for concurrent use. Embedded children are owned by exactly one parent.
type Document struct {
	typ    *registry.EntityType
	caster typecast.Caster

	values  map[string]any
	raw     map[string]any
	dynamic map[string]any
	changed map[string]any

	children map[string][]*Document
	parent   *Document

	isNew bool
}

var (
	_ registry.AttributeStore = (*Document)(nil)
	_ typecast.Mappable       = (*Document)(nil)
)

func newDocument(t *registry.EntityType) *Document {
	return &Document{
		typ:      t,
		caster:   t.Registry().Caster(),
		values:   make(map[string]any),
		raw:      make(map[string]any),
		dynamic:  make(map[string]any),
		changed:  make(map[string]any),
		children: make(map[string][]*Document),
		isNew:    true,
	}
}

// New constructs a new document of type t from literal attributes. Defaults are materialized
// first, producers evaluated once; attrs are then written as a batch.
func New(t *registry.EntityType, attrs map[string]any) (*Document, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: entity type is required", errors.ErrInvalidInput)
	}
	t, err := discriminate(t, attrs)
	if err != nil {
		return nil, err
	}

	d := newDocument(t)
	for _, k := range t.ResolveKeys() {
		if k.HasDefault() {
			d.values[k.Name] = d.castDefault(k)
		}
	}

	if err := d.WriteAll(withoutDiscriminator(attrs)); err != nil {
		return nil, err
	}
	d.changed = make(map[string]any)
	return d, nil
}

// Load constructs a persisted document from its stored form. Values are typecast but no raw
// input is recorded. Fields without a declared key are kept as dynamic attributes. A _type
// discriminator selects the matching subtype of t.
func Load(t *registry.EntityType, stored map[string]any) (*Document, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: entity type is required", errors.ErrInvalidInput)
	}
	sub, err := discriminate(t, stored)
	if err != nil {
		return nil, err
	}

	d := newDocument(sub)
	d.isNew = false
	if err := d.load(stored); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) load(stored map[string]any) error {
	var errs error
	for name, v := range stored {
		if name == TypeField {
			continue
		}
		if a, ok := d.typ.Association(name); ok {
			kids, err := d.buildChildren(a, v, true)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			d.attach(a.Name, kids)
			continue
		}
		if k, ok := d.typ.LookupKey(name); ok {
			typed, err := d.cast(k, v, true)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s.%s: %w", d.typ.Name(), name, err))
				continue
			}
			d.values[name] = d.own(typed)
			continue
		}
		d.dynamic[name] = v
	}
	return errs
}

// discriminate picks the subtype of t named by a _type entry, if any.
func discriminate(t *registry.EntityType, m map[string]any) (*registry.EntityType, error) {
	name, ok := m[TypeField].(string)
	if !ok || name == "" || name == t.Name() {
		return t, nil
	}
	sub, found := t.Registry().Type(name)
	if !found {
		return nil, fmt.Errorf("%w: unknown %s %q", errors.ErrInvalidInput, TypeField, name)
	}
	if !sub.IsA(t) {
		return nil, fmt.Errorf("%w: %s is not a %s", errors.ErrInvalidInput, name, t.Name())
	}
	return sub, nil
}

func withoutDiscriminator(m map[string]any) map[string]any {
	if _, ok := m[TypeField]; !ok {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != TypeField {
			out[k] = v
		}
	}
	return out
}

// Type returns the entity type of the document.
func (d *Document) Type() *registry.EntityType {
	return d.typ
}

// ID returns the identity value.
func (d *Document) ID() any {
	v, _ := d.Read(registry.IDKey)
	return v
}

// IsNew reports whether the document has not been confirmed written to the store yet.
func (d *Document) IsNew() bool {
	return d.isNew
}

// NewRecord is an alias of IsNew.
func (d *Document) NewRecord() bool {
	return d.IsNew()
}

// markPersisted flips the persistence flag. It never sets it back.
func (d *Document) markPersisted() {
	d.isNew = false
	d.changed = make(map[string]any)
	for _, kids := range d.children {
		for _, kid := range kids {
			kid.markPersisted()
		}
	}
	for _, v := range d.values {
		if kid, ok := v.(*Document); ok {
			kid.markPersisted()
		}
	}
}

// Write typecasts raw into the key called name and remembers raw as given. Accessors declared
// with a setter and association names are accepted too.
func (d *Document) Write(name string, raw any) error {
	if acc, ok := d.typ.Accessor(name); ok {
		if acc.Set == nil {
			return fmt.Errorf("%w: accessor %s.%s is read-only", errors.ErrInvalidInput, d.typ.Name(), name)
		}
		return acc.Set(d, raw)
	}
	if a, ok := d.typ.Association(name); ok {
		kids, err := d.buildChildren(a, raw, false)
		if err != nil {
			return err
		}
		d.replaceChildren(a.Name, kids)
		return nil
	}

	k, ok := d.typ.LookupKey(name)
	if !ok {
		return errors.NewKeyNotFoundError(d.typ.Name(), name)
	}
	typed, err := d.cast(k, raw, false)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", d.typ.Name(), name, err)
	}
	d.set(k.Name, typed, raw)
	return nil
}

// WriteAttribute is an alias of Write.
func (d *Document) WriteAttribute(name string, raw any) error {
	return d.Write(name, raw)
}

func (d *Document) set(name string, typed, raw any) {
	prev := d.values[name]
	if old, ok := prev.(*Document); ok && old != typed && old.parent == d {
		old.parent = nil
	}
	d.trackChange(name, prev, typed)
	d.values[name] = d.own(typed)
	d.raw[name] = raw
}

func (d *Document) trackChange(name string, prev, next any) {
	if original, tracked := d.changed[name]; tracked {
		if reflect.DeepEqual(original, next) {
			delete(d.changed, name)
		}
		return
	}
	if !reflect.DeepEqual(prev, next) {
		d.changed[name] = prev
	}
}

// WriteAll writes a batch of attributes. Every key is typecast and every association payload
// built before anything is stored; if any entry fails nothing is written and all failures
// are returned together. Accessor setters run last, and when one fails the document is put
// back the way it was before the call.
func (d *Document) WriteAll(attrs map[string]any) error {
	type pendingKey struct {
		key   *registry.Key
		typed any
		raw   any
	}
	type pendingAssoc struct {
		name string
		kids []*Document
	}

	var (
		errs      error
		keys      []pendingKey
		assocs    []pendingAssoc
		accessors []string
	)

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	claimed := make(map[*Document]string)
	claim := func(name string, kid *Document) error {
		if other, ok := claimed[kid]; ok {
			return fmt.Errorf("%w: %s is written to both %s and %s", errors.ErrAlreadyEmbedded, kid.typ.Name(), other, name)
		}
		claimed[kid] = name
		return nil
	}

	for _, name := range names {
		raw := attrs[name]
		if acc, ok := d.typ.Accessor(name); ok {
			if acc.Set == nil {
				errs = multierr.Append(errs, fmt.Errorf("%w: accessor %s.%s is read-only", errors.ErrInvalidInput, d.typ.Name(), name))
			}
			accessors = append(accessors, name)
			continue
		}
		if a, ok := d.typ.Association(name); ok {
			kids, err := d.buildChildren(a, raw, false)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			for _, kid := range kids {
				errs = multierr.Append(errs, claim(a.Name, kid))
			}
			assocs = append(assocs, pendingAssoc{name: a.Name, kids: kids})
			continue
		}
		k, ok := d.typ.LookupKey(name)
		if !ok {
			errs = multierr.Append(errs, errors.NewKeyNotFoundError(d.typ.Name(), name))
			continue
		}
		typed, err := d.cast(k, raw, false)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s.%s: %w", d.typ.Name(), name, err))
			continue
		}
		if kid, ok := typed.(*Document); ok {
			errs = multierr.Append(errs, claim(k.Name, kid))
		}
		keys = append(keys, pendingKey{key: k, typed: typed, raw: raw})
	}
	if errs != nil {
		return errs
	}

	var saved docState
	if len(accessors) > 0 {
		saved = d.saveState()
	}
	for _, p := range keys {
		d.set(p.key.Name, p.typed, p.raw)
	}
	for _, p := range assocs {
		d.replaceChildren(p.name, p.kids)
	}
	for _, name := range accessors {
		acc, _ := d.typ.Accessor(name)
		if err := acc.Set(d, attrs[name]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s.%s: %w", d.typ.Name(), name, err))
		}
	}
	if errs != nil {
		d.restoreState(saved)
	}
	return errs
}

// docState is a copy of the mutable state of a document, children included by reference.
type docState struct {
	values   map[string]any
	raw      map[string]any
	changed  map[string]any
	children map[string][]*Document
}

func (d *Document) saveState() docState {
	children := make(map[string][]*Document, len(d.children))
	for name, kids := range d.children {
		children[name] = slices.Clone(kids)
	}
	return docState{
		values:   maps.Clone(d.values),
		raw:      maps.Clone(d.raw),
		changed:  maps.Clone(d.changed),
		children: children,
	}
}

func (d *Document) restoreState(s docState) {
	for _, kid := range d.ownedChildren() {
		kid.parent = nil
	}
	d.values = s.values
	d.raw = s.raw
	d.changed = s.changed
	d.children = s.children
	for _, kid := range d.ownedChildren() {
		kid.parent = d
	}
}

// ownedChildren lists the documents held by d's associations and Embedded keys.
func (d *Document) ownedChildren() []*Document {
	var out []*Document
	for _, kids := range d.children {
		out = append(out, kids...)
	}
	for _, v := range d.values {
		if kid, ok := v.(*Document); ok {
			out = append(out, kid)
		}
	}
	return out
}

// Read returns the typed value of a key, its default when it was never written, the result of
// an accessor, the children of an association or a dynamic attribute loaded from the store.
func (d *Document) Read(name string) (any, error) {
	if acc, ok := d.typ.Accessor(name); ok {
		if acc.Get == nil {
			return nil, fmt.Errorf("%w: accessor %s.%s is write-only", errors.ErrInvalidInput, d.typ.Name(), name)
		}
		return acc.Get(d)
	}
	if _, ok := d.typ.Association(name); ok {
		return d.ChildrenOf(name)
	}
	if k, ok := d.typ.LookupKey(name); ok {
		if v, ok := d.values[name]; ok {
			return v, nil
		}
		if k.HasDefault() {
			v := d.castDefault(k)
			d.values[name] = v
			return v, nil
		}
		return nil, nil
	}
	if v, ok := d.dynamic[name]; ok {
		return v, nil
	}
	return nil, errors.NewKeyNotFoundError(d.typ.Name(), name)
}

// ReadAttribute is an alias of Read.
func (d *Document) ReadAttribute(name string) (any, error) {
	return d.Read(name)
}

// ReadBeforeTypecast returns the raw input of the most recent explicit write of a key. ok is
// false when the key was never written, which is distinct from a nil raw value.
func (d *Document) ReadBeforeTypecast(name string) (raw any, ok bool, err error) {
	if _, declared := d.typ.LookupKey(name); !declared {
		return nil, false, errors.NewKeyNotFoundError(d.typ.Name(), name)
	}
	raw, ok = d.raw[name]
	return raw, ok, nil
}

// ReadAttributeBeforeTypecast is an alias of ReadBeforeTypecast.
func (d *Document) ReadAttributeBeforeTypecast(name string) (any, bool, error) {
	return d.ReadBeforeTypecast(name)
}

// Changed returns the sorted names of keys and associations modified since construction or the
// last successful save.
func (d *Document) Changed() []string {
	names := make([]string, 0, len(d.changed))
	for name := range d.changed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsChanged reports whether name was modified.
func (d *Document) IsChanged(name string) bool {
	_, ok := d.changed[name]
	return ok
}

// ChangedValue returns the value name had before its first modification.
func (d *Document) ChangedValue(name string) (any, bool) {
	v, ok := d.changed[name]
	return v, ok
}

// Dynamic returns the fields loaded from the store that have no declared key.
func (d *Document) Dynamic() map[string]any {
	out := make(map[string]any, len(d.dynamic))
	for k, v := range d.dynamic {
		out[k] = v
	}
	return out
}

// ToMap returns the store form of the document: every present key, embedded children, dynamic
// attributes and, for subtypes, the _type discriminator.
func (d *Document) ToMap() map[string]any {
	out := make(map[string]any, len(d.values)+len(d.dynamic)+2)
	for k, v := range d.dynamic {
		out[k] = typecast.StoreValue(v)
	}
	for _, k := range d.typ.ResolveKeys() {
		v, _ := d.Read(k.Name)
		if _, present := d.values[k.Name]; !present {
			continue
		}
		out[k.Name] = typecast.StoreValue(v)
	}
	for _, a := range d.typ.ResolveAssociations() {
		kids := d.children[a.Name]
		switch a.Cardinality {
		case registry.Many:
			list := make([]any, len(kids))
			for i, kid := range kids {
				list[i] = kid.ToMap()
			}
			out[a.Name] = list
		case registry.One:
			if len(kids) > 0 {
				out[a.Name] = kids[0].ToMap()
			}
		}
	}
	if d.typ.IsSubtype() {
		out[TypeField] = d.typ.Name()
	}
	return out
}

// cast typecasts a value for key k. Embedded keys naming a target type hold a child Document,
// which is not owned by d until the value is stored.
func (d *Document) cast(k *registry.Key, raw any, loaded bool) (any, error) {
	typed, err := d.caster.ToTyped(k.Kind, raw)
	if err != nil || k.Kind != typecast.Embedded || typed == nil {
		return typed, err
	}
	target, ok := k.TargetType()
	if !ok {
		return typed, nil
	}
	if kid, ok := typed.(*Document); ok {
		if d.holds(k.Name, kid) {
			return kid, nil
		}
		if err := d.checkChild(k.Name, target, kid); err != nil {
			return nil, err
		}
		return kid, nil
	}
	m, _ := typecast.AsMap(typed)
	kid, err := d.newChild(target, m, loaded)
	if err != nil {
		return nil, err
	}
	return kid, nil
}

func (d *Document) castDefault(k *registry.Key) any {
	v, err := d.cast(k, k.DefaultValue(), false)
	if err != nil {
		return k.DefaultValue()
	}
	return d.own(v)
}

// own makes d the parent of an embedded value about to be stored under one of its keys.
func (d *Document) own(v any) any {
	if kid, ok := v.(*Document); ok {
		kid.parent = d
	}
	return v
}

// newChild builds an unowned child of target from a payload map.
func (d *Document) newChild(target *registry.EntityType, attrs map[string]any, loaded bool) (*Document, error) {
	if loaded {
		return Load(target, attrs)
	}
	return New(target, attrs)
}

func (d *Document) snapshot(name string) []*Document {
	return slices.Clone(d.children[name])
}
