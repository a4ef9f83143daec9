/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/internal/inflect"
	"github.com/suparena/docmapper/storagemodels"
	"github.com/suparena/docmapper/typecast"
)

// AttributeStore is the view of a document instance handed to accessors and validators.
type AttributeStore interface {
	ReadAttribute(name string) (any, error)
	WriteAttribute(name string, raw any) error
	ReadAttributeBeforeTypecast(name string) (any, bool, error)
}

// Accessor is a virtual attribute computed from, or written through to, declared keys.
type Accessor struct {
	Get func(AttributeStore) (any, error)
	Set func(AttributeStore, any) error
}

// ValidateFunc checks a document and returns nil, a ValidationError, or several joined errors.
type ValidateFunc func(AttributeStore) error

// EntityType describes one declared document or embedded document type.
//
// A type holds only its own declarations. Everything inherited is computed by walking the
// explicit parent chain and cached until the registry's next declaration.
type EntityType struct {
	registry   *Registry
	name       string
	parent     *EntityType
	embedded   bool
	collection string

	keys         []*Key
	keyIndex     map[string]*Key
	associations []*Association
	accessors    map[string]Accessor
	validators   []ValidateFunc

	resolved atomic.Pointer[resolution]
}

type resolution struct {
	gen        uint64
	keyList    []*Key
	keys       map[string]*Key
	assocList  []*Association
	assocs     map[string]*Association
	accessors  map[string]Accessor
	validators []ValidateFunc
}

// Name returns the type name.
func (t *EntityType) Name() string {
	return t.name
}

// Human returns the human-readable name of the type ("BigStuff" -> "Big Stuff").
func (t *EntityType) Human() string {
	return inflect.Titleize(t.name)
}

// Registry returns the registry the type belongs to.
func (t *EntityType) Registry() *Registry {
	return t.registry
}

// Parent returns the supertype, or nil for root types.
func (t *EntityType) Parent() *EntityType {
	return t.parent
}

// Root returns the top of the type's inheritance chain.
func (t *EntityType) Root() *EntityType {
	root := t
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// IsEmbedded reports whether the type is an embedded document type.
func (t *EntityType) IsEmbedded() bool {
	return t.embedded
}

// IsSubtype reports whether the type inherits from another type.
func (t *EntityType) IsSubtype() bool {
	return t.parent != nil
}

// Collection returns the store collection of a document type. Embedded types return "".
func (t *EntityType) Collection() string {
	return t.collection
}

// Lineage returns the inheritance chain from the root type down to t.
func (t *EntityType) Lineage() []*EntityType {
	var chain []*EntityType
	for cur := t; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	return chain
}

// Ancestors returns the supertypes of t from the root down, excluding t.
func (t *EntityType) Ancestors() []*EntityType {
	lineage := t.Lineage()
	return lineage[:len(lineage)-1]
}

// IsA reports whether t is other or a subtype of other.
func (t *EntityType) IsA(other *EntityType) bool {
	return t.isA(other)
}

func (t *EntityType) isA(other *EntityType) bool {
	for cur := t; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// Descendants returns every registered subtype of t, at any depth, in declaration order.
func (t *EntityType) Descendants() []*EntityType {
	t.registry.mu.RLock()
	defer t.registry.mu.RUnlock()
	return t.registry.descendantsOf(t)
}

// OwnKeys returns the keys declared directly on t, in declaration order.
func (t *EntityType) OwnKeys() []*Key {
	t.registry.mu.RLock()
	defer t.registry.mu.RUnlock()
	return slices.Clone(t.keys)
}

// ResolveKeys returns the full key set of t: ancestor keys first, root to leaf, with a
// subtype's declaration replacing a same-named ancestor key in place.
func (t *EntityType) ResolveKeys() []*Key {
	return slices.Clone(t.resolve().keyList)
}

// LookupKey returns the resolved key named name.
func (t *EntityType) LookupKey(name string) (*Key, bool) {
	k, ok := t.resolve().keys[name]
	return k, ok
}

// ColumnNames returns the sorted names of all resolved keys, including the identity key.
func (t *EntityType) ColumnNames() []string {
	res := t.resolve()
	names := make([]string, 0, len(res.keyList))
	for _, k := range res.keyList {
		names = append(names, k.Name)
	}
	slices.Sort(names)
	return names
}

// ResolveAssociations returns inherited and own associations, root to leaf.
func (t *EntityType) ResolveAssociations() []*Association {
	return slices.Clone(t.resolve().assocList)
}

// Association returns the resolved association named name.
func (t *EntityType) Association(name string) (*Association, bool) {
	a, ok := t.resolve().assocs[name]
	return a, ok
}

// Accessor returns the resolved virtual attribute named name.
func (t *EntityType) Accessor(name string) (Accessor, bool) {
	a, ok := t.resolve().accessors[name]
	return a, ok
}

// Validators returns the resolved custom validators, root to leaf.
func (t *EntityType) Validators() []ValidateFunc {
	return slices.Clone(t.resolve().validators)
}

// LookupPath resolves a dotted field path such as "address.city" or "items.0.name" through
// embedded associations and Embedded keys to the key it addresses.
func (t *EntityType) LookupPath(path string) (*Key, bool) {
	parts := strings.Split(path, ".")
	cur := t
	for i, part := range parts {
		if i == len(parts)-1 {
			return cur.LookupKey(part)
		}
		if a, ok := cur.Association(part); ok {
			target, err := a.Target()
			if err != nil {
				return nil, false
			}
			cur = target
			continue
		}
		if k, ok := cur.LookupKey(part); ok && k.Kind == typecast.Embedded {
			target, ok := k.TargetType()
			if !ok {
				return nil, false
			}
			cur = target
			continue
		}
		if _, err := strconv.Atoi(part); err == nil && i > 0 {
			continue
		}
		return nil, false
	}
	return nil, false
}

// DeclareKey appends a key to the type. Declaring the same name and kind again returns the
// existing key; a different kind fails with a KeyConflict error. A subtype may shadow an
// ancestor key of the same kind.
func (t *EntityType) DeclareKey(name string, kind typecast.Kind, opts ...KeyOption) (*Key, error) {
	r := t.registry
	if err := r.checkWritable(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.NewValidationError("name", "key name is required")
	}
	if kind == typecast.Invalid {
		return nil, errors.NewValidationError(name, "key kind is required")
	}

	k := &Key{Name: name, Kind: kind, owner: t}
	for _, opt := range opts {
		opt(k)
	}
	if k.Index && t.embedded {
		return nil, fmt.Errorf("%w: embedded type %s cannot index key %q", errors.ErrInvalidInput, t.name, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if own, ok := t.keyIndex[name]; ok {
		if own.Kind == kind {
			return own, nil
		}
		return nil, errors.NewKeyConflictError(t.name, name, own.Kind.String(), kind.String())
	}

	res := t.buildResolution(r.gen.Load())
	if inherited, ok := res.keys[name]; ok && inherited.Kind != kind {
		return nil, errors.NewKeyConflictError(t.name, name, inherited.Kind.String(), kind.String())
	}
	if a, ok := res.assocs[name]; ok {
		return nil, errors.NewKeyConflictError(t.name, name, a.Cardinality.String(), kind.String())
	}
	if _, ok := res.accessors[name]; ok {
		return nil, errors.NewKeyConflictError(t.name, name, "accessor", kind.String())
	}
	for _, sub := range r.descendantsOf(t) {
		if own, ok := sub.keyIndex[name]; ok && own.Kind != kind {
			return nil, errors.NewKeyConflictError(sub.name, name, own.Kind.String(), kind.String())
		}
	}

	t.keys = append(t.keys, k)
	t.keyIndex[name] = k
	r.gen.Add(1)

	if k.Index {
		opts := map[string]any{}
		if k.Unique {
			opts["unique"] = true
		}
		r.indexes.Declare(t, storagemodels.IndexKeys{storagemodels.Asc(name)}, opts)
	}

	r.logger.V(1).Info("key declared", "type", t.name, "key", name, "kind", kind.String())
	return k, nil
}

// MustDeclareKey is like DeclareKey but panics on error.
func (t *EntityType) MustDeclareKey(name string, kind typecast.Kind, opts ...KeyOption) *Key {
	k, err := t.DeclareKey(name, kind, opts...)
	if err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
	return k
}

// DeclareAccessor registers a virtual attribute. Writes to name through a document call Set;
// reads call Get. Either function may be nil to make the accessor read-only or write-only.
func (t *EntityType) DeclareAccessor(name string, acc Accessor) error {
	r := t.registry
	if err := r.checkWritable(); err != nil {
		return err
	}
	if name == "" {
		return errors.NewValidationError("name", "accessor name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res := t.buildResolution(r.gen.Load())
	if k, ok := res.keys[name]; ok {
		return errors.NewKeyConflictError(t.name, name, k.Kind.String(), "accessor")
	}
	if a, ok := res.assocs[name]; ok {
		return errors.NewKeyConflictError(t.name, name, a.Cardinality.String(), "accessor")
	}

	t.accessors[name] = acc
	r.gen.Add(1)
	return nil
}

// Validates registers a custom validator run by Document.Validate.
func (t *EntityType) Validates(fn ValidateFunc) error {
	r := t.registry
	if err := r.checkWritable(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t.validators = append(t.validators, fn)
	r.gen.Add(1)
	return nil
}

// Index declares a deferred index on the type's collection. Nothing reaches the store until
// the registry's IndexManager is flushed.
func (t *EntityType) Index(keys storagemodels.IndexKeys, opts map[string]any) error {
	if err := t.registry.checkWritable(); err != nil {
		return err
	}
	if t.embedded {
		return fmt.Errorf("%w: embedded type %s has no collection to index", errors.ErrInvalidInput, t.name)
	}
	if len(keys) == 0 {
		return errors.NewValidationError("keys", "index needs at least one key")
	}
	t.registry.indexes.Declare(t, keys, opts)
	return nil
}

func (t *EntityType) resolve() *resolution {
	r := t.registry
	if res := t.resolved.Load(); res != nil && res.gen == r.gen.Load() {
		return res
	}

	r.mu.RLock()
	res := t.buildResolution(r.gen.Load())
	r.mu.RUnlock()

	t.resolved.Store(res)
	return res
}

// buildResolution merges the lineage's declarations. Callers must hold the registry lock.
func (t *EntityType) buildResolution(gen uint64) *resolution {
	res := &resolution{
		gen:       gen,
		keys:      make(map[string]*Key),
		assocs:    make(map[string]*Association),
		accessors: make(map[string]Accessor),
	}

	for _, cur := range t.Lineage() {
		for _, k := range cur.keys {
			if _, shadowed := res.keys[k.Name]; shadowed {
				idx := slices.IndexFunc(res.keyList, func(existing *Key) bool { return existing.Name == k.Name })
				res.keyList[idx] = k
			} else {
				res.keyList = append(res.keyList, k)
			}
			res.keys[k.Name] = k
		}
		for _, a := range cur.associations {
			if _, shadowed := res.assocs[a.Name]; shadowed {
				idx := slices.IndexFunc(res.assocList, func(existing *Association) bool { return existing.Name == a.Name })
				res.assocList[idx] = a
			} else {
				res.assocList = append(res.assocList, a)
			}
			res.assocs[a.Name] = a
		}
		for name, acc := range cur.accessors {
			res.accessors[name] = acc
		}
		res.validators = append(res.validators, cur.validators...)
	}
	return res
}
