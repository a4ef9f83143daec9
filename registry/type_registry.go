/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/internal/inflect"
	"github.com/suparena/docmapper/typecast"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDKey is the name of the implicit identity key every entity type carries.
const IDKey = "_id"

// Registry holds the entity types of one schema together with its deferred index declarations.
//
// Declarations are expected to happen during initialization, from a single goroutine, before
// concurrent traffic begins. Resolution is safe for concurrent use at any time. Call Freeze once
// the schema is complete to turn late declarations into ErrSchemaFrozen errors instead of races.
type Registry struct {
	mu      sync.RWMutex
	types   map[string]*EntityType
	order   []*EntityType
	frozen  atomic.Bool
	gen     atomic.Uint64
	caster  typecast.Caster
	indexes *IndexManager
	models  modelBindings
	logger  logr.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithCaster sets the typecasting policy (time zone) used by documents of this registry.
func WithCaster(c typecast.Caster) Option {
	return func(r *Registry) {
		r.caster = c
	}
}

// WithLogr sets the logger.
func WithLogr(logger logr.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		types:  make(map[string]*EntityType),
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.indexes = NewIndexManager(r.logger.WithName("indexes"))
	return r
}

// Caster returns the typecasting policy of the registry.
func (r *Registry) Caster() typecast.Caster {
	return r.caster
}

// Indexes returns the index manager holding the registry's deferred index declarations.
func (r *Registry) Indexes() *IndexManager {
	return r.indexes
}

// Logger returns the registry logger.
func (r *Registry) Logger() logr.Logger {
	return r.logger
}

// Freeze ends the declaration phase.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Type returns the entity type registered under name.
func (r *Registry) Type(name string) (*EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Types returns all entity types in declaration order.
func (r *Registry) Types() []*EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*EntityType, len(r.order))
	copy(out, r.order)
	return out
}

type typeConfig struct {
	embedded   bool
	parent     *EntityType
	collection string
	idKind     typecast.Kind
}

// TypeOption configures an entity type at definition time.
type TypeOption func(*typeConfig)

// Embedded marks the type as an embedded document type. Embedded types live inside a parent
// document and have no collection of their own.
func Embedded() TypeOption {
	return func(c *typeConfig) {
		c.embedded = true
	}
}

// Inherits makes the type a subtype of parent. Subtypes inherit keys, associations, accessors
// and validators, and share the collection of their root type.
func Inherits(parent *EntityType) TypeOption {
	return func(c *typeConfig) {
		c.parent = parent
	}
}

// InCollection overrides the default collection name of a root document type.
func InCollection(name string) TypeOption {
	return func(c *typeConfig) {
		c.collection = name
	}
}

// WithIDKind changes the kind of the implicit identity key of a root type (ObjectID by default).
func WithIDKind(kind typecast.Kind) TypeOption {
	return func(c *typeConfig) {
		c.idKind = kind
	}
}

// Define registers a new entity type.
func (r *Registry) Define(name string, opts ...TypeOption) (*EntityType, error) {
	if err := r.checkWritable(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.NewValidationError("name", "entity type name is required")
	}

	cfg := typeConfig{idKind: typecast.ObjectID}
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[name]; exists {
		return nil, fmt.Errorf("%w: entity type %q already defined", errors.ErrInvalidInput, name)
	}

	t := &EntityType{
		registry:  r,
		name:      name,
		embedded:  cfg.embedded,
		keyIndex:  make(map[string]*Key),
		accessors: make(map[string]Accessor),
	}

	if cfg.parent != nil {
		if cfg.parent.registry != r {
			return nil, fmt.Errorf("%w: parent type %q belongs to another registry", errors.ErrInvalidInput, cfg.parent.name)
		}
		t.parent = cfg.parent
		t.embedded = cfg.parent.embedded
		t.collection = cfg.parent.collection
	} else {
		if !t.embedded {
			t.collection = cfg.collection
			if t.collection == "" {
				t.collection = inflect.Tableize(name)
			}
		}
		id := &Key{Name: IDKey, Kind: cfg.idKind, owner: t}
		if cfg.idKind == typecast.ObjectID {
			id.DefaultFunc = func() any { return primitive.NewObjectID() }
		}
		t.keys = append(t.keys, id)
		t.keyIndex[IDKey] = id
	}

	r.types[name] = t
	r.order = append(r.order, t)
	r.gen.Add(1)

	r.logger.V(1).Info("entity type defined", "type", name, "embedded", t.embedded, "collection", t.collection)
	return t, nil
}

// MustDefine is like Define but panics on error. It is meant for package-level schema setup.
func (r *Registry) MustDefine(name string, opts ...TypeOption) *EntityType {
	t, err := r.Define(name, opts...)
	if err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
	return t
}

func (r *Registry) checkWritable() error {
	if r.frozen.Load() {
		return errors.ErrSchemaFrozen
	}
	return nil
}

// descendantsOf returns every registered type that has t as a strict ancestor.
// Callers must hold r.mu.
func (r *Registry) descendantsOf(t *EntityType) []*EntityType {
	var out []*EntityType
	for _, candidate := range r.order {
		if candidate != t && candidate.isA(t) {
			out = append(out, candidate)
		}
	}
	return out
}
