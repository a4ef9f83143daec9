/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package processor

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/registry"
	"github.com/suparena/docmapper/storagemodels"
	"github.com/suparena/docmapper/typecast"
	"gopkg.in/yaml.v3"
)

// Schema is the YAML form of a registry.
type Schema struct {
	Types []TypeSpec `yaml:"types"`
}

// TypeSpec declares one entity type.
type TypeSpec struct {
	Name         string            `yaml:"name"`
	Embedded     bool              `yaml:"embedded,omitempty"`
	Inherits     string            `yaml:"inherits,omitempty"`
	Collection   string            `yaml:"collection,omitempty"`
	IDKind       string            `yaml:"id_kind,omitempty"`
	Keys         []KeySpec         `yaml:"keys,omitempty"`
	Associations []AssociationSpec `yaml:"associations,omitempty"`
	Indexes      []IndexSpec       `yaml:"indexes,omitempty"`
}

// KeySpec declares one typed key.
type KeySpec struct {
	Name     string         `yaml:"name"`
	Kind     string         `yaml:"kind"`
	Default  any            `yaml:"default,omitempty"`
	Required bool           `yaml:"required,omitempty"`
	Indexed  bool           `yaml:"indexed,omitempty"`
	Unique   bool           `yaml:"unique,omitempty"`
	Target   string         `yaml:"target,omitempty"`
	Options  map[string]any `yaml:"options,omitempty"`
}

// AssociationSpec declares an embedded association. Cardinality is "one" or "many", the
// default. An empty target is inferred from the name.
type AssociationSpec struct {
	Name        string `yaml:"name"`
	Cardinality string `yaml:"cardinality"`
	Target      string `yaml:"target,omitempty"`
}

// IndexSpec declares a compound index. Keys are field names, descending when prefixed with "-".
type IndexSpec struct {
	Keys    []string       `yaml:"keys"`
	Options map[string]any `yaml:"options,omitempty"`
}

// Parse decodes a YAML schema. Unknown fields are rejected.
func Parse(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Schema
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return &s, nil
		}
		return nil, fmt.Errorf("%w: parse schema: %v", errors.ErrInvalidInput, err)
	}
	return &s, nil
}

// LoadFile parses the schema at path and applies it to reg.
func LoadFile(path string, reg *registry.Registry) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema: %w", err)
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := s.Apply(reg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Apply declares every type of the schema on reg, in file order. A parent must appear before
// its subtypes; association targets may appear anywhere. Apply stops at the first failing
// declaration.
func (s *Schema) Apply(reg *registry.Registry) error {
	log := reg.Logger().WithName("processor")

	for _, ts := range s.Types {
		t, err := defineType(reg, ts)
		if err != nil {
			return err
		}
		for _, ks := range ts.Keys {
			if err := declareKey(t, ks); err != nil {
				return fmt.Errorf("type %s: %w", ts.Name, err)
			}
		}
		for _, as := range ts.Associations {
			if err := declareAssociation(t, as); err != nil {
				return fmt.Errorf("type %s: %w", ts.Name, err)
			}
		}
		for _, is := range ts.Indexes {
			keys, err := indexKeys(is.Keys)
			if err != nil {
				return fmt.Errorf("type %s: %w", ts.Name, err)
			}
			if err := t.Index(keys, is.Options); err != nil {
				return fmt.Errorf("type %s: %w", ts.Name, err)
			}
		}
		log.V(1).Info("type loaded", "type", ts.Name, "keys", len(ts.Keys), "associations", len(ts.Associations))
	}
	return nil
}

func defineType(reg *registry.Registry, ts TypeSpec) (*registry.EntityType, error) {
	var opts []registry.TypeOption
	if ts.Embedded {
		opts = append(opts, registry.Embedded())
	}
	if ts.Inherits != "" {
		parent, ok := reg.Type(ts.Inherits)
		if !ok {
			return nil, fmt.Errorf("%w: type %s inherits undefined type %q", errors.ErrInvalidInput, ts.Name, ts.Inherits)
		}
		opts = append(opts, registry.Inherits(parent))
	}
	if ts.Collection != "" {
		opts = append(opts, registry.InCollection(ts.Collection))
	}
	if ts.IDKind != "" {
		kind, err := typecast.ParseKind(ts.IDKind)
		if err != nil {
			return nil, fmt.Errorf("%w: type %s: %v", errors.ErrInvalidInput, ts.Name, err)
		}
		opts = append(opts, registry.WithIDKind(kind))
	}
	return reg.Define(ts.Name, opts...)
}

func declareKey(t *registry.EntityType, ks KeySpec) error {
	kind, err := typecast.ParseKind(ks.Kind)
	if err != nil {
		return fmt.Errorf("%w: key %s: %v", errors.ErrInvalidInput, ks.Name, err)
	}

	var opts []registry.KeyOption
	if ks.Default != nil {
		opts = append(opts, registry.WithDefault(ks.Default))
	}
	if ks.Required {
		opts = append(opts, registry.Required())
	}
	if ks.Unique {
		opts = append(opts, registry.Unique())
	} else if ks.Indexed {
		opts = append(opts, registry.Indexed())
	}
	if ks.Target != "" {
		opts = append(opts, registry.EmbeddedIn(ks.Target))
	}
	for name, v := range ks.Options {
		opts = append(opts, registry.WithOption(name, v))
	}

	_, err = t.DeclareKey(ks.Name, kind, opts...)
	return err
}

func declareAssociation(t *registry.EntityType, as AssociationSpec) error {
	var err error
	switch strings.ToLower(as.Cardinality) {
	case "one":
		_, err = t.One(as.Name, as.Target)
	case "many", "":
		_, err = t.Many(as.Name, as.Target)
	default:
		err = fmt.Errorf("%w: association %s has cardinality %q", errors.ErrInvalidInput, as.Name, as.Cardinality)
	}
	return err
}

func indexKeys(fields []string) (storagemodels.IndexKeys, error) {
	keys := make(storagemodels.IndexKeys, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		switch {
		case strings.HasPrefix(f, "-"):
			keys = append(keys, storagemodels.Desc(strings.TrimPrefix(f, "-")))
		case strings.HasPrefix(f, "+"):
			keys = append(keys, storagemodels.Asc(strings.TrimPrefix(f, "+")))
		default:
			keys = append(keys, storagemodels.Asc(f))
		}
		if keys[len(keys)-1].Field == "" {
			return nil, errors.NewValidationError("keys", "index key name is empty")
		}
	}
	return keys, nil
}
