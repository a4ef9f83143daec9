/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docmapper

import (
	"reflect"
	"strings"

	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/internal/inflect"
	"github.com/suparena/docmapper/registry"
	"go.uber.org/multierr"
)

// ValidationErrors is the error collection produced by Document.Validate.
type ValidationErrors []*errors.ValidationError

// Empty reports whether there are no errors.
func (v ValidationErrors) Empty() bool {
	return len(v) == 0
}

// On returns the messages recorded for field.
func (v ValidationErrors) On(field string) []string {
	var out []string
	for _, e := range v {
		if e.Field == field {
			out = append(out, e.Message)
		}
	}
	return out
}

// FullMessages returns human-readable messages, e.g. "First only can't be blank".
func (v ValidationErrors) FullMessages() []string {
	out := make([]string, 0, len(v))
	for _, e := range v {
		if e.Field == "" {
			out = append(out, e.Message)
			continue
		}
		out = append(out, inflect.Humanize(e.Field)+" "+e.Message)
	}
	return out
}

// Validate runs presence checks for required keys, the type's custom validators and, recursively,
// the validations of embedded children.
func (d *Document) Validate() ValidationErrors {
	var out ValidationErrors

	for _, k := range d.typ.ResolveKeys() {
		if !k.Required {
			continue
		}
		v, _ := d.Read(k.Name)
		if blank(v) {
			out = append(out, &errors.ValidationError{Field: k.Name, Message: "can't be blank"})
		}
	}

	for _, fn := range d.typ.Validators() {
		for _, err := range multierr.Errors(fn(d)) {
			var ve *errors.ValidationError
			if errors.As(err, &ve) {
				out = append(out, ve)
				continue
			}
			out = append(out, &errors.ValidationError{Message: err.Error()})
		}
	}

	for _, a := range d.typ.ResolveAssociations() {
		for _, kid := range d.children[a.Name] {
			if !kid.Validate().Empty() {
				out = append(out, &errors.ValidationError{Field: a.Name, Message: "is invalid"})
				break
			}
		}
	}
	for _, k := range d.typ.ResolveKeys() {
		if kid, ok := d.values[k.Name].(*Document); ok && !kid.Validate().Empty() {
			out = append(out, &errors.ValidationError{Field: k.Name, Message: "is invalid"})
		}
	}
	return out
}

// IsValid reports whether Validate finds no errors.
func (d *Document) IsValid() bool {
	return d.Validate().Empty()
}

// notValid wraps failed validations into a DocumentNotValid error.
func notValid(t *registry.EntityType, errs ValidationErrors) error {
	return errors.NewDocumentNotValidError(t.Human(), errs.FullMessages())
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
