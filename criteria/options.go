/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package criteria

import (
	"fmt"
	"strings"

	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/registry"
	"github.com/suparena/docmapper/storagemodels"
	"github.com/suparena/docmapper/typecast"
	"go.mongodb.org/mongo-driver/bson"
)

// CompileMap compiles a single finder map in which the option keys sort/order, limit,
// skip/offset and fields/select sit next to the field conditions.
func CompileMap(t *registry.EntityType, m map[string]any) (*storagemodels.Query, error) {
	conditions, opts, err := SplitOptions(m)
	if err != nil {
		return nil, err
	}
	return Compile(t, conditions, opts)
}

// SplitOptions separates the finder option keys of m from its field conditions. m is not modified.
func SplitOptions(m map[string]any) (map[string]any, Options, error) {
	var opts Options
	conditions := make(map[string]any, len(m))

	for k, v := range m {
		var err error
		switch k {
		case "sort", "order":
			opts.Sort, err = ParseSort(v)
		case "limit":
			opts.Limit, err = parseCount(k, v)
		case "skip", "offset":
			opts.Skip, err = parseCount(k, v)
		case "fields", "select":
			opts.Fields, err = parseFields(v)
		default:
			conditions[k] = v
		}
		if err != nil {
			return nil, Options{}, err
		}
	}
	return conditions, opts, nil
}

// ParseSort accepts "name asc, age desc", a []string of such clauses, []storagemodels.SortField
// or a bson.D with 1/-1 directions.
func ParseSort(v any) ([]storagemodels.SortField, error) {
	switch sv := v.(type) {
	case nil:
		return nil, nil
	case string:
		return parseSortClauses(strings.Split(sv, ","))
	case []string:
		return parseSortClauses(sv)
	case storagemodels.SortField:
		return []storagemodels.SortField{sv}, nil
	case []storagemodels.SortField:
		return sv, nil
	case bson.D:
		out := make([]storagemodels.SortField, 0, len(sv))
		for _, e := range sv {
			dir, err := parseDirection(e.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, storagemodels.SortField{Field: e.Key, Direction: dir})
		}
		return out, nil
	default:
		return nil, errors.NewValidationError("sort", fmt.Sprintf("unsupported sort specification %T", v))
	}
}

func parseSortClauses(clauses []string) ([]storagemodels.SortField, error) {
	var out []storagemodels.SortField
	for _, clause := range clauses {
		parts := strings.Fields(clause)
		switch len(parts) {
		case 0:
			continue
		case 1:
			out = append(out, storagemodels.SortField{Field: parts[0], Direction: storagemodels.Ascending})
		case 2:
			dir, err := parseDirection(parts[1])
			if err != nil {
				return nil, err
			}
			out = append(out, storagemodels.SortField{Field: parts[0], Direction: dir})
		default:
			return nil, errors.NewValidationError("sort", fmt.Sprintf("invalid sort clause %q", clause))
		}
	}
	return out, nil
}

func parseDirection(v any) (int, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "asc", "ascending", "1":
			return storagemodels.Ascending, nil
		case "desc", "descending", "-1":
			return storagemodels.Descending, nil
		}
		return 0, errors.NewValidationError("sort", fmt.Sprintf("invalid sort direction %q", s))
	}

	n, err := typecast.ToTyped(typecast.Integer, v)
	if err != nil {
		return 0, errors.NewValidationError("sort", fmt.Sprintf("invalid sort direction %v", v))
	}
	switch n.(int64) {
	case 1:
		return storagemodels.Ascending, nil
	case -1:
		return storagemodels.Descending, nil
	}
	return 0, errors.NewValidationError("sort", fmt.Sprintf("invalid sort direction %v", v))
}

func parseCount(name string, v any) (int64, error) {
	n, err := typecast.ToTyped(typecast.Integer, v)
	if err != nil || n == nil {
		return 0, errors.NewValidationError(name, "must be a number")
	}
	count := n.(int64)
	if count < 0 {
		return 0, errors.NewValidationError(name, "must not be negative")
	}
	return count, nil
}

func parseFields(v any) ([]string, error) {
	switch fv := v.(type) {
	case nil:
		return nil, nil
	case string:
		var out []string
		for _, f := range strings.Split(fv, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
		return out, nil
	case []string:
		return fv, nil
	case []any:
		out := make([]string, 0, len(fv))
		for _, f := range fv {
			s, ok := f.(string)
			if !ok {
				return nil, errors.NewValidationError("fields", fmt.Sprintf("field name must be a string, got %T", f))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.NewValidationError("fields", fmt.Sprintf("unsupported field selection %T", v))
	}
}
