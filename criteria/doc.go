/*
Package criteria compiles finder conditions into store queries.

Conditions are keyed by field path. Literals on declared keys are typecast to the key's kind and
converted to store form, so callers may pass user input directly:

	q, err := criteria.CompileMap(post, map[string]any{
	    "published_at": map[string]any{"$gte": "2024-01-01"},
	    "author":       []any{"ann", "bob"}, // becomes $in
	    "items.name":   "widget",
	    "order":        "published_at desc",
	    "limit":        20,
	})

Queries on a subtype also match on the _type discriminator of the subtype and its descendants.
Undeclared fields and unknown operators are passed through unchanged.
*/
package criteria
