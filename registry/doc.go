/*
Package registry holds the schema of a docmapper application: entity types, their typed keys,
embedded associations, virtual accessors, validators and deferred index declarations.

Defining a schema:

	reg := registry.NewRegistry()

	item := reg.MustDefine("Item", registry.Embedded())
	item.MustDeclareKey("name", typecast.String, registry.Required())

	first := reg.MustDefine("FirstItem", registry.Inherits(item))
	first.MustDeclareKey("first_only", typecast.String)

	post := reg.MustDefine("Post")
	post.MustDeclareKey("title", typecast.String, registry.Indexed())
	post.Many("items", "Item")

	reg.Freeze()

Inheritance is explicit. A type keeps only its own declarations; ResolveKeys walks the parent
chain from the root down, letting a subtype replace an ancestor key of the same kind. Results are
cached per type and recomputed lazily after any new declaration anywhere in the registry.

Concurrency: declarations are meant to run once, from a single goroutine, during start-up.
Lookups are safe for concurrent use at any time. Freeze turns late declarations into
ErrSchemaFrozen.

Indexes declared through Indexed, Unique or EntityType.Index are only recorded. Flush the
registry's IndexManager against a store to create them:

	err := reg.Indexes().Flush(ctx, driver)
*/
package registry
