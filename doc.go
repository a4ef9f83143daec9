/*
Package docmapper maps loosely typed documents onto declared entity types for document stores
such as MongoDB and DynamoDB.

A schema is declared on a registry.Registry: entity types, their typed keys, embedded
associations, subtypes and deferred index declarations. Values written to a Document are coerced
to the key's kind on write, the raw value is kept for ReadBeforeTypecast, and changes are
tracked per attribute. Embedded documents are owned by exactly one parent.

Basic Usage:

	reg := registry.NewRegistry()
	post := reg.MustDefine("Post")
	post.MustDeclareKey("title", typecast.String, registry.Required())
	post.MustDeclareKey("views", typecast.Integer, registry.WithDefault(0), registry.Indexed())

	comment := reg.MustDefine("Comment", registry.Embedded())
	comment.MustDeclareKey("body", typecast.String)
	post.HasMany("comments", "")

	doc, _ := docmapper.New(post, map[string]any{"title": "Hello", "views": "3"})
	doc.Build("comments", map[string]any{"body": "first"})

	session, _ := docmapper.NewSession(driver, reg, docmapper.WithLogr(logger))
	_ = session.EnsureIndexes(ctx)
	_ = session.Create(ctx, doc)

	popular, _ := session.Find(ctx, post, map[string]any{
		"views": map[string]any{"$gte": "10"},
		"sort":  "views desc",
		"limit": 20,
	})

Query conditions are typecast through the same keys before they reach the store, see the
criteria package. Drivers live under datastore/.
*/
package docmapper
