/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/storagemodels"
	"github.com/suparena/docmapper/typecast"
)

func itemSchema(t *testing.T) (*Registry, *EntityType, *EntityType, *EntityType) {
	t.Helper()
	reg := NewRegistry()

	item := reg.MustDefine("Item", Embedded())
	item.MustDeclareKey("for_all", typecast.String)

	first := reg.MustDefine("FirstItem", Inherits(item))
	first.MustDeclareKey("first_only", typecast.String)

	second := reg.MustDefine("SecondItem", Inherits(item))
	second.MustDeclareKey("second_only", typecast.String)

	if _, err := first.Many("second_items", ""); err != nil {
		t.Fatal(err)
	}

	return reg, item, first, second
}

func TestColumnNames(t *testing.T) {
	_, item, first, second := itemSchema(t)

	assert.Equal(t, []string{"_id", "for_all"}, item.ColumnNames())
	assert.Equal(t, []string{"_id", "first_only", "for_all"}, first.ColumnNames())
	assert.Equal(t, []string{"_id", "for_all", "second_only"}, second.ColumnNames())

	a, ok := first.Association("second_items")
	require.True(t, ok)
	assert.Equal(t, Many, a.Cardinality)
	target, err := a.Target()
	require.NoError(t, err)
	assert.Equal(t, second, target)
}

func TestSiblingKeysDoNotLeak(t *testing.T) {
	_, item, first, second := itemSchema(t)

	_, ok := second.LookupKey("first_only")
	assert.False(t, ok)
	_, ok = item.LookupKey("first_only")
	assert.False(t, ok)

	k, ok := first.LookupKey("for_all")
	require.True(t, ok)
	assert.Equal(t, item, k.Owner())
}

func TestResolveKeysAfterLateAncestorDeclaration(t *testing.T) {
	_, item, first, _ := itemSchema(t)

	assert.NotContains(t, first.ColumnNames(), "color")

	item.MustDeclareKey("color", typecast.String)

	assert.Contains(t, first.ColumnNames(), "color")
	keys := first.ResolveKeys()
	assert.Equal(t, "_id", keys[0].Name)
	assert.Equal(t, "for_all", keys[1].Name)
}

func TestDeclareKey(t *testing.T) {
	t.Run("IdempotentSameKind", func(t *testing.T) {
		reg := NewRegistry()
		post := reg.MustDefine("Post")
		a, err := post.DeclareKey("title", typecast.String)
		require.NoError(t, err)
		b, err := post.DeclareKey("title", typecast.String)
		require.NoError(t, err)
		assert.Same(t, a, b)
		assert.Len(t, post.OwnKeys(), 2)
	})

	t.Run("ConflictingKind", func(t *testing.T) {
		reg := NewRegistry()
		post := reg.MustDefine("Post")
		post.MustDeclareKey("title", typecast.String)

		_, err := post.DeclareKey("title", typecast.Integer)
		require.Error(t, err)
		assert.True(t, errors.IsKeyConflict(err))

		var conflict *errors.KeyConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "String", conflict.Existing)
		assert.Equal(t, "Integer", conflict.Requested)
	})

	t.Run("SubtypeShadowsSameKind", func(t *testing.T) {
		_, item, first, _ := itemSchema(t)
		k, err := first.DeclareKey("for_all", typecast.String, WithDefault("first"))
		require.NoError(t, err)

		resolved, ok := first.LookupKey("for_all")
		require.True(t, ok)
		assert.Same(t, k, resolved)

		base, _ := item.LookupKey("for_all")
		assert.Nil(t, base.Default)
	})

	t.Run("SubtypeCannotChangeKind", func(t *testing.T) {
		_, _, first, _ := itemSchema(t)
		_, err := first.DeclareKey("for_all", typecast.Integer)
		assert.True(t, errors.IsKeyConflict(err))
	})

	t.Run("AncestorCannotContradictDescendant", func(t *testing.T) {
		_, item, _, _ := itemSchema(t)
		_, err := item.DeclareKey("first_only", typecast.Integer)
		assert.True(t, errors.IsKeyConflict(err))
	})

	t.Run("ClashWithAssociation", func(t *testing.T) {
		reg, _, _, _ := itemSchema(t)
		post := reg.MustDefine("Post")
		_, err := post.Many("items", "Item")
		require.NoError(t, err)

		_, err = post.DeclareKey("items", typecast.Array)
		assert.True(t, errors.IsKeyConflict(err))
	})

	t.Run("EmbeddedCannotIndex", func(t *testing.T) {
		_, item, _, _ := itemSchema(t)
		_, err := item.DeclareKey("sku", typecast.String, Indexed())
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}

func TestDefine(t *testing.T) {
	reg := NewRegistry()
	post := reg.MustDefine("BlogPost")
	assert.Equal(t, "blog_posts", post.Collection())
	assert.Equal(t, "Blog Post", post.Human())

	id, ok := post.LookupKey(IDKey)
	require.True(t, ok)
	assert.Equal(t, typecast.ObjectID, id.Kind)
	assert.NotNil(t, id.DefaultValue())

	_, err := reg.Define("BlogPost")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	sub := reg.MustDefine("GuestPost", Inherits(post))
	assert.Equal(t, "blog_posts", sub.Collection())
	assert.True(t, sub.IsA(post))
	assert.False(t, post.IsA(sub))
	assert.Equal(t, []*EntityType{sub}, post.Descendants())
	assert.Equal(t, post, sub.Root())

	person := reg.MustDefine("Person")
	assert.Equal(t, "people", person.Collection())

	custom := reg.MustDefine("Account", InCollection("users"), WithIDKind(typecast.String))
	assert.Equal(t, "users", custom.Collection())
	cid, _ := custom.LookupKey(IDKey)
	assert.Equal(t, typecast.String, cid.Kind)
	assert.False(t, cid.HasDefault())
}

func TestFreeze(t *testing.T) {
	reg, item, _, _ := itemSchema(t)
	reg.Freeze()
	assert.True(t, reg.Frozen())

	_, err := reg.Define("Late")
	assert.ErrorIs(t, err, errors.ErrSchemaFrozen)

	_, err = item.DeclareKey("late", typecast.String)
	assert.ErrorIs(t, err, errors.ErrSchemaFrozen)

	_, err = item.Many("things", "")
	assert.ErrorIs(t, err, errors.ErrSchemaFrozen)

	assert.Equal(t, []string{"_id", "for_all"}, item.ColumnNames())
}

func TestAssociations(t *testing.T) {
	reg, item, first, _ := itemSchema(t)
	post := reg.MustDefine("Post")

	t.Run("AliasesAreEquivalent", func(t *testing.T) {
		a, err := post.Many("items", "Item")
		require.NoError(t, err)
		b, err := post.HasMany("items", "Item")
		require.NoError(t, err)
		assert.Same(t, a, b)

		_, err = post.HasOne("items", "Item")
		assert.True(t, errors.IsKeyConflict(err))
	})

	t.Run("TargetInference", func(t *testing.T) {
		a, err := post.Many("second_items", "")
		require.NoError(t, err)
		assert.Equal(t, "SecondItem", a.TargetName)

		statuses, err := post.Many("statuses", "")
		require.NoError(t, err)
		assert.Equal(t, "Status", statuses.TargetName)

		people, err := post.HasMany("people", "")
		require.NoError(t, err)
		assert.Equal(t, "Person", people.TargetName)

		one, err := post.One("first_item", "")
		require.NoError(t, err)
		assert.Equal(t, "FirstItem", one.TargetName)

		target, err := one.Target()
		require.NoError(t, err)
		assert.Equal(t, first, target)
	})

	t.Run("ForwardReference", func(t *testing.T) {
		a, err := post.One("author", "Author")
		require.NoError(t, err)
		_, err = a.Target()
		assert.ErrorIs(t, err, errors.ErrInvalidInput)

		reg.MustDefine("Author", Embedded())
		_, err = a.Target()
		assert.NoError(t, err)
	})

	t.Run("TargetMustBeEmbedded", func(t *testing.T) {
		a, err := post.One("other_post", "Post")
		require.NoError(t, err)
		_, err = a.Target()
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("Inherited", func(t *testing.T) {
		sub := reg.MustDefine("SpecialPost", Inherits(post))
		a, ok := sub.Association("items")
		require.True(t, ok)
		assert.Equal(t, post, a.Owner())
		assert.Equal(t, len(post.ResolveAssociations()), len(sub.ResolveAssociations()))
	})

	t.Run("LookupPath", func(t *testing.T) {
		k, ok := post.LookupPath("items.for_all")
		require.True(t, ok)
		assert.Equal(t, item, k.Owner())

		k, ok = post.LookupPath("items.0.for_all")
		require.True(t, ok)
		assert.Equal(t, typecast.String, k.Kind)

		_, ok = post.LookupPath("items.missing")
		assert.False(t, ok)
		_, ok = post.LookupPath("nope.name")
		assert.False(t, ok)
	})
}

func TestAccessorsAndValidators(t *testing.T) {
	reg := NewRegistry()
	post := reg.MustDefine("Post")
	post.MustDeclareKey("foo", typecast.String)

	err := post.DeclareAccessor("foo", Accessor{})
	assert.True(t, errors.IsKeyConflict(err))

	require.NoError(t, post.DeclareAccessor("bar", Accessor{
		Get: func(s AttributeStore) (any, error) { return s.ReadAttribute("foo") },
	}))
	_, err = post.DeclareKey("bar", typecast.String)
	assert.True(t, errors.IsKeyConflict(err))

	require.NoError(t, post.Validates(func(AttributeStore) error { return nil }))
	sub := reg.MustDefine("Draft", Inherits(post))
	require.NoError(t, sub.Validates(func(AttributeStore) error { return nil }))

	_, ok := sub.Accessor("bar")
	assert.True(t, ok)
	assert.Len(t, post.Validators(), 1)
	assert.Len(t, sub.Validators(), 2)
}

func TestConcurrentResolution(t *testing.T) {
	_, _, first, _ := itemSchema(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, []string{"_id", "first_only", "for_all"}, first.ColumnNames())
			}
		}()
	}
	wg.Wait()
}

type indexCall struct {
	collection string
	keys       storagemodels.IndexKeys
	unique     bool
	opts       map[string]any
}

type recordingCreator struct {
	calls []indexCall
	fail  map[string]error
}

func (c *recordingCreator) CreateIndex(_ context.Context, collection string, keys storagemodels.IndexKeys, unique bool, opts map[string]any) error {
	c.calls = append(c.calls, indexCall{collection, keys, unique, opts})
	return c.fail[keys.Name()]
}

func TestIndexFlush(t *testing.T) {
	reg := NewRegistry()
	post := reg.MustDefine("Post")
	post.MustDeclareKey("title", typecast.String, Indexed())
	post.MustDeclareKey("slug", typecast.String, Unique())
	require.NoError(t, post.Index(storagemodels.IndexKeys{storagemodels.Asc("author"), storagemodels.Desc("created_at")},
		map[string]any{"unique": "true", "sparse": true}))

	assert.Equal(t, 3, reg.Indexes().Len())

	for round := 0; round < 3; round++ {
		creator := &recordingCreator{}
		require.NoError(t, reg.Indexes().Flush(context.Background(), creator), "round %d", round)
		require.Len(t, creator.calls, 3)

		assert.Equal(t, "posts", creator.calls[0].collection)
		assert.Equal(t, "title_1", creator.calls[0].keys.Name())
		assert.False(t, creator.calls[0].unique)

		assert.Equal(t, "slug_1", creator.calls[1].keys.Name())
		assert.True(t, creator.calls[1].unique)
		assert.Empty(t, creator.calls[1].opts)

		assert.Equal(t, "author_1_created_at_-1", creator.calls[2].keys.Name())
		assert.True(t, creator.calls[2].unique)
		assert.Equal(t, map[string]any{"sparse": true}, creator.calls[2].opts)
	}

	decls := reg.Indexes().Declarations()
	assert.Equal(t, "true", decls[2].Options["unique"])
}

func TestIndexFlushAggregatesErrors(t *testing.T) {
	reg := NewRegistry()
	post := reg.MustDefine("Post")
	post.MustDeclareKey("a", typecast.String, Indexed())
	post.MustDeclareKey("b", typecast.String, Indexed())
	post.MustDeclareKey("c", typecast.String, Indexed())

	creator := &recordingCreator{fail: map[string]error{
		"a_1": fmt.Errorf("boom a"),
		"c_1": fmt.Errorf("boom c"),
	}}
	err := reg.Indexes().Flush(context.Background(), creator)
	require.Error(t, err)
	assert.Len(t, creator.calls, 3)
	assert.Contains(t, err.Error(), "boom a")
	assert.Contains(t, err.Error(), "boom c")
}

func TestIndexOnEmbeddedType(t *testing.T) {
	_, item, _, _ := itemSchema(t)
	err := item.Index(storagemodels.IndexKeys{storagemodels.Asc("for_all")}, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

type postModel struct {
	Title string `bson:"title"`
}

func TestBindModel(t *testing.T) {
	reg := NewRegistry()
	post := reg.MustDefine("Post")

	require.NoError(t, BindModel[postModel](reg, "Post"))
	got, ok := ModelType[postModel](reg)
	require.True(t, ok)
	assert.Equal(t, post, got)

	assert.ErrorIs(t, BindModel[postModel](reg, "Missing"), errors.ErrInvalidInput)
	_, ok = ModelType[struct{}](reg)
	assert.False(t, ok)
}
