/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/storagemodels"
	"go.mongodb.org/mongo-driver/bson"
)

func TestConfigValidate(t *testing.T) {
	var cfg Config
	cfg.validate()
	assert.Equal(t, DefaultConfig(), cfg)

	cfg = Config{URI: "mongodb://db:27017", Database: "app", ConnectTimeout: time.Second, BatchSize: -5}
	cfg.validate()
	assert.Equal(t, "mongodb://db:27017", cfg.URI)
	assert.Equal(t, "app", cfg.Database)
	assert.Equal(t, time.Second, cfg.ConnectTimeout)
	assert.Zero(t, cfg.BatchSize)
}

func TestFindOptions(t *testing.T) {
	q := &storagemodels.Query{
		Collection: "posts",
		Sort:       bson.D{{Key: "age", Value: -1}},
		Limit:      10,
		Skip:       5,
		Projection: bson.M{"name": 1},
	}
	opts := findOptions(q, 50)

	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(10), *opts.Limit)
	require.NotNil(t, opts.Skip)
	assert.Equal(t, int64(5), *opts.Skip)
	assert.Equal(t, q.Sort, opts.Sort)
	assert.Equal(t, q.Projection, opts.Projection)
	require.NotNil(t, opts.BatchSize)
	assert.Equal(t, int32(50), *opts.BatchSize)

	empty := findOptions(&storagemodels.Query{Collection: "posts"}, 0)
	assert.Nil(t, empty.Limit)
	assert.Nil(t, empty.Skip)
	assert.Nil(t, empty.Sort)
	assert.Nil(t, empty.BatchSize)
}

func TestIndexModel(t *testing.T) {
	keys := storagemodels.IndexKeys{storagemodels.Asc("name"), storagemodels.Desc("age")}

	model, err := indexModel(keys, true, map[string]any{"sparse": "true", "expire_after_seconds": 3600})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "name", Value: 1}, {Key: "age", Value: -1}}, model.Keys)
	require.NotNil(t, model.Options.Name)
	assert.Equal(t, "name_1_age_-1", *model.Options.Name)
	require.NotNil(t, model.Options.Unique)
	assert.True(t, *model.Options.Unique)
	require.NotNil(t, model.Options.Sparse)
	assert.True(t, *model.Options.Sparse)
	require.NotNil(t, model.Options.ExpireAfterSeconds)
	assert.Equal(t, int32(3600), *model.Options.ExpireAfterSeconds)

	model, err = indexModel(keys, false, map[string]any{"name": "by_name"})
	require.NoError(t, err)
	assert.Equal(t, "by_name", *model.Options.Name)
	assert.Nil(t, model.Options.Unique)
}

func TestIndexModelRejectsUnknownOptions(t *testing.T) {
	_, err := indexModel(storagemodels.IndexKeys{storagemodels.Asc("a")}, false, map[string]any{"weights": 1})
	assert.ErrorIs(t, err, errors.ErrUnsupported)

	_, err = indexModel(nil, false, nil)
	assert.True(t, errors.IsValidationError(err))
}
