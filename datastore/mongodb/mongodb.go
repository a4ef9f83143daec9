/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mongodb

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/suparena/docmapper/datastore"
	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/storagemodels"
	"github.com/suparena/docmapper/typecast"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Driver stores documents in a MongoDB database.
type Driver struct {
	client *mongo.Client // set when the driver owns the connection
	db     *mongo.Database
	config Config
	logger logr.Logger
}

var _ datastore.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithLogr sets the driver logger.
func WithLogr(logger logr.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// Connect dials the server described by config and pings it. The returned driver owns the
// connection; release it with Close.
func Connect(ctx context.Context, config Config, opts ...Option) (*Driver, error) {
	config.validate()

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(config.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	d := New(client.Database(config.Database), config, opts...)
	d.client = client
	d.logger.Info("connected to mongodb", "database", config.Database)
	return d, nil
}

// New wraps an existing database handle. The caller keeps ownership of its client.
func New(db *mongo.Database, config Config, opts ...Option) *Driver {
	config.validate()
	d := &Driver{
		db:     db,
		config: config,
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Database returns the underlying database handle.
func (d *Driver) Database() *mongo.Database {
	return d.db
}

// Close disconnects the client if the driver created it.
func (d *Driver) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Disconnect(ctx)
}

// Insert stores doc. The server assigns an ObjectID when _id is absent.
func (d *Driver) Insert(ctx context.Context, collection string, doc map[string]any) (any, error) {
	res, err := d.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return nil, wrapWriteError(collection, err)
	}
	return res.InsertedID, nil
}

// Update replaces the document with the given id.
func (d *Driver) Update(ctx context.Context, collection string, id any, doc map[string]any) error {
	res, err := d.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return wrapWriteError(collection, err)
	}
	if res.MatchedCount == 0 {
		return errors.NewDocumentNotFoundError(collection, id)
	}
	return nil
}

// Find runs a compiled query.
func (d *Driver) Find(ctx context.Context, query *storagemodels.Query) (datastore.Cursor, error) {
	if query == nil {
		return nil, errors.NewValidationError("query", "query is required")
	}
	filter := query.Filter
	if filter == nil {
		filter = bson.M{}
	}

	d.logger.V(2).Info("find", "collection", query.Collection, "filter", filter)
	cur, err := d.db.Collection(query.Collection).Find(ctx, filter, findOptions(query, d.config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", query.Collection, err)
	}
	return &cursor{cur: cur}, nil
}

// Delete removes the document with the given id.
func (d *Driver) Delete(ctx context.Context, collection string, id any) error {
	res, err := d.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	if res.DeletedCount == 0 {
		return errors.NewDocumentNotFoundError(collection, id)
	}
	return nil
}

// CreateIndex creates an index. Creating an index that already exists with the same options is
// a no-op on the server.
func (d *Driver) CreateIndex(ctx context.Context, collection string, keys storagemodels.IndexKeys, unique bool, opts map[string]any) error {
	model, err := indexModel(keys, unique, opts)
	if err != nil {
		return err
	}
	name, err := d.db.Collection(collection).Indexes().CreateOne(ctx, model)
	if err != nil {
		return fmt.Errorf("create index on %s: %w", collection, err)
	}
	d.logger.V(1).Info("index created", "collection", collection, "index", name, "unique", unique)
	return nil
}

func findOptions(q *storagemodels.Query, batchSize int32) *options.FindOptions {
	opts := options.Find()
	if len(q.Sort) > 0 {
		opts.SetSort(q.Sort)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if len(q.Projection) > 0 {
		opts.SetProjection(q.Projection)
	}
	if batchSize > 0 {
		opts.SetBatchSize(batchSize)
	}
	return opts
}

// indexModel translates declaration options. Keys are accepted in snake_case or the server's
// camelCase spelling.
func indexModel(keys storagemodels.IndexKeys, unique bool, opts map[string]any) (mongo.IndexModel, error) {
	if len(keys) == 0 {
		return mongo.IndexModel{}, errors.NewValidationError("keys", "index needs at least one key")
	}

	io := options.Index().SetName(keys.Name())
	if unique {
		io.SetUnique(true)
	}

	for name, v := range opts {
		switch strings.ToLower(strings.ReplaceAll(name, "_", "")) {
		case "name":
			io.SetName(fmt.Sprint(v))
		case "sparse":
			io.SetSparse(boolOption(v))
		case "background":
			io.SetBackground(boolOption(v))
		case "expireafterseconds", "expireafter":
			n, err := typecast.ToTyped(typecast.Integer, v)
			if err != nil || n == nil {
				return mongo.IndexModel{}, fmt.Errorf("index option %s: %w", name, errors.NewTypeMismatchError(typecast.Integer.String(), v))
			}
			io.SetExpireAfterSeconds(int32(n.(int64)))
		case "partialfilterexpression":
			io.SetPartialFilterExpression(v)
		default:
			return mongo.IndexModel{}, fmt.Errorf("%w: index option %q", errors.ErrUnsupported, name)
		}
	}

	return mongo.IndexModel{Keys: keys.BSON(), Options: io}, nil
}

func boolOption(v any) bool {
	b, _ := typecast.ToTyped(typecast.Boolean, v)
	on, _ := b.(bool)
	return on
}

func wrapWriteError(collection string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: duplicate key in %s: %v", errors.ErrInvalidInput, collection, err)
	}
	return fmt.Errorf("write to %s: %w", collection, err)
}

// cursor decodes each server document into a plain map.
type cursor struct {
	cur     *mongo.Cursor
	current map[string]any
	err     error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.cur.Next(ctx) {
		return false
	}
	var m bson.M
	if err := c.cur.Decode(&m); err != nil {
		c.err = fmt.Errorf("decode document: %w", err)
		return false
	}
	c.current = datastore.Plain(m).(map[string]any)
	return true
}

func (c *cursor) Current() map[string]any {
	return c.current
}

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *cursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}
