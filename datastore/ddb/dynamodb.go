/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/suparena/docmapper/datastore"
	"github.com/suparena/docmapper/errors"
	"github.com/suparena/docmapper/storagemodels"
	"github.com/suparena/docmapper/typecast"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Key attributes every item carries next to the document fields.
const (
	partitionKey = "PK" // <collection>#<id>
	sortKey      = "SK" // <collection>
)

// Driver stores every collection in one DynamoDB table.
//
// Filters are partly pushed down as filter expressions and always re-checked client side with
// datastore.Match, so every operator the in-memory matcher knows is supported. Sorting, skip and
// projection are applied client side.
type Driver struct {
	client API
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

// New wraps a DynamoDB client.
func New(client API, config Config, opts ...Option) *Driver {
	config.validate()
	d := &Driver{
		client: client,
		config: config,
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connect creates a client from config and wraps it.
func Connect(ctx context.Context, config Config, opts ...Option) (*Driver, error) {
	client, err := NewDynamoDBClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB client: %w", err)
	}
	d := New(client, config, opts...)
	d.logger.Info("DynamoDB client initialized", "table", d.config.Table, "region", config.Region)
	return d, nil
}

// Insert stores doc. A missing _id is generated as a UUID string.
func (d *Driver) Insert(ctx context.Context, collection string, doc map[string]any) (any, error) {
	id, ok := doc["_id"]
	if !ok || id == nil {
		id = uuid.NewString()
		doc = withID(doc, id)
	}

	item, err := d.marshalItem(collection, id, doc)
	if err != nil {
		return nil, err
	}
	_, err = d.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:                aws.String(d.config.Table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": partitionKey},
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("%w: duplicate _id %v in %s", errors.ErrInvalidInput, id, collection)
		}
		return nil, fmt.Errorf("PutItem failed: %w", err)
	}
	return id, nil
}

// Update replaces the document with the given id.
func (d *Driver) Update(ctx context.Context, collection string, id any, doc map[string]any) error {
	item, err := d.marshalItem(collection, id, withID(doc, id))
	if err != nil {
		return err
	}
	_, err = d.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:                aws.String(d.config.Table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": partitionKey},
	})
	if err != nil {
		if isConditionFailed(err) {
			return errors.NewDocumentNotFoundError(collection, id)
		}
		return fmt.Errorf("PutItem failed: %w", err)
	}
	return nil
}

// Delete removes the document with the given id.
func (d *Driver) Delete(ctx context.Context, collection string, id any) error {
	_, err := d.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName:                aws.String(d.config.Table),
		Key:                      itemKey(collection, id),
		ConditionExpression:      aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": partitionKey},
	})
	if err != nil {
		if isConditionFailed(err) {
			return errors.NewDocumentNotFoundError(collection, id)
		}
		return fmt.Errorf("failed to delete item in DynamoDB: %w", err)
	}
	return nil
}

// Find lists the query's collection page by page. Without a sort the cursor streams pages as
// they arrive; with one every match is read and sorted first.
func (d *Driver) Find(ctx context.Context, query *storagemodels.Query) (datastore.Cursor, error) {
	if query == nil {
		return nil, errors.NewValidationError("query", "query is required")
	}

	filter, _ := storeForm(map[string]any(query.Filter)).(map[string]any)
	cur := &pageCursor{
		driver: d,
		filter: bson.M(filter),
		skip:   query.Skip,
		limit:  query.Limit,
		proj:   query.Projection,
	}
	cur.fetch = d.pageReader(query.Collection, cur.filter)

	if len(query.Sort) == 0 {
		return cur, nil
	}

	// Sorting needs every match: drain without window or projection, then apply them.
	cur.skip, cur.limit, cur.proj = 0, 0, nil
	docs, err := datastore.Drain(ctx, cur)
	if err != nil {
		return nil, err
	}
	datastore.SortDocuments(docs, query.Sort)
	docs = datastore.Window(docs, query.Skip, query.Limit)
	for i, doc := range docs {
		docs[i] = datastore.Project(doc, query.Projection)
	}
	return datastore.NewSliceCursor(docs), nil
}

// CreateIndex adds a global secondary index over one or two attributes: the first is the
// partition key, the second the sort key. Attribute types default to S; pass
// "attribute_types": {"age": "N"} to change them. An index that already exists is left alone.
// Unique indexes are not supported by DynamoDB.
func (d *Driver) CreateIndex(ctx context.Context, collection string, keys storagemodels.IndexKeys, unique bool, opts map[string]any) error {
	if unique {
		return fmt.Errorf("%w: DynamoDB has no unique secondary indexes (%s on %s)", errors.ErrUnsupported, keys.Name(), collection)
	}
	update, defs, err := gsiCreate(keys, opts)
	if err != nil {
		return err
	}

	desc, err := d.client.DescribeTable(ctx, &sdk.DescribeTableInput{TableName: aws.String(d.config.Table)})
	if err != nil {
		return fmt.Errorf("DescribeTable failed: %w", err)
	}
	if desc.Table != nil {
		for _, gsi := range desc.Table.GlobalSecondaryIndexes {
			if aws.ToString(gsi.IndexName) == aws.ToString(update.IndexName) {
				d.logger.V(1).Info("index exists", "table", d.config.Table, "index", aws.ToString(gsi.IndexName))
				return nil
			}
		}
	}

	_, err = d.client.UpdateTable(ctx, &sdk.UpdateTableInput{
		TableName:            aws.String(d.config.Table),
		AttributeDefinitions: defs,
		GlobalSecondaryIndexUpdates: []types.GlobalSecondaryIndexUpdate{
			{Create: update},
		},
	})
	if err != nil {
		return fmt.Errorf("UpdateTable failed: %w", err)
	}
	d.logger.V(1).Info("index created", "table", d.config.Table, "index", aws.ToString(update.IndexName), "collection", collection)
	return nil
}

func gsiCreate(keys storagemodels.IndexKeys, opts map[string]any) (*types.CreateGlobalSecondaryIndexAction, []types.AttributeDefinition, error) {
	if len(keys) == 0 || len(keys) > 2 {
		return nil, nil, fmt.Errorf("%w: a global secondary index takes one or two keys, got %d", errors.ErrUnsupported, len(keys))
	}

	attrTypes := map[string]any{}
	name := keys.Name()
	var read, write int64
	for opt, v := range opts {
		switch strings.ToLower(strings.ReplaceAll(opt, "_", "")) {
		case "name":
			name = fmt.Sprint(v)
		case "attributetypes":
			m, ok := typecast.AsMap(v)
			if !ok {
				return nil, nil, fmt.Errorf("index option %s: %w", opt, errors.NewTypeMismatchError(typecast.Hash.String(), v))
			}
			attrTypes = m
		case "readcapacity":
			n, _ := typecast.ToTyped(typecast.Integer, v)
			read, _ = n.(int64)
		case "writecapacity":
			n, _ := typecast.ToTyped(typecast.Integer, v)
			write, _ = n.(int64)
		default:
			return nil, nil, fmt.Errorf("%w: index option %q", errors.ErrUnsupported, opt)
		}
	}

	action := &types.CreateGlobalSecondaryIndexAction{
		IndexName:  aws.String(name),
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
	defs := make([]types.AttributeDefinition, 0, len(keys))
	for i, f := range keys {
		keyType := types.KeyTypeHash
		if i == 1 {
			keyType = types.KeyTypeRange
		}
		action.KeySchema = append(action.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(f.Field),
			KeyType:       keyType,
		})

		attrType := types.ScalarAttributeTypeS
		if t, ok := attrTypes[f.Field]; ok {
			switch strings.ToUpper(fmt.Sprint(t)) {
			case "S":
			case "N":
				attrType = types.ScalarAttributeTypeN
			case "B":
				attrType = types.ScalarAttributeTypeB
			default:
				return nil, nil, fmt.Errorf("%w: attribute type %v for %s", errors.ErrInvalidInput, t, f.Field)
			}
		}
		defs = append(defs, types.AttributeDefinition{AttributeName: aws.String(f.Field), AttributeType: attrType})
	}
	if read > 0 && write > 0 {
		action.ProvisionedThroughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(read),
			WriteCapacityUnits: aws.Int64(write),
		}
	}
	return action, defs, nil
}

// marshalItem converts a store-form document into an item with its key attributes.
func (d *Driver) marshalItem(collection string, id any, doc map[string]any) (map[string]types.AttributeValue, error) {
	for _, reserved := range d.reserved() {
		if _, clash := doc[reserved]; clash {
			return nil, errors.NewValidationError(reserved, "attribute name is reserved by the DynamoDB driver")
		}
	}

	item, err := attributevalue.MarshalMap(storeForm(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	for k, v := range itemKey(collection, id) {
		item[k] = v
	}
	if idx := d.config.CollectionIndex; idx.IndexName != "" {
		item[idx.PartitionKeyName] = &types.AttributeValueMemberS{Value: collection}
		item[idx.SortKeyName] = &types.AttributeValueMemberS{Value: idString(id)}
	}
	return item, nil
}

// unmarshalItem strips the key attributes and decodes the document fields.
func (d *Driver) unmarshalItem(item map[string]types.AttributeValue) (map[string]any, error) {
	fields := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		fields[k] = v
	}
	for _, reserved := range d.reserved() {
		delete(fields, reserved)
	}

	var doc map[string]any
	if err := attributevalue.UnmarshalMap(fields, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func (d *Driver) reserved() []string {
	names := []string{partitionKey, sortKey}
	if idx := d.config.CollectionIndex; idx.IndexName != "" {
		names = append(names, idx.PartitionKeyName, idx.SortKeyName)
	}
	return names
}

func itemKey(collection string, id any) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKey: &types.AttributeValueMemberS{Value: collection + "#" + idString(id)},
		sortKey:      &types.AttributeValueMemberS{Value: collection},
	}
}

func idString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func withID(doc map[string]any, id any) map[string]any {
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["_id"] = id
	return out
}

func isConditionFailed(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}
