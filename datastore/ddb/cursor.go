/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/docmapper/datastore"
	"go.mongodb.org/mongo-driver/bson"
)

type page struct {
	items   []map[string]types.AttributeValue
	lastKey map[string]types.AttributeValue
}

type pageFunc func(ctx context.Context, startKey map[string]types.AttributeValue) (page, error)

// pageReader lists one collection: a Query on the collection index when one is configured,
// a Scan on the sort key otherwise. The pushed-down filter narrows each page.
func (d *Driver) pageReader(collection string, filter bson.M) pageFunc {
	expr := newExpression()
	pushed, hasFilter := expr.pushdown(filter)
	coll := &types.AttributeValueMemberS{Value: collection}

	if idx := d.config.CollectionIndex; idx.IndexName != "" {
		names := map[string]string{"#ck": idx.PartitionKeyName}
		values := map[string]types.AttributeValue{":coll": coll}
		mergePlaceholders(names, values, expr)

		return func(ctx context.Context, startKey map[string]types.AttributeValue) (page, error) {
			input := &sdk.QueryInput{
				TableName:                 aws.String(d.config.Table),
				IndexName:                 aws.String(idx.IndexName),
				KeyConditionExpression:    aws.String("#ck = :coll"),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
				Limit:                     aws.Int32(d.config.PageSize),
				ExclusiveStartKey:         startKey,
			}
			if hasFilter {
				input.FilterExpression = aws.String(pushed)
			}
			out, err := withRetry(ctx, d, func() (*sdk.QueryOutput, error) {
				return d.client.Query(ctx, input)
			})
			if err != nil {
				return page{}, fmt.Errorf("query failed: %w", err)
			}
			return page{items: out.Items, lastKey: out.LastEvaluatedKey}, nil
		}
	}

	names := map[string]string{"#ck": sortKey}
	values := map[string]types.AttributeValue{":coll": coll}
	mergePlaceholders(names, values, expr)
	condition := "#ck = :coll"
	if hasFilter {
		condition += " AND (" + pushed + ")"
	}

	return func(ctx context.Context, startKey map[string]types.AttributeValue) (page, error) {
		input := &sdk.ScanInput{
			TableName:                 aws.String(d.config.Table),
			FilterExpression:          aws.String(condition),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			Limit:                     aws.Int32(d.config.PageSize),
			ExclusiveStartKey:         startKey,
		}
		out, err := withRetry(ctx, d, func() (*sdk.ScanOutput, error) {
			return d.client.Scan(ctx, input)
		})
		if err != nil {
			return page{}, fmt.Errorf("scan failed: %w", err)
		}
		return page{items: out.Items, lastKey: out.LastEvaluatedKey}, nil
	}
}

func mergePlaceholders(names map[string]string, values map[string]types.AttributeValue, expr *expression) {
	for k, v := range expr.names {
		names[k] = v
	}
	for k, v := range expr.values {
		values[k] = v
	}
}

// withRetry retries throttled calls with a linear backoff.
func withRetry[T any](ctx context.Context, d *Driver, call func() (T, error)) (T, error) {
	var (
		out     T
		lastErr error
	)
	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * d.config.RetryBackoff
			d.logger.V(1).Info("retrying page read", "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, lastErr = call()
		if lastErr == nil {
			return out, nil
		}
		if !isRetryableError(lastErr) {
			return out, lastErr
		}
	}
	return out, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryableError reports throttling and transient service failures.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "ProvisionedThroughputExceededException") ||
		strings.Contains(errStr, "ThrottlingException") ||
		strings.Contains(errStr, "RequestLimitExceeded") ||
		strings.Contains(errStr, "ServiceUnavailable") ||
		strings.Contains(errStr, "InternalServerError")
}

// pageCursor reads pages lazily and yields the items that pass the full filter, applying skip,
// limit and projection on the way.
type pageCursor struct {
	driver *Driver
	fetch  pageFunc
	filter bson.M
	skip   int64
	limit  int64
	proj   bson.M

	buf      []map[string]types.AttributeValue
	startKey map[string]types.AttributeValue
	started  bool
	done     bool
	skipped  int64
	returned int64
	current  map[string]any
	err      error
}

func (c *pageCursor) Next(ctx context.Context) bool {
	if c.err != nil || (c.limit > 0 && c.returned >= c.limit) {
		return false
	}
	for {
		if len(c.buf) == 0 {
			if c.done {
				return false
			}
			if err := ctx.Err(); err != nil {
				c.err = err
				return false
			}
			if c.started && c.startKey == nil {
				c.done = true
				return false
			}
			p, err := c.fetch(ctx, c.startKey)
			if err != nil {
				c.err = err
				return false
			}
			c.started = true
			c.buf = p.items
			c.startKey = p.lastKey
			if len(p.lastKey) == 0 {
				c.startKey = nil
			}
			continue
		}

		item := c.buf[0]
		c.buf = c.buf[1:]
		doc, err := c.driver.unmarshalItem(item)
		if err != nil {
			c.err = err
			return false
		}
		ok, err := datastore.Match(doc, c.filter)
		if err != nil {
			c.err = err
			return false
		}
		if !ok {
			continue
		}
		if c.skipped < c.skip {
			c.skipped++
			continue
		}
		c.returned++
		c.current = datastore.Project(doc, c.proj)
		return true
	}
}

func (c *pageCursor) Current() map[string]any {
	return c.current
}

func (c *pageCursor) Err() error {
	return c.err
}

func (c *pageCursor) Close(context.Context) error {
	c.buf = nil
	c.done = true
	return nil
}
