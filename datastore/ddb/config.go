/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import "time"

// GSIConfig names a global secondary index and its key attributes.
type GSIConfig struct {
	// IndexName is the GSI name in DynamoDB (e.g., "GSI1")
	IndexName string
	// PartitionKeyName is the partition key attribute of the GSI (e.g., "PK1")
	PartitionKeyName string
	// SortKeyName is the sort key attribute of the GSI (e.g., "SK1")
	SortKeyName string
}

// DefaultCollectionIndex lists a collection with one Query: PK1 holds the collection name and
// SK1 the document id.
var DefaultCollectionIndex = GSIConfig{
	IndexName:        "GSI1",
	PartitionKeyName: "PK1",
	SortKeyName:      "SK1",
}

// Config holds settings for the DynamoDB driver. All collections share one table.
type Config struct {
	// Table is the table name.
	// Default: "docmapper"
	Table string

	// Region, Endpoint and static credentials are used by NewDynamoDBClient. Empty values fall
	// back to the default AWS configuration chain.
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// CollectionIndex is the GSI used to list a collection. With an empty IndexName collections
	// are listed with a filtered Scan.
	// Default: DefaultCollectionIndex
	CollectionIndex GSIConfig

	// PageSize is the Limit of each Query or Scan page.
	// Default: 100
	PageSize int32

	// MaxRetries bounds retries of throttled page reads.
	// Default: 3
	MaxRetries int

	// RetryBackoff is multiplied by the attempt number between retries.
	// Default: 100ms
	RetryBackoff time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Table:           "docmapper",
		CollectionIndex: DefaultCollectionIndex,
		PageSize:        100,
		MaxRetries:      3,
		RetryBackoff:    100 * time.Millisecond,
	}
}

// validate fills unset values with defaults.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.Table == "" {
		c.Table = def.Table
	}
	if c.CollectionIndex.IndexName != "" {
		if c.CollectionIndex.PartitionKeyName == "" {
			c.CollectionIndex.PartitionKeyName = def.CollectionIndex.PartitionKeyName
		}
		if c.CollectionIndex.SortKeyName == "" {
			c.CollectionIndex.SortKeyName = def.CollectionIndex.SortKeyName
		}
	}
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
}
