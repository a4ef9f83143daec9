/*
Package ddb stores documents in a single DynamoDB table.

Every item carries a primary key built from its collection and identity:

	PK  = "<collection>#<_id>"
	SK  = "<collection>"
	PK1 = "<collection>"   // collection index partition key
	SK1 = "<_id>"          // collection index sort key

A collection is listed with one Query on the collection index (GSI1 by default) or, when
Config.CollectionIndex is empty, with a Scan filtered on SK. The key attributes are reserved
and never appear in returned documents.

Filters are translated into filter expressions where DynamoDB can evaluate them and always
re-checked in memory, so a query behaves the same as on the other drivers. Sorting happens in
memory after every matching item has been read. Throttled page reads are retried with a linear
backoff:

	cfg := ddb.DefaultConfig()
	cfg.Table = "players"
	cfg.Region = "us-east-1"
	driver, err := ddb.Connect(ctx, cfg, ddb.WithLogr(logger))

ObjectIDs are stored as hex strings and times as fixed-width UTC strings so that range filters
compare correctly. Unique indexes are not supported; CreateIndex adds a global secondary index.
*/
package ddb
