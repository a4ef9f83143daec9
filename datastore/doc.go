/*
Package datastore defines the store boundary of docmapper.

The mapping layer never talks to a database directly. It compiles queries and documents into
store form and hands them to a Driver:

	type Driver interface {
	    Insert(ctx context.Context, collection string, doc map[string]any) (any, error)
	    Update(ctx context.Context, collection string, id any, doc map[string]any) error
	    Find(ctx context.Context, query *storagemodels.Query) (Cursor, error)
	    Delete(ctx context.Context, collection string, id any) error
	    CreateIndex(ctx context.Context, collection string, keys storagemodels.IndexKeys, unique bool, opts map[string]any) error
	}

Implementations:
  - mongodb: MongoDB driver built on go.mongodb.org/mongo-driver
  - ddb: DynamoDB driver, every collection in one table
  - mock: in-memory driver for tests

Match, SortDocuments, Window and Project evaluate compiled queries in memory for drivers whose
store cannot run them natively.
*/
package datastore
