/*
Package storagemodels defines the data structures handed between docmapper and store drivers.

Key Types:

Query:
A compiled finder, produced by the criteria package:

	q := &Query{
	    Collection: "posts",
	    Filter:     bson.M{"age": int64(21)},
	    Sort:       bson.D{{Key: "created_at", Value: Descending}},
	    Limit:      10,
	}

IndexKeys:
An ordered index key spec:

	keys := IndexKeys{Asc("author_id"), Desc("created_at")}
	keys.Name() // "author_id_1_created_at_-1"

StreamResult:
Results from streaming finds with metadata:

	type StreamResult[T any] struct {
	    Item  T              // The mapped item
	    Raw   map[string]any // Raw stored document
	    Error error          // Item-specific error, if any
	    Meta  StreamMeta     // Metadata about this item
	}

These types provide a consistent interface across different store drivers.
*/
package storagemodels
