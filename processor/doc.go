/*
Package processor loads a registry schema from YAML.

A schema lists entity types in declaration order. Parents must precede their subtypes;
association and embedded-key targets are resolved lazily and may appear anywhere:

	types:
	  - name: Address
	    embedded: true
	    keys:
	      - {name: city, kind: string, required: true}

	  - name: Player
	    collection: players
	    keys:
	      - {name: email, kind: string, unique: true}
	      - {name: rating, kind: integer, default: 1500, indexed: true}
	      - {name: home, kind: embedded, target: Address}
	    associations:
	      - {name: games, cardinality: many}
	    indexes:
	      - keys: [club, -rating]
	        options: {name: club_rating}

Kind names are those accepted by typecast.ParseKind. Index keys prefixed with "-" are
descending. Loading only declares indexes; flush the registry's IndexManager to create them.
*/
package processor
