// Package mapping provides the mapping document schema, its YAML loader,
// the target path grammar, load-time validation and compilation into an
// executable Plan.
//
// # Document overview
//
//	version: "1"
//	name: library
//	flow_config:
//	  error_policy: continue
//	mappings:
//	  - model: Author
//	    execution_order: 1
//	    columns:
//	      - {source: author_email, target: email, transforms: [trim, lower]}
//	    options: {unique_key: email, duplicate_strategy: update}
//	  - model: Book
//	    execution_order: 2
//	    columns:
//	      - {source: title, target: title, validation_rule: required}
//	      - {source: author_email, target: author.email+}
//	      - {source: tags, target: tags.*.name+, transforms: ["split:|"]}
//	  - model: Book
//	    type: pivot_sync
//	    relation_path: tags
//	    columns:
//	      - {source: isbn, target: isbn}
//	      - {source: tag, target: tags.name+}
//	      - {source: role, target: tags.pivot.role}
//
// # Target paths
//
// Segments are separated by ".". Every segment but the last names a
// relation; the last one names an attribute of the entity the chain ends on.
//
//   - "name": plain attribute
//   - "address.street": attribute of a related entity
//   - "books.*.title": "*" applies the value to each element of a collection relation
//   - "author.email+": "+" creates the related entity when the lookup misses
//   - "address.?city" or "?address.city": the relation is optional and is
//     dropped when it would receive no values
//   - "tags.pivot.role": attribute stored on the association of a many-to-many relation
//
// A "+" or "?" written on the final attribute applies to the relation that
// precedes it, so "author.email+" and "author+.email" are the same path.
//
// # Ordering
//
// Entity mappings run in dependency order: a mapping whose entity type
// belongs to another mapped type runs after it. execution_order and the
// declaration order break ties. Cycles are reported, never broken.
package mapping
