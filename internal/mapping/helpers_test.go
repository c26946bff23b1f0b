package mapping

import (
	"testing"

	"github.com/stretchr/testify/require"

	"entity-loader/internal/schema"
)

func libraryRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg, err := schema.NewRegistryFromDecls(
		schema.EntityDecl{
			Name: "Author",
			Attributes: []schema.Attribute{
				{Name: "email", Unique: true, Required: true},
				{Name: "name", MaxLength: 40},
			},
			Relations: []schema.Relation{
				schema.HasMany{Name: "books", Entity: "Book"},
				schema.HasOne{Name: "profile", Entity: "Profile"},
			},
		},
		schema.EntityDecl{
			Name: "Book",
			Attributes: []schema.Attribute{
				{Name: "isbn", Unique: true},
				{Name: "title", Required: true, MaxLength: 50},
				{Name: "price", Type: schema.AttrDecimal},
			},
			Relations: []schema.Relation{
				schema.BelongsTo{Name: "author", Entity: "Author"},
				schema.BelongsToMany{Name: "tags", Entity: "Tag", PivotAttributes: []schema.Attribute{{Name: "role"}}},
				schema.HasMany{Name: "chapters", Entity: "Chapter"},
			},
		},
		schema.EntityDecl{Name: "Tag", Attributes: []schema.Attribute{{Name: "name", Unique: true}}},
		schema.EntityDecl{
			Name:       "Chapter",
			Attributes: []schema.Attribute{{Name: "title"}, {Name: "number", Type: schema.AttrInt}},
			Relations:  []schema.Relation{schema.BelongsTo{Name: "book", Entity: "Book"}},
		},
		schema.EntityDecl{Name: "Profile", Attributes: []schema.Attribute{{Name: "bio", Type: schema.AttrText}}},
	)
	require.NoError(t, err)

	return reg
}

const libraryMapping = `
version: "1"
name: library
description: books with authors and tags
source_schema: {format: csv}
flow_config:
  chunk_size: 500
  error_policy: continue
  skip_empty_rows: true
mappings:
  - model: Book
    execution_order: 2
    columns:
      - {source: isbn, target: isbn}
      - {source: title, target: title, transforms: ["truncate:50"], validation_rule: required}
      - {source: author_email, target: author.email+, relation_lookup: {field: email, create_if_missing: true}}
      - {source: author_name, target: author.name}
      - {source: tags, target: tags.*.name+, transforms: ["split:|", trim]}
    options: {unique_key: isbn, duplicate_strategy: skip}
  - model: Author
    execution_order: 1
    columns:
      - {source: author_email, target: email, transforms: [trim, lower]}
      - {source: author_name, target: name, transforms: [trim, title]}
    options: {unique_key: email, duplicate_strategy: update}
  - model: Book
    execution_order: 3
    type: pivot_sync
    relation_path: tags
    columns:
      - {source: isbn, target: isbn, relation_lookup: {field: isbn}}
      - {source: tag, target: tags.name+}
      - {source: role, target: tags.pivot.role}
`

func mustParse(t *testing.T, doc string) *MappingDefinition {
	t.Helper()

	def, err := Parse([]byte(doc))
	require.NoError(t, err)

	return def
}
