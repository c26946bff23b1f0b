package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const librarySchema = `
entities:
  - name: Author
    attributes:
      - {name: email, unique: true, required: true, max_length: 120}
      - {name: name, max_length: 40}
    relations:
      - {name: books, kind: has_many, entity: Book}
  - name: Book
    table: library_books
    attributes:
      - {name: isbn, unique: true}
      - {name: title, required: true, max_length: 50}
      - {name: price, type: decimal}
    relations:
      - {name: author, kind: belongs_to, entity: Author}
      - name: tags
        kind: belongs_to_many
        entity: Tag
        table: book_tags
        pivot_attributes: [{name: role}]
  - name: Tag
    attributes:
      - {name: name, unique: true}
`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(librarySchema))
	require.NoError(t, err)
	require.Len(t, doc.Entities, 3)

	reg, err := doc.Registry()
	require.NoError(t, err)

	book, ok := reg.Describe("Book")
	require.True(t, ok)
	assert.Equal(t, "library_books", book.Table)

	price, ok := book.Attribute("price")
	require.True(t, ok)
	assert.Equal(t, AttrDecimal, price.Type)

	tags, ok := book.Relation("tags")
	require.True(t, ok)
	assert.Equal(t, ManyToMany, tags.Kind)
	assert.Equal(t, "book_tags", tags.AssociationTable)
	_, ok = tags.PivotAttribute("role")
	assert.True(t, ok)

	books, ok := reg.Relation("Author", "books")
	require.True(t, ok)
	assert.Equal(t, OwnedMany, books.Kind)
}

func TestParseDocumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "bad kind",
			input:   "entities: [{name: A, relations: [{name: b, kind: owns, entity: A}]}]",
			wantErr: `unknown relation kind "owns"`,
		},
		{
			name:    "bad type",
			input:   "entities: [{name: A, attributes: [{name: x, type: blob}]}]",
			wantErr: `unknown attribute type "blob"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.input))
			require.NoError(t, err)

			_, err = doc.Registry()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := ParseDocument([]byte("entities: {"))
	assert.Error(t, err)
}
