package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	def := mustParse(t, libraryMapping)

	assert.Equal(t, "1", def.Version)
	assert.Equal(t, "library", def.Name)
	require.NotNil(t, def.Source)
	assert.Equal(t, "csv", def.Source.Format)

	require.NotNil(t, def.Flow)
	assert.Equal(t, 500, def.Flow.ChunkSize)
	assert.Equal(t, PolicyContinue, def.Flow.ErrorPolicy)
	require.NotNil(t, def.Flow.SkipEmptyRows)
	assert.True(t, *def.Flow.SkipEmptyRows)
	assert.Nil(t, def.Flow.TruncateLongFields)

	require.Len(t, def.Mappings, 3)

	book := def.Mappings[0]
	assert.Equal(t, "Book", book.Model)
	assert.Equal(t, TypeModel, book.Type)
	assert.Equal(t, StringOrArray{"isbn"}, book.Options.UniqueKey)
	assert.Equal(t, DuplicateSkip, book.Options.DuplicateStrategy)
	assert.Equal(t, RelationSyncKeep, book.Options.RelationSync)
	assert.Empty(t, book.Options.SyncStrategy)

	require.Len(t, book.Columns, 5)
	assert.Equal(t, StringOrArray{"truncate:50"}, book.Columns[1].Transforms)
	assert.Equal(t, "required", book.Columns[1].ValidationRule)
	require.NotNil(t, book.Columns[2].RelationLookup)
	assert.Equal(t, "email", book.Columns[2].RelationLookup.Field)
	assert.True(t, book.Columns[2].RelationLookup.CreateIfMissing)

	pivot := def.Mappings[2]
	assert.True(t, pivot.IsPivot())
	assert.Equal(t, "tags", pivot.RelationPath)
	assert.Equal(t, SyncReplace, pivot.Options.SyncStrategy)
	assert.Equal(t, "Book.tags#3", pivot.Label(2))
	assert.Equal(t, "Book#1", book.Label(0))
}

func TestParseDefaultsAndShorthands(t *testing.T) {
	def := mustParse(t, `
name: x
mappings:
  - model: Book
    columns:
      - source: title
        target: title
        transforms: trim
        default: untitled
    options:
      unique_key: [title, isbn]
`)

	assert.Equal(t, "1", def.Version)

	m := def.Mappings[0]
	assert.Equal(t, DuplicateError, m.Options.DuplicateStrategy)
	assert.True(t, m.Options.UniqueKey.IsComposite())
	assert.Equal(t, "title,isbn", m.Options.UniqueKey.String())
	assert.Equal(t, StringOrArray{"trim"}, m.Columns[0].Transforms)
	require.NotNil(t, m.Columns[0].Default)
	assert.Equal(t, "untitled", *m.Columns[0].Default)
}

func TestParseJSON(t *testing.T) {
	def := mustParse(t, `{"name": "j", "mappings": [{"model": "Tag", "columns": [{"source": "t", "target": "name"}]}]}`)
	require.Len(t, def.Mappings, 1)
	assert.Equal(t, "Tag", def.Mappings[0].Model)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("mappings: [model: {"))
	assert.Error(t, err)

	_, err = Parse([]byte("mappings: [{model: Book, options: {unique_key: {a: b}}}]"))
	assert.Error(t, err)
}

func TestParseOptionalTargetInFlowStyle(t *testing.T) {
	// In a flow mapping a leading ? starts a key, so optional targets must
	// be quoted there. Block style takes them plain.
	def := mustParse(t, `
mappings:
  - model: Book
    columns:
      - {source: author_email, target: "?author.email+"}
      - source: author_name
        target: ?author.name
`)
	require.Len(t, def.Mappings[0].Columns, 2)
	assert.Equal(t, "?author.email+", def.Mappings[0].Columns[0].Target)
	assert.Equal(t, "?author.name", def.Mappings[0].Columns[1].Target)

	_, err := Parse([]byte("mappings: [{model: Book, columns: [{source: a, target: ?author.email+}]}]"))
	assert.Error(t, err)
}

func TestWriteAndLoadFile(t *testing.T) {
	def := mustParse(t, libraryMapping)
	path := filepath.Join(t.TempDir(), "mapping.yaml")

	require.NoError(t, WriteFile(def, path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, def, loaded)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "unique_key: isbn")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
