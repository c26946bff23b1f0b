package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-loader/internal/importerr"
	"entity-loader/internal/schema"
	"entity-loader/internal/transform"
)

func labels(plan *Plan) []string {
	out := make([]string, len(plan.Entities))
	for i, e := range plan.Entities {
		out[i] = e.Label
	}

	return out
}

func TestCompileLibrary(t *testing.T) {
	plan, err := Compile(mustParse(t, libraryMapping), libraryRegistry(t), transform.NewRegistry())
	require.NoError(t, err)

	assert.Equal(t, []string{"Author", "Book"}, plan.Order)
	assert.Equal(t, []string{"Author#2", "Book#1", "Book.tags#3"}, labels(plan))
	assert.Empty(t, plan.Warnings)

	author := plan.Entities[0]
	assert.Equal(t, []string{"email"}, author.UniqueKey)
	assert.Len(t, author.Attributes, 2)
	assert.Empty(t, author.Groups)
	assert.False(t, author.IsPivot())

	book := plan.Entities[1]
	assert.Equal(t, []string{"isbn"}, book.UniqueKey)
	assert.Len(t, book.Columns, 5)
	assert.Len(t, book.Attributes, 2)
	require.Len(t, book.Groups, 2)

	authorGroup := book.Groups[0]
	assert.Equal(t, "author", authorGroup.Key)
	assert.Equal(t, schema.OwnedSingle, authorGroup.Relation.Kind)
	assert.Equal(t, "email", authorGroup.LookupField)
	assert.True(t, authorGroup.CreateIfMissing)
	assert.False(t, authorGroup.IsCollection())
	assert.Len(t, authorGroup.Columns, 2)

	tags := book.Groups[1]
	assert.Equal(t, "tags", tags.Key)
	assert.True(t, tags.IsArray)
	assert.True(t, tags.CreateIfMissing)
	assert.True(t, tags.IsCollection())
	assert.Equal(t, "name", tags.LookupField)
	assert.Equal(t, 2, tags.Columns[0].Chain.Len())

	pivot := plan.Entities[2]
	require.True(t, pivot.IsPivot())
	assert.Equal(t, SyncReplace, pivot.Pivot.Strategy)
	assert.Equal(t, "book_tag", pivot.Pivot.Relation.AssociationTable)
	require.Len(t, pivot.Pivot.OwnerColumns, 1)
	assert.Equal(t, "isbn", pivot.Pivot.OwnerLookup[pivot.Pivot.OwnerColumns[0]])
	require.NotNil(t, pivot.Pivot.Related)
	assert.Len(t, pivot.Pivot.Related.PivotColumns, 1)
	assert.Len(t, pivot.Pivot.Related.AllColumns(), 2)
}

func TestCompileDependenciesBeatExecutionOrder(t *testing.T) {
	def := mustParse(t, `
mappings:
  - {model: Chapter, execution_order: 1, columns: [{source: c, target: title}, {source: i, target: book.isbn}]}
  - {model: Book, execution_order: 2, columns: [{source: i, target: isbn}, {source: t, target: title}, {source: e, target: author.email}]}
  - {model: Author, execution_order: 3, columns: [{source: e, target: email}]}
`)

	plan, err := Compile(def, libraryRegistry(t), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Author", "Book", "Chapter"}, plan.Order)
	assert.Equal(t, []string{"Author#3", "Book#2", "Chapter#1"}, labels(plan))
}

func TestCompileExecutionOrderBreaksTies(t *testing.T) {
	def := mustParse(t, `
mappings:
  - {model: Tag, execution_order: 5, columns: [{source: t, target: name}]}
  - {model: Author, execution_order: 2, columns: [{source: e, target: email}]}
  - {model: Author, execution_order: 1, columns: [{source: f, target: email}]}
`)

	plan, err := Compile(def, libraryRegistry(t), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Author", "Tag"}, plan.Order)
	assert.Equal(t, []string{"Author#3", "Author#2", "Tag#1"}, labels(plan))
}

func TestCompilePivotRunsAfterRelatedEntity(t *testing.T) {
	def := mustParse(t, `
mappings:
  - {model: Book, columns: [{source: i, target: isbn}, {source: t, target: title}]}
  - {model: Book, type: pivot_sync, relation_path: tags, options: {sync_strategy: attach},
     columns: [{source: i, target: isbn}, {source: g, target: tags.name}]}
  - {model: Tag, columns: [{source: g, target: name}]}
`)

	plan, err := Compile(def, libraryRegistry(t), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Book#1", "Tag#3", "Book.tags#2"}, labels(plan))
	assert.Equal(t, SyncAttach, plan.Entities[2].Pivot.Strategy)
}

func TestCompileCycle(t *testing.T) {
	reg, err := schema.NewRegistryFromDecls(
		schema.EntityDecl{
			Name:       "Employee",
			Attributes: []schema.Attribute{{Name: "email"}},
			Relations:  []schema.Relation{schema.BelongsTo{Name: "department", Entity: "Department"}},
		},
		schema.EntityDecl{
			Name:       "Department",
			Attributes: []schema.Attribute{{Name: "code"}},
			Relations:  []schema.Relation{schema.BelongsTo{Name: "head", Entity: "Employee"}},
		},
		schema.EntityDecl{
			Name:       "Badge",
			Attributes: []schema.Attribute{{Name: "serial"}},
			Relations:  []schema.Relation{schema.BelongsTo{Name: "employee", Entity: "Employee"}},
		},
	)
	require.NoError(t, err)

	def := mustParse(t, `
mappings:
  - {model: Employee, columns: [{source: e, target: email}]}
  - {model: Department, columns: [{source: c, target: code}]}
  - {model: Badge, columns: [{source: s, target: serial}]}
`)

	_, err = Compile(def, reg, nil)

	var cycle *importerr.DependencyCycleError
	require.ErrorAs(t, err, &cycle)
	assert.ElementsMatch(t, []string{"Employee", "Department"}, cycle.Members)
	assert.True(t, importerr.IsFatal(err))

	diags := Validate(def, reg, nil)
	assert.Contains(t, diags.Codes(), "dependency_cycle")
}

func TestCompileOrderOverride(t *testing.T) {
	const mappings = `
mappings:
  - {model: Tag, columns: [{source: t, target: name}]}
  - {model: Book, columns: [{source: i, target: isbn}, {source: t, target: title}, {source: e, target: author.email}]}
  - {model: Author, columns: [{source: e, target: email}]}
`
	reg := libraryRegistry(t)

	t.Run("accepted", func(t *testing.T) {
		plan, err := Compile(mustParse(t, "flow_config: {order_override: [Author, Tag, Book]}"+mappings), reg, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"Author", "Tag", "Book"}, plan.Order)
	})

	t.Run("violates dependencies", func(t *testing.T) {
		_, err := Compile(mustParse(t, "flow_config: {order_override: [Book, Author, Tag]}"+mappings), reg, nil)

		var structure *importerr.MappingStructureError
		require.ErrorAs(t, err, &structure)
		require.Len(t, structure.Problems, 1)
		assert.Contains(t, structure.Problems[0], "order_override_violates_dependencies")
		assert.Contains(t, structure.Problems[0], "Author -> Book")
	})

	t.Run("incomplete", func(t *testing.T) {
		_, err := Compile(mustParse(t, "flow_config: {order_override: [Author, Book]}"+mappings), reg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not list Tag")
	})

	t.Run("unknown entity", func(t *testing.T) {
		_, err := Compile(mustParse(t, "flow_config: {order_override: [Author, Tag, Book, Shelf]}"+mappings), reg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown entity "Shelf"`)
	})
}

func TestCompileRejectsUnresolvedInteractiveTransforms(t *testing.T) {
	def := mustParse(t, `mappings: [{model: Book, columns: [{source: t, target: title}, {source: p, target: price, transforms: [map_values]}]}]`)

	_, err := Compile(def, libraryRegistry(t), nil)

	var structure *importerr.MappingStructureError
	require.ErrorAs(t, err, &structure)
	assert.Contains(t, structure.Error(), "interactive_transform")
}

func TestCompileCollectsAllProblems(t *testing.T) {
	def := mustParse(t, `
mappings:
  - {model: Bok, columns: [{source: a, target: title}]}
  - {model: Book, columns: [{source: a, target: title, transforms: [nope]}]}
`)

	_, err := Compile(def, libraryRegistry(t), nil)

	var structure *importerr.MappingStructureError
	require.ErrorAs(t, err, &structure)
	assert.Len(t, structure.Problems, 2)
	assert.True(t, importerr.IsFatal(err))
}
