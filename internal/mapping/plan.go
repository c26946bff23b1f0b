package mapping

import (
	"entity-loader/internal/diagnostic"
	"entity-loader/internal/rules"
	"entity-loader/internal/schema"
	"entity-loader/internal/transform"
)

// Plan is a compiled mapping document, ready to run. It is read-only once
// built.
type Plan struct {
	Definition *MappingDefinition
	// Entities are the entity mappings in execution order.
	Entities []*CompiledEntity
	// Order is the entity type order the entity mappings follow.
	Order []string
	// Warnings are the non-fatal diagnostics found while compiling.
	Warnings []diagnostic.Diagnostic
}

// CompiledEntity is one entity mapping with parsed paths and compiled
// transform chains.
type CompiledEntity struct {
	// Index is the declaration position in the document.
	Index   int
	Label   string
	Mapping *EntityMapping
	Entity  *schema.EntityType

	// Columns holds every column, in declaration order.
	Columns []*CompiledColumn
	// Attributes are the plain attribute columns.
	Attributes []*CompiledColumn
	// Groups are the top-level relation groups, in order of first use.
	Groups []*RelationGroup

	UniqueKey []string

	// Pivot is set for pivot_sync mappings.
	Pivot *PivotSpec

	rank int
}

// IsPivot reports whether this is an association sync.
func (e *CompiledEntity) IsPivot() bool {
	return e.Pivot != nil
}

// CompiledColumn is one column with its parsed target.
type CompiledColumn struct {
	Index   int
	Mapping *ColumnMapping
	Path    TargetPath
	Chain   transform.Chain
	Rules   rules.Set

	// Relations holds one descriptor per relation segment, excluding the
	// pivot segment.
	Relations []schema.RelationDescriptor
	// Entity owns the final attribute. For pivot columns it is the related
	// entity of the many-to-many relation.
	Entity    *schema.EntityType
	Attribute schema.Attribute
	// Declared is false when the attribute is not declared by the schema;
	// such columns are reported and skipped.
	Declared bool
	Pivot    bool
}

// Target returns the column target string.
func (c *CompiledColumn) Target() string {
	return c.Mapping.Target
}

// RelationGroup gathers the columns that share a relation chain prefix,
// e.g. every "author.*" column of a Book mapping.
type RelationGroup struct {
	// Key is the dotted relation chain, e.g. "author" or "author.address".
	Key      string
	Relation schema.RelationDescriptor
	Target   *schema.EntityType
	Depth    int

	// Columns set attributes of the related entity.
	Columns []*CompiledColumn
	// PivotColumns set association attributes (many-to-many only).
	PivotColumns []*CompiledColumn
	Children     []*RelationGroup

	LookupField     string
	CreateIfMissing bool
	Optional        bool
	IsArray         bool
}

// IsCollection reports whether the relation holds many entities.
func (g *RelationGroup) IsCollection() bool {
	return g.Relation.IsCollection()
}

// AllColumns returns the columns of the group and of its descendants.
func (g *RelationGroup) AllColumns() []*CompiledColumn {
	out := append([]*CompiledColumn(nil), g.Columns...)
	out = append(out, g.PivotColumns...)

	for _, child := range g.Children {
		out = append(out, child.AllColumns()...)
	}

	return out
}

// PivotSpec describes an association sync.
type PivotSpec struct {
	Relation schema.RelationDescriptor
	// OwnerColumns find the owner; owners are never created.
	OwnerColumns []*CompiledColumn
	// OwnerLookup maps each owner column to the owner attribute it matches.
	OwnerLookup map[*CompiledColumn]string
	// Related is the group resolving the associated entity.
	Related *RelationGroup
	// Strategy is the reconciliation strategy.
	Strategy SyncStrategy
}
