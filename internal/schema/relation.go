package schema

import (
	"fmt"
	"strings"

	"entity-loader/internal/common"
)

// RelationKind classifies how two entity types are linked.
type RelationKind int

const (
	_ RelationKind = iota

	// OwnedSingle: the declaring entity holds a foreign key to exactly one parent ("belongs to").
	OwnedSingle
	// InverseSingle: the declaring entity owns exactly one dependent ("has one").
	InverseSingle
	// OwnedMany: the declaring entity owns a collection of dependents ("has many").
	OwnedMany
	// ManyToMany: a symmetric association through a join table.
	ManyToMany
)

// String returns a human-readable kind name.
func (k RelationKind) String() string {
	switch k {
	case OwnedSingle:
		return "owned_single"
	case InverseSingle:
		return "inverse_single"
	case OwnedMany:
		return "owned_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return common.UnknownStr
	}
}

// IsCollection reports whether the relation resolves to a list of entities.
func (k RelationKind) IsCollection() bool {
	return k == OwnedMany || k == ManyToMany
}

// IsDependent reports whether the related entity carries the foreign key
// back to the declaring entity, so it can only be linked once the declaring
// entity has been persisted.
func (k RelationKind) IsDependent() bool {
	return k == InverseSingle || k == OwnedMany
}

// Relation is a relation declaration as returned by Model.Relations.
// Its kind is derived from the optional capability methods it implements;
// see ResolveRelationKind.
type Relation interface {
	RelationName() string
	RelatedEntity() string
}

// associative is implemented by relations that go through a join table.
type associative interface {
	JoinTable() string
}

// collection is implemented by relations that may hold many entities.
type collection interface {
	IsCollection() bool
}

// dependent is implemented by relations whose foreign key lives on the related entity.
type dependent interface {
	DependentKey() string
}

// owning is implemented by relations whose foreign key lives on the declaring entity.
type owning interface {
	OwnerKey() string
}

// KindDeclarer lets a custom relation declaration state its kind directly.
// It is consulted last, after the structural capabilities.
type KindDeclarer interface {
	RelationKind() RelationKind
}

// ResolveRelationKind maps a relation declaration to one of the four kinds.
// The most specific capability is checked first: a join table wins over a
// collection, a collection wins over a single dependent, so a has-many is
// never mistaken for a has-one. Returns false if nothing matches.
func ResolveRelationKind(rel Relation) (RelationKind, bool) {
	if rel == nil {
		return 0, false
	}

	if a, ok := rel.(associative); ok && a.JoinTable() != "" {
		return ManyToMany, true
	}

	if c, ok := rel.(collection); ok && c.IsCollection() {
		if _, isDep := rel.(dependent); isDep {
			return OwnedMany, true
		}
	}

	if _, ok := rel.(dependent); ok {
		return InverseSingle, true
	}

	if _, ok := rel.(owning); ok {
		return OwnedSingle, true
	}

	if kd, ok := rel.(KindDeclarer); ok {
		k := kd.RelationKind()
		if k >= OwnedSingle && k <= ManyToMany {
			return k, true
		}
	}

	return 0, false
}

// BelongsTo declares an OwnedSingle relation. ForeignKey defaults to
// "<name>_id" on the declaring entity.
type BelongsTo struct {
	Name       string
	Entity     string
	ForeignKey string
}

func (r BelongsTo) RelationName() string  { return r.Name }
func (r BelongsTo) RelatedEntity() string { return r.Entity }
func (r BelongsTo) OwnerKey() string      { return r.ForeignKey }

// HasOne declares an InverseSingle relation. ForeignKey defaults to
// "<declaring entity>_id" on the related entity.
type HasOne struct {
	Name       string
	Entity     string
	ForeignKey string
}

func (r HasOne) RelationName() string  { return r.Name }
func (r HasOne) RelatedEntity() string { return r.Entity }
func (r HasOne) DependentKey() string  { return r.ForeignKey }

// HasMany declares an OwnedMany relation.
type HasMany struct {
	Name       string
	Entity     string
	ForeignKey string
}

func (r HasMany) RelationName() string  { return r.Name }
func (r HasMany) RelatedEntity() string { return r.Entity }
func (r HasMany) DependentKey() string  { return r.ForeignKey }
func (r HasMany) IsCollection() bool    { return true }

// BelongsToMany declares a ManyToMany relation through Table.
// Table defaults to the two snake_cased entity names, sorted and joined by
// "_"; the keys default to "<entity>_id" for each side.
type BelongsToMany struct {
	Name            string
	Entity          string
	Table           string
	OwnerKey        string
	RelatedKey      string
	PivotAttributes []Attribute
}

func (r BelongsToMany) RelationName() string  { return r.Name }
func (r BelongsToMany) RelatedEntity() string { return r.Entity }
func (r BelongsToMany) IsCollection() bool    { return true }

// JoinTable reports a non-empty placeholder when Table is left to its
// default, so the relation is still classified as ManyToMany.
func (r BelongsToMany) JoinTable() string {
	if r.Table == "" {
		return "-"
	}

	return r.Table
}

// RelationDescriptor is the resolved, immutable description of a relation.
type RelationDescriptor struct {
	Name string
	Kind RelationKind
	// Source is the declaring entity type.
	Source string
	// Target is the related entity type.
	Target string
	// ForeignKey is the FK attribute: on Source for OwnedSingle, on Target
	// for InverseSingle and OwnedMany. Empty for ManyToMany.
	ForeignKey string
	// AssociationTable, OwnerKey and RelatedKey are set for ManyToMany only.
	AssociationTable string
	OwnerKey         string
	RelatedKey       string
	PivotAttributes  []Attribute
}

// IsCollection reports whether the relation resolves to many entities.
func (d RelationDescriptor) IsCollection() bool {
	return d.Kind.IsCollection()
}

// PivotAttribute looks up an association-level attribute.
func (d RelationDescriptor) PivotAttribute(name string) (Attribute, bool) {
	for _, a := range d.PivotAttributes {
		if a.Name == name {
			return a, true
		}
	}

	return Attribute{}, false
}

// String returns "Source.name(kind -> Target)".
func (d RelationDescriptor) String() string {
	return fmt.Sprintf("%s.%s(%s -> %s)", d.Source, d.Name, d.Kind, d.Target)
}

// describeRelation resolves a declaration on entity source into a descriptor,
// filling in naming defaults.
func describeRelation(source string, rel Relation) (RelationDescriptor, error) {
	kind, ok := ResolveRelationKind(rel)
	if !ok {
		return RelationDescriptor{}, fmt.Errorf("relation %s.%s: cannot determine relation kind of %T",
			source, rel.RelationName(), rel)
	}

	d := RelationDescriptor{
		Name:   rel.RelationName(),
		Kind:   kind,
		Source: source,
		Target: rel.RelatedEntity(),
	}

	if strings.TrimSpace(d.Name) == "" {
		return RelationDescriptor{}, fmt.Errorf("entity %s: relation with empty name", source)
	}

	if d.Target == "" {
		return RelationDescriptor{}, fmt.Errorf("relation %s.%s: related entity is required", source, d.Name)
	}

	switch kind {
	case OwnedSingle:
		d.ForeignKey = keyOf(rel)
		if d.ForeignKey == "" {
			d.ForeignKey = foreignKeyName(d.Name)
		}
	case InverseSingle, OwnedMany:
		d.ForeignKey = keyOf(rel)
		if d.ForeignKey == "" {
			d.ForeignKey = foreignKeyName(source)
		}
	case ManyToMany:
		if m, ok := rel.(BelongsToMany); ok {
			d.AssociationTable = m.Table
			d.OwnerKey = m.OwnerKey
			d.RelatedKey = m.RelatedKey
			d.PivotAttributes = append([]Attribute(nil), m.PivotAttributes...)
		} else if a, ok := rel.(associative); ok {
			d.AssociationTable = a.JoinTable()
		}

		if d.AssociationTable == "" || d.AssociationTable == "-" {
			d.AssociationTable = joinTableName(source, d.Target)
		}

		if d.OwnerKey == "" {
			d.OwnerKey = foreignKeyName(source)
		}

		if d.RelatedKey == "" {
			d.RelatedKey = foreignKeyName(d.Target)
		}

		if d.OwnerKey == d.RelatedKey {
			d.RelatedKey = "related_" + d.RelatedKey
		}
	}

	return d, nil
}

func keyOf(rel Relation) string {
	switch r := rel.(type) {
	case owning:
		return r.OwnerKey()
	case dependent:
		return r.DependentKey()
	}

	if k, ok := rel.(interface{ ForeignKey() string }); ok {
		return k.ForeignKey()
	}

	return ""
}
