package schema

import (
	"sort"

	"entity-loader/internal/match"
)

// PrimaryKey is the identifier attribute every entity type is stored with.
const PrimaryKey = "id"

// Model is implemented by Go types that represent a persistent entity type.
// The registry calls these methods once, on a zero value, and caches the
// result for the lifetime of the process.
type Model interface {
	EntityName() string
	Attributes() []Attribute
	Relations() []Relation
}

// Tabled optionally overrides the storage name of a Model.
type Tabled interface {
	TableName() string
}

// EntityType is the immutable descriptor of one persistent entity type.
type EntityType struct {
	// Name is the entity type name used in mapping documents ("Book").
	Name string
	// Table is the storage name ("books").
	Table string
	// Index is the declaration position in the registry.
	Index int

	attributes    []Attribute
	attrIndex     map[string]int
	relations     map[string]RelationDescriptor
	relationOrder []string
}

// Attributes returns the declared attributes in declaration order.
func (e *EntityType) Attributes() []Attribute {
	return append([]Attribute(nil), e.attributes...)
}

// AttributeNames returns attribute names in declaration order.
func (e *EntityType) AttributeNames() []string {
	names := make([]string, len(e.attributes))
	for i, a := range e.attributes {
		names[i] = a.Name
	}

	return names
}

// Attribute looks up an attribute by name.
func (e *EntityType) Attribute(name string) (Attribute, bool) {
	i, ok := e.attrIndex[name]
	if !ok {
		return Attribute{}, false
	}

	return e.attributes[i], true
}

// HasAttribute reports whether name is a declared attribute or the primary key.
func (e *EntityType) HasAttribute(name string) bool {
	if name == PrimaryKey {
		return true
	}

	_, ok := e.attrIndex[name]

	return ok
}

// Relation looks up a relation by name. A missing relation is reported as
// false, not as an error: callers decide whether to treat the name as a
// plain attribute or to skip it.
func (e *EntityType) Relation(name string) (RelationDescriptor, bool) {
	d, ok := e.relations[name]

	return d, ok
}

// Relations returns relation descriptors in declaration order.
func (e *EntityType) Relations() []RelationDescriptor {
	out := make([]RelationDescriptor, 0, len(e.relationOrder))
	for _, name := range e.relationOrder {
		out = append(out, e.relations[name])
	}

	return out
}

// RelationNames returns relation names in declaration order.
func (e *EntityType) RelationNames() []string {
	return append([]string(nil), e.relationOrder...)
}

// RequiredAttributes returns the names of attributes that must be present
// before the entity can be persisted.
func (e *EntityType) RequiredAttributes() []string {
	var out []string

	for _, a := range e.attributes {
		if a.Required {
			out = append(out, a.Name)
		}
	}

	return out
}

// UniqueAttributes returns the names of attributes with a store-level
// uniqueness guarantee.
func (e *EntityType) UniqueAttributes() []string {
	var out []string

	for _, a := range e.attributes {
		if a.Unique {
			out = append(out, a.Name)
		}
	}

	return out
}

// Parents returns the OwnedSingle relations of the entity, i.e. the entity
// types that must exist before this one can be persisted.
func (e *EntityType) Parents() []RelationDescriptor {
	var out []RelationDescriptor

	for _, d := range e.Relations() {
		if d.Kind == OwnedSingle {
			out = append(out, d)
		}
	}

	return out
}

func (e *EntityType) addAttribute(a Attribute) {
	if _, exists := e.attrIndex[a.Name]; exists {
		return
	}

	e.attrIndex[a.Name] = len(e.attributes)
	e.attributes = append(e.attributes, a)
}

func foreignKeyName(entityOrRelation string) string {
	return match.SnakeCase(entityOrRelation) + "_id"
}

func joinTableName(a, b string) string {
	names := []string{match.SnakeCase(a), match.SnakeCase(b)}
	sort.Strings(names)

	return names[0] + "_" + names[1]
}

func tableName(entity string) string {
	name := match.SnakeCase(entity)
	if name == "" {
		return name
	}

	switch {
	case hasSuffixAny(name, "s", "x", "ch", "sh"):
		return name + "es"
	case len(name) > 1 && name[len(name)-1] == 'y' && !isVowel(name[len(name)-2]):
		return name[:len(name)-1] + "ies"
	default:
		return name + "s"
	}
}

func hasSuffixAny(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if len(s) >= len(suf) && s[len(s)-len(suf):] == suf {
			return true
		}
	}

	return false
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}

	return false
}
