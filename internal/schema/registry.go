package schema

import (
	"errors"
	"fmt"
	"strings"
)

// EntityDecl is the raw declaration of an entity type, either probed from a
// Model or read from a schema document.
type EntityDecl struct {
	Name       string
	Table      string
	Attributes []Attribute
	Relations  []Relation
}

// DeclFromModel probes a Model once and captures its declaration.
func DeclFromModel(m Model) EntityDecl {
	decl := EntityDecl{
		Name:       m.EntityName(),
		Attributes: m.Attributes(),
		Relations:  m.Relations(),
	}

	if t, ok := m.(Tabled); ok {
		decl.Table = t.TableName()
	}

	return decl
}

// Registry holds the entity type descriptors for a run. It is built once,
// up front, and is read-only afterwards.
type Registry struct {
	types map[string]*EntityType
	order []string
}

// NewRegistry probes the given models and builds their descriptors.
func NewRegistry(models ...Model) (*Registry, error) {
	decls := make([]EntityDecl, 0, len(models))
	for _, m := range models {
		decls = append(decls, DeclFromModel(m))
	}

	return NewRegistryFromDecls(decls...)
}

// NewRegistryFromDecls builds descriptors from raw declarations.
// All relation targets must be declared in the same call.
func NewRegistryFromDecls(decls ...EntityDecl) (*Registry, error) {
	r := &Registry{types: make(map[string]*EntityType, len(decls))}

	var errs []error

	for i, decl := range decls {
		name := strings.TrimSpace(decl.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("entity #%d: name is required", i+1))
			continue
		}

		if _, dup := r.types[name]; dup {
			errs = append(errs, fmt.Errorf("entity %s: declared twice", name))
			continue
		}

		et := &EntityType{
			Name:      name,
			Table:     decl.Table,
			Index:     len(r.order),
			attrIndex: make(map[string]int),
			relations: make(map[string]RelationDescriptor),
		}

		if et.Table == "" {
			et.Table = tableName(name)
		}

		for _, a := range decl.Attributes {
			if a.Name == "" || a.Name == PrimaryKey {
				continue
			}

			et.addAttribute(a)
		}

		r.types[name] = et
		r.order = append(r.order, name)
	}

	for _, decl := range decls {
		et, ok := r.types[strings.TrimSpace(decl.Name)]
		if !ok {
			continue
		}

		for _, rel := range decl.Relations {
			d, err := describeRelation(et.Name, rel)
			if err != nil {
				errs = append(errs, err)
				continue
			}

			if _, dup := et.relations[d.Name]; dup {
				errs = append(errs, fmt.Errorf("relation %s.%s: declared twice", et.Name, d.Name))
				continue
			}

			if et.HasAttribute(d.Name) {
				errs = append(errs, fmt.Errorf("relation %s.%s: name collides with an attribute", et.Name, d.Name))
				continue
			}

			target, ok := r.types[d.Target]
			if !ok {
				errs = append(errs, fmt.Errorf("relation %s.%s: unknown entity %q", et.Name, d.Name, d.Target))
				continue
			}

			// Foreign keys are implicit attributes of whichever side stores them.
			switch d.Kind {
			case OwnedSingle:
				et.addAttribute(Attribute{Name: d.ForeignKey, Type: AttrString})
			case InverseSingle, OwnedMany:
				target.addAttribute(Attribute{Name: d.ForeignKey, Type: AttrString})
			}

			et.relations[d.Name] = d
			et.relationOrder = append(et.relationOrder, d.Name)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return r, nil
}

// Describe returns the descriptor of an entity type.
func (r *Registry) Describe(name string) (*EntityType, bool) {
	et, ok := r.types[name]

	return et, ok
}

// Relation resolves relationName on entity. It returns false when either the
// entity or the relation is unknown.
func (r *Registry) Relation(entity, relationName string) (RelationDescriptor, bool) {
	et, ok := r.types[entity]
	if !ok {
		return RelationDescriptor{}, false
	}

	return et.Relation(relationName)
}

// Names returns entity type names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Types returns descriptors in declaration order.
func (r *Registry) Types() []*EntityType {
	out := make([]*EntityType, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.types[n])
	}

	return out
}
