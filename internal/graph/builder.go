package graph

import (
	"fmt"

	"entity-loader/internal/common"
	"entity-loader/internal/importerr"
	"entity-loader/internal/schema"
)

// Edge is a "must be processed before" constraint: Parent precedes Child
// because Child declares an owned-single Relation to Parent.
type Edge struct {
	Parent   string
	Child    string
	Relation string
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s (%s.%s)", e.Parent, e.Child, e.Child, e.Relation)
}

// Builder derives execution orders from the relations in a registry.
type Builder struct {
	reg *schema.Registry
}

// NewBuilder returns a Builder over reg.
func NewBuilder(reg *schema.Registry) *Builder {
	return &Builder{reg: reg}
}

// Edges returns the owned-single edges between the given entity types, in
// declaration order of the children. Relations to types outside the set and
// self-references are not ordering constraints and are left out.
func (b *Builder) Edges(types []string) ([]Edge, error) {
	set := make(map[string]bool, len(types))
	for _, name := range types {
		set[name] = true
	}

	var edges []Edge

	for _, name := range common.Unique(types) {
		et, ok := b.reg.Describe(name)
		if !ok {
			return nil, fmt.Errorf("unknown entity type %q", name)
		}

		for _, rel := range et.Parents() {
			if rel.Target == name || !set[rel.Target] {
				continue
			}

			edges = append(edges, Edge{Parent: rel.Target, Child: name, Relation: rel.Name})
		}
	}

	return edges, nil
}

// Order returns types in execution order. Ties are broken by the position
// in types, so the result is stable for a given input. If the types contain
// a cycle, a *importerr.DependencyCycleError naming exactly the types on the
// cycle is returned.
func (b *Builder) Order(types []string) ([]string, error) {
	nodes := common.Unique(types)

	edges, err := b.Edges(nodes)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(nodes))
	for i, name := range nodes {
		index[name] = i
	}

	deps := make([][]int, len(nodes))
	for _, e := range edges {
		c := index[e.Child]
		deps[c] = append(deps[c], index[e.Parent])
	}

	depsFn := func(i int) []int { return deps[i] }

	order, remaining, err := TopoSort(len(nodes), depsFn)
	if err != nil {
		return nil, err
	}

	if len(remaining) > 0 {
		members := CycleMembers(remaining, depsFn)

		names := make([]string, len(members))
		for i, m := range members {
			names[i] = nodes[m]
		}

		return nil, &importerr.DependencyCycleError{Members: names}
	}

	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = nodes[idx]
	}

	return out, nil
}

// OrderAll orders every type in the registry, in declaration order for ties.
func (b *Builder) OrderAll() ([]string, error) {
	return b.Order(b.reg.Names())
}

// Validate re-checks a caller-supplied order and returns every edge it
// violates, i.e. every parent placed after one of its children. Parents
// missing from order are not reported.
func (b *Builder) Validate(order []string) ([]Edge, error) {
	pos := make(map[string]int, len(order))
	for i, name := range order {
		if _, dup := pos[name]; dup {
			return nil, fmt.Errorf("entity type %q listed twice", name)
		}

		pos[name] = i
	}

	var violated []Edge

	for _, name := range order {
		et, ok := b.reg.Describe(name)
		if !ok {
			return nil, fmt.Errorf("unknown entity type %q", name)
		}

		for _, rel := range et.Parents() {
			if rel.Target == name {
				continue
			}

			p, listed := pos[rel.Target]
			if listed && p > pos[name] {
				violated = append(violated, Edge{Parent: rel.Target, Child: name, Relation: rel.Name})
			}
		}
	}

	return violated, nil
}

// Ranks maps each type to its position in the execution order.
func (b *Builder) Ranks(types []string) (map[string]int, error) {
	order, err := b.Order(types)
	if err != nil {
		return nil, err
	}

	ranks := make(map[string]int, len(order))
	for i, name := range order {
		ranks[name] = i
	}

	return ranks, nil
}
