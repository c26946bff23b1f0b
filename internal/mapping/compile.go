package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"entity-loader/internal/graph"
	"entity-loader/internal/importerr"
	"entity-loader/internal/schema"
	"entity-loader/internal/transform"
)

// Compile validates def and builds the Plan a run executes. Structural
// problems are returned together as a *importerr.MappingStructureError; a
// dependency cycle is returned as a *importerr.DependencyCycleError. Both
// are fatal: no row may be processed with a mapping that fails to compile.
func Compile(def *MappingDefinition, reg *schema.Registry, transforms *transform.Registry) (*Plan, error) {
	c := newCompiler(def, reg, transforms, true)
	c.run()

	if c.cycle != nil {
		return nil, c.cycle
	}

	if c.diags.HasErrors() {
		problems := make([]string, 0, len(c.diags.Errors))
		for _, d := range c.diags.Errors {
			problems = append(problems, d.String())
		}

		return nil, &importerr.MappingStructureError{Problems: problems}
	}

	return &Plan{
		Definition: def,
		Entities:   c.entities,
		Order:      c.order,
		Warnings:   c.diags.Warnings,
	}, nil
}

// orderEntities computes the entity type order and sorts the compiled
// entities by (dependency rank, standard before pivot, execution_order,
// declaration).
func (c *compiler) orderEntities() {
	if len(c.entities) == 0 {
		return
	}

	// Independent types keep the order their mappings ask for.
	seed := append([]*CompiledEntity(nil), c.entities...)
	sort.SliceStable(seed, func(i, j int) bool {
		return seed[i].Mapping.ExecutionOrder < seed[j].Mapping.ExecutionOrder
	})

	var types []string

	seen := make(map[string]bool)

	for _, ce := range seed {
		if !seen[ce.Entity.Name] {
			seen[ce.Entity.Name] = true
			types = append(types, ce.Entity.Name)
		}
	}

	b := graph.NewBuilder(c.reg)

	var (
		ranks map[string]int
		err   error
	)

	if c.def.Flow != nil && len(c.def.Flow.OrderOverride) > 0 {
		ranks = c.overrideRanks(b, types)
		if ranks == nil {
			return
		}
	} else {
		ranks, err = b.Ranks(types)
		if err != nil {
			var cycle *importerr.DependencyCycleError
			if errors.As(err, &cycle) {
				c.cycle = cycle
			}

			c.diags.AddError("dependency_cycle", err.Error(), "", "")

			return
		}
	}

	c.order = make([]string, len(types))
	copy(c.order, types)
	sort.SliceStable(c.order, func(i, j int) bool { return ranks[c.order[i]] < ranks[c.order[j]] })

	for _, ce := range c.entities {
		ce.rank = ranks[ce.Entity.Name]

		if ce.Pivot != nil {
			if r, ok := ranks[ce.Pivot.Relation.Target]; ok && r > ce.rank {
				ce.rank = r
			}
		}
	}

	sort.SliceStable(c.entities, func(i, j int) bool {
		x, y := c.entities[i], c.entities[j]

		if x.rank != y.rank {
			return x.rank < y.rank
		}

		if x.Mapping.IsPivot() != y.Mapping.IsPivot() {
			return !x.Mapping.IsPivot()
		}

		if xo, yo := x.Mapping.ExecutionOrder, y.Mapping.ExecutionOrder; xo != yo {
			return xo < yo
		}

		return x.Index < y.Index
	})
}

// overrideRanks accepts a manual order only if it lists every mapped type
// and violates no dependency. Cycles can therefore never be overridden.
func (c *compiler) overrideRanks(b *graph.Builder, types []string) map[string]int {
	override := c.def.Flow.OrderOverride
	listed := make(map[string]bool, len(override))
	ok := true

	for _, name := range override {
		if _, known := c.reg.Describe(name); !known {
			c.diags.AddError("invalid_order_override", fmt.Sprintf("order_override names unknown entity %q", name),
				"", "flow_config.order_override", suggest(name, c.reg.Names())...)

			ok = false
		}

		listed[name] = true
	}

	for _, name := range types {
		if !listed[name] {
			c.diags.AddError("invalid_order_override", fmt.Sprintf("order_override does not list %s", name),
				"", "flow_config.order_override")

			ok = false
		}
	}

	if !ok {
		return nil
	}

	violated, err := b.Validate(override)
	if err != nil {
		c.diags.AddError("invalid_order_override", err.Error(), "", "flow_config.order_override")
		return nil
	}

	if len(violated) > 0 {
		parts := make([]string, len(violated))
		for i, e := range violated {
			parts[i] = e.String()
		}

		c.diags.AddError("order_override_violates_dependencies",
			"order_override runs children before their parents: "+strings.Join(parts, "; "),
			"", "flow_config.order_override")

		return nil
	}

	ranks := make(map[string]int, len(override))
	for i, name := range override {
		ranks[name] = i
	}

	return ranks
}
