package mapping

import (
	"context"
	"fmt"

	"entity-loader/internal/transform"
)

// NeedsInput reports whether any column uses an interactive transform that
// has no parameters yet.
func NeedsInput(def *MappingDefinition, transforms *transform.Registry) bool {
	for i := range def.Mappings {
		for j := range def.Mappings[i].Columns {
			if transforms.NeedsInput(def.Mappings[i].Columns[j].Transforms) {
				return true
			}
		}
	}

	return false
}

// ResolveInteractive asks p for the parameters of every interactive
// transform in def and rewrites the columns in place, so the document can
// be compiled and, if wanted, written back with WriteFile. It runs before
// any row is read.
func ResolveInteractive(ctx context.Context, def *MappingDefinition, transforms *transform.Registry, p transform.Prompter) error {
	for i := range def.Mappings {
		m := &def.Mappings[i]

		for j := range m.Columns {
			col := &m.Columns[j]
			if !transforms.NeedsInput(col.Transforms) {
				continue
			}

			column := fmt.Sprintf("%s.%s", m.Model, col.Target)

			keys, err := transforms.ResolveInteractive(ctx, column, col.Transforms, p)
			if err != nil {
				return fmt.Errorf("%s: %w", m.Label(i), err)
			}

			col.Transforms = keys
		}
	}

	return nil
}
