package loader

import (
	"entity-loader/internal/common"
	"entity-loader/internal/importerr"
	"entity-loader/internal/mapping"
	"entity-loader/internal/schema"
	"entity-loader/internal/source"
	"entity-loader/internal/transform"
)

// Values holds the transformed column values of one row for one entity
// mapping. It is built by Loader.Evaluate and discarded with the row.
type Values struct {
	Row    source.Row
	Entity *mapping.CompiledEntity

	// Truncations collects every value cut to fit, from truncate transforms
	// and from attribute length limits alike.
	Truncations []transform.Truncation

	byColumn map[*mapping.CompiledColumn]any
	truncate bool
}

// Get returns the transformed value of col.
func (v *Values) Get(col *mapping.CompiledColumn) any {
	return v.byColumn[col]
}

// Validate runs the validation rules of every column and returns the
// failures as one ValidationError, or nil.
func (v *Values) Validate() error {
	verr := importerr.NewValidationError(v.Entity.Label)

	for _, col := range v.Entity.Columns {
		if len(col.Rules) == 0 {
			continue
		}

		for _, msg := range col.Rules.Check(v.byColumn[col]) {
			verr.Add(col.Target(), msg)
		}
	}

	if verr.Empty() {
		return nil
	}

	return verr
}

// Elements returns how many related entities group g describes in this row.
// List values, as produced by split, give one element per item and are
// zipped by position across the columns of the group; scalar values are
// shared by every element.
func (v *Values) Elements(g *mapping.RelationGroup) int {
	n := 0
	scalar := false

	for _, col := range g.AllColumns() {
		switch val := v.byColumn[col].(type) {
		case []any:
			n = max(n, len(val))
		default:
			if !common.IsBlank(val) {
				scalar = true
			}
		}
	}

	if n == 0 && scalar {
		return 1
	}

	return n
}

// Attributes returns the non-blank attribute values group g sets on its
// idx-th element.
func (v *Values) Attributes(g *mapping.RelationGroup, idx int) map[string]any {
	return v.collect(g.Target, g.Columns, idx)
}

// PivotAttributes returns the non-blank association attribute values of
// the idx-th element of a many-to-many group.
func (v *Values) PivotAttributes(g *mapping.RelationGroup, idx int) map[string]any {
	return v.collect(nil, g.PivotColumns, idx)
}

func (v *Values) collect(et *schema.EntityType, cols []*mapping.CompiledColumn, idx int) map[string]any {
	out := make(map[string]any, len(cols))

	for _, col := range cols {
		if !col.Declared {
			continue
		}

		val := pick(v.byColumn[col], idx)
		if common.IsBlank(val) {
			continue
		}

		if et != nil {
			val = v.fit(et, col.Attribute, val)
		}

		out[col.Attribute.Name] = val
	}

	return out
}

// fit cuts string values longer than the attribute allows, when
// truncation is enabled.
func (v *Values) fit(et *schema.EntityType, a schema.Attribute, val any) any {
	s, ok := val.(string)
	if !ok || !v.truncate || a.MaxLength <= 0 {
		return val
	}

	cut, original, truncated := transform.TruncateString(s, a.MaxLength)
	if !truncated {
		return val
	}

	v.Truncations = append(v.Truncations, transform.Truncation{
		Line:           v.Row.Line,
		Entity:         et.Name,
		Field:          a.Name,
		OriginalLength: original,
		MaxLength:      a.MaxLength,
	})

	return cut
}

// pick returns element idx of a list value. Scalars are broadcast; lists
// shorter than idx yield nil.
func pick(val any, idx int) any {
	list, ok := val.([]any)
	if !ok {
		return val
	}

	if idx < 0 || idx >= len(list) {
		return nil
	}

	return list[idx]
}

// evaluate reads, defaults and transforms the value of one column.
func evaluate(row source.Row, col *mapping.CompiledColumn) (any, []transform.Truncation, error) {
	var raw any

	if col.Mapping.Source != "" {
		raw, _ = row.Get(col.Mapping.Source)
	}

	if common.IsBlank(raw) && col.Mapping.Default != nil {
		raw = *col.Mapping.Default
	}

	tc := &transform.Context{Row: row, Field: col.Mapping.Source, Line: row.Line}

	out, err := col.Chain.Apply(raw, tc)

	return out, tc.Truncations, err
}
