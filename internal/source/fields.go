// Package source reads the rows a load run consumes.
//
// A row is an ordered set of named field values plus its line number in
// the input. Sources are iterated with range-over-func:
//
//	for row, err := range src.Rows(ctx) {
//	    ...
//	}
package source

import (
	"entity-loader/internal/common"
)

// Fields is an ordered map of field names to values. The zero value is
// empty and ready to use.
type Fields struct {
	keys   []string
	values map[string]any
}

// NewFields builds Fields from alternating name, value pairs.
func NewFields(kv ...any) *Fields {
	f := &Fields{}

	for i := 0; i+1 < len(kv); i += 2 {
		name, _ := kv[i].(string)
		f.Set(name, kv[i+1])
	}

	return f
}

// Get returns the value of a field.
func (f *Fields) Get(name string) (any, bool) {
	if f == nil {
		return nil, false
	}

	v, ok := f.values[name]

	return v, ok
}

// Set assigns a field, keeping its first position.
func (f *Fields) Set(name string, v any) {
	if f.values == nil {
		f.values = make(map[string]any)
	}

	if _, exists := f.values[name]; !exists {
		f.keys = append(f.keys, name)
	}

	f.values[name] = v
}

// Keys returns the field names in input order.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}

	return append([]string(nil), f.keys...)
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}

	return len(f.keys)
}

// IsEmpty reports whether every field is blank.
func (f *Fields) IsEmpty() bool {
	for _, k := range f.Keys() {
		if !common.IsBlank(f.values[k]) {
			return false
		}
	}

	return true
}

// Map returns a copy of the fields as a plain map.
func (f *Fields) Map() map[string]any {
	out := make(map[string]any, f.Len())
	for _, k := range f.Keys() {
		out[k] = f.values[k]
	}

	return out
}

// Row is one input record.
type Row struct {
	Fields *Fields
	// Line is the 1-based position of the row in the input; for CSV it is
	// the physical line, so the first data row after a header is line 2.
	Line int
}

// Get returns a field of the row.
func (r Row) Get(name string) (any, bool) {
	return r.Fields.Get(name)
}

// IsEmpty reports whether every field of the row is blank.
func (r Row) IsEmpty() bool {
	return r.Fields.IsEmpty()
}
