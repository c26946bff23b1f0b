package flow

import (
	"fmt"
	"strings"

	"entity-loader/internal/transform"
)

// maxExamples caps the examples listed in an aggregate warning.
const maxExamples = 5

// EntityStats are the counters of one entity mapping.
type EntityStats struct {
	Label  string `json:"label"`
	Entity string `json:"entity"`

	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`

	Attached     int `json:"attached,omitempty"`
	Detached     int `json:"detached,omitempty"`
	PivotUpdated int `json:"pivot_updated,omitempty"`
}

// RunStatistics accumulates the outcome of a run. It is owned by the run
// and updated once per row.
type RunStatistics struct {
	// Rows is the number of rows read, empty ones included.
	Rows int `json:"rows"`
	// Imported rows wrote at least one entity.
	Imported int `json:"imported"`
	// Skipped rows failed validation or only matched existing records under
	// the skip duplicate strategy.
	Skipped    int `json:"skipped"`
	ErrorCount int `json:"error_count"`
	// Suppressed counts errors silenced by a continue_silent decision.
	Suppressed int `json:"suppressed"`

	EmptyRows   []int                  `json:"empty_rows,omitempty"`
	Truncations []transform.Truncation `json:"truncations,omitempty"`
	Errors      []RowError             `json:"errors,omitempty"`

	Entities []*EntityStats `json:"entities"`
	byLabel  map[string]*EntityStats
}

func newStatistics() *RunStatistics {
	return &RunStatistics{byLabel: make(map[string]*EntityStats)}
}

// Entity returns the counters of a mapping label, creating them on first use.
func (s *RunStatistics) Entity(label, entity string) *EntityStats {
	if es, ok := s.byLabel[label]; ok {
		return es
	}

	es := &EntityStats{Label: label, Entity: entity}
	s.byLabel[label] = es
	s.Entities = append(s.Entities, es)

	return es
}

// HasErrors reports whether any row failed, reported or not.
func (s *RunStatistics) HasErrors() bool {
	return s.ErrorCount > 0 || s.Suppressed > 0 || len(s.Errors) > 0
}

// Warnings returns the aggregate warnings of the run: skipped empty rows and
// truncated values.
func (s *RunStatistics) Warnings() []string {
	var out []string

	if n := len(s.EmptyRows); n > 0 {
		lines := make([]string, 0, min(n, maxExamples))
		for _, l := range s.EmptyRows[:min(n, maxExamples)] {
			lines = append(lines, fmt.Sprint(l))
		}

		out = append(out, fmt.Sprintf("%d empty %s skipped (lines %s)",
			n, plural(n, "row", "rows"), withRemainder(lines, n)))
	}

	if n := len(s.Truncations); n > 0 {
		examples := make([]string, 0, min(n, maxExamples))
		for _, t := range s.Truncations[:min(n, maxExamples)] {
			examples = append(examples, fmt.Sprintf("line %d %s.%s (%d > %d)",
				t.Line, t.Entity, t.Field, t.OriginalLength, t.MaxLength))
		}

		out = append(out, fmt.Sprintf("%d %s truncated: %s",
			n, plural(n, "value", "values"), withRemainder(examples, n)))
	}

	return out
}

func withRemainder(examples []string, total int) string {
	s := strings.Join(examples, ", ")
	if rest := total - len(examples); rest > 0 {
		s += fmt.Sprintf(" and %d more", rest)
	}

	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}
