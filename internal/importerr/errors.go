// Package importerr defines the error taxonomy of a load run and the
// heuristic classifier used for reporting.
//
// Structural errors (MappingStructureError, DependencyCycleError) are fatal
// and abort a run before any row is processed. Everything else is
// row-scoped.
package importerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError is a field-level rule failure on an assembled entity.
type ValidationError struct {
	Entity string
	// Fields maps an attribute name to its failure messages.
	Fields map[string][]string
}

// NewValidationError returns an empty ValidationError for entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Fields: make(map[string][]string)}
}

// Add records a message for field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}

	e.Fields[field] = append(e.Fields[field], message)
}

// Empty reports whether no failures were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// FieldNames returns the failing fields, sorted.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, name := range e.FieldNames() {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], ", "))
	}

	if e.Entity == "" {
		return "validation failed: " + strings.Join(parts, "; ")
	}

	return fmt.Sprintf("validation failed for %s: %s", e.Entity, strings.Join(parts, "; "))
}

// ResolutionKind distinguishes relation resolution failures.
type ResolutionKind string

const (
	MissingRequired  ResolutionKind = "missing_required"
	UniqueViolation  ResolutionKind = "unique_violation"
	DataTooLong      ResolutionKind = "data_too_long"
	ResolutionFailed ResolutionKind = "resolution_failed"
)

// RelationResolutionError reports that a related entity could not be found
// or created.
type RelationResolutionError struct {
	Kind     ResolutionKind
	Relation string
	// Entity is the related entity type that was being resolved.
	Entity      string
	LookupField string
	LookupValue any
	// Fields lists the attributes involved (e.g. the missing required ones).
	Fields []string
	Err    error
}

func (e *RelationResolutionError) Error() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "relation %q", e.Relation)

	if e.LookupField != "" {
		fmt.Fprintf(&sb, " (%s=%v)", e.LookupField, e.LookupValue)
	}

	switch e.Kind {
	case MissingRequired:
		fmt.Fprintf(&sb, ": cannot create %s, missing required %s", e.Entity, strings.Join(e.Fields, ", "))
	case UniqueViolation:
		fmt.Fprintf(&sb, ": %s violates a unique constraint", e.Entity)
	case DataTooLong:
		fmt.Fprintf(&sb, ": value too long for %s", e.Entity)
	default:
		fmt.Fprintf(&sb, ": cannot resolve %s", e.Entity)
	}

	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

func (e *RelationResolutionError) Unwrap() error {
	return e.Err
}

// DuplicateKeyError is a unique-key collision under the "error" duplicate strategy.
type DuplicateKeyError struct {
	Entity string
	Key    map[string]any
	// ExistingID is the identifier of the record already holding the key.
	ExistingID string
}

func (e *DuplicateKeyError) Error() string {
	names := make([]string, 0, len(e.Key))
	for k := range e.Key {
		names = append(names, k)
	}

	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, k := range names {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, e.Key[k]))
	}

	return fmt.Sprintf("duplicate %s with %s (existing id %s)", e.Entity, strings.Join(pairs, ", "), e.ExistingID)
}

// DependencyCycleError carries the entity types that form a cycle.
type DependencyCycleError struct {
	Members []string
}

func (e *DependencyCycleError) Error() string {
	return "circular dependency between entity types: " + strings.Join(e.Members, ", ")
}

// MappingStructureError collects every structural problem found while
// loading a mapping document.
type MappingStructureError struct {
	Problems []string
}

func (e *MappingStructureError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid mapping: " + e.Problems[0]
	}

	return fmt.Sprintf("invalid mapping (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// IsFatal reports whether err must abort a run before row processing.
func IsFatal(err error) bool {
	var cycle *DependencyCycleError
	var structure *MappingStructureError

	return errors.As(err, &cycle) || errors.As(err, &structure)
}
