package importerr

import (
	"errors"
	"strings"
)

// Kind is a reporting bucket.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindMissingRequired Kind = "missing_required"
	KindUniqueViolation Kind = "unique_violation"
	KindDataTooLong     Kind = "data_too_long"
	KindDuplicateKey    Kind = "duplicate_key"
	KindRecordNotFound  Kind = "record_not_found"
	KindForeignKey      Kind = "foreign_key"
	KindNotNull         Kind = "not_null"
	KindInvalidValue    Kind = "invalid_value"
	KindConnection      Kind = "connection"
	KindCycle           Kind = "dependency_cycle"
	KindMapping         Kind = "mapping_structure"
	KindUnhandled       Kind = "unhandled"
)

// Classification is a human-readable bucket for an error.
type Classification struct {
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`
	Hint  string `json:"hint"`
}

var classifications = map[Kind]Classification{
	KindValidation: {
		Label: "Validation failed",
		Hint:  "Check the row values against the column validation rules.",
	},
	KindMissingRequired: {
		Label: "Missing required related data",
		Hint:  "Map every required attribute of the related entity or disable create_if_missing.",
	},
	KindUniqueViolation: {
		Label: "Duplicate value",
		Hint:  "A unique attribute already holds this value; use a unique_key with duplicate_strategy skip or update.",
	},
	KindDataTooLong: {
		Label: "Value too long",
		Hint:  "Enable truncate_long_fields or add a truncate transform.",
	},
	KindDuplicateKey: {
		Label: "Duplicate record",
		Hint:  "Set duplicate_strategy to skip or update to accept existing records.",
	},
	KindRecordNotFound: {
		Label: "Related record not found",
		Hint:  "Load the referenced entity first or enable create_if_missing.",
	},
	KindForeignKey: {
		Label: "Broken reference",
		Hint:  "The referenced record does not exist; check the relation lookup field.",
	},
	KindNotNull: {
		Label: "Missing value",
		Hint:  "A column that cannot be empty received no value; add a default or a required rule.",
	},
	KindInvalidValue: {
		Label: "Invalid value",
		Hint:  "The value does not fit the attribute type; add a transform to convert it.",
	},
	KindConnection: {
		Label: "Storage unavailable",
		Hint:  "Check database connectivity and retry the run.",
	},
	KindCycle: {
		Label: "Circular dependency",
		Hint:  "Break the cycle between the listed entity types; it is never resolved automatically.",
	},
	KindMapping: {
		Label: "Invalid mapping",
		Hint:  "Fix the mapping document; run the validate command for details.",
	},
	KindUnhandled: {
		Label: "Unhandled error",
		Hint:  "Inspect the error message; this failure has no known classification.",
	},
}

// messagePatterns classify untyped storage errors. Order matters: the first
// match wins.
var messagePatterns = []struct {
	kind     Kind
	patterns []string
}{
	{KindUniqueViolation, []string{"unique", "duplicate", "23505"}},
	{KindDataTooLong, []string{"too long", "value too large", "22001", "data too long"}},
	{KindForeignKey, []string{"foreign key", "23503"}},
	{KindNotNull, []string{"not-null", "not null", "null value", "23502"}},
	{KindRecordNotFound, []string{"not found", "no rows"}},
	{KindInvalidValue, []string{"invalid input syntax", "22p02", "cannot parse", "invalid syntax"}},
	{KindConnection, []string{"connection refused", "deadlock", "timeout", "broken pipe", "connection reset"}},
}

// Classify maps an error to a reporting bucket. Typed errors map directly;
// anything else is matched by message and falls back to KindUnhandled.
func Classify(err error) Classification {
	return Lookup(classifyKind(err))
}

// Lookup returns the classification of a kind.
func Lookup(kind Kind) Classification {
	c, ok := classifications[kind]
	if !ok {
		c = classifications[KindUnhandled]
		kind = KindUnhandled
	}

	c.Kind = kind

	return c
}

func classifyKind(err error) Kind {
	if err == nil {
		return KindUnhandled
	}

	var (
		validation *ValidationError
		resolution *RelationResolutionError
		duplicate  *DuplicateKeyError
		cycle      *DependencyCycleError
		structure  *MappingStructureError
	)

	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &resolution):
		switch resolution.Kind {
		case MissingRequired:
			return KindMissingRequired
		case UniqueViolation:
			return KindUniqueViolation
		case DataTooLong:
			return KindDataTooLong
		}
	case errors.As(err, &duplicate):
		return KindDuplicateKey
	case errors.As(err, &cycle):
		return KindCycle
	case errors.As(err, &structure):
		return KindMapping
	}

	msg := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		for _, needle := range p.patterns {
			if strings.Contains(msg, needle) {
				return p.kind
			}
		}
	}

	return KindUnhandled
}
