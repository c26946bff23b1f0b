package mapping

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"entity-loader/internal/common"
)

// --- StringOrArray YAML methods ---

// UnmarshalYAML implements custom YAML unmarshaling for StringOrArray.
// Accepts either a single string or an array of strings.
func (s *StringOrArray) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var str string

		err := node.Decode(&str)
		if err != nil {
			return err
		}

		if str != "" {
			*s = StringOrArray{str}
		} else {
			*s = StringOrArray{}
		}

		return nil

	case yaml.SequenceNode:
		var arr []string

		err := node.Decode(&arr)
		if err != nil {
			return err
		}

		*s = arr

		return nil

	default:
		return fmt.Errorf("expected string or array, got %v", node.Kind)
	}
}

// MarshalYAML implements custom YAML marshaling for StringOrArray.
// Outputs a single string if length is 1, otherwise an array.
func (s StringOrArray) MarshalYAML() (any, error) {
	if len(s) == 1 {
		return s[0], nil
	}

	return []string(s), nil
}

// First returns the first element or empty string if empty.
func (s StringOrArray) First() string {
	if v, ok := common.First(s); ok {
		return v
	}

	return ""
}

// IsEmpty returns true if the array is empty.
func (s StringOrArray) IsEmpty() bool {
	return common.IsEmpty(s)
}

// IsComposite returns true if the array names more than one attribute.
func (s StringOrArray) IsComposite() bool {
	return common.IsMultiple(s)
}

// Contains returns true if the array contains the given string.
func (s StringOrArray) Contains(str string) bool {
	return slices.Contains(s, str)
}

// --- option enums ---

// MappingType distinguishes entity mappings from association syncs.
type MappingType string

const (
	TypeModel     MappingType = "model"
	TypePivotSync MappingType = "pivot_sync"
)

// IsValid returns true if the type is a recognized value.
func (t MappingType) IsValid() bool {
	return t == TypeModel || t == TypePivotSync
}

// DuplicateStrategy decides what happens when the unique key matches an
// existing record.
type DuplicateStrategy string

const (
	DuplicateError  DuplicateStrategy = "error"
	DuplicateSkip   DuplicateStrategy = "skip"
	DuplicateUpdate DuplicateStrategy = "update"
)

// IsValid returns true if the strategy is a recognized value.
func (d DuplicateStrategy) IsValid() bool {
	return d == DuplicateError || d == DuplicateSkip || d == DuplicateUpdate
}

// RelationSync decides what happens to owned collection members that are
// not present in the row.
type RelationSync string

const (
	RelationSyncKeep   RelationSync = "keep"
	RelationSyncDelete RelationSync = "delete"
)

// IsValid returns true if the value is recognized.
func (r RelationSync) IsValid() bool {
	return r == RelationSyncKeep || r == RelationSyncDelete
}

// SyncStrategy is the association reconciliation strategy of a pivot sync.
type SyncStrategy string

const (
	// SyncReplace makes the owner's associations equal to the set asserted
	// by the rows of the run.
	SyncReplace SyncStrategy = "sync"
	// SyncAttach only adds associations.
	SyncAttach SyncStrategy = "attach"
)

// IsValid returns true if the strategy is a recognized value.
func (s SyncStrategy) IsValid() bool {
	return s == SyncReplace || s == SyncAttach
}

// ErrorPolicy is the run-level reaction to row errors.
type ErrorPolicy string

const (
	PolicyStop     ErrorPolicy = "stop"
	PolicyContinue ErrorPolicy = "continue"
)

// IsValid returns true if the policy is a recognized value.
func (p ErrorPolicy) IsValid() bool {
	return p == PolicyStop || p == PolicyContinue
}
