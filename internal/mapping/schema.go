package mapping

import (
	"fmt"
	"strings"
)

// MappingDefinition is the root of a mapping document.
type MappingDefinition struct {
	// Version of the mapping schema (for future compatibility).
	Version     string        `yaml:"version,omitempty"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Source      *SourceSchema `yaml:"source_schema,omitempty"`
	Flow        *FlowConfig   `yaml:"flow_config,omitempty"`

	// Mappings are the entity mappings, in declaration order.
	Mappings []EntityMapping `yaml:"mappings"`
}

// SourceSchema describes the rows the mapping expects. It is informational
// for the engine; readers use Format and Delimiter.
type SourceSchema struct {
	Format    string   `yaml:"format,omitempty"`
	Delimiter string   `yaml:"delimiter,omitempty"`
	Fields    []string `yaml:"fields,omitempty"`
}

// FlowConfig holds run behavior stored with the mapping. Command line flags
// override it.
type FlowConfig struct {
	ChunkSize          int         `yaml:"chunk_size,omitempty"`
	ErrorPolicy        ErrorPolicy `yaml:"error_policy,omitempty"`
	SkipEmptyRows      *bool       `yaml:"skip_empty_rows,omitempty"`
	TruncateLongFields *bool       `yaml:"truncate_long_fields,omitempty"`

	// OrderOverride lists entity types in the order they must run. It is
	// accepted only when it respects every dependency.
	OrderOverride []string `yaml:"order_override,omitempty"`
}

// EntityMapping maps row fields onto one entity type.
type EntityMapping struct {
	// Model is the target entity type name.
	Model          string      `yaml:"model"`
	ExecutionOrder int         `yaml:"execution_order,omitempty"`
	Type           MappingType `yaml:"type,omitempty"`

	// RelationPath names the many-to-many relation of Model a pivot sync
	// reconciles.
	RelationPath string `yaml:"relation_path,omitempty"`

	Columns []ColumnMapping `yaml:"columns"`
	Options Options         `yaml:"options,omitempty"`
}

// IsPivot reports whether the mapping is an association sync.
func (m *EntityMapping) IsPivot() bool {
	return m.Type == TypePivotSync
}

// Label identifies the mapping in diagnostics, e.g. "Book#2".
func (m *EntityMapping) Label(index int) string {
	model := m.Model
	if model == "" {
		model = "?"
	}

	if m.IsPivot() {
		return fmt.Sprintf("%s.%s#%d", model, m.RelationPath, index+1)
	}

	return fmt.Sprintf("%s#%d", model, index+1)
}

// ColumnMapping maps one source field to one target path. An optional
// target such as ?author.email has to be quoted inside a YAML flow mapping.
type ColumnMapping struct {
	Source     string        `yaml:"source,omitempty"`
	Target     string        `yaml:"target"`
	Transforms StringOrArray `yaml:"transforms,omitempty"`

	// Default is used when the source value is empty, before transforms run.
	Default *string `yaml:"default,omitempty"`

	// ValidationRule is a "|"-separated rule list, e.g. "required|max:50".
	ValidationRule string `yaml:"validation_rule,omitempty"`

	RelationLookup *RelationLookup `yaml:"relation_lookup,omitempty"`
}

// RelationLookup configures how the related entity of a relation column is
// found.
type RelationLookup struct {
	// Field is the attribute of the related entity to look up by.
	Field           string `yaml:"field"`
	CreateIfMissing bool   `yaml:"create_if_missing,omitempty"`
}

// Options are the per-mapping behaviors.
type Options struct {
	// UniqueKey names the attribute(s) identifying an existing record.
	// Several names form a composite key.
	UniqueKey         StringOrArray     `yaml:"unique_key,omitempty"`
	DuplicateStrategy DuplicateStrategy `yaml:"duplicate_strategy,omitempty"`
	RelationSync      RelationSync      `yaml:"relation_sync,omitempty"`
	SyncStrategy      SyncStrategy      `yaml:"sync_strategy,omitempty"`
}

// StringOrArray is a type that can be unmarshaled from either a string or an array of strings.
// Used for unique keys like "isbn" or ["title", "edition"].
type StringOrArray []string

// String joins the elements with ",".
func (s StringOrArray) String() string {
	return strings.Join(s, ",")
}
