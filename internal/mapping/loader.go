package mapping

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile loads and parses a YAML mapping file from the given path.
func LoadFile(path string) (*MappingDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses YAML data into a MappingDefinition. JSON documents are
// accepted too.
func Parse(data []byte) (*MappingDefinition, error) {
	var def MappingDefinition

	err := yaml.Unmarshal(data, &def)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping YAML: %w", err)
	}

	// Apply defaults and normalize
	applyDefaults(&def)

	return &def, nil
}

// applyDefaults fills in default values for optional fields.
func applyDefaults(def *MappingDefinition) {
	if def.Version == "" {
		def.Version = "1"
	}

	for i := range def.Mappings {
		m := &def.Mappings[i]

		if m.Type == "" {
			m.Type = TypeModel
		}

		if m.Options.DuplicateStrategy == "" {
			m.Options.DuplicateStrategy = DuplicateError
		}

		if m.Options.RelationSync == "" {
			m.Options.RelationSync = RelationSyncKeep
		}

		if m.IsPivot() && m.Options.SyncStrategy == "" {
			m.Options.SyncStrategy = SyncReplace
		}
	}
}

// Marshal serializes a MappingDefinition to YAML.
func Marshal(def *MappingDefinition) ([]byte, error) {
	return yaml.Marshal(def)
}

// WriteFile writes a MappingDefinition to the given path.
func WriteFile(def *MappingDefinition, path string) error {
	data, err := Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write mapping file %s: %w", path, err)
	}

	return nil
}
