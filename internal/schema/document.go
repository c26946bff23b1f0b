package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a set of entity declarations. It lets the
// CLI load entity types without compiled Go models.
type Document struct {
	Entities []EntityDoc `yaml:"entities"`
}

// EntityDoc declares one entity type.
type EntityDoc struct {
	Name       string         `yaml:"name"`
	Table      string         `yaml:"table,omitempty"`
	Attributes []AttributeDoc `yaml:"attributes,omitempty"`
	Relations  []RelationDoc  `yaml:"relations,omitempty"`
}

// AttributeDoc declares one attribute.
type AttributeDoc struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type,omitempty"`
	MaxLength int    `yaml:"max_length,omitempty"`
	Required  bool   `yaml:"required,omitempty"`
	Unique    bool   `yaml:"unique,omitempty"`
}

// RelationDoc declares one relation. Kind is one of belongs_to, has_one,
// has_many, belongs_to_many.
type RelationDoc struct {
	Name            string         `yaml:"name"`
	Kind            string         `yaml:"kind"`
	Entity          string         `yaml:"entity"`
	ForeignKey      string         `yaml:"foreign_key,omitempty"`
	Table           string         `yaml:"table,omitempty"`
	OwnerKey        string         `yaml:"owner_key,omitempty"`
	RelatedKey      string         `yaml:"related_key,omitempty"`
	PivotAttributes []AttributeDoc `yaml:"pivot_attributes,omitempty"`
}

// LoadDocument reads and parses a schema file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}

	return ParseDocument(data)
}

// ParseDocument parses YAML (or JSON) schema data.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}

	return &doc, nil
}

// Decls converts the document into entity declarations.
func (d *Document) Decls() ([]EntityDecl, error) {
	var errs []error

	decls := make([]EntityDecl, 0, len(d.Entities))

	for _, ed := range d.Entities {
		decl := EntityDecl{Name: ed.Name, Table: ed.Table}

		attrs, err := attributesFromDoc(ed.Attributes)
		if err != nil {
			errs = append(errs, fmt.Errorf("entity %s: %w", ed.Name, err))
		}

		decl.Attributes = attrs

		for _, rd := range ed.Relations {
			rel, err := rd.relation()
			if err != nil {
				errs = append(errs, fmt.Errorf("relation %s.%s: %w", ed.Name, rd.Name, err))
				continue
			}

			decl.Relations = append(decl.Relations, rel)
		}

		decls = append(decls, decl)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return decls, nil
}

// Registry builds a registry from the document.
func (d *Document) Registry() (*Registry, error) {
	decls, err := d.Decls()
	if err != nil {
		return nil, err
	}

	return NewRegistryFromDecls(decls...)
}

func (rd RelationDoc) relation() (Relation, error) {
	switch strings.ToLower(strings.TrimSpace(rd.Kind)) {
	case "belongs_to", "owned_single":
		return BelongsTo{Name: rd.Name, Entity: rd.Entity, ForeignKey: rd.ForeignKey}, nil
	case "has_one", "inverse_single":
		return HasOne{Name: rd.Name, Entity: rd.Entity, ForeignKey: rd.ForeignKey}, nil
	case "has_many", "owned_many":
		return HasMany{Name: rd.Name, Entity: rd.Entity, ForeignKey: rd.ForeignKey}, nil
	case "belongs_to_many", "many_to_many":
		pivot, err := attributesFromDoc(rd.PivotAttributes)
		if err != nil {
			return nil, err
		}

		return BelongsToMany{
			Name:            rd.Name,
			Entity:          rd.Entity,
			Table:           rd.Table,
			OwnerKey:        rd.OwnerKey,
			RelatedKey:      rd.RelatedKey,
			PivotAttributes: pivot,
		}, nil
	default:
		return nil, fmt.Errorf("unknown relation kind %q", rd.Kind)
	}
}

func attributesFromDoc(docs []AttributeDoc) ([]Attribute, error) {
	var errs []error

	out := make([]Attribute, 0, len(docs))

	for _, ad := range docs {
		t, err := ParseAttrType(ad.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("attribute %s: %w", ad.Name, err))
			continue
		}

		out = append(out, Attribute{
			Name:      ad.Name,
			Type:      t,
			MaxLength: ad.MaxLength,
			Required:  ad.Required,
			Unique:    ad.Unique,
		})
	}

	return out, errors.Join(errs...)
}
