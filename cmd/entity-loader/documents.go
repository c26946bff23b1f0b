package main

import (
	"errors"
	"fmt"

	"entity-loader/internal/mapping"
	"entity-loader/internal/schema"
)

// documents are the inputs every command starts from.
type documents struct {
	def *mapping.MappingDefinition
	reg *schema.Registry
}

func loadDocuments(g *globalFlags) (*documents, error) {
	if g.mapping == "" {
		return nil, errors.New("--mapping is required")
	}

	if g.schema == "" {
		return nil, errors.New("--schema is required")
	}

	def, err := mapping.LoadFile(g.mapping)
	if err != nil {
		return nil, err
	}

	doc, err := schema.LoadDocument(g.schema)
	if err != nil {
		return nil, err
	}

	reg, err := doc.Registry()
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", g.schema, err)
	}

	return &documents{def: def, reg: reg}, nil
}
