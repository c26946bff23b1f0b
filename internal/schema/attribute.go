package schema

import (
	"fmt"
	"strings"

	"entity-loader/internal/common"
)

// AttrType is the storage type of an entity attribute.
type AttrType int

const (
	_ AttrType = iota // zero value means "not declared" and behaves like AttrString

	AttrString
	AttrText
	AttrInt
	AttrFloat
	AttrDecimal
	AttrBool
	AttrDate
	AttrDateTime
	AttrJSON
)

var attrTypeNames = map[AttrType]string{
	AttrString:   "string",
	AttrText:     "text",
	AttrInt:      "int",
	AttrFloat:    "float",
	AttrDecimal:  "decimal",
	AttrBool:     "bool",
	AttrDate:     "date",
	AttrDateTime: "datetime",
	AttrJSON:     "json",
}

// String returns the schema document spelling of the type.
func (t AttrType) String() string {
	if name, ok := attrTypeNames[t]; ok {
		return name
	}

	return common.UnknownStr
}

// ParseAttrType parses a schema document type name. An empty name is AttrString.
func ParseAttrType(s string) (AttrType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string", "varchar":
		return AttrString, nil
	case "text":
		return AttrText, nil
	case "int", "integer", "bigint":
		return AttrInt, nil
	case "float", "double":
		return AttrFloat, nil
	case "decimal", "numeric":
		return AttrDecimal, nil
	case "bool", "boolean":
		return AttrBool, nil
	case "date":
		return AttrDate, nil
	case "datetime", "timestamp":
		return AttrDateTime, nil
	case "json", "jsonb":
		return AttrJSON, nil
	default:
		return 0, fmt.Errorf("unknown attribute type %q", s)
	}
}

// IsNumber reports whether values of this type are numeric.
func (t AttrType) IsNumber() bool {
	return t == AttrInt || t == AttrFloat || t == AttrDecimal
}

// IsTextual reports whether values of this type are strings subject to length limits.
func (t AttrType) IsTextual() bool {
	return t == AttrString || t == AttrText || t == 0
}

// Attribute describes one stored attribute of an entity type.
type Attribute struct {
	Name string
	Type AttrType
	// MaxLength limits textual values in runes; 0 means unbounded.
	MaxLength int
	Required  bool
	// Unique is a store-level uniqueness guarantee; lookups on unique
	// attributes are what make lookup-or-create idempotent.
	Unique bool
}
