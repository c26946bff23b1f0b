package mapping

import (
	"errors"
	"fmt"
	"strings"
)

// PivotSegment is the reserved segment that addresses association
// attributes of a many-to-many relation ("tags.pivot.role").
const PivotSegment = "pivot"

// Segment is one element of a target path.
type Segment struct {
	Name       string
	IsRelation bool
	// IsArray marks a collection relation whose elements each receive the
	// value ("books.*.title").
	IsArray         bool
	IsOptional      bool
	CreateIfMissing bool
}

// TargetPath is a parsed target string.
type TargetPath struct {
	Segments []Segment
}

// PathError is a structural error in a target string.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid target path %q: %s", e.Path, e.Reason)
}

// ParseTargetPath parses a target string such as "author.email+" or
// "books.*.title". It is pure; it does not consult any schema.
func ParseTargetPath(path string) (TargetPath, error) {
	fail := func(format string, args ...any) (TargetPath, error) {
		return TargetPath{}, &PathError{Path: path, Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(path) == "" {
		return TargetPath{}, errors.New("empty target path")
	}

	parts := strings.Split(path, ".")
	segments := make([]Segment, 0, len(parts))
	seenArray := false

	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return fail("empty segment at position %d", i+1)
		}

		if part == "*" {
			if len(segments) == 0 {
				return fail("%q must follow a relation", "*")
			}

			prev := &segments[len(segments)-1]
			if prev.IsArray {
				return fail("repeated %q after %q", "*", prev.Name)
			}

			if seenArray {
				return fail("nested %q markers are not supported", "*")
			}

			if i == len(parts)-1 {
				return fail("%q must be followed by an attribute", "*")
			}

			prev.IsArray = true
			seenArray = true

			continue
		}

		seg := Segment{}

		if strings.HasPrefix(part, "?") {
			seg.IsOptional = true
			part = part[1:]
		}

		if strings.HasSuffix(part, "+") {
			seg.CreateIfMissing = true
			part = part[:len(part)-1]
		}

		if !isValidIdent(part) {
			return fail("invalid segment name %q", part)
		}

		seg.Name = part
		seg.IsRelation = i < len(parts)-1
		segments = append(segments, seg)
	}

	last := &segments[len(segments)-1]
	if last.IsOptional || last.CreateIfMissing {
		if len(segments) == 1 {
			return fail("markers on %q need a relation to apply to", last.Name)
		}

		owner := &segments[len(segments)-2]
		owner.IsOptional = owner.IsOptional || last.IsOptional
		owner.CreateIfMissing = owner.CreateIfMissing || last.CreateIfMissing
		last.IsOptional = false
		last.CreateIfMissing = false
	}

	if last.Name == PivotSegment {
		return fail("%q must be followed by an attribute", PivotSegment)
	}

	return TargetPath{Segments: segments}, nil
}

// String re-serializes the path. The result parses back to an equal path,
// with markers written on the relation they apply to.
func (p TargetPath) String() string {
	parts := make([]string, 0, len(p.Segments)+1)

	for _, s := range p.Segments {
		var sb strings.Builder

		if s.IsOptional {
			sb.WriteByte('?')
		}

		sb.WriteString(s.Name)

		if s.CreateIfMissing {
			sb.WriteByte('+')
		}

		parts = append(parts, sb.String())

		if s.IsArray {
			parts = append(parts, "*")
		}
	}

	return strings.Join(parts, ".")
}

// IsAttribute reports whether the path is a plain attribute of the mapped
// entity.
func (p TargetPath) IsAttribute() bool {
	return len(p.Segments) == 1
}

// Attribute returns the final segment name.
func (p TargetPath) Attribute() string {
	if len(p.Segments) == 0 {
		return ""
	}

	return p.Segments[len(p.Segments)-1].Name
}

// Relations returns the relation segments, i.e. all but the last.
func (p TargetPath) Relations() []Segment {
	if len(p.Segments) < 2 {
		return nil
	}

	return p.Segments[:len(p.Segments)-1]
}

// IsPivot reports whether the path addresses an association attribute.
func (p TargetPath) IsPivot() bool {
	rels := p.Relations()

	return len(rels) >= 2 && rels[len(rels)-1].Name == PivotSegment
}

// Prefix returns the dotted relation names of the first n relation segments,
// without markers. It is the grouping key of columns sharing a relation.
func (p TargetPath) Prefix(n int) string {
	names := make([]string, 0, n)
	for _, s := range p.Relations()[:n] {
		names = append(names, s.Name)
	}

	return strings.Join(names, ".")
}

// Equal compares two paths structurally.
func (p TargetPath) Equal(other TargetPath) bool {
	if len(p.Segments) != len(other.Segments) {
		return false
	}

	for i := range p.Segments {
		if p.Segments[i] != other.Segments[i] {
			return false
		}
	}

	return true
}

// isValidIdent checks if a string is a valid attribute or relation name.
func isValidIdent(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			// First character must be letter or underscore
			if !isLetter(r) && r != '_' {
				return false
			}
		} else {
			// Subsequent characters can be letter, digit, or underscore
			if !isLetter(r) && !isDigit(r) && r != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
