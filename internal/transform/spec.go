package transform

import (
	"errors"
	"fmt"
	"strings"
)

// Spec is a parsed transform key.
type Spec struct {
	Name string
	// Arg is the raw parameter string after the first ":"; empty when the
	// key has no parameters.
	Arg    string
	HasArg bool
}

// ParseSpec parses a key such as "round:2" or "concat: ,first,last".
// The name is trimmed and lowercased; the parameter string is kept as is.
func ParseSpec(key string) (Spec, error) {
	name, arg, hasArg := strings.Cut(key, ":")

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Spec{}, errors.New("empty transform name")
	}

	return Spec{Name: name, Arg: arg, HasArg: hasArg}, nil
}

// Args splits the parameter string on commas. Parameters are not trimmed so
// that separators like " " survive.
func (s Spec) Args() []string {
	if !s.HasArg {
		return nil
	}

	return strings.Split(s.Arg, ",")
}

// String reassembles the key.
func (s Spec) String() string {
	if !s.HasArg {
		return s.Name
	}

	return fmt.Sprintf("%s:%s", s.Name, s.Arg)
}
