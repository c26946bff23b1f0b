package transform

import (
	"fmt"
	"sort"
	"strings"

	"entity-loader/internal/match"
)

// Func transforms one value. It receives the output of the previous
// transform in the chain.
type Func func(v any, ctx *Context) (any, error)

// Definition describes a named transform.
type Definition struct {
	Name        string
	Description string
	// Interactive transforms need Prompt answered when used without
	// parameters.
	Interactive bool
	Prompt      string
	// Build validates the parameters and returns the transform.
	Build func(spec Spec) (Func, error)
}

// Registry holds the transforms available to mappings.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry returns a registry with every built-in transform.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition)}

	for _, def := range builtins() {
		r.defs[def.Name] = def
	}

	return r
}

// Register adds or replaces a transform.
func (r *Registry) Register(def Definition) error {
	name := strings.ToLower(strings.TrimSpace(def.Name))
	if name == "" {
		return fmt.Errorf("transform name is required")
	}

	if def.Build == nil {
		return fmt.Errorf("transform %q: Build is required", name)
	}

	def.Name = name
	r.defs[name] = def

	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[strings.ToLower(name)]

	return def, ok
}

// Has returns true if a transform with the given name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)

	return ok
}

// Names returns all transform names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// UnknownTransformError is returned for a key whose name is not registered.
type UnknownTransformError struct {
	Name       string
	Suggestion string
}

func (e *UnknownTransformError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("transform %q is not registered (did you mean %q?)", e.Name, e.Suggestion)
	}

	return fmt.Sprintf("transform %q is not registered", e.Name)
}

// InteractiveError is returned when a key still needs operator input.
type InteractiveError struct {
	Name string
}

func (e *InteractiveError) Error() string {
	return fmt.Sprintf("transform %q needs parameters; resolve interactive transforms before the run", e.Name)
}

// Check parses and validates one key without keeping the result.
func (r *Registry) Check(key string) error {
	_, _, err := r.compileKey(key)

	return err
}

// Compile validates keys and builds the chain that applies them left to right.
func (r *Registry) Compile(keys []string) (Chain, error) {
	chain := Chain{
		specs: make([]Spec, 0, len(keys)),
		funcs: make([]Func, 0, len(keys)),
	}

	for _, key := range keys {
		spec, fn, err := r.compileKey(key)
		if err != nil {
			return Chain{}, err
		}

		chain.specs = append(chain.specs, spec)
		chain.funcs = append(chain.funcs, fn)
	}

	return chain, nil
}

func (r *Registry) compileKey(key string) (Spec, Func, error) {
	spec, err := ParseSpec(key)
	if err != nil {
		return Spec{}, nil, err
	}

	def, ok := r.defs[spec.Name]
	if !ok {
		suggestion, _ := match.Suggest(spec.Name, r.Names())

		return Spec{}, nil, &UnknownTransformError{Name: spec.Name, Suggestion: suggestion}
	}

	if def.Interactive && strings.TrimSpace(spec.Arg) == "" {
		return Spec{}, nil, &InteractiveError{Name: spec.Name}
	}

	fn, err := def.Build(spec)
	if err != nil {
		return Spec{}, nil, fmt.Errorf("transform %q: %w", spec.String(), err)
	}

	return spec, fn, nil
}

// Chain is a compiled, ordered list of transforms.
type Chain struct {
	specs []Spec
	funcs []Func
}

// Len returns the number of transforms in the chain.
func (c Chain) Len() int {
	return len(c.funcs)
}

// Keys returns the keys the chain was compiled from.
func (c Chain) Keys() []string {
	keys := make([]string, len(c.specs))
	for i, s := range c.specs {
		keys[i] = s.String()
	}

	return keys
}

// Apply runs the chain on v, left to right.
func (c Chain) Apply(v any, ctx *Context) (any, error) {
	var err error

	for i, fn := range c.funcs {
		v, err = fn(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.specs[i].Name, err)
		}
	}

	return v, nil
}
