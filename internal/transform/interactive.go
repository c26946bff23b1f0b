package transform

import (
	"context"
	"fmt"
	"strings"
)

// Question asks the operator for the parameters of an interactive transform.
type Question struct {
	Transform string
	// Column identifies where the transform is used, e.g. "Book.published_at".
	Column string
	Prompt string
}

// Prompter collects answers from the operator before a run starts.
type Prompter interface {
	Ask(ctx context.Context, q Question) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, q Question) (string, error)

// Ask calls f.
func (f PrompterFunc) Ask(ctx context.Context, q Question) (string, error) {
	return f(ctx, q)
}

// StaticAnswers answers questions from a table keyed by "column/transform",
// falling back to the transform name alone.
type StaticAnswers map[string]string

// Ask implements Prompter.
func (s StaticAnswers) Ask(_ context.Context, q Question) (string, error) {
	if a, ok := s[q.Column+"/"+q.Transform]; ok {
		return a, nil
	}

	if a, ok := s[q.Transform]; ok {
		return a, nil
	}

	return "", fmt.Errorf("no answer for %s on %s", q.Transform, q.Column)
}

// NeedsInput reports whether any key is an interactive transform without
// parameters.
func (r *Registry) NeedsInput(keys []string) bool {
	for _, key := range keys {
		if r.needsInput(key) {
			return true
		}
	}

	return false
}

func (r *Registry) needsInput(key string) bool {
	spec, err := ParseSpec(key)
	if err != nil {
		return false
	}

	def, ok := r.defs[spec.Name]

	return ok && def.Interactive && strings.TrimSpace(spec.Arg) == ""
}

// ResolveInteractive returns keys with every interactive transform turned
// into a concrete "name:answer" key. Other keys are returned unchanged.
// The prompter is called at most once per interactive key.
func (r *Registry) ResolveInteractive(ctx context.Context, column string, keys []string, p Prompter) ([]string, error) {
	out := make([]string, len(keys))

	for i, key := range keys {
		if !r.needsInput(key) {
			out[i] = key
			continue
		}

		spec, _ := ParseSpec(key)
		def := r.defs[spec.Name]

		if p == nil {
			return nil, &InteractiveError{Name: spec.Name}
		}

		answer, err := p.Ask(ctx, Question{Transform: spec.Name, Column: column, Prompt: def.Prompt})
		if err != nil {
			return nil, fmt.Errorf("collecting parameters for %s on %s: %w", spec.Name, column, err)
		}

		answer = strings.TrimSpace(answer)
		if answer == "" {
			return nil, fmt.Errorf("collecting parameters for %s on %s: empty answer", spec.Name, column)
		}

		resolved := Spec{Name: spec.Name, Arg: answer, HasArg: true}
		if err := r.Check(resolved.String()); err != nil {
			return nil, err
		}

		out[i] = resolved.String()
	}

	return out, nil
}
