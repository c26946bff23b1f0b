package transform

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"entity-loader/internal/common"
	"entity-loader/internal/match"
)

func builtins() []Definition {
	defs := []Definition{
		stringDef("trim", "strip surrounding whitespace", strings.TrimSpace),
		stringDef("upper", "upper-case", strings.ToUpper),
		stringDef("lower", "lower-case", strings.ToLower),
		stringDef("title", "title-case each word", titleCase),
		stringDef("slug", "lower-case, dash separated", match.Slug),
		stringDef("snake", "snake_case", match.SnakeCase),
		stringDef("camel", "camelCase", match.CamelCase),
		{Name: "truncate", Description: "cut to N characters", Build: buildTruncate},
		{Name: "replace", Description: "replace OLD with NEW", Build: buildReplace},
		{Name: "split", Description: "split a delimited string into a list (default delimiter \",\")", Build: buildSplit},
	}

	defs = append(defs, numericBuiltins()...)
	defs = append(defs, utilityBuiltins()...)

	return defs
}

// stringDef wraps a parameterless string function. Lists are transformed
// element-wise; other non-string values pass through.
func stringDef(name, desc string, fn func(string) string) Definition {
	return Definition{
		Name:        name,
		Description: desc,
		Build: func(spec Spec) (Func, error) {
			if err := noArgs(spec); err != nil {
				return nil, err
			}

			return mapStrings(func(s string, _ *Context) (any, error) { return fn(s), nil }), nil
		},
	}
}

func mapStrings(fn func(s string, ctx *Context) (any, error)) Func {
	var apply Func

	apply = func(v any, ctx *Context) (any, error) {
		switch val := v.(type) {
		case string:
			return fn(val, ctx)
		case []any:
			out := make([]any, len(val))

			for i, elem := range val {
				r, err := apply(elem, ctx)
				if err != nil {
					return nil, err
				}

				out[i] = r
			}

			return out, nil
		default:
			return v, nil
		}
	}

	return apply
}

func noArgs(spec Spec) error {
	if spec.HasArg && spec.Arg != "" {
		return fmt.Errorf("takes no parameters, got %q", spec.Arg)
	}

	return nil
}

var titleCaser = cases.Title(language.Und)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func buildTruncate(spec Spec) (Func, error) {
	limit, err := intArg(spec)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		return nil, fmt.Errorf("length must be positive, got %d", limit)
	}

	return mapStrings(func(s string, ctx *Context) (any, error) {
		cut, original, ok := TruncateString(s, limit)
		if ok {
			ctx.truncated(original, limit)
		}

		return cut, nil
	}), nil
}

// TruncateString cuts s to limit runes. It reports the original length and
// whether anything was cut.
func TruncateString(s string, limit int) (string, int, bool) {
	n := utf8.RuneCountInString(s)
	if limit <= 0 || n <= limit {
		return s, n, false
	}

	return string([]rune(s)[:limit]), n, true
}

func buildReplace(spec Spec) (Func, error) {
	args := spec.Args()
	if len(args) != 2 {
		return nil, fmt.Errorf("expected OLD,NEW, got %q", spec.Arg)
	}

	if args[0] == "" {
		return nil, fmt.Errorf("OLD must not be empty")
	}

	return mapStrings(func(s string, _ *Context) (any, error) {
		return strings.ReplaceAll(s, args[0], args[1]), nil
	}), nil
}

func buildSplit(spec Spec) (Func, error) {
	sep := spec.Arg
	if sep == "" {
		sep = ","
	}

	return func(v any, _ *Context) (any, error) {
		if common.IsBlank(v) {
			return []any{}, nil
		}

		s, ok := v.(string)
		if !ok {
			if list, isList := v.([]any); isList {
				return list, nil
			}

			s = common.Stringify(v)
		}

		parts := strings.Split(s, sep)
		out := make([]any, 0, len(parts))

		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				continue
			}

			out = append(out, p)
		}

		return out, nil
	}, nil
}
