package transform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"entity-loader/internal/common"
)

func utilityBuiltins() []Definition {
	return []Definition{
		{
			Name:        "date",
			Description: "parse a date with the given layout",
			Interactive: true,
			Prompt:      "Date format of this column (e.g. Y-m-d, d/m/Y or a Go layout)",
			Build:       buildDate,
		},
		{Name: "boolean", Description: "coerce yes/no style tokens to a boolean", Build: buildBoolean},
		{Name: "json", Description: "decode an embedded JSON document", Build: buildJSON},
		{Name: "default", Description: "use VALUE when empty", Build: buildDefault},
		{Name: "coalesce", Description: "first non-empty of the value and the named fields", Build: buildCoalesce},
		{Name: "concat", Description: "join the value and the named fields with SEP", Build: buildConcat},
		{Name: "null_if_empty", Description: "empty strings become null", Build: buildNullIfEmpty},
		{
			Name:        "map_values",
			Description: "translate values through a from=to table",
			Interactive: true,
			Prompt:      "Value table for this column as from=to pairs separated by commas",
			Build:       buildMapValues,
		},
	}
}

var dateKeywords = map[string]string{
	"iso":      time.RFC3339,
	"rfc3339":  time.RFC3339,
	"datetime": time.DateTime,
	"date":     time.DateOnly,
}

// php-style layout letters and their Go reference equivalents.
var dateTokens = map[rune]string{
	'Y': "2006", 'y': "06",
	'm': "01", 'n': "1",
	'd': "02", 'j': "2",
	'H': "15", 'h': "03", 'g': "3",
	'i': "04", 's': "05",
	'A': "PM", 'a': "pm",
	'M': "Jan", 'F': "January",
	'D': "Mon", 'l': "Monday",
	'T': "MST", 'P': "-07:00",
}

// GoLayout converts a date format into a Go time layout. Formats that
// already use Go reference values are returned unchanged.
func GoLayout(format string) string {
	if layout, ok := dateKeywords[strings.ToLower(strings.TrimSpace(format))]; ok {
		return layout
	}

	if strings.Contains(format, "2006") || strings.Contains(format, "15:04") {
		return format
	}

	var sb strings.Builder

	escaped := false

	for _, r := range format {
		if escaped {
			sb.WriteRune(r)

			escaped = false

			continue
		}

		if r == '\\' {
			escaped = true
			continue
		}

		if tok, ok := dateTokens[r]; ok {
			sb.WriteString(tok)
			continue
		}

		sb.WriteRune(r)
	}

	return sb.String()
}

func buildDate(spec Spec) (Func, error) {
	layout := GoLayout(spec.Arg)
	if strings.TrimSpace(layout) == "" {
		return nil, fmt.Errorf("a date format is required")
	}

	return func(v any, _ *Context) (any, error) {
		if common.IsBlank(v) {
			return nil, nil
		}

		switch val := v.(type) {
		case time.Time:
			return val, nil
		case string:
			t, err := time.Parse(layout, strings.TrimSpace(val))
			if err != nil {
				return nil, fmt.Errorf("%q does not match date format %q", val, spec.Arg)
			}

			return t, nil
		default:
			return nil, fmt.Errorf("cannot parse %T as a date", v)
		}
	}, nil
}

var (
	trueTokens  = []string{"true", "t", "yes", "y", "1", "on", "oui", "si", "x"}
	falseTokens = []string{"false", "f", "no", "n", "0", "off", "non"}
)

// ParseBool coerces common string tokens to a boolean.
func ParseBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case int, int64, float64, json.Number:
		f, err := ToFloat(val)
		if err != nil {
			return false, err
		}

		return f != 0, nil
	}

	s := strings.ToLower(strings.TrimSpace(common.Stringify(v)))

	for _, tok := range trueTokens {
		if s == tok {
			return true, nil
		}
	}

	for _, tok := range falseTokens {
		if s == tok {
			return false, nil
		}
	}

	return false, fmt.Errorf("%q is not a boolean", s)
}

func buildBoolean(spec Spec) (Func, error) {
	if err := noArgs(spec); err != nil {
		return nil, err
	}

	return func(v any, _ *Context) (any, error) {
		if common.IsBlank(v) {
			return nil, nil
		}

		return ParseBool(v)
	}, nil
}

func buildJSON(spec Spec) (Func, error) {
	if err := noArgs(spec); err != nil {
		return nil, err
	}

	return func(v any, _ *Context) (any, error) {
		s, ok := v.(string)
		if !ok {
			return v, nil
		}

		if strings.TrimSpace(s) == "" {
			return nil, nil
		}

		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}

		return out, nil
	}, nil
}

func buildDefault(spec Spec) (Func, error) {
	if !spec.HasArg {
		return nil, fmt.Errorf("a default value is required")
	}

	value := spec.Arg

	return func(v any, _ *Context) (any, error) {
		if common.IsBlank(v) {
			return value, nil
		}

		return v, nil
	}, nil
}

func fieldArgs(args []string) ([]string, error) {
	fields := make([]string, 0, len(args))

	for _, a := range args {
		a = strings.TrimSpace(a)
		if a == "" {
			return nil, fmt.Errorf("empty field name")
		}

		fields = append(fields, a)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one field name is required")
	}

	return fields, nil
}

func buildCoalesce(spec Spec) (Func, error) {
	fields, err := fieldArgs(spec.Args())
	if err != nil {
		return nil, err
	}

	return func(v any, ctx *Context) (any, error) {
		if !common.IsBlank(v) {
			return v, nil
		}

		for _, f := range fields {
			if other, ok := ctx.Lookup(f); ok && !common.IsBlank(other) {
				return other, nil
			}
		}

		return nil, nil
	}, nil
}

func buildConcat(spec Spec) (Func, error) {
	args := spec.Args()
	if len(args) < 2 {
		return nil, fmt.Errorf("expected SEP,field[,field...], got %q", spec.Arg)
	}

	sep := args[0]

	fields, err := fieldArgs(args[1:])
	if err != nil {
		return nil, err
	}

	return func(v any, ctx *Context) (any, error) {
		parts := make([]string, 0, len(fields)+1)

		if !common.IsBlank(v) {
			parts = append(parts, common.Stringify(v))
		}

		for _, f := range fields {
			if other, ok := ctx.Lookup(f); ok && !common.IsBlank(other) {
				parts = append(parts, common.Stringify(other))
			}
		}

		if len(parts) == 0 {
			return nil, nil
		}

		return strings.Join(parts, sep), nil
	}, nil
}

func buildNullIfEmpty(spec Spec) (Func, error) {
	if err := noArgs(spec); err != nil {
		return nil, err
	}

	return func(v any, _ *Context) (any, error) {
		if common.IsBlank(v) {
			return nil, nil
		}

		return v, nil
	}, nil
}

func buildMapValues(spec Spec) (Func, error) {
	table := make(map[string]string)

	for _, pair := range spec.Args() {
		from, to, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected from=to, got %q", pair)
		}

		table[strings.ToLower(strings.TrimSpace(from))] = strings.TrimSpace(to)
	}

	return mapStrings(func(s string, _ *Context) (any, error) {
		if to, ok := table[strings.ToLower(strings.TrimSpace(s))]; ok {
			return to, nil
		}

		return s, nil
	}), nil
}
