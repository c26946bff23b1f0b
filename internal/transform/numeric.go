package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"entity-loader/internal/common"
)

func numericBuiltins() []Definition {
	return []Definition{
		{Name: "number", Description: "parse a numeric string", Build: buildNumber},
		{Name: "round", Description: "round to N decimals (default 0)", Build: buildRound},
		{Name: "floor", Description: "round down; floating values only", Build: floatOnly(math.Floor)},
		{Name: "ceil", Description: "round up; floating values only", Build: floatOnly(math.Ceil)},
		{Name: "multiply", Description: "multiply by N", Build: buildScale(false)},
		{Name: "divide", Description: "divide by N", Build: buildScale(true)},
		{Name: "to_cents", Description: "amount to integer cents", Build: buildToCents},
		{Name: "from_cents", Description: "integer cents to amount", Build: buildFromCents},
	}
}

// ToFloat converts a numeric value or numeric string to float64.
func ToFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		return val.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", val)
		}

		return f, nil
	default:
		return 0, fmt.Errorf("%v (%T) is not a number", v, v)
	}
}

// ParseNumber parses a numeric string into int64 when it is integral and
// float64 otherwise.
func ParseNumber(s string) (any, error) {
	s = strings.TrimSpace(s)

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", s)
	}

	return f, nil
}

// numeric wraps fn so that blank values pass through as nil. Lists are
// converted element-wise.
func numeric(fn func(v any) (any, error)) Func {
	var apply Func

	apply = func(v any, ctx *Context) (any, error) {
		if list, ok := v.([]any); ok {
			out := make([]any, len(list))

			for i, elem := range list {
				r, err := apply(elem, ctx)
				if err != nil {
					return nil, err
				}

				out[i] = r
			}

			return out, nil
		}

		if common.IsBlank(v) {
			return nil, nil
		}

		return fn(v)
	}

	return apply
}

func buildNumber(spec Spec) (Func, error) {
	if err := noArgs(spec); err != nil {
		return nil, err
	}

	return numeric(func(v any) (any, error) {
		if s, ok := v.(string); ok {
			return ParseNumber(s)
		}

		if n, ok := v.(json.Number); ok {
			return ParseNumber(n.String())
		}

		return v, nil
	}), nil
}

func buildRound(spec Spec) (Func, error) {
	places := 0

	if spec.Arg != "" {
		p, err := intArg(spec)
		if err != nil {
			return nil, err
		}

		if p < 0 {
			return nil, fmt.Errorf("decimals must not be negative, got %d", p)
		}

		places = p
	}

	pow := math.Pow(10, float64(places))

	return numeric(func(v any) (any, error) {
		f, err := ToFloat(v)
		if err != nil {
			return nil, err
		}

		return math.Round(f*pow) / pow, nil
	}), nil
}

// floatOnly applies fn to floating values and numeric strings. Integers and
// fixed-precision decimals pass through unchanged.
func floatOnly(fn func(float64) float64) func(Spec) (Func, error) {
	return func(spec Spec) (Func, error) {
		if err := noArgs(spec); err != nil {
			return nil, err
		}

		return numeric(func(v any) (any, error) {
			switch val := v.(type) {
			case float64:
				return fn(val), nil
			case float32:
				return fn(float64(val)), nil
			case string:
				f, err := ToFloat(val)
				if err != nil {
					return nil, err
				}

				return fn(f), nil
			default:
				return v, nil
			}
		}), nil
	}
}

func buildScale(divide bool) func(Spec) (Func, error) {
	return func(spec Spec) (Func, error) {
		factor, err := strconv.ParseFloat(strings.TrimSpace(spec.Arg), 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", spec.Arg)
		}

		if divide && factor == 0 {
			return nil, fmt.Errorf("division by zero")
		}

		return numeric(func(v any) (any, error) {
			f, err := ToFloat(v)
			if err != nil {
				return nil, err
			}

			if divide {
				return f / factor, nil
			}

			return f * factor, nil
		}), nil
	}
}

func buildToCents(spec Spec) (Func, error) {
	if err := noArgs(spec); err != nil {
		return nil, err
	}

	return numeric(func(v any) (any, error) {
		f, err := ToFloat(v)
		if err != nil {
			return nil, err
		}

		return int64(math.Round(f * 100)), nil
	}), nil
}

func buildFromCents(spec Spec) (Func, error) {
	if err := noArgs(spec); err != nil {
		return nil, err
	}

	return numeric(func(v any) (any, error) {
		f, err := ToFloat(v)
		if err != nil {
			return nil, err
		}

		return f / 100, nil
	}), nil
}

func intArg(spec Spec) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(spec.Arg))
	if err != nil {
		return 0, fmt.Errorf("expected an integer parameter, got %q", spec.Arg)
	}

	return n, nil
}
