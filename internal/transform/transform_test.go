package transform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rowFields map[string]any

func (r rowFields) Get(name string) (any, bool) {
	v, ok := r[name]

	return v, ok
}

func apply(t *testing.T, keys []string, v any, row rowFields) any {
	t.Helper()

	chain, err := NewRegistry().Compile(keys)
	require.NoError(t, err)

	out, err := chain.Apply(v, &Context{Row: row, Field: "f", Line: 2})
	require.NoError(t, err)

	return out
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		key  string
		want Spec
		args []string
	}{
		{"trim", Spec{Name: "trim"}, nil},
		{" Upper ", Spec{Name: "upper"}, nil},
		{"round:2", Spec{Name: "round", Arg: "2", HasArg: true}, []string{"2"}},
		{"concat: ,first,last", Spec{Name: "concat", Arg: " ,first,last", HasArg: true}, []string{" ", "first", "last"}},
		{"date:H:i", Spec{Name: "date", Arg: "H:i", HasArg: true}, []string{"H:i"}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ParseSpec(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.args, got.Args())
		})
	}

	_, err := ParseSpec(":2")
	assert.Error(t, err)
}

func TestStringTransforms(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		in   any
		want any
	}{
		{"trim", []string{"trim"}, "  a b  ", "a b"},
		{"upper", []string{"upper"}, "abc", "ABC"},
		{"lower", []string{"lower"}, "ABC", "abc"},
		{"title", []string{"lower", "title"}, "JANE DOE", "Jane Doe"},
		{"slug", []string{"slug"}, "Hello, World!", "hello-world"},
		{"snake", []string{"snake"}, "AuthorName", "author_name"},
		{"camel", []string{"camel"}, "author name", "authorName"},
		{"replace", []string{"replace:-,"}, "978-1-23", "978123"},
		{"non-string passes", []string{"upper"}, 42, 42},
		{"nil passes", []string{"trim"}, nil, nil},
		{"chain left to right", []string{"trim", "upper", "truncate:3"}, "  hello ", "HEL"},
		{"split then trim", []string{"split:|", "trim"}, "a | b|| c", []any{"a", "b", "c"}},
		{"split default comma", []string{"split"}, "x,y", []any{"x", "y"}},
		{"split blank", []string{"split"}, "  ", []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apply(t, tt.keys, tt.in, nil))
		})
	}
}

func TestTruncateRecordsTruncation(t *testing.T) {
	chain, err := NewRegistry().Compile([]string{"truncate:5"})
	require.NoError(t, err)

	ctx := &Context{Field: "title", Line: 7}

	out, err := chain.Apply("Crime and Punishment", ctx)
	require.NoError(t, err)
	assert.Equal(t, "Crime", out)
	require.Len(t, ctx.Truncations, 1)
	assert.Equal(t, Truncation{Line: 7, Field: "title", OriginalLength: 20, MaxLength: 5}, ctx.Truncations[0])

	ctx = &Context{}
	out, err = chain.Apply("Emma", ctx)
	require.NoError(t, err)
	assert.Equal(t, "Emma", out)
	assert.Empty(t, ctx.Truncations)

	// Runes, not bytes.
	cut, n, ok := TruncateString("héllo wörld", 5)
	assert.True(t, ok)
	assert.Equal(t, 11, n)
	assert.Equal(t, "héllo", cut)
}

func TestNumericTransforms(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		in   any
		want any
	}{
		{"number int", []string{"number"}, " 42 ", int64(42)},
		{"number float", []string{"number"}, "4.5", 4.5},
		{"round default", []string{"round"}, "2.5", 3.0},
		{"round places", []string{"round:2"}, 3.14159, 3.14},
		{"floor float", []string{"floor"}, 3.7, 3.0},
		{"ceil string", []string{"ceil"}, "3.2", 4.0},
		{"floor leaves ints", []string{"floor"}, 7, 7},
		{"multiply", []string{"multiply:3"}, "2", 6.0},
		{"divide", []string{"divide:4"}, 10, 2.5},
		{"to_cents", []string{"to_cents"}, "19.99", int64(1999)},
		{"from_cents", []string{"from_cents"}, int64(1999), 19.99},
		{"blank is null", []string{"round:2"}, "", nil},
		{"list element-wise", []string{"split:|", "number"}, "1|2.5", []any{int64(1), 2.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apply(t, tt.keys, tt.in, nil))
		})
	}
}

func TestNumericTransformErrors(t *testing.T) {
	chain, err := NewRegistry().Compile([]string{"round:1"})
	require.NoError(t, err)

	_, err = chain.Apply("abc", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "round")
}

func TestUtilityTransforms(t *testing.T) {
	row := rowFields{"first": "Jane", "last": "Doe", "alt": "", "nick": "JD"}

	tests := []struct {
		name string
		keys []string
		in   any
		want any
	}{
		{"boolean yes", []string{"boolean"}, "Yes", true},
		{"boolean zero", []string{"boolean"}, "0", false},
		{"boolean blank", []string{"boolean"}, "", nil},
		{"json", []string{"json"}, `{"a":[1,2]}`, map[string]any{"a": []any{1.0, 2.0}}},
		{"default on blank", []string{"trim", "default:n/a"}, "  ", "n/a"},
		{"default keeps value", []string{"default:n/a"}, "x", "x"},
		{"coalesce", []string{"coalesce:alt,nick"}, "", "JD"},
		{"coalesce keeps value", []string{"coalesce:nick"}, "v", "v"},
		{"concat", []string{"concat: ,last"}, "Jane", "Jane Doe"},
		{"concat skips blanks", []string{"concat:-,alt,last"}, "", "Doe"},
		{"null_if_empty", []string{"null_if_empty"}, " ", nil},
		{"map_values", []string{"map_values:m=male,f=female"}, "F", "female"},
		{"map_values miss", []string{"map_values:m=male"}, "x", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apply(t, tt.keys, tt.in, row))
		})
	}
}

func TestDateTransform(t *testing.T) {
	tests := []struct {
		format string
		in     string
		want   time.Time
	}{
		{"Y-m-d", "2024-03-09", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"d/m/Y", "09/03/2024", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"2006-01-02 15:04", "2024-03-09 10:30", time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)},
		{"iso", "2024-03-09T10:30:00Z", time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got := apply(t, []string{"date:" + tt.format}, tt.in, nil)
			assert.Equal(t, tt.want, got)
		})
	}

	chain, err := NewRegistry().Compile([]string{"date:Y-m-d"})
	require.NoError(t, err)

	_, err = chain.Apply("March 9", nil)
	assert.Error(t, err)
}

func TestCompileErrors(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Compile([]string{"trim", "uper"})
	var unknown *UnknownTransformError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "upper", unknown.Suggestion)
	assert.Equal(t, `transform "uper" is not registered (did you mean "upper"?)`, err.Error())

	_, err = reg.Compile([]string{"date"})
	var interactive *InteractiveError
	require.ErrorAs(t, err, &interactive)

	bad := []string{"truncate:x", "truncate:0", "divide:0", "replace:a", "trim:x", "concat:-", "round:-1", "map_values:abc"}
	for _, key := range bad {
		t.Run(key, func(t *testing.T) {
			assert.Error(t, reg.Check(key))
		})
	}
}

func TestRegister(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(Definition{
		Name: "Reverse",
		Build: func(Spec) (Func, error) {
			return mapStrings(func(s string, _ *Context) (any, error) {
				r := []rune(s)
				for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
					r[i], r[j] = r[j], r[i]
				}

				return string(r), nil
			}), nil
		},
	})
	require.NoError(t, err)
	assert.True(t, reg.Has("reverse"))
	assert.Contains(t, reg.Names(), "reverse")

	chain, err := reg.Compile([]string{"reverse", "upper"})
	require.NoError(t, err)
	assert.Equal(t, []string{"reverse", "upper"}, chain.Keys())
	assert.Equal(t, 2, chain.Len())

	out, err := chain.Apply("abc", nil)
	require.NoError(t, err)
	assert.Equal(t, "CBA", out)

	assert.Error(t, reg.Register(Definition{Name: "x"}))
	assert.Error(t, reg.Register(Definition{Build: func(Spec) (Func, error) { return nil, nil }}))
}

func TestResolveInteractive(t *testing.T) {
	reg := NewRegistry()

	var asked []Question

	p := PrompterFunc(func(_ context.Context, q Question) (string, error) {
		asked = append(asked, q)

		return "Y-m-d", nil
	})

	keys := []string{"trim", "date", "date:d/m/Y"}
	assert.True(t, reg.NeedsInput(keys))

	out, err := reg.ResolveInteractive(context.Background(), "Book.published", keys, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"trim", "date:Y-m-d", "date:d/m/Y"}, out)
	require.Len(t, asked, 1)
	assert.Equal(t, "Book.published", asked[0].Column)
	assert.NotEmpty(t, asked[0].Prompt)
	assert.False(t, reg.NeedsInput(out))

	_, err = reg.Compile(out)
	assert.NoError(t, err)
}

func TestResolveInteractiveFailures(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	_, err := reg.ResolveInteractive(ctx, "c", []string{"date"}, nil)
	assert.Error(t, err)

	failing := PrompterFunc(func(context.Context, Question) (string, error) { return "", errors.New("closed") })
	_, err = reg.ResolveInteractive(ctx, "c", []string{"map_values"}, failing)
	assert.ErrorContains(t, err, "closed")

	blank := PrompterFunc(func(context.Context, Question) (string, error) { return " ", nil })
	_, err = reg.ResolveInteractive(ctx, "c", []string{"date"}, blank)
	assert.ErrorContains(t, err, "empty answer")

	static := StaticAnswers{"c/map_values": "a=1", "date": "Y"}
	out, err := reg.ResolveInteractive(ctx, "c", []string{"map_values", "date"}, static)
	require.NoError(t, err)
	assert.Equal(t, []string{"map_values:a=1", "date:Y"}, out)
}

func TestGoLayout(t *testing.T) {
	assert.Equal(t, "2006-01-02", GoLayout("Y-m-d"))
	assert.Equal(t, "02.01.06 15:04", GoLayout("d.m.y H:i"))
	assert.Equal(t, "2006-01-02", GoLayout("2006-01-02"))
	assert.Equal(t, time.RFC3339, GoLayout("ISO"))
	assert.Equal(t, "2006 at 15", GoLayout(`Y \a\t H`))
}
