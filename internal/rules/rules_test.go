package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	set, err := Parse("required | email|max:120")
	require.NoError(t, err)
	assert.Equal(t, []string{"required", "email", "max"}, set.Names())
	assert.True(t, set.Required())
	assert.Equal(t, "required,email,max=120", set.Tag())

	set, err = Parse("min:3|regex:^(a|b)+$")
	require.NoError(t, err)
	assert.Equal(t, []string{"min", "regex"}, set.Names())
	assert.Equal(t, "^(a|b)+$", set[1].Arg)
	assert.Equal(t, "min=3,regex=^(a0x7Cb)+$", set.Tag())

	set, err = Parse("in:draft, in review|integer|date")
	require.NoError(t, err)
	assert.Equal(t, "oneof='draft' 'in review',integer,date", set.Tag())

	set, err = Parse("")
	require.NoError(t, err)
	assert.Empty(t, set)

	for _, bad := range []string{"requird", "min:x", "regex:(", "in:"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		rules string
		value any
		want  []string
	}{
		{"required", "", []string{"is required"}},
		{"required", nil, []string{"is required"}},
		{"required", "x", nil},
		{"email", "jane@example.com", nil},
		{"email", "Jane <jane@example.com>", []string{"must be a valid email address"}},
		{"email", "nope", []string{"must be a valid email address"}},
		{"email", "", nil},
		{"numeric", "12.5", nil},
		{"numeric", "12a", []string{"must be numeric"}},
		{"integer", "12", nil},
		{"integer", 12.5, []string{"must be an integer"}},
		{"min:3", "ab", []string{"must be at least 3 characters"}},
		{"max:3", "abcd", []string{"must be at most 3 characters"}},
		{"max:10", int64(11), []string{"must be at most 10"}},
		{"min:1.5", 2.0, nil},
		{"max:2", []any{"a", "b", "c"}, []string{"must be at most 2 items"}},
		{"in:draft,published", "draft", nil},
		{"in:draft, published", "archived", []string{"must be one of draft, published"}},
		{"regex:^978", "978-1", nil},
		{"regex:^978", "979-1", []string{"must match ^978"}},
		{"regex:^[a-c]{2,3}$", "abc", nil},
		{"regex:^(x|y)$", "z", []string{"must match ^(x|y)$"}},
		{"in:draft,in review", "in review", nil},
		{"integer", "twelve", []string{"must be an integer"}},
		{"integer", int64(7), nil},
		{"max:2.5", "abc", []string{"must be at most 2 characters"}},
		{"min:3", "  ab  ", []string{"must be at least 3 characters"}},
		{"required", "   ", []string{"is required"}},
		{"email|max:5", "jane@example.com", []string{"must be at most 5 characters"}},
		{"email|max:5", "x", []string{"must be a valid email address"}},
		{"date", "2024-01-31", nil},
		{"date", time.Now(), nil},
		{"date", "31/01/2024", []string{"must be a date"}},
		{"required|numeric", "", []string{"is required"}},
	}

	for _, tt := range tests {
		t.Run(tt.rules, func(t *testing.T) {
			set, err := Parse(tt.rules)
			require.NoError(t, err)
			assert.Equal(t, tt.want, set.Check(tt.value))
		})
	}
}
