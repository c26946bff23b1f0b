package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-loader/internal/flow"
	"entity-loader/internal/importerr"
	"entity-loader/internal/store"
)

func rowError(line int, mapping string, err error, values map[string]any) flow.RowError {
	return flow.RowError{
		Line:           line,
		Mapping:        mapping,
		Entity:         "Book",
		Err:            err,
		Classification: importerr.Classify(err),
		Values:         values,
	}
}

func partialResult() *flow.Result {
	verr := importerr.NewValidationError("Book")
	verr.Add("title", "is required")

	tooLong := fmt.Errorf("save Book: %w", store.ErrValueTooLong)

	return &flow.Result{
		RunID:    uuid.MustParse("6f1c2d0e-8a6b-4c1e-9d7a-2b3c4d5e6f70"),
		Mapping:  "library",
		Status:   flow.PartiallyCompleted,
		Order:    []string{"Author", "Book"},
		Warnings: []string{"1 empty row skipped (lines 5)"},
		Duration: 1500 * time.Millisecond,
		Stats: &flow.RunStatistics{
			Rows:       6,
			Imported:   3,
			Skipped:    2,
			ErrorCount: 1,
			EmptyRows:  []int{5},
			Errors: []flow.RowError{
				rowError(4, "Book#2", verr, map[string]any{"isbn": "978-3", "title": ""}),
				rowError(6, "Book#2", tooLong, nil),
				rowError(7, "Book#2", verr, nil),
			},
			Entities: []*flow.EntityStats{
				{Label: "Author#1", Entity: "Author", Created: 3},
				{Label: "Book.tags#3", Entity: "Book", Attached: 2, Detached: 1},
			},
		},
	}
}

func TestBuild(t *testing.T) {
	r := Build(partialResult())

	assert.Equal(t, "6f1c2d0e-8a6b-4c1e-9d7a-2b3c4d5e6f70", r.RunID)
	assert.Equal(t, flow.PartiallyCompleted, r.Status)
	assert.Equal(t, 6, r.Rows)
	assert.Equal(t, 1, r.EmptyRows)
	assert.Empty(t, r.Error)

	require.Len(t, r.Summary, 2, spew.Sdump(r.Summary))
	assert.Equal(t, importerr.KindValidation, r.Summary[0].Kind)
	assert.Equal(t, 2, r.Summary[0].Count)
	assert.Equal(t, importerr.KindDataTooLong, r.Summary[1].Kind)
	assert.NotEmpty(t, r.Summary[1].Hint)

	require.Len(t, r.Details, 3)
	assert.Equal(t, 4, r.Details[0].Line)
	assert.Equal(t, "Validation failed", r.Details[0].Label)
	assert.Equal(t, "978-3", r.Details[0].Values["isbn"])
	assert.Contains(t, r.Details[1].Message, "save Book")
}

func TestBuildFatal(t *testing.T) {
	res := &flow.Result{
		Status: flow.Failed,
		Err:    &importerr.DependencyCycleError{Members: []string{"A", "B"}},
		Stats:  &flow.RunStatistics{},
	}

	r := Build(res)

	assert.Contains(t, r.Error, "A")
	require.Len(t, r.Summary, 1)
	assert.Equal(t, importerr.KindCycle, r.Summary[0].Kind)
	assert.Equal(t, 1, r.Summary[0].Count)
	assert.Empty(t, r.Details)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Build(partialResult()).WriteText(&buf))

	out := buf.String()

	for _, want := range []string{
		"Run 6f1c2d0e-8a6b-4c1e-9d7a-2b3c4d5e6f70 (library): partially_completed in 1.5s",
		"Order: Author -> Book",
		"Rows: 6 read, 3 imported, 2 skipped, 1 failed, 1 empty",
		"created 3, updated 0, skipped 0, errors 0",
		"attached 2, detached 1, pivot updated 0",
		"  - 1 empty row skipped (lines 5)",
		"2 x Validation failed (validation)",
		"1 x Value too long (data_too_long)",
		"line 4 Book#2: ",
		`values: isbn="978-3" title=""`,
	} {
		assert.Contains(t, out, want)
	}

	assert.NotContains(t, out, "Error:")
	assert.NotContains(t, out, "suppressed")
}

func TestWriteTextFatal(t *testing.T) {
	res := &flow.Result{
		Mapping: "library",
		Status:  flow.Failed,
		Err:     errors.New("compile mapping: boom"),
	}

	var buf bytes.Buffer
	require.NoError(t, Build(res).WriteText(&buf))

	assert.Contains(t, buf.String(), "Error: compile mapping: boom")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Build(partialResult()).WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "partially_completed", decoded["status"])
	assert.EqualValues(t, 3, decoded["imported"])

	summary, ok := decoded["summary"].([]any)
	require.True(t, ok)
	require.Len(t, summary, 2)

	first, ok := summary[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "validation", first["kind"])
	assert.EqualValues(t, 2, first["count"])
	assert.NotEmpty(t, first["hint"])
}
