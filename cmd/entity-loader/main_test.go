package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-loader/examples/library"
	"entity-loader/internal/mapping"
	"entity-loader/internal/transform"
)

type files struct {
	mapping string
	schema  string
	input   string
	dir     string
}

func setup(t *testing.T) files {
	t.Helper()

	for _, key := range []string{
		"DATABASE_URL", "DB_MAX_CONNS", "DB_STATEMENT_TIMEOUT", "LOG_FORMAT",
		"CHUNK_SIZE", "ERROR_POLICY", "SKIP_EMPTY_ROWS", "TRUNCATE_LONG_FIELDS", "METRICS_FILE",
	} {
		t.Setenv(key, "")
	}

	t.Setenv("LOG_LEVEL", "error")

	dir := t.TempDir()
	f := files{
		mapping: filepath.Join(dir, "mapping.yaml"),
		schema:  filepath.Join(dir, "schema.yaml"),
		input:   filepath.Join(dir, "books.csv"),
		dir:     dir,
	}

	require.NoError(t, os.WriteFile(f.mapping, library.MappingYAML, 0o644))
	require.NoError(t, os.WriteFile(f.schema, library.SchemaYAML, 0o644))
	require.NoError(t, os.WriteFile(f.input, library.BooksCSV, 0o644))

	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)

	err := root.Execute()

	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	f := setup(t)

	out, err := execute(t, "validate", "-m", f.mapping, "-s", f.schema)
	require.NoError(t, err, out)
	assert.Contains(t, out, "is valid")
}

func TestValidateCmdErrors(t *testing.T) {
	f := setup(t)

	broken := strings.Replace(string(library.MappingYAML), "[trim, lower], validation_rule", "[trim, lowr], validation_rule", 1)
	require.NoError(t, os.WriteFile(f.mapping, []byte(broken), 0o644))

	out, err := execute(t, "validate", "-m", f.mapping, "-s", f.schema)
	require.Error(t, err)
	assert.Contains(t, out, "error: ")
	assert.Contains(t, out, "lowr")
}

func TestOrderCmd(t *testing.T) {
	f := setup(t)

	out, err := execute(t, "order", "-m", f.mapping, "-s", f.schema)
	require.NoError(t, err, out)

	assert.Contains(t, out, "types: Author -> Book")
	assert.Contains(t, out, "1. Author#1\n2. Book#2\n3. Book.tags#3\n")
}

func TestMissingDocuments(t *testing.T) {
	setup(t)

	_, err := execute(t, "order")
	require.EqualError(t, err, "--mapping is required")

	_, err = execute(t, "order", "-m", "m.yaml")
	require.EqualError(t, err, "--schema is required")
}

func TestProcessCmd(t *testing.T) {
	f := setup(t)

	metricsFile := filepath.Join(f.dir, "loader.prom")

	out, err := execute(t, "process",
		"-m", f.mapping, "-s", f.schema, "-i", f.input,
		"--memory", "--report", "json", "--metrics-file", metricsFile)
	require.NoError(t, err, out)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)

	assert.Equal(t, "partially_completed", report["status"])
	assert.EqualValues(t, 5, report["rows"])
	assert.EqualValues(t, 3, report["imported"])
	assert.EqualValues(t, 1, report["empty_rows"])

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "entity_loader_rows_total")
}

func TestProcessCmdText(t *testing.T) {
	f := setup(t)

	out, err := execute(t, "process", "-m", f.mapping, "-s", f.schema, "-i", f.input)
	require.NoError(t, err, out)

	assert.Contains(t, out, "(library): partially_completed")
	assert.Contains(t, out, "1 x Validation failed (validation)")
	assert.Contains(t, out, "line 6 Book#2")
}

func TestProcessCmdFailures(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"stop policy fails the run", []string{"--error-policy", "stop"}, "run failed"},
		{"stop policy without report", []string{"--error-policy", "stop", "--report", "none"}, "run failed: halted at line 6"},
		{"bad policy", []string{"--error-policy", "retry"}, `unsupported error policy "retry"`},
		{"bad chunk size", []string{"--chunk-size", "0"}, "--chunk-size must be at least 1"},
		{"bad report", []string{"--report", "html"}, `unsupported report format "html"`},
		{"bad format", []string{"--format", "xml"}, `unsupported input format "xml"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)

			args := append([]string{"process", "-m", f.mapping, "-s", f.schema, "-i", f.input}, tt.args...)

			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProcessCmdMissingInput(t *testing.T) {
	f := setup(t)

	_, err := execute(t, "process", "-m", f.mapping, "-s", f.schema)
	require.EqualError(t, err, "--input is required")
}

func TestLinePrompter(t *testing.T) {
	var prompts bytes.Buffer

	p := linePrompter(strings.NewReader(" Y-m-d \n"), &prompts)
	q := transform.Question{Transform: "date", Column: "Book.published_at", Prompt: "Date layout"}

	answer, err := p.Ask(t.Context(), q)
	require.NoError(t, err)
	assert.Equal(t, "Y-m-d", answer)
	assert.Equal(t, "Date layout (date on Book.published_at): ", prompts.String())

	_, err = p.Ask(t.Context(), q)
	assert.EqualError(t, err, "no answer for date on Book.published_at")
}

func TestCSVOptions(t *testing.T) {
	assert.Equal(t, ';', csvOptions(&processFlags{delimiter: ";"}, mustMapping(t)).Delimiter)
	assert.Equal(t, '\t', csvOptions(&processFlags{delimiter: `\t`}, mustMapping(t)).Delimiter)
	assert.Equal(t, rune(0), csvOptions(&processFlags{}, mustMapping(t)).Delimiter)
}

func mustMapping(t *testing.T) *mapping.MappingDefinition {
	t.Helper()

	def, err := library.Mapping()
	require.NoError(t, err)

	return def
}
