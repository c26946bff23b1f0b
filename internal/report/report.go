// Package report renders the outcome of a run for people and tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"
	"time"

	"entity-loader/internal/flow"
	"entity-loader/internal/importerr"
)

// Report is the rendered view of a flow.Result.
type Report struct {
	RunID    string        `json:"run_id"`
	Mapping  string        `json:"mapping"`
	Status   flow.Status   `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`

	Rows       int `json:"rows"`
	Imported   int `json:"imported"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
	Suppressed int `json:"suppressed"`
	EmptyRows  int `json:"empty_rows"`

	Order    []string           `json:"order,omitempty"`
	Entities []*flow.EntityStats `json:"entities"`
	Warnings []string           `json:"warnings,omitempty"`

	// Summary counts reported errors per classification, most frequent
	// first.
	Summary []KindCount `json:"summary,omitempty"`
	Details []Detail    `json:"details,omitempty"`
}

// KindCount is one line of the per-classification summary.
type KindCount struct {
	importerr.Classification

	Count int `json:"count"`
}

// Detail is one reported row error.
type Detail struct {
	Line    int            `json:"line"`
	Mapping string         `json:"mapping"`
	Kind    importerr.Kind `json:"kind"`
	Label   string         `json:"label"`
	Hint    string         `json:"hint"`
	Message string         `json:"message"`
	Values  map[string]any `json:"values,omitempty"`
}

// Build assembles the report of res. A run that failed before reading rows
// reports its fatal error with the classification of that error.
func Build(res *flow.Result) *Report {
	r := &Report{
		RunID:    res.RunID.String(),
		Mapping:  res.Mapping,
		Status:   res.Status,
		Duration: res.Duration,
		Order:    res.Order,
		Warnings: res.Warnings,
	}

	if res.Err != nil {
		r.Error = res.Err.Error()
	}

	s := res.Stats
	if s == nil {
		return r
	}

	r.Rows = s.Rows
	r.Imported = s.Imported
	r.Skipped = s.Skipped
	r.Errors = s.ErrorCount
	r.Suppressed = s.Suppressed
	r.EmptyRows = len(s.EmptyRows)
	r.Entities = s.Entities

	counts := make(map[importerr.Kind]int)

	for _, e := range s.Errors {
		cls := e.Classification
		if cls.Kind == "" {
			cls = importerr.Classify(e.Err)
		}

		counts[cls.Kind]++

		r.Details = append(r.Details, Detail{
			Line:    e.Line,
			Mapping: e.Mapping,
			Kind:    cls.Kind,
			Label:   cls.Label,
			Hint:    cls.Hint,
			Message: e.Err.Error(),
			Values:  e.Values,
		})
	}

	if res.Err != nil && len(s.Errors) == 0 {
		counts[importerr.Classify(res.Err).Kind]++
	}

	for kind, n := range counts {
		r.Summary = append(r.Summary, KindCount{Classification: importerr.Lookup(kind), Count: n})
	}

	sort.Slice(r.Summary, func(i, j int) bool {
		if r.Summary[i].Count != r.Summary[j].Count {
			return r.Summary[i].Count > r.Summary[j].Count
		}

		return r.Summary[i].Kind < r.Summary[j].Kind
	})

	return r
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	return nil
}

// WriteText writes the report for a terminal.
func (r *Report) WriteText(w io.Writer) error {
	if err := textTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("executing report template: %w", err)
	}

	return nil
}

var textTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"values": formatValues,
	"join":   strings.Join,
}).Parse(`Run {{.RunID}} ({{.Mapping}}): {{.Status}} in {{.Duration}}
{{- if .Error}}
Error: {{.Error}}
{{- end}}
{{- if .Order}}
Order: {{join .Order " -> "}}
{{- end}}
Rows: {{.Rows}} read, {{.Imported}} imported, {{.Skipped}} skipped, {{.Errors}} failed
{{- if .Suppressed}}, {{.Suppressed}} suppressed{{end}}
{{- if .EmptyRows}}, {{.EmptyRows}} empty{{end}}
{{- range .Entities}}
  {{printf "%-16s" .Label}} created {{.Created}}, updated {{.Updated}}, skipped {{.Skipped}}, errors {{.Errors}}
{{- if or .Attached .Detached .PivotUpdated}}, attached {{.Attached}}, detached {{.Detached}}, pivot updated {{.PivotUpdated}}{{end}}
{{- end}}
{{- if .Warnings}}

Warnings:
{{- range .Warnings}}
  - {{.}}
{{- end}}
{{- end}}
{{- if .Summary}}

Errors by kind:
{{- range .Summary}}
  {{.Count}} x {{.Label}} ({{.Kind}}): {{.Hint}}
{{- end}}
{{- end}}
{{- if .Details}}

Details:
{{- range .Details}}
  line {{.Line}} {{.Mapping}}: {{.Message}}
{{- with values .Values}}
    values: {{.}}
{{- end}}
{{- end}}
{{- end}}
`))

// formatValues renders row values in key order.
func formatValues(values map[string]any) string {
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, fmt.Sprint(values[k])))
	}

	return strings.Join(parts, " ")
}
