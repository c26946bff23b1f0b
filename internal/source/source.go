package source

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source yields the rows of one input, in order. Iteration stops at the
// first error; the error is yielded with a zero Row.
type Source interface {
	Rows(ctx context.Context) iter.Seq2[Row, error]
}

// SliceSource serves rows held in memory.
type SliceSource []Row

// Rows implements Source.
func (s SliceSource) Rows(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for _, row := range s {
			if err := ctx.Err(); err != nil {
				yield(Row{}, err)
				return
			}

			if !yield(row, nil) {
				return
			}
		}
	}
}

// FromMaps numbers records from line 1 and keeps the key order given by
// columns; keys missing from columns are appended in sorted order.
func FromMaps(columns []string, records ...map[string]any) SliceSource {
	out := make(SliceSource, 0, len(records))

	for i, rec := range records {
		f := &Fields{}

		for _, c := range columns {
			if v, ok := rec[c]; ok {
				f.Set(c, v)
			}
		}

		for _, k := range sortedKeys(rec) {
			if _, ok := f.Get(k); !ok {
				f.Set(k, rec[k])
			}
		}

		out = append(out, Row{Fields: f, Line: i + 1})
	}

	return out
}

// Open picks a reader by format ("csv" or "json"), falling back to the
// file extension when format is empty. The caller closes the returned
// closer after iterating.
func Open(path, format string, opts CSVOptions) (Source, io.Closer, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening input %s: %w", path, err)
	}

	switch strings.ToLower(format) {
	case "csv", "tsv", "txt":
		if format == "tsv" && opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}

		return NewCSVSource(f, opts), f, nil
	case "json", "ndjson", "jsonl":
		return NewJSONSource(f), f, nil
	default:
		f.Close()

		return nil, nil, fmt.Errorf("unsupported input format %q", format)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
