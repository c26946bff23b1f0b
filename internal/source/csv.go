package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// CSVOptions configures CSVSource.
type CSVOptions struct {
	// Delimiter defaults to ','.
	Delimiter rune
	// TrimSpace trims every value and header.
	TrimSpace bool
}

// CSVSource reads a CSV stream whose first record is the header.
type CSVSource struct {
	r    io.Reader
	opts CSVOptions
}

// NewCSVSource returns a CSV source over r.
func NewCSVSource(r io.Reader, opts CSVOptions) *CSVSource {
	return &CSVSource{r: r, opts: opts}
}

// Rows implements Source. Records shorter than the header leave the
// missing fields unset; longer records are an error.
func (s *CSVSource) Rows(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		cr := csv.NewReader(s.r)
		cr.FieldsPerRecord = -1
		cr.ReuseRecord = false

		if s.opts.Delimiter != 0 {
			cr.Comma = s.opts.Delimiter
		}

		header, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return
		}

		if err != nil {
			yield(Row{}, fmt.Errorf("reading CSV header: %w", err))
			return
		}

		header = s.clean(header)
		header[0] = strings.TrimPrefix(header[0], "\ufeff")

		for {
			if err := ctx.Err(); err != nil {
				yield(Row{}, err)
				return
			}

			record, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}

			if err != nil {
				yield(Row{}, fmt.Errorf("reading CSV: %w", err))
				return
			}

			line, _ := cr.FieldPos(0)

			if len(record) > len(header) {
				yield(Row{}, fmt.Errorf("line %d: %d fields, header has %d", line, len(record), len(header)))
				return
			}

			record = s.clean(record)
			f := &Fields{}

			for i, v := range record {
				f.Set(header[i], v)
			}

			if !yield(Row{Fields: f, Line: line}, nil) {
				return
			}
		}
	}
}

func (s *CSVSource) clean(record []string) []string {
	if !s.opts.TrimSpace {
		return record
	}

	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}

	return record
}
