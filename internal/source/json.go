package source

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

// JSONSource reads either a JSON array of objects or newline-delimited
// objects. Field order follows the document. Numbers decode to int64 when
// integral and float64 otherwise.
type JSONSource struct {
	r io.Reader
}

// NewJSONSource returns a JSON source over r.
func NewJSONSource(r io.Reader) *JSONSource {
	return &JSONSource{r: r}
}

// Rows implements Source. Line is the position of the object, from 1.
func (s *JSONSource) Rows(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		br := bufio.NewReader(s.r)

		first, err := peekNonSpace(br)
		if errors.Is(err, io.EOF) {
			return
		}

		if err != nil {
			yield(Row{}, fmt.Errorf("reading JSON: %w", err))
			return
		}

		dec := json.NewDecoder(br)
		dec.UseNumber()

		if first == '[' {
			if _, err := dec.Token(); err != nil {
				yield(Row{}, fmt.Errorf("reading JSON: %w", err))
				return
			}
		}

		for n := 1; dec.More(); n++ {
			if err := ctx.Err(); err != nil {
				yield(Row{}, err)
				return
			}

			f, err := decodeObject(dec)
			if err != nil {
				yield(Row{}, fmt.Errorf("record %d: %w", n, err))
				return
			}

			if !yield(Row{Fields: f, Line: n}, nil) {
				return
			}
		}
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}

		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}

		return b, br.UnreadByte()
	}
}

func decodeObject(dec *json.Decoder) (*Fields, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object, got %v", tok)
	}

	f := &Fields{}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		key, _ := tok.(string)

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}

		f.Set(key, normalize(v))
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return f, nil
}

// normalize replaces json.Number values, recursively.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}

		if fl, err := val.Float64(); err == nil {
			return fl
		}

		return val.String()
	case []any:
		for i := range val {
			val[i] = normalize(val[i])
		}

		return val
	case map[string]any:
		for k := range val {
			val[k] = normalize(val[k])
		}

		return val
	default:
		return v
	}
}
