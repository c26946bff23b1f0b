package transform

// Fields is read access to the current source row, used by cross-field
// transforms such as coalesce and concat.
type Fields interface {
	Get(name string) (any, bool)
}

// Truncation records a value that was cut to fit a length limit.
type Truncation struct {
	Line           int    `json:"line"`
	Entity         string `json:"entity,omitempty"`
	Field          string `json:"field"`
	OriginalLength int    `json:"original_length"`
	MaxLength      int    `json:"max_length"`
}

// Context carries the row a value comes from. A Context is built per value
// and is not shared between goroutines.
type Context struct {
	Row Fields
	// Field is the source field the value was read from.
	Field string
	Line  int

	Truncations []Truncation
}

// Lookup reads another field of the current row.
func (c *Context) Lookup(name string) (any, bool) {
	if c == nil || c.Row == nil {
		return nil, false
	}

	return c.Row.Get(name)
}

func (c *Context) truncated(original, limit int) {
	if c == nil {
		return
	}

	c.Truncations = append(c.Truncations, Truncation{
		Line:           c.Line,
		Field:          c.Field,
		OriginalLength: original,
		MaxLength:      limit,
	})
}
