package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"entity-loader/internal/common"
	"entity-loader/internal/schema"
)

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

var dateTimeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

// param converts v to the Go value the column of attribute a is bound with.
// Values reaching the store come from source text as often as from typed
// transforms, so strings are parsed here rather than cast in SQL.
func param(a schema.Attribute, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	var (
		out any
		err error
	)

	switch a.Type {
	case schema.AttrInt:
		out, err = toInt(v)
	case schema.AttrFloat:
		out, err = toFloat(v)
	case schema.AttrDecimal:
		out, err = toNumeric(v)
	case schema.AttrBool:
		out, err = toBool(v)
	case schema.AttrDate:
		out, err = toTime(v, dateLayouts)
	case schema.AttrDateTime:
		out, err = toTime(v, dateTimeLayouts)
	case schema.AttrJSON:
		out, err = toJSON(v)
	default:
		out = common.Stringify(v)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s %q cannot parse as %s", ErrInvalidValue, a.Name, common.Stringify(v), a.Type)
	}

	return out, nil
}

// attrParam binds the value of the named column of et. Columns outside the
// declared attributes, such as the primary key, bind as text.
func attrParam(et *schema.EntityType, name string, v any) (any, error) {
	a, ok := et.Attribute(name)
	if !ok {
		a = schema.Attribute{Name: name, Type: schema.AttrString}
	}

	return param(a, v)
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, strconv.ErrSyntax
		}

		return int64(n), nil
	}

	return strconv.ParseInt(strings.TrimSpace(common.Stringify(v)), 10, 64)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}

	return strconv.ParseFloat(strings.TrimSpace(common.Stringify(v)), 64)
}

func toNumeric(v any) (pgtype.Numeric, error) {
	var n pgtype.Numeric

	if f, ok := v.(float64); ok {
		v = strconv.FormatFloat(f, 'f', -1, 64)
	}

	err := n.Scan(strings.TrimSpace(common.Stringify(v)))

	return n, err
}

func toBool(v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}

	switch strings.ToLower(strings.TrimSpace(common.Stringify(v))) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	}

	return false, strconv.ErrSyntax
}

func toTime(v any, layouts []string) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		return t, nil
	}

	s := strings.TrimSpace(common.Stringify(v))
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, strconv.ErrSyntax
}

// toJSON passes structured values through for the json codec and checks
// that strings already hold a JSON document.
func toJSON(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}

	if !json.Valid([]byte(s)) {
		return nil, strconv.ErrSyntax
	}

	return json.RawMessage(s), nil
}
