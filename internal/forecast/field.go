package forecast

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field is one reading value exactly as the payload carried it: either a
// scalar or a list of values. The zero Field is the missing value.
type Field struct {
	list   bool
	values []any
}

// Scalar wraps a single value. Scalar(nil) is the missing value.
func Scalar(v any) Field {
	if v == nil {
		return Field{}
	}
	return Field{values: []any{v}}
}

// List wraps a list of values, including empty and single-element lists.
func List(vs ...any) Field {
	values := make([]any, len(vs))
	copy(values, vs)
	return Field{list: true, values: values}
}

// FieldFromJSON wraps a value produced by encoding/json decoding into any.
func FieldFromJSON(v any) Field {
	if vs, ok := v.([]any); ok {
		return List(vs...)
	}
	return Scalar(v)
}

// IsList reports whether the field holds a list.
func (f Field) IsList() bool {
	return f.list
}

// Missing reports whether the field is an absent scalar.
func (f Field) Missing() bool {
	return !f.list && len(f.values) == 0
}

// Value returns the scalar value, or nil for lists and missing fields.
func (f Field) Value() any {
	if f.list || len(f.values) == 0 {
		return nil
	}
	return f.values[0]
}

// Values returns the list elements, or the scalar as a one-element slice.
func (f Field) Values() []any {
	out := make([]any, len(f.values))
	copy(out, f.values)
	return out
}

// Unwrap turns a single-element list into a scalar. Every other field is
// returned unchanged.
func (f Field) Unwrap() Field {
	if f.list && len(f.values) == 1 {
		return Scalar(f.values[0])
	}
	return f
}

// Float coerces a scalar field to float64. Lists, missing values, NaN and
// non-numeric content report false.
func (f Field) Float() (float64, bool) {
	if f.list || len(f.values) == 0 {
		return 0, false
	}

	var n float64
	switch v := f.values[0].(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}

	if math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// Number returns the field coerced to a float64 scalar, or the missing value
// when it is not numeric.
func (f Field) Number() Field {
	n, ok := f.Float()
	if !ok {
		return Field{}
	}
	return Scalar(n)
}

// Text returns the scalar as a string when it holds one.
func (f Field) Text() (string, bool) {
	s, ok := f.Value().(string)
	return s, ok
}

func (f Field) String() string {
	switch {
	case f.Missing():
		return "<missing>"
	case f.list:
		return fmt.Sprint(f.values)
	default:
		return fmt.Sprint(f.values[0])
	}
}

// MarshalJSON encodes the field back into its payload shape.
func (f Field) MarshalJSON() ([]byte, error) {
	if f.list {
		return json.Marshal(f.values)
	}
	return json.Marshal(f.Value())
}
