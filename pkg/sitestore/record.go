package sitestore

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// UpdatedField is the name of the implicit write timestamp (epoch
// milliseconds) carried by every record written through a Store.
const UpdatedField = "updated"

// Record holds the settings for one site. Values are JSON scalars: bool,
// float64 or string.
type Record map[string]any

// Updated returns the write timestamp in epoch milliseconds, or 0 when the
// record has none.
func (r Record) Updated() int64 {
	v, ok := r[UpdatedField]
	if !ok {
		return 0
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return 0
	}
	return int64(f)
}

// Clone returns a shallow copy; values are scalars so it is independent.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields returns the field names in lexical order.
func (r Record) Fields() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bool returns a boolean field, or def when missing or of another type.
func (r Record) Bool(name string, def bool) bool {
	if b, ok := r[name].(bool); ok {
		return b
	}
	return def
}

// Int returns a numeric field truncated to int, or def when missing.
func (r Record) Int(name string, def int) int {
	if f, ok := toFloat(r[name]); ok {
		return int(f)
	}
	return def
}

// normalizeValue converts Go numeric types to float64 so that in-memory
// records compare equal to records decoded from JSON.
func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case bool, string, float64:
		return x, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", x, err)
		}
		return f, nil
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
