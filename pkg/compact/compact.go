// Package compact implements the column-dictionary encoding used to persist
// site settings.
//
// A mapping of site identifiers to flat field sets is stored as
//
//	{"props": ["hashWordSize", "updated"], "map": [["example.com", [30, 1700000000000]]]}
//
// where props is a dictionary of field names and every row carries a sparse
// array indexed by dictionary position. A field a record does not define
// leaves a hole (null on the wire) and is not reconstructed on decode.
package compact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrMalformed indicates a blob that does not follow the {props, map} layout.
var ErrMalformed = errors.New("compact: malformed blob")

// Entry is one site identifier and its fields, in caller order.
type Entry struct {
	Key    string
	Fields map[string]any
}

// Blob is the compacted form of an ordered mapping.
type Blob struct {
	Props []string `json:"props"`
	Map   []Row    `json:"map"`
}

// Row pairs a site identifier with its sparse value array.
// It is serialized as a two-element JSON array.
type Row struct {
	Key    string
	Values []any
}

// MarshalJSON encodes the row as [key, values].
func (r Row) MarshalJSON() ([]byte, error) {
	values := r.Values
	if values == nil {
		values = []any{}
	}
	return json.Marshal([]any{r.Key, values})
}

// UnmarshalJSON decodes a [key, values] pair.
func (r *Row) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("%w: row is not an array: %v", ErrMalformed, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: row has %d elements, want 2", ErrMalformed, len(pair))
	}
	if err := json.Unmarshal(pair[0], &r.Key); err != nil {
		return fmt.Errorf("%w: row key is not a string", ErrMalformed)
	}
	r.Values = nil
	if bytes.Equal(bytes.TrimSpace(pair[1]), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(pair[1], &r.Values); err != nil {
		return fmt.Errorf("%w: row values are not an array", ErrMalformed)
	}
	return nil
}

// Encode compacts entries. The dictionary is built lazily in entry order;
// within one entry, fields are visited in lexical order so the output is
// deterministic. keep filters field names; nil keeps every field.
func Encode(entries []Entry, keep func(field string) bool) Blob {
	blob := Blob{Props: []string{}, Map: make([]Row, 0, len(entries))}
	index := make(map[string]int)

	for _, entry := range entries {
		names := make([]string, 0, len(entry.Fields))
		for name := range entry.Fields {
			if keep != nil && !keep(name) {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)

		var values []any
		for _, name := range names {
			i, ok := index[name]
			if !ok {
				i = len(blob.Props)
				index[name] = i
				blob.Props = append(blob.Props, name)
			}
			for len(values) <= i {
				values = append(values, nil)
			}
			values[i] = entry.Fields[name]
		}
		blob.Map = append(blob.Map, Row{Key: entry.Key, Values: values})
	}
	return blob
}

// Decode expands a blob back into entries. Slots that are absent or null do
// not produce a field.
func Decode(blob Blob) ([]Entry, error) {
	entries := make([]Entry, 0, len(blob.Map))
	for _, row := range blob.Map {
		fields := make(map[string]any)
		for i, value := range row.Values {
			if value == nil {
				continue
			}
			if i >= len(blob.Props) {
				return nil, fmt.Errorf("%w: row %q uses slot %d of %d", ErrMalformed, row.Key, i, len(blob.Props))
			}
			fields[blob.Props[i]] = value
		}
		entries = append(entries, Entry{Key: row.Key, Fields: fields})
	}
	return entries, nil
}

// Marshal encodes the blob as JSON.
func Marshal(blob Blob) ([]byte, error) {
	if blob.Props == nil {
		blob.Props = []string{}
	}
	if blob.Map == nil {
		blob.Map = []Row{}
	}
	return json.Marshal(blob)
}

// Unmarshal parses a JSON blob. Empty input and a JSON null both yield an
// empty blob.
func Unmarshal(data []byte) (Blob, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Blob{Props: []string{}, Map: []Row{}}, nil
	}
	var blob Blob
	if err := json.Unmarshal(trimmed, &blob); err != nil {
		if errors.Is(err, ErrMalformed) {
			return Blob{}, err
		}
		return Blob{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return blob, nil
}
