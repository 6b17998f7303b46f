package sitestore

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidSchema is returned by NewSchema for unusable defaults.
var ErrInvalidSchema = errors.New("sitestore: invalid schema")

// Schema declares the setting fields a Store persists, with their default
// values. Fields outside the schema may live in memory (for example after an
// import) but are dropped when the store is written out.
type Schema struct {
	fields   []string
	allowed  map[string]bool
	defaults Record
}

// NewSchema validates defaults and builds a schema from its field names.
// Every default must be a bool, number or string, and no field may be named
// UpdatedField.
func NewSchema(defaults Record) (*Schema, error) {
	if len(defaults) == 0 {
		return nil, fmt.Errorf("%w: no fields declared", ErrInvalidSchema)
	}
	s := &Schema{
		allowed:  map[string]bool{UpdatedField: true},
		defaults: make(Record, len(defaults)),
	}
	for name, value := range defaults {
		if name == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidSchema)
		}
		if name == UpdatedField {
			return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidSchema, UpdatedField)
		}
		normalized, err := normalizeValue(value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidSchema, name, err)
		}
		s.fields = append(s.fields, name)
		s.allowed[name] = true
		s.defaults[name] = normalized
	}
	sort.Strings(s.fields)
	return s, nil
}

// Fields returns the declared field names in lexical order.
func (s *Schema) Fields() []string {
	return append([]string(nil), s.fields...)
}

// Defaults returns a copy of the default settings.
func (s *Schema) Defaults() Record {
	return s.defaults.Clone()
}

// Allows reports whether name is persisted: a declared field or UpdatedField.
func (s *Schema) Allows(name string) bool {
	return s.allowed[name]
}

// Customized reports whether r differs from the defaults in any declared
// field. A missing field counts as different.
func (s *Schema) Customized(r Record) bool {
	for _, name := range s.fields {
		v, ok := r[name]
		if !ok {
			return true
		}
		normalized, err := normalizeValue(v)
		if err != nil || normalized != s.defaults[name] {
			return true
		}
	}
	return false
}

// Settings extracts the declared fields of r, falling back to defaults for
// missing ones. The result never carries UpdatedField.
func (s *Schema) Settings(r Record) Record {
	out := make(Record, len(s.fields))
	for _, name := range s.fields {
		if v, ok := r[name]; ok {
			out[name] = v
		} else {
			out[name] = s.defaults[name]
		}
	}
	return out
}
