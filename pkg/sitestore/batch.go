package sitestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidBatch is returned by ParseBatch for input that cannot be
// imported. Nothing is applied when it is returned.
var ErrInvalidBatch = errors.New("sitestore: invalid import data")

// Batch is a set of records to merge into a Store.
type Batch struct {
	// Updated is the batch timestamp in epoch milliseconds; 0 means "now".
	Updated int64
	// Entries are the incoming records in input order.
	Entries []Entry
}

// batchSchemaURL names the compiled batch schema resource.
const batchSchemaURL = "batch.schema.json"

// batchSchemaJSON accepts the export shape: an object keyed by site whose
// values are flat objects of scalars. A numeric top-level "updated" is the
// batch timestamp rather than a site.
const batchSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"updated": {
			"oneOf": [
				{"type": "number"},
				{"$ref": "#/$defs/record"}
			]
		}
	},
	"additionalProperties": {"$ref": "#/$defs/record"},
	"$defs": {
		"record": {
			"type": "object",
			"properties": {
				"updated": {"type": "number"}
			},
			"additionalProperties": {
				"type": ["boolean", "number", "string"]
			}
		}
	}
}`

var compileBatchSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(batchSchemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(batchSchemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(batchSchemaURL)
})

// ParseBatch validates and decodes import data. The whole input is checked
// before anything is returned, so a rejected batch never partially applies.
func ParseBatch(data []byte) (*Batch, error) {
	schema, err := compileBatchSchema()
	if err != nil {
		return nil, fmt.Errorf("sitestore: failed to compile batch schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}

	return decodeBatch(data)
}

// decodeBatch walks the top-level object with a token decoder so entries
// keep their input order. A repeated site keeps its first position and its
// last value, as a JSON object would.
func decodeBatch(data []byte) (*Batch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}

	batch := &Batch{}
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
		}
		site, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrInvalidBatch, tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: site %q: %v", ErrInvalidBatch, site, err)
		}

		if site == UpdatedField {
			batch.Updated = 0
			var n json.Number
			if err := json.Unmarshal(raw, &n); err == nil {
				f, err := n.Float64()
				if err != nil {
					return nil, fmt.Errorf("%w: updated: %v", ErrInvalidBatch, err)
				}
				batch.Updated = int64(f)
				if i, ok := index[site]; ok {
					batch.Entries = append(batch.Entries[:i], batch.Entries[i+1:]...)
					delete(index, site)
					for name, j := range index {
						if j > i {
							index[name] = j - 1
						}
					}
				}
				continue
			}
		}

		record, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: site %q: %v", ErrInvalidBatch, site, err)
		}
		if i, ok := index[site]; ok {
			batch.Entries[i].Record = record
			continue
		}
		index[site] = len(batch.Entries)
		batch.Entries = append(batch.Entries, Entry{Site: site, Record: record})
	}
	return batch, nil
}

func decodeRecord(raw json.RawMessage) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	r := make(Record, len(fields))
	for name, value := range fields {
		normalized, err := normalizeValue(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %v", name, err)
		}
		r[name] = normalized
	}
	return r, nil
}
