package compact

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleEntries() []Entry {
	return []Entry{
		{Key: "example.com", Fields: map[string]any{
			"hashWordSize": float64(30),
			"bangify":      true,
			"updated":      float64(1700000000000),
		}},
		{Key: "Zebra.org", Fields: map[string]any{
			"requirePunctuation": false,
		}},
		{Key: "empty.net", Fields: map[string]any{}},
		{Key: "note.io", Fields: map[string]any{
			"hint":         "work account",
			"hashWordSize": float64(12),
		}},
	}
}

func TestRoundTrip(t *testing.T) {
	entries := sampleEntries()

	data, err := Marshal(Encode(entries, nil))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	blob, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeBuildsDictionaryLazily(t *testing.T) {
	blob := Encode(sampleEntries(), nil)

	wantProps := []string{"bangify", "hashWordSize", "updated", "requirePunctuation", "hint"}
	if diff := cmp.Diff(wantProps, blob.Props); diff != "" {
		t.Errorf("props mismatch (-want +got):\n%s", diff)
	}

	// Zebra.org only defines slot 3; slots 0-2 are holes.
	zebra := blob.Map[1]
	if zebra.Key != "Zebra.org" {
		t.Fatalf("expected row order to follow entries, got %q", zebra.Key)
	}
	wantValues := []any{nil, nil, nil, false}
	if diff := cmp.Diff(wantValues, zebra.Values); diff != "" {
		t.Errorf("sparse values mismatch (-want +got):\n%s", diff)
	}

	if len(blob.Map[2].Values) != 0 {
		t.Errorf("expected empty record to have no slots, got %v", blob.Map[2].Values)
	}
}

func TestEncodeFilter(t *testing.T) {
	keep := func(name string) bool { return name == "hashWordSize" || name == "updated" }
	got, err := Decode(Encode(sampleEntries(), keep))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	for _, entry := range got {
		for name := range entry.Fields {
			if !keep(name) {
				t.Errorf("field %q of %q should have been dropped", name, entry.Key)
			}
		}
	}
	if got[0].Fields["hashWordSize"] != float64(30) {
		t.Errorf("expected kept field to survive, got %v", got[0].Fields)
	}
}

func TestWireFormat(t *testing.T) {
	entries := []Entry{
		{Key: "a.com", Fields: map[string]any{"hashWordSize": float64(26)}},
		{Key: "b.com", Fields: map[string]any{"bangify": true}},
	}
	data, err := Marshal(Encode(entries, nil))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"props":["hashWordSize","bangify"],"map":[["a.com",[26]],["b.com",[null,true]]]}`
	if string(data) != want {
		t.Errorf("unexpected wire format:\n got %s\nwant %s", data, want)
	}
}

func TestUnmarshalEmpty(t *testing.T) {
	for _, input := range []string{"", "  ", "null"} {
		blob, err := Unmarshal([]byte(input))
		if err != nil {
			t.Fatalf("Unmarshal(%q) failed: %v", input, err)
		}
		if len(blob.Props) != 0 || len(blob.Map) != 0 {
			t.Errorf("Unmarshal(%q) expected empty blob, got %+v", input, blob)
		}
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "{"},
		{"row not array", `{"props":[],"map":["x"]}`},
		{"row wrong arity", `{"props":[],"map":[["x"]]}`},
		{"row key not string", `{"props":[],"map":[[1,[]]]}`},
		{"values not array", `{"props":[],"map":[["x",{}]]}`},
		{"props not array", `{"props":"a","map":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.input))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecodeSlotOutOfRange(t *testing.T) {
	blob := Blob{Props: []string{"a"}, Map: []Row{{Key: "x", Values: []any{true, false}}}}
	if _, err := Decode(blob); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeNullValuesRow(t *testing.T) {
	blob, err := Unmarshal([]byte(`{"props":["a"],"map":[["x",null]]}`))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	entries, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(entries) != 1 || len(entries[0].Fields) != 0 {
		t.Errorf("expected one empty record, got %+v", entries)
	}
}
