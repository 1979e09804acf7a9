package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// Record is one row of application data with a stable identifier.
type Record struct {
	ID     int64          `json:"id"`
	Fields map[string]any `json:"fields"`
}

// New creates a Record after normalizing its fields.
func New(id int64, fields map[string]any) (Record, error) {
	norm, err := NormalizeFields(fields)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, Fields: norm}, nil
}

// MustNew is New for literals in tests and fixtures. Panics on invalid fields.
func MustNew(id int64, fields map[string]any) Record {
	r, err := New(id, fields)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the raw value of a field.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// String renders a field for display. Missing and null fields render as "".
func (r Record) String(field string) string {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// Clone returns a copy that shares nothing mutable with r.
func (r Record) Clone() Record {
	return Record{ID: r.ID, Fields: maps.Clone(r.Fields)}
}

// Equal reports whether two records have the same ID and field values.
func (r Record) Equal(other Record) bool {
	return r.ID == other.ID && maps.Equal(r.Fields, other.Fields)
}

// Merge returns a copy of r with patch applied on top. A nil patch value
// clears the field to null rather than removing it.
func (r Record) Merge(patch map[string]any) Record {
	out := r.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		out.Fields[k] = v
	}
	return out
}

// UnmarshalJSON decodes numbers as int64 and normalizes every field.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     int64          `json:"id"`
		Fields map[string]any `json:"fields"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	rec, err := New(raw.ID, raw.Fields)
	if err != nil {
		return fmt.Errorf("decode record %d: %w", raw.ID, err)
	}
	*r = rec
	return nil
}

// DecodeFields parses a JSON object into normalized field values.
func DecodeFields(data []byte) (map[string]any, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return NormalizeFields(raw)
}

// Filter is a conjunction of field equality constraints.
type Filter map[string]any

// Matches reports whether r satisfies every constraint in f.
func (f Filter) Matches(r Record) bool {
	for k, want := range f {
		if got, ok := r.Fields[k]; !ok || got != want {
			return false
		}
	}
	return true
}
