package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Getter exposes field values by in-memory name. Records implement it, and
// so can any caller-defined type that wants to be filtered locally.
type Getter interface {
	Get(name string) (any, bool)
}

// Record is a dynamic value of a schema. Values are keyed by in-memory field
// name; iteration follows the schema declaration order.
//
// The canonical Go representation per kind is: bool, uint8, int8, int16,
// int32, int64, float32, float64, *apd.Decimal, []byte, uuid.UUID,
// time.Time (DateTime and DateTimeOffset), time.Duration, int64 (Enum),
// string, *Record (Object) and []any (Collection).
type Record struct {
	schema *Schema
	values map[string]any
}

// NewRecord returns an empty record of s.
func NewRecord(s *Schema) *Record {
	return &Record{schema: s, values: make(map[string]any, s.Len())}
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema { return r.schema }

// Set assigns a field value. The field must exist in the schema.
func (r *Record) Set(name string, v any) error {
	f, ok := r.schema.Field(name)
	if !ok {
		return fmt.Errorf("%s has no field %q", r.schema.Name(), name)
	}
	r.values[f.Name] = v
	return nil
}

// MustSet is like Set but panics on unknown fields.
func (r *Record) MustSet(name string, v any) *Record {
	if err := r.Set(name, v); err != nil {
		panic(err)
	}
	return r
}

// Get implements Getter.
func (r *Record) Get(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	if v, ok := r.values[name]; ok {
		return v, true
	}
	if f, ok := r.schema.Field(name); ok {
		v, ok := r.values[f.Name]
		return v, ok
	}
	return nil, false
}

// Keys returns the names of the fields that hold a value, in schema order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.values))
	for _, f := range r.schema.fields {
		if _, ok := r.values[f.Name]; ok {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

// Len returns the number of assigned fields.
func (r *Record) Len() int { return len(r.values) }

// MarshalJSON writes the record as an object keyed by wire names in schema
// order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range r.schema.fields {
		v, ok := r.values[f.Name]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(f.Wire())
		buf.Write(key)
		buf.WriteByte(':')
		data, err := json.Marshal(jsonValue(v))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case *apd.Decimal:
		if x == nil {
			return nil
		}
		return x.String()
	case apd.Decimal:
		return x.String()
	case time.Duration:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = jsonValue(x[i])
		}
		return out
	}
	return v
}
