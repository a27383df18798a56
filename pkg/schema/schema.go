// Package schema describes the named-field resources that filters, sorts and
// projections are written against.
//
// A Schema is an explicit descriptor table built once per resource: every
// field has an in-memory name, an optional wire name and a type tag. Lookups
// are by name, so no reflection is needed to resolve member paths.
//
//	users := schema.MustNew("User",
//	    schema.Field{Name: "UserName", WireName: "userName", Type: schema.Of(schema.String)},
//	    schema.Field{Name: "Age", Type: schema.Of(schema.Int32)},
//	)
package schema

import (
	"fmt"
	"strings"
)

// Field describes one member of a schema.
type Field struct {
	Name     string
	WireName string
	Type     Type
}

// Wire returns the name used on the wire, falling back to Name.
func (f Field) Wire() string {
	if f.WireName != "" {
		return f.WireName
	}
	return f.Name
}

// Schema is an immutable descriptor table for one resource shape.
type Schema struct {
	name   string
	fields []Field
	byName map[string]int
	byWire map[string]int
}

// New builds a schema. Field names must be non-empty and unique.
func New(name string, fields ...Field) (*Schema, error) {
	s := &Schema{name: name}
	if err := s.setFields(fields); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNew is like New but panics on invalid input.
func MustNew(name string, fields ...Field) *Schema {
	s, err := New(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) setFields(fields []Field) error {
	s.fields = make([]Field, len(fields))
	s.byName = make(map[string]int, len(fields))
	s.byWire = make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: field %d has no name", s.name, i)
		}
		if _, dup := s.byName[f.Name]; dup {
			return fmt.Errorf("schema %s: duplicate field %q", s.name, f.Name)
		}
		if f.Type.Kind == Invalid {
			return fmt.Errorf("schema %s: field %q has no type", s.name, f.Name)
		}
		s.fields[i] = f
		s.byName[f.Name] = i
		s.byWire[f.Wire()] = i
	}
	return nil
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the in-memory field names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Field looks a field up by in-memory name. An exact match wins over a
// case-insensitive one.
func (s *Schema) Field(name string) (Field, bool) {
	if i, ok := s.byName[name]; ok {
		return s.fields[i], true
	}
	for _, f := range s.fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByWire looks a field up by wire name, then falls back to Field.
func (s *Schema) FieldByWire(wire string) (Field, bool) {
	if i, ok := s.byWire[wire]; ok {
		return s.fields[i], true
	}
	for _, f := range s.fields {
		if strings.EqualFold(f.Wire(), wire) {
			return f, true
		}
	}
	return s.Field(wire)
}

// Index returns the declaration position of a field, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.byName[name]; ok {
		return i
	}
	return -1
}

func (s *Schema) String() string { return s.name }
