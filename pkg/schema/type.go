package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is a resolved value type.
type Type struct {
	Kind     Kind
	Nullable bool
	// Enum describes the members when Kind is Enum.
	Enum *EnumType
	// Elem is the element type when Kind is Collection.
	Elem *Type
	// Schema is the record shape when Kind is Object.
	Schema *Schema
}

// Of returns the non-nullable type for a primitive kind.
func Of(k Kind) Type { return Type{Kind: k} }

// NullableOf returns the nullable type for a primitive kind.
func NullableOf(k Kind) Type { return Type{Kind: k, Nullable: true} }

// ObjectOf returns a nested record type.
func ObjectOf(s *Schema) Type { return Type{Kind: Object, Schema: s, Nullable: true} }

// CollectionOf returns a collection type over elem.
func CollectionOf(elem Type) Type { return Type{Kind: Collection, Elem: &elem} }

// EnumOf returns the type of an enum field.
func EnumOf(e *EnumType) Type { return Type{Kind: Enum, Enum: e} }

func (t Type) String() string {
	var s string
	switch t.Kind {
	case Enum:
		if t.Enum != nil {
			s = t.Enum.Name
		} else {
			s = "enum"
		}
	case Object:
		if t.Schema != nil {
			s = t.Schema.Name()
		} else {
			s = "object"
		}
	case Collection:
		if t.Elem != nil {
			s = "collection(" + t.Elem.String() + ")"
		} else {
			s = "collection"
		}
	default:
		s = t.Kind.String()
	}
	if t.Nullable && t.Kind != Object {
		s += "?"
	}
	return s
}

// NonNull strips nullability.
func (t Type) NonNull() Type {
	t.Nullable = false
	return t
}

// WithNullable returns t with Nullable set to n.
func (t Type) WithNullable(n bool) Type {
	t.Nullable = n
	return t
}

// IsNumeric reports whether values of t take part in arithmetic.
func (t Type) IsNumeric() bool { return t.Kind.IsNumeric() }

// IsFlags reports whether t is an enum decorated as a bit set.
func (t Type) IsFlags() bool { return t.Kind == Enum && t.Enum != nil && t.Enum.Flags }

// Element returns the element type of a collection.
func (t Type) Element() (Type, bool) {
	if t.Kind != Collection || t.Elem == nil {
		return Type{}, false
	}
	return *t.Elem, true
}

// Same reports whether a and b describe the same value type, ignoring
// nullability.
func Same(a, b Type) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Enum:
		return a.Enum == b.Enum || a.Enum == nil || b.Enum == nil
	case Object:
		return a.Schema == b.Schema
	case Collection:
		if a.Elem == nil || b.Elem == nil {
			return a.Elem == b.Elem
		}
		return Same(*a.Elem, *b.Elem)
	}
	return true
}

// Promote resolves the common type of two operands. Identical types resolve
// to themselves, integral kinds widen to Int64, any other numeric mix widens
// to Decimal, and an enum compared with an integral value resolves to its
// Int64 underlying type. The result is nullable if either input is.
func Promote(a, b Type) (Type, bool) {
	nullable := a.Nullable || b.Nullable
	if Same(a, b) {
		return a.WithNullable(nullable), true
	}
	ak, bk := a.Kind, b.Kind
	if ak == Enum {
		ak = Int64
	}
	if bk == Enum {
		bk = Int64
	}
	switch {
	case ak.IsIntegral() && bk.IsIntegral():
		return Type{Kind: Int64, Nullable: nullable}, true
	case ak.IsNumeric() && bk.IsNumeric():
		return Type{Kind: Decimal, Nullable: nullable}, true
	case (ak == DateTime && bk == DateTimeOffset) || (ak == DateTimeOffset && bk == DateTime):
		return Type{Kind: DateTimeOffset, Nullable: nullable}, true
	}
	return Type{}, false
}

// EnumMember is one named value of an enum.
type EnumMember struct {
	Name  string
	Value int64
}

// EnumType describes an enum and whether it is a flags set.
type EnumType struct {
	Name    string
	Flags   bool
	Members []EnumMember
}

// Value returns the numeric value of the named member.
func (e *EnumType) Value(name string) (int64, bool) {
	for _, m := range e.Members {
		if strings.EqualFold(m.Name, name) {
			return m.Value, true
		}
	}
	return 0, false
}

// Format renders v as a member name, or a comma separated member list for
// flags enums.
func (e *EnumType) Format(v int64) string {
	for _, m := range e.Members {
		if m.Value == v {
			return m.Name
		}
	}
	if !e.Flags {
		return strconv.FormatInt(v, 10)
	}
	var names []string
	rest := v
	for _, m := range e.Members {
		if m.Value != 0 && v&m.Value == m.Value {
			names = append(names, m.Name)
			rest &^= m.Value
		}
	}
	if rest != 0 || len(names) == 0 {
		return strconv.FormatInt(v, 10)
	}
	return strings.Join(names, ", ")
}

// Parse reads a member name, a comma separated list for flags enums, or an
// underlying integer value.
func (e *EnumType) Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if v, ok := e.Value(s); ok {
		return v, nil
	}
	if !e.Flags {
		return 0, fmt.Errorf("%q is not a member of %s", s, e.Name)
	}
	var v int64
	for _, part := range strings.Split(s, ",") {
		m, ok := e.Value(strings.TrimSpace(part))
		if !ok {
			return 0, fmt.Errorf("%q is not a member of %s", part, e.Name)
		}
		v |= m
	}
	return v, nil
}
