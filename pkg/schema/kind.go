package schema

import (
	"fmt"
	"strings"
)

// Kind is the type tag of a schema field or expression value.
type Kind uint8

const (
	Invalid Kind = iota
	Bool
	Byte
	SByte
	Int16
	Int32
	Int64
	Single
	Double
	Decimal
	Binary
	Guid
	DateTime
	DateTimeOffset
	Time
	Enum
	String
	Object
	Collection
)

var kindNames = [...]string{
	Invalid:        "invalid",
	Bool:           "bool",
	Byte:           "byte",
	SByte:          "sbyte",
	Int16:          "int16",
	Int32:          "int32",
	Int64:          "int64",
	Single:         "single",
	Double:         "double",
	Decimal:        "decimal",
	Binary:         "binary",
	Guid:           "guid",
	DateTime:       "datetime",
	DateTimeOffset: "datetimeoffset",
	Time:           "time",
	Enum:           "enum",
	String:         "string",
	Object:         "object",
	Collection:     "collection",
}

// edmNames maps the Edm primitive names used in service metadata.
var edmNames = map[string]Kind{
	"edm.boolean":        Bool,
	"edm.byte":           Byte,
	"edm.sbyte":          SByte,
	"edm.int16":          Int16,
	"edm.int32":          Int32,
	"edm.int64":          Int64,
	"edm.single":         Single,
	"edm.double":         Double,
	"edm.decimal":        Decimal,
	"edm.binary":         Binary,
	"edm.guid":           Guid,
	"edm.datetime":       DateTime,
	"edm.datetimeoffset": DateTimeOffset,
	"edm.time":           Time,
	"edm.string":         String,
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind accepts the short names returned by Kind.String as well as Edm
// primitive names ("Edm.Int32"), case-insensitively. A few Go spellings are
// accepted as aliases.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if k, ok := edmNames[name]; ok {
		return k, nil
	}
	switch name {
	case "boolean":
		return Bool, nil
	case "int", "integer":
		return Int32, nil
	case "long":
		return Int64, nil
	case "float", "float32":
		return Single, nil
	case "float64":
		return Double, nil
	case "uuid":
		return Guid, nil
	case "bytes":
		return Binary, nil
	case "duration", "timespan":
		return Time, nil
	}
	for k, n := range kindNames {
		if n == name && Kind(k) != Invalid {
			return Kind(k), nil
		}
	}
	return Invalid, fmt.Errorf("unknown type %q", s)
}

// IsIntegral reports whether k is one of the fixed-width integer kinds.
func (k Kind) IsIntegral() bool {
	switch k {
	case Byte, SByte, Int16, Int32, Int64:
		return true
	}
	return false
}

// IsFloating reports whether k is a binary floating point kind.
func (k Kind) IsFloating() bool {
	return k == Single || k == Double
}

// IsNumeric reports whether k is integral, floating or decimal.
func (k Kind) IsNumeric() bool {
	return k.IsIntegral() || k.IsFloating() || k == Decimal
}
