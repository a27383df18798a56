// Package literal reads and writes OData v3 literal values, one rule per
// primitive kind.
package literal

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// Null is the null literal.
const Null = "null"

// Error reports a literal that could not be read or written.
type Error struct {
	Text string
	Kind schema.Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s literal %q: %v", e.Kind, e.Text, e.Err)
	}
	return fmt.Sprintf("invalid %s literal %q", e.Kind, e.Text)
}

func (e *Error) Unwrap() error { return e.Err }

// Quote writes s as a single-quoted string literal, doubling embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Unquote reads a single- or double-quoted string literal with doubled-quote
// escaping.
func Unquote(s string) (string, error) {
	if len(s) < 2 {
		return "", fmt.Errorf("unterminated string %s", s)
	}
	q := s[0]
	if (q != '\'' && q != '"') || s[len(s)-1] != q {
		return "", fmt.Errorf("not a quoted string: %s", s)
	}
	body := s[1 : len(s)-1]
	double := string([]byte{q, q})
	single := string([]byte{q})
	if strings.Count(strings.ReplaceAll(body, double, ""), single) != 0 {
		return "", fmt.Errorf("unescaped quote in %s", s)
	}
	return strings.ReplaceAll(body, double, single), nil
}

// prefixed splits a typed literal such as datetime'...' into its body. It
// also accepts a plain quoted body and, when bare is set, unquoted text.
func prefixed(text string, bare bool, prefixes ...string) (string, error) {
	lower := strings.ToLower(text)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p+"'") {
			return Unquote(text[len(p):])
		}
	}
	if strings.HasPrefix(text, "'") || strings.HasPrefix(text, `"`) {
		return Unquote(text)
	}
	if bare {
		return text, nil
	}
	return "", fmt.Errorf("expected %s'...'", prefixes[0])
}

// Read parses text as a literal of type t. The null literal reads as nil.
func Read(text string, t schema.Type) (any, error) {
	text = strings.TrimSpace(text)
	if text == Null {
		return nil, nil
	}
	v, err := read(text, t)
	if err != nil {
		return nil, &Error{Text: text, Kind: t.Kind, Err: err}
	}
	return v, nil
}

func read(text string, t schema.Type) (any, error) {
	switch t.Kind {
	case schema.Bool:
		switch strings.ToLower(text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("expected true or false")
	case schema.Byte:
		return parseUnsigned[uint8](text, 8)
	case schema.SByte:
		return parseSigned[int8](text, 8)
	case schema.Int16:
		return parseSigned[int16](text, 16)
	case schema.Int32:
		return parseSigned[int32](text, 32)
	case schema.Int64:
		return parseSigned[int64](trimSuffix(text, "Ll"), 64)
	case schema.Single:
		return parseFloat[float32](trimSuffix(text, "fF"), 32)
	case schema.Double:
		return parseFloat[float64](trimSuffix(text, "dD"), 64)
	case schema.Decimal:
		d, _, err := apd.NewFromString(trimSuffix(text, "mM"))
		return d, err
	case schema.Binary:
		body, err := prefixed(text, false, "x", "binary")
		if err != nil {
			return nil, err
		}
		return hex.DecodeString(body)
	case schema.Guid:
		body, err := prefixed(text, true, "guid")
		if err != nil {
			return nil, err
		}
		return uuid.Parse(body)
	case schema.DateTime:
		body, err := prefixed(text, false, "datetime")
		if err != nil {
			return nil, err
		}
		return parseDateTime(body)
	case schema.DateTimeOffset:
		body, err := prefixed(text, false, "datetimeoffset", "datetime")
		if err != nil {
			return nil, err
		}
		return parseDateTimeOffset(body)
	case schema.Time:
		body, err := prefixed(text, false, "time")
		if err != nil {
			return nil, err
		}
		return parseDuration(body)
	case schema.Enum:
		return readEnum(text, t.Enum)
	case schema.String:
		return Unquote(text)
	}
	return nil, fmt.Errorf("%s values have no literal form", t)
}

// readEnum accepts 'Name', Namespace.Type'Name' and underlying integers.
func readEnum(text string, e *schema.EnumType) (any, error) {
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	if i := strings.IndexByte(text, '\''); i > 0 {
		text = text[i:]
	}
	name, err := Unquote(text)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("no enum type to resolve %q", name)
	}
	return e.Parse(name)
}

// Write formats v as a literal of type t. A nil value writes null.
func Write(v any, t schema.Type) (string, error) {
	if v == nil {
		return Null, nil
	}
	s, err := write(v, t)
	if err != nil {
		return "", &Error{Text: fmt.Sprint(v), Kind: t.Kind, Err: err}
	}
	return s, nil
}

func write(v any, t schema.Type) (string, error) {
	switch t.Kind {
	case schema.Bool:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("%T is not a bool", v)
		}
		return strconv.FormatBool(b), nil
	case schema.Byte, schema.SByte, schema.Int16, schema.Int32:
		n, ok := AsInt64(v)
		if !ok {
			return "", fmt.Errorf("%T is not an integer", v)
		}
		return formatInteger(n), nil
	case schema.Int64:
		n, ok := AsInt64(v)
		if !ok {
			return "", fmt.Errorf("%T is not an integer", v)
		}
		return formatInteger(n) + "L", nil
	case schema.Single:
		f, ok := AsFloat64(v)
		if !ok {
			return "", fmt.Errorf("%T is not a number", v)
		}
		return formatFloat(float32(f), 32) + "f", nil
	case schema.Double:
		f, ok := AsFloat64(v)
		if !ok {
			return "", fmt.Errorf("%T is not a number", v)
		}
		return formatFloat(f, 64), nil
	case schema.Decimal:
		d, ok := AsDecimal(v)
		if !ok {
			return "", fmt.Errorf("%T is not a number", v)
		}
		return d.Text('f') + "M", nil
	case schema.Binary:
		b, ok := v.([]byte)
		if !ok {
			return "", fmt.Errorf("%T is not a byte slice", v)
		}
		return "X'" + hex.EncodeToString(b) + "'", nil
	case schema.Guid:
		switch g := v.(type) {
		case uuid.UUID:
			return "guid'" + g.String() + "'", nil
		case string:
			id, err := uuid.Parse(g)
			if err != nil {
				return "", err
			}
			return "guid'" + id.String() + "'", nil
		}
		return "", fmt.Errorf("%T is not a guid", v)
	case schema.DateTime:
		tm, ok := v.(time.Time)
		if !ok {
			return "", fmt.Errorf("%T is not a time", v)
		}
		return "datetime'" + formatDateTime(tm) + "'", nil
	case schema.DateTimeOffset:
		tm, ok := v.(time.Time)
		if !ok {
			return "", fmt.Errorf("%T is not a time", v)
		}
		return "datetimeoffset'" + formatDateTimeOffset(tm) + "'", nil
	case schema.Time:
		d, ok := v.(time.Duration)
		if !ok {
			return "", fmt.Errorf("%T is not a duration", v)
		}
		return "time'" + formatDuration(d) + "'", nil
	case schema.Enum:
		if s, ok := v.(string); ok {
			return Quote(s), nil
		}
		n, ok := AsInt64(v)
		if !ok {
			return "", fmt.Errorf("%T is not an enum value", v)
		}
		if t.Enum == nil {
			return formatInteger(n), nil
		}
		return Quote(t.Enum.Format(n)), nil
	case schema.String:
		switch s := v.(type) {
		case string:
			return Quote(s), nil
		case fmt.Stringer:
			return Quote(s.String()), nil
		}
		return "", fmt.Errorf("%T is not a string", v)
	}
	return "", fmt.Errorf("%s values have no literal form", t)
}

// TypeOf infers the schema type of a Go value. Go int values that fit in 32
// bits map to Int32.
func TypeOf(v any) (schema.Type, bool) {
	switch x := v.(type) {
	case nil:
		return schema.Type{Nullable: true}, true
	case bool:
		return schema.Of(schema.Bool), true
	case uint8:
		return schema.Of(schema.Byte), true
	case int8:
		return schema.Of(schema.SByte), true
	case int16, uint16:
		return schema.Of(schema.Int16), true
	case int32:
		return schema.Of(schema.Int32), true
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return schema.Of(schema.Int32), true
		}
		return schema.Of(schema.Int64), true
	case int64, uint32, uint, uint64:
		return schema.Of(schema.Int64), true
	case float32:
		return schema.Of(schema.Single), true
	case float64:
		return schema.Of(schema.Double), true
	case *apd.Decimal, apd.Decimal:
		return schema.Of(schema.Decimal), true
	case []byte:
		return schema.Of(schema.Binary), true
	case uuid.UUID:
		return schema.Of(schema.Guid), true
	case time.Time:
		if x.Location() == time.UTC {
			return schema.Of(schema.DateTime), true
		}
		return schema.Of(schema.DateTimeOffset), true
	case time.Duration:
		return schema.Of(schema.Time), true
	case string:
		return schema.Of(schema.String), true
	case *schema.Record:
		return schema.ObjectOf(x.Schema()), true
	}
	return schema.Type{}, false
}

// WriteValue formats v using the type inferred by TypeOf.
func WriteValue(v any) (string, error) {
	t, ok := TypeOf(v)
	if !ok {
		return "", &Error{Text: fmt.Sprint(v), Err: fmt.Errorf("unsupported literal type %T", v)}
	}
	return Write(v, t)
}

// Infer reads a literal without an expected type, deciding the kind from its
// form: quotes, type prefixes, numeric suffixes and decimal points.
func Infer(text string) (any, schema.Type, error) {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	var t schema.Type
	switch {
	case text == Null:
		return nil, schema.Type{Nullable: true}, nil
	case lower == "true" || lower == "false":
		t = schema.Of(schema.Bool)
	case strings.HasPrefix(text, "'") || strings.HasPrefix(text, `"`):
		t = schema.Of(schema.String)
	case strings.HasPrefix(lower, "datetimeoffset'"):
		t = schema.Of(schema.DateTimeOffset)
	case strings.HasPrefix(lower, "datetime'"):
		t = schema.Of(schema.DateTime)
	case strings.HasPrefix(lower, "time'"):
		t = schema.Of(schema.Time)
	case strings.HasPrefix(lower, "guid'"):
		t = schema.Of(schema.Guid)
	case strings.HasPrefix(lower, "x'") || strings.HasPrefix(lower, "binary'"):
		t = schema.Of(schema.Binary)
	case strings.Contains(text, "'"):
		// Namespace.Type'Member' without a known enum reads as its name.
		name, err := Unquote(text[strings.IndexByte(text, '\''):])
		if err != nil {
			return nil, schema.Type{}, &Error{Text: text, Kind: schema.Enum, Err: err}
		}
		return name, schema.Of(schema.String), nil
	case text == "NaN" || text == "INF" || text == "-INF":
		t = schema.Of(schema.Double)
	default:
		t = inferNumber(text)
		if t.Kind == schema.Invalid {
			return nil, t, &Error{Text: text, Err: fmt.Errorf("not a literal")}
		}
	}
	v, err := Read(text, t)
	return v, t, err
}

func inferNumber(text string) schema.Type {
	if text == "" {
		return schema.Type{}
	}
	body := text
	if body[0] == '-' || body[0] == '+' {
		body = body[1:]
	}
	if body == "" || body[0] < '0' || body[0] > '9' {
		if !(strings.HasPrefix(body, ".") && len(body) > 1) {
			return schema.Type{}
		}
	}
	switch text[len(text)-1] {
	case 'L', 'l':
		return schema.Of(schema.Int64)
	case 'M', 'm':
		return schema.Of(schema.Decimal)
	case 'F', 'f':
		return schema.Of(schema.Single)
	case 'D', 'd':
		return schema.Of(schema.Double)
	}
	if strings.ContainsAny(text, ".eE") {
		return schema.Of(schema.Double)
	}
	if _, err := strconv.ParseInt(text, 10, 32); err == nil {
		return schema.Of(schema.Int32)
	}
	return schema.Of(schema.Int64)
}
