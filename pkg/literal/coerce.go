package literal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// Coerce converts a decoded JSON value (or any loosely typed Go value) into
// the canonical representation of t documented on schema.Record. Objects
// become *schema.Record and arrays become []any of coerced elements.
func Coerce(v any, t schema.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	out, err := coerce(v, t)
	if err != nil {
		return nil, fmt.Errorf("coerce %v to %s: %w", v, t, err)
	}
	return out, nil
}

func coerce(v any, t schema.Type) (any, error) {
	switch t.Kind {
	case schema.Bool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(x)
		}
	case schema.Byte:
		return coerceInt(v, 0, math.MaxUint8, func(n int64) any { return uint8(n) })
	case schema.SByte:
		return coerceInt(v, math.MinInt8, math.MaxInt8, func(n int64) any { return int8(n) })
	case schema.Int16:
		return coerceInt(v, math.MinInt16, math.MaxInt16, func(n int64) any { return int16(n) })
	case schema.Int32:
		return coerceInt(v, math.MinInt32, math.MaxInt32, func(n int64) any { return int32(n) })
	case schema.Int64:
		return coerceInt(v, math.MinInt64, math.MaxInt64, func(n int64) any { return n })
	case schema.Single:
		f, err := coerceFloat(v)
		return float32(f), err
	case schema.Double:
		return coerceFloat(v)
	case schema.Decimal:
		if s, ok := v.(string); ok {
			d, _, err := apd.NewFromString(trimSuffix(s, "mM"))
			return d, err
		}
		if d, ok := AsDecimal(v); ok {
			return d, nil
		}
	case schema.Binary:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return base64.StdEncoding.DecodeString(x)
		}
	case schema.Guid:
		switch x := v.(type) {
		case uuid.UUID:
			return x, nil
		case string:
			return uuid.Parse(x)
		}
	case schema.DateTime:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			return parseDateTime(x)
		}
	case schema.DateTimeOffset:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			return parseDateTimeOffset(x)
		}
	case schema.Time:
		switch x := v.(type) {
		case time.Duration:
			return x, nil
		case string:
			return parseDuration(x)
		}
	case schema.Enum:
		if n, ok := AsInt64(v); ok {
			return n, nil
		}
		if s, ok := v.(string); ok {
			if t.Enum == nil {
				return strconv.ParseInt(s, 10, 64)
			}
			return t.Enum.Parse(s)
		}
	case schema.String:
		switch x := v.(type) {
		case string:
			return x, nil
		case json.Number:
			return x.String(), nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case schema.Object:
		return coerceObject(v, t.Schema)
	case schema.Collection:
		items, ok := v.([]any)
		if !ok {
			break
		}
		elem, _ := t.Element()
		out := make([]any, len(items))
		for i, item := range items {
			c, err := Coerce(item, elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

func coerceInt(v any, lo, hi int64, conv func(int64) any) (any, error) {
	var n int64
	switch x := v.(type) {
	case string:
		p, err := strconv.ParseInt(trimSuffix(x, "Ll"), 10, 64)
		if err != nil {
			return nil, err
		}
		n = p
	default:
		p, ok := AsInt64(v)
		if !ok {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		n = p
	}
	if n < lo || n > hi {
		return nil, fmt.Errorf("%d out of range", n)
	}
	return conv(n), nil
}

func coerceFloat(v any) (float64, error) {
	if s, ok := v.(string); ok {
		return parseFloat[float64](trimSuffix(s, "dDfF"), 64)
	}
	f, ok := AsFloat64(v)
	if !ok {
		return 0, fmt.Errorf("%v is not a number", v)
	}
	return f, nil
}

// coerceObject maps a decoded JSON object onto a record of s. Keys are
// matched by wire name; unknown keys and OData metadata entries are ignored.
func coerceObject(v any, s *schema.Schema) (any, error) {
	switch x := v.(type) {
	case *schema.Record:
		return x, nil
	case map[string]any:
		if s == nil {
			return nil, fmt.Errorf("object without schema")
		}
		rec := schema.NewRecord(s)
		for key, raw := range x {
			if strings.HasPrefix(key, "__") || strings.HasPrefix(key, "odata.") {
				continue
			}
			f, ok := s.FieldByWire(key)
			if !ok {
				continue
			}
			// Deferred navigation properties arrive as {"__deferred": {...}}.
			if m, ok := raw.(map[string]any); ok {
				if _, deferred := m["__deferred"]; deferred {
					continue
				}
				if results, ok := m["results"]; ok && f.Type.Kind == schema.Collection {
					raw = results
				}
			}
			val, err := Coerce(raw, f.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			if err := rec.Set(f.Name, val); err != nil {
				return nil, err
			}
		}
		return rec, nil
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}
