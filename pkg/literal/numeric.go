package literal

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/exp/constraints"
)

// DecimalContext is used for all decimal arithmetic and conversions.
var DecimalContext = apd.BaseContext.WithPrecision(34)

func parseSigned[T constraints.Signed](s string, bits int) (T, error) {
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return 0, err
	}
	return T(n), nil
}

func parseUnsigned[T constraints.Unsigned](s string, bits int) (T, error) {
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, err
	}
	return T(n), nil
}

func parseFloat[T constraints.Float](s string, bits int) (T, error) {
	switch s {
	case "NaN":
		return T(math.NaN()), nil
	case "INF":
		return T(math.Inf(1)), nil
	case "-INF":
		return T(math.Inf(-1)), nil
	}
	f, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, err
	}
	return T(f), nil
}

func formatInteger[T constraints.Integer](v T) string {
	return fmt.Sprintf("%d", v)
}

// formatFloat writes the shortest representation that reads back to the
// same value and always carries a decimal point or exponent.
func formatFloat[T constraints.Float](v T, bits int) string {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-7 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'E', -1, bits)
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// trimSuffix removes one of the given single-byte type suffixes.
func trimSuffix(s string, suffixes string) string {
	if s == "" {
		return s
	}
	if strings.IndexByte(suffixes, s[len(s)-1]) >= 0 {
		return s[:len(s)-1]
	}
	return s
}

// AsInt64 converts any Go integer value (or a float holding an integral
// value) to int64.
func AsInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float32:
		if float32(int64(x)) == x {
			return int64(x), true
		}
	case float64:
		if float64(int64(x)) == x {
			return int64(x), true
		}
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	}
	return 0, false
}

// AsFloat64 converts any Go numeric value, including decimals, to float64.
func AsFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case *apd.Decimal:
		if x == nil {
			return 0, false
		}
		f, err := x.Float64()
		return f, err == nil
	case apd.Decimal:
		f, err := x.Float64()
		return f, err == nil
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	if n, ok := AsInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}

// AsDecimal converts any Go numeric value to a decimal.
func AsDecimal(v any) (*apd.Decimal, bool) {
	switch x := v.(type) {
	case *apd.Decimal:
		return x, x != nil
	case apd.Decimal:
		return &x, true
	case float32:
		d, err := new(apd.Decimal).SetFloat64(float64(x))
		return d, err == nil
	case float64:
		d, err := new(apd.Decimal).SetFloat64(x)
		return d, err == nil
	case json.Number:
		d, _, err := apd.NewFromString(x.String())
		return d, err == nil
	}
	if n, ok := AsInt64(v); ok {
		return apd.New(n, 0), true
	}
	return nil, false
}

// IsNumber reports whether v is a Go numeric value.
func IsNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, *apd.Decimal, apd.Decimal, json.Number:
		return true
	}
	return false
}
