package expr

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/robert-malhotra/go-odata-query/pkg/literal"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// Function is a builtin that filters can call.
type Function struct {
	Name    string
	MinArgs int
	MaxArgs int
	// Result resolves the return type from the argument types.
	Result func(args []schema.Type) (schema.Type, error)
	// Eval runs with every argument non-null; a null argument yields null.
	Eval func(args []any) (any, error)
}

var builtins = map[string]*Function{}

func register(f *Function) { builtins[f.Name] = f }

// LookupFunction returns the builtin with the given name.
func LookupFunction(name string) (*Function, bool) {
	f, ok := builtins[strings.ToLower(name)]
	return f, ok
}

// Functions returns the builtin names in sorted order.
func Functions() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewCall builds a call to a builtin, checking arity and argument types.
func NewCall(name string, args ...Expr) (*Call, error) {
	f, ok := LookupFunction(name)
	c := &Call{Name: strings.ToLower(name), Args: args}
	if !ok {
		return nil, typeErrorf(c.String(), "unknown function %s", name)
	}
	if len(args) < f.MinArgs || len(args) > f.MaxArgs {
		return nil, typeErrorf(c.String(), "%s takes %s arguments, got %d", f.Name, arity(f), len(args))
	}
	types := make([]schema.Type, len(args))
	nullable := false
	for i, a := range args {
		types[i] = a.Type()
		nullable = nullable || types[i].Nullable
	}
	t, err := f.Result(types)
	if err != nil {
		return nil, typeErrorf(c.String(), "%v", err)
	}
	c.T = t.WithNullable(t.Nullable || nullable)
	eval := f.Eval
	c.Fn = func(vals []any) (any, error) {
		for _, v := range vals {
			if v == nil {
				return nil, nil
			}
		}
		return eval(vals)
	}
	return c, nil
}

// Invoke builds a call to a caller-supplied function. Writers have no
// grammar for it, so they evaluate it eagerly when its arguments do not
// depend on a parameter.
func Invoke(name string, t schema.Type, fn func(args []any) (any, error), args ...Expr) *Call {
	return &Call{Name: name, Args: args, T: t, Fn: fn}
}

func arity(f *Function) string {
	if f.MinArgs == f.MaxArgs {
		return fmt.Sprint(f.MinArgs)
	}
	return fmt.Sprintf("%d to %d", f.MinArgs, f.MaxArgs)
}

// returns builds a Result that checks each argument's kind against the
// allowed set and returns a fixed type.
func returns(out schema.Kind, allowed ...[]schema.Kind) func([]schema.Type) (schema.Type, error) {
	return func(args []schema.Type) (schema.Type, error) {
		for i, a := range args {
			if i >= len(allowed) {
				break
			}
			if !hasKind(allowed[i], a.Kind) {
				return schema.Type{}, fmt.Errorf("argument %d: unexpected %s", i+1, a)
			}
		}
		return schema.Of(out), nil
	}
}

func hasKind(ks []schema.Kind, k schema.Kind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}

var (
	str      = []schema.Kind{schema.String}
	integral = []schema.Kind{schema.Byte, schema.SByte, schema.Int16, schema.Int32, schema.Int64}
	dates    = []schema.Kind{schema.DateTime, schema.DateTimeOffset}
	clock    = []schema.Kind{schema.DateTime, schema.DateTimeOffset, schema.Time}
)

func strArgs(args []any) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		s, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("argument %d: %T is not a string", i+1, a)
		}
		out[i] = s
	}
	return out, nil
}

func stringFunc(name string, fn func(s []string) any) *Function {
	return &Function{
		Name: name, MinArgs: 1, MaxArgs: 1,
		Result: returns(schema.String, str),
		Eval: func(args []any) (any, error) {
			s, err := strArgs(args)
			if err != nil {
				return nil, err
			}
			return fn(s), nil
		},
	}
}

func predicateFunc(name string, fn func(a, b string) bool) *Function {
	return &Function{
		Name: name, MinArgs: 2, MaxArgs: 2,
		Result: returns(schema.Bool, str, str),
		Eval: func(args []any) (any, error) {
			s, err := strArgs(args)
			if err != nil {
				return nil, err
			}
			return fn(s[0], s[1]), nil
		},
	}
}

func datePart(name string, kinds []schema.Kind, part func(t time.Time) int, dur func(d time.Duration) int) *Function {
	return &Function{
		Name: name, MinArgs: 1, MaxArgs: 1,
		Result: returns(schema.Int32, kinds),
		Eval: func(args []any) (any, error) {
			switch v := args[0].(type) {
			case time.Time:
				return int32(part(v)), nil
			case time.Duration:
				if dur != nil {
					return int32(dur(v)), nil
				}
			}
			return nil, fmt.Errorf("%T has no %s", args[0], name)
		},
	}
}

// roundingFunc dispatches on the operand: floating values use fl, decimals
// use dec with the shared decimal context.
func roundingFunc(name string, fl func(float64) float64, dec func(c *apd.Context, d, x *apd.Decimal) (apd.Condition, error)) *Function {
	return &Function{
		Name: name, MinArgs: 1, MaxArgs: 1,
		Result: func(args []schema.Type) (schema.Type, error) {
			switch args[0].Kind {
			case schema.Single, schema.Double, schema.Decimal:
				return args[0].NonNull(), nil
			}
			return schema.Type{}, fmt.Errorf("%s requires a floating or decimal operand, got %s", name, args[0])
		},
		Eval: func(args []any) (any, error) {
			switch v := args[0].(type) {
			case float64:
				return fl(v), nil
			case float32:
				return float32(fl(float64(v))), nil
			}
			x, ok := literal.AsDecimal(args[0])
			if !ok {
				return nil, fmt.Errorf("%T is not a number", args[0])
			}
			ctx := *literal.DecimalContext
			ctx.Rounding = apd.RoundHalfUp
			out := new(apd.Decimal)
			if _, err := dec(&ctx, out, x); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

func runeIndex(s, sub string) int {
	i := strings.Index(s, sub)
	if i < 0 {
		return -1
	}
	return len([]rune(s[:i]))
}

func init() {
	register(predicateFunc("contains", strings.Contains))
	register(predicateFunc("startswith", strings.HasPrefix))
	register(predicateFunc("endswith", strings.HasSuffix))
	register(stringFunc("tolower", func(s []string) any { return cases.Lower(language.Und).String(s[0]) }))
	register(stringFunc("toupper", func(s []string) any { return cases.Upper(language.Und).String(s[0]) }))
	register(stringFunc("trim", func(s []string) any { return strings.TrimSpace(s[0]) }))
	register(&Function{
		Name: "length", MinArgs: 1, MaxArgs: 1,
		Result: returns(schema.Int32, str),
		Eval: func(args []any) (any, error) {
			s, err := strArgs(args)
			if err != nil {
				return nil, err
			}
			return int32(len([]rune(s[0]))), nil
		},
	})
	register(&Function{
		Name: "indexof", MinArgs: 2, MaxArgs: 2,
		Result: returns(schema.Int32, str, str),
		Eval: func(args []any) (any, error) {
			s, err := strArgs(args)
			if err != nil {
				return nil, err
			}
			return int32(runeIndex(s[0], s[1])), nil
		},
	})
	register(&Function{
		Name: "substring", MinArgs: 2, MaxArgs: 3,
		Result: returns(schema.String, str, integral, integral),
		Eval: func(args []any) (any, error) {
			s, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("%T is not a string", args[0])
			}
			r := []rune(s)
			start, ok := literal.AsInt64(args[1])
			if !ok || start < 0 {
				return nil, fmt.Errorf("invalid start %v", args[1])
			}
			if start > int64(len(r)) {
				return "", nil
			}
			end := int64(len(r))
			if len(args) == 3 {
				n, ok := literal.AsInt64(args[2])
				if !ok || n < 0 {
					return nil, fmt.Errorf("invalid length %v", args[2])
				}
				end = min(end, start+n)
			}
			return string(r[start:end]), nil
		},
	})
	register(&Function{
		Name: "concat", MinArgs: 2, MaxArgs: 2,
		Result: returns(schema.String, str, str),
		Eval: func(args []any) (any, error) {
			s, err := strArgs(args)
			if err != nil {
				return nil, err
			}
			return s[0] + s[1], nil
		},
	})

	register(datePart("year", dates, time.Time.Year, nil))
	register(datePart("month", dates, func(t time.Time) int { return int(t.Month()) }, nil))
	register(datePart("day", dates, time.Time.Day, func(d time.Duration) int { return int(d / (24 * time.Hour)) }))
	register(datePart("hour", clock, time.Time.Hour, func(d time.Duration) int { return int(d/time.Hour) % 24 }))
	register(datePart("minute", clock, time.Time.Minute, func(d time.Duration) int { return int(d/time.Minute) % 60 }))
	register(datePart("second", clock, time.Time.Second, func(d time.Duration) int { return int(d/time.Second) % 60 }))

	register(roundingFunc("round", math.Round, (*apd.Context).RoundToIntegralValue))
	register(roundingFunc("floor", math.Floor, (*apd.Context).Floor))
	register(roundingFunc("ceiling", math.Ceil, (*apd.Context).Ceil))
}
