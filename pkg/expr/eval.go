package expr

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/robert-malhotra/go-odata-query/pkg/literal"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// Env binds parameters to the values they range over.
type Env map[*Param]any

// Match evaluates the predicate against v. A null result is false.
func (p Predicate) Match(v schema.Getter) (bool, error) {
	out, err := Eval(p.Body, Env{p.Param: v})
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

// Eval evaluates the selector against v.
func (s Selector) Eval(v schema.Getter) (any, error) {
	return Eval(s.Body, Env{s.Param: v})
}

// Eval evaluates e with null propagation: a null operand makes comparisons
// other than eq/ne false and arithmetic null.
func Eval(e Expr, env Env) (any, error) {
	switch n := e.(type) {
	case *Constant:
		return n.Value, nil
	case *Capture:
		return n.Value()
	case *Param:
		v, ok := env[n]
		if !ok {
			return nil, fmt.Errorf("unbound parameter %s", n.Name)
		}
		return v, nil
	case *Member:
		target, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		return get(target, n.Field.Name)
	case *Unary:
		v, err := Eval(n.Operand, env)
		if err != nil || v == nil {
			return nil, err
		}
		if n.Op == Not {
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("not: %T is not a bool", v)
			}
			return !b, nil
		}
		return negate(v)
	case *Binary:
		return evalBinary(n, env)
	case *Call:
		if n.Fn == nil {
			return nil, fmt.Errorf("%s has no implementation", n.Name)
		}
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			v, err := Eval(a, env)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		out, err := n.Fn(args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Name, err)
		}
		return out, nil
	case *Lambda:
		return evalLambda(n, env)
	}
	return nil, fmt.Errorf("cannot evaluate %T", e)
}

func get(target any, name string) (any, error) {
	switch t := target.(type) {
	case nil:
		return nil, nil
	case schema.Getter:
		v, _ := t.Get(name)
		return v, nil
	case map[string]any:
		return t[name], nil
	}
	return nil, fmt.Errorf("cannot access %s on %T", name, target)
}

func evalBinary(n *Binary, env Env) (any, error) {
	l, err := Eval(n.Left, env)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case And:
		if l == false {
			return false, nil
		}
	case Or:
		if l == true {
			return true, nil
		}
	}
	r, err := Eval(n.Right, env)
	if err != nil {
		return nil, err
	}
	switch {
	case n.Op.IsLogical():
		return logical(n.Op, l, r), nil
	case n.Op.IsComparison():
		return compareOp(n.Op, l, r)
	case n.Op == BitAnd:
		if l == nil || r == nil {
			return nil, nil
		}
		a, ok1 := literal.AsInt64(l)
		b, ok2 := literal.AsInt64(r)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("bitwise and on %T and %T", l, r)
		}
		return a & b, nil
	}
	return arith(n.Op, l, r)
}

// logical implements three-valued and/or once the short-circuit cases are
// ruled out.
func logical(op Op, l, r any) any {
	if op == And {
		if r == false {
			return false
		}
		if l == true && r == true {
			return true
		}
		return nil
	}
	if r == true {
		return true
	}
	if l == false && r == false {
		return false
	}
	return nil
}

func compareOp(op Op, l, r any) (any, error) {
	switch op {
	case Eq:
		return equal(l, r), nil
	case Ne:
		return !equal(l, r), nil
	}
	if l == nil || r == nil {
		return false, nil
	}
	c, ok := compare(l, r)
	if !ok {
		return nil, fmt.Errorf("cannot order %T and %T", l, r)
	}
	switch op {
	case Gt:
		return c > 0, nil
	case Ge:
		return c >= 0, nil
	case Lt:
		return c < 0, nil
	}
	return c <= 0, nil
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// CompareValues orders two values of compatible kinds, nulls first. Numbers
// of different Go types compare by value.
func CompareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		}
		return 1, true
	}
	return compare(a, b)
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
		return 0, false
	case bool:
		if y, ok := b.(bool); ok {
			return cmpBool(x, y), true
		}
		return 0, false
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
		return 0, false
	case time.Duration:
		if y, ok := b.(time.Duration); ok {
			return cmp.Compare(x, y), true
		}
		return 0, false
	case uuid.UUID:
		if y, ok := b.(uuid.UUID); ok {
			return bytes.Compare(x[:], y[:]), true
		}
		return 0, false
	case []byte:
		if y, ok := b.([]byte); ok {
			return bytes.Compare(x, y), true
		}
		return 0, false
	}
	if literal.IsNumber(a) && literal.IsNumber(b) {
		return compareNumbers(a, b)
	}
	return 0, false
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func isDecimal(v any) bool {
	switch v.(type) {
	case *apd.Decimal, apd.Decimal:
		return true
	}
	return false
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

func compareNumbers(a, b any) (int, bool) {
	switch {
	case isDecimal(a) || isDecimal(b):
		x, ok1 := literal.AsDecimal(a)
		y, ok2 := literal.AsDecimal(b)
		if !ok1 || !ok2 {
			return 0, false
		}
		return x.Cmp(y), true
	case isFloat(a) || isFloat(b):
		x, _ := literal.AsFloat64(a)
		y, _ := literal.AsFloat64(b)
		return cmp.Compare(x, y), true
	}
	x, ok1 := literal.AsInt64(a)
	y, ok2 := literal.AsInt64(b)
	if ok1 && ok2 {
		return cmp.Compare(x, y), true
	}
	fx, ok1 := literal.AsFloat64(a)
	fy, ok2 := literal.AsFloat64(b)
	return cmp.Compare(fx, fy), ok1 && ok2
}

var errDivideByZero = errors.New("division by zero")

func arith(op Op, l, r any) (any, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	if t, ok := l.(time.Time); ok {
		d, ok := r.(time.Duration)
		if !ok {
			return nil, fmt.Errorf("%s on time and %T", op.Token(), r)
		}
		if op == Sub {
			return t.Add(-d), nil
		}
		return t.Add(d), nil
	}
	if d, ok := l.(time.Duration); ok {
		switch y := r.(type) {
		case time.Time:
			return y.Add(d), nil
		case time.Duration:
			if op == Sub {
				return d - y, nil
			}
			return d + y, nil
		}
		return nil, fmt.Errorf("%s on duration and %T", op.Token(), r)
	}
	if !literal.IsNumber(l) || !literal.IsNumber(r) {
		return nil, fmt.Errorf("%s on %T and %T", op.Token(), l, r)
	}
	switch {
	case isDecimal(l) || isDecimal(r):
		return arithDecimal(op, l, r)
	case isFloat(l) || isFloat(r):
		x, _ := literal.AsFloat64(l)
		y, _ := literal.AsFloat64(r)
		switch op {
		case Add:
			return x + y, nil
		case Sub:
			return x - y, nil
		case Mul:
			return x * y, nil
		case Div:
			return x / y, nil
		}
		return math.Mod(x, y), nil
	}
	x, ok1 := literal.AsInt64(l)
	y, ok2 := literal.AsInt64(r)
	if !ok1 || !ok2 {
		return arithDecimal(op, l, r)
	}
	switch op {
	case Add:
		return x + y, nil
	case Sub:
		return x - y, nil
	case Mul:
		return x * y, nil
	}
	if y == 0 {
		return nil, errDivideByZero
	}
	if op == Div {
		return x / y, nil
	}
	return x % y, nil
}

func arithDecimal(op Op, l, r any) (any, error) {
	x, ok1 := literal.AsDecimal(l)
	y, ok2 := literal.AsDecimal(r)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%s on %T and %T", op.Token(), l, r)
	}
	out := new(apd.Decimal)
	ctx := literal.DecimalContext
	var err error
	switch op {
	case Add:
		_, err = ctx.Add(out, x, y)
	case Sub:
		_, err = ctx.Sub(out, x, y)
	case Mul:
		_, err = ctx.Mul(out, x, y)
	case Div:
		_, err = ctx.Quo(out, x, y)
	default:
		_, err = ctx.Rem(out, x, y)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func negate(v any) (any, error) {
	switch x := v.(type) {
	case time.Duration:
		return -x, nil
	case float32:
		return -x, nil
	case float64:
		return -x, nil
	case *apd.Decimal:
		return new(apd.Decimal).Neg(x), nil
	case apd.Decimal:
		return new(apd.Decimal).Neg(&x), nil
	case int8:
		return -x, nil
	case int16:
		return -x, nil
	case int32:
		return -x, nil
	case int64:
		return -x, nil
	case int:
		return -x, nil
	}
	if n, ok := literal.AsInt64(v); ok {
		return -n, nil
	}
	return nil, fmt.Errorf("cannot negate %T", v)
}

func evalLambda(n *Lambda, env Env) (any, error) {
	src, err := Eval(n.Source, env)
	if err != nil {
		return nil, err
	}
	items, err := elements(src)
	if err != nil {
		return nil, err
	}
	if n.Body == nil {
		return len(items) > 0, nil
	}
	inner := make(Env, len(env)+1)
	for k, v := range env {
		inner[k] = v
	}
	for _, item := range items {
		inner[n.Var] = item
		out, err := Eval(n.Body, inner)
		if err != nil {
			return nil, err
		}
		ok := out == true
		if n.Quantifier == AnyOf && ok {
			return true, nil
		}
		if n.Quantifier == AllOf && !ok {
			return false, nil
		}
	}
	return n.Quantifier == AllOf, nil
}

func elements(v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	case []*schema.Record:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%T is not a collection", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
