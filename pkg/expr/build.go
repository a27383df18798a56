package expr

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-odata-query/pkg/literal"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

var (
	True  = &Constant{Value: true, T: schema.Of(schema.Bool)}
	False = &Constant{Value: false, T: schema.Of(schema.Bool)}
)

// NewParam returns a parameter bound to records of s.
func NewParam(name string, s *schema.Schema) *Param {
	return &Param{Name: name, Schema: s}
}

// ElementParam returns a lambda variable ranging over values of t.
func ElementParam(name string, t schema.Type) *Param {
	if t.Kind == schema.Object && t.Schema != nil {
		return &Param{Name: name, Schema: t.Schema}
	}
	return &Param{Name: name, T: t}
}

// Const wraps a Go value, inferring its type. It panics on values with no
// schema type; use ConstOf for explicit typing.
func Const(v any) *Constant {
	t, ok := literal.TypeOf(v)
	if !ok {
		panic(fmt.Sprintf("expr: no schema type for %T", v))
	}
	return &Constant{Value: v, T: t}
}

// ConstOf wraps v with an explicit type.
func ConstOf(v any, t schema.Type) *Constant {
	return &Constant{Value: v, T: t}
}

// Null returns the null constant of t.
func Null(t schema.Type) *Constant {
	return &Constant{T: t.WithNullable(true)}
}

// Captured returns a node that resolves fn each time the tree is written or
// evaluated.
func Captured(name string, t schema.Type, fn func() (any, error)) *Capture {
	return &Capture{Name: name, Value: fn, T: t}
}

// Field accesses the named field of target. target must be a Param or an
// object-typed member.
func Field(target Expr, name string) (*Member, error) {
	t := target.Type()
	if t.Kind != schema.Object || t.Schema == nil {
		return nil, typeErrorf(target.String()+"/"+name, "%s has no members", t)
	}
	f, ok := t.Schema.Field(name)
	if !ok {
		return nil, typeErrorf(name, "%s has no field %q", t.Schema.Name(), name)
	}
	return &Member{Target: target, Field: f}, nil
}

// Path accesses a '/'-separated member path.
func Path(target Expr, path string) (*Member, error) {
	var m *Member
	e := target
	for _, part := range strings.Split(path, "/") {
		next, err := Field(e, part)
		if err != nil {
			return nil, err
		}
		m, e = next, next
	}
	return m, nil
}

// MustPath is like Path but panics on error.
func MustPath(target Expr, path string) *Member {
	m, err := Path(target, path)
	if err != nil {
		panic(err)
	}
	return m
}

func isValue(e Expr) bool {
	switch e.(type) {
	case *Constant, *Capture:
		return true
	}
	return false
}

// retype converts a constant operand to t.
func retype(e Expr, t schema.Type) (Expr, error) {
	switch c := e.(type) {
	case *Constant:
		if c.Value == nil {
			return Null(t), nil
		}
		v, err := literal.Coerce(c.Value, t)
		if err != nil {
			return nil, typeErrorf(c.String(), "cannot use %s as %s", c.T, t)
		}
		return &Constant{Value: v, T: t.WithNullable(c.T.Nullable)}, nil
	case *Capture:
		inner := c.Value
		return &Capture{Name: c.Name, T: t.WithNullable(c.T.Nullable), Value: func() (any, error) {
			v, err := inner()
			if err != nil || v == nil {
				return v, err
			}
			return literal.Coerce(v, t)
		}}, nil
	}
	return e, nil
}

// unify resolves the operand types of a binary node. A constant side adopts
// the type of the other side when it can be converted; otherwise both sides
// widen per schema.Promote.
func unify(l, r Expr, fragment string) (Expr, Expr, schema.Type, error) {
	lt, rt := l.Type(), r.Type()
	if lt.Kind == schema.Invalid && rt.Kind == schema.Invalid {
		return l, r, lt, nil
	}
	if lt.Kind == schema.Invalid {
		nr, _ := retype(l, rt)
		return nr, r, rt.WithNullable(true), nil
	}
	if rt.Kind == schema.Invalid {
		nr, _ := retype(r, lt)
		return l, nr, lt.WithNullable(true), nil
	}
	if schema.Same(lt, rt) {
		return l, r, lt.WithNullable(lt.Nullable || rt.Nullable), nil
	}
	if isValue(r) && !isValue(l) {
		if adopted, ok := adopt(r, lt); ok {
			return l, adopted, lt.WithNullable(lt.Nullable || rt.Nullable), nil
		}
	}
	if isValue(l) && !isValue(r) {
		if adopted, ok := adopt(l, rt); ok {
			return adopted, r, rt.WithNullable(lt.Nullable || rt.Nullable), nil
		}
	}
	if t, ok := schema.Promote(lt, rt); ok {
		return l, r, t, nil
	}
	return nil, nil, schema.Type{}, typeErrorf(fragment, "operand types %s and %s do not match", lt, rt)
}

// adopt retypes a value operand to t when t is an enum, when an integral
// value meets any numeric type, or when t is at least as wide as the value's
// own type. An Int64 value is never narrowed to a smaller integral kind.
func adopt(v Expr, t schema.Type) (Expr, bool) {
	vt := v.Type()
	if t.Kind != schema.Enum && !(vt.Kind.IsIntegral() && t.IsNumeric() && !narrows(vt.Kind, t.Kind)) {
		p, ok := schema.Promote(vt, t)
		if !ok || p.Kind != t.Kind {
			return nil, false
		}
	}
	out, err := retype(v, t)
	if err != nil {
		return nil, false
	}
	return out, true
}

func narrows(from, to schema.Kind) bool {
	return from == schema.Int64 && to.IsIntegral() && to != schema.Int64
}

// Compare builds a comparison. Equality against a flags enum degrades to a
// bitwise test: (m & v) == v.
func Compare(op Op, l, r Expr) (Expr, error) {
	if !op.IsComparison() {
		return nil, typeErrorf(op.Token(), "%s is not a comparison", op.Token())
	}
	fragment := l.String() + " " + op.Token() + " " + r.String()
	l, r, t, err := unify(l, r, fragment)
	if err != nil {
		return nil, err
	}
	switch t.Kind {
	case schema.Object, schema.Collection:
		if op != Eq && op != Ne {
			return nil, typeErrorf(fragment, "%s values are not ordered", t)
		}
	}
	if op == Eq && t.IsFlags() {
		if isValue(r) && !isValue(l) {
			l = &Binary{Op: BitAnd, Left: l, Right: r, T: t}
		} else if isValue(l) && !isValue(r) {
			l, r = &Binary{Op: BitAnd, Left: r, Right: l, T: t}, l
		}
	}
	return &Binary{Op: op, Left: l, Right: r, T: schema.Of(schema.Bool)}, nil
}

// MustCompare is like Compare but panics on error.
func MustCompare(op Op, l, r Expr) Expr {
	e, err := Compare(op, l, r)
	if err != nil {
		panic(err)
	}
	return e
}

// Logical builds and/or over boolean operands. Integral or enum operands of
// "and" produce a bitwise And.
func Logical(op Op, l, r Expr) (Expr, error) {
	if !op.IsLogical() {
		return nil, typeErrorf(op.Token(), "%s is not a logical operator", op.Token())
	}
	lt, rt := l.Type(), r.Type()
	if op == And && lt.Kind != schema.Bool && rt.Kind != schema.Bool {
		return Bitwise(l, r)
	}
	fragment := l.String() + " " + op.Token() + " " + r.String()
	if lt.Kind != schema.Bool || rt.Kind != schema.Bool {
		return nil, typeErrorf(fragment, "%s requires boolean operands, got %s and %s", op.Token(), lt, rt)
	}
	return &Binary{Op: op, Left: l, Right: r, T: schema.Of(schema.Bool)}, nil
}

// AndAll joins predicates with and; no operands yields True.
func AndAll(es ...Expr) (Expr, error) {
	var out Expr
	for _, e := range es {
		if out == nil {
			out = e
			continue
		}
		var err error
		if out, err = Logical(And, out, e); err != nil {
			return nil, err
		}
	}
	if out == nil {
		return True, nil
	}
	return out, nil
}

// Bitwise builds m & v over enum or integral operands.
func Bitwise(l, r Expr) (Expr, error) {
	fragment := l.String() + " and " + r.String()
	l, r, t, err := unify(l, r, fragment)
	if err != nil {
		return nil, err
	}
	if t.Kind != schema.Enum && !t.Kind.IsIntegral() {
		return nil, typeErrorf(fragment, "bitwise and requires integral operands, got %s", t)
	}
	return &Binary{Op: BitAnd, Left: l, Right: r, T: t}, nil
}

// Arith builds an arithmetic node. Numeric operands widen per
// schema.Promote; a Time may be added to or subtracted from a date.
func Arith(op Op, l, r Expr) (Expr, error) {
	if !op.IsArithmetic() {
		return nil, typeErrorf(op.Token(), "%s is not arithmetic", op.Token())
	}
	fragment := l.String() + " " + op.Token() + " " + r.String()
	lt, rt := l.Type(), r.Type()
	if (op == Add || op == Sub) && isDate(lt.Kind) && rt.Kind == schema.Time {
		return &Binary{Op: op, Left: l, Right: r, T: lt.WithNullable(lt.Nullable || rt.Nullable)}, nil
	}
	if op == Add && lt.Kind == schema.Time && isDate(rt.Kind) {
		return &Binary{Op: op, Left: l, Right: r, T: rt.WithNullable(lt.Nullable || rt.Nullable)}, nil
	}
	l, r, t, err := unify(l, r, fragment)
	if err != nil {
		return nil, err
	}
	if !t.IsNumeric() && !((op == Add || op == Sub) && t.Kind == schema.Time) {
		return nil, typeErrorf(fragment, "%s requires numeric operands, got %s", op.Token(), t)
	}
	return &Binary{Op: op, Left: l, Right: r, T: t}, nil
}

func isDate(k schema.Kind) bool { return k == schema.DateTime || k == schema.DateTimeOffset }

// NotOf negates a boolean.
func NotOf(e Expr) (Expr, error) {
	if e.Type().Kind != schema.Bool {
		return nil, typeErrorf("not "+e.String(), "not requires a boolean operand, got %s", e.Type())
	}
	return &Unary{Op: Not, Operand: e, T: e.Type()}, nil
}

// Negate builds -e. Only numeric and enum operands can be negated; a
// numeric constant is folded.
func Negate(e Expr) (Expr, error) {
	t := e.Type()
	if !t.IsNumeric() && t.Kind != schema.Enum && t.Kind != schema.Time {
		return nil, typeErrorf("-"+e.String(), "cannot negate %s", t)
	}
	if c, ok := e.(*Constant); ok && c.Value != nil {
		v, err := negate(c.Value)
		if err == nil {
			return &Constant{Value: v, T: t}, nil
		}
	}
	return &Unary{Op: Neg, Operand: e, T: t}, nil
}

// Quantify builds source/any(v: body) or source/all(v: body). v must be
// bound to the collection's element schema.
func Quantify(q Quantifier, source Expr, v *Param, body Expr) (Expr, error) {
	st := source.Type()
	if st.Kind != schema.Collection {
		return nil, typeErrorf(source.String()+"/"+q.String(), "%s is not a collection", st)
	}
	if body == nil {
		if q == AllOf {
			return nil, typeErrorf(source.String()+"/all()", "all requires a predicate")
		}
		return &Lambda{Quantifier: q, Source: source}, nil
	}
	if body.Type().Kind != schema.Bool {
		return nil, typeErrorf(body.String(), "%s predicate must be boolean, got %s", q, body.Type())
	}
	return &Lambda{Quantifier: q, Source: source, Var: v, Body: body}, nil
}

// In tests whether value equals any of the listed values. An empty list is
// the constant False.
func In(value Expr, values ...Expr) (Expr, error) {
	if len(values) == 0 {
		return False, nil
	}
	args := []Expr{value}
	for _, v := range values {
		_, nv, _, err := unify(value, v, "in("+value.String()+", "+v.String()+")")
		if err != nil {
			return nil, err
		}
		args = append(args, nv)
	}
	return &Call{Name: "in", Args: args, T: schema.Of(schema.Bool), Fn: evalIn}, nil
}

func evalIn(args []any) (any, error) {
	for _, v := range args[1:] {
		if equal(args[0], v) {
			return true, nil
		}
	}
	return false, nil
}

// NewPredicate checks that body is boolean.
func NewPredicate(p *Param, body Expr) (Predicate, error) {
	if body.Type().Kind != schema.Bool {
		return Predicate{}, typeErrorf(body.String(), "predicate must be boolean, got %s", body.Type())
	}
	return Predicate{Param: p, Body: body}, nil
}

// Always returns the constant-true predicate over s.
func Always(s *schema.Schema) Predicate {
	return Predicate{Param: NewParam("x", s), Body: True}
}
