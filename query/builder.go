package query

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/robert-malhotra/go-odata-query/pkg/expr"
	"github.com/robert-malhotra/go-odata-query/pkg/literal"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// Condition is a boolean clause produced by a PropertyExpression. A failed
// clause carries its error until the builder that consumes it is finished.
type Condition struct {
	expr expr.Expr
	err  error
}

// Expr returns the clause's expression and any construction error.
func (c Condition) Expr() (expr.Expr, error) { return c.expr, c.err }

// Builder accumulates predicate clauses over one schema in a fluent manner.
type Builder struct {
	param *expr.Param
	expr  expr.Expr
	err   error
	// depth counts the enclosing collection lambdas.
	depth int
}

// NewBuilder returns an empty Builder over records of s.
func NewBuilder(s *schema.Schema) *Builder {
	return &Builder{param: expr.NewParam("x", s)}
}

// Param returns the parameter the built predicate ranges over.
func (b *Builder) Param() *expr.Param { return b.param }

// Where sets the expression if none exists or ANDs it with the current expression.
func (b *Builder) Where(c Condition) *Builder {
	return b.combine(expr.And, c)
}

// And adds multiple conditions combined with logical AND.
func (b *Builder) And(cs ...Condition) *Builder {
	return b.combine(expr.And, cs...)
}

// Or combines the current expression with the provided ones using logical OR.
func (b *Builder) Or(cs ...Condition) *Builder {
	return b.combine(expr.Or, cs...)
}

func (b *Builder) combine(op expr.Op, cs ...Condition) *Builder {
	for _, c := range cs {
		if b.err != nil {
			return b
		}
		if c.err != nil {
			b.err = c.err
			return b
		}
		if c.expr == nil {
			continue
		}
		if b.expr == nil {
			b.expr = c.expr
			continue
		}
		e, err := expr.Logical(op, b.expr, c.expr)
		if err != nil {
			b.err = err
			return b
		}
		b.expr = e
	}
	return b
}

// Not negates the current expression.
func (b *Builder) Not() *Builder {
	if b.expr == nil || b.err != nil {
		return b
	}
	e, err := expr.NotOf(b.expr)
	if err != nil {
		b.err = err
		return b
	}
	b.expr = e
	return b
}

// Predicate returns the built predicate, or the first error met while
// building it. An empty builder yields the constant-true predicate.
func (b *Builder) Predicate() (expr.Predicate, error) {
	if b.err != nil {
		return expr.Predicate{}, b.err
	}
	if b.expr == nil {
		return expr.Predicate{Param: b.param, Body: expr.True}, nil
	}
	return expr.NewPredicate(b.param, b.expr)
}

// Must returns the built predicate or panics if building failed.
func (b *Builder) Must() expr.Predicate {
	p, err := b.Predicate()
	if err != nil {
		panic(fmt.Errorf("query builder: %w", err))
	}
	return p
}

// Condition returns the built expression as a clause, for use inside a
// collection lambda or another builder.
func (b *Builder) Condition() Condition {
	if b.err != nil {
		return Condition{err: b.err}
	}
	if b.expr == nil {
		return Condition{expr: expr.True}
	}
	return Condition{expr: b.expr}
}

// Property resolves a '/'-separated member path on the builder's parameter.
func (b *Builder) Property(path string) PropertyExpression {
	m, err := expr.Path(b.param, path)
	if err != nil {
		return PropertyExpression{err: err}
	}
	return PropertyExpression{value: m, depth: b.depth}
}

// It refers to the parameter itself, as needed for collections of
// primitive values inside Any or All.
func (b *Builder) It() PropertyExpression {
	return PropertyExpression{value: b.param, depth: b.depth}
}

// PropertyExpression exposes fluent helpers for comparisons.
type PropertyExpression struct {
	value expr.Expr
	err   error
	depth int
}

// Expr returns the underlying expression.
func (p PropertyExpression) Expr() (expr.Expr, error) { return p.value, p.err }

// Eq creates an equality predicate. Nil values compare against null.
func (p PropertyExpression) Eq(value any) Condition { return p.compare(expr.Eq, value) }

// Neq creates an inequality predicate.
func (p PropertyExpression) Neq(value any) Condition { return p.compare(expr.Ne, value) }

// Lt creates a less-than predicate.
func (p PropertyExpression) Lt(value any) Condition { return p.compare(expr.Lt, value) }

// Lte creates a less-than-or-equal predicate.
func (p PropertyExpression) Lte(value any) Condition { return p.compare(expr.Le, value) }

// Gt creates a greater-than predicate.
func (p PropertyExpression) Gt(value any) Condition { return p.compare(expr.Gt, value) }

// Gte creates a greater-than-or-equal predicate.
func (p PropertyExpression) Gte(value any) Condition { return p.compare(expr.Ge, value) }

// IsNull creates an equality test against null.
func (p PropertyExpression) IsNull() Condition { return p.compare(expr.Eq, nil) }

// IsNotNull creates an inequality test against null.
func (p PropertyExpression) IsNotNull() Condition { return p.compare(expr.Ne, nil) }

func (p PropertyExpression) compare(op expr.Op, value any) Condition {
	if p.err != nil {
		return Condition{err: p.err}
	}
	v, err := toValue(value, p.value.Type())
	if err != nil {
		return Condition{err: err}
	}
	e, err := expr.Compare(op, p.value, v)
	return Condition{expr: e, err: err}
}

// Contains tests whether the string property contains s.
func (p PropertyExpression) Contains(s string) Condition { return p.call("contains", s) }

// StartsWith tests the string property's prefix.
func (p PropertyExpression) StartsWith(s string) Condition { return p.call("startswith", s) }

// EndsWith tests the string property's suffix.
func (p PropertyExpression) EndsWith(s string) Condition { return p.call("endswith", s) }

func (p PropertyExpression) call(name string, s string) Condition {
	if p.err != nil {
		return Condition{err: p.err}
	}
	c, err := expr.NewCall(name, p.value, expr.ConstOf(s, schema.Of(schema.String)))
	if err != nil {
		return Condition{err: err}
	}
	return Condition{expr: c}
}

// In creates a set membership predicate. A single slice argument is
// expanded; an empty list is always false.
func (p PropertyExpression) In(values ...any) Condition {
	if p.err != nil {
		return Condition{err: p.err}
	}
	if len(values) == 1 {
		if slice, ok := maybeSlice(values[0]); ok {
			values = slice
		}
	}
	list := make([]expr.Expr, 0, len(values))
	for _, v := range values {
		e, err := toValue(v, p.value.Type())
		if err != nil {
			return Condition{err: err}
		}
		list = append(list, e)
	}
	e, err := expr.In(p.value, list...)
	return Condition{expr: e, err: err}
}

// Between constrains the property between the provided bounds (inclusive).
// Time bounds are normalized so that a zero bound collapses onto the other.
func (p PropertyExpression) Between(low, high any) Condition {
	if lt, ok := low.(time.Time); ok {
		if ht, ok := high.(time.Time); ok {
			low, high = normalizeTimes(lt, ht)
		}
	}
	lo := p.Gte(low)
	hi := p.Lte(high)
	if lo.err != nil {
		return lo
	}
	if hi.err != nil {
		return hi
	}
	e, err := expr.Logical(expr.And, lo.expr, hi.expr)
	return Condition{expr: e, err: err}
}

// Any tests whether some element of the collection property satisfies the
// condition built by fn. A nil fn tests that the collection is not empty.
func (p PropertyExpression) Any(fn func(*Builder) *Builder) Condition {
	return p.quantify(expr.AnyOf, fn)
}

// All tests whether every element of the collection property satisfies the
// condition built by fn.
func (p PropertyExpression) All(fn func(*Builder) *Builder) Condition {
	return p.quantify(expr.AllOf, fn)
}

func (p PropertyExpression) quantify(q expr.Quantifier, fn func(*Builder) *Builder) Condition {
	if p.err != nil {
		return Condition{err: p.err}
	}
	if fn == nil {
		e, err := expr.Quantify(q, p.value, nil, nil)
		return Condition{expr: e, err: err}
	}
	elem, ok := p.value.Type().Element()
	if !ok {
		return Condition{err: fmt.Errorf("query builder: %s is not a collection", p.value)}
	}
	inner := &Builder{param: expr.ElementParam(lambdaVar(p.depth+1), elem), depth: p.depth + 1}
	c := fn(inner).Condition()
	if c.err != nil {
		return c
	}
	e, err := expr.Quantify(q, p.value, inner.param, c.expr)
	return Condition{expr: e, err: err}
}

// toValue converts a Go value into an operand of type t. Expressions and
// properties pass through; nil becomes the null of t.
func toValue(value any, t schema.Type) (expr.Expr, error) {
	switch v := value.(type) {
	case nil:
		return expr.Null(t), nil
	case expr.Expr:
		return v, nil
	case PropertyExpression:
		return v.value, v.err
	}
	if t.Kind != schema.Invalid && t.Kind != schema.Object && t.Kind != schema.Collection {
		if c, err := literal.Coerce(value, t.NonNull()); err == nil {
			return expr.ConstOf(c, t.NonNull()), nil
		}
	}
	vt, ok := literal.TypeOf(value)
	if !ok {
		return nil, fmt.Errorf("query builder: unsupported value %T", value)
	}
	return expr.ConstOf(value, vt), nil
}

// lambdaVar names the element variable of a lambda nested depth levels
// deep: y, y1, y2 and so on, so inner bodies can still name outer elements.
func lambdaVar(depth int) string {
	if depth <= 1 {
		return "y"
	}
	return "y" + strconv.Itoa(depth-1)
}

func normalizeTimes(start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = start
	}
	if start.IsZero() {
		start = end
	}
	if end.Before(start) {
		start, end = end, start
	}
	return start.UTC(), end.UTC()
}

func maybeSlice(value any) ([]any, bool) {
	if _, ok := value.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	length := rv.Len()
	out := make([]any, 0, length)
	for i := 0; i < length; i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out, true
}
