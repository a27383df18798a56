package filter

import (
	"strings"

	"github.com/robert-malhotra/go-odata-query/pkg/expr"
	"github.com/robert-malhotra/go-odata-query/pkg/literal"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

type writer struct {
	root     *expr.Param
	resolver NameResolver
}

func newWriter(root *expr.Param, r NameResolver) *writer {
	if r == nil {
		r = WireNames{}
	}
	return &writer{root: root, resolver: r}
}

// Write renders a predicate as $filter text. Members of the predicate's
// parameter are written as '/'-joined names from r; values that do not
// depend on the parameter are evaluated and written as literals.
func Write(p expr.Predicate, r NameResolver) (string, error) {
	if p.Body == nil {
		return "", typeErrorf("", "predicate has no body")
	}
	return newWriter(p.Param, r).expr(p.Body)
}

// WriteSelector renders a selector as used by $orderby and $select. The body
// is usually a member path; computed keys such as "Age add Qty" are written
// as expressions. A body that does not depend on the parameter is an error.
func WriteSelector(s expr.Selector, r NameResolver) (string, error) {
	if s.Body == nil || !expr.References(s.Body) {
		return "", typeErrorf(s.String(), "selector must depend on %s", s.Param.Name)
	}
	if m, ok := s.Body.(*expr.Member); ok && m.Root() != s.Param {
		return "", typeErrorf(s.String(), "selector must be a member path of %s", s.Param.Name)
	}
	return newWriter(s.Param, r).expr(s.Body)
}

// SelectorPath returns the member path of a selector body as '/'-joined
// in-memory names, or false when the body is not a plain member path.
func SelectorPath(s expr.Selector) (string, bool) {
	m, ok := s.Body.(*expr.Member)
	if !ok || m.Root() != s.Param {
		return "", false
	}
	path := m.Path()
	names := make([]string, len(path))
	for i, f := range path {
		names[i] = f.Name
	}
	return strings.Join(names, "/"), true
}

func (w *writer) expr(e expr.Expr) (string, error) {
	switch n := e.(type) {
	case *expr.Constant:
		return literal.Write(n.Value, n.T)
	case *expr.Capture:
		return w.value(n)
	case *expr.Param:
		if n == w.root {
			return "$it", nil
		}
		return n.Name, nil
	case *expr.Member:
		p, ok := n.Root().(*expr.Param)
		if !ok {
			return w.value(n)
		}
		names := make([]string, 0, 4)
		if p != w.root {
			names = append(names, p.Name)
		}
		for _, f := range n.Path() {
			names = append(names, w.resolver.ResolveName(f))
		}
		return strings.Join(names, "/"), nil
	case *expr.Binary:
		return w.binary(n)
	case *expr.Unary:
		operand, err := w.expr(n.Operand)
		if err != nil {
			return "", err
		}
		if _, ok := n.Operand.(*expr.Binary); ok {
			operand = "(" + operand + ")"
		}
		if n.Op == expr.Not {
			return "not " + operand, nil
		}
		return "-" + operand, nil
	case *expr.Call:
		return w.call(n)
	case *expr.Lambda:
		source, err := w.expr(n.Source)
		if err != nil {
			return "", err
		}
		if n.Body == nil {
			return source + "/" + n.Quantifier.String() + "()", nil
		}
		body, err := w.expr(n.Body)
		if err != nil {
			return "", err
		}
		return source + "/" + n.Quantifier.String() + "(" + n.Var.Name + ": " + body + ")", nil
	}
	return "", typeErrorf(e.String(), "cannot write %T", e)
}

// value evaluates a parameter-free node and writes the result as a literal.
func (w *writer) value(e expr.Expr) (string, error) {
	v, err := expr.Eval(e, nil)
	if err != nil {
		return "", typeErrorf(e.String(), "evaluate: %v", err)
	}
	t := e.Type()
	if v == nil {
		return literal.Null, nil
	}
	if t.Kind == schema.Invalid {
		return literal.WriteValue(v)
	}
	c, err := literal.Coerce(v, t)
	if err != nil {
		return "", typeErrorf(e.String(), "%v", err)
	}
	return literal.Write(c, t)
}

func (w *writer) binary(n *expr.Binary) (string, error) {
	// (m and v) eq v is how flags equality is built; write it back as m eq v.
	if n.Op == expr.Eq {
		if inner, ok := n.Left.(*expr.Binary); ok && inner.Op == expr.BitAnd && inner.Right == n.Right {
			n = &expr.Binary{Op: expr.Eq, Left: inner.Left, Right: n.Right, T: n.T}
		}
	}
	l, err := w.operand(n.Left, n.Op, false)
	if err != nil {
		return "", err
	}
	r, err := w.operand(n.Right, n.Op, true)
	if err != nil {
		return "", err
	}
	return l + " " + n.Op.Token() + " " + r, nil
}

// operand parenthesizes a child of parent when it binds more loosely, when
// an and/or child sits under the other combinator, or when it sits on the
// right at equal precedence and the operators do not associate.
func (w *writer) operand(child expr.Expr, parent expr.Op, right bool) (string, error) {
	s, err := w.expr(child)
	if err != nil {
		return "", err
	}
	b, ok := child.(*expr.Binary)
	if !ok {
		return s, nil
	}
	cp, pp := b.Op.Precedence(), parent.Precedence()
	switch {
	case cp < pp,
		parent.IsLogical() && b.Op.IsLogical() && b.Op != parent,
		right && cp == pp && !(b.Op == parent && associative(parent)):
		return "(" + s + ")", nil
	}
	return s, nil
}

func associative(op expr.Op) bool {
	switch op {
	case expr.And, expr.Or, expr.Add, expr.Mul:
		return true
	}
	return false
}

func (w *writer) call(n *expr.Call) (string, error) {
	if n.Name == "in" {
		return w.in(n)
	}
	fn, ok := writeFunction(n.Name)
	if !ok {
		if expr.References(n) {
			return "", typeErrorf(n.String(), "%s has no filter form", n.Name)
		}
		return w.value(n)
	}
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		s, err := w.expr(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	if fn.swap && len(args) >= 2 {
		args[0], args[1] = args[1], args[0]
	}
	return fn.name + "(" + strings.Join(args, ", ") + ")", nil
}

func (w *writer) in(n *expr.Call) (string, error) {
	if len(n.Args) == 0 {
		return "", typeErrorf(n.String(), "in requires a value")
	}
	value, err := w.expr(n.Args[0])
	if err != nil {
		return "", err
	}
	vals := make([]string, 0, len(n.Args)-1)
	for _, a := range n.Args[1:] {
		s, err := w.expr(a)
		if err != nil {
			return "", err
		}
		vals = append(vals, s)
	}
	return "in(" + value + ", " + strings.Join(vals, " ") + ")", nil
}
