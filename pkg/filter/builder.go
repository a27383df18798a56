package filter

import (
	"errors"
	"strings"

	"github.com/robert-malhotra/go-odata-query/pkg/expr"
	"github.com/robert-malhotra/go-odata-query/pkg/literal"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// Option configures Build and BuildSelector.
type Option func(*builder)

// WithResolver sets how names in the filter text map to schema fields. The
// default is WireNames.
func WithResolver(r NameResolver) Option {
	return func(b *builder) {
		if r != nil {
			b.resolver = r
		}
	}
}

// WithParamName names the root parameter of the built tree. The default is
// "x".
func WithParamName(name string) Option {
	return func(b *builder) {
		if name != "" {
			b.paramName = name
		}
	}
}

// errNeedsType is returned for a bare literal built without an expected
// type. The caller resolves the other operand first and retries.
var errNeedsType = errors.New("literal needs a type")

var boolType = schema.Of(schema.Bool)

type builder struct {
	src       string
	resolver  NameResolver
	paramName string
	// scopes holds the root parameter followed by enclosing lambda variables.
	scopes []*expr.Param
}

func newBuilder(src string, s *schema.Schema, opts []Option) *builder {
	b := &builder{src: src, resolver: WireNames{}, paramName: "x"}
	for _, opt := range opts {
		opt(b)
	}
	b.scopes = []*expr.Param{expr.NewParam(b.paramName, s)}
	return b
}

func (b *builder) root() *expr.Param { return b.scopes[0] }

// Build parses an OData $filter expression into a predicate over records of
// s. An empty filter is the constant-true predicate.
func Build(filter string, s *schema.Schema, opts ...Option) (expr.Predicate, error) {
	b := newBuilder(filter, s, opts)
	if strings.TrimSpace(filter) == "" {
		return expr.Predicate{Param: b.root(), Body: expr.True}, nil
	}
	toks, err := b.tokens()
	if err != nil {
		return expr.Predicate{}, err
	}
	body, err := b.build(toks, &boolType)
	if err != nil {
		return expr.Predicate{}, err
	}
	p, err := expr.NewPredicate(b.root(), body)
	if err != nil {
		return expr.Predicate{}, withFragment(err, filter)
	}
	return p, nil
}

// BuildSelector parses a value expression, such as an $orderby key, into a
// selector over records of s.
func BuildSelector(text string, s *schema.Schema, opts ...Option) (expr.Selector, error) {
	b := newBuilder(text, s, opts)
	if strings.TrimSpace(text) == "" {
		return expr.Selector{}, grammarErrorf(text, "empty expression")
	}
	toks, err := b.tokens()
	if err != nil {
		return expr.Selector{}, err
	}
	body, err := b.build(toks, &schema.Type{})
	if err != nil {
		return expr.Selector{}, err
	}
	return expr.Selector{Param: b.root(), Body: body}, nil
}

func (b *builder) tokens() ([]token, error) {
	toks, err := tokenize(b.src)
	if err != nil {
		return nil, err
	}
	if err := checkBalance(b.src, toks); err != nil {
		return nil, err
	}
	return toks, nil
}

// build turns a token range into a node. want is the type a bare literal in
// the range is read as: nil defers the literal with errNeedsType, a zero
// Type infers it from its form.
func (b *builder) build(toks []token, want *schema.Type) (expr.Expr, error) {
	s, err := splitTokens(b.src, toks)
	if err != nil {
		return nil, err
	}
	fragment := span(b.src, toks)
	switch s.kind {
	case splitBinary:
		op, ok := expr.ParseOp(s.op.keyword())
		if !ok {
			return nil, grammarErrorf(fragment, "unknown operator %s", s.op.text)
		}
		hint := &schema.Type{}
		if op.IsArithmetic() && want != nil {
			hint = want
		}
		l, r, err := b.operands(s.left, s.right, hint)
		if err != nil {
			return nil, err
		}
		var e expr.Expr
		switch {
		case op.IsLogical():
			e, err = expr.Logical(op, l, r)
		case op.IsComparison():
			e, err = expr.Compare(op, l, r)
		default:
			e, err = expr.Arith(op, l, r)
		}
		return e, withFragment(err, fragment)

	case splitUnary:
		if s.op.kind == tokMinus {
			if len(s.right) == 1 && s.right[0].kind == tokNumber {
				n := s.right[0]
				return b.literal(token{kind: tokNumber, text: "-" + n.text, offset: s.op.offset}, want)
			}
			operand, err := b.build(s.right, want)
			if err != nil {
				return nil, err
			}
			e, err := expr.Negate(operand)
			return e, withFragment(err, fragment)
		}
		operand, err := b.build(s.right, &boolType)
		if err != nil {
			return nil, err
		}
		e, err := expr.NotOf(operand)
		return e, withFragment(err, fragment)
	}
	return b.leaf(s.left, want)
}

// operands builds both sides of a binary operator. A side that is a bare
// literal takes its type from the other side; when both are literals they
// are read with hint.
func (b *builder) operands(lt, rt []token, hint *schema.Type) (expr.Expr, expr.Expr, error) {
	l, err := b.build(lt, nil)
	if err == nil {
		t := l.Type()
		r, err := b.build(rt, &t)
		return l, r, err
	}
	if !errors.Is(err, errNeedsType) {
		return nil, nil, err
	}
	r, err := b.build(rt, nil)
	if errors.Is(err, errNeedsType) {
		if l, err = b.build(lt, hint); err != nil {
			return nil, nil, err
		}
		t := l.Type()
		if hint.Kind != schema.Invalid {
			t = *hint
		}
		r, err = b.build(rt, &t)
		return l, r, err
	}
	if err != nil {
		return nil, nil, err
	}
	t := r.Type()
	l, err = b.build(lt, &t)
	return l, r, err
}

// leaf resolves an operator-free range: a collection lambda, an in list, a
// member path, a function call, a literal or a bare boolean, in that order.
func (b *builder) leaf(toks []token, want *schema.Type) (expr.Expr, error) {
	fragment := span(b.src, toks)
	head := toks[0]
	call := head.kind == tokIdent && len(toks) >= 3 && wrapped(toks[1:])

	if call {
		if q, path, ok := quantifier(head.text); ok {
			return b.lambda(q, path, toks[2:len(toks)-1], fragment)
		}
		if head.keyword() == "in" {
			return b.in(toks[2:len(toks)-1], fragment)
		}
	}
	if len(toks) == 1 && head.kind == tokIdent {
		m, err := b.member(head.text)
		if err == nil {
			return m, nil
		}
		switch head.keyword() {
		case "true":
			return expr.True, nil
		case "false":
			return expr.False, nil
		case "null":
			return b.literal(head, want)
		}
		return nil, err
	}
	if call {
		return b.call(head, toks[2:len(toks)-1], fragment)
	}
	if len(toks) == 1 {
		switch head.kind {
		case tokNumber, tokString, tokTyped:
			return b.literal(head, want)
		}
	}
	return nil, grammarErrorf(fragment, "unexpected tokens")
}

// literal reads a literal token as want, falling back to the type implied by
// its form.
func (b *builder) literal(t token, want *schema.Type) (expr.Expr, error) {
	if want == nil {
		return nil, errNeedsType
	}
	if want.Kind != schema.Invalid {
		if v, err := literal.Read(t.text, *want); err == nil {
			if v == nil {
				return expr.Null(*want), nil
			}
			return expr.ConstOf(v, want.NonNull()), nil
		}
	}
	v, lt, err := literal.Infer(t.text)
	if err != nil {
		return nil, grammarErrorf(t.text, "invalid literal: %v", err)
	}
	return expr.ConstOf(v, lt), nil
}

// member resolves a '/'-separated member path. A leading lambda variable or
// $it picks the scope explicitly; otherwise the path is tried on the
// innermost scope first and then on each enclosing one.
func (b *builder) member(path string) (expr.Expr, error) {
	segs := strings.Split(path, "/")
	if segs[0] == "$it" {
		return b.walk(b.root(), segs[1:], path)
	}
	for i := len(b.scopes) - 1; i > 0; i-- {
		if b.scopes[i].Name == segs[0] {
			return b.walk(b.scopes[i], segs[1:], path)
		}
	}
	var err error
	for i := len(b.scopes) - 1; i >= 0; i-- {
		var e expr.Expr
		if e, err = b.walk(b.scopes[i], segs, path); err == nil {
			return e, nil
		}
	}
	return nil, err
}

func (b *builder) walk(target expr.Expr, segs []string, path string) (expr.Expr, error) {
	for _, seg := range segs {
		t := target.Type()
		if t.Kind != schema.Object || t.Schema == nil {
			return nil, typeErrorf(path, "%s has no members", t)
		}
		f, ok := b.resolver.ResolveAlias(t.Schema, seg)
		if !ok {
			return nil, typeErrorf(path, "%s has no field %q", t.Schema.Name(), seg)
		}
		target = &expr.Member{Target: target, Field: f}
	}
	return target, nil
}

// quantifier recognizes path/any and path/all.
func quantifier(name string) (expr.Quantifier, string, bool) {
	i := strings.LastIndexByte(name, '/')
	if i <= 0 {
		return 0, "", false
	}
	switch strings.ToLower(name[i+1:]) {
	case "any":
		return expr.AnyOf, name[:i], true
	case "all":
		return expr.AllOf, name[:i], true
	}
	return 0, "", false
}

func (b *builder) lambda(q expr.Quantifier, path string, body []token, fragment string) (expr.Expr, error) {
	source, err := b.member(path)
	if err != nil {
		return nil, err
	}
	elem, ok := source.Type().Element()
	if !ok {
		return nil, typeErrorf(fragment, "%s is not a collection", path)
	}
	if len(body) == 0 {
		e, err := expr.Quantify(q, source, nil, nil)
		return e, withFragment(err, fragment)
	}
	if len(body) < 3 || body[0].kind != tokIdent || !body[1].is(tokPunct, ":") {
		return nil, grammarErrorf(fragment, "%s requires a variable and a predicate", q)
	}
	v := expr.ElementParam(body[0].text, elem)
	b.scopes = append(b.scopes, v)
	pred, err := b.build(body[2:], &boolType)
	b.scopes = b.scopes[:len(b.scopes)-1]
	if err != nil {
		return nil, err
	}
	e, err := expr.Quantify(q, source, v, pred)
	return e, withFragment(err, fragment)
}

// in builds in(path, v1 v2 ...). Values are literals separated by spaces or
// commas, read as the type of the first argument.
func (b *builder) in(args []token, fragment string) (expr.Expr, error) {
	parts := splitArgs(args)
	if len(parts) == 0 || len(parts[0]) == 0 {
		return nil, grammarErrorf(fragment, "in requires a value")
	}
	value, err := b.build(parts[0], nil)
	if errors.Is(err, errNeedsType) {
		value, err = b.build(parts[0], &schema.Type{})
	}
	if err != nil {
		return nil, err
	}
	t := value.Type()
	var values []expr.Expr
	for _, part := range parts[1:] {
		for i := 0; i < len(part); i++ {
			tok := part[i]
			if tok.kind == tokMinus && i+1 < len(part) && part[i+1].kind == tokNumber {
				i++
				tok = token{kind: tokNumber, text: "-" + part[i].text, offset: tok.offset}
			}
			switch {
			case tok.kind == tokNumber || tok.kind == tokString || tok.kind == tokTyped:
			case tok.kind == tokIdent && (tok.keyword() == "null" || tok.keyword() == "true" || tok.keyword() == "false"):
			default:
				return nil, grammarErrorf(fragment, "in values must be literals, got %q", tok.text)
			}
			c, err := b.literal(tok, &t)
			if err != nil {
				return nil, err
			}
			values = append(values, c)
		}
	}
	e, err := expr.In(value, values...)
	return e, withFragment(err, fragment)
}

func (b *builder) call(head token, args []token, fragment string) (expr.Expr, error) {
	fn, ok := readFunction(head.text)
	if !ok {
		return nil, grammarErrorf(fragment, "unknown function %s", head.text)
	}
	parts := splitArgs(args)
	built := make([]expr.Expr, len(parts))
	for i, part := range parts {
		if len(part) == 0 {
			return nil, grammarErrorf(fragment, "empty argument %d", i+1)
		}
		a, err := b.build(part, nil)
		if errors.Is(err, errNeedsType) {
			a, err = b.build(part, &schema.Type{})
		}
		if err != nil {
			return nil, err
		}
		built[i] = a
	}
	if fn.swap && len(built) >= 2 {
		built[0], built[1] = built[1], built[0]
	}
	e, err := expr.NewCall(fn.builtin, built...)
	if err != nil {
		return nil, withFragment(err, fragment)
	}
	return e, nil
}

// splitArgs splits an argument list at top-level commas.
func splitArgs(toks []token) [][]token {
	if len(toks) == 0 {
		return nil
	}
	var parts [][]token
	depth, start := 0, 0
	for i, t := range toks {
		switch {
		case t.is(tokPunct, "("):
			depth++
		case t.is(tokPunct, ")"):
			depth--
		case t.is(tokPunct, ",") && depth == 0:
			parts = append(parts, toks[start:i])
			start = i + 1
		}
	}
	return append(parts, toks[start:])
}
