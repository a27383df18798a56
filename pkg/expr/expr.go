// Package expr is the in-memory predicate and selector tree that filters are
// built into and written from.
//
// Trees are immutable once built. Every node reports its resolved
// schema.Type; the constructors in this package unify operand types and fail
// with a *TypeError when they cannot. Trees can be evaluated locally against
// any schema.Getter with Eval.
package expr

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-odata-query/pkg/literal"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// Expr is a node of an expression tree.
type Expr interface {
	Type() schema.Type
	String() string
	node()
}

// Op is a unary or binary operator.
type Op uint8

const (
	OpInvalid Op = iota
	Eq
	Ne
	Gt
	Ge
	Lt
	Le
	And
	Or
	Add
	Sub
	Mul
	Div
	Mod
	// BitAnd is the bitwise and used for flags enum tests.
	BitAnd
	Not
	Neg
)

var opInfo = [...]struct {
	token, symbol string
	prec          int
}{
	OpInvalid: {"", "?", 0},
	Eq:        {"eq", "==", 3},
	Ne:        {"ne", "!=", 3},
	Gt:        {"gt", ">", 3},
	Ge:        {"ge", ">=", 3},
	Lt:        {"lt", "<", 3},
	Le:        {"le", "<=", 3},
	And:       {"and", "&&", 2},
	Or:        {"or", "||", 1},
	Add:       {"add", "+", 4},
	Sub:       {"sub", "-", 4},
	Mul:       {"mul", "*", 5},
	Div:       {"div", "/", 5},
	Mod:       {"mod", "%", 5},
	BitAnd:    {"and", "&", 2},
	Not:       {"not", "!", 6},
	Neg:       {"-", "-", 6},
}

// Token returns the query grammar keyword for op.
func (op Op) Token() string { return opInfo[op].token }

// String returns the symbol used in debug dumps.
func (op Op) String() string { return opInfo[op].symbol }

// Precedence orders binary operators from or (lowest) to mul/div/mod.
func (op Op) Precedence() int { return opInfo[op].prec }

func (op Op) IsComparison() bool { return op >= Eq && op <= Le }
func (op Op) IsLogical() bool    { return op == And || op == Or }
func (op Op) IsArithmetic() bool { return op >= Add && op <= Mod }

// ParseOp maps a binary grammar keyword to its operator. "and" maps to the
// logical And.
func ParseOp(token string) (Op, bool) {
	token = strings.ToLower(token)
	for op := Eq; op <= Mod; op++ {
		if opInfo[op].token == token {
			return op, true
		}
	}
	return OpInvalid, false
}

// Constant is a literal value of a known type.
type Constant struct {
	Value any
	T     schema.Type
}

func (c *Constant) Type() schema.Type { return c.T }
func (c *Constant) node()             {}

func (c *Constant) String() string {
	if s, err := literal.Write(c.Value, c.T); err == nil {
		return s
	}
	return fmt.Sprint(c.Value)
}

// Param is the bound variable of a predicate, selector or collection lambda.
// Params over records carry a Schema; params over primitive collection
// elements carry only T.
type Param struct {
	Name   string
	Schema *schema.Schema
	T      schema.Type
}

func (p *Param) Type() schema.Type {
	if p.Schema == nil {
		return p.T
	}
	return schema.ObjectOf(p.Schema).NonNull()
}

func (p *Param) String() string { return p.Name }
func (p *Param) node()          {}

// Member accesses a field of its target, which is a Param or another Member.
type Member struct {
	Target Expr
	Field  schema.Field
}

func (m *Member) Type() schema.Type { return m.Field.Type }
func (m *Member) String() string    { return m.Target.String() + "." + m.Field.Name }
func (m *Member) node()             {}

// Root returns the expression at the base of a member chain.
func (m *Member) Root() Expr {
	var e Expr = m
	for {
		mm, ok := e.(*Member)
		if !ok {
			return e
		}
		e = mm.Target
	}
}

// Path returns the field names of a member chain from the root outwards.
func (m *Member) Path() []schema.Field {
	var path []schema.Field
	var e Expr = m
	for {
		mm, ok := e.(*Member)
		if !ok {
			break
		}
		path = append(path, mm.Field)
		e = mm.Target
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Capture is a value captured from the calling program. Its value is
// resolved when the tree is written or evaluated, not when it is built.
type Capture struct {
	Name  string
	Value func() (any, error)
	T     schema.Type
}

func (c *Capture) Type() schema.Type { return c.T }
func (c *Capture) String() string    { return "$" + c.Name }
func (c *Capture) node()             {}

// Binary applies a comparison, logical, arithmetic or bitwise operator.
type Binary struct {
	Op          Op
	Left, Right Expr
	T           schema.Type
}

func (b *Binary) Type() schema.Type { return b.T }
func (b *Binary) node()             {}

func (b *Binary) String() string {
	return "(" + b.Left.String() + " " + b.Op.String() + " " + b.Right.String() + ")"
}

// Unary applies Not or Neg.
type Unary struct {
	Op      Op
	Operand Expr
	T       schema.Type
}

func (u *Unary) Type() schema.Type { return u.T }
func (u *Unary) String() string    { return u.Op.String() + u.Operand.String() }
func (u *Unary) node()             {}

// Call invokes a named function. Fn evaluates it over the argument values.
type Call struct {
	Name string
	Args []Expr
	T    schema.Type
	Fn   func(args []any) (any, error)
}

func (c *Call) Type() schema.Type { return c.T }
func (c *Call) node()             {}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Name + "(" + strings.Join(args, ", ") + ")"
}

// Quantifier distinguishes any from all.
type Quantifier uint8

const (
	AnyOf Quantifier = iota
	AllOf
)

func (q Quantifier) String() string {
	if q == AllOf {
		return "all"
	}
	return "any"
}

// Lambda tests the elements of a collection. A nil Body with AnyOf tests
// that the collection is non-empty.
type Lambda struct {
	Quantifier Quantifier
	Source     Expr
	Var        *Param
	Body       Expr
}

func (l *Lambda) Type() schema.Type { return schema.Of(schema.Bool) }
func (l *Lambda) node()             {}

func (l *Lambda) String() string {
	if l.Body == nil {
		return l.Source.String() + "." + l.Quantifier.String() + "()"
	}
	return l.Source.String() + "." + l.Quantifier.String() + "(" + l.Var.Name + " => " + l.Body.String() + ")"
}

// Predicate is a boolean lambda over one parameter.
type Predicate struct {
	Param *Param
	Body  Expr
}

func (p Predicate) String() string { return p.Param.Name + " => " + p.Body.String() }

// Selector is a lambda projecting a value from one parameter.
type Selector struct {
	Param *Param
	Body  Expr
}

func (s Selector) String() string { return s.Param.Name + " => " + s.Body.String() }

// Walk visits e and its children depth-first until fn returns false.
func Walk(e Expr, fn func(Expr) bool) bool {
	if e == nil {
		return true
	}
	if !fn(e) {
		return false
	}
	switch n := e.(type) {
	case *Member:
		return Walk(n.Target, fn)
	case *Binary:
		return Walk(n.Left, fn) && Walk(n.Right, fn)
	case *Unary:
		return Walk(n.Operand, fn)
	case *Call:
		for _, a := range n.Args {
			if !Walk(a, fn) {
				return false
			}
		}
	case *Lambda:
		return Walk(n.Source, fn) && Walk(n.Body, fn)
	}
	return true
}

// References reports whether e depends on any parameter.
func References(e Expr) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if _, ok := n.(*Param); ok {
			found = true
		}
		return !found
	})
	return found
}
