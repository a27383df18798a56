package filter

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-odata-query/pkg/expr"
)

// ErrGrammar matches every *GrammarError with errors.Is.
var ErrGrammar = errors.New("grammar error")

// ErrType matches type errors raised while building or writing a tree.
var ErrType = expr.ErrType

// TypeError is the error raised for operand type mismatches, unsupported
// negation and unresolvable member paths.
type TypeError = expr.TypeError

// GrammarError reports a malformed filter: an unterminated literal,
// unbalanced parentheses, a dangling operator or an unknown function.
type GrammarError struct {
	Fragment string
	Msg      string
}

func (e *GrammarError) Error() string {
	if e.Fragment == "" {
		return "grammar error: " + e.Msg
	}
	return fmt.Sprintf("grammar error at %q: %s", e.Fragment, e.Msg)
}

func (e *GrammarError) Is(target error) bool { return target == ErrGrammar }

func grammarErrorf(fragment, format string, args ...any) error {
	return &GrammarError{Fragment: fragment, Msg: fmt.Sprintf(format, args...)}
}

// withFragment points a type error at source text instead of the debug form
// of the subtree it was raised on.
func withFragment(err error, fragment string) error {
	var te *TypeError
	if errors.As(err, &te) {
		return &TypeError{Fragment: fragment, Msg: te.Msg}
	}
	return err
}

func typeErrorf(fragment, format string, args ...any) error {
	return &TypeError{Fragment: fragment, Msg: fmt.Sprintf(format, args...)}
}
