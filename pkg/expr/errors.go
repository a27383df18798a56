package expr

import (
	"errors"
	"fmt"
)

// ErrType matches every *TypeError with errors.Is.
var ErrType = errors.New("type error")

// TypeError reports operands whose types cannot be resolved against each
// other, an unsupported negation or an unresolvable member path.
type TypeError struct {
	Fragment string
	Msg      string
}

func (e *TypeError) Error() string {
	if e.Fragment == "" {
		return "type error: " + e.Msg
	}
	return fmt.Sprintf("type error at %q: %s", e.Fragment, e.Msg)
}

func (e *TypeError) Is(target error) bool { return target == ErrType }

func typeErrorf(fragment string, format string, args ...any) error {
	return &TypeError{Fragment: fragment, Msg: fmt.Sprintf(format, args...)}
}
