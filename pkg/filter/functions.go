package filter

import (
	"strings"

	"github.com/robert-malhotra/go-odata-query/pkg/expr"
)

// function maps a filter function name to an expr builtin. swap marks
// functions whose first two arguments are reversed relative to the builtin.
type function struct {
	name    string
	builtin string
	swap    bool
}

// substringof(needle, haystack) is the v3 spelling of contains.
var substringof = function{name: "substringof", builtin: "contains", swap: true}

// readFunction resolves a function named in filter text.
func readFunction(name string) (function, bool) {
	name = strings.ToLower(name)
	if name == substringof.name {
		return substringof, true
	}
	if _, ok := expr.LookupFunction(name); ok {
		return function{name: name, builtin: name}, true
	}
	return function{}, false
}

// writeFunction resolves the filter spelling of a builtin call. contains is
// written as substringof, which every v3 service understands.
func writeFunction(builtin string) (function, bool) {
	if builtin == substringof.builtin {
		return substringof, true
	}
	if _, ok := expr.LookupFunction(builtin); ok {
		return function{name: builtin, builtin: builtin}, true
	}
	return function{}, false
}
