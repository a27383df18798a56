package filter

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// NameResolver maps schema fields to the names used in query text and back.
type NameResolver interface {
	ResolveName(f schema.Field) string
	ResolveAlias(s *schema.Schema, name string) (schema.Field, bool)
}

// WireNames writes each field's wire name and reads wire names, falling
// back to in-memory names.
type WireNames struct{}

func (WireNames) ResolveName(f schema.Field) string { return f.Wire() }

func (WireNames) ResolveAlias(s *schema.Schema, name string) (schema.Field, bool) {
	return s.FieldByWire(name)
}

// LowerCase writes lower-cased wire names and reads names regardless of
// case. The zero value folds case with language.Und rules.
type LowerCase struct {
	Tag language.Tag
}

func (r LowerCase) lower(s string) string {
	// Casers keep state, so each call gets its own.
	return cases.Lower(r.Tag).String(s)
}

func (r LowerCase) ResolveName(f schema.Field) string { return r.lower(f.Wire()) }

func (r LowerCase) ResolveAlias(s *schema.Schema, name string) (schema.Field, bool) {
	want := r.lower(name)
	for _, f := range s.Fields() {
		if r.lower(f.Wire()) == want {
			return f, true
		}
	}
	return s.FieldByWire(name)
}
