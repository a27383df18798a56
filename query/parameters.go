package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-odata-query/pkg/expr"
	"github.com/robert-malhotra/go-odata-query/pkg/filter"
	"github.com/robert-malhotra/go-odata-query/pkg/projection"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// ParameterBuilder accumulates the system query options of one request
// against a base URI and assembles them with GetFullURI.
type ParameterBuilder struct {
	baseURI  string
	schema   *schema.Schema
	resolver filter.NameResolver

	filters []expr.Predicate
	orderBy []SortDescription
	selects []projection.Field
	skip    *int
	top     *int
	expand  []string
}

// NewParameterBuilder returns an empty builder. A nil resolver writes wire
// names.
func NewParameterBuilder(baseURI string, s *schema.Schema, r filter.NameResolver) *ParameterBuilder {
	if r == nil {
		r = filter.WireNames{}
	}
	return &ParameterBuilder{baseURI: baseURI, schema: s, resolver: r}
}

// Schema returns the source schema.
func (p *ParameterBuilder) Schema() *schema.Schema { return p.schema }

// Where adds a predicate; multiple predicates are joined with and.
func (p *ParameterBuilder) Where(pred expr.Predicate) *ParameterBuilder {
	if isAlwaysTrue(pred) {
		return p
	}
	p.filters = append(p.filters, pred)
	return p
}

// OrderBy replaces the sort keys.
func (p *ParameterBuilder) OrderBy(keys ...SortDescription) *ParameterBuilder {
	p.orderBy = append([]SortDescription(nil), keys...)
	return p
}

// ThenBy appends secondary sort keys.
func (p *ParameterBuilder) ThenBy(keys ...SortDescription) *ParameterBuilder {
	p.orderBy = append(p.orderBy, keys...)
	return p
}

// Select adds fields to $select. Names are matched as schema.Schema.Field
// does and written in alphabetical order of their in-memory names.
func (p *ParameterBuilder) Select(names ...string) error {
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		f, ok := p.schema.Field(n)
		if !ok {
			return &filter.TypeError{Fragment: n, Msg: fmt.Sprintf("%s has no field %q", p.schema.Name(), n)}
		}
		p.addSelect(projection.Resolve(f, p.resolver))
	}
	return nil
}

// selectType adds the fields of a projection of the builder's schema.
func (p *ParameterBuilder) selectType(typ *projection.Type) {
	for _, f := range typ.Fields(p.resolver) {
		p.addSelect(f)
	}
}

func (p *ParameterBuilder) addSelect(f projection.Field) {
	i := 0
	for ; i < len(p.selects); i++ {
		if p.selects[i].Source.Name == f.Source.Name {
			return
		}
		if p.selects[i].Source.Name > f.Source.Name {
			break
		}
	}
	p.selects = append(p.selects, projection.Field{})
	copy(p.selects[i+1:], p.selects[i:])
	p.selects[i] = f
}

// Skip sets $skip. The last call wins.
func (p *ParameterBuilder) Skip(n int) *ParameterBuilder {
	p.skip = &n
	return p
}

// Top sets $top. The last call wins.
func (p *ParameterBuilder) Top(n int) *ParameterBuilder {
	p.top = &n
	return p
}

// Expand adds navigation paths to $expand, keeping the first occurrence of
// each.
func (p *ParameterBuilder) Expand(paths ...string) error {
	for _, path := range paths {
		path = strings.Trim(strings.TrimSpace(path), "/")
		if path == "" {
			continue
		}
		wire, err := p.navigation(path)
		if err != nil {
			return err
		}
		if !contains(p.expand, wire) {
			p.expand = append(p.expand, wire)
		}
	}
	return nil
}

// navigation resolves an $expand path to its written form. Each segment
// must be an object or a collection of objects.
func (p *ParameterBuilder) navigation(path string) (string, error) {
	s := p.schema
	segs := strings.Split(path, "/")
	out := make([]string, len(segs))
	for i, seg := range segs {
		if s == nil {
			return "", &filter.TypeError{Fragment: path, Msg: "cannot expand through a primitive value"}
		}
		f, ok := p.resolver.ResolveAlias(s, seg)
		if !ok {
			return "", &filter.TypeError{Fragment: path, Msg: fmt.Sprintf("%s has no field %q", s.Name(), seg)}
		}
		out[i] = p.resolver.ResolveName(f)
		t := f.Type
		if elem, ok := t.Element(); ok {
			t = elem
		}
		if t.Kind != schema.Object {
			return "", &filter.TypeError{Fragment: path, Msg: fmt.Sprintf("%s is not a navigation property", f.Name)}
		}
		s = t.Schema
	}
	return strings.Join(out, "/"), nil
}

// Filter returns the $filter value, or "" when there is none.
func (p *ParameterBuilder) Filter() (string, error) {
	switch len(p.filters) {
	case 0:
		return "", nil
	case 1:
		return filter.Write(p.filters[0], p.resolver)
	}
	parts := make([]string, len(p.filters))
	for i, f := range p.filters {
		s, err := filter.Write(f, p.resolver)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + s + ")"
	}
	return strings.Join(parts, " and "), nil
}

// Parameter is one name/value query option.
type Parameter struct {
	Name  string
	Value string
}

// Parameters returns the query options in their canonical order: filter,
// select, skip, top, orderby, expand. Absent options are omitted.
func (p *ParameterBuilder) Parameters() ([]Parameter, error) {
	var out []Parameter
	f, err := p.Filter()
	if err != nil {
		return nil, err
	}
	if f != "" {
		out = append(out, Parameter{"$filter", f})
	}
	if len(p.selects) > 0 {
		names := make([]string, len(p.selects))
		for i, s := range p.selects {
			names[i] = s.ResolvedName
		}
		out = append(out, Parameter{"$select", strings.Join(names, ",")})
	}
	if p.skip != nil {
		out = append(out, Parameter{"$skip", strconv.Itoa(*p.skip)})
	}
	if p.top != nil {
		out = append(out, Parameter{"$top", strconv.Itoa(*p.top)})
	}
	if len(p.orderBy) > 0 {
		o, err := WriteOrderBy(p.orderBy, p.resolver)
		if err != nil {
			return nil, err
		}
		out = append(out, Parameter{"$orderby", o})
	}
	if len(p.expand) > 0 {
		out = append(out, Parameter{"$expand", strings.Join(p.expand, ",")})
	}
	return out, nil
}

// GetFullURI returns the base URI with the query options appended.
func (p *ParameterBuilder) GetFullURI() (string, error) {
	opts, err := p.Parameters()
	if err != nil {
		return "", err
	}
	if len(opts) == 0 {
		return p.baseURI, nil
	}
	var b strings.Builder
	b.WriteString(p.baseURI)
	sep := byte('?')
	if strings.Contains(p.baseURI, "?") {
		sep = '&'
	}
	for _, o := range opts {
		b.WriteByte(sep)
		b.WriteString(o.Name)
		b.WriteByte('=')
		b.WriteString(EscapeValue(o.Value))
		sep = '&'
	}
	return b.String(), nil
}

// EscapeValue percent-encodes a query option value. Spaces become %20 and
// the URI delimiters &, =, #, ?, + and % are escaped; the punctuation of the
// filter grammar is left readable.
func EscapeValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if keep(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0xf])
	}
	return b.String()
}

const hexDigits = "0123456789ABCDEF"

func keep(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', '\'', '(', ')', '*', ',', ':', '/', '$', '@', '!', ';':
		return true
	}
	return false
}

func isAlwaysTrue(p expr.Predicate) bool {
	c, ok := p.Body.(*expr.Constant)
	if !ok {
		return false
	}
	b, _ := c.Value.(bool)
	return b
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
