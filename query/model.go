package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-odata-query/pkg/expr"
	"github.com/robert-malhotra/go-odata-query/pkg/filter"
	"github.com/robert-malhotra/go-odata-query/pkg/projection"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// Model is a parsed set of system query options, as a server receives
// them.
type Model struct {
	Schema  *schema.Schema
	Filter  expr.Predicate
	OrderBy []SortDescription
	Select  *projection.Type
	Skip    *int
	Top     *int
	Expand  []string
}

// ParseParameters reads $filter, $orderby, $select, $skip, $top and
// $expand from values. Other keys are ignored. Selected fields are
// registered in cache, or projection.Default when cache is nil.
func ParseParameters(values url.Values, s *schema.Schema, cache *projection.Cache, opts ...filter.Option) (*Model, error) {
	if cache == nil {
		cache = projection.Default
	}
	m := &Model{Schema: s}

	pred, err := filter.Build(values.Get("$filter"), s, opts...)
	if err != nil {
		return nil, err
	}
	m.Filter = pred

	if m.OrderBy, err = ParseOrderBy(values.Get("$orderby"), s, opts...); err != nil {
		return nil, err
	}

	if sel := strings.TrimSpace(values.Get("$select")); sel != "" && sel != "*" {
		names, err := selectNames(sel, s, opts)
		if err != nil {
			return nil, err
		}
		if m.Select, err = cache.GetOrCreate(s, names); err != nil {
			return nil, err
		}
	}

	if m.Skip, err = parseCount(values, "$skip"); err != nil {
		return nil, err
	}
	if m.Top, err = parseCount(values, "$top"); err != nil {
		return nil, err
	}

	if exp := values.Get("$expand"); exp != "" {
		items, err := filter.SplitList(exp)
		if err != nil {
			return nil, err
		}
		pb := NewParameterBuilder("", s, nil)
		if err := pb.Expand(items...); err != nil {
			return nil, err
		}
		m.Expand = pb.expand
	}
	return m, nil
}

// selectNames maps $select items, written as the resolver writes them, to
// in-memory field names.
func selectNames(sel string, s *schema.Schema, opts []filter.Option) ([]string, error) {
	items, err := filter.SplitList(sel)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		sel, err := filter.BuildSelector(item, s, opts...)
		if err != nil {
			return nil, err
		}
		path, ok := filter.SelectorPath(sel)
		if !ok || strings.Contains(path, "/") {
			return nil, &filter.TypeError{Fragment: item, Msg: "$select items must be top-level properties"}
		}
		out[i] = path
	}
	return out, nil
}

func parseCount(values url.Values, key string) (*int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, &filter.GrammarError{Fragment: raw, Msg: fmt.Sprintf("invalid %s", key)}
	}
	return &n, nil
}

// Builder returns a ParameterBuilder holding the model's options, for
// re-emitting them against baseURI.
func (m *Model) Builder(baseURI string) *ParameterBuilder {
	return m.BuilderWith(baseURI, nil)
}

// BuilderWith is like Builder but writes names with r.
func (m *Model) BuilderWith(baseURI string, r filter.NameResolver) *ParameterBuilder {
	pb := NewParameterBuilder(baseURI, m.Schema, r)
	if m.Filter.Body != nil {
		pb.Where(m.Filter)
	}
	pb.OrderBy(m.OrderBy...)
	switch {
	case m.Select == nil:
	case m.Select.Source() == m.Schema:
		pb.selectType(m.Select)
	default:
		// Names come from a schema of the same shape.
		_ = pb.Select(m.Select.Schema().Names()...)
	}
	if m.Skip != nil {
		pb.Skip(*m.Skip)
	}
	if m.Top != nil {
		pb.Top(*m.Top)
	}
	pb.expand = append(pb.expand, m.Expand...)
	return pb
}

// Apply evaluates the model over records in memory: filter, then sort, then
// skip and top, then select.
func (m *Model) Apply(records []schema.Getter) ([]schema.Getter, error) {
	items := records
	var err error
	if m.Filter.Body != nil && !isAlwaysTrue(m.Filter) {
		if items, err = (opWhere{pred: m.Filter}).apply(items); err != nil {
			return nil, err
		}
	}
	if len(m.OrderBy) > 0 {
		if items, err = (opOrderBy{keys: m.OrderBy}).apply(items); err != nil {
			return nil, err
		}
	}
	if m.Skip != nil {
		items, _ = opSkip{n: *m.Skip}.apply(items)
	}
	if m.Top != nil {
		items, _ = opTake{n: *m.Top}.apply(items)
	}
	if m.Select != nil {
		items, _ = opSelect{typ: m.Select}.apply(items)
	}
	return items, nil
}
