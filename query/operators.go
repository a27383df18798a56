package query

import (
	"github.com/robert-malhotra/go-odata-query/pkg/expr"
	"github.com/robert-malhotra/go-odata-query/pkg/projection"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// op is one recorded query operator. fold merges it into the request being
// assembled and reports false when it has to run locally instead; apply
// runs it over fetched items.
type op interface {
	fold(pb *ParameterBuilder, st *foldState) bool
	apply(items []schema.Getter) ([]schema.Getter, error)
}

// foldState tracks what the request already does, so that operators whose
// meaning would change on the server are kept local.
type foldState struct {
	paged    bool
	taken    bool
	selected *projection.Type
}

type opWhere struct {
	pred expr.Predicate
}

func (o opWhere) fold(pb *ParameterBuilder, st *foldState) bool {
	if st.paged || st.selected != nil {
		return false
	}
	pb.Where(o.pred)
	return true
}

func (o opWhere) apply(items []schema.Getter) ([]schema.Getter, error) {
	out := items[:0:0]
	for _, it := range items {
		ok, err := o.pred.Match(it)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// opOrderBy carries the complete key list; then marks a ThenBy, whose keys
// extend those of the preceding OrderBy.
type opOrderBy struct {
	keys []SortDescription
	then bool
}

func (o opOrderBy) fold(pb *ParameterBuilder, st *foldState) bool {
	if st.paged || st.selected != nil {
		return false
	}
	pb.OrderBy(o.keys...)
	return true
}

func (o opOrderBy) apply(items []schema.Getter) ([]schema.Getter, error) {
	out := append([]schema.Getter(nil), items...)
	if err := SortRecords(out, o.keys); err != nil {
		return nil, err
	}
	return out, nil
}

type opSkip struct{ n int }

// The server applies $skip before $top, so a Skip after a Take runs locally.
func (o opSkip) fold(pb *ParameterBuilder, st *foldState) bool {
	if st.taken {
		return false
	}
	pb.Skip(o.n)
	st.paged = true
	return true
}

func (o opSkip) apply(items []schema.Getter) ([]schema.Getter, error) {
	n := max(o.n, 0)
	if n >= len(items) {
		return nil, nil
	}
	return items[n:], nil
}

type opTake struct{ n int }

func (o opTake) fold(pb *ParameterBuilder, st *foldState) bool {
	pb.Top(o.n)
	st.paged = true
	st.taken = true
	return true
}

func (o opTake) apply(items []schema.Getter) ([]schema.Getter, error) {
	n := max(o.n, 0)
	if n >= len(items) {
		return items, nil
	}
	return items[:n], nil
}

// opExpand only shapes the response, so it folds wherever it appears.
type opExpand struct{ paths []string }

func (o opExpand) fold(pb *ParameterBuilder, _ *foldState) bool {
	return pb.Expand(o.paths...) == nil
}

func (o opExpand) apply(items []schema.Getter) ([]schema.Getter, error) {
	return items, nil
}

type opSelect struct{ typ *projection.Type }

func (o opSelect) fold(pb *ParameterBuilder, st *foldState) bool {
	if st.selected != nil || pb.Schema() != o.typ.Source() {
		return false
	}
	pb.selectType(o.typ)
	st.selected = o.typ
	return true
}

func (o opSelect) apply(items []schema.Getter) ([]schema.Getter, error) {
	out := make([]schema.Getter, len(items))
	for i, it := range items {
		out[i] = o.typ.Project(it)
	}
	return out, nil
}

// opLocal is an arbitrary Go predicate. It never folds.
type opLocal struct {
	keep func(schema.Getter) (bool, error)
}

func (o opLocal) fold(*ParameterBuilder, *foldState) bool { return false }

func (o opLocal) apply(items []schema.Getter) ([]schema.Getter, error) {
	out := items[:0:0]
	for _, it := range items {
		ok, err := o.keep(it)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}
