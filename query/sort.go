package query

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/robert-malhotra/go-odata-query/pkg/expr"
	"github.com/robert-malhotra/go-odata-query/pkg/filter"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// Direction is a sort order.
type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// SortDescription is one $orderby key. In a list the first entry is the
// primary key.
type SortDescription struct {
	Key       expr.Selector
	Direction Direction
}

// Asc sorts by key in ascending order.
func Asc(key expr.Selector) SortDescription { return SortDescription{Key: key} }

// Desc sorts by key in descending order.
func Desc(key expr.Selector) SortDescription {
	return SortDescription{Key: key, Direction: Descending}
}

// By returns a selector for a '/'-separated member path of s.
func By(s *schema.Schema, path string) (expr.Selector, error) {
	x := expr.NewParam("x", s)
	m, err := expr.Path(x, path)
	if err != nil {
		return expr.Selector{}, err
	}
	return expr.Selector{Param: x, Body: m}, nil
}

// MustBy is like By but panics on error.
func MustBy(s *schema.Schema, path string) expr.Selector {
	sel, err := By(s, path)
	if err != nil {
		panic(err)
	}
	return sel
}

// ParseOrderBy parses an $orderby value such as "Age desc,UserName".
func ParseOrderBy(text string, s *schema.Schema, opts ...filter.Option) ([]SortDescription, error) {
	items, err := filter.SplitList(text)
	if err != nil {
		return nil, err
	}
	out := make([]SortDescription, 0, len(items))
	for _, item := range items {
		key, dir := item, Ascending
		if i := strings.LastIndexAny(item, " \t"); i > 0 {
			switch strings.ToLower(item[i+1:]) {
			case "desc":
				key, dir = strings.TrimSpace(item[:i]), Descending
			case "asc":
				key = strings.TrimSpace(item[:i])
			}
		}
		sel, err := filter.BuildSelector(key, s, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, SortDescription{Key: sel, Direction: dir})
	}
	return out, nil
}

// WriteOrderBy renders sort keys as an $orderby value.
func WriteOrderBy(keys []SortDescription, r filter.NameResolver) (string, error) {
	parts := make([]string, len(keys))
	for i, k := range keys {
		s, err := filter.WriteSelector(k.Key, r)
		if err != nil {
			return "", err
		}
		if k.Direction == Descending {
			s += " desc"
		}
		parts[i] = s
	}
	return strings.Join(parts, ","), nil
}

// SortRecords sorts items in place by keys. The sort is stable, so ties keep
// their input order. Nulls sort first in ascending order.
func SortRecords[T schema.Getter](items []T, keys []SortDescription) error {
	if len(keys) == 0 || len(items) < 2 {
		return nil
	}
	type row struct {
		item T
		vals []any
	}
	rows := make([]row, len(items))
	for i, it := range items {
		vals := make([]any, len(keys))
		for k, key := range keys {
			v, err := key.Key.Eval(it)
			if err != nil {
				return fmt.Errorf("query: sort key %s: %w", key.Key, err)
			}
			vals[k] = v
		}
		rows[i] = row{item: it, vals: vals}
	}

	var sortErr error
	slices.SortStableFunc(rows, func(a, b row) bool {
		for k, key := range keys {
			c, ok := expr.CompareValues(a.vals[k], b.vals[k])
			if !ok {
				if sortErr == nil {
					sortErr = fmt.Errorf("query: sort key %s: cannot compare %T and %T", key.Key, a.vals[k], b.vals[k])
				}
				return false
			}
			if c == 0 {
				continue
			}
			if key.Direction == Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if sortErr != nil {
		return sortErr
	}
	for i, r := range rows {
		items[i] = r.item
	}
	return nil
}
