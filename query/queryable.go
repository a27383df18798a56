// Package query composes OData requests lazily. A Query records operators
// and only talks to the transport when it is enumerated or a terminal
// operator runs. Operators the request cannot express are evaluated locally
// over the fetched items.
package query

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/robert-malhotra/go-odata-query/pkg/expr"
	"github.com/robert-malhotra/go-odata-query/pkg/filter"
	"github.com/robert-malhotra/go-odata-query/pkg/literal"
	"github.com/robert-malhotra/go-odata-query/pkg/projection"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

var (
	// ErrNoElements is returned by First, Single and Last on an empty result.
	ErrNoElements = errors.New("query: sequence contains no elements")
	// ErrMultipleElements is returned by Single when more than one item matches.
	ErrMultipleElements = errors.New("query: sequence contains more than one element")
)

// Transport sends one request and returns the response body.
type Transport interface {
	Send(ctx context.Context, method, uri string, body []byte) ([]byte, error)
}

// Deserializer converts response bodies into items.
type Deserializer[T any] interface {
	One(data []byte) (T, error)
	Many(data []byte) ([]T, error)
}

// Pager is implemented by deserializers that understand server-driven
// paging. NextLink returns "" on the last page.
type Pager interface {
	NextLink(data []byte) string
}

// Logger is the minimal logging interface used by queries.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Option configures a query source.
type Option func(*settings)

type settings struct {
	resolver    filter.NameResolver
	logger      Logger
	cache       *projection.Cache
	followPages bool
}

// WithResolver sets how member names are written. The default writes wire
// names.
func WithResolver(r filter.NameResolver) Option {
	return func(s *settings) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithLogger registers a logger for request and fallback events.
func WithLogger(l Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithCache sets the projection cache used by Select. The default is
// projection.Default.
func WithCache(c *projection.Cache) Option {
	return func(s *settings) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithFollowNextLinks makes enumeration follow server-driven paging links
// when the deserializer implements Pager.
func WithFollowNextLinks() Option {
	return func(s *settings) { s.followPages = true }
}

// source is the untyped provider behind a chain of queries.
type source struct {
	transport Transport
	baseURI   string
	schema    *schema.Schema
	settings  settings
	one       func([]byte) (schema.Getter, error)
	many      func([]byte) ([]schema.Getter, error)
	next      func([]byte) string
}

func (s *source) debugf(format string, args ...any) {
	if s.settings.logger != nil {
		s.settings.logger.Debugf(format, args...)
	}
}

// Query is a lazy, immutable chain of operators over a remote collection of
// T. Every operator returns a new Query; the receiver is unchanged.
type Query[T schema.Getter] struct {
	src    *source
	schema *schema.Schema
	ops    []op
	sorted []SortDescription
	err    error
}

// New returns a query over the collection at baseURI whose items are
// records of s.
func New[T schema.Getter](t Transport, d Deserializer[T], baseURI string, s *schema.Schema, opts ...Option) *Query[T] {
	st := settings{resolver: filter.WireNames{}, cache: projection.Default}
	for _, opt := range opts {
		opt(&st)
	}
	src := &source{
		transport: t,
		baseURI:   baseURI,
		schema:    s,
		settings:  st,
		one: func(data []byte) (schema.Getter, error) {
			return d.One(data)
		},
		many: func(data []byte) ([]schema.Getter, error) {
			items, err := d.Many(data)
			if err != nil {
				return nil, err
			}
			out := make([]schema.Getter, len(items))
			for i, it := range items {
				out[i] = it
			}
			return out, nil
		},
	}
	if p, ok := any(d).(Pager); ok {
		src.next = p.NextLink
	}
	q := &Query[T]{src: src, schema: s}
	if t == nil || s == nil {
		q.err = errors.New("query: transport and schema are required")
	}
	return q
}

// Schema returns the schema of the items the query yields. After Select it
// is the synthesized projection schema.
func (q *Query[T]) Schema() *schema.Schema { return q.schema }

// Err returns the first error recorded while composing the query.
func (q *Query[T]) Err() error { return q.err }

func (q *Query[T]) with(o op) *Query[T] {
	out := *q
	out.ops = append(q.ops[:len(q.ops):len(q.ops)], o)
	return &out
}

func (q *Query[T]) fail(err error) *Query[T] {
	out := *q
	if out.err == nil {
		out.err = err
	}
	return &out
}

// Where keeps items matching pred. pred must range over Schema().
func (q *Query[T]) Where(pred expr.Predicate) *Query[T] {
	if pred.Param == nil || pred.Param.Schema != q.schema {
		return q.fail(fmt.Errorf("query: predicate %s does not range over %s", pred, q.schema))
	}
	return q.with(opWhere{pred: pred})
}

// WhereText parses a $filter expression over Schema() and keeps matching
// items.
func (q *Query[T]) WhereText(text string) *Query[T] {
	pred, err := filter.Build(text, q.schema, filter.WithResolver(q.src.settings.resolver))
	if err != nil {
		return q.fail(err)
	}
	return q.Where(pred)
}

// Filter keeps items for which keep returns true. It is always evaluated
// locally.
func (q *Query[T]) Filter(keep func(T) bool) *Query[T] {
	return q.with(opLocal{keep: func(g schema.Getter) (bool, error) {
		v, ok := g.(T)
		if !ok {
			return false, fmt.Errorf("query: unexpected item %T", g)
		}
		return keep(v), nil
	}})
}

// OrderBy sorts by key, replacing earlier sort keys.
func (q *Query[T]) OrderBy(key expr.Selector) *Query[T] {
	return q.orderBy(SortDescription{Key: key}, false)
}

// OrderByDescending sorts by key in descending order, replacing earlier
// sort keys.
func (q *Query[T]) OrderByDescending(key expr.Selector) *Query[T] {
	return q.orderBy(SortDescription{Key: key, Direction: Descending}, false)
}

// ThenBy adds a secondary ascending key to the preceding OrderBy.
func (q *Query[T]) ThenBy(key expr.Selector) *Query[T] {
	return q.orderBy(SortDescription{Key: key}, true)
}

// ThenByDescending adds a secondary descending key to the preceding OrderBy.
func (q *Query[T]) ThenByDescending(key expr.Selector) *Query[T] {
	return q.orderBy(SortDescription{Key: key, Direction: Descending}, true)
}

func (q *Query[T]) orderBy(d SortDescription, then bool) *Query[T] {
	if d.Key.Param == nil || d.Key.Param.Schema != q.schema {
		return q.fail(fmt.Errorf("query: sort key %s does not range over %s", d.Key, q.schema))
	}
	var keys []SortDescription
	if then {
		if len(q.sorted) == 0 {
			return q.fail(errors.New("query: ThenBy requires a preceding OrderBy"))
		}
		keys = append(keys, q.sorted...)
	}
	keys = append(keys, d)
	out := q.with(opOrderBy{keys: keys, then: then})
	out.sorted = keys
	return out
}

// OrderByText parses an $orderby value over Schema() and sorts by it.
func (q *Query[T]) OrderByText(text string) *Query[T] {
	keys, err := ParseOrderBy(text, q.schema, filter.WithResolver(q.src.settings.resolver))
	if err != nil {
		return q.fail(err)
	}
	if len(keys) == 0 {
		return q
	}
	out := q.with(opOrderBy{keys: keys})
	out.sorted = keys
	return out
}

// Skip bypasses the first n items. Repeated calls replace each other.
func (q *Query[T]) Skip(n int) *Query[T] { return q.with(opSkip{n: n}) }

// Take limits the result to n items. Repeated calls replace each other.
func (q *Query[T]) Take(n int) *Query[T] { return q.with(opTake{n: n}) }

// Expand asks the server to inline the given navigation paths.
func (q *Query[T]) Expand(paths ...string) *Query[T] {
	if err := NewParameterBuilder("", q.schema, q.src.settings.resolver).Expand(paths...); err != nil {
		return q.fail(err)
	}
	return q.with(opExpand{paths: paths})
}

// Select projects the items of q onto fields. The result yields records of
// a synthesized schema shared by every query selecting the same fields.
func Select[T schema.Getter](q *Query[T], fields ...string) *Query[*schema.Record] {
	out := &Query[*schema.Record]{src: q.src, schema: q.schema, ops: q.ops, err: q.err}
	if out.err != nil {
		return out
	}
	typ, err := q.src.settings.cache.GetOrCreate(q.schema, fields)
	if err != nil {
		out.err = fmt.Errorf("query: select: %w", err)
		return out
	}
	out = out.with(opSelect{typ: typ})
	out.schema = typ.Schema()
	return out
}

// plan folds the longest possible prefix of operators into one request and
// returns the operators left to run locally.
func (q *Query[T]) plan() (*ParameterBuilder, []op, *foldState) {
	pb := NewParameterBuilder(q.src.baseURI, q.src.schema, q.src.settings.resolver)
	st := &foldState{}
	for i, o := range q.ops {
		if o.fold(pb, st) {
			continue
		}
		local := q.ops[i:]
		for _, rest := range local {
			if e, ok := rest.(opExpand); ok {
				e.fold(pb, st)
			}
		}
		return pb, local, st
	}
	return pb, nil, st
}

// URI returns the request the query would send when enumerated.
func (q *Query[T]) URI() (string, error) {
	if q.err != nil {
		return "", q.err
	}
	pb, _, _ := q.plan()
	return pb.GetFullURI()
}

func (q *Query[T]) execute(ctx context.Context, top int) ([]T, error) {
	if q.err != nil {
		return nil, q.err
	}
	pb, local, st := q.plan()
	if top > 0 && len(local) == 0 && (pb.top == nil || *pb.top > top) {
		pb.Top(top)
	}
	uri, err := pb.GetFullURI()
	if err != nil {
		return nil, err
	}
	if len(local) > 0 {
		q.src.debugf("query: %d operator(s) run locally after %s", len(local), uri)
	}
	var items []schema.Getter
	for p := range q.src.pages(ctx, uri) {
		if p.err != nil {
			return nil, p.err
		}
		items = append(items, p.items...)
	}
	items = projectFolded(items, st)
	for _, o := range local {
		if items, err = o.apply(items); err != nil {
			return nil, err
		}
	}
	return cast[T](items)
}

type page struct {
	items []schema.Getter
	err   error
}

// pages fetches uri and, when enabled, the pages its next links point at.
func (s *source) pages(ctx context.Context, uri string) iter.Seq[page] {
	return func(yield func(page) bool) {
		for uri != "" {
			s.debugf("query: GET %s", uri)
			data, err := s.transport.Send(ctx, http.MethodGet, uri, nil)
			if err != nil {
				yield(page{err: err})
				return
			}
			items, err := s.many(data)
			if err != nil {
				yield(page{err: fmt.Errorf("query: deserialize: %w", err)})
				return
			}
			if !yield(page{items: items}) {
				return
			}
			uri = ""
			if s.settings.followPages && s.next != nil {
				uri = s.next(data)
			}
		}
	}
}

// projectFolded applies a folded Select to fetched source records.
func projectFolded(items []schema.Getter, st *foldState) []schema.Getter {
	if st.selected == nil {
		return items
	}
	out, _ := opSelect{typ: st.selected}.apply(items)
	return out
}

func cast[T schema.Getter](items []schema.Getter) ([]T, error) {
	out := make([]T, len(items))
	for i, it := range items {
		v, ok := it.(T)
		if !ok {
			return nil, fmt.Errorf("query: unexpected item %T", it)
		}
		out[i] = v
	}
	return out, nil
}

// All executes the query and returns every item.
func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	return q.execute(ctx, 0)
}

// Iter executes the query and yields its items. When every operator folds
// into the request, pages are yielded as they arrive.
func (q *Query[T]) Iter(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if q.err != nil {
			yield(zero, q.err)
			return
		}
		pb, local, st := q.plan()
		if len(local) > 0 {
			items, err := q.execute(ctx, 0)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, it := range items {
				if !yield(it, nil) {
					return
				}
			}
			return
		}
		uri, err := pb.GetFullURI()
		if err != nil {
			yield(zero, err)
			return
		}
		for p := range q.src.pages(ctx, uri) {
			if p.err != nil {
				yield(zero, p.err)
				return
			}
			items, err := cast[T](projectFolded(p.items, st))
			if err != nil {
				yield(zero, err)
				return
			}
			for _, it := range items {
				if !yield(it, nil) {
					return
				}
			}
		}
	}
}

// First returns the first item, or ErrNoElements.
func (q *Query[T]) First(ctx context.Context) (T, error) {
	var zero T
	items, err := q.execute(ctx, 1)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, ErrNoElements
	}
	return items[0], nil
}

// FirstOrDefault is like First but returns the zero value, and no error,
// when nothing matches or the collection is not found.
func (q *Query[T]) FirstOrDefault(ctx context.Context) (T, error) {
	v, err := q.First(ctx)
	return orDefault(v, err)
}

// Single returns the only item, or ErrNoElements or ErrMultipleElements.
func (q *Query[T]) Single(ctx context.Context) (T, error) {
	var zero T
	items, err := q.execute(ctx, 2)
	if err != nil {
		return zero, err
	}
	switch len(items) {
	case 0:
		return zero, ErrNoElements
	case 1:
		return items[0], nil
	}
	return zero, ErrMultipleElements
}

// SingleOrDefault is like Single but an empty or missing result yields the
// zero value. More than one item is still an error.
func (q *Query[T]) SingleOrDefault(ctx context.Context) (T, error) {
	v, err := q.Single(ctx)
	return orDefault(v, err)
}

// Last returns the final item, or ErrNoElements.
func (q *Query[T]) Last(ctx context.Context) (T, error) {
	var zero T
	items, err := q.execute(ctx, 0)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, ErrNoElements
	}
	return items[len(items)-1], nil
}

// LastOrDefault is like Last but an empty or missing result yields the
// zero value.
func (q *Query[T]) LastOrDefault(ctx context.Context) (T, error) {
	v, err := q.Last(ctx)
	return orDefault(v, err)
}

// Count returns the number of items.
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	items, err := q.execute(ctx, 0)
	return len(items), err
}

// LongCount is Count as an int64.
func (q *Query[T]) LongCount(ctx context.Context) (int64, error) {
	n, err := q.Count(ctx)
	return int64(n), err
}

// Any reports whether the query yields at least one item.
func (q *Query[T]) Any(ctx context.Context) (bool, error) {
	items, err := q.execute(ctx, 1)
	return len(items) > 0, err
}

// Find fetches the entity with the given key from the base collection,
// ignoring any recorded operators other than Expand.
func (q *Query[T]) Find(ctx context.Context, key any) (T, error) {
	var zero T
	if q.err != nil {
		return zero, q.err
	}
	t, ok := literal.TypeOf(key)
	if !ok {
		return zero, fmt.Errorf("query: unsupported key %T", key)
	}
	k, err := literal.Write(key, t)
	if err != nil {
		return zero, err
	}
	pb, _, _ := q.plan()
	entity := NewParameterBuilder(q.src.baseURI+"("+EscapeValue(k)+")", q.src.schema, q.src.settings.resolver)
	entity.expand = pb.expand
	uri, err := entity.GetFullURI()
	if err != nil {
		return zero, err
	}
	q.src.debugf("query: GET %s", uri)
	data, err := q.src.transport.Send(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return zero, err
	}
	g, err := q.src.one(data)
	if err != nil {
		return zero, fmt.Errorf("query: deserialize: %w", err)
	}
	v, ok := g.(T)
	if !ok {
		return zero, fmt.Errorf("query: unexpected item %T", g)
	}
	return v, nil
}

// FindOrDefault is like Find but a missing entity yields the zero value.
func (q *Query[T]) FindOrDefault(ctx context.Context, key any) (T, error) {
	v, err := q.Find(ctx, key)
	if IsNotFound(err) {
		var zero T
		return zero, nil
	}
	return v, err
}

// IsNotFound reports whether err, or an error it wraps, has a NotFound
// method returning true.
func IsNotFound(err error) bool {
	var nf interface{ NotFound() bool }
	return errors.As(err, &nf) && nf.NotFound()
}

func orDefault[T any](v T, err error) (T, error) {
	if errors.Is(err, ErrNoElements) || IsNotFound(err) {
		var zero T
		return zero, nil
	}
	return v, err
}
