// Package projection synthesizes minimal record shapes for field subsets of
// a schema and caches them for the lifetime of the process.
//
// A projection type is itself a *schema.Schema, so records of it decode and
// filter like any other record.
package projection

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dchest/siphash"

	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

// ErrNoFields is returned when a projection names no fields.
var ErrNoFields = errors.New("projection: no fields")

// Field is one member of a projection: the source field it copies and the
// name it is requested by on the wire.
type Field struct {
	Source       schema.Field
	ResolvedName string
}

// NameResolver writes the query-text name of a field.
type NameResolver interface {
	ResolveName(f schema.Field) string
}

// Type is a synthesized projection of a source schema.
type Type struct {
	source *schema.Schema
	schema *schema.Schema
	fields []schema.Field
	key    string
}

// Source returns the schema the projection was taken from.
func (t *Type) Source() *schema.Schema { return t.source }

// Schema returns the synthesized schema.
func (t *Type) Schema() *schema.Schema { return t.schema }

// Fields returns the projected fields in canonical order, with names
// resolved by r. A nil r resolves wire names.
func (t *Type) Fields(r NameResolver) []Field {
	out := make([]Field, len(t.fields))
	for i, f := range t.fields {
		out[i] = Resolve(f, r)
	}
	return out
}

// Key returns the canonical comma separated field list.
func (t *Type) Key() string { return t.key }

// WireNames returns the names resolved by r in canonical order, as used by
// $select.
func (t *Type) WireNames(r NameResolver) []string {
	out := make([]string, len(t.fields))
	for i, f := range t.Fields(r) {
		out[i] = f.ResolvedName
	}
	return out
}

// Resolve pairs f with its name under r, or its wire name when r is nil.
func Resolve(f schema.Field, r NameResolver) Field {
	if r == nil {
		return Field{Source: f, ResolvedName: f.Wire()}
	}
	return Field{Source: f, ResolvedName: r.ResolveName(f)}
}

// Project copies the projected fields of v into a new record. Fields v does
// not hold are left unset.
func (t *Type) Project(v schema.Getter) *schema.Record {
	out := schema.NewRecord(t.schema)
	for _, f := range t.fields {
		if x, ok := v.Get(f.Name); ok {
			out.MustSet(f.Name, x)
		}
	}
	return out
}

// Normalize de-duplicates and sorts field names so that requests naming the
// same fields in any order share one key.
func Normalize(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

const shardCount = 16

// Shard selection keys.
const (
	k0 = 0x6b1f0e3ad4c2a871
	k1 = 0x1f83d9abfb41bd6b
)

type cacheKey struct {
	source *schema.Schema
	names  string
}

type shard struct {
	mu    sync.RWMutex
	types map[cacheKey]*Type
}

// Cache holds synthesized projection types keyed by source schema identity
// and the sorted field names. It is safe for concurrent use.
type Cache struct {
	shards [shardCount]shard
}

// Default is the process-wide cache.
var Default = NewCache()

// NewCache returns an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i].types = make(map[cacheKey]*Type)
	}
	return c
}

func (c *Cache) shard(k cacheKey) *shard {
	h := siphash.Hash(k0, k1, []byte(k.source.Name()+"\x00"+k.names))
	return &c.shards[h%shardCount]
}

// GetOrCreate returns the projection of source onto fields, synthesizing it
// on first use. Field names are matched as schema.Schema.Field does; order
// and duplicates do not matter. Concurrent first calls for one key all
// receive the same *Type.
func (c *Cache) GetOrCreate(source *schema.Schema, fields []string) (*Type, error) {
	if source == nil {
		return nil, errors.New("projection: nil source schema")
	}
	resolved := make([]schema.Field, 0, len(fields))
	for _, n := range Normalize(fields) {
		f, ok := source.Field(n)
		if !ok {
			return nil, fmt.Errorf("projection: %s has no field %q", source.Name(), n)
		}
		resolved = append(resolved, f)
	}
	if len(resolved) == 0 {
		return nil, ErrNoFields
	}
	// Case-insensitive matches may collapse names; key on the real ones.
	names := make([]string, len(resolved))
	for i, f := range resolved {
		names[i] = f.Name
	}
	names = Normalize(names)
	k := cacheKey{source: source, names: strings.Join(names, ",")}

	sh := c.shard(k)
	sh.mu.RLock()
	t, ok := sh.types[k]
	sh.mu.RUnlock()
	if ok {
		return t, nil
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if t, ok := sh.types[k]; ok {
		return t, nil
	}
	t, err := synthesize(source, names, k.names)
	if err != nil {
		return nil, err
	}
	sh.types[k] = t
	return t, nil
}

// Len returns the number of cached types.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.RLock()
		n += len(sh.types)
		sh.mu.RUnlock()
	}
	return n
}

func synthesize(source *schema.Schema, names []string, key string) (*Type, error) {
	fields := make([]schema.Field, len(names))
	sfields := make([]schema.Field, len(names))
	for i, n := range names {
		f, _ := source.Field(n)
		fields[i] = f
		sfields[i] = schema.Field{Name: f.Name, WireName: f.WireName, Type: f.Type}
	}
	s, err := schema.New(source.Name()+"{"+key+"}", sfields...)
	if err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}
	return &Type{source: source, schema: s, fields: fields, key: key}, nil
}
