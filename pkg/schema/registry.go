package schema

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds named schemas and enums.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
	enums   map[string]*EnumType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*Schema),
		enums:   make(map[string]*EnumType),
	}
}

// Add registers s under its name, replacing any previous entry.
func (r *Registry) Add(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Name()] = s
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Enum returns the enum registered under name.
func (r *Registry) Enum(name string) (*EnumType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enums[name]
	return e, ok
}

// Names returns the registered schema names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	return names
}

type registryFile struct {
	Enums   []enumDoc   `yaml:"enums"`
	Schemas []schemaDoc `yaml:"schemas"`
}

type enumDoc struct {
	Name    string      `yaml:"name"`
	Flags   bool        `yaml:"flags"`
	Members []memberDoc `yaml:"members"`
}

type memberDoc struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

type schemaDoc struct {
	Name   string     `yaml:"name"`
	Fields []fieldDoc `yaml:"fields"`
}

type fieldDoc struct {
	Name     string `yaml:"name"`
	Wire     string `yaml:"wire"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	// Enum names the enum for type "enum".
	Enum string `yaml:"enum"`
	// Schema names the nested schema for type "object".
	Schema string `yaml:"schema"`
	// Elem is the element of a collection: a primitive type name or a
	// schema name.
	Elem string `yaml:"elem"`
}

// LoadFile reads a YAML registry document from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Load parses a YAML registry document. Schemas may reference each other
// (and themselves) regardless of declaration order.
func Load(data []byte) (*Registry, error) {
	var doc registryFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode schema registry: %w", err)
	}

	reg := NewRegistry()
	for _, e := range doc.Enums {
		et := &EnumType{Name: e.Name, Flags: e.Flags}
		for _, m := range e.Members {
			et.Members = append(et.Members, EnumMember{Name: m.Name, Value: m.Value})
		}
		reg.enums[e.Name] = et
	}
	// Declare every schema first so references resolve in one pass.
	for _, s := range doc.Schemas {
		if s.Name == "" {
			return nil, fmt.Errorf("schema without name")
		}
		reg.schemas[s.Name] = &Schema{name: s.Name}
	}
	for _, s := range doc.Schemas {
		fields := make([]Field, 0, len(s.Fields))
		for _, fd := range s.Fields {
			t, err := reg.resolveType(fd)
			if err != nil {
				return nil, fmt.Errorf("schema %s field %s: %w", s.Name, fd.Name, err)
			}
			fields = append(fields, Field{Name: fd.Name, WireName: fd.Wire, Type: t})
		}
		if err := reg.schemas[s.Name].setFields(fields); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) resolveType(fd fieldDoc) (Type, error) {
	k, err := ParseKind(fd.Type)
	if err != nil {
		return Type{}, err
	}
	t := Type{Kind: k, Nullable: fd.Nullable}
	switch k {
	case Enum:
		e, ok := r.enums[fd.Enum]
		if !ok {
			return Type{}, fmt.Errorf("unknown enum %q", fd.Enum)
		}
		t.Enum = e
	case Object:
		s, ok := r.schemas[fd.Schema]
		if !ok {
			return Type{}, fmt.Errorf("unknown schema %q", fd.Schema)
		}
		t.Schema = s
		t.Nullable = true
	case Collection:
		elem, err := r.resolveElem(fd.Elem)
		if err != nil {
			return Type{}, err
		}
		t.Elem = &elem
	}
	return t, nil
}

func (r *Registry) resolveElem(name string) (Type, error) {
	if s, ok := r.schemas[name]; ok {
		return ObjectOf(s), nil
	}
	if e, ok := r.enums[name]; ok {
		return EnumOf(e), nil
	}
	k, err := ParseKind(name)
	if err != nil {
		return Type{}, fmt.Errorf("unknown collection element %q", name)
	}
	if k == Object || k == Collection || k == Enum {
		return Type{}, fmt.Errorf("collection element %q needs a schema or enum name", name)
	}
	return Of(k), nil
}
