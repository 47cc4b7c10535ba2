// Package mapping builds the per-type field tables shared by the converter and
// the schema engine, and owns type names and record-level options.
package mapping

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/kailas-cloud/omhash/internal/codec"
)

// Registry caches entity tables, type names and entity options. It is safe
// for concurrent use; entries are written once and read many times.
type Registry struct {
	codecs *codec.Registry

	mu       sync.RWMutex
	entities map[reflect.Type]*Entity
	names    map[reflect.Type]string
	types    map[string]reflect.Type
	options  map[reflect.Type]EntityOptions
}

// builtinNames are the type hints of built-in scalars stored behind an
// interface.
var builtinNames = map[string]reflect.Type{
	"string":        reflect.TypeFor[string](),
	"bool":          reflect.TypeFor[bool](),
	"int":           reflect.TypeFor[int](),
	"int8":          reflect.TypeFor[int8](),
	"int16":         reflect.TypeFor[int16](),
	"int32":         reflect.TypeFor[int32](),
	"int64":         reflect.TypeFor[int64](),
	"uint":          reflect.TypeFor[uint](),
	"uint8":         reflect.TypeFor[uint8](),
	"uint16":        reflect.TypeFor[uint16](),
	"uint32":        reflect.TypeFor[uint32](),
	"uint64":        reflect.TypeFor[uint64](),
	"float32":       reflect.TypeFor[float32](),
	"float64":       reflect.TypeFor[float64](),
	"time.Time":     reflect.TypeFor[time.Time](),
	"time.Duration": reflect.TypeFor[time.Duration](),
}

// NewRegistry creates a registry classifying fields with codecs.
func NewRegistry(codecs *codec.Registry) *Registry {
	r := &Registry{
		codecs:   codecs,
		entities: make(map[reflect.Type]*Entity),
		names:    make(map[reflect.Type]string, len(builtinNames)),
		types:    make(map[string]reflect.Type, len(builtinNames)),
		options:  make(map[reflect.Type]EntityOptions),
	}
	for name, t := range builtinNames {
		r.names[t] = name
		r.types[name] = t
	}
	return r
}

// Codecs returns the codec registry used for classification.
func (r *Registry) Codecs() *codec.Registry {
	return r.codecs
}

// Entity returns the field table of a struct type (or pointer to one) and
// registers the type under its Go name if that name is free.
func (r *Registry) Entity(t reflect.Type) (*Entity, error) {
	t = deref(t)
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("mapping: %s is not a struct", t)
	}

	r.mu.RLock()
	e, ok := r.entities[t]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	e, err := buildEntity(t, r.codecs)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.entities[t]; ok {
		return cached, nil
	}
	r.entities[t] = e
	if _, named := r.names[t]; !named {
		if _, taken := r.types[t.Name()]; !taken && t.Name() != "" {
			r.names[t] = t.Name()
			r.types[t.Name()] = t
		}
	}
	return e, nil
}

// RegisterName stores t under name for type hints. A name may only be bound
// to one type.
func (r *Registry) RegisterName(name string, t reflect.Type) error {
	if name == "" {
		return fmt.Errorf("mapping: empty type name for %s", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if other, ok := r.types[name]; ok && other != t {
		return fmt.Errorf("mapping: type name %q already bound to %s", name, other)
	}
	if old, ok := r.names[t]; ok && old != name {
		delete(r.types, old)
	}
	r.names[t] = name
	r.types[name] = t
	return nil
}

// Name returns the registered name of t.
func (r *Registry) Name(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[t]
	return name, ok
}

// TypeByName returns the type registered under name.
func (r *Registry) TypeByName(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Configure sets the record-level options of t.
func (r *Registry) Configure(t reflect.Type, opts ...EntityOption) {
	t = deref(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.options[t]
	for _, opt := range opts {
		opt(&o)
	}
	r.options[t] = o
}

// Options returns the record-level options of t with defaults applied: the
// keyspace defaults to the type name and the index name to "<keyspace>Idx".
func (r *Registry) Options(t reflect.Type) EntityOptions {
	t = deref(t)
	r.mu.RLock()
	o := r.options[t]
	name, ok := r.names[t]
	r.mu.RUnlock()

	if o.Keyspace == "" {
		if !ok {
			name = t.Name()
		}
		o.Keyspace = name
	}
	if o.IndexName == "" {
		o.IndexName = o.Keyspace + "Idx"
	}
	return o
}

// Keyspace returns the keyspace of t.
func (r *Registry) Keyspace(t reflect.Type) string {
	return r.Options(t).Keyspace
}
