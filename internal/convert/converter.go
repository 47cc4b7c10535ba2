// Package convert flattens records into buckets and reads them back.
//
// Write and Read walk the same mapping tables, so paths, type hints, tag
// joining and map-key escaping agree in both directions. PartialUpdate turns
// sparse changes into an UpdatePlan executed by the store in one round-trip.
package convert

import (
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omhash/internal/bucket"
	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/mapping"
)

// DefaultMaxDepth bounds nesting of structs, collections and references.
const DefaultMaxDepth = 16

// Converter maps records to buckets and back. It is safe for concurrent use.
type Converter struct {
	mapping  *mapping.Registry
	codecs   *codec.Registry
	resolver ReferenceResolver
	logger   *zap.Logger
	maxDepth int
}

// Option configures a Converter.
type Option func(*Converter)

// WithResolver sets the resolver used to load references on Read.
func WithResolver(r ReferenceResolver) Option {
	return func(c *Converter) { c.resolver = r }
}

// WithLogger sets the logger for unresolved references.
func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// New creates a Converter over the given mapping registry.
func New(m *mapping.Registry, opts ...Option) *Converter {
	c := &Converter{
		mapping:  m,
		codecs:   m.Codecs(),
		logger:   zap.NewNop(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Write flattens a struct (or pointer to one) into a bucket.
func (c *Converter) Write(v any) (*bucket.Bucket, error) {
	rv, ok := indirect(reflect.ValueOf(v))
	if !ok {
		return nil, mismatch("", "nil record")
	}

	b := bucket.New()
	if raw, ok := c.codecs.Raw(rv.Type()); ok {
		data, err := raw.Encode(rv)
		if err != nil {
			return nil, codecFailure(bucket.RawKey, err)
		}
		b.Put(bucket.RawKey, data)
		return b, nil
	}
	if rv.Kind() != reflect.Struct {
		return nil, mismatch("", "%s is not a struct", rv.Type())
	}

	if _, err := c.mapping.Entity(rv.Type()); err != nil {
		return nil, &Error{Err: fmt.Errorf("%w: %w", ErrTypeMismatch, err)}
	}
	name, ok := c.mapping.Name(rv.Type())
	if !ok {
		return nil, mismatch("", "type %s has no registered name", rv.Type())
	}
	b.Put(bucket.TypeKey, []byte(name))

	if err := c.writeEntity(b, "", rv, 0); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Converter) writeEntity(b *bucket.Bucket, path string, rv reflect.Value, depth int) error {
	if depth > c.maxDepth {
		return &Error{Path: path, Err: ErrMaxDepth}
	}
	e, err := c.mapping.Entity(rv.Type())
	if err != nil {
		return &Error{Path: path, Err: fmt.Errorf("%w: %w", ErrTypeMismatch, err)}
	}
	for _, p := range e.Properties {
		if err := c.writeProperty(b, bucket.Join(path, p.Name), p, rv.FieldByIndex(p.Index), depth); err != nil {
			return err
		}
	}
	return nil
}

func (c *Converter) writeProperty(b *bucket.Bucket, path string, p *mapping.Property, fv reflect.Value, depth int) error {
	switch {
	case p.Options.Reference:
		return c.writeReference(b, path, p, fv)
	case p.TagJoined():
		return c.writeTags(b, path, p, fv)
	case p.Codec != nil:
		v, ok := indirect(fv)
		if !ok {
			return nil
		}
		data, err := p.Codec.Encode(v)
		if err != nil {
			return codecFailure(path, err)
		}
		b.Put(path, data)
		return nil
	}
	return c.writeValue(b, path, fv, depth)
}

// writeValue dispatches on the runtime class of v.
func (c *Converter) writeValue(b *bucket.Bucket, path string, v reflect.Value, depth int) error {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Interface {
			v = v.Elem()
			concrete := deref(v.Type())
			name, ok := c.mapping.Name(concrete)
			if !ok && concrete.Kind() == reflect.Struct {
				if _, err := c.mapping.Entity(concrete); err == nil {
					name, ok = c.mapping.Name(concrete)
				}
			}
			if _, scalar := c.codecs.Lookup(concrete); !ok && scalar && concrete.Name() != "" {
				// named scalar types are hinted by their qualified name
				if err := c.mapping.RegisterName(concrete.String(), concrete); err == nil {
					name, ok = concrete.String(), true
				}
			}
			if !ok {
				return mismatch(path, "unregistered type %s behind interface", concrete)
			}
			b.Put(bucket.TypeKeyFor(path), []byte(name))
			continue
		}
		v = v.Elem()
	}

	if cd, ok := c.codecs.Lookup(v.Type()); ok {
		data, err := cd.Encode(v)
		if err != nil {
			return codecFailure(path, err)
		}
		b.Put(path, data)
		return nil
	}

	switch c.codecs.Classify(v.Type()) {
	case codec.Collection:
		return c.writeCollection(b, path, v, depth)
	case codec.Map:
		return c.writeMap(b, path, v, depth)
	case codec.Entity:
		return c.writeEntity(b, path, v, depth+1)
	}
	return mismatch(path, "unsupported type %s", v.Type())
}

func (c *Converter) writeCollection(b *bucket.Bucket, path string, v reflect.Value, depth int) error {
	if depth+1 > c.maxDepth {
		return &Error{Path: path, Err: ErrMaxDepth}
	}
	elems, err := c.elements(path, v)
	if err != nil {
		return err
	}
	for i, e := range elems {
		if err := c.writeValue(b, bucket.Index(path, i), e, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// elements lists collection members in stored order. Set members are
// ordered by their encoded key so writes are deterministic.
func (c *Converter) elements(path string, v reflect.Value) ([]reflect.Value, error) {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
	case reflect.Array:
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		keys := v.MapKeys()
		encoded := make([]string, len(keys))
		for i, k := range keys {
			s, err := c.mapKey(path, k)
			if err != nil {
				return nil, err
			}
			encoded[i] = s
		}
		sort.Sort(byEncoded{keys, encoded})
		return keys, nil
	default:
		return nil, mismatch(path, "%s is not a collection", v.Type())
	}
	out := make([]reflect.Value, v.Len())
	for i := range out {
		out[i] = v.Index(i)
	}
	return out, nil
}

type byEncoded struct {
	vals []reflect.Value
	keys []string
}

func (s byEncoded) Len() int           { return len(s.vals) }
func (s byEncoded) Less(i, j int) bool { return s.keys[i] < s.keys[j] }
func (s byEncoded) Swap(i, j int) {
	s.vals[i], s.vals[j] = s.vals[j], s.vals[i]
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
}

func (c *Converter) writeMap(b *bucket.Bucket, path string, v reflect.Value, depth int) error {
	if v.IsNil() {
		return nil
	}
	if depth+1 > c.maxDepth {
		return &Error{Path: path, Err: ErrMaxDepth}
	}
	iter := v.MapRange()
	for iter.Next() {
		key, err := c.mapKey(path, iter.Key())
		if err != nil {
			return err
		}
		if err := c.writeValue(b, bucket.MapEntry(path, key), iter.Value(), depth+1); err != nil {
			return err
		}
	}
	return nil
}

// mapKey encodes a map key with its scalar codec, falling back to fmt.Sprint.
func (c *Converter) mapKey(path string, k reflect.Value) (string, error) {
	if cd, ok := c.codecs.Lookup(k.Type()); ok {
		data, err := cd.Encode(k)
		if err != nil {
			return "", codecFailure(path, err)
		}
		return string(data), nil
	}
	return fmt.Sprint(k.Interface()), nil
}

func (c *Converter) writeTags(b *bucket.Bucket, path string, p *mapping.Property, fv reflect.Value) error {
	v, ok := indirect(fv)
	if !ok {
		return nil
	}
	elems, err := c.elements(path, v)
	if err != nil {
		return err
	}
	values := make([]string, 0, len(elems))
	for _, e := range elems {
		e, ok := indirect(e)
		if !ok {
			continue
		}
		cd, ok := c.codecs.Lookup(e.Type())
		if !ok {
			return mismatch(path, "no codec for tag element %s", e.Type())
		}
		data, err := cd.Encode(e)
		if err != nil {
			return codecFailure(path, err)
		}
		values = append(values, string(data))
	}
	if len(values) == 0 {
		return nil
	}
	b.Put(path, []byte(bucket.JoinTags(values, p.Separator())))
	return nil
}

// indirect follows pointers and interfaces. It reports false for nil.
func indirect(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
