package mapping

import (
	"fmt"
	"reflect"
	"time"

	"github.com/kailas-cloud/omhash/internal/codec"
)

var durationType = reflect.TypeFor[time.Duration]()

// Entity is the field table of a struct type, built once and shared read-only.
type Entity struct {
	Type       reflect.Type
	Properties []*Property
	// ID is the identifier property, or nil for types only used nested.
	ID *Property
	// TTL is the per-record expiry property, or nil.
	TTL *Property

	byName map[string]*Property
}

// Property returns the property stored under name.
func (e *Entity) Property(name string) (*Property, bool) {
	p, ok := e.byName[name]
	return p, ok
}

// Property describes one stored struct field.
type Property struct {
	// Name is the stored path segment.
	Name string
	// Field is the Go field name.
	Field string
	Index []int
	// Type is the declared field type.
	Type reflect.Type
	// Class is the storage class of Type with pointers removed.
	Class codec.Class
	// Codec overrides the registry codec for vector and ordinal properties.
	Codec codec.Codec
	// Ref is the referenced struct type of a reference property.
	Ref     reflect.Type
	Options Options
}

// Elem returns Type with pointers removed.
func (p *Property) Elem() reflect.Type {
	return deref(p.Type)
}

// TagJoined reports whether a collection is stored as one separated tag
// string at the property's own path instead of one entry per element.
func (p *Property) TagJoined() bool {
	if p.Class != codec.Collection || p.Options.Reference {
		return false
	}
	if p.Options.Kind != IndexAuto && p.Options.Kind != IndexTag {
		return false
	}
	return isTagLike(deref(codec.ElemType(p.Elem())))
}

func isTagLike(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String, reflect.Bool:
		return true
	}
	return false
}

// Separator returns the tag separator, defaulting to "|".
func (p *Property) Separator() string {
	if p.Options.Separator != "" {
		return p.Options.Separator
	}
	return "|"
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// buildEntity walks the exported fields of t. Untagged embedded structs are
// flattened into the parent.
func buildEntity(t reflect.Type, codecs *codec.Registry) (*Entity, error) {
	e := &Entity{Type: t, byName: make(map[string]*Property)}
	if err := collect(e, t, nil, codecs); err != nil {
		return nil, err
	}
	if e.ID == nil {
		if p, ok := e.byName["ID"]; ok && p.Class == codec.Scalar {
			e.ID = p
			p.Options.ID = true
		}
	}
	return e, nil
}

func collect(e *Entity, t reflect.Type, parent []int, codecs *codec.Registry) error {
	for i := range t.NumField() {
		f := t.Field(i)
		index := append(append([]int(nil), parent...), i)
		tag, tagged := f.Tag.Lookup(TagKey)
		if tag == "-" {
			continue
		}
		if f.Anonymous && !tagged && f.Type.Kind() == reflect.Struct {
			if err := collect(e, f.Type, index, codecs); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		opts, err := ParseTag(tag)
		if err != nil {
			return fmt.Errorf("mapping: %s.%s: %w", t.Name(), f.Name, err)
		}
		if opts.Name == "" {
			opts.Name = f.Name
		}
		p := &Property{
			Name:    opts.Name,
			Field:   f.Name,
			Index:   index,
			Type:    f.Type,
			Class:   codecs.Classify(f.Type),
			Options: opts,
		}
		if err := resolve(p, codecs); err != nil {
			return fmt.Errorf("mapping: %s.%s: %w", t.Name(), f.Name, err)
		}
		if _, dup := e.byName[p.Name]; dup {
			return fmt.Errorf("mapping: %s: duplicate property name %q", t.Name(), p.Name)
		}
		e.byName[p.Name] = p
		e.Properties = append(e.Properties, p)

		if opts.ID {
			if e.ID != nil {
				return fmt.Errorf("mapping: %s: duplicate id on %s", t.Name(), f.Name)
			}
			e.ID = p
		}
		if opts.TTL {
			if e.TTL != nil {
				return fmt.Errorf("mapping: %s: duplicate ttl on %s", t.Name(), f.Name)
			}
			e.TTL = p
		}
	}
	return nil
}

// resolve validates options against the field type and fills the codec
// overrides.
func resolve(p *Property, codecs *codec.Registry) error {
	elem := p.Elem()
	switch {
	case p.Options.Reference:
		ref := elem
		if p.Class == codec.Collection {
			ref = deref(codec.ElemType(elem))
		}
		if ref.Kind() != reflect.Struct {
			return fmt.Errorf("reference must point to a struct, got %s", p.Type)
		}
		p.Ref = ref
	case p.Options.Kind == IndexVector:
		switch elem.Kind() {
		case reflect.Slice, reflect.Array:
			switch elem.Elem().Kind() {
			case reflect.Float32, reflect.Float64:
				p.Codec = codec.VectorCodec{}
				p.Class = codec.Scalar
				return nil
			}
		}
		return fmt.Errorf("vector must be a float slice or array, got %s", p.Type)
	case p.Options.Ordinal:
		c, ok := codec.Kind(elem)
		if !ok || !isInteger(elem) {
			return fmt.Errorf("ordinal requires an integer type, got %s", p.Type)
		}
		p.Codec = c
		p.Class = codec.Scalar
	}

	if p.Options.TTL && elem != durationType && !isInteger(elem) {
		return fmt.Errorf("ttl must be a time.Duration or integer seconds, got %s", p.Type)
	}
	if p.Options.ID && p.Class != codec.Scalar {
		return fmt.Errorf("id must be a scalar, got %s", p.Type)
	}
	return nil
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
