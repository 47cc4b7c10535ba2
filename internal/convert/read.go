package convert

import (
	"context"
	"fmt"
	"reflect"

	"github.com/kailas-cloud/omhash/internal/bucket"
	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/mapping"
)

// Read rebuilds a value of type t (a struct or pointer to one) from b.
// References are loaded through the resolver; failures leave the field unset.
func (c *Converter) Read(ctx context.Context, t reflect.Type, b *bucket.Bucket) (reflect.Value, error) {
	base := deref(t)
	out := reflect.New(base)

	if raw, ok := c.codecs.Raw(base); ok {
		data, ok := b.Get(bucket.RawKey)
		if !ok {
			return reflect.Value{}, mismatch(bucket.RawKey, "missing raw entry for %s", base)
		}
		if err := raw.Decode(data, out.Elem()); err != nil {
			return reflect.Value{}, codecFailure(bucket.RawKey, err)
		}
	} else {
		if base.Kind() != reflect.Struct {
			return reflect.Value{}, mismatch("", "%s is not a struct", base)
		}
		if err := c.readEntity(ctx, "", out.Elem(), b, 0); err != nil {
			return reflect.Value{}, err
		}
	}

	if t.Kind() == reflect.Pointer {
		return out, nil
	}
	return out.Elem(), nil
}

// ReadInto is Read for a caller-owned pointer.
func (c *Converter) ReadInto(ctx context.Context, dst any, b *bucket.Bucket) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return mismatch("", "destination must be a non-nil pointer, got %T", dst)
	}
	v, err := c.Read(ctx, rv.Type(), b)
	if err != nil {
		return err
	}
	rv.Elem().Set(v.Elem())
	return nil
}

func (c *Converter) readEntity(ctx context.Context, path string, v reflect.Value, b *bucket.Bucket, depth int) error {
	if depth > c.maxDepth {
		return &Error{Path: path, Err: ErrMaxDepth}
	}
	e, err := c.mapping.Entity(v.Type())
	if err != nil {
		return &Error{Path: path, Err: fmt.Errorf("%w: %w", ErrTypeMismatch, err)}
	}
	for _, p := range e.Properties {
		if err := c.readProperty(ctx, bucket.Join(path, p.Name), p, v.FieldByIndex(p.Index), b, depth); err != nil {
			return err
		}
	}
	return nil
}

func (c *Converter) readProperty(ctx context.Context, path string, p *mapping.Property, fv reflect.Value, b *bucket.Bucket, depth int) error {
	switch {
	case p.Options.Reference:
		c.readReference(ctx, path, p, fv, b, depth)
		return nil
	case p.TagJoined():
		return c.readTags(path, p, fv, b)
	case p.Codec != nil:
		data, ok := b.Get(path)
		if !ok {
			return nil
		}
		if err := p.Codec.Decode(data, settle(fv)); err != nil {
			return codecFailure(path, err)
		}
		return nil
	}
	return c.readValue(ctx, path, fv, b, depth)
}

// readValue fills the settable v from the entries at and under path.
func (c *Converter) readValue(ctx context.Context, path string, v reflect.Value, b *bucket.Bucket, depth int) error {
	t := v.Type()
	switch t.Kind() {
	case reflect.Pointer:
		if !present(b, path) {
			return nil
		}
		n := reflect.New(t.Elem())
		if err := c.readValue(ctx, path, n.Elem(), b, depth); err != nil {
			return err
		}
		v.Set(n)
		return nil
	case reflect.Interface:
		return c.readDynamic(ctx, path, v, b, depth)
	}

	if cd, ok := c.codecs.Lookup(t); ok {
		data, ok := b.Get(path)
		if !ok {
			return nil
		}
		if err := cd.Decode(data, v); err != nil {
			return codecFailure(path, err)
		}
		return nil
	}

	switch c.codecs.Classify(t) {
	case codec.Collection:
		return c.readCollection(ctx, path, v, b, depth)
	case codec.Map:
		return c.readMap(ctx, path, v, b, depth)
	case codec.Entity:
		if path != "" && !b.HasPrefix(path+".") {
			return nil
		}
		return c.readEntity(ctx, path, v, b, depth+1)
	}
	return mismatch(path, "unsupported type %s", t)
}

// readDynamic picks the concrete type of an interface field from its type hint.
func (c *Converter) readDynamic(ctx context.Context, path string, v reflect.Value, b *bucket.Bucket, depth int) error {
	hint, ok := b.Get(bucket.TypeKeyFor(path))
	if !ok {
		return nil
	}
	concrete, ok := c.mapping.TypeByName(string(hint))
	if !ok {
		return mismatch(path, "unknown type hint %q", hint)
	}
	n := reflect.New(concrete).Elem()
	if err := c.readValue(ctx, path, n, b, depth); err != nil {
		return err
	}
	switch {
	case concrete.AssignableTo(v.Type()):
		v.Set(n)
	case reflect.PointerTo(concrete).AssignableTo(v.Type()):
		v.Set(n.Addr())
	default:
		return mismatch(path, "%s does not implement %s", concrete, v.Type())
	}
	return nil
}

func (c *Converter) readCollection(ctx context.Context, path string, v reflect.Value, b *bucket.Bucket, depth int) error {
	children := b.ExtractAllKeysFor(path)
	if len(children) == 0 {
		return nil
	}
	if depth+1 > c.maxDepth {
		return &Error{Path: path, Err: ErrMaxDepth}
	}

	t := v.Type()
	switch t.Kind() {
	case reflect.Slice:
		s := reflect.MakeSlice(t, len(children), len(children))
		for i, child := range children {
			if err := c.readValue(ctx, child, s.Index(i), b, depth+1); err != nil {
				return err
			}
		}
		v.Set(s)
	case reflect.Array:
		for i, child := range children {
			if i >= v.Len() {
				break
			}
			if err := c.readValue(ctx, child, v.Index(i), b, depth+1); err != nil {
				return err
			}
		}
	case reflect.Map:
		m := reflect.MakeMapWithSize(t, len(children))
		for _, child := range children {
			k := reflect.New(t.Key()).Elem()
			if err := c.readValue(ctx, child, k, b, depth+1); err != nil {
				return err
			}
			m.SetMapIndex(k, reflect.Zero(t.Elem()))
		}
		v.Set(m)
	}
	return nil
}

func (c *Converter) readMap(ctx context.Context, path string, v reflect.Value, b *bucket.Bucket, depth int) error {
	children := b.ExtractAllKeysFor(path)
	if len(children) == 0 {
		return nil
	}
	if depth+1 > c.maxDepth {
		return &Error{Path: path, Err: ErrMaxDepth}
	}

	t := v.Type()
	m := reflect.MakeMapWithSize(t, len(children))
	for _, child := range children {
		raw, err := bucket.MapKey(path, child)
		if err != nil {
			return &Error{Path: child, Err: err}
		}
		k, err := c.parseMapKey(child, raw, t.Key())
		if err != nil {
			return err
		}
		e := reflect.New(t.Elem()).Elem()
		if err := c.readValue(ctx, child, e, b, depth+1); err != nil {
			return err
		}
		m.SetMapIndex(k, e)
	}
	v.Set(m)
	return nil
}

func (c *Converter) parseMapKey(path, raw string, t reflect.Type) (reflect.Value, error) {
	cd, ok := c.codecs.Lookup(t)
	if !ok {
		return reflect.Value{}, mismatch(path, "map key type %s has no codec", t)
	}
	k := reflect.New(t).Elem()
	if err := cd.Decode([]byte(raw), k); err != nil {
		return reflect.Value{}, codecFailure(path, err)
	}
	return k, nil
}

func (c *Converter) readTags(path string, p *mapping.Property, fv reflect.Value, b *bucket.Bucket) error {
	data, ok := b.Get(path)
	if !ok {
		return nil
	}
	values := bucket.SplitTags(string(data), p.Separator())
	target := settle(fv)
	t := target.Type()
	et := codec.ElemType(t)
	cd, ok := c.codecs.Lookup(deref(et))
	if !ok {
		return mismatch(path, "no codec for tag element %s", et)
	}

	decode := func(s string) (reflect.Value, error) {
		e := reflect.New(et).Elem()
		if err := cd.Decode([]byte(s), settle(e)); err != nil {
			return reflect.Value{}, codecFailure(path, err)
		}
		return e, nil
	}

	switch t.Kind() {
	case reflect.Slice:
		s := reflect.MakeSlice(t, 0, len(values))
		for _, raw := range values {
			e, err := decode(raw)
			if err != nil {
				return err
			}
			s = reflect.Append(s, e)
		}
		target.Set(s)
	case reflect.Array:
		for i, raw := range values {
			if i >= target.Len() {
				break
			}
			e, err := decode(raw)
			if err != nil {
				return err
			}
			target.Index(i).Set(e)
		}
	case reflect.Map:
		m := reflect.MakeMapWithSize(t, len(values))
		for _, raw := range values {
			e, err := decode(raw)
			if err != nil {
				return err
			}
			m.SetMapIndex(e, reflect.Zero(t.Elem()))
		}
		target.Set(m)
	}
	return nil
}

// settle allocates nil pointers along v and returns the innermost value.
func settle(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return v
}

// present reports whether anything is stored at or under path.
func present(b *bucket.Bucket, path string) bool {
	return b.Has(path) || b.HasPrefix(path+".")
}
