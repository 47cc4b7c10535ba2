package convert

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omhash/internal/bucket"
	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/mapping"
	"github.com/kailas-cloud/omhash/internal/metrics"
)

// PhantomSuffix marks a reference whose target was deleted.
const PhantomSuffix = ":phantom"

// ReferenceResolver loads the stored fields of a referenced record. A nil
// map with a nil error means the record does not exist.
type ReferenceResolver interface {
	Resolve(ctx context.Context, id, keyspace string) (map[string][]byte, error)
}

// ResolverFunc adapts a function to ReferenceResolver.
type ResolverFunc func(ctx context.Context, id, keyspace string) (map[string][]byte, error)

// Resolve implements ReferenceResolver.
func (f ResolverFunc) Resolve(ctx context.Context, id, keyspace string) (map[string][]byte, error) {
	return f(ctx, id, keyspace)
}

// FormatReference renders the stored form "keyspace:id".
func FormatReference(keyspace, id string) string {
	return keyspace + ":" + id
}

// ParseReference splits a stored reference. The keyspace hint is matched
// first so keyspaces containing ':' parse correctly.
func ParseReference(stored, keyspace string) (ks, id string, phantom bool, err error) {
	if strings.HasSuffix(stored, PhantomSuffix) {
		stored = strings.TrimSuffix(stored, PhantomSuffix)
		phantom = true
	}
	if keyspace != "" && strings.HasPrefix(stored, keyspace+":") {
		return keyspace, stored[len(keyspace)+1:], phantom, nil
	}
	ks, id, ok := strings.Cut(stored, ":")
	if !ok || ks == "" || id == "" {
		return "", "", false, fmt.Errorf("%w: reference %q", ErrMalformedPath, stored)
	}
	return ks, id, phantom, nil
}

// IDOf returns the encoded identifier of a struct value.
func (c *Converter) IDOf(v reflect.Value) (string, error) {
	v, ok := indirect(v)
	if !ok {
		return "", mismatch("", "nil record")
	}
	e, err := c.mapping.Entity(v.Type())
	if err != nil {
		return "", &Error{Err: fmt.Errorf("%w: %w", ErrTypeMismatch, err)}
	}
	if e.ID == nil {
		return "", mismatch("", "%s has no id property", v.Type())
	}
	idv, ok := indirect(v.FieldByIndex(e.ID.Index))
	if !ok {
		return "", nil
	}
	cd, ok := c.codecs.Lookup(idv.Type())
	if !ok {
		return "", mismatch(e.ID.Name, "no codec for id type %s", idv.Type())
	}
	data, err := cd.Encode(idv)
	if err != nil {
		return "", codecFailure(e.ID.Name, err)
	}
	return string(data), nil
}

func (c *Converter) writeReference(b *bucket.Bucket, path string, p *mapping.Property, fv reflect.Value) error {
	v, ok := indirect(fv)
	if !ok {
		return nil
	}
	if p.Class != codec.Collection {
		return c.writeRef(b, path, p.Ref, v)
	}
	elems, err := c.elements(path, v)
	if err != nil {
		return err
	}
	refs := make([]string, 0, len(elems))
	for _, e := range elems {
		e, ok := indirect(e)
		if !ok {
			continue
		}
		ref, err := c.reference(bucket.Index(path, len(refs)), p.Ref, e)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	if codec.IsSet(v.Type()) {
		sort.Strings(refs)
	}
	for i, ref := range refs {
		b.Put(bucket.Index(path, i), []byte(ref))
	}
	return nil
}

func (c *Converter) writeRef(b *bucket.Bucket, path string, ref reflect.Type, v reflect.Value) error {
	stored, err := c.reference(path, ref, v)
	if err != nil {
		return err
	}
	b.Put(path, []byte(stored))
	return nil
}

// reference renders the stored keyspace:id form of v.
func (c *Converter) reference(path string, ref reflect.Type, v reflect.Value) (string, error) {
	id, err := c.IDOf(v)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) && ce.Path == "" {
			ce.Path = path
		}
		return "", err
	}
	if id == "" {
		return "", mismatch(path, "referenced %s has no id", ref)
	}
	return FormatReference(c.mapping.Keyspace(ref), id), nil
}

func (c *Converter) readReference(ctx context.Context, path string, p *mapping.Property, fv reflect.Value, b *bucket.Bucket, depth int) {
	if p.Class != codec.Collection {
		data, ok := b.Get(path)
		if !ok {
			return
		}
		if rv, ok := c.resolve(ctx, path, p.Ref, string(data), depth); ok {
			assign(fv, rv)
		}
		return
	}

	children := b.ExtractAllKeysFor(path)
	if len(children) == 0 {
		return
	}
	target := settle(fv)
	t := target.Type()
	var resolved []reflect.Value
	for _, child := range children {
		data, ok := b.Get(child)
		if !ok {
			continue
		}
		if rv, ok := c.resolve(ctx, child, p.Ref, string(data), depth); ok {
			resolved = append(resolved, rv)
		}
	}

	switch t.Kind() {
	case reflect.Slice:
		s := reflect.MakeSlice(t, len(resolved), len(resolved))
		for i, rv := range resolved {
			assign(s.Index(i), rv)
		}
		target.Set(s)
	case reflect.Array:
		for i, rv := range resolved {
			if i >= target.Len() {
				break
			}
			assign(target.Index(i), rv)
		}
	case reflect.Map:
		if !codec.IsSet(t) {
			return
		}
		m := reflect.MakeMapWithSize(t, len(resolved))
		for _, rv := range resolved {
			k := reflect.New(t.Key()).Elem()
			assign(k, rv)
			m.SetMapIndex(k, reflect.Zero(t.Elem()))
		}
		target.Set(m)
	}
}

// resolve loads one reference. Absent, phantom and failing references are
// logged and reported as unresolved.
func (c *Converter) resolve(ctx context.Context, path string, ref reflect.Type, stored string, depth int) (reflect.Value, bool) {
	keyspace := c.mapping.Keyspace(ref)
	ks, id, phantom, err := ParseReference(stored, keyspace)
	switch {
	case err != nil:
		c.unresolved(path, stored, keyspace, err)
		return reflect.Value{}, false
	case phantom:
		c.logger.Debug("phantom reference", zap.String("path", path), zap.String("reference", stored))
		return reflect.Value{}, false
	case c.resolver == nil:
		c.unresolved(path, stored, ks, fmt.Errorf("%w: no resolver", ErrUnresolvedReference))
		return reflect.Value{}, false
	case depth+1 > c.maxDepth:
		c.unresolved(path, stored, ks, ErrMaxDepth)
		return reflect.Value{}, false
	}

	fields, err := c.resolver.Resolve(ctx, id, ks)
	if err != nil {
		c.unresolved(path, stored, ks, fmt.Errorf("%w: %w", ErrUnresolvedReference, err))
		return reflect.Value{}, false
	}
	if len(fields) == 0 {
		c.unresolved(path, stored, ks, fmt.Errorf("%w: not found", ErrUnresolvedReference))
		return reflect.Value{}, false
	}

	rv := reflect.New(ref)
	if err := c.readEntity(ctx, "", rv.Elem(), bucket.FromBytes(fields), depth+1); err != nil {
		c.unresolved(path, stored, ks, err)
		return reflect.Value{}, false
	}
	return rv, true
}

func (c *Converter) unresolved(path, stored, keyspace string, err error) {
	c.logger.Warn("unresolved reference",
		zap.String("path", path),
		zap.String("reference", stored),
		zap.Error(err),
	)
	metrics.UnresolvedReferencesTotal.WithLabelValues(keyspace).Inc()
}

// assign stores a *T into a field of type T or *T.
func assign(dst, ptr reflect.Value) {
	if dst.Kind() == reflect.Pointer {
		dst.Set(ptr)
		return
	}
	dst.Set(ptr.Elem())
}
