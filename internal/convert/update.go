package convert

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/kailas-cloud/omhash/internal/bucket"
	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/mapping"
)

// Change sets the value at Path, or removes it when Delete is set or Value
// is nil. Paths use the stored form: "address.city", "tags.[2]", "scores.[k]".
type Change struct {
	Path   string
	Value  any
	Delete bool
}

// UpdatePlan is the store-level form of a partial update.
type UpdatePlan struct {
	// Set holds the entries to write.
	Set *bucket.Bucket
	// Clear lists paths whose stored value and children are replaced.
	Clear []string
}

// Deletes picks the stored fields to remove before Set is written. Each
// cleared path removes itself and, unless a direct value is stored there,
// every field below it.
func (p *UpdatePlan) Deletes(existing []string) []string {
	if len(p.Clear) == 0 {
		return nil
	}
	stored := make(map[string]bool, len(existing))
	for _, f := range existing {
		stored[f] = true
	}

	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, path := range p.Clear {
		if stored[path] {
			add(path)
			if hint := bucket.TypeKeyFor(path); stored[hint] {
				add(hint)
			}
			continue
		}
		prefix := path + "."
		for _, f := range existing {
			if strings.HasPrefix(f, prefix) {
				add(f)
			}
		}
	}
	bucket.Sort(out)
	return out
}

// Touches reports whether the plan writes or clears path.
func (p *UpdatePlan) Touches(path string) bool {
	if p.Set.Has(path) {
		return true
	}
	for _, c := range p.Clear {
		if c == path {
			return true
		}
	}
	return false
}

// target is a change path resolved against the mapping tables.
type target struct {
	typ reflect.Type
	// prop is the property the path ends in, or the property owning the
	// element the path ends in.
	prop    *mapping.Property
	element bool
	depth   int
}

// PartialUpdate resolves changes against type t and builds the plan.
func (c *Converter) PartialUpdate(t reflect.Type, changes []Change) (*UpdatePlan, error) {
	plan := &UpdatePlan{Set: bucket.New()}
	for _, ch := range changes {
		tg, err := c.resolvePath(deref(t), ch.Path)
		if err != nil {
			return nil, err
		}

		value := reflect.ValueOf(ch.Value)
		if ch.Delete || !value.IsValid() {
			plan.Clear = append(plan.Clear, ch.Path)
			continue
		}
		value, err = assignable(ch.Path, value, tg.typ)
		if err != nil {
			return nil, err
		}
		if tg.typ.Kind() == reflect.Interface {
			// keep the static type so the type hint is written
			iv := reflect.New(tg.typ).Elem()
			iv.Set(value)
			value = iv
		}

		if err := c.writeTarget(plan.Set, ch.Path, tg, value); err != nil {
			return nil, err
		}
		// empty collections and nil pointers write nothing, so the old
		// value has to go as well
		if c.replacesChildren(tg) || !written(plan.Set, ch.Path) {
			plan.Clear = append(plan.Clear, ch.Path)
		}
	}
	return plan, nil
}

func (c *Converter) writeTarget(b *bucket.Bucket, path string, tg target, v reflect.Value) error {
	p := tg.prop
	if !tg.element {
		return c.writeProperty(b, path, p, v, tg.depth)
	}
	if p.Options.Reference {
		v, ok := indirect(v)
		if !ok {
			return nil
		}
		return c.writeRef(b, path, p.Ref, v)
	}
	return c.writeValue(b, path, v, tg.depth)
}

func written(b *bucket.Bucket, path string) bool {
	return b.Has(path) || b.HasPrefix(path+".")
}

// replacesChildren reports whether writing the target may leave stale
// entries below its path.
func (c *Converter) replacesChildren(tg target) bool {
	p := tg.prop
	if !tg.element {
		switch {
		case p.Options.Reference:
			return p.Class == codec.Collection
		case p.TagJoined(), p.Codec != nil:
			return false
		}
	} else if p.Options.Reference {
		return false
	}
	return c.codecs.Classify(tg.typ) != codec.Scalar
}

// resolvePath walks a stored path through nested properties, collection
// elements and map values.
func (c *Converter) resolvePath(t reflect.Type, path string) (target, error) {
	segs, err := bucket.Segments(path)
	if err != nil || len(segs) == 0 {
		return target{}, &Error{Path: path, Err: fmt.Errorf("%w: empty or invalid path", ErrMalformedPath)}
	}

	var tg target
	cur := t
	for i, seg := range segs {
		if i > c.maxDepth {
			return target{}, &Error{Path: path, Err: ErrMaxDepth}
		}
		base := deref(cur)

		if bucket.IsBracket(seg) {
			if tg.prop == nil || tg.prop.Codec != nil || (tg.prop.TagJoined() && !tg.element) {
				return target{}, &Error{Path: path, Err: fmt.Errorf("%w: %q cannot be addressed by element", ErrMalformedPath, seg)}
			}
			switch c.codecs.Classify(base) {
			case codec.Collection:
				if codec.IsSet(base) {
					return target{}, &Error{Path: path, Err: fmt.Errorf("%w: set elements are not addressable", ErrMalformedPath)}
				}
				if n, err := strconv.Atoi(bucket.BracketKey(seg)); err != nil || n < 0 {
					return target{}, &Error{Path: path, Err: fmt.Errorf("%w: %q is not an index", ErrMalformedPath, seg)}
				}
				cur = base.Elem()
			case codec.Map:
				cur = base.Elem()
			default:
				return target{}, &Error{Path: path, Err: fmt.Errorf("%w: %s has no elements", ErrMalformedPath, base)}
			}
			tg.element = true
			tg.depth++
			continue
		}

		if base.Kind() != reflect.Struct || c.codecs.Classify(base) != codec.Entity {
			return target{}, &Error{Path: path, Err: fmt.Errorf("%w: %s has no property %q", ErrMalformedPath, base, seg)}
		}
		if tg.prop != nil && tg.prop.Options.Reference {
			return target{}, &Error{Path: path, Err: fmt.Errorf("%w: cannot update through reference %q", ErrMalformedPath, tg.prop.Name)}
		}
		e, err := c.mapping.Entity(base)
		if err != nil {
			return target{}, &Error{Path: path, Err: fmt.Errorf("%w: %w", ErrTypeMismatch, err)}
		}
		p, ok := e.Property(seg)
		if !ok {
			return target{}, &Error{Path: path, Err: fmt.Errorf("%w: %s has no property %q", ErrMalformedPath, base, seg)}
		}
		if i > 0 {
			tg.depth++
		}
		tg.prop = p
		tg.element = false
		cur = p.Type
	}
	tg.typ = cur
	return tg, nil
}

// assignable checks v against the resolved type, accepting T for *T and
// *T for T.
func assignable(path string, v reflect.Value, t reflect.Type) (reflect.Value, error) {
	switch {
	case v.Type().AssignableTo(t):
		return v, nil
	case t.Kind() == reflect.Pointer && v.Type().AssignableTo(t.Elem()):
		return v, nil
	case v.Kind() == reflect.Pointer && !v.IsNil() && v.Type().Elem().AssignableTo(t):
		return v.Elem(), nil
	}
	return reflect.Value{}, mismatch(path, "%s is not assignable to %s", v.Type(), t)
}
