package query

import (
	"encoding"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/geo"
)

// ErrFieldKind is returned when a predicate targets a field of another kind.
var ErrFieldKind = errors.New("predicate does not match field kind")

// ErrOperand is returned for operands a predicate cannot convert.
var ErrOperand = errors.New("unsupported operand")

// Kind is the index kind of a queryable field.
type Kind int

// Field kinds.
const (
	KindTag Kind = iota
	KindNumeric
	KindText
	KindGeo
	KindVector
)

var kindNames = [...]string{"tag", "numeric", "text", "geo", "vector"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Field is the query-side view of an indexed field.
type Field struct {
	Alias         string
	Kind          Kind
	CaseSensitive bool
}

// Fields resolves declared field names to indexed fields.
type Fields interface {
	Lookup(field string) (Field, bool)
}

// DefaultGeoEqualityRadius approximates point equality for geo Eq.
var DefaultGeoEqualityRadius = Distance{Value: 0.0001, Unit: geo.Miles}

// Distance is a radius with its unit.
type Distance struct {
	Value float64
	Unit  geo.Unit
}

// Scope is what predicates are rendered against.
type Scope struct {
	Fields Fields
	// GeoEquality is the radius used by geo Eq and NotEq. Zero means
	// DefaultGeoEqualityRadius.
	GeoEquality Distance
}

func (s Scope) geoEquality() Distance {
	if s.GeoEquality.Value <= 0 || !s.GeoEquality.Unit.Valid() {
		return DefaultGeoEqualityRadius
	}
	return s.GeoEquality
}

// Predicate renders itself onto a query tree. A predicate over a field the
// scope does not know returns root unchanged.
type Predicate interface {
	Apply(root Node, scope Scope) (Node, error)
}

// fieldPredicate is a leaf predicate bound to one declared field.
type fieldPredicate struct {
	field string
	kind  Kind
	build func(f Field, scope Scope) (Node, error)
}

func (p *fieldPredicate) node(scope Scope) (Node, bool, error) {
	if scope.Fields == nil {
		return nil, false, nil
	}
	f, ok := scope.Fields.Lookup(p.field)
	if !ok {
		return nil, false, nil
	}
	if f.Kind != p.kind {
		return nil, false, fmt.Errorf("%w: %s is %s, not %s", ErrFieldKind, p.field, f.Kind, p.kind)
	}
	n, err := p.build(f, scope)
	if err != nil {
		return nil, false, fmt.Errorf("field %s: %w", p.field, err)
	}
	return n, true, nil
}

// Apply implements Predicate.
func (p *fieldPredicate) Apply(root Node, scope Scope) (Node, error) {
	n, ok, err := p.node(scope)
	if err != nil || !ok {
		return root, err
	}
	return And(root, n), nil
}

type andPredicate []Predicate

func (ps andPredicate) Apply(root Node, scope Scope) (Node, error) {
	var err error
	for _, p := range ps {
		if root, err = p.Apply(root, scope); err != nil {
			return nil, err
		}
	}
	return root, nil
}

type orPredicate []Predicate

func (ps orPredicate) Apply(root Node, scope Scope) (Node, error) {
	nodes := make([]Node, 0, len(ps))
	for _, p := range ps {
		n, err := p.Apply(All, scope)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return And(root, Or(nodes...)), nil
}

// AllOf combines predicates with a logical and.
func AllOf(ps ...Predicate) Predicate {
	return andPredicate(ps)
}

// AnyOf combines predicates with a logical or.
func AnyOf(ps ...Predicate) Predicate {
	return orPredicate(ps)
}

func leaf(field string, kind Kind, build func(f Field, scope Scope) (Node, error)) Predicate {
	return &fieldPredicate{field: field, kind: kind, build: build}
}

func negated(p Predicate) Predicate {
	fp, _ := p.(*fieldPredicate)
	inner := fp.build
	return leaf(fp.field, fp.kind, func(f Field, scope Scope) (Node, error) {
		n, err := inner(f, scope)
		if err != nil {
			return nil, err
		}
		return Negate(n), nil
	})
}

// --- Tag ---

// TagField builds predicates over a tag field.
type TagField struct{ name string }

// Tag returns predicate factories for a tag field.
func Tag(field string) TagField { return TagField{name: field} }

// Eq matches records holding v.
func (t TagField) Eq(v any) Predicate {
	return leaf(t.name, KindTag, func(f Field, _ Scope) (Node, error) {
		s, err := tagValue(v)
		if err != nil {
			return nil, err
		}
		return &TagNode{Alias: f.Alias, Value: s, CaseSensitive: f.CaseSensitive}, nil
	})
}

// NotEq matches records not holding v.
func (t TagField) NotEq(v any) Predicate { return negated(t.Eq(v)) }

// In matches records holding any of vs.
func (t TagField) In(vs ...any) Predicate {
	return leaf(t.name, KindTag, func(f Field, _ Scope) (Node, error) {
		nodes := make([]Node, 0, len(vs))
		for _, v := range vs {
			s, err := tagValue(v)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, &TagNode{Alias: f.Alias, Value: s, CaseSensitive: f.CaseSensitive})
		}
		return &Union{Children: nodes}, nil
	})
}

// NotIn matches records holding none of vs.
func (t TagField) NotIn(vs ...any) Predicate { return negated(t.In(vs...)) }

// ContainsAll matches records holding every one of vs.
func (t TagField) ContainsAll(vs ...any) Predicate {
	return leaf(t.name, KindTag, func(f Field, _ Scope) (Node, error) {
		nodes := make([]Node, 0, len(vs))
		for _, v := range vs {
			s, err := tagValue(v)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, &TagNode{Alias: f.Alias, Value: s, CaseSensitive: f.CaseSensitive})
		}
		return &Intersect{Children: nodes}, nil
	})
}

func tagValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case encoding.TextMarshaler:
		b, err := x.MarshalText()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrOperand, err)
		}
		return string(b), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	return "", fmt.Errorf("%w: %T for tag", ErrOperand, v)
}

// --- Numeric ---

// NumericField builds predicates over a numeric field.
type NumericField struct{ name string }

// Numeric returns predicate factories for a numeric field.
func Numeric(field string) NumericField { return NumericField{name: field} }

func (n NumericField) rng(lo, hi any, loEx, hiEx bool) Predicate {
	return leaf(n.name, KindNumeric, func(f Field, _ Scope) (Node, error) {
		minV, err := numberOrInf(lo, math.Inf(-1))
		if err != nil {
			return nil, err
		}
		maxV, err := numberOrInf(hi, math.Inf(1))
		if err != nil {
			return nil, err
		}
		return &NumericNode{Alias: f.Alias, Min: minV, Max: maxV, MinExclusive: loEx, MaxExclusive: hiEx}, nil
	})
}

// Eq matches v exactly. Times are compared as epoch seconds.
func (n NumericField) Eq(v any) Predicate { return n.rng(v, v, false, false) }

// NotEq excludes v.
func (n NumericField) NotEq(v any) Predicate { return negated(n.Eq(v)) }

// Gt matches values greater than v.
func (n NumericField) Gt(v any) Predicate { return n.rng(v, nil, true, false) }

// Ge matches values greater than or equal to v.
func (n NumericField) Ge(v any) Predicate { return n.rng(v, nil, false, false) }

// Lt matches values less than v.
func (n NumericField) Lt(v any) Predicate { return n.rng(nil, v, false, true) }

// Le matches values less than or equal to v.
func (n NumericField) Le(v any) Predicate { return n.rng(nil, v, false, false) }

// Between matches values in [lo, hi].
func (n NumericField) Between(lo, hi any) Predicate { return n.rng(lo, hi, false, false) }

// In matches any of vs.
func (n NumericField) In(vs ...any) Predicate {
	return leaf(n.name, KindNumeric, func(f Field, _ Scope) (Node, error) {
		nodes := make([]Node, 0, len(vs))
		for _, v := range vs {
			x, err := Number(v)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, &NumericNode{Alias: f.Alias, Min: x, Max: x})
		}
		return &Union{Children: nodes}, nil
	})
}

func numberOrInf(v any, inf float64) (float64, error) {
	if v == nil {
		return inf, nil
	}
	return Number(v)
}

// Number converts a numeric operand. time.Time becomes epoch seconds in the
// form the time codec stores, fractions included.
func Number(v any) (float64, error) {
	switch x := v.(type) {
	case time.Time:
		return epoch(x)
	case *time.Time:
		if x == nil {
			return 0, fmt.Errorf("%w: nil *time.Time", ErrOperand)
		}
		return epoch(*x)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return 0, fmt.Errorf("%w: %T for numeric", ErrOperand, v)
}

func epoch(t time.Time) (float64, error) {
	return strconv.ParseFloat(codec.FormatEpoch(t), 64)
}

// --- Text ---

// TextField builds predicates over a full-text field.
type TextField struct{ name string }

// Text returns predicate factories for a full-text field.
func Text(field string) TextField { return TextField{name: field} }

func (t TextField) match(mode TextMode, v string) Predicate {
	return leaf(t.name, KindText, func(f Field, _ Scope) (Node, error) {
		return &TextNode{Alias: f.Alias, Mode: mode, Value: v}, nil
	})
}

// Eq matches the exact phrase.
func (t TextField) Eq(v string) Predicate { return t.match(Phrase, v) }

// NotEq excludes the exact phrase.
func (t TextField) NotEq(v string) Predicate { return negated(t.Eq(v)) }

// Like matches terms within one edit of v.
func (t TextField) Like(v string) Predicate { return t.match(Fuzzy, v) }

// NotLike excludes terms within one edit of v.
func (t TextField) NotLike(v string) Predicate { return negated(t.Like(v)) }

// Containing matches terms containing v.
func (t TextField) Containing(v string) Predicate { return t.match(Contains, v) }

// NotContaining excludes terms containing v.
func (t TextField) NotContaining(v string) Predicate { return negated(t.Containing(v)) }

// StartsWith matches terms starting with v.
func (t TextField) StartsWith(v string) Predicate { return t.match(Prefix, v) }

// In matches any of the phrases.
func (t TextField) In(vs ...string) Predicate {
	return leaf(t.name, KindText, func(f Field, _ Scope) (Node, error) {
		nodes := make([]Node, len(vs))
		for i, v := range vs {
			nodes[i] = &TextNode{Alias: f.Alias, Mode: Phrase, Value: v}
		}
		return &Union{Children: nodes}, nil
	})
}

// --- Geo ---

// GeoField builds predicates over a geo field.
type GeoField struct{ name string }

// Geo returns predicate factories for a geo field.
func Geo(field string) GeoField { return GeoField{name: field} }

// Near matches points within radius of center.
func (g GeoField) Near(center geo.Point, radius float64, unit geo.Unit) Predicate {
	return leaf(g.name, KindGeo, func(f Field, _ Scope) (Node, error) {
		if !center.Valid() {
			return nil, fmt.Errorf("%w: %v", geo.ErrInvalidPoint, center)
		}
		if !unit.Valid() {
			return nil, fmt.Errorf("%w: unit %q", ErrOperand, unit)
		}
		return &GeoNode{Alias: f.Alias, Center: center, Radius: radius, Unit: unit}, nil
	})
}

// OutsideOf matches points farther than radius from center.
func (g GeoField) OutsideOf(center geo.Point, radius float64, unit geo.Unit) Predicate {
	return negated(g.Near(center, radius, unit))
}

// Eq approximates point equality with the scope's geo equality radius.
func (g GeoField) Eq(p geo.Point) Predicate {
	return leaf(g.name, KindGeo, func(f Field, scope Scope) (Node, error) {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: %v", geo.ErrInvalidPoint, p)
		}
		d := scope.geoEquality()
		return &GeoNode{Alias: f.Alias, Center: p, Radius: d.Value, Unit: d.Unit}, nil
	})
}

// NotEq excludes points approximately equal to p.
func (g GeoField) NotEq(p geo.Point) Predicate { return negated(g.Eq(p)) }
