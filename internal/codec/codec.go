// Package codec maps Go types to byte codecs and storage classes.
package codec

import (
	"encoding"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"

	"github.com/kailas-cloud/omhash/internal/geo"
)

// ErrNoCodec is returned when a type has no byte codec.
var ErrNoCodec = errors.New("no codec for type")

// Class is the storage classification of a type.
type Class int

// Storage classes.
const (
	Unsupported Class = iota
	Scalar
	Collection
	Map
	Entity
	// Dynamic is an interface type; the concrete class is decided per value.
	Dynamic
)

var classNames = [...]string{"unsupported", "scalar", "collection", "map", "entity", "dynamic"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// Codec converts a single value to and from its stored bytes.
// Decode receives a settable value of the codec's type.
type Codec interface {
	Encode(v reflect.Value) ([]byte, error)
	Decode(data []byte, v reflect.Value) error
}

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	emptyStructType     = reflect.TypeFor[struct{}]()
)

// Registry resolves codecs by type. Built-in codecs cover strings, booleans,
// numbers, []byte, time.Time, geo.Point, uuid.UUID, ulid.ULID and any
// encoding.TextMarshaler.
type Registry struct {
	mu     sync.RWMutex
	codecs map[reflect.Type]Codec
	raw    map[reflect.Type]Codec
}

// NewRegistry creates a registry with the built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{
		codecs: make(map[reflect.Type]Codec),
		raw:    make(map[reflect.Type]Codec),
	}
	r.codecs[reflect.TypeFor[time.Time]()] = timeCodec{}
	r.codecs[reflect.TypeFor[geo.Point]()] = pointCodec{}
	r.codecs[reflect.TypeFor[uuid.UUID]()] = textCodec{}
	r.codecs[reflect.TypeFor[ulid.ULID]()] = textCodec{}
	return r
}

// Register installs a codec for t, replacing any built-in one.
func (r *Registry) Register(t reflect.Type, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[t] = c
}

// RegisterRaw marks t to be stored opaquely as a single _raw entry.
func (r *Registry) RegisterRaw(t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw[t] = rawCodec{}
}

// Raw returns the whole-record codec for t, if t was registered with RegisterRaw.
func (r *Registry) Raw(t reflect.Type) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.raw[t]
	return c, ok
}

// Lookup returns the scalar codec for t.
func (r *Registry) Lookup(t reflect.Type) (Codec, bool) {
	r.mu.RLock()
	c, ok := r.codecs[t]
	r.mu.RUnlock()
	if ok {
		return c, true
	}
	if isText(t) {
		return textCodec{}, true
	}
	return Kind(t)
}

// Kind returns the codec for t's underlying kind, ignoring registered and
// text codecs. Enums stored by ordinal use it.
func Kind(t reflect.Type) (Codec, bool) {
	switch t.Kind() {
	case reflect.String:
		return stringCodec{}, true
	case reflect.Bool:
		return boolCodec{}, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intCodec{}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return uintCodec{}, true
	case reflect.Float32, reflect.Float64:
		return floatCodec{}, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return bytesCodec{}, true
		}
	}
	return nil, false
}

// Classify returns the storage class of t. Pointers are classified by their
// element type.
func (r *Registry) Classify(t reflect.Type) Class {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if _, ok := r.Lookup(t); ok {
		return Scalar
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return Collection
	case reflect.Map:
		if IsSet(t) {
			return Collection
		}
		return Map
	case reflect.Struct:
		return Entity
	case reflect.Interface:
		return Dynamic
	}
	return Unsupported
}

// IsSet reports whether t is a map used as a set (map[K]struct{}).
func IsSet(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Elem() == emptyStructType
}

// ElemType returns the element type of a collection type. For sets it is
// the key type.
func ElemType(t reflect.Type) reflect.Type {
	if IsSet(t) {
		return t.Key()
	}
	return t.Elem()
}

// IsText reports whether t is stored through encoding.TextMarshaler.
func IsText(t reflect.Type) bool {
	return isText(t)
}

func isText(t reflect.Type) bool {
	return t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalerType)
}
