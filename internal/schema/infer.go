package schema

import (
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omhash/internal/bucket"
	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/db"
	"github.com/kailas-cloud/omhash/internal/geo"
	"github.com/kailas-cloud/omhash/internal/mapping"
)

var (
	pointType    = reflect.TypeFor[geo.Point]()
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
)

// inference is one depth-first walk over a type's properties.
type inference struct {
	mapping  *mapping.Registry
	codecs   *codec.Registry
	logger   *zap.Logger
	maxDepth int
	hnsw     HNSWDefaults

	fields   []Field
	aliases  map[string]string // alias -> declared field
	visiting map[reflect.Type]bool
}

func infer(m *mapping.Registry, e *mapping.Entity, logger *zap.Logger, maxDepth int, hnsw HNSWDefaults) []Field {
	in := &inference{
		mapping:  m,
		codecs:   m.Codecs(),
		logger:   logger.With(zap.String("type", e.Type.String())),
		maxDepth: maxDepth,
		hnsw:     hnsw,
		aliases:  make(map[string]string),
		visiting: map[reflect.Type]bool{e.Type: true},
	}
	in.entity(e, "", "", "", 0)
	in.identifier(e)
	return in.fields
}

// entity visits the indexed properties of e. path is the stored prefix,
// declared the dotted field name prefix and aliasPrefix the alias prefix.
func (in *inference) entity(e *mapping.Entity, path, declared, aliasPrefix string, depth int) {
	for _, p := range e.Properties {
		if !p.Options.Indexed() {
			continue
		}
		in.property(p, bucket.Join(path, p.Name), bucket.Join(declared, p.Name), aliasPrefix, depth)
	}
}

func (in *inference) property(p *mapping.Property, path, declared, aliasPrefix string, depth int) {
	alias := p.Options.Alias
	if alias == "" {
		alias = p.Name
		if aliasPrefix != "" {
			alias = aliasPrefix + "_" + p.Name
		}
	}

	// Non-joined collections index every element.
	valuePath, elem, class := path, p.Elem(), p.Class
	if p.Class == codec.Collection && !p.TagJoined() && !p.Options.Reference {
		valuePath = path + "." + bucket.AllElements
		elem = deref(codec.ElemType(p.Elem()))
		class = in.codecs.Classify(elem)
	}

	f := Field{
		IndexField: db.IndexField{Name: valuePath, Alias: alias, NoIndex: p.Options.NoIndex},
		Property:   declared,
		Class:      class,
	}

	switch {
	case p.Options.Reference:
		f.Name = path
		if p.Class == codec.Collection {
			f.Name = path + "." + bucket.AllElements
		}
		in.tag(&f, "|", false, p.Class != codec.Collection)
		f.Class = codec.Entity
		in.add(f)
		return

	case p.Options.Kind == mapping.IndexVector:
		v := p.Options.Vector
		if v.Dim <= 0 {
			in.skip(declared, "vector without dim")
			return
		}
		f.Name, f.Class = path, codec.Scalar
		f.Type = db.IndexFieldVector
		f.VectorAlgo = v.Algo
		if f.VectorAlgo == "" {
			f.VectorAlgo = db.VectorHNSW
		}
		f.VectorDistance = v.Distance
		if f.VectorDistance == "" {
			f.VectorDistance = db.DistanceCosine
		}
		f.VectorDim = v.Dim
		f.VectorInitialCap = v.InitialCap
		if f.VectorAlgo == db.VectorHNSW {
			f.VectorM, f.VectorEFConstruct, f.VectorEFRuntime, f.VectorEpsilon = v.M, v.EFConstruct, v.EFRuntime, v.Epsilon
			if f.VectorM == 0 {
				f.VectorM = in.hnsw.M
			}
			if f.VectorEFConstruct == 0 {
				f.VectorEFConstruct = in.hnsw.EFConstruct
			}
		} else {
			f.VectorBlockSize = v.BlockSize
		}
		in.add(f)
		return

	case p.TagJoined():
		f.Name, f.Class = path, codec.Collection
		in.tag(&f, p.Separator(), p.Options.CaseSensitive, p.Options.Sortable)
		in.add(f)
		return
	}

	switch p.Options.Kind {
	case mapping.IndexTag:
		if class != codec.Scalar {
			in.skip(declared, "tag on "+class.String())
			return
		}
		in.tag(&f, p.Separator(), p.Options.CaseSensitive, p.Options.Sortable)
	case mapping.IndexNumeric:
		if class != codec.Scalar || !(p.Options.Ordinal || isNumeric(elem)) {
			in.skip(declared, "numeric on "+elem.String())
			return
		}
		f.Type, f.Sortable = db.IndexFieldNumeric, p.Options.Sortable
	case mapping.IndexGeo:
		if elem != pointType {
			in.skip(declared, "geo on "+elem.String())
			return
		}
		f.Type = db.IndexFieldGeo
	case mapping.IndexText:
		if class != codec.Scalar || (elem.Kind() != reflect.String && !codec.IsText(elem)) {
			in.skip(declared, "text on "+elem.String())
			return
		}
		in.text(&f, p.Options)
	case mapping.IndexAuto:
		switch class {
		case codec.Scalar:
			in.auto(&f, p, elem)
		case codec.Entity:
			in.nested(elem, valuePath, declared, alias, depth)
			return
		default:
			in.skip(declared, "cannot index "+class.String())
			return
		}
	}
	in.add(f)
}

// auto resolves an indexed scalar by its type.
func (in *inference) auto(f *Field, p *mapping.Property, t reflect.Type) {
	switch {
	case p.Options.Ordinal:
		f.Type = db.IndexFieldNumeric
	case t == pointType:
		f.Type = db.IndexFieldGeo
		return
	case isNumeric(t):
		f.Type = db.IndexFieldNumeric
	default:
		in.tag(f, p.Separator(), p.Options.CaseSensitive, p.Options.Sortable)
		return
	}
	f.Sortable = p.Options.Sortable
}

func (in *inference) nested(t reflect.Type, path, declared, aliasPrefix string, depth int) {
	if depth+1 > in.maxDepth {
		in.skip(declared, "nested too deep")
		return
	}
	if in.visiting[t] {
		in.skip(declared, "recursive type "+t.String())
		return
	}
	e, err := in.mapping.Entity(t)
	if err != nil {
		in.skip(declared, err.Error())
		return
	}
	in.visiting[t] = true
	in.entity(e, path, declared, aliasPrefix, depth+1)
	delete(in.visiting, t)
}

// identifier indexes the id when nothing else claimed it.
func (in *inference) identifier(e *mapping.Entity) {
	id := e.ID
	if id == nil || id.Options.Indexed() {
		return
	}
	alias := id.Options.Alias
	if alias == "" {
		alias = id.Name
	}
	if _, taken := in.aliases[alias]; taken {
		return
	}
	f := Field{
		IndexField: db.IndexField{Name: id.Name, Alias: alias},
		Property:   id.Name,
		Class:      codec.Scalar,
	}
	if isNumeric(id.Elem()) {
		f.Type, f.Sortable = db.IndexFieldNumeric, true
	} else {
		in.tag(&f, "|", false, false)
	}
	in.add(f)
}

func (in *inference) tag(f *Field, sep string, caseSensitive, sortable bool) {
	f.Type = db.IndexFieldTag
	f.TagSeparator = sep
	f.TagCaseSensitive = caseSensitive
	f.Sortable = sortable
}

func (in *inference) text(f *Field, o mapping.Options) {
	f.Type = db.IndexFieldText
	f.TextWeight = o.Weight
	f.TextNoStem = o.NoStem
	f.TextPhonetic = o.Phonetic
	f.Sortable = o.Sortable
}

func (in *inference) add(f Field) {
	alias := f.AliasOrName()
	if other, taken := in.aliases[alias]; taken {
		in.logger.Warn("index field skipped",
			zap.String("field", f.Property),
			zap.Error(fmt.Errorf("%w: alias %q already used by %s", ErrUnsupportedField, alias, other)),
		)
		return
	}
	in.aliases[alias] = f.Property
	in.fields = append(in.fields, f)
}

func (in *inference) skip(declared, reason string) {
	in.logger.Warn("index field skipped",
		zap.String("field", declared),
		zap.Error(fmt.Errorf("%w: %s", ErrUnsupportedField, reason)),
	)
}

// isNumeric reports whether t is stored as a number: numeric kinds, time and
// durations. Types stored by name are not numeric.
func isNumeric(t reflect.Type) bool {
	if t == timeType || t == durationType {
		return true
	}
	if codec.IsText(t) {
		return false
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
