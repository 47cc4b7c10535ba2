package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/omhash/internal/db"
)

// TagKey is the struct tag read by the mapper.
const TagKey = "om"

// IndexKind selects the index field type requested by a property.
type IndexKind int

// Index kinds. IndexAuto picks the kind from the property's storage class.
const (
	IndexNone IndexKind = iota
	IndexAuto
	IndexTag
	IndexNumeric
	IndexText
	IndexGeo
	IndexVector
)

var indexKindNames = [...]string{"none", "auto", "tag", "numeric", "text", "geo", "vector"}

func (k IndexKind) String() string {
	if int(k) >= 0 && int(k) < len(indexKindNames) {
		return indexKindNames[k]
	}
	return "unknown"
}

// VectorOptions configures a VECTOR field.
type VectorOptions struct {
	Algo        db.VectorAlgorithm
	Dim         int
	Distance    db.DistanceMetric
	InitialCap  int
	M           int
	EFConstruct int
	EFRuntime   int
	Epsilon     float64
	BlockSize   int
}

// Options is the parsed form of an om struct tag.
type Options struct {
	Name string

	ID        bool
	TTL       bool
	Reference bool
	Ordinal   bool

	Kind          IndexKind
	Alias         string
	Sortable      bool
	NoIndex       bool
	Separator     string
	CaseSensitive bool

	Weight   float64
	NoStem   bool
	Phonetic string

	Vector    VectorOptions
	Vectorize string
}

// Indexed reports whether the property carries index metadata.
func (o Options) Indexed() bool {
	return o.Kind != IndexNone
}

// ParseTag parses `om:"name,opt,opt=value"`. An empty name keeps the Go
// field name.
func ParseTag(tag string) (Options, error) {
	parts := strings.Split(tag, ",")
	o := Options{Name: strings.TrimSpace(parts[0])}
	for _, raw := range parts[1:] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, val, hasVal := strings.Cut(raw, "=")
		if err := o.apply(key, val, hasVal); err != nil {
			return Options{}, fmt.Errorf("option %q: %w", raw, err)
		}
	}
	return o, nil
}

//nolint:gocyclo // flat option switch
func (o *Options) apply(key, val string, hasVal bool) error {
	flag := func(dst *bool) error {
		if hasVal {
			return fmt.Errorf("takes no value")
		}
		*dst = true
		return nil
	}
	kind := func(k IndexKind) error {
		if hasVal {
			return fmt.Errorf("takes no value")
		}
		if o.Kind != IndexNone && o.Kind != k {
			return fmt.Errorf("conflicts with %s", o.Kind)
		}
		o.Kind = k
		return nil
	}
	need := func() error {
		if !hasVal || val == "" {
			return fmt.Errorf("requires a value")
		}
		return nil
	}

	switch key {
	case "id":
		return flag(&o.ID)
	case "ttl":
		return flag(&o.TTL)
	case "ref", "reference":
		return flag(&o.Reference)
	case "ordinal":
		return flag(&o.Ordinal)
	case "indexed", "nested":
		return kind(IndexAuto)
	case "tag":
		return kind(IndexTag)
	case "numeric":
		return kind(IndexNumeric)
	case "text", "searchable":
		return kind(IndexText)
	case "geo":
		return kind(IndexGeo)
	case "vector":
		return kind(IndexVector)
	case "sortable":
		return flag(&o.Sortable)
	case "noindex":
		return flag(&o.NoIndex)
	case "casesensitive":
		return flag(&o.CaseSensitive)
	case "nostem":
		return flag(&o.NoStem)
	case "alias":
		if err := need(); err != nil {
			return err
		}
		o.Alias = val
	case "separator":
		if err := need(); err != nil {
			return err
		}
		o.Separator = val
	case "phonetic":
		if err := need(); err != nil {
			return err
		}
		o.Phonetic = val
	case "vectorize":
		if err := need(); err != nil {
			return err
		}
		o.Vectorize = val
	case "weight":
		return parseFloat(val, &o.Weight)
	case "epsilon":
		return parseFloat(val, &o.Vector.Epsilon)
	case "dim":
		return parseInt(val, &o.Vector.Dim)
	case "cap":
		return parseInt(val, &o.Vector.InitialCap)
	case "m":
		return parseInt(val, &o.Vector.M)
	case "ef":
		return parseInt(val, &o.Vector.EFConstruct)
	case "efruntime":
		return parseInt(val, &o.Vector.EFRuntime)
	case "blocksize":
		return parseInt(val, &o.Vector.BlockSize)
	case "algo":
		switch a := db.VectorAlgorithm(strings.ToUpper(val)); a {
		case db.VectorHNSW, db.VectorFlat:
			o.Vector.Algo = a
		default:
			return fmt.Errorf("unknown algorithm")
		}
	case "distance":
		switch d := db.DistanceMetric(strings.ToUpper(val)); d {
		case db.DistanceCosine, db.DistanceL2, db.DistanceIP:
			o.Vector.Distance = d
		default:
			return fmt.Errorf("unknown distance metric")
		}
	default:
		return fmt.Errorf("unknown option")
	}
	return nil
}

func parseInt(s string, dst *int) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("not a non-negative integer")
	}
	*dst = n
	return nil
}

func parseFloat(s string, dst *float64) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return fmt.Errorf("not a non-negative number")
	}
	*dst = f
	return nil
}
