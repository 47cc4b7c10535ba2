package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// StorageHash stores documents as Redis hashes. It is the only storage
// type the hash mapper writes.
const StorageHash = "HASH"

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

const (
	// DistanceL2 is Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
	// DistanceIP is inner product distance.
	DistanceIP DistanceMetric = "IP"
	// DistanceCosine is cosine distance.
	DistanceCosine DistanceMetric = "COSINE"
)

// VectorAlgorithm selects the indexing algorithm for vector fields in FT.CREATE.
type VectorAlgorithm string

const (
	// VectorHNSW uses the HNSW algorithm.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat uses the FLAT (brute-force) algorithm.
	VectorFlat VectorAlgorithm = "FLAT"
)

// VectorFloat32 is the element type of every stored vector.
const VectorFloat32 = "FLOAT32"

// IndexFieldType enumerates supported FT index field types.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is a tag field.
	IndexFieldTag
	// IndexFieldText is a text field.
	IndexFieldText
	// IndexFieldVector is a vector field.
	IndexFieldVector
	// IndexFieldGeo is a lon,lat field.
	IndexFieldGeo
)

var fieldTypeNames = [...]string{"NUMERIC", "TAG", "TEXT", "VECTOR", "GEO"}

func (t IndexFieldType) String() string {
	if int(t) >= 0 && int(t) < len(fieldTypeNames) {
		return fieldTypeNames[t]
	}
	return "UNKNOWN"
}

// MarshalText renders the FT.CREATE keyword.
func (t IndexFieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses an FT.CREATE keyword.
func (t *IndexFieldType) UnmarshalText(b []byte) error {
	for i, name := range fieldTypeNames {
		if strings.EqualFold(name, string(b)) {
			*t = IndexFieldType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown index field type %q", b)
}

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name  string
	Alias string // AS alias in FT.CREATE SCHEMA
	Type  IndexFieldType

	Sortable bool
	NoIndex  bool

	// TAG options
	TagSeparator     string
	TagCaseSensitive bool

	// TEXT options
	TextWeight   float64
	TextNoStem   bool
	TextPhonetic string

	// VECTOR options
	VectorAlgo        VectorAlgorithm
	VectorDim         int
	VectorDistance    DistanceMetric
	VectorInitialCap  int
	VectorM           int     // HNSW M parameter: max edges per node (default 16)
	VectorEFConstruct int     // HNSW EF_CONSTRUCTION: build-time dynamic list size (default 200)
	VectorEFRuntime   int     // HNSW EF_RUNTIME: query-time dynamic list size (default 10)
	VectorEpsilon     float64 // HNSW EPSILON: range query boundary factor (default 0.01)
	VectorBlockSize   int     // FLAT BLOCK_SIZE
}

// AliasOrName returns the name the field is queried by.
func (f *IndexField) AliasOrName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// IndexDefinition is a complete FT index definition used by FT.CREATE.
type IndexDefinition struct {
	Name       string
	Prefixes   []string
	Filter     string
	Language   string
	ScoreField string
	Fields     []IndexField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool)
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return errors.New("field name is required at index " + strconv.Itoa(i))
		}
		key := f.AliasOrName()
		if seen[key] {
			return errors.New("duplicate field name: " + key)
		}
		seen[key] = true

		if f.Type == IndexFieldVector && f.VectorDim <= 0 {
			return errors.New("vector field requires positive DIM")
		}
	}

	return nil
}

// Field returns the field queried by alias.
func (idx *IndexDefinition) Field(alias string) (*IndexField, bool) {
	for i := range idx.Fields {
		if idx.Fields[i].AliasOrName() == alias {
			return &idx.Fields[i], true
		}
	}
	return nil, false
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
