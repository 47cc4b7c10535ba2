package omhash

import (
	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/convert"
	"github.com/kailas-cloud/omhash/internal/embedding"
	"github.com/kailas-cloud/omhash/internal/geo"
	"github.com/kailas-cloud/omhash/internal/mapping"
	"github.com/kailas-cloud/omhash/internal/query"
	"github.com/kailas-cloud/omhash/internal/repository"
	"github.com/kailas-cloud/omhash/internal/schema"
)

// Geo types.
type (
	// Point is a longitude/latitude pair.
	Point = geo.Point
	// Unit is a distance unit accepted by geo predicates.
	Unit = geo.Unit
)

// Distance units.
const (
	Meters     = geo.Meters
	Kilometers = geo.Kilometers
	Miles      = geo.Miles
	Feet       = geo.Feet
)

// NewPoint returns the point at lon, lat.
func NewPoint(lon, lat float64) Point { return geo.NewPoint(lon, lat) }

// Distance returns the great-circle distance between p and q in meters.
func Distance(p, q Point) float64 { return geo.Distance(p, q) }

// Mapping types.
type (
	// Codec converts a scalar value to and from its stored bytes.
	Codec = codec.Codec
	// EntityOption configures a registered type.
	EntityOption = mapping.EntityOption
	// CreationMode controls index creation on Register and EnsureIndex.
	CreationMode = mapping.CreationMode
	// Schema is the index schema inferred for a registered type.
	Schema = schema.Schema
	// IndexOutcome reports what EnsureIndex did.
	IndexOutcome = schema.Outcome
	// Change is one entry of a partial update.
	Change = convert.Change
)

// Creation modes.
const (
	SkipIfExist     = mapping.SkipIfExist
	DropAndRecreate = mapping.DropAndRecreate
	SkipAlways      = mapping.SkipAlways
)

// Entity options.
var (
	WithKeyspace     = mapping.WithKeyspace
	WithIndexName    = mapping.WithIndexName
	WithTTL          = mapping.WithTTL
	WithLanguage     = mapping.WithLanguage
	WithFilter       = mapping.WithFilter
	WithCreationMode = mapping.WithCreationMode
)

// Set changes the value at path. Setting a nil value removes the path.
func Set(path string, value any) Change { return Change{Path: path, Value: value} }

// Unset removes path and everything below it.
func Unset(path string) Change { return Change{Path: path, Delete: true} }

// Query types.
type (
	// Predicate is a composable search condition.
	Predicate = query.Predicate
	// TagField builds predicates over tag fields.
	TagField = query.TagField
	// NumericField builds predicates over numeric fields.
	NumericField = query.NumericField
	// TextField builds predicates over full-text fields.
	TextField = query.TextField
	// GeoField builds predicates over geo fields.
	GeoField = query.GeoField
)

// KNN clause types.
type (
	// VectorField builds KNN clauses over a vector field.
	VectorField = query.VectorField
	// KNN is a k-nearest-neighbour clause for SearchBuilder.Nearest.
	KNN = query.KNN
)

// Vector returns the KNN factory for a vector field.
func Vector(field string) VectorField { return query.Vector(field) }

// Tag returns the predicate factory for a tag field.
func Tag(field string) TagField { return query.Tag(field) }

// Numeric returns the predicate factory for a numeric field.
func Numeric(field string) NumericField { return query.Numeric(field) }

// Text returns the predicate factory for a full-text field.
func Text(field string) TextField { return query.Text(field) }

// Geo returns the predicate factory for a geo field.
func Geo(field string) GeoField { return query.Geo(field) }

// And matches when every predicate matches.
func And(ps ...Predicate) Predicate { return query.AllOf(ps...) }

// Or matches when any predicate matches.
func Or(ps ...Predicate) Predicate { return query.AnyOf(ps...) }

// Embedding types.
type (
	// Embedder turns text into a vector.
	Embedder = embedding.Embedder
	// EmbeddingResult carries a vector and its token usage.
	EmbeddingResult = embedding.Result
	// EmbedderFunc adapts a function to Embedder.
	EmbedderFunc = embedding.Func
	// OpenAIConfig configures an OpenAI-compatible embedder.
	OpenAIConfig = embedding.Config
	// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
	OpenAIEmbedder = embedding.OpenAI
)

// NewOpenAIEmbedder creates an embedder for an OpenAI-compatible API.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder { return embedding.NewOpenAI(cfg) }

// Errors.
var (
	ErrNotFound            = repository.ErrNotFound
	ErrMissingID           = repository.ErrMissingID
	ErrNoEmbedder          = repository.ErrNoEmbedder
	ErrTypeMismatch        = convert.ErrTypeMismatch
	ErrMalformedPath       = convert.ErrMalformedPath
	ErrMaxDepth            = convert.ErrMaxDepth
	ErrFieldKind           = query.ErrFieldKind
	ErrUnresolvedReference = convert.ErrUnresolvedReference
)
