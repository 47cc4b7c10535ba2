// Package schema derives secondary-index schemas from mapped struct types.
//
// The Engine walks a type's mapping tables once and produces the ordered
// index fields plus the alias table used by the query builder. It never
// talks to the store; Indexer applies a schema through db.IndexManager.
package schema

import (
	"errors"
	"reflect"
	"strings"

	"github.com/kailas-cloud/omhash/internal/bucket"
	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/db"
	"github.com/kailas-cloud/omhash/internal/mapping"
	"github.com/kailas-cloud/omhash/internal/query"
)

// Sentinel errors. Both are logged rather than returned by the Engine.
var (
	ErrUnsupportedField = errors.New("schema: field cannot be indexed")
	ErrIndexSkipped     = errors.New("schema: index creation skipped")
)

// Field is one index field descriptor.
type Field struct {
	db.IndexField
	// Property is the declared dotted field name, without element markers.
	Property string
	// Class is the storage class of the indexed value.
	Class codec.Class
}

// MultiValue reports whether the field indexes every element of a collection.
func (f *Field) MultiValue() bool {
	return strings.Contains(f.Name, bucket.AllElements)
}

// Schema is the immutable index schema of one registered type.
type Schema struct {
	Type    reflect.Type
	Options mapping.EntityOptions
	Fields  []Field

	byProperty map[string]int
	byAlias    map[string]int
}

func newSchema(t reflect.Type, opts mapping.EntityOptions, fields []Field) *Schema {
	s := &Schema{
		Type:       t,
		Options:    opts,
		Fields:     fields,
		byProperty: make(map[string]int, len(fields)),
		byAlias:    make(map[string]int, len(fields)),
	}
	for i := range fields {
		if _, dup := s.byProperty[fields[i].Property]; !dup {
			s.byProperty[fields[i].Property] = i
		}
		s.byAlias[fields[i].AliasOrName()] = i
	}
	return s
}

// Keyspace returns the key namespace of the type.
func (s *Schema) Keyspace() string { return s.Options.Keyspace }

// IndexName returns the search index name.
func (s *Schema) IndexName() string { return s.Options.IndexName }

// Field returns the descriptor of a declared field name or alias.
func (s *Schema) Field(name string) (*Field, bool) {
	if i, ok := s.byProperty[name]; ok {
		return &s.Fields[i], true
	}
	if i, ok := s.byAlias[name]; ok {
		return &s.Fields[i], true
	}
	return nil, false
}

// Alias returns the query alias of a declared field, falling back to the
// field name itself.
func (s *Schema) Alias(field string) string {
	if f, ok := s.Field(field); ok {
		return f.AliasOrName()
	}
	return field
}

// Aliases returns the declared field name to alias table.
func (s *Schema) Aliases() map[string]string {
	out := make(map[string]string, len(s.Fields))
	for i := range s.Fields {
		out[s.Fields[i].Property] = s.Fields[i].AliasOrName()
	}
	return out
}

// Lookup implements query.Fields.
func (s *Schema) Lookup(field string) (query.Field, bool) {
	f, ok := s.Field(field)
	if !ok {
		return query.Field{}, false
	}
	return query.Field{
		Alias:         f.AliasOrName(),
		Kind:          queryKind(f.Type),
		CaseSensitive: f.TagCaseSensitive,
	}, true
}

// Definition returns the FT.CREATE definition of the schema.
func (s *Schema) Definition() *db.IndexDefinition {
	return s.builder().Definition()
}

func (s *Schema) builder() *db.IndexBuilder {
	b := db.NewIndex(s.Options.IndexName).
		Prefix(s.Options.Prefix()).
		Filter(s.Options.Filter).
		Language(s.Options.Language)
	for i := range s.Fields {
		b.Field(s.Fields[i].IndexField)
	}
	return b
}

func queryKind(t db.IndexFieldType) query.Kind {
	switch t {
	case db.IndexFieldNumeric:
		return query.KindNumeric
	case db.IndexFieldText:
		return query.KindText
	case db.IndexFieldGeo:
		return query.KindGeo
	case db.IndexFieldVector:
		return query.KindVector
	default:
		return query.KindTag
	}
}
