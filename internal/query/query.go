package query

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/omhash/internal/codec"
)

// DefaultLimit is the page size used when none is set.
const DefaultLimit = 10

// VectorField builds KNN clauses over a vector field.
type VectorField struct{ name string }

// Vector returns the KNN factory for a vector field.
func Vector(field string) VectorField { return VectorField{name: field} }

// KNN asks for the k nearest neighbours of vec.
func (v VectorField) KNN(k int, vec []float32) *KNN {
	return &KNN{Field: v.name, K: k, Vector: vec}
}

// KNN is a k-nearest-neighbour clause. Alias and ScoreAlias are filled in
// when the query is built.
type KNN struct {
	Field      string
	K          int
	Vector     []float32
	Alias      string
	ScoreAlias string
}

// ScoreAlias returns the synthetic distance alias for a vector alias.
func ScoreAlias(alias string) string {
	return "__" + alias + "_score"
}

// Query is a rendered search request.
type Query struct {
	Root   Node
	KNN    *KNN
	SortBy string
	Desc   bool
	Offset int
	Limit  int
	Return []string
}

// String renders the query string of FT.SEARCH.
func (q *Query) String() string {
	root := q.Root
	if root == nil {
		root = All
	}
	if q.KNN == nil {
		return root.String()
	}
	knn := "[KNN " + strconv.Itoa(q.KNN.K) + " @" + q.KNN.Alias + " $BLOB AS " + q.KNN.ScoreAlias + "]"
	if root == All {
		return "*=>" + knn
	}
	return "(" + root.String() + ")=>" + knn
}

// Params returns the PARAMS name/value pairs of the query.
func (q *Query) Params() []string {
	if q.KNN == nil {
		return nil
	}
	return []string{"BLOB", string(codec.VectorToBytes(q.KNN.Vector))}
}

// Builder assembles a Query from predicates.
type Builder struct {
	scope   Scope
	preds   []Predicate
	knn     *KNN
	sort    string
	byScore bool
	desc    bool
	offset  int
	limit   int
	ret     []string
}

// NewBuilder creates a builder over scope.
func NewBuilder(scope Scope) *Builder {
	return &Builder{scope: scope, limit: DefaultLimit}
}

// Where adds predicates. Multiple predicates are combined with and.
func (b *Builder) Where(ps ...Predicate) *Builder {
	b.preds = append(b.preds, ps...)
	return b
}

// Nearest attaches a KNN clause.
func (b *Builder) Nearest(knn *KNN) *Builder {
	b.knn = knn
	return b
}

// SortBy orders results by a declared field.
func (b *Builder) SortBy(field string, desc bool) *Builder {
	b.sort, b.byScore, b.desc = field, false, desc
	return b
}

// SortByScore orders results by KNN distance, nearest first.
func (b *Builder) SortByScore() *Builder {
	b.sort, b.byScore, b.desc = "", true, false
	return b
}

// Page sets offset and limit.
func (b *Builder) Page(offset, limit int) *Builder {
	b.offset, b.limit = offset, limit
	return b
}

// Return restricts the returned fields.
func (b *Builder) Return(fields ...string) *Builder {
	b.ret = append(b.ret, fields...)
	return b
}

// Build renders the predicates into a Query.
func (b *Builder) Build() (*Query, error) {
	if b.offset < 0 || b.limit < 0 {
		return nil, errors.New("offset and limit must not be negative")
	}
	root := All
	for _, p := range b.preds {
		var err error
		if root, err = p.Apply(root, b.scope); err != nil {
			return nil, err
		}
	}

	q := &Query{Root: root, Desc: b.desc, Offset: b.offset, Limit: b.limit, Return: b.ret}

	if b.knn != nil {
		knn, err := b.resolveKNN()
		if err != nil {
			return nil, err
		}
		q.KNN = knn
	}

	switch {
	case b.byScore && q.KNN != nil:
		q.SortBy = q.KNN.ScoreAlias
	case b.sort != "" && b.scope.Fields != nil:
		f, ok := b.scope.Fields.Lookup(b.sort)
		if !ok {
			return nil, fmt.Errorf("sort by unknown field %q", b.sort)
		}
		q.SortBy = f.Alias
	}
	return q, nil
}

func (b *Builder) resolveKNN() (*KNN, error) {
	if b.scope.Fields == nil {
		return nil, nil
	}
	f, ok := b.scope.Fields.Lookup(b.knn.Field)
	if !ok {
		return nil, nil
	}
	if f.Kind != KindVector {
		return nil, fmt.Errorf("%w: %s is %s, not vector", ErrFieldKind, b.knn.Field, f.Kind)
	}
	if b.knn.K <= 0 {
		return nil, errors.New("k must be positive")
	}
	if len(b.knn.Vector) == 0 {
		return nil, errors.New("vector is required")
	}
	knn := *b.knn
	knn.Alias = f.Alias
	knn.ScoreAlias = ScoreAlias(f.Alias)
	return &knn, nil
}
