package omhash

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/omhash/internal/query"
)

// DefaultLimit is the page size when Page is not called.
const DefaultLimit = query.DefaultLimit

// Hit is a typed search result.
type Hit[T any] struct {
	ID   string
	Item *T
	// Score is the vector distance for KNN queries, 0 otherwise.
	Score float64
}

// Result is one page of typed hits.
type Result[T any] struct {
	// Total counts every match, ignoring paging.
	Total int
	Hits  []Hit[T]
}

// Items returns the records of every hit.
func (r *Result[T]) Items() []*T {
	out := make([]*T, len(r.Hits))
	for i := range r.Hits {
		out[i] = r.Hits[i].Item
	}
	return out
}

// SearchBuilder is a fluent builder for typed search queries.
type SearchBuilder[T any] struct {
	repo *Repository[T]
	b    *query.Builder

	// Text KNN, embedded when the query runs.
	similarField string
	similarK     int
	similarText  string

	keep []func(*T) bool
}

func newSearchBuilder[T any](r *Repository[T]) *SearchBuilder[T] {
	scope := query.Scope{Fields: r.schema, GeoEquality: r.client.cfg.geoEquality}
	return &SearchBuilder[T]{repo: r, b: query.NewBuilder(scope)}
}

// Where adds predicates. Multiple calls and predicates are combined with and.
func (s *SearchBuilder[T]) Where(ps ...Predicate) *SearchBuilder[T] {
	s.b.Where(ps...)
	return s
}

// SortBy orders results by a sortable field.
func (s *SearchBuilder[T]) SortBy(field string, desc bool) *SearchBuilder[T] {
	s.b.SortBy(field, desc)
	return s
}

// Page sets offset and limit. The default is the first DefaultLimit hits.
func (s *SearchBuilder[T]) Page(offset, limit int) *SearchBuilder[T] {
	s.b.Page(offset, limit)
	return s
}

// KNN returns the k records nearest to vec on a vector field, nearest first.
func (s *SearchBuilder[T]) KNN(field string, k int, vec []float32) *SearchBuilder[T] {
	return s.Nearest(query.Vector(field).KNN(k, vec))
}

// Nearest adds a KNN clause built with Vector, nearest first.
func (s *SearchBuilder[T]) Nearest(knn *KNN) *SearchBuilder[T] {
	s.b.Nearest(knn).SortByScore()
	return s
}

// Filter drops decoded hits for which keep returns false. It runs on the
// returned page, so a page may come back short and Total is not adjusted.
func (s *SearchBuilder[T]) Filter(keep func(*T) bool) *SearchBuilder[T] {
	s.keep = append(s.keep, keep)
	return s
}

// Similar is KNN over the embedding of text. It needs WithEmbedder.
func (s *SearchBuilder[T]) Similar(field string, k int, text string) *SearchBuilder[T] {
	s.similarField, s.similarK, s.similarText = field, k, text
	return s
}

// Query renders the query string without running it.
func (s *SearchBuilder[T]) Query() (string, error) {
	q, err := s.b.Build()
	if err != nil {
		return "", fmt.Errorf("omhash: build query: %w", err)
	}
	return q.String(), nil
}

// Run executes the query and decodes every hit.
func (s *SearchBuilder[T]) Run(ctx context.Context) (*Result[T], error) {
	if s.similarField != "" {
		if err := s.embedSimilar(ctx); err != nil {
			return nil, err
		}
	}
	q, err := s.b.Build()
	if err != nil {
		return nil, fmt.Errorf("omhash: build query: %w", err)
	}
	raw, err := s.repo.repo.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	res := &Result[T]{Total: raw.Total, Hits: make([]Hit[T], 0, len(raw.Hits))}
	for _, h := range raw.Hits {
		item, ok := h.Record.(*T)
		if !ok {
			return nil, fmt.Errorf("omhash: hit %s decoded as %T", h.ID, h.Record)
		}
		if !s.kept(item) {
			continue
		}
		res.Hits = append(res.Hits, Hit[T]{ID: h.ID, Item: item, Score: h.Score})
	}
	return res, nil
}

func (s *SearchBuilder[T]) kept(item *T) bool {
	for _, keep := range s.keep {
		if !keep(item) {
			return false
		}
	}
	return true
}

// First runs the query with a limit of one and returns ErrNotFound when
// nothing matches.
func (s *SearchBuilder[T]) First(ctx context.Context) (*T, error) {
	s.b.Page(0, 1)
	res, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Hits) == 0 {
		return nil, ErrNotFound
	}
	return res.Hits[0].Item, nil
}

func (s *SearchBuilder[T]) embedSimilar(ctx context.Context) error {
	emb := s.repo.client.embedder
	if emb == nil {
		return ErrNoEmbedder
	}
	if s.similarText == "" {
		return errors.New("omhash: similar text is empty")
	}
	r, err := emb.Embed(ctx, s.similarText)
	if err != nil {
		return fmt.Errorf("omhash: embed query: %w", err)
	}
	s.Nearest(query.Vector(s.similarField).KNN(s.similarK, r.Embedding))
	s.similarField = ""
	return nil
}
