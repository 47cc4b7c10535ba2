package repository

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/convert"
	"github.com/kailas-cloud/omhash/internal/db"
	"github.com/kailas-cloud/omhash/internal/db/memory"
	"github.com/kailas-cloud/omhash/internal/embedding"
	"github.com/kailas-cloud/omhash/internal/mapping"
	"github.com/kailas-cloud/omhash/internal/query"
	"github.com/kailas-cloud/omhash/internal/schema"
)

type Author struct {
	ID   string `om:"id,id"`
	Name string `om:"name,indexed"`
}

type Article struct {
	ID        string        `om:"id,id"`
	Title     string        `om:"title,text"`
	Body      string        `om:"body"`
	Views     int           `om:"views,indexed,sortable"`
	Tags      []string      `om:"tags,indexed"`
	Author    *Author       `om:"author,ref"`
	Embedding []float32     `om:"embedding,vector,dim=2,distance=l2,vectorize=body"`
	Expiry    time.Duration `om:"expiry,ttl"`
}

// lengthEmbedder maps text to {len(text), 1}.
var lengthEmbedder = embedding.Func(func(_ context.Context, text string) (embedding.Result, error) {
	return embedding.Result{Embedding: []float32{float32(len(text)), 1}}, nil
})

type fixture struct {
	articles *Repository
	authors  *Repository
	store    *memory.Store
	schema   *schema.Schema
}

func newFixture(t *testing.T, opts []mapping.EntityOption, repoOpts ...Option) *fixture {
	t.Helper()
	m := mapping.NewRegistry(codec.NewRegistry())
	engine := schema.NewEngine(m, nil)
	st := memory.NewStore()
	conv := convert.New(m, convert.WithResolver(NewResolver(st)))

	as, err := engine.Register(reflect.TypeFor[Article](), opts...)
	if err != nil {
		t.Fatalf("register article: %v", err)
	}
	ws, err := engine.Register(reflect.TypeFor[Author]())
	if err != nil {
		t.Fatalf("register author: %v", err)
	}
	if _, err := schema.NewIndexer(st, nil).Ensure(context.Background(), as); err != nil {
		t.Fatalf("ensure index: %v", err)
	}

	articles, err := New(as, m, conv, st, append([]Option{WithEmbedder(lengthEmbedder)}, repoOpts...)...)
	if err != nil {
		t.Fatalf("new article repo: %v", err)
	}
	authors, err := New(ws, m, conv, st)
	if err != nil {
		t.Fatalf("new author repo: %v", err)
	}
	return &fixture{articles: articles, authors: authors, store: st, schema: as}
}

// newMockRepo binds an article repository to a mock store.
func newMockRepo(t *testing.T, ms *mockStore) *Repository {
	t.Helper()
	m := mapping.NewRegistry(codec.NewRegistry())
	s, err := schema.NewEngine(m, nil).Register(reflect.TypeFor[Article]())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	r, err := New(s, m, convert.New(m), ms, WithEmbedder(lengthEmbedder))
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	return r
}

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hgetallFn func(ctx context.Context, key string) (map[string]string, error)
	hupdateFn func(ctx context.Context, key string, u db.HashUpdate) error
	delFn     func(ctx context.Context, key string) error
	existsFn  func(ctx context.Context, key string) (bool, error)
	scanFn    func(ctx context.Context, pattern string) ([]string, error)
	expireFn  func(ctx context.Context, key string, ttl time.Duration) error
	searchFn  func(ctx context.Context, index string, q *query.Query) (*db.SearchResult, error)
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetallFn != nil {
		return m.hgetallFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HUpdate(ctx context.Context, key string, u db.HashUpdate) error {
	if m.hupdateFn != nil {
		return m.hupdateFn(ctx, key, u)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return true, nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if m.expireFn != nil {
		return m.expireFn(ctx, key, ttl)
	}
	return nil
}

func (m *mockStore) Search(ctx context.Context, index string, q *query.Query) (*db.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, index, q)
	}
	return &db.SearchResult{}, nil
}
