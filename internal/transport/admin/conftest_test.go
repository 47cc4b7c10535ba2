package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/db/memory"
	"github.com/kailas-cloud/omhash/internal/health"
	"github.com/kailas-cloud/omhash/internal/mapping"
	"github.com/kailas-cloud/omhash/internal/schema"
)

type Widget struct {
	ID    string  `om:"id,id"`
	Name  string  `om:"name,indexed"`
	Score float64 `om:"score,indexed,sortable"`
}

type fixture struct {
	store  *memory.Store
	engine *schema.Engine
	router http.Handler
}

func newFixture(t *testing.T, apiKeys ...string) *fixture {
	t.Helper()
	store := memory.NewStore()
	engine := schema.NewEngine(mapping.NewRegistry(codec.NewRegistry()), nil)
	if _, err := engine.Register(reflect.TypeFor[Widget](), mapping.WithKeyspace("widget")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	hc := health.New(store, health.WithIndexes(store, func() []string { return []string{"widgetIdx"} }))
	srv := NewServer(engine, schema.NewIndexer(store, nil), hc, nil)
	return &fixture{store: store, engine: engine, router: srv.Router(apiKeys)}
}

func (f *fixture) do(method, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

// mockIndexer implements the indexer consumer interface.
type mockIndexer struct {
	ensureFn func(ctx context.Context, s *schema.Schema) (schema.Outcome, error)
	dropFn   func(ctx context.Context, s *schema.Schema) error
}

func (m *mockIndexer) Ensure(ctx context.Context, s *schema.Schema) (schema.Outcome, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, s)
	}
	return schema.OutcomeCreated, nil
}

func (m *mockIndexer) Drop(ctx context.Context, s *schema.Schema) error {
	if m.dropFn != nil {
		return m.dropFn(ctx, s)
	}
	return nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
