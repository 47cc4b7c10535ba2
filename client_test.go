package omhash

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNew_NoStore(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("expected error when no store is selected")
	}
}

func TestCreateStore_UnknownDriver(t *testing.T) {
	if _, err := createStore(&clientConfig{driver: "unknown"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestNew_Memory(t *testing.T) {
	c := newTestClient(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestNew_Bolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omhash.db")
	c, err := New(WithBolt(path))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	r := registerCompanies(t, c)
	ctx := context.Background()
	if _, err := r.Save(ctx, &Company{ID: "acme", Name: "Acme"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := r.Get(ctx, "acme")
	if err != nil || got.Name != "Acme" {
		t.Fatalf("Get = %+v, %v", got, err)
	}
}

func TestNew_BoltMissingPath(t *testing.T) {
	if _, err := New(WithBolt("")); err == nil {
		t.Fatal("expected error for empty bolt path")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}
	emb := &countingEmbedder{}
	logger := zap.NewNop()
	opts := []Option{
		WithRedisCluster([]string{"a:6379", "b:6379"}, "user", "secret"),
		WithRedisDB(0),
		WithReadinessTimeout(time.Second),
		WithLogger(logger),
		WithEmbedder(emb),
		WithEmbeddingCache(time.Hour),
		WithRaw(reflect.TypeFor[Office]()),
		WithGeoEqualityRadius(5, Meters),
		WithMaxDepth(4),
		WithConcurrency(2),
		WithAutoIndex(),
		WithMetrics(),
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.driver != driverRedis || len(cfg.addrs) != 2 || cfg.username != "user" || cfg.password != "secret" {
		t.Errorf("redis options = %+v", cfg)
	}
	if cfg.readinessTimeout != time.Second || cfg.logger != logger || cfg.embedder != emb {
		t.Errorf("readiness/logger/embedder not applied")
	}
	if !cfg.cache || cfg.cacheTTL != time.Hour {
		t.Errorf("cache = %v %v", cfg.cache, cfg.cacheTTL)
	}
	if len(cfg.raw) != 1 || cfg.geoEquality.Value != 5 || cfg.geoEquality.Unit != Meters {
		t.Errorf("raw/geo = %v %+v", cfg.raw, cfg.geoEquality)
	}
	if cfg.maxDepth != 4 || cfg.concurrency != 2 || !cfg.autoIndex || !cfg.metrics {
		t.Errorf("misc options = %+v", cfg)
	}

	WithRedis("localhost:6379", "pw").apply(cfg)
	if cfg.driver != driverRedis || len(cfg.addrs) != 1 || cfg.addrs[0] != "localhost:6379" {
		t.Errorf("WithRedis = %+v", cfg)
	}
	WithReadinessTimeout(0).apply(cfg)
	if cfg.readinessTimeout != time.Second {
		t.Error("zero readiness timeout must be ignored")
	}
}

func TestRegisterName(t *testing.T) {
	c := newTestClient(t)
	if err := c.RegisterName("office", &Office{}); err != nil {
		t.Fatalf("RegisterName: %v", err)
	}
	if err := c.RegisterName("office", Company{}); err == nil {
		t.Error("expected error when rebinding a name")
	}
	if err := c.RegisterName("nil", nil); err == nil {
		t.Error("expected error for nil sample")
	}
}

func TestEnsureIndexes(t *testing.T) {
	c := newTestClient(t)
	r := registerCompanies(t, c)
	if err := c.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	if len(c.Schemas()) != 1 || c.Schemas()[0] != r.Schema() {
		t.Errorf("Schemas = %v", c.Schemas())
	}
	out, err := r.EnsureIndex(context.Background())
	if err != nil || out != "exists" {
		t.Errorf("EnsureIndex = %q, %v", out, err)
	}
}

func TestAdminHandler(t *testing.T) {
	c := newTestClient(t, WithAutoIndex())
	registerCompanies(t, c)
	h := c.AdminHandler([]string{"secret"})

	get := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	if rr := get("/healthz", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("healthz = %d %s", rr.Code, rr.Body)
	}
	if rr := get("/schemas/Company", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("schemas without key = %d", rr.Code)
	}
	rr := get("/schemas/Company", "secret")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"index":"CompanyIdx"`) {
		t.Errorf("schemas = %d %s", rr.Code, rr.Body)
	}
}
