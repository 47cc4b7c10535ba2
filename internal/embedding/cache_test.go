package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/db"
	"github.com/kailas-cloud/omhash/internal/db/memory"
)

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
}

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: Result{Embedding: []float32{0.1, 0.2, 0.3}, PromptTokens: 10, TotalTokens: 10}}
	ms := &mockKVStore{}
	counter := newCounter()
	c := NewCached(inner, ms, 0, counter, nil)

	res, err := c.Embed(context.Background(), "test text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Embedding) != 3 || res.TotalTokens != 10 {
		t.Fatalf("result = %+v", res)
	}
	if ms.sets != 1 || len(ms.ttls) != 0 {
		t.Errorf("sets = %d, ttl sets = %d", ms.sets, len(ms.ttls))
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss counter = %v", got)
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: Result{Embedding: []float32{0.1}}}
	cached := codec.VectorToBytes([]float32{0.4, 0.5, 0.6})
	ms := &mockKVStore{getFn: func(_ context.Context, key string) ([]byte, error) {
		if !strings.HasPrefix(key, CacheKeyPrefix) {
			t.Errorf("key = %q", key)
		}
		return cached, nil
	}}
	counter := newCounter()
	c := NewCached(inner, ms, 0, counter, nil)

	res, err := c.Embed(context.Background(), "test text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Embedding) != 3 || res.Embedding[0] != 0.4 || res.TotalTokens != 0 {
		t.Fatalf("result = %+v", res)
	}
	if inner.calls != 0 {
		t.Error("inner embedder called on a hit")
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("hit")); got != 1 {
		t.Errorf("hit counter = %v", got)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	boom := errors.New("provider down")
	c := NewCached(&mockEmbedder{err: boom}, &mockKVStore{}, 0, nil, nil)
	if _, err := c.Embed(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestEmbed_StoreFailuresAreNotFatal(t *testing.T) {
	inner := &mockEmbedder{result: Result{Embedding: []float32{1, 2}}}
	ms := &mockKVStore{
		getFn: func(context.Context, string) ([]byte, error) { return nil, errors.New("get failed") },
		setFn: func(context.Context, string, []byte) error { return errors.New("set failed") },
	}
	c := NewCached(inner, ms, 0, nil, nil)
	res, err := c.Embed(context.Background(), "x")
	if err != nil || len(res.Embedding) != 2 {
		t.Fatalf("Embed = %+v, %v", res, err)
	}
}

func TestEmbed_CorruptEntryIsMiss(t *testing.T) {
	inner := &mockEmbedder{result: Result{Embedding: []float32{1}}}
	ms := &mockKVStore{getFn: func(context.Context, string) ([]byte, error) { return []byte{1, 2, 3}, nil }}
	c := NewCached(inner, ms, 0, nil, nil)
	if _, err := c.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestEmbed_TTL(t *testing.T) {
	tests := []struct {
		name     string
		ttlErr   error
		wantSets int
	}{
		{"expiring store", nil, 0},
		{"store without expiry", &db.Error{Op: db.OpSet, Err: db.ErrUnsupported}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockKVStore{setWithTTLFn: func(context.Context, string, []byte, time.Duration) error { return tt.ttlErr }}
			c := NewCached(&mockEmbedder{result: Result{Embedding: []float32{1}}}, ms, time.Hour, nil, nil)
			if _, err := c.Embed(context.Background(), "x"); err != nil {
				t.Fatalf("Embed: %v", err)
			}
			if len(ms.ttls) != 1 || ms.ttls[0] != time.Hour {
				t.Errorf("ttls = %v", ms.ttls)
			}
			if ms.sets != tt.wantSets {
				t.Errorf("sets = %d, want %d", ms.sets, tt.wantSets)
			}
		})
	}
}

func TestEmbed_MemoryStore(t *testing.T) {
	inner := &mockEmbedder{result: Result{Embedding: []float32{0.5, -1}, TotalTokens: 3}}
	c := NewCached(inner, memory.NewStore(), time.Minute, nil, nil)
	ctx := context.Background()

	first, err := c.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("first Embed: %v", err)
	}
	second, err := c.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("second Embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if first.TotalTokens != 3 || second.TotalTokens != 0 {
		t.Errorf("tokens = %d then %d", first.TotalTokens, second.TotalTokens)
	}
	if second.Embedding[1] != -1 {
		t.Errorf("cached vector = %v", second.Embedding)
	}
}

func TestCacheKey(t *testing.T) {
	if CacheKey("a") == CacheKey("b") {
		t.Error("distinct texts share a key")
	}
	if CacheKey("a") != CacheKey("a") {
		t.Error("key is not stable")
	}
}
