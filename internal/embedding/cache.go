package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/db"
)

// CacheKeyPrefix namespaces cached vectors in the key-value store.
const CacheKeyPrefix = "omhash:emb_cache:"

// kvStore is the consumer interface for the embedding cache (ISP).
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached decorates an Embedder with a key-value cache keyed by the text hash.
type Cached struct {
	inner      Embedder
	store      kvStore
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// NewCached creates a caching decorator. cacheTotal carries the "result"
// label (hit or miss) and may be nil. A zero ttl caches forever.
func NewCached(inner Embedder, s kvStore, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns the cached vector or calls the inner embedder. A hit
// reports zero tokens.
func (c *Cached) Embed(ctx context.Context, text string) (Result, error) {
	key := CacheKey(text)

	if vec, ok := c.get(ctx, key); ok {
		c.inc("hit")
		return Result{Embedding: vec}, nil
	}
	c.inc("miss")

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("embed text: %w", err)
	}
	c.put(ctx, key, res.Embedding)
	return res, nil
}

// CacheKey returns the store key of text.
func CacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return CacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *Cached) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *Cached) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	vec, err := codec.BytesToVector(data)
	if err != nil {
		c.logger.Warn("failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

// put never fails the caller. Stores without expiry fall back to Set.
func (c *Cached) put(ctx context.Context, key string, vec []float32) {
	data := codec.VectorToBytes(vec)
	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, data, c.ttl)
		if db.IsUnsupported(err) {
			err = c.store.Set(ctx, key, data)
		}
	} else {
		err = c.store.Set(ctx, key, data)
	}
	if err != nil {
		c.logger.Warn("failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}
