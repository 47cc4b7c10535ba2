package omhash

import (
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/embedding"
	"github.com/kailas-cloud/omhash/internal/query"
	"github.com/kailas-cloud/omhash/internal/schema"
)

const (
	driverRedis  = "redis"
	driverBolt   = "bolt"
	driverMemory = "memory"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string
	addrs    []string
	username string
	password string
	db       int
	path     string

	readinessTimeout time.Duration

	embedder embedding.Embedder
	cache    bool
	cacheTTL time.Duration

	codecs map[reflect.Type]codec.Codec
	raw    []reflect.Type

	geoEquality query.Distance
	maxDepth    int
	hnsw        schema.HNSWDefaults
	concurrency int
	autoIndex   bool
	metrics     bool

	logger *zap.Logger
}

// WithRedis connects to a Redis 8+ (or Redis Stack) server.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedisCluster connects to a Redis cluster through its seed addresses.
func WithRedisCluster(addrs []string, username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverRedis
		c.addrs = addrs
		c.username = username
		c.password = password
	})
}

// WithRedisDB selects a logical database. Clusters only support 0.
func WithRedisDB(n int) Option {
	return optionFunc(func(c *clientConfig) { c.db = n })
}

// WithBolt stores hashes in a local bbolt file. Expiry is not supported.
func WithBolt(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverBolt
		c.path = path
	})
}

// WithMemory keeps everything in process memory. Useful for tests.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) { c.driver = driverMemory })
}

// WithReadinessTimeout bounds the wait for the store in New. Default 10s.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		if d > 0 {
			c.readinessTimeout = d
		}
	})
}

// WithLogger sets the zap logger. Default discards output.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) { c.logger = l })
}

// WithEmbedder sets the provider used to fill vectorize= fields and
// text KNN queries.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) { c.embedder = e })
}

// WithEmbeddingCache caches embeddings in the store under
// omhash:emb_cache:. Zero ttl keeps entries forever.
func WithEmbeddingCache(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cache = true
		c.cacheTTL = ttl
	})
}

// WithCodec installs a scalar codec for t, replacing any built-in one.
func WithCodec(t reflect.Type, cd Codec) Option {
	return optionFunc(func(c *clientConfig) {
		if c.codecs == nil {
			c.codecs = make(map[reflect.Type]codec.Codec)
		}
		c.codecs[t] = cd
	})
}

// WithRaw stores values of t opaquely in a single _raw entry.
func WithRaw(t reflect.Type) Option {
	return optionFunc(func(c *clientConfig) { c.raw = append(c.raw, t) })
}

// WithGeoEqualityRadius sets the radius used by geo Eq and NotEq.
// Default 0.0001 mi.
func WithGeoEqualityRadius(radius float64, unit Unit) Option {
	return optionFunc(func(c *clientConfig) {
		c.geoEquality = query.Distance{Value: radius, Unit: unit}
	})
}

// WithMaxDepth bounds nested struct recursion. Default 16.
func WithMaxDepth(n int) Option {
	return optionFunc(func(c *clientConfig) { c.maxDepth = n })
}

// WithHNSW sets the HNSW M and EF_CONSTRUCTION used by vector fields whose
// tag leaves them unset.
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hnsw = schema.HNSWDefaults{M: m, EFConstruct: efConstruct}
	})
}

// WithConcurrency bounds parallel writes of SaveAll. Default 8.
func WithConcurrency(n int) Option {
	return optionFunc(func(c *clientConfig) { c.concurrency = n })
}

// WithAutoIndex makes Register apply the creation mode of each new schema.
func WithAutoIndex() Option {
	return optionFunc(func(c *clientConfig) { c.autoIndex = true })
}

// WithMetrics registers the omhash Prometheus collectors with the
// default registry.
func WithMetrics() Option {
	return optionFunc(func(c *clientConfig) { c.metrics = true })
}
