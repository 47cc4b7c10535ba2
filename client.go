// Package omhash maps Go structs onto Redis hashes and queries them through
// RediSearch indexes inferred from struct tags.
//
// A Client owns the store connection and the type registries. Register binds
// a struct type to a keyspace and returns a typed Repository:
//
//	c, err := omhash.New(omhash.WithRedis("localhost:6379", ""))
//	companies, err := omhash.Register[Company](c)
//	id, err := companies.Save(ctx, &Company{Name: "Acme"})
//	hits, err := companies.Search().Where(omhash.Tag("city").Eq("Berlin")).Run(ctx)
package omhash

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/convert"
	"github.com/kailas-cloud/omhash/internal/db"
	dbBolt "github.com/kailas-cloud/omhash/internal/db/bolt"
	dbMemory "github.com/kailas-cloud/omhash/internal/db/memory"
	dbRedis "github.com/kailas-cloud/omhash/internal/db/redis"
	"github.com/kailas-cloud/omhash/internal/embedding"
	"github.com/kailas-cloud/omhash/internal/health"
	"github.com/kailas-cloud/omhash/internal/mapping"
	"github.com/kailas-cloud/omhash/internal/metrics"
	"github.com/kailas-cloud/omhash/internal/repository"
	"github.com/kailas-cloud/omhash/internal/schema"
	"github.com/kailas-cloud/omhash/internal/transport/admin"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the omhash entry point. It is safe for concurrent use.
type Client struct {
	store    db.Store
	mapping  *mapping.Registry
	engine   *schema.Engine
	conv     *convert.Converter
	indexer  *schema.Indexer
	embedder embedding.Embedder
	cfg      *clientConfig
	logger   *zap.Logger
}

// New creates a Client and waits for the store to answer.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{readinessTimeout: defaultReadinessTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.driver == "" {
		return nil, errors.New("omhash: store required (use WithRedis, WithBolt or WithMemory)")
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.WaitForReady(context.Background(), cfg.readinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("omhash: database not ready: %w", err)
	}
	return wireClient(store, cfg), nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case driverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Username: cfg.username,
			Password: cfg.password,
			DB:       cfg.db,
		})
		if err != nil {
			return nil, fmt.Errorf("omhash: create redis store: %w", err)
		}
		return s, nil
	case driverBolt:
		s, err := dbBolt.New(dbBolt.Config{Path: cfg.path})
		if err != nil {
			return nil, fmt.Errorf("omhash: create bolt store: %w", err)
		}
		return s, nil
	case driverMemory:
		return dbMemory.NewStore(), nil
	default:
		return nil, fmt.Errorf("omhash: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig) *Client {
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.metrics {
		metrics.RegisterMapperMetrics()
		metrics.RegisterEmbeddingMetrics()
	}

	codecs := codec.NewRegistry()
	for t, c := range cfg.codecs {
		codecs.Register(t, c)
	}
	for _, t := range cfg.raw {
		codecs.RegisterRaw(t)
	}
	m := mapping.NewRegistry(codecs)

	var emb embedding.Embedder
	if cfg.embedder != nil {
		emb = cfg.embedder
		if cfg.cache {
			emb = embedding.NewCached(emb, store, cfg.cacheTTL, metrics.EmbeddingCacheTotal, logger.Named("embedding"))
		}
	}

	engine := schema.NewEngine(m, logger.Named("schema")).
		WithMaxDepth(cfg.maxDepth).
		WithHNSW(cfg.hnsw)
	conv := convert.New(m,
		convert.WithResolver(repository.NewResolver(store)),
		convert.WithLogger(logger.Named("convert")),
		convert.WithMaxDepth(cfg.maxDepth),
	)

	return &Client{
		store:    store,
		mapping:  m,
		engine:   engine,
		conv:     conv,
		indexer:  schema.NewIndexer(store, logger.Named("index")),
		embedder: emb,
		cfg:      cfg,
		logger:   logger,
	}
}

// Close releases the store connection.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// RegisterName binds name to the type of sample for polymorphic fields.
// Values of interface-typed fields store it in their _class entry.
func (c *Client) RegisterName(name string, sample any) error {
	t := reflect.TypeOf(sample)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return errors.New("omhash: nil sample")
	}
	if err := c.mapping.RegisterName(name, t); err != nil {
		return fmt.Errorf("omhash: %w", err)
	}
	return nil
}

// Schemas returns every registered schema ordered by keyspace.
func (c *Client) Schemas() []*Schema {
	return c.engine.Schemas()
}

// EnsureIndexes applies the creation mode of every registered schema.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	var errs []error
	for _, s := range c.engine.Schemas() {
		if _, err := c.indexer.Ensure(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AdminHandler serves health, Prometheus metrics, registered schemas and
// index lifecycle over HTTP. Empty apiKeys disables authentication.
func (c *Client) AdminHandler(apiKeys []string) http.Handler {
	names := func() []string {
		schemas := c.engine.Schemas()
		out := make([]string, 0, len(schemas))
		for _, s := range schemas {
			if s.Options.CreationMode != mapping.SkipAlways {
				out = append(out, s.IndexName())
			}
		}
		return out
	}
	opts := []health.Option{health.WithIndexes(c.store, names)}
	if hc, ok := c.cfg.embedder.(health.EmbeddingChecker); ok {
		opts = append(opts, health.WithEmbedding(hc))
	}
	metrics.RegisterHTTPMetrics()
	srv := admin.NewServer(c.engine, c.indexer, health.New(c.store, opts...), c.logger.Named("admin"))
	return srv.Router(apiKeys)
}
