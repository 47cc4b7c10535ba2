package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omhash"
	"github.com/kailas-cloud/omhash/internal/config"
	logpkg "github.com/kailas-cloud/omhash/internal/logger"
)

// app is the composition root shared by the commands.
type app struct {
	env     string
	cfg     config.Config
	logger  *zap.Logger
	client  *omhash.Client
	indexes map[string]indexOps
}

func loadConfig() (config.Config, string, error) {
	env := envName
	if env == "" {
		env = config.GetEnv()
	}
	if configPath == "" {
		cfg, err := config.Load(env)
		return cfg, env, err
	}
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return config.Config{}, env, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	cfg, err := config.Parse(data)
	return cfg, env, err
}

func newApp(withMetrics bool) (*app, error) {
	cfg, env, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	opts := clientOptions(&cfg, logger)
	if withMetrics {
		opts = append(opts, omhash.WithMetrics())
	}
	client, err := omhash.New(opts...)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("connect: %w", err)
	}
	indexes, err := registerModels(client, cfg.CreationMode())
	if err != nil {
		client.Close()
		_ = logger.Sync()
		return nil, fmt.Errorf("register models: %w", err)
	}
	return &app{env: env, cfg: cfg, logger: logger, client: client, indexes: indexes}, nil
}

func (a *app) Close() {
	a.client.Close()
	_ = a.logger.Sync()
}

// clientOptions translates the config into SDK options.
func clientOptions(cfg *config.Config, logger *zap.Logger) []omhash.Option {
	opts := []omhash.Option{
		omhash.WithLogger(logger),
		omhash.WithReadinessTimeout(time.Duration(cfg.Database.ReadinessTimeout) * time.Second),
		omhash.WithGeoEqualityRadius(cfg.Mapping.GeoEqualityRadius, omhash.Unit(cfg.Mapping.GeoUnit)),
		omhash.WithMaxDepth(cfg.Mapping.MaxDepth),
		omhash.WithHNSW(cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct),
	}

	switch db := cfg.Database; db.Driver {
	case config.DriverRedis:
		if len(db.Addrs) > 1 {
			opts = append(opts, omhash.WithRedisCluster(db.Addrs, "", db.Password))
		} else {
			opts = append(opts, omhash.WithRedis(db.Addrs[0], db.Password), omhash.WithRedisDB(db.DB))
		}
	case config.DriverBolt:
		opts = append(opts, omhash.WithBolt(db.Path))
	case config.DriverMemory:
		opts = append(opts, omhash.WithMemory())
	}

	if emb := cfg.Embedding; emb.Enabled() {
		opts = append(opts,
			omhash.WithEmbedder(omhash.NewOpenAIEmbedder(&omhash.OpenAIConfig{
				APIKey:     emb.APIKey,
				BaseURL:    emb.BaseURL,
				Model:      emb.Model,
				Dimensions: emb.Dimensions,
				Provider:   emb.Provider,
				Logger:     logger.Named("openai"),
			})),
			omhash.WithEmbeddingCache(emb.CacheTTL()),
		)
	}
	return opts
}
