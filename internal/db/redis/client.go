package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/omhash/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const (
	defaultUpdateRetries = 5
	defaultClientName    = "omhash"
	readyPollInterval    = 100 * time.Millisecond
)

// Config holds connection parameters. More than one address selects
// cluster mode, where DB must be 0.
type Config struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	ClientName string // CLIENT SETNAME, default "omhash"
	// UpdateRetries bounds WATCH/EXEC retries of HUpdate. Zero means 5.
	UpdateRetries int
}

// Store is the hash, key-value and search store over Redis 8 or Redis
// Stack, backed by rueidis.
type Store struct {
	client  rueidis.Client
	retries int
}

// NewStore connects to Redis. Client-side caching is disabled: hashes are
// read once per Get and the search module is queried directly.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("addrs is required")
	}
	if len(cfg.Addrs) > 1 && cfg.DB != 0 {
		return nil, fmt.Errorf("db %d is not supported with %d cluster addrs", cfg.DB, len(cfg.Addrs))
	}
	name := cfg.ClientName
	if name == "" {
		name = defaultClientName
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		ClientName:   name,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH replies are parsed as RESP2 arrays
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", strings.Join(cfg.Addrs, ","), err)
	}

	retries := cfg.UpdateRetries
	if retries <= 0 {
		retries = defaultUpdateRetries
	}
	return &Store{client: client, retries: retries}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady pings until Redis answers or timeout expires. The timeout
// error carries the last ping failure.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		lastErr := s.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis not ready after %s: %w", timeout, errors.Join(ctx.Err(), lastErr))
		case <-ticker.C:
		}
	}
}

// SupportsMultiValuePaths returns false: hash fields hold a single value.
func (s *Store) SupportsMultiValuePaths() bool {
	return false
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// isRedisErr reports whether err is a server reply containing substr,
// ignoring case. Search module errors carry no stable prefix.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
