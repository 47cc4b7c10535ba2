package db

import (
	"context"
	"time"

	"github.com/kailas-cloud/omhash/internal/query"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	HashStore
	KVStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashUpdate is a read-modify-write of a single hash executed as one unit.
type HashUpdate struct {
	// Deletes picks the fields to remove given the fields currently stored.
	// Nil removes nothing.
	Deletes func(existing []string) []string
	// Set is written after the deletes.
	Set map[string]string
}

// HashStore reads and rewrites whole record hashes. Field-level changes go
// through HUpdate so deletes and sets land together.
type HashStore interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HUpdate(ctx context.Context, key string, u HashUpdate) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore provides simple key-value operations and key expiry.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining time to live, or 0 when the key does not expire.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	// SupportsMultiValuePaths reports whether fields with an all-elements
	// path can be indexed.
	SupportsMultiValuePaths() bool
}

// Searcher runs rendered queries against an FT index.
type Searcher interface {
	Search(ctx context.Context, index string, q *query.Query) (*SearchResult, error)
}
