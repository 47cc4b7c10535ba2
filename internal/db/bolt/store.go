// Package bolt implements db.Store on an embedded bbolt file.
//
// Every hash lives in its own nested bucket under the hashes root, so field
// order on disk follows byte order of the field path. Plain values and msgpack
// encoded index definitions live in their own root buckets. Search loads the
// hashes under the index prefixes and evaluates the query in process.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/kailas-cloud/omhash/internal/db"
	"github.com/kailas-cloud/omhash/internal/db/memory"
	"github.com/kailas-cloud/omhash/internal/query"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

var (
	hashesBucket  = []byte("hashes")
	valuesBucket  = []byte("values")
	indexesBucket = []byte("indexes")
)

// Config holds bbolt connection parameters.
type Config struct {
	Path        string
	OpenTimeout time.Duration
}

// Store is a db.Store backed by bbolt.
type Store struct {
	bdb *bbolt.DB
}

// New opens (or creates) the database file and its root buckets.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("bolt: path is required")
	}
	timeout := cfg.OpenTimeout
	if timeout == 0 {
		timeout = time.Second
	}
	bdb, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", cfg.Path, err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{hashesBucket, valuesBucket, indexesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return &Store{bdb: bdb}, nil
}

// Ping checks that the database is open.
func (s *Store) Ping(_ context.Context) error {
	return s.bdb.View(func(*bbolt.Tx) error { return nil })
}

// Close closes the database file.
func (s *Store) Close() {
	_ = s.bdb.Close()
}

// WaitForReady returns once the file is readable.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// --- HashStore ---

func hashBucket(tx *bbolt.Tx, key string) *bbolt.Bucket {
	return tx.Bucket(hashesBucket).Bucket([]byte(key))
}

func putFields(tx *bbolt.Tx, key string, fields map[string]string) error {
	b, err := tx.Bucket(hashesBucket).CreateBucketIfNotExists([]byte(key))
	if err != nil {
		return err
	}
	for k, v := range fields {
		if err := b.Put([]byte(k), []byte(v)); err != nil {
			return err
		}
	}
	return nil
}

// HGetAll returns all fields. A missing key yields an empty map.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	out := make(map[string]string)
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		b := hashBucket(tx, key)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Key: key, Err: err}
	}
	return out, nil
}

func fieldNames(b *bbolt.Bucket) []string {
	if b == nil {
		return nil
	}
	var keys []string
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, string(k))
	}
	return keys
}

func deleteFields(tx *bbolt.Tx, key string, fields []string) error {
	b := hashBucket(tx, key)
	if b == nil {
		return nil
	}
	for _, f := range fields {
		if err := b.Delete([]byte(f)); err != nil {
			return err
		}
	}
	if k, _ := b.Cursor().First(); k == nil {
		return tx.Bucket(hashesBucket).DeleteBucket([]byte(key))
	}
	return nil
}

// HUpdate applies deletes and sets in a single write transaction.
func (s *Store) HUpdate(_ context.Context, key string, u db.HashUpdate) error {
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		if u.Deletes != nil {
			dels := u.Deletes(fieldNames(hashBucket(tx, key)))
			if err := deleteFields(tx, key, dels); err != nil {
				return err
			}
		}
		if len(u.Set) == 0 {
			return nil
		}
		if err := tx.Bucket(valuesBucket).Delete([]byte(key)); err != nil {
			return err
		}
		return putFields(tx, key, u.Set)
	})
	if err != nil {
		return &db.Error{Op: db.OpHUpdate, Key: key, Err: err}
	}
	return nil
}

// Del removes a key of any type.
func (s *Store) Del(_ context.Context, key string) error {
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		return drop(tx, key)
	})
	if err != nil {
		return &db.Error{Op: db.OpDel, Key: key, Err: err}
	}
	return nil
}

func drop(tx *bbolt.Tx, key string) error {
	err := tx.Bucket(hashesBucket).DeleteBucket([]byte(key))
	if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
		return err
	}
	return tx.Bucket(valuesBucket).Delete([]byte(key))
}

// Exists reports whether a key of any type exists.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	var ok bool
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		ok = exists(tx, key)
		return nil
	})
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Key: key, Err: err}
	}
	return ok, nil
}

func exists(tx *bbolt.Tx, key string) bool {
	return hashBucket(tx, key) != nil || tx.Bucket(valuesBucket).Get([]byte(key)) != nil
}

// Scan returns keys matching a glob pattern, sorted.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		for _, root := range [][]byte{hashesBucket, valuesBucket} {
			c := tx.Bucket(root).Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				if db.MatchKey(pattern, string(k)) {
					keys = append(keys, string(k))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	sort.Strings(keys)
	return keys, nil
}

// --- KVStore ---

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(valuesBucket).Get([]byte(key)); v != nil {
			val = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Key: key, Err: err}
	}
	if val == nil {
		return nil, db.ErrKeyNotFound
	}
	return val, nil
}

// Set stores a value, replacing a key of any type.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		if err := drop(tx, key); err != nil {
			return err
		}
		return tx.Bucket(valuesBucket).Put([]byte(key), value)
	})
	if err != nil {
		return &db.Error{Op: db.OpSet, Key: key, Err: err}
	}
	return nil
}

// SetWithTTL stores a value. Keys never expire, so a positive ttl is
// rejected with db.ErrUnsupported.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl > 0 {
		return &db.Error{Op: db.OpSet, Key: key, Err: db.ErrUnsupported}
	}
	return s.Set(ctx, key, value)
}

// Expire is unsupported for a positive ttl. A non-positive ttl is a no-op on
// an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl > 0 {
		return &db.Error{Op: db.OpExpire, Key: key, Err: db.ErrUnsupported}
	}
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return db.ErrKeyNotFound
	}
	return nil
}

// TTL reports 0 for every existing key.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, db.ErrKeyNotFound
	}
	return 0, nil
}

// --- IndexManager ---

// CreateIndex persists a validated index definition.
func (s *Store) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := memory.ValidateFilter(def.Filter); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Key: def.Name, Err: err}
	}
	raw, err := msgpack.Marshal(def)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Key: def.Name, Err: err}
	}
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexesBucket)
		if b.Get([]byte(def.Name)) != nil {
			return db.ErrIndexExists
		}
		if err := b.Put([]byte(def.Name), raw); err != nil {
			return &db.Error{Op: db.OpCreateIndex, Key: def.Name, Err: err}
		}
		return nil
	})
}

// DropIndex removes an index definition. Documents are kept.
func (s *Store) DropIndex(_ context.Context, name string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexesBucket)
		if b.Get([]byte(name)) == nil {
			return db.ErrIndexNotFound
		}
		if err := b.Delete([]byte(name)); err != nil {
			return &db.Error{Op: db.OpDropIndex, Key: name, Err: err}
		}
		return nil
	})
}

// IndexExists reports whether an index is defined.
func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	var ok bool
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(indexesBucket).Get([]byte(name)) != nil
		return nil
	})
	if err != nil {
		return false, &db.Error{Op: db.OpIndexInfo, Key: name, Err: err}
	}
	return ok, nil
}

// SupportsMultiValuePaths returns true: search expands all-elements paths.
func (s *Store) SupportsMultiValuePaths() bool {
	return true
}

// --- Searcher ---

// Search loads the hashes under the index prefixes and evaluates q.
func (s *Store) Search(_ context.Context, index string, q *query.Query) (*db.SearchResult, error) {
	if index == "" {
		return nil, errors.New("index name is required")
	}

	var (
		def    db.IndexDefinition
		hashes = make(map[string]map[string]string)
	)
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(indexesBucket).Get([]byte(index))
		if raw == nil {
			return db.ErrIndexNotFound
		}
		if err := msgpack.Unmarshal(raw, &def); err != nil {
			return fmt.Errorf("decode index %s: %w", index, err)
		}
		return loadHashes(tx, def.Prefixes, hashes)
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Key: index, Err: err}
	}
	return memory.Evaluate(&def, hashes, q)
}

func loadHashes(tx *bbolt.Tx, prefixes []string, out map[string]map[string]string) error {
	root := tx.Bucket(hashesBucket)
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}
	for _, p := range prefixes {
		c := root.Cursor()
		for k, _ := c.Seek([]byte(p)); k != nil && bytes.HasPrefix(k, []byte(p)); k, _ = c.Next() {
			if _, seen := out[string(k)]; seen {
				continue
			}
			b := root.Bucket(k)
			if b == nil {
				continue
			}
			h := make(map[string]string)
			if err := b.ForEach(func(f, v []byte) error {
				h[string(f)] = string(v)
				return nil
			}); err != nil {
				return err
			}
			out[string(k)] = h
		}
	}
	return nil
}
