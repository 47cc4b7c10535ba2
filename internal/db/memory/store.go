// Package memory implements db.Store in process.
//
// Hashes, plain values and index definitions live in maps under one lock.
// Search evaluates query nodes directly against stored hashes, so results
// follow the same predicate semantics as the Redis backend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/omhash/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store is an in-memory db.Store.
type Store struct {
	mu      sync.RWMutex
	hashes  map[string]map[string]string
	values  map[string][]byte
	expires map[string]time.Time
	indexes map[string]*db.IndexDefinition

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		hashes:  make(map[string]map[string]string),
		values:  make(map[string][]byte),
		expires: make(map[string]time.Time),
		indexes: make(map[string]*db.IndexDefinition),
		now:     time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// expired reports whether key has passed its deadline. Callers hold s.mu.
func (s *Store) expired(key string) bool {
	at, ok := s.expires[key]
	return ok && !s.now().Before(at)
}

// purge drops key if it has expired. Callers hold the write lock.
func (s *Store) purge(key string) {
	if s.expired(key) {
		s.drop(key)
	}
}

func (s *Store) drop(key string) {
	delete(s.hashes, key)
	delete(s.values, key)
	delete(s.expires, key)
}

// liveHash returns the hash at key unless it is absent or expired.
func (s *Store) liveHash(key string) (map[string]string, bool) {
	h, ok := s.hashes[key]
	if !ok || s.expired(key) {
		return nil, false
	}
	return h, true
}

// --- HashStore ---

func (s *Store) setFields(key string, fields map[string]string) {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
}

func (s *Store) deleteFields(key string, fields []string) {
	h, ok := s.hashes[key]
	if !ok {
		return
	}
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		s.drop(key)
	}
}

// HGetAll returns a copy of all fields. A missing key yields an empty map.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, _ := s.liveHash(key)
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

// HUpdate applies deletes and sets under the write lock.
func (s *Store) HUpdate(_ context.Context, key string, u db.HashUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	if u.Deletes != nil {
		s.deleteFields(key, u.Deletes(sortedKeys(s.hashes[key])))
	}
	if len(u.Set) > 0 {
		s.setFields(key, u.Set)
	}
	return nil
}

// Del removes a key of any type.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drop(key)
	return nil
}

// Exists reports whether a live key of any type exists.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.exists(key), nil
}

func (s *Store) exists(key string) bool {
	if s.expired(key) {
		return false
	}
	_, h := s.hashes[key]
	_, v := s.values[key]
	return h || v
}

// Scan returns live keys matching a glob pattern, sorted.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.hashes {
		if !s.expired(k) && db.MatchKey(pattern, k) {
			keys = append(keys, k)
		}
	}
	for k := range s.values {
		if !s.expired(k) && db.MatchKey(pattern, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// --- KVStore ---

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok || s.expired(key) {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a value and clears any expiry.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drop(key)
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// SetWithTTL stores a value with an expiration.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drop(key)
	s.values[key] = append([]byte(nil), value...)
	if ttl > 0 {
		s.expires[key] = s.now().Add(ttl)
	}
	return nil
}

// Expire sets the TTL of a live key. A non-positive ttl removes the expiry.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purge(key)
	if !s.exists(key) {
		return db.ErrKeyNotFound
	}
	if ttl <= 0 {
		delete(s.expires, key)
		return nil
	}
	s.expires[key] = s.now().Add(ttl)
	return nil
}

// TTL returns the remaining time to live, or 0 when the key does not expire.
func (s *Store) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.exists(key) {
		return 0, db.ErrKeyNotFound
	}
	at, ok := s.expires[key]
	if !ok {
		return 0, nil
	}
	return at.Sub(s.now()), nil
}

// --- IndexManager ---

// CreateIndex stores a validated index definition.
func (s *Store) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := ValidateFilter(def.Filter); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Key: def.Name, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	cp := *def
	cp.Prefixes = append([]string(nil), def.Prefixes...)
	cp.Fields = append([]db.IndexField(nil), def.Fields...)
	s.indexes[def.Name] = &cp
	return nil
}

// DropIndex removes an index definition. Documents are kept.
func (s *Store) DropIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[name]; !ok {
		return db.ErrIndexNotFound
	}
	delete(s.indexes, name)
	return nil
}

// IndexExists reports whether an index is defined.
func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.indexes[name]
	return ok, nil
}

// SupportsMultiValuePaths returns true: documents expand all-elements paths.
func (s *Store) SupportsMultiValuePaths() bool {
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
