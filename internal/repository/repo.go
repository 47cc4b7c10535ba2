// Package repository stores records of one registered type as hashes.
package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/omhash/internal/convert"
	"github.com/kailas-cloud/omhash/internal/db"
	"github.com/kailas-cloud/omhash/internal/embedding"
	"github.com/kailas-cloud/omhash/internal/mapping"
	"github.com/kailas-cloud/omhash/internal/metrics"
	"github.com/kailas-cloud/omhash/internal/query"
	"github.com/kailas-cloud/omhash/internal/schema"
)

// DefaultConcurrency bounds parallel writes in SaveAll.
const DefaultConcurrency = 8

// Sentinel errors.
var (
	ErrNotFound   = errors.New("record not found")
	ErrMissingID  = errors.New("record has no id")
	ErrWrongType  = errors.New("record type does not match repository")
	ErrNoEmbedder = errors.New("vectorize field requires an embedder")
)

var (
	durationType = reflect.TypeFor[time.Duration]()
	uuidType     = reflect.TypeFor[uuid.UUID]()
	ulidType     = reflect.TypeFor[ulid.ULID]()
)

// store is the consumer interface for record persistence (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HUpdate(ctx context.Context, key string, u db.HashUpdate) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Search(ctx context.Context, index string, q *query.Query) (*db.SearchResult, error)
}

// Repository reads and writes records of a single type.
type Repository struct {
	schema      *schema.Schema
	entity      *mapping.Entity
	conv        *convert.Converter
	store       store
	embedder    embedding.Embedder
	logger      *zap.Logger
	concurrency int

	mu      sync.Mutex
	entropy io.Reader
}

// Option configures a Repository.
type Option func(*Repository)

// WithEmbedder sets the embedder used for vectorize= properties.
func WithEmbedder(e embedding.Embedder) Option {
	return func(r *Repository) { r.embedder = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConcurrency overrides DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New binds a repository to a registered schema.
func New(s *schema.Schema, m *mapping.Registry, conv *convert.Converter, st store, opts ...Option) (*Repository, error) {
	e, err := m.Entity(s.Type)
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	if e.ID == nil {
		return nil, fmt.Errorf("repository: %s: %w", s.Type, ErrMissingID)
	}
	r := &Repository{
		schema:      s,
		entity:      e,
		conv:        conv,
		store:       st,
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
		entropy:     ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("keyspace", s.Keyspace()))
	return r, nil
}

// Schema returns the bound schema.
func (r *Repository) Schema() *schema.Schema {
	return r.schema
}

// Key returns the storage key of id.
func (r *Repository) Key(id string) string {
	return r.schema.Options.Key(id)
}

func (r *Repository) observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	ks := r.schema.Keyspace()
	metrics.RecordOperationsTotal.WithLabelValues(ks, op, status).Inc()
	metrics.RecordOperationDuration.WithLabelValues(ks, op).Observe(time.Since(start).Seconds())
}

// Save writes v, a pointer to a record, replacing any stored version. A
// missing id is generated and written back into v.
func (r *Repository) Save(ctx context.Context, v any) (id string, err error) {
	defer func(start time.Time) { r.observe("save", start, err) }(time.Now())

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != r.schema.Type {
		return "", fmt.Errorf("save %T: %w", v, ErrWrongType)
	}
	rec := rv.Elem()

	if err := r.assignID(rec.FieldByIndex(r.entity.ID.Index)); err != nil {
		return "", err
	}
	if err := r.vectorize(ctx, rec); err != nil {
		return "", err
	}

	b, err := r.conv.Write(v)
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	id, err = r.conv.IDOf(rv)
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}

	key := r.Key(id)
	update := db.HashUpdate{
		Deletes: func(existing []string) []string { return existing },
		Set:     b.Map(),
	}
	if err := r.store.HUpdate(ctx, key, update); err != nil {
		return "", fmt.Errorf("hset %s: %w", key, err)
	}

	ttl := r.schema.Options.TTL
	if r.entity.TTL != nil {
		if d := durationOf(rec.FieldByIndex(r.entity.TTL.Index)); d > 0 {
			ttl = d
		}
	}
	if err := r.expire(ctx, key, ttl); err != nil {
		return "", err
	}

	r.logger.Debug("record saved", zap.String("id", id), zap.Int("fields", b.Len()))
	return id, nil
}

// SaveAll saves records concurrently and returns their ids in input order.
func (r *Repository) SaveAll(ctx context.Context, vs []any) ([]string, error) {
	ids := make([]string, len(vs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, v := range vs {
		g.Go(func() error {
			id, err := r.Save(gctx, v)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Get loads the record stored under id into dst, a pointer to the bound type.
func (r *Repository) Get(ctx context.Context, id string, dst any) (err error) {
	defer func(start time.Time) { r.observe("get", start, err) }(time.Now())

	key := r.Key(id)
	fields, err := r.store.HGetAll(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err := r.conv.ReadInto(ctx, dst, bucketOf(fields)); err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return nil
}

// Update applies sparse changes to a stored record in one round-trip.
func (r *Repository) Update(ctx context.Context, id string, changes ...convert.Change) (err error) {
	defer func(start time.Time) { r.observe("update", start, err) }(time.Now())

	key := r.Key(id)
	ok, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("exists %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("update %s: %w", key, ErrNotFound)
	}

	changes, err = r.vectorizeChanges(ctx, changes)
	if err != nil {
		return err
	}
	plan, err := r.conv.PartialUpdate(r.schema.Type, changes)
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	update := db.HashUpdate{Deletes: plan.Deletes, Set: plan.Set.Map()}
	if err := r.store.HUpdate(ctx, key, update); err != nil {
		return fmt.Errorf("hupdate %s: %w", key, err)
	}

	if p := r.entity.TTL; p != nil && plan.Touches(p.Name) {
		ttl := r.schema.Options.TTL
		for _, c := range changes {
			if c.Path == p.Name && !c.Delete && c.Value != nil {
				if d := durationOf(reflect.ValueOf(c.Value)); d > 0 {
					ttl = d
				}
			}
		}
		if err := r.expire(ctx, key, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the record stored under id. A missing record is not an error.
func (r *Repository) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { r.observe("delete", start, err) }(time.Now())

	key := r.Key(id)
	if err := r.store.Del(ctx, key); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Exists reports whether a record is stored under id.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	key := r.Key(id)
	ok, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return ok, nil
}

// IDs lists the ids stored under the keyspace, sorted.
func (r *Repository) IDs(ctx context.Context) ([]string, error) {
	prefix := r.schema.Options.Prefix()
	keys, err := r.store.Scan(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := strings.CutPrefix(k, prefix); ok && id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of records stored under the keyspace.
func (r *Repository) Count(ctx context.Context) (int, error) {
	ids, err := r.IDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Hit is one decoded search result.
type Hit struct {
	ID string
	// Score is the KNN distance for vector queries.
	Score float64
	// Record is a pointer to the bound type.
	Record any
}

// Result is a page of search hits.
type Result struct {
	// Total counts all matches, ignoring paging.
	Total int
	Hits  []Hit
}

// Search runs q against the bound index and decodes every hit.
func (r *Repository) Search(ctx context.Context, q *query.Query) (res *Result, err error) {
	defer func(start time.Time) { r.observe("search", start, err) }(time.Now())

	raw, err := r.store.Search(ctx, r.schema.IndexName(), q)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.schema.IndexName(), err)
	}

	prefix := r.schema.Options.Prefix()
	ptr := reflect.PointerTo(r.schema.Type)
	res = &Result{Total: raw.Total, Hits: make([]Hit, 0, len(raw.Entries))}
	for _, e := range raw.Entries {
		v, err := r.conv.Read(ctx, ptr, bucketOf(e.Fields))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		res.Hits = append(res.Hits, Hit{
			ID:     strings.TrimPrefix(e.Key, prefix),
			Score:  e.Score,
			Record: v.Interface(),
		})
	}
	return res, nil
}

// expire applies ttl when positive. Backends without expiry only warn.
func (r *Repository) expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	err := r.store.Expire(ctx, key, ttl)
	switch {
	case db.IsUnsupported(err):
		r.logger.Warn("ttl ignored by backend", zap.String("key", key), zap.Duration("ttl", ttl))
		return nil
	case err != nil:
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// assignID fills a zero id with a ULID (strings) or a random UUID.
func (r *Repository) assignID(fv reflect.Value) error {
	if fv.Kind() == reflect.Pointer {
		if !fv.IsNil() && !fv.Elem().IsZero() {
			return nil
		}
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		fv = fv.Elem()
	}
	if !fv.IsZero() {
		return nil
	}
	switch {
	case fv.Type() == uuidType:
		fv.Set(reflect.ValueOf(uuid.New()))
	case fv.Type() == ulidType:
		fv.Set(reflect.ValueOf(r.newULID()))
	case fv.Kind() == reflect.String:
		fv.SetString(r.newULID().String())
	default:
		return fmt.Errorf("save: %s id %s: %w", r.schema.Type, fv.Type(), ErrMissingID)
	}
	return nil
}

func (r *Repository) newULID() ulid.ULID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy)
}

// durationOf reads a ttl value: a time.Duration or integer seconds.
func durationOf(v reflect.Value) time.Duration {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return 0
		}
		v = v.Elem()
	}
	if v.Type() == durationType {
		return time.Duration(v.Int())
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(v.Int()) * time.Second
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(v.Uint()) * time.Second //nolint:gosec // ttl seconds fit in int64
	}
	return 0
}
