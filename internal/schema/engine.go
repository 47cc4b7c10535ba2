package schema

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/omhash/internal/mapping"
)

// DefaultMaxDepth bounds nested struct recursion during inference.
const DefaultMaxDepth = 16

// HNSWDefaults fill HNSW parameters a vector tag leaves unset. Zero values
// leave the backend defaults in place.
type HNSWDefaults struct {
	M           int
	EFConstruct int
}

// Engine builds and caches schemas. It is safe for concurrent use.
type Engine struct {
	mapping  *mapping.Registry
	logger   *zap.Logger
	maxDepth int
	hnsw     HNSWDefaults

	group     singleflight.Group
	mu        sync.RWMutex
	schemas   map[reflect.Type]*Schema
	keyspaces map[string]reflect.Type
	indexes   map[reflect.Type]string
}

// NewEngine creates an Engine over the mapping registry. A nil logger
// discards warnings.
func NewEngine(m *mapping.Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		mapping:   m,
		logger:    logger,
		maxDepth:  DefaultMaxDepth,
		schemas:   make(map[reflect.Type]*Schema),
		keyspaces: make(map[string]reflect.Type),
		indexes:   make(map[reflect.Type]string),
	}
}

// WithMaxDepth overrides DefaultMaxDepth. Call it before the first Register.
func (e *Engine) WithMaxDepth(n int) *Engine {
	if n > 0 {
		e.maxDepth = n
	}
	return e
}

// WithHNSW sets the HNSW defaults. Call it before the first Register.
func (e *Engine) WithHNSW(d HNSWDefaults) *Engine {
	e.hnsw = d
	return e
}

// Register builds the schema of t, or returns the cached one. Options only
// take effect on the first registration of a type.
func (e *Engine) Register(t reflect.Type, opts ...mapping.EntityOption) (*Schema, error) {
	t = deref(t)
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %s is not a struct", t)
	}
	if s, ok := e.Schema(t); ok {
		return s, nil
	}

	v, err, _ := e.group.Do(t.PkgPath()+"."+t.String(), func() (any, error) {
		if s, ok := e.Schema(t); ok {
			return s, nil
		}
		return e.build(t, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Schema), nil
}

func (e *Engine) build(t reflect.Type, opts []mapping.EntityOption) (*Schema, error) {
	ent, err := e.mapping.Entity(t)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if len(opts) > 0 {
		e.mapping.Configure(t, opts...)
	}
	eo := e.mapping.Options(t)

	e.mu.RLock()
	other, taken := e.keyspaces[eo.Keyspace]
	e.mu.RUnlock()
	if taken && other != t {
		return nil, fmt.Errorf("schema: keyspace %q already used by %s", eo.Keyspace, other)
	}

	s := newSchema(t, eo, infer(e.mapping, ent, e.logger, e.maxDepth, e.hnsw))
	if len(s.Fields) > 0 {
		if _, err := s.builder().Build(); err != nil {
			return nil, fmt.Errorf("schema: %s: %w", t, err)
		}
	}
	e.logger.Debug("schema registered",
		zap.String("type", t.String()),
		zap.String("keyspace", eo.Keyspace),
		zap.String("index", eo.IndexName),
		zap.Int("fields", len(s.Fields)),
	)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.schemas[t] = s
	e.keyspaces[eo.Keyspace] = t
	e.indexes[t] = eo.IndexName
	return s, nil
}

// Schema returns the registered schema of t.
func (e *Engine) Schema(t reflect.Type) (*Schema, bool) {
	t = deref(t)
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.schemas[t]
	return s, ok
}

// TypeForKeyspace returns the type registered under keyspace.
func (e *Engine) TypeForKeyspace(keyspace string) (reflect.Type, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.keyspaces[keyspace]
	return t, ok
}

// IndexName returns the index name of a registered type.
func (e *Engine) IndexName(t reflect.Type) (string, bool) {
	t = deref(t)
	e.mu.RLock()
	defer e.mu.RUnlock()
	name, ok := e.indexes[t]
	return name, ok
}

// Schemas returns every registered schema ordered by keyspace.
func (e *Engine) Schemas() []*Schema {
	e.mu.RLock()
	out := make([]*Schema, 0, len(e.schemas))
	for _, s := range e.schemas {
		out = append(out, s)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Keyspace() < out[j].Keyspace() })
	return out
}
