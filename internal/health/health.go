// Package health aggregates backend checks for the admin server.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexChecker reports whether a search index exists.
type IndexChecker interface {
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Status is the aggregated state. Only a database failure is Unhealthy.
type Status string

// Aggregated states.
const (
	Healthy   Status = "ok"
	Degraded  Status = "degraded"
	Unhealthy Status = "error"
)

// CheckResult is the outcome of one check.
type CheckResult string

// Check outcomes.
const (
	CheckOK      CheckResult = "ok"
	CheckError   CheckResult = "error"
	CheckMissing CheckResult = "missing" // index not created yet
)

// DefaultCheckTimeout bounds each check when WithCheckTimeout is not set.
const DefaultCheckTimeout = 2 * time.Second

// Report aggregates check results keyed by component: "database",
// "embedding" and "index:<name>".
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service runs the checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	indexes   IndexChecker
	names     func() []string
	timeout   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithEmbedding adds the vectorizer check.
func WithEmbedding(e EmbeddingChecker) Option {
	return func(s *Service) { s.embedding = e }
}

// WithIndexes checks every index returned by names on each Check.
func WithIndexes(ic IndexChecker, names func() []string) Option {
	return func(s *Service) { s.indexes, s.names = ic, names }
}

// WithCheckTimeout bounds each check. Non-positive values are ignored.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a Service over the database pinger.
func New(db DBPinger, opts ...Option) *Service {
	s := &Service{db: db, timeout: DefaultCheckTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check pings the database first. When it answers, the optional checks
// run concurrently.
func (s *Service) Check(ctx context.Context) Report {
	if err := s.run(ctx, s.db.Ping); err != nil {
		return Report{Status: Unhealthy, Checks: map[string]CheckResult{"database": CheckError}}
	}

	var mu sync.Mutex
	checks := map[string]CheckResult{"database": CheckOK}
	set := func(name string, r CheckResult) {
		mu.Lock()
		checks[name] = r
		mu.Unlock()
	}

	var g errgroup.Group
	if s.embedding != nil {
		g.Go(func() error {
			set("embedding", result(s.run(ctx, s.embedding.HealthCheck)))
			return nil
		})
	}
	if s.indexes != nil && s.names != nil {
		names := s.names()
		sort.Strings(names)
		for _, name := range names {
			g.Go(func() error {
				set("index:"+name, s.indexResult(ctx, name))
				return nil
			})
		}
	}
	_ = g.Wait()

	status := Healthy
	for _, v := range checks {
		if v != CheckOK {
			status = Degraded
			break
		}
	}
	return Report{Status: status, Checks: checks}
}

func (s *Service) indexResult(ctx context.Context, name string) CheckResult {
	var ok bool
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		ok, err = s.indexes.IndexExists(ctx, name)
		return err
	})
	switch {
	case err != nil:
		return CheckError
	case !ok:
		return CheckMissing
	}
	return CheckOK
}

func (s *Service) run(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
