package schema

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/omhash/internal/codec"
	"github.com/kailas-cloud/omhash/internal/db"
	"github.com/kailas-cloud/omhash/internal/geo"
	"github.com/kailas-cloud/omhash/internal/mapping"
)

type Address struct {
	Street string    `om:"street"`
	City   string    `om:"city,indexed"`
	Point  geo.Point `om:"point,indexed"`
}

type Metric struct {
	Score float64 `om:"score,indexed"`
	Label string
}

type Status int

func (s Status) MarshalText() ([]byte, error) {
	if s == 1 {
		return []byte("ACTIVE"), nil
	}
	return []byte("INACTIVE"), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	*s = 0
	if string(b) == "ACTIVE" {
		*s = 1
	}
	return nil
}

type Company struct {
	ID        string            `om:"id,id"`
	Name      string            `om:"name,text,sortable,weight=2"`
	Code      string            `om:"code,indexed,alias=company_code,casesensitive"`
	Tags      []string          `om:"tags,indexed,separator=;"`
	Employees int               `om:"employees,indexed,sortable"`
	Founded   time.Time         `om:"founded,indexed"`
	Level     int               `om:"level,ordinal,indexed"`
	Status    Status            `om:"status,indexed"`
	Location  geo.Point         `om:"location,indexed"`
	HQ        *Address          `om:"hq,nested"`
	Metrics   []Metric          `om:"metrics,indexed"`
	Scores    []int             `om:"scores,indexed"`
	Parent    *Company          `om:"parent,ref,indexed"`
	Embedding []float32         `om:"embedding,vector,dim=3,distance=l2,m=8"`
	Meta      map[string]string `om:"meta,indexed"`
	Any       any               `om:"any,indexed"`
	Flat      []float32         `om:"flat,vector"`
	Dup       string            `om:"dup,indexed,alias=hq_city"`
	Note      string
}

// newTestEngine returns an engine whose warnings are captured.
func newTestEngine(t *testing.T) (*Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return NewEngine(mapping.NewRegistry(codec.NewRegistry()), zap.New(core)), logs
}

// mockStore implements the consumer interface for tests.
type mockStore struct {
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	multiValue    bool

	created []*db.IndexDefinition
	dropped []string
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	m.created = append(m.created, def)
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	m.dropped = append(m.dropped, name)
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SupportsMultiValuePaths() bool { return m.multiValue }
