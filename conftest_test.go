package omhash

import (
	"context"
	"sync/atomic"
	"testing"
)

type Office struct {
	City  string `om:"city,indexed"`
	Point Point  `om:"point,indexed"`
}

type Company struct {
	ID        string    `om:"id,id"`
	Name      string    `om:"name,text,sortable"`
	Employees int       `om:"employees,indexed,sortable"`
	Tags      []string  `om:"tags,indexed"`
	HQ        *Office   `om:"hq,nested"`
	Summary   string    `om:"summary"`
	Embedding []float32 `om:"embedding,vector,dim=2,distance=l2,vectorize=summary"`
}

// countingEmbedder maps text to {len(text), 1} and counts calls.
type countingEmbedder struct {
	calls atomic.Int32
}

func (e *countingEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	e.calls.Add(1)
	return EmbeddingResult{Embedding: []float32{float32(len(text)), 1}}, nil
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(append([]Option{WithMemory()}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func registerCompanies(t *testing.T, c *Client, opts ...EntityOption) *Repository[Company] {
	t.Helper()
	r, err := Register[Company](c, opts...)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r
}

func seedCompanies(t *testing.T, r *Repository[Company]) {
	t.Helper()
	companies := []*Company{
		{ID: "acme", Name: "Acme", Employees: 120, Tags: []string{"b2b"},
			HQ: &Office{City: "Berlin", Point: NewPoint(13.405, 52.52)}, Summary: "rockets"},
		{ID: "globex", Name: "Globex", Employees: 15, Tags: []string{"b2c"},
			HQ: &Office{City: "Berlin", Point: NewPoint(13.38, 52.51)}, Summary: "a"},
		{ID: "initech", Name: "Initech", Employees: 8, Tags: []string{"b2b", "saas"},
			HQ: &Office{City: "Austin", Point: NewPoint(-97.74, 30.27)}, Summary: "printers!!"},
	}
	if _, err := r.SaveAll(context.Background(), companies); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
}
