package main

import (
	"context"
	"time"

	"github.com/kailas-cloud/omhash"
)

// Office is embedded into Company under hq.
type Office struct {
	Street  string       `om:"street"`
	City    string       `om:"city,indexed"`
	Country string       `om:"country,indexed"`
	Point   omhash.Point `om:"point,indexed"`
}

// Company is the catalog root model.
type Company struct {
	ID        string    `om:"id,id"`
	Name      string    `om:"name,text,sortable"`
	Industry  string    `om:"industry,indexed"`
	Tags      []string  `om:"tags,indexed"`
	Employees int       `om:"employees,indexed,sortable"`
	Founded   time.Time `om:"founded,indexed,sortable"`
	HQ        *Office   `om:"hq,nested"`
	Summary   string    `om:"summary"`
	Embedding []float32 `om:"embedding,vector,dim=1536,distance=cosine,vectorize=summary"`
}

// Person works for a Company.
type Person struct {
	ID       string   `om:"id,id"`
	Name     string   `om:"name,text,sortable"`
	Email    string   `om:"email,indexed"`
	Title    string   `om:"title,text"`
	Skills   []string `om:"skills,indexed"`
	Employer *Company `om:"employer,ref,indexed"`
}

// indexOps is satisfied by every omhash.Repository.
type indexOps interface {
	Keyspace() string
	EnsureIndex(ctx context.Context) (omhash.IndexOutcome, error)
	DropIndex(ctx context.Context) error
}

// registerModels registers the catalog models and returns their index
// operations keyed by keyspace.
func registerModels(c *omhash.Client, mode omhash.CreationMode) (map[string]indexOps, error) {
	companies, err := omhash.Register[Company](c, omhash.WithKeyspace("company"), omhash.WithCreationMode(mode))
	if err != nil {
		return nil, err
	}
	people, err := omhash.Register[Person](c, omhash.WithKeyspace("person"), omhash.WithCreationMode(mode))
	if err != nil {
		return nil, err
	}
	return map[string]indexOps{
		companies.Keyspace(): companies,
		people.Keyspace():    people,
	}, nil
}
