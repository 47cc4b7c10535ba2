package omhash

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/kailas-cloud/omhash/internal/repository"
	"github.com/kailas-cloud/omhash/internal/schema"
)

// Repository stores and queries values of T under one keyspace.
type Repository[T any] struct {
	client *Client
	schema *schema.Schema
	repo   *repository.Repository
}

// Register binds T to the client and infers its index schema. T must be a
// struct type with an om:"...,id" field. Options only take effect on the
// first registration of T.
func Register[T any](c *Client, opts ...EntityOption) (*Repository[T], error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("omhash: register %s: not a struct type", t)
	}
	s, err := c.engine.Register(t, opts...)
	if err != nil {
		return nil, fmt.Errorf("omhash: register %s: %w", t, err)
	}

	repoOpts := []repository.Option{repository.WithLogger(c.logger.Named("repository"))}
	if c.embedder != nil {
		repoOpts = append(repoOpts, repository.WithEmbedder(c.embedder))
	}
	if c.cfg.concurrency > 0 {
		repoOpts = append(repoOpts, repository.WithConcurrency(c.cfg.concurrency))
	}
	repo, err := repository.New(s, c.mapping, c.conv, c.store, repoOpts...)
	if err != nil {
		return nil, fmt.Errorf("omhash: register %s: %w", t, err)
	}

	r := &Repository[T]{client: c, schema: s, repo: repo}
	if c.cfg.autoIndex {
		if _, err := r.EnsureIndex(context.Background()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Schema returns the inferred index schema.
func (r *Repository[T]) Schema() *Schema { return r.schema }

// Keyspace returns the key prefix of stored records, without the colon.
func (r *Repository[T]) Keyspace() string { return r.schema.Keyspace() }

// IndexName returns the search index name.
func (r *Repository[T]) IndexName() string { return r.schema.IndexName() }

// Key returns the store key of id.
func (r *Repository[T]) Key(id string) string { return r.repo.Key(id) }

// Save writes v, replacing any stored record with the same id. A zero
// string, ULID or UUID id is generated and written back into v.
func (r *Repository[T]) Save(ctx context.Context, v *T) (string, error) {
	if v == nil {
		return "", errors.New("omhash: save nil record")
	}
	return r.repo.Save(ctx, v)
}

// SaveAll writes vs concurrently and returns their ids in order.
func (r *Repository[T]) SaveAll(ctx context.Context, vs []*T) ([]string, error) {
	items := make([]any, len(vs))
	for i, v := range vs {
		if v == nil {
			return nil, fmt.Errorf("omhash: save nil record at %d", i)
		}
		items[i] = v
	}
	return r.repo.SaveAll(ctx, items)
}

// Get loads the record with id. It returns ErrNotFound when absent.
func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	v := new(T)
	if err := r.repo.Get(ctx, id, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Update applies changes to the stored record without rewriting it.
func (r *Repository[T]) Update(ctx context.Context, id string, changes ...Change) error {
	return r.repo.Update(ctx, id, changes...)
}

// Delete removes the record. A missing record is not an error.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	return r.repo.Delete(ctx, id)
}

// Exists reports whether a record with id is stored.
func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	return r.repo.Exists(ctx, id)
}

// IDs lists the ids of every stored record, sorted.
func (r *Repository[T]) IDs(ctx context.Context) ([]string, error) {
	return r.repo.IDs(ctx)
}

// Count returns the number of stored records.
func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	return r.repo.Count(ctx)
}

// EnsureIndex creates the search index according to the creation mode.
func (r *Repository[T]) EnsureIndex(ctx context.Context) (IndexOutcome, error) {
	out, err := r.client.indexer.Ensure(ctx, r.schema)
	if err != nil {
		return "", fmt.Errorf("omhash: %w", err)
	}
	return out, nil
}

// DropIndex removes the search index. Stored records are kept.
func (r *Repository[T]) DropIndex(ctx context.Context) error {
	if err := r.client.indexer.Drop(ctx, r.schema); err != nil {
		return fmt.Errorf("omhash: %w", err)
	}
	return nil
}

// Search starts a query over the index of T.
func (r *Repository[T]) Search() *SearchBuilder[T] {
	return newSearchBuilder(r)
}
