package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/omhash/internal/bucket"
	"github.com/kailas-cloud/omhash/internal/convert"
	"github.com/kailas-cloud/omhash/internal/db"
)

// hashReader is the consumer interface for reference loading (ISP).
type hashReader interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Resolver loads referenced records straight from the hash store.
type Resolver struct {
	store hashReader
}

var _ convert.ReferenceResolver = (*Resolver)(nil)

// NewResolver creates a Resolver.
func NewResolver(s hashReader) *Resolver {
	return &Resolver{store: s}
}

// Resolve implements convert.ReferenceResolver. A missing record yields nil.
func (r *Resolver) Resolve(ctx context.Context, id, keyspace string) (map[string][]byte, error) {
	key := convert.FormatReference(keyspace, id)
	fields, err := r.store.HGetAll(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return bucketOf(fields).Bytes(), nil
}

func bucketOf(fields map[string]string) *bucket.Bucket {
	return bucket.FromMap(fields)
}
