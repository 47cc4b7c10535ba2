package schema

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omhash/internal/db"
	logpkg "github.com/kailas-cloud/omhash/internal/logger"
	"github.com/kailas-cloud/omhash/internal/mapping"
	"github.com/kailas-cloud/omhash/internal/metrics"
)

// indexStore is the consumer interface for index lifecycle (ISP).
type indexStore interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsMultiValuePaths() bool
}

// Outcome is the result of Ensure.
type Outcome string

// Ensure outcomes, also used as metric labels.
const (
	OutcomeCreated   Outcome = "created"
	OutcomeExists    Outcome = "exists"
	OutcomeRecreated Outcome = "recreated"
	OutcomeSkipped   Outcome = "skipped"
)

// Indexer applies schemas to the search backend.
type Indexer struct {
	store  indexStore
	logger *zap.Logger
}

// NewIndexer creates an Indexer. A nil logger discards output.
func NewIndexer(s indexStore, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{store: s, logger: logger}
}

// Ensure creates the index of s according to its creation mode.
func (i *Indexer) Ensure(ctx context.Context, s *Schema) (Outcome, error) {
	name := s.IndexName()
	out, err := i.ensure(ctx, s)
	if err != nil {
		metrics.IndexCreationsTotal.WithLabelValues(name, "error").Inc()
		return "", fmt.Errorf("ensure index %s: %w", name, err)
	}
	metrics.IndexCreationsTotal.WithLabelValues(name, string(out)).Inc()
	return out, nil
}

func (i *Indexer) ensure(ctx context.Context, s *Schema) (Outcome, error) {
	name := s.IndexName()
	log := logpkg.FromContextOr(ctx, i.logger).With(zap.String("index", name))

	mode := s.Options.CreationMode
	if mode == mapping.SkipAlways {
		log.Info("index not created", zap.Error(fmt.Errorf("%w: mode %s", ErrIndexSkipped, mode)))
		return OutcomeSkipped, nil
	}

	def := i.definition(s, log)
	if len(def.Fields) == 0 {
		log.Info("index not created", zap.Error(fmt.Errorf("%w: no indexable fields", ErrIndexSkipped)))
		return OutcomeSkipped, nil
	}

	exists, err := i.store.IndexExists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("check index: %w", err)
	}

	recreated := false
	if exists {
		if mode == mapping.SkipIfExist {
			log.Info("index already exists")
			return OutcomeExists, nil
		}
		if err := i.store.DropIndex(ctx, name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return "", fmt.Errorf("drop index: %w", err)
		}
		recreated = true
	}

	if err := i.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			log.Info("index already exists")
			return OutcomeExists, nil
		}
		return "", err
	}
	if recreated {
		log.Info("index recreated", zap.Int("fields", len(def.Fields)))
		return OutcomeRecreated, nil
	}
	log.Info("index created", zap.Int("fields", len(def.Fields)))
	return OutcomeCreated, nil
}

// definition drops all-elements fields the backend cannot index.
func (i *Indexer) definition(s *Schema, log *zap.Logger) *db.IndexDefinition {
	def := s.Definition()
	if i.store.SupportsMultiValuePaths() {
		return def
	}
	kept := def.Fields[:0]
	for k := range s.Fields {
		if s.Fields[k].MultiValue() {
			log.Warn("multi-value field not supported by backend",
				zap.String("field", s.Fields[k].Property),
				zap.String("path", s.Fields[k].Name),
			)
			continue
		}
		kept = append(kept, s.Fields[k].IndexField)
	}
	def.Fields = kept
	return def
}

// Drop removes the index of s. A missing index is not an error.
func (i *Indexer) Drop(ctx context.Context, s *Schema) error {
	err := i.store.DropIndex(ctx, s.IndexName())
	switch {
	case errors.Is(err, db.ErrIndexNotFound):
		logpkg.FromContextOr(ctx, i.logger).Info("index not found", zap.String("index", s.IndexName()))
		return nil
	case err != nil:
		return fmt.Errorf("drop index %s: %w", s.IndexName(), err)
	}
	return nil
}
