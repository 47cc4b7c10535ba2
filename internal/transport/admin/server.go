// Package admin serves the operational HTTP surface: health, metrics,
// registered schemas and index lifecycle.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omhash/internal/db"
	"github.com/kailas-cloud/omhash/internal/health"
	"github.com/kailas-cloud/omhash/internal/metrics"
	"github.com/kailas-cloud/omhash/internal/schema"
)

// Error codes returned in the JSON error body.
const (
	CodeBadRequest     = "bad_request"
	CodeUnauthorized   = "unauthorized"
	CodeSchemaNotFound = "schema_not_found"
	CodeUnsupported    = "unsupported"
	CodeInternalError  = "internal_error"
)

var errSchemaNotFound = errors.New("schema not found")

type schemaSource interface {
	Schemas() []*schema.Schema
}

type indexer interface {
	Ensure(ctx context.Context, s *schema.Schema) (schema.Outcome, error)
	Drop(ctx context.Context, s *schema.Schema) error
}

type healthChecker interface {
	Check(ctx context.Context) health.Report
}

// errorHandler tries to handle an error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server handles the admin API.
type Server struct {
	schemas       schemaSource
	indexer       indexer
	health        healthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an admin server. A nil logger discards output.
func NewServer(schemas schemaSource, ix indexer, hc healthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		schemas: schemas,
		indexer: ix,
		health:  hc,
		logger:  logger,
		errorHandlers: []errorHandler{
			sentinelHandler(errSchemaNotFound, http.StatusNotFound, CodeSchemaNotFound),
			sentinelHandler(db.ErrUnsupported, http.StatusNotImplemented, CodeUnsupported),
		},
	}
}

// Router builds the chi router with the middleware chain. Empty apiKeys
// disables authentication.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/schemas", s.ListSchemas)
	r.Get("/schemas/{keyspace}", s.GetSchema)
	r.Post("/indexes/{keyspace}", s.CreateIndex)
	r.Delete("/indexes/{keyspace}", s.DropIndex)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	return r
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == health.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// ListSchemas handles GET /schemas.
func (s *Server) ListSchemas(w http.ResponseWriter, _ *http.Request) {
	all := s.schemas.Schemas()
	out := make([]SchemaView, len(all))
	for i, sc := range all {
		out[i] = NewSchemaView(sc)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

// GetSchema handles GET /schemas/{keyspace}.
func (s *Server) GetSchema(w http.ResponseWriter, r *http.Request) {
	sc, err := s.lookup(chi.URLParam(r, "keyspace"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSchemaView(sc))
}

// CreateIndex handles POST /indexes/{keyspace}. It follows the creation
// mode of the schema.
func (s *Server) CreateIndex(w http.ResponseWriter, r *http.Request) {
	sc, err := s.lookup(chi.URLParam(r, "keyspace"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	out, err := s.indexer.Ensure(r.Context(), sc)
	if err != nil {
		s.handleError(w, err)
		return
	}
	status := http.StatusOK
	if out == schema.OutcomeCreated || out == schema.OutcomeRecreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, indexResponse{Index: sc.IndexName(), Outcome: string(out)})
}

// DropIndex handles DELETE /indexes/{keyspace}.
func (s *Server) DropIndex(w http.ResponseWriter, r *http.Request) {
	sc, err := s.lookup(chi.URLParam(r, "keyspace"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.indexer.Drop(r.Context(), sc); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(keyspace string) (*schema.Schema, error) {
	for _, sc := range s.schemas.Schemas() {
		if sc.Keyspace() == keyspace {
			return sc, nil
		}
	}
	return nil, errSchemaNotFound
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			s.logger.Warn("request failed", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
