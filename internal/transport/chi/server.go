package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/liquidgraph/kgraph/internal/domain"
	healthuc "github.com/liquidgraph/kgraph/internal/usecase/health"
	ingestuc "github.com/liquidgraph/kgraph/internal/usecase/ingest"
	queryuc "github.com/liquidgraph/kgraph/internal/usecase/query"
	"github.com/liquidgraph/kgraph/internal/version"
)

// Error response codes.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeUnauthorized     = "unauthorized"
	codeQueueFull        = "queue_full"
	codeProviderError    = "provider_error"
	codeUnavailable      = "engine_unavailable"
	codeInternalError    = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the ingestion and query API over HTTP.
type Server struct {
	ingest        *ingestuc.Service
	query         *queryuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	query *queryuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest: ingest,
		query:  query,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentTooShort, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidMode, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrQueueFull, http.StatusTooManyRequests, codeQueueFull),
		sentinelHandler(domain.ErrProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrEngineUnavailable, http.StatusServiceUnavailable, codeUnavailable),
	}
	return s
}

// Mount registers all routes on the router.
func (s *Server) Mount(r chi.Router) {
	r.Get("/", s.HealthCheck)
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/ingest", s.Ingest)
	r.Post("/query", s.Query)
}

type ingestRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ingestResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	Duplicate bool      `json:"duplicate,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Ingest handles POST /ingest. The document is accepted and queued;
// extraction runs in the background.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	receipt, err := s.ingest.Enqueue(r.Context(), req.Text, req.Metadata)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	msg := "Document accepted for processing"
	if receipt.Duplicate {
		msg = "Document already ingested"
	}
	writeJSON(w, http.StatusAccepted, ingestResponse{
		Status:    "accepted",
		Message:   msg,
		ID:        receipt.ID,
		DocID:     receipt.DocID,
		Duplicate: receipt.Duplicate,
		Timestamp: receipt.ReceivedAt,
	})
}

type queryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

type querySource struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type queryResponse struct {
	Answer  string        `json:"answer"`
	Mode    string        `json:"mode"`
	Sources []querySource `json:"sources"`
	TookMs  int64         `json:"took_ms"`
}

// Query handles POST /query. Runs retrieval and answer synthesis
// synchronously.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.query.Ask(r.Context(), req.Query, req.Mode)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	sources := make([]querySource, len(result.Sources))
	for i, src := range result.Sources {
		sources[i] = querySource{ID: src.ID, Content: src.Content, Score: src.Score}
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:  result.Answer,
		Mode:    string(result.Mode),
		Sources: sources,
		TookMs:  result.Duration.Milliseconds(),
	})
}

type healthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Graph     graphStats        `json:"graph"`
	Timestamp time.Time         `json:"timestamp"`
}

type graphStats struct {
	Entities      int64 `json:"entities"`
	Relationships int64 `json:"relationships"`
	Chunks        int   `json:"chunks"`
}

// HealthCheck handles GET / and GET /health. It always answers 200;
// component failures show up in the status and checks fields.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:  string(report.Status),
		Version: version.Version,
		Checks:  checks,
		Graph: graphStats{
			Entities:      report.Graph.Entities,
			Relationships: report.Graph.Relationships,
			Chunks:        report.Graph.Chunks,
		},
		Timestamp: report.Timestamp,
	})
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

// safeDomainMessage returns a sentinel error message for the client
// without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentTooShort,
		domain.ErrEmptyQuery,
		domain.ErrInvalidMode,
		domain.ErrQueueFull,
		domain.ErrProviderError,
		domain.ErrEngineUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
